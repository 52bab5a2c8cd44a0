package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerRoleDefaultsToBoth(t *testing.T) {
	cfg, err := LoadFromFiles()
	require.NoError(t, err)
	assert.Empty(t, cfg.Scheduler.WorkerRole)
}

func TestWorkerRoleFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "venari.toml")
	require.NoError(t, os.WriteFile(path, []byte("[scheduler]\nworker_role = \"general\"\n"), 0o644))

	cfg, err := LoadFromFiles(path)
	require.NoError(t, err)
	assert.Equal(t, "general", cfg.Scheduler.WorkerRole)
	// A partial table leaves the other scheduler defaults intact.
	assert.Equal(t, 300, cfg.Scheduler.LockSeconds)
}

func TestWorkerRoleEnvAndFlagOverrides(t *testing.T) {
	t.Setenv("VENARI_WORKER_ROLE", "job-details")
	cfg, err := LoadFromFiles()
	require.NoError(t, err)
	assert.Equal(t, "job-details", cfg.Scheduler.WorkerRole)

	// Flags beat everything.
	ApplyFlagOverrides(cfg, 0, "", "general")
	assert.Equal(t, "general", cfg.Scheduler.WorkerRole)
}

func TestWorkerRoleRejectsUnknownValue(t *testing.T) {
	t.Setenv("VENARI_WORKER_ROLE", "bogus")
	_, err := LoadFromFiles()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WorkerRole")
}
