package common

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// crashLogDir is where crash reports land. A scraper host runs unattended;
// the report file is usually the only record of why the process died.
var crashLogDir = "./logs"

// InstallCrashHandler sets the crash-report directory and makes sure it
// exists. Call at the top of main, paired with a deferred
// RecoverWithCrashFile.
func InstallCrashHandler(logDir string) {
	if logDir != "" {
		crashLogDir = logDir
	}
	if err := os.MkdirAll(crashLogDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: cannot create crash log directory: %v\n", err)
	}
}

// RecoverWithCrashFile is the deferred half of crash protection: it turns a
// fatal panic into a crash report file and a non-zero exit.
func RecoverWithCrashFile() {
	if r := recover(); r != nil {
		WriteCrashFile(r, stackTrace(false))
		os.Exit(1)
	}
}

// WriteCrashFile writes a crash report (panic value, panicking stack, all
// goroutines, runtime stats) and returns its path. Falls back to stderr when
// the file cannot be written.
func WriteCrashFile(panicVal interface{}, panickingStack string) string {
	path := filepath.Join(crashLogDir, fmt.Sprintf("crash-%s.log", time.Now().Format("2006-01-02T15-04-05")))

	var report bytes.Buffer
	fmt.Fprintf(&report, "venari crash report\ntime: %s\nversion: %s\n\n", time.Now().Format(time.RFC3339), GetFullVersion())
	fmt.Fprintf(&report, "panic: %v\n\n", panicVal)
	fmt.Fprintf(&report, "-- panicking goroutine --\n%s\n", panickingStack)
	fmt.Fprintf(&report, "-- all goroutines --\n%s\n", stackTrace(true))

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	fmt.Fprintf(&report, "-- runtime --\ngoroutines: %d\ncpus: %d\nos/arch: %s/%s\n",
		runtime.NumGoroutine(), runtime.NumCPU(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&report, "alloc: %d MB, sys: %d MB, gc cycles: %d\n",
		mem.Alloc/1024/1024, mem.Sys/1024/1024, mem.NumGC)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: cannot create crash file: %v\n%s", err, report.String())
		return ""
	}
	if _, err := file.Write(report.Bytes()); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: cannot write crash file: %v\n%s", err, report.String())
	}
	file.Sync()
	file.Close()

	fmt.Fprintf(os.Stderr, "\nFATAL: crash report saved to %s\npanic: %v\n", path, panicVal)
	return path
}

// stackTrace captures the current goroutine's stack, or every goroutine's
// when all is set, growing the buffer until the dump fits.
func stackTrace(all bool) string {
	size := 8 * 1024
	if all {
		size = 64 * 1024
	}
	for {
		buf := make([]byte, size)
		n := runtime.Stack(buf, all)
		if n < len(buf) {
			return string(buf[:n])
		}
		size *= 2
		if size > 64*1024*1024 {
			return string(buf[:n])
		}
	}
}
