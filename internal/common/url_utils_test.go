package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesURLPattern(t *testing.T) {
	assert.True(t, MatchesURLPattern("", "https://anything"))
	assert.True(t, MatchesURLPattern("*greenhouse.io*", "https://boards.greenhouse.io/acme/jobs/1"))
	assert.True(t, MatchesURLPattern("https://jobs.example.com/*/apply", "https://jobs.example.com/123/apply"))
	assert.True(t, MatchesURLPattern("https://jobs.example.com/1", "https://jobs.example.com/1"))
	assert.False(t, MatchesURLPattern("https://jobs.example.com/1", "https://jobs.example.com/12"))
	assert.False(t, MatchesURLPattern("*JobDetail*", "https://example.com/careers/SearchJobs"))
}

func TestFilterURLsByPattern(t *testing.T) {
	urls := []string{
		"https://a.example.com/jobs/1",
		"https://b.example.com/about",
	}
	assert.Equal(t, urls, FilterURLsByPattern(urls, ""))
	assert.Equal(t, []string{"https://a.example.com/jobs/1"}, FilterURLsByPattern(urls, "*jobs*"))
}

func TestJoinPath(t *testing.T) {
	assert.Equal(t, "https://x.test/api/firecrawl/webhook",
		JoinPath("https://x.test/", "/api", "firecrawl", "webhook"))
	assert.Equal(t, "https://x.test/api", JoinPath("https://x.test", "api"))
	assert.Equal(t, "a/b", JoinPath("", "a", "", "b"))
}
