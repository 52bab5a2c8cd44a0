package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsStoreID(t *testing.T) {
	assert.True(t, IsStoreID("jd7abc123def456ghi789jkl0mn"))
	assert.False(t, IsStoreID("short"))
	assert.False(t, IsStoreID("UPPERCASE0000000000000000000"))
	assert.False(t, IsStoreID("has-dashes-00000000000000000"))
	assert.False(t, IsStoreID(""))
}

func TestTimeMillisRoundTrip(t *testing.T) {
	assert.Equal(t, int64(0), TimeToMillis(time.Time{}))
	assert.True(t, MillisToTime(0).IsZero())

	now := time.Now().Truncate(time.Millisecond)
	assert.Equal(t, now.UnixMilli(), TimeToMillis(now))
	assert.True(t, MillisToTime(now.UnixMilli()).Equal(now))
}

func TestQueueStatusTerminal(t *testing.T) {
	assert.False(t, QueueStatusPending.Terminal())
	assert.False(t, QueueStatusProcessing.Terminal())
	assert.True(t, QueueStatusCompleted.Terminal())
	assert.True(t, QueueStatusFailed.Terminal())
}

func TestWebhookEventTerminal(t *testing.T) {
	assert.True(t, TerminalWebhookEvent(WebhookEventCompleted))
	assert.True(t, TerminalWebhookEvent(WebhookEventFailed))
	assert.True(t, TerminalWebhookEvent(WebhookEventBatchCompleted))
	assert.True(t, TerminalWebhookEvent(WebhookEventBatchFailed))
	assert.False(t, TerminalWebhookEvent(WebhookEventBatchStarted))
	assert.False(t, TerminalWebhookEvent(WebhookEventBatchPage))
}

func TestCaptureExtra(t *testing.T) {
	raw := []byte(`{"url":"https://x","markdown":"# hi","screenshot":"data:...","statusCode":200}`)

	extra := CaptureExtra(raw, "url", "markdown")
	assert.Len(t, extra, 2)
	assert.Contains(t, extra, "screenshot")
	assert.Contains(t, extra, "statusCode")

	assert.Nil(t, CaptureExtra([]byte(`not json`), "url"))
	assert.Nil(t, CaptureExtra([]byte(`{"url":"x"}`), "url"))
}

func TestSiteTypeValid(t *testing.T) {
	assert.True(t, SiteTypeGreenhouse.Valid())
	assert.True(t, SiteTypeGeneric.Valid())
	assert.False(t, SiteType("lever").Valid())
}

func TestProviderKindValid(t *testing.T) {
	assert.True(t, ProviderSpiderCloud.Valid())
	assert.True(t, ProviderFirecrawl.Valid())
	assert.True(t, ProviderFetchFox.Valid())
	assert.False(t, ProviderKind("playwright").Valid())
}
