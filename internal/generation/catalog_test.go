package generation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leavend/genstudio/internal/domain"
	"github.com/leavend/genstudio/internal/queue"
)

func TestCatalogDefaults(t *testing.T) {
	cases := []struct {
		kind        string
		concurrency int
		attempts    int
		lock        time.Duration
	}{
		{KindImage, 2, 3, 5 * time.Minute},
		{KindVideo, 1, 2, 30 * time.Minute},
		{KindEnhancement, 3, 3, 2 * time.Minute},
		{KindTraining, 1, 1, 60 * time.Minute},
		{KindLogo, 3, 3, 3 * time.Minute},
		{KindBackgroundRemoval, 3, 3, 2 * time.Minute},
		{KindStyleTransfer, 2, 3, 5 * time.Minute},
	}
	for _, tc := range cases {
		e, ok := Lookup(tc.kind)
		require.True(t, ok, tc.kind)
		assert.Equal(t, tc.kind, e.Queue.Name)
		assert.Equal(t, tc.concurrency, e.Queue.Concurrency, tc.kind)
		assert.Equal(t, tc.attempts, e.Queue.MaxAttempts, tc.kind)
		assert.Equal(t, tc.lock, e.Queue.LockDuration, tc.kind)
	}
	_, ok := Lookup("pdf")
	assert.False(t, ok)
	assert.Len(t, Kinds(), 7)
}

func TestQueueConfigsValidateAndOverride(t *testing.T) {
	configs, err := QueueConfigs(nil)
	require.NoError(t, err)
	require.Len(t, configs, 8)
	for _, cfg := range configs {
		require.NoError(t, cfg.Validate(), cfg.Name)
	}
	assert.Equal(t, QueueNotificationFanout, configs[7].Name)
	assert.Equal(t, 5, configs[7].Concurrency)
	assert.Equal(t, 30*time.Second, configs[7].LockDuration)

	overridden, err := QueueConfigs(func(c queue.Config) (queue.Config, error) {
		if c.Name == KindVideo {
			c.Concurrency = 4
		}
		return c, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, overridden[1].Concurrency)

	_, err = QueueConfigs(func(c queue.Config) (queue.Config, error) { return c, errors.New("bad env") })
	assert.Error(t, err)
}

func TestPayloadValidate(t *testing.T) {
	cases := []struct {
		name string
		p    Payload
		want error
	}{
		{"ok", Payload{UserID: "u", Kind: KindLogo, Prompt: " fox "}, nil},
		{"unknown kind", Payload{UserID: "u", Kind: "pdf", Prompt: "x"}, domain.ErrUnsupportedKind},
		{"no user", Payload{Kind: KindLogo, Prompt: "x"}, domain.ErrInvalidRequest},
		{"no prompt", Payload{UserID: "u", Kind: KindImage}, domain.ErrInvalidRequest},
		{"edit without source", Payload{UserID: "u", Kind: KindStyleTransfer, Prompt: "x"}, domain.ErrInvalidRequest},
		{"edit with source", Payload{UserID: "u", Kind: KindBackgroundRemoval, SourceURL: "https://x/y.png"}, nil},
		{"too wide", Payload{UserID: "u", Kind: KindImage, Prompt: "x", Width: 4096}, domain.ErrInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.p.Validate()
			if tc.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.want)
		})
	}
}
