package remote

import (
	"context"
	"time"

	"github.com/meditate001/meditate/common"
)

func millis(d time.Duration) *common.DurationParams {
	ms := d.Milliseconds()
	return &common.DurationParams{DurationMs: &ms}
}

func (c *Client) Version(ctx context.Context) (*common.VersionResult, error) {
	return invoke[common.VersionResult](ctx, c, common.MethodGetVersion, nil)
}

func (c *Client) Status(ctx context.Context) (*common.StatusResult, error) {
	return invoke[common.StatusResult](ctx, c, common.MethodTimerStatus, nil)
}

// Start begins a session of d. Negative lengths clamp to zero.
func (c *Client) Start(ctx context.Context, d time.Duration) (*common.StatusResult, error) {
	return invoke[common.StatusResult](ctx, c, common.MethodTimerStart, millis(d))
}

// StartSelected begins a session of the selected length.
func (c *Client) StartSelected(ctx context.Context) (*common.StatusResult, error) {
	return invoke[common.StatusResult](ctx, c, common.MethodTimerStart, nil)
}

func (c *Client) Pause(ctx context.Context) (*common.StatusResult, error) {
	return invoke[common.StatusResult](ctx, c, common.MethodTimerPause, nil)
}

func (c *Client) Resume(ctx context.Context) (*common.StatusResult, error) {
	return invoke[common.StatusResult](ctx, c, common.MethodTimerResume, nil)
}

func (c *Client) Reset(ctx context.Context) (*common.StatusResult, error) {
	return invoke[common.StatusResult](ctx, c, common.MethodTimerReset, nil)
}

func (c *Client) Select(ctx context.Context, d time.Duration) (*common.StatusResult, error) {
	return invoke[common.StatusResult](ctx, c, common.MethodTimerSelect, millis(d))
}

func (c *Client) Refresh(ctx context.Context) (*common.StatusResult, error) {
	return invoke[common.StatusResult](ctx, c, common.MethodTimerRefresh, nil)
}

func (c *Client) UnlockAudio(ctx context.Context) (*common.AudioResult, error) {
	return invoke[common.AudioResult](ctx, c, common.MethodAudioUnlock, nil)
}

func (c *Client) TestTone(ctx context.Context) (*common.AudioResult, error) {
	return invoke[common.AudioResult](ctx, c, common.MethodAudioTest, nil)
}
