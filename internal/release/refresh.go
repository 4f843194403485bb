package release

import (
	"context"
	"time"
)

// RefreshActivity bumps the activity timestamp every interval while active
// reports true. It returns when ctx is cancelled.
func (c *Controller) RefreshActivity(ctx context.Context, interval time.Duration, active func() bool) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !active() {
				continue
			}
			if _, err := c.TouchActivity(ctx); err != nil {
				c.log.Warn().Err(err).Msg("refreshing activity")
			}
		}
	}
}
