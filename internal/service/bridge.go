package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/metrics-cz/connect-auth/internal/config"
	"github.com/metrics-cz/connect-auth/internal/domain"
)

// Bridge re-delivers restricted access grants on a fixed interval for
// sandboxed plugin frames. It is transport-agnostic; the HTTP layer streams
// the channel out as server-sent events.
type Bridge struct {
	tokens   *TokenService
	interval time.Duration
	logger   *zap.Logger
}

// NewBridge wires the bridge feed.
func NewBridge(tokens *TokenService, cfg config.Config, logger *zap.Logger) *Bridge {
	interval := cfg.BridgeInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Bridge{tokens: tokens, interval: interval, logger: logger}
}

// Subscribe delivers the company's current grant immediately and then on
// every interval tick until ctx is done. The channel closes when the
// connection becomes unrecoverable, signalling the frame to prompt
// re-authentication. A slow consumer misses ticks instead of blocking the
// feed.
func (b *Bridge) Subscribe(ctx context.Context, companyID int64) <-chan domain.AccessGrant {
	out := make(chan domain.AccessGrant, 1)

	go func() {
		defer close(out)

		if !b.deliver(ctx, companyID, out) {
			return
		}

		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !b.deliver(ctx, companyID, out) {
					return
				}
			}
		}
	}()

	return out
}

func (b *Bridge) deliver(ctx context.Context, companyID int64, out chan<- domain.AccessGrant) bool {
	grant, err := b.tokens.Grant(ctx, companyID)
	if err != nil || grant == nil {
		if err != nil && ctx.Err() == nil {
			b.log().Info("bridge feed ending", zap.Int64("company_id", companyID), zap.Error(err))
		}
		return false
	}

	select {
	case out <- *grant:
	default:
		// Consumer has not drained the previous grant; skip this tick.
	}
	return true
}

func (b *Bridge) log() *zap.Logger {
	if b != nil && b.logger != nil {
		return b.logger
	}
	return zap.L()
}
