package circuitbreaker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/lalithlochan/cardbot/internal/dispatch"
	"github.com/lalithlochan/cardbot/internal/notion"
)

// ProtectedDispatcher wraps a Dispatcher with a CircuitBreaker. While Discord
// keeps failing, notifications fail fast with ErrCircuitOpen. A missing
// target is a configuration problem and does not count as a failure.
type ProtectedDispatcher struct {
	next    dispatch.Dispatcher
	breaker *CircuitBreaker
	logger  *zap.Logger
}

func NewProtectedDispatcher(next dispatch.Dispatcher, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedDispatcher {
	return &ProtectedDispatcher{
		next:    next,
		breaker: breaker,
		logger:  logger,
	}
}

func (p *ProtectedDispatcher) SendToThread(ctx context.Context, threadID, text string, card *notion.Card) error {
	return p.call("thread", threadID, func() error {
		return p.next.SendToThread(ctx, threadID, text, card)
	})
}

func (p *ProtectedDispatcher) SendToChannel(ctx context.Context, channelID, text string) error {
	return p.call("channel", channelID, func() error {
		return p.next.SendToChannel(ctx, channelID, text)
	})
}

func (p *ProtectedDispatcher) SendDirectMessage(ctx context.Context, userID, text string) error {
	return p.call("dm", userID, func() error {
		return p.next.SendDirectMessage(ctx, userID, text)
	})
}

func (p *ProtectedDispatcher) call(kind, target string, fn func() error) error {
	if !p.breaker.Allow() {
		p.logger.Warn("circuit breaker rejected notification",
			zap.String("breaker", p.breaker.Name()),
			zap.String("kind", kind),
			zap.String("target", target),
		)
		return fmt.Errorf("%w: %s unavailable", ErrCircuitOpen, p.breaker.Name())
	}

	err := fn()
	switch {
	case err == nil, errors.Is(err, dispatch.ErrTargetNotFound):
		p.breaker.RecordSuccess()
	default:
		p.breaker.RecordFailure()
	}
	return err
}

// Breaker exposes the breaker for health reporting.
func (p *ProtectedDispatcher) Breaker() *CircuitBreaker {
	return p.breaker
}
