package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatline-server/internal/metrics"
)

const defaultPushTimeout = 5 * time.Second

// Emitter pushes one event to one connection. It never retries.
type Emitter struct {
	timeout time.Duration
	log     *zerolog.Logger
}

// NewEmitter builds an emitter with a per-push timeout.
func NewEmitter(timeout time.Duration, logger *zerolog.Logger) *Emitter {
	if timeout <= 0 {
		timeout = defaultPushTimeout
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Emitter{timeout: timeout, log: logger}
}

// Push sends ev to c. A push to a connection that is not Active is a no-op failure.
// Errors are logged here; callers only need them for counting.
func (e *Emitter) Push(ctx context.Context, c *Conn, ev Event) (err error) {
	if c == nil || c.State() != StateActive {
		return ErrConnNotActive
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: panic: %v", ErrTransportWrite, rec)
		}
		if err != nil {
			metrics.DeliveryFailures.WithLabelValues(string(ev.Kind)).Inc()
			e.log.Warn().
				Err(err).
				Str("conn_id", c.ID()).
				Int64("user_id", c.UserID()).
				Str("room", ev.Room.String()).
				Str("event", string(ev.Kind)).
				Msg("push failed")
			return
		}
		metrics.EventsDelivered.WithLabelValues(string(ev.Kind)).Inc()
	}()

	if sendErr := c.transport.Send(ctx, ev); sendErr != nil {
		return fmt.Errorf("%w: %w", ErrTransportWrite, sendErr)
	}
	return nil
}
