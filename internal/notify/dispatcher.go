package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nurpe/jurisconnect/internal/model"
)

const defaultPublishTimeout = 15 * time.Second

// Publisher delivers notification intents somewhere outside the process.
type Publisher interface {
	Publish(ctx context.Context, intents []model.Intent) error
}

// Dispatcher hands committed intents to a Publisher in the background.
// Delivery failures are logged and swallowed: the state change they
// describe is already stored.
type Dispatcher struct {
	publisher Publisher
	log       zerolog.Logger
	timeout   time.Duration
	wg        sync.WaitGroup
}

func NewDispatcher(publisher Publisher, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{publisher: publisher, log: log, timeout: defaultPublishTimeout}
}

// Dispatch returns immediately. Each batch is published on its own
// goroutine, bounded by the publish timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, intents []model.Intent) {
	if d == nil || d.publisher == nil || len(intents) == 0 {
		return
	}
	batch := append([]model.Intent(nil), intents...)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		d.publish(pubCtx, batch)
	}()
}

func (d *Dispatcher) publish(ctx context.Context, intents []model.Intent) {
	if err := d.publisher.Publish(ctx, intents); err != nil {
		d.log.Error().
			Err(err).
			Str("request_id", intents[0].RequestID.String()).
			Int("intents", len(intents)).
			Msg("failed to dispatch notifications")
	}
}

// Wait blocks until in-flight batches finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
