package worker

import (
	"context"
	"sync"
	"time"

	"guideboard/internal/domain/model"
	"guideboard/internal/platform/queue"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventSource opens the process-wide subscription to the job event channel.
type EventSource interface {
	Subscribe(ctx context.Context) (*redis.PubSub, error)
}

const (
	defaultSubscriberBuffer = 16
	resubscribeDelay        = 2 * time.Second
)

// FeedRelay holds one Redis subscription and fans each event out to the
// in-process subscribers. A subscriber whose buffer is full misses the
// event; the relay never blocks on a slow reader.
type FeedRelay struct {
	source EventSource
	logger *zap.Logger
	buffer int

	mu      sync.Mutex
	nextID  int
	subs    map[int]chan model.JobEvent
	stopped bool
}

func NewFeedRelay(source EventSource, logger *zap.Logger) *FeedRelay {
	return &FeedRelay{
		source: source,
		logger: logger.Named("feed_relay"),
		buffer: defaultSubscriberBuffer,
		subs:   make(map[int]chan model.JobEvent),
	}
}

// Subscribe registers a listener. The returned cancel func must be called
// once the listener is done; it closes the channel. After Start has
// returned the channel comes back already closed.
func (r *FeedRelay) Subscribe() (<-chan model.JobEvent, func()) {
	ch := make(chan model.JobEvent, r.buffer)

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := r.nextID
	r.nextID++
	r.subs[id] = ch
	r.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			if c, ok := r.subs[id]; ok {
				delete(r.subs, id)
				close(c)
			}
			r.mu.Unlock()
		})
	}
}

// Subscribers reports how many listeners are registered.
func (r *FeedRelay) Subscribers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Start relays events until ctx is canceled. A dropped subscription is
// reopened after a short delay. All listener channels are closed on return.
func (r *FeedRelay) Start(ctx context.Context) {
	r.logger.Info("feed relay started")
	defer r.closeAll()

	for {
		if err := r.relay(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("feed subscription lost", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			r.logger.Info("feed relay stopping")
			return
		case <-time.After(resubscribeDelay):
		}
	}
}

func (r *FeedRelay) relay(ctx context.Context) error {
	sub, err := r.source.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return redis.ErrClosed
			}
			ev, err := queue.DecodeJobEvent(msg.Payload)
			if err != nil {
				r.logger.Warn("skipping malformed job event", zap.Error(err))
				continue
			}
			r.broadcast(ev)
		}
	}
}

func (r *FeedRelay) broadcast(ev model.JobEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, ch := range r.subs {
		select {
		case ch <- ev:
		default:
			r.logger.Debug("dropping event for slow subscriber", zap.Int("subscriber", id), zap.String("job_id", ev.JobID))
		}
	}
}

func (r *FeedRelay) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	for id, ch := range r.subs {
		delete(r.subs, id)
		close(ch)
	}
}
