package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/kafka"
)

// Publisher writes one event to the analysis topic.
type Publisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// Collector buffers events and publishes them from a single goroutine so
// that analyses never wait on the broker. Events are dropped when the buffer
// is full.
type Collector struct {
	publisher Publisher
	eventCh   chan AnalysisEvent
	logger    *slog.Logger
	done      chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewCollector(publisher Publisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &Collector{
		publisher: publisher,
		eventCh:   make(chan AnalysisEvent, bufferSize),
		logger:    slog.Default().With("component", "events-collector"),
		done:      make(chan struct{}),
	}
}

func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				c.publish(ctx, event)
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("events collector started", "buffer_size", cap(c.eventCh))
}

// Track enqueues event without blocking. Events tracked after Close are
// dropped.
func (c *Collector) Track(event AnalysisEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.logger.Warn("analysis event dropped (collector closed)", "analysis_id", event.AnalysisID)
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analysis event dropped (buffer full)", "analysis_id", event.AnalysisID)
	}
}

// Close stops accepting events and waits for the buffer to flush. It is
// safe to call more than once.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) publish(ctx context.Context, event AnalysisEvent) {
	msg := kafka.Message{Key: event.Platform, Type: string(event.Type), Value: event}
	if err := c.publisher.Publish(ctx, msg); err != nil {
		c.logger.Error("failed to publish analysis event", "analysis_id", event.AnalysisID, "error", err)
	}
}

func (c *Collector) drainRemaining() {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.publish(context.Background(), event)
		default:
			return
		}
	}
}
