package logger

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	Capacity     int           // retained events for the diagnostics surface
	TimeInterval time.Duration // flush interval for the optional publisher
	Topic        string        // topic to send batched events
	Publisher    Publisher     // optional sink for batched events
}

// Event is one retained log entry.
type Event struct {
	Time    time.Time              `json:"time"`
	Level   string                 `json:"level"`
	Message string                 `json:"message"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
	Caller  string                 `json:"caller"`
}

// LogCollector keeps a bounded ring of recent warn/error events so they can
// be served back over the diagnostics endpoint, and optionally batches them
// out to a publisher.
type LogCollector struct {
	config  *CollectionConfig
	ring    []Event
	next    int
	filled  bool
	pending []Event
	mutex   sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	ctx, cancel := context.WithCancel(context.Background())

	if config.Capacity <= 0 {
		config.Capacity = 256
	}
	collector := &LogCollector{
		config: config,
		ring:   make([]Event, config.Capacity),
		ctx:    ctx,
		cancel: cancel,
	}

	if config.Publisher != nil && config.TimeInterval > 0 {
		collector.wg.Add(1)
		go collector.periodicFlush()
	}

	return collector
}

func (d *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	e := Event{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Fields:  fields,
		Caller:  caller,
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.ring[d.next] = e
	d.next++
	if d.next == len(d.ring) {
		d.next = 0
		d.filled = true
	}
	if d.config.Publisher != nil {
		d.pending = append(d.pending, e)
	}
}

// Recent returns up to n retained events, newest first.
func (d *LogCollector) Recent(n int) []Event {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	size := d.next
	if d.filled {
		size = len(d.ring)
	}
	if n > size {
		n = size
	}
	out := make([]Event, 0, n)
	for i := 1; i <= n; i++ {
		idx := (d.next - i + len(d.ring)) % len(d.ring)
		out = append(out, d.ring[idx])
	}
	return out
}

func (d *LogCollector) periodicFlush() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.flushPending()
		case <-d.ctx.Done():
			// Final flush before shutdown
			d.flushPending()
			return
		}
	}
}

func (d *LogCollector) flushPending() {
	d.mutex.Lock()
	batch := d.pending
	d.pending = nil
	d.mutex.Unlock()

	if len(batch) == 0 {
		return
	}

	// Send logs in background
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := d.config.Publisher.PublishMessage(ctx, d.config.Topic, batch); err != nil {
			fmt.Printf("Failed to send collected logs: %v\n", err)
		}
	}()
}

func (d *LogCollector) Close() {
	d.cancel()
	d.wg.Wait()
}
