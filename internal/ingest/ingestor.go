// Package ingest drives the receive, transform, persist, acknowledge cycle.
package ingest

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yuanning6/etl-off-sqs/internal/domain"
	"github.com/yuanning6/etl-off-sqs/internal/errs"
	"github.com/yuanning6/etl-off-sqs/internal/idempotency"
)

//go:generate mockgen -destination=../mocks/ingest_mock.go -package=mocks github.com/yuanning6/etl-off-sqs/internal/ingest Queue,Persister

// Queue is the message source. Ack must only be called after the message's
// record is durable.
type Queue interface {
	ReceiveBatch(ctx context.Context, n int, wait time.Duration) ([]domain.QueueMessage, error)
	Ack(ctx context.Context, msg domain.QueueMessage) error
}

// Persister stores one record. inserted is false when the record's key was
// already present.
type Persister interface {
	Persist(ctx context.Context, rec domain.SanitizedLoginRecord) (inserted bool, err error)
}

// State is how far one message got through the pipeline.
type State string

const (
	StateReceived     State = "received"
	StateParsed       State = "parsed"
	StateTransformed  State = "transformed"
	StatePersisted    State = "persisted"
	StateAcknowledged State = "acknowledged"
	StateFailed       State = "failed"

	// StateSkipped marks messages not started because shutdown was requested.
	StateSkipped State = "skipped"
)

// Result is the outcome of one message. Err is set for StateFailed and for a
// StatePersisted message whose ack failed.
type Result struct {
	MessageID string
	State     State
	Inserted  bool
	Err       error
}

type CycleStats struct {
	CycleID    string
	Received   int
	Persisted  int
	Duplicates int
	Acked      int
	AckFailed  int
	Failed     int
	Skipped    int
	Results    []Result
}

type Options struct {
	BatchMaxSize   int
	Wait           time.Duration
	Workers        int
	MessageTimeout time.Duration
	StrictVersion  bool
	Now            func() time.Time
}

type Ingestor struct {
	queue     Queue
	persister Persister
	opts      Options

	mu     sync.Mutex
	last   CycleStats
	lastAt time.Time
}

func NewIngestor(q Queue, p Persister, opts Options) *Ingestor {
	if opts.BatchMaxSize <= 0 {
		opts.BatchMaxSize = 10
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MessageTimeout <= 0 {
		opts.MessageTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Ingestor{queue: q, persister: p, opts: opts}
}

// RunCycle receives one batch and drives every message to acknowledged or
// failed. Per-message failures are logged and counted; only a receive
// failure is returned. Once ctx is done no further message is started, and
// a message already started finishes regardless.
func (ig *Ingestor) RunCycle(ctx context.Context) (CycleStats, error) {
	stats := CycleStats{CycleID: uuid.NewString()}

	msgs, err := ig.queue.ReceiveBatch(ctx, ig.opts.BatchMaxSize, ig.opts.Wait)
	if err != nil {
		log.Printf("[ingest] cycle=%s receive FAILED: err=%v", stats.CycleID, err)
		return stats, err
	}
	stats.Received = len(msgs)
	stats.Results = make([]Result, len(msgs))

	var g errgroup.Group
	g.SetLimit(ig.opts.Workers)
	for i, m := range msgs {
		i, m := i, m
		g.Go(func() error {
			if ctx.Err() != nil {
				stats.Results[i] = Result{MessageID: m.ID, State: StateSkipped}
				return nil
			}
			stats.Results[i] = ig.process(ctx, stats.CycleID, m)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range stats.Results {
		switch r.State {
		case StateAcknowledged:
			stats.Acked++
		case StatePersisted:
			stats.AckFailed++
		case StateFailed:
			stats.Failed++
		case StateSkipped:
			stats.Skipped++
		}
		if r.State == StateAcknowledged || r.State == StatePersisted {
			if r.Inserted {
				stats.Persisted++
			} else {
				stats.Duplicates++
			}
		}
	}
	ig.mu.Lock()
	ig.last, ig.lastAt = stats, ig.opts.Now()
	ig.mu.Unlock()

	if stats.Received > 0 {
		log.Printf("[ingest] cycle=%s done: received=%d persisted=%d duplicates=%d acked=%d ack_failed=%d failed=%d skipped=%d",
			stats.CycleID, stats.Received, stats.Persisted, stats.Duplicates, stats.Acked, stats.AckFailed, stats.Failed, stats.Skipped)
	}
	return stats, nil
}

// process runs one message on a context detached from shutdown so that it
// reaches a final state.
func (ig *Ingestor) process(parent context.Context, cycle string, m domain.QueueMessage) Result {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), ig.opts.MessageTimeout)
	defer cancel()

	res := Result{MessageID: m.ID, State: StateReceived}
	fail := func(err error) Result {
		log.Printf("[ingest] cycle=%s msg=%s FAILED after %s: reason=%s receives=%d err=%v",
			cycle, m.ID, res.State, errs.Reason(err), m.ReceiveCount, err)
		res.State, res.Err = StateFailed, err
		return res
	}

	ev, err := domain.ParseLoginEvent(m.Body)
	if err != nil {
		return fail(err)
	}
	res.State = StateParsed

	key := idempotency.DeriveKey(ev)
	rec, err := domain.Sanitize(ev, key, ig.opts.Now(), domain.SanitizeOptions{StrictVersion: ig.opts.StrictVersion})
	if err != nil {
		return fail(err)
	}
	res.State = StateTransformed

	inserted, err := ig.persister.Persist(ctx, rec)
	if err != nil {
		return fail(err)
	}
	res.State, res.Inserted = StatePersisted, inserted

	if err := ig.queue.Ack(ctx, m); err != nil {
		// Durable already; a redelivery hits the event_key constraint.
		log.Printf("[ingest] cycle=%s msg=%s ack FAILED: err=%v", cycle, m.ID, err)
		res.Err = err
		return res
	}
	res.State = StateAcknowledged
	if !inserted {
		log.Printf("[ingest] cycle=%s msg=%s duplicate key=%s acked", cycle, m.ID, key[:12])
	}
	return res
}

// LastCycle returns the most recent completed cycle and when it finished.
// The zero time means no cycle has completed.
func (ig *Ingestor) LastCycle() (CycleStats, time.Time) {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	return ig.last, ig.lastAt
}

// Run repeats cycles until ctx is done. A full batch is followed straight
// away by the next poll; otherwise the loop sleeps for interval.
func (ig *Ingestor) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		stats, err := ig.RunCycle(ctx)
		if ctx.Err() != nil {
			return
		}
		// receive errors are logged in RunCycle; the queue may come back
		next := interval
		if err == nil && stats.Received >= ig.opts.BatchMaxSize {
			next = 0
		}
		t.Reset(next)
	}
}
