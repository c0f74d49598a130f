package transfer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shuryanc/cloudsync/internal/model"
)

// Direction distinguishes the two queues an Orchestrator owns.
type Direction int

const (
	Upload Direction = iota
	Download
)

func (d Direction) String() string {
	if d == Download {
		return "download"
	}
	return "upload"
}

// CompleteFunc is invoked once per ticket, successful or not. remoteMD5
// is the cloud side's reported content hash, empty on failure or when
// the provider doesn't return one.
type CompleteFunc func(node *model.LocalNode, ok bool, newHandle uint64, fp model.Fingerprint, remoteMD5 string, err error)

// Ticket is a single in-flight transfer, deduplicated by fingerprint:
// two nodes with identical content enqueued for upload share one
// ticket, satisfying spec.md §4.7's dedup requirement.
type Ticket struct {
	Node        *model.LocalNode
	Fingerprint model.Fingerprint
	attempt     int
}

// Queue runs one direction's transfers against a Pipe with a bounded
// worker pool and exponential backoff on failure.
type Queue struct {
	dir     Direction
	pipe    Pipe
	backoff Backoff
	log     *slog.Logger

	mu       sync.Mutex
	inFlight map[model.Fingerprint]*Ticket
	onComplete []CompleteFunc

	work chan *Ticket
}

// NewQueue starts workers workers draining against pipe.
func NewQueue(dir Direction, pipe Pipe, workers int, log *slog.Logger) *Queue {
	if workers <= 0 {
		workers = 3
	}
	if log == nil {
		log = slog.Default()
	}
	q := &Queue{
		dir:      dir,
		pipe:     pipe,
		backoff:  DefaultBackoff,
		log:      log,
		inFlight: make(map[model.Fingerprint]*Ticket),
		work:     make(chan *Ticket, 256),
	}
	for i := 0; i < workers; i++ {
		go q.runWorker(context.Background())
	}
	return q
}

// OnComplete registers fn to be called when any ticket finishes.
func (q *Queue) OnComplete(fn CompleteFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onComplete = append(q.onComplete, fn)
}

// Enqueue submits node for transfer, returning the existing ticket if
// one with the same fingerprint is already in flight (dedup).
func (q *Queue) Enqueue(node *model.LocalNode, fp model.Fingerprint) *Ticket {
	q.mu.Lock()
	if existing, ok := q.inFlight[fp]; ok {
		q.mu.Unlock()
		return existing
	}
	t := &Ticket{Node: node, Fingerprint: fp}
	q.inFlight[fp] = t
	q.mu.Unlock()

	q.work <- t
	return t
}

func (q *Queue) runWorker(ctx context.Context) {
	for t := range q.work {
		q.process(ctx, t)
	}
}

func (q *Queue) process(ctx context.Context, t *Ticket) {
	var (
		handle uint64
		fp     model.Fingerprint
		remote string
		err    error
	)

	switch q.dir {
	case Upload:
		handle, fp, remote, err = q.pipe.Upload(ctx, t.Node)
	case Download:
		fp, remote, err = q.pipe.Download(ctx, t.Node)
	}

	if err != nil && t.attempt < maxAttempts {
		t.attempt++
		q.log.Warn("transfer failed, will retry", "dir", q.dir, "path", t.Node.Path(), "attempt", t.attempt, "err", err)
		wait := q.backoff.Duration(t.attempt)
		go func() {
			<-time.After(wait)
			q.work <- t
		}()
		return
	}

	q.mu.Lock()
	delete(q.inFlight, t.Fingerprint)
	callbacks := append([]CompleteFunc(nil), q.onComplete...)
	q.mu.Unlock()

	ok := err == nil
	for _, cb := range callbacks {
		cb(t.Node, ok, handle, fp, remote, err)
	}
}

const maxAttempts = 5
