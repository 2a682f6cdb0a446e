package conversation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fakto/crmbot/core/logger"
	"log/slog"
)

// ErrEngineClosed is returned when an event is submitted after shutdown.
var ErrEngineClosed = errors.New("conversation: engine closed")

const (
	defaultIdleTimeout = 300 * time.Second
	defaultQueueSize   = 32

	// submitRetryInterval paces Submit's retries while a session queue
	// is saturated.
	submitRetryInterval = 5 * time.Millisecond
)

// Options configures a conversation engine.
type Options struct {
	Rules  *RuleSet
	Store  *Store
	Sender Sender
	// IdleTimeout is the wall-clock window after which a silent session
	// is expired. Zero selects the 300s default.
	IdleTimeout time.Duration
	// QueueSize bounds the per-session inbound queue.
	QueueSize int
}

// Engine routes inbound events through the rule set. Events for the same
// session are processed strictly in arrival order on a dedicated
// goroutine; distinct sessions dispatch concurrently, so a blocking
// remote call in one conversation never stalls another.
type Engine struct {
	rules     *RuleSet
	store     *Store
	sender    Sender
	timeout   time.Duration
	queueSize int

	mu      sync.Mutex
	runners map[int64]*runner
	closed  chan struct{}
	wg      sync.WaitGroup
}

type runner struct {
	ch      chan submission
	closing bool
}

type submission struct {
	ctx context.Context
	ev  Event
}

// NewEngine constructs an engine from options, applying defaults.
func NewEngine(opts Options) *Engine {
	if opts.Rules == nil {
		opts.Rules = NewRuleSet()
	}
	if opts.Store == nil {
		opts.Store = NewStore()
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	return &Engine{
		rules:     opts.Rules,
		store:     opts.Store,
		sender:    opts.Sender,
		timeout:   opts.IdleTimeout,
		queueSize: opts.QueueSize,
		runners:   make(map[int64]*runner),
		closed:    make(chan struct{}),
	}
}

// Store exposes the session store backing this engine.
func (e *Engine) Store() *Store {
	return e.store
}

// Submit hands an inbound event to the session's serial queue, creating
// the queue on first contact. It blocks only when the queue is full.
func (e *Engine) Submit(ctx context.Context, chatID int64, ev Event) error {
	select {
	case <-e.closed:
		return ErrEngineClosed
	default:
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sub := submission{ctx: ctx, ev: ev}

	for {
		e.mu.Lock()
		r, ok := e.runners[chatID]
		if !ok {
			r = &runner{ch: make(chan submission, e.queueSize)}
			e.runners[chatID] = r
			e.wg.Add(1)
			go e.runLoop(chatID, r)
		}
		if r.closing {
			e.mu.Unlock()
			continue
		}
		select {
		case r.ch <- sub:
			e.mu.Unlock()
			return nil
		default:
		}
		e.mu.Unlock()

		// Queue saturated: wait briefly and retry through the locked
		// path. Sends must happen under the lock, where closing is
		// verified. A send outside it could land in a runner that
		// already performed its final drain, stranding the event.
		wait := time.NewTimer(submitRetryInterval)
		select {
		case <-wait.C:
		case <-ctx.Done():
			wait.Stop()
			return ctx.Err()
		case <-e.closed:
			wait.Stop()
			return ErrEngineClosed
		}
	}
}

// Close stops accepting events and waits for in-flight dispatches.
func (e *Engine) Close() {
	e.mu.Lock()
	select {
	case <-e.closed:
		e.mu.Unlock()
		return
	default:
	}
	close(e.closed)
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Engine) runLoop(id int64, r *runner) {
	defer e.wg.Done()
	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	for {
		select {
		case sub := <-r.ch:
			e.process(sub.ctx, id, sub.ev)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(e.timeout)
		case <-timer.C:
			if e.store.Active(id) {
				e.process(context.Background(), id, Event{Kind: EventTimeout})
			}
			e.mu.Lock()
			if len(r.ch) == 0 {
				r.closing = true
				delete(e.runners, id)
				e.mu.Unlock()
				// Drain anything that raced in before closing was visible.
				for {
					select {
					case sub := <-r.ch:
						e.process(sub.ctx, id, sub.ev)
					default:
						return
					}
				}
			}
			e.mu.Unlock()
			timer.Reset(e.timeout)
		case <-e.closed:
			return
		}
	}
}

// process runs one dispatch to completion: rule resolution, handler
// execution, state bookkeeping, then the ordered effects flush.
func (e *Engine) process(ctx context.Context, id int64, ev Event) {
	sess := e.store.Get(id)
	from := sess.State

	handler, matched := e.rules.Resolve(from, ev)
	fx := &Effects{}
	next := from
	var err error
	if matched {
		next, err = handler(ctx, ev, sess, fx)
		if err != nil {
			logger.Warn(ctx, "conversation", "dispatch.handler",
				slog.Int64("chat_id", id),
				slog.String("state", string(from)),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
			if next == "" {
				next = from
			}
		}
	} else if ev.Kind != EventTimeout {
		logger.Debug(ctx, "conversation", "dispatch.unmatched",
			slog.Int64("chat_id", id),
			slog.String("state", string(from)),
		)
	}

	// Timeout is an implicit transition out of every non-terminal
	// state: whatever a timeout rule decided, the session ends up idle
	// with only the whitelisted fields left.
	if ev.Kind == EventTimeout {
		e.store.Clear(id, DefaultKeep...)
		next = StateIdle
	}

	switch {
	case next == StateEnd:
		e.store.Destroy(id)
	case next != from:
		e.store.SetState(id, next)
		logger.Debug(ctx, "conversation", "dispatch.transition",
			slog.Int64("chat_id", id),
			slog.String("state", string(from)),
			slog.String("next_state", string(next)),
		)
	}

	if next != StateEnd {
		if pending := e.store.Get(id).ActivePending(); len(pending) > 1 {
			logger.Error(ctx, "conversation", "dispatch.pending_invariant",
				slog.Int64("chat_id", id),
				slog.String("state", string(next)),
				slog.Int("pending_count", len(pending)),
			)
		}
	}

	e.flush(ctx, id, fx)
}

func (e *Engine) flush(ctx context.Context, id int64, fx *Effects) {
	if e.sender == nil {
		return
	}
	for _, msg := range fx.queue {
		if err := e.sender.Send(ctx, id, msg); err != nil {
			logger.Warn(ctx, "conversation", "flush.send",
				slog.Int64("chat_id", id),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
		}
	}
}
