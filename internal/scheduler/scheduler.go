package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/energylab/metronom/pkg/logger"
	"github.com/google/uuid"
)

const maxSleepCap = 60 * time.Second

var (
	ErrEmptyKey     = errors.New("wake request key is empty")
	ErrInvalidCron  = errors.New("invalid cron expression")
	ErrNoOccurrence = errors.New("cron expression has no occurrence within a year")
)

// OnWake is called from the scheduler goroutine when a request fires. It
// must return promptly; long work belongs on its own goroutine.
type OnWake func(WakeRequest)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger used for store failures.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithPendingHook registers fn to receive the heap size after each change.
func WithPendingHook(fn func(int)) Option {
	return func(s *Scheduler) { s.pendingHook = fn }
}

// command is one heap mutation. Adds and removals share a channel so the
// scheduler goroutine applies them in the order the store saw them.
type command struct {
	add   *WakeRequest
	token Token
	key   string
}

// Scheduler fires persisted wake requests at their trigger time.
type Scheduler struct {
	// mu orders store writes with their commands.
	mu          sync.Mutex
	cmds        chan command
	ctx         context.Context
	store       Store
	log         logger.Logger
	pendingHook func(int)
	now         func() time.Time
	done        chan struct{}
}

// New loads the pending requests of store and starts the scheduler
// goroutine. It stops when ctx is cancelled.
func New(ctx context.Context, store Store, onWake OnWake, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		cmds:  make(chan command, 64),
		ctx:   ctx,
		store: store,
		log:   logger.NewNopLogger(),
		now:   time.Now,
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	pending, err := store.Pending()
	if err != nil {
		return nil, fmt.Errorf("load wake requests: %w", err)
	}
	go s.run(pending, onWake)
	return s, nil
}

// Done is closed once the scheduler goroutine has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// ScheduleAt persists a one-shot request for payload at at under key,
// replacing any request pending under the same key.
func (s *Scheduler) ScheduleAt(key string, at time.Time, payload []byte) (Token, error) {
	return s.schedule(WakeRequest{Key: key, TriggerAt: at, Payload: payload})
}

// ScheduleCron persists a recurring request firing at every occurrence
// of the five-field cron expression expr.
func (s *Scheduler) ScheduleCron(key, expr string, payload []byte) (Token, error) {
	next, err := NextCronOccurrence(expr, s.now())
	if err != nil {
		return "", err
	}
	return s.schedule(WakeRequest{Key: key, TriggerAt: next, Payload: payload, CronExpr: expr})
}

func (s *Scheduler) schedule(req WakeRequest) (Token, error) {
	if req.Key == "" {
		return "", ErrEmptyKey
	}
	req.Token = Token(uuid.NewString())
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Put(req); err != nil {
		return "", err
	}
	// A stopped scheduler keeps the stored request for the next start.
	s.send(command{add: &req})
	return req.Token, nil
}

// Cancel removes the request identified by token.
func (s *Scheduler) Cancel(token Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Delete(token); err != nil {
		return err
	}
	s.send(command{token: token})
	return nil
}

// CancelKey removes the request pending under key.
func (s *Scheduler) CancelKey(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.DeleteKey(key); err != nil {
		return err
	}
	s.send(command{key: key})
	return nil
}

func (s *Scheduler) send(c command) {
	select {
	case s.cmds <- c:
	case <-s.ctx.Done():
	}
}

func (s *Scheduler) apply(h *wakeHeap, c command) {
	switch {
	case c.add != nil:
		heapRemoveByKey(h, c.add.Key)
		heapPush(h, *c.add)
	case c.token != "":
		heapRemoveByToken(h, c.token)
	default:
		heapRemoveByKey(h, c.key)
	}
}

func (s *Scheduler) run(initial []WakeRequest, onWake OnWake) {
	defer close(s.done)
	h := &wakeHeap{}
	heap.Init(h)
	for _, r := range initial {
		heapPush(h, r)
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	resetTimer := func() <-chan time.Time {
		if timer != nil {
			timer.Stop()
		}
		if s.pendingHook != nil {
			s.pendingHook(h.Len())
		}
		if h.Len() == 0 {
			return nil
		}
		dur := (*h)[0].TriggerAt.Sub(s.now())
		if dur > maxSleepCap {
			dur = maxSleepCap
		}
		if dur < 0 {
			dur = 0
		}
		timer = time.NewTimer(dur)
		return timer.C
	}

	timerCh := resetTimer()

	for {
		select {
		case <-s.ctx.Done():
			return

		case c := <-s.cmds:
			s.apply(h, c)
			timerCh = resetTimer()

		case <-timerCh:
			// Commands sent before the timer went off win over it.
			s.drain(h)
			now := s.now()
			for h.Len() > 0 && !(*h)[0].TriggerAt.After(now) {
				req := heapPop(h)
				s.fired(h, req, now)
				onWake(req)
			}
			timerCh = resetTimer()
		}
	}
}

func (s *Scheduler) drain(h *wakeHeap) {
	for {
		select {
		case c := <-s.cmds:
			s.apply(h, c)
		default:
			return
		}
	}
}

// fired updates the store for a request about to be delivered. One-shot
// requests are removed; recurring ones move to their next occurrence.
func (s *Scheduler) fired(h *wakeHeap, req WakeRequest, now time.Time) {
	if req.CronExpr == "" {
		if err := s.store.Delete(req.Token); err != nil {
			s.log.Error("scheduler: delete fired request %s: %v", req.Key, err)
		}
		return
	}
	next, err := NextCronOccurrence(req.CronExpr, now)
	if err != nil {
		s.log.Warning("scheduler: recurring request %s ends: %v", req.Key, err)
		if err := s.store.Delete(req.Token); err != nil {
			s.log.Error("scheduler: delete fired request %s: %v", req.Key, err)
		}
		return
	}
	req.TriggerAt = next
	if err := s.store.Put(req); err != nil {
		s.log.Error("scheduler: reschedule %s: %v", req.Key, err)
	}
	heapPush(h, req)
}

// NextCronOccurrence returns the first occurrence of expr strictly after
// start.
func NextCronOccurrence(expr string, start time.Time) (time.Time, error) {
	if !gronx.New().IsValid(expr) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidCron, expr)
	}
	next, err := gronx.NextTickAfter(expr, start, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrNoOccurrence, err)
	}
	if next.After(start.Add(365 * 24 * time.Hour)) {
		return time.Time{}, ErrNoOccurrence
	}
	return next, nil
}
