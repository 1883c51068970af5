package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"campus_shuttle/internal/backend"
)

// liveQuery keeps one query result fresh: fetch, deliver, then re-fetch the
// whole result on every change notification. Each fetch takes a sequence
// number and is delivered only if no newer fetch was issued meanwhile, so
// a slow response never overwrites a newer one.
type liveQuery[T any] struct {
	log     *logrus.Entry
	timeout time.Duration
	fetch   func(ctx context.Context) (T, error)
	// degrade turns a fetch error into the value delivered instead.
	degrade func(err error) T

	deliverMu sync.Mutex // serializes onUpdate calls
	mu        sync.Mutex
	started   bool
	closed    bool
	issued    uint64
	onUpdate  func(T)
	unsub     func()
	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

type subscribeFunc func(ctx context.Context, listener func(backend.Change)) (func(), error)

// start delivers the initial fetch before returning, then subscribes.
func (l *liveQuery[T]) start(ctx context.Context, onUpdate func(T), subscribe subscribeFunc) (func(), error) {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	l.started = true
	l.onUpdate = onUpdate
	l.runCtx, l.cancel = context.WithCancel(context.Background())
	l.mu.Unlock()

	l.refresh(ctx)

	unsub, err := subscribe(ctx, l.onChange)
	if err != nil {
		l.log.WithError(err).Warn("Change subscription failed; updates limited to manual refresh")
		l.stop()
		return func() {}, err
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		unsub()
		return func() {}, nil
	}
	l.unsub = unsub
	l.mu.Unlock()

	var once sync.Once
	return func() { once.Do(l.stop) }, nil
}

// onChange runs on the backend's notification goroutine and must not block.
func (l *liveQuery[T]) onChange(c backend.Change) {
	seq, ok := l.begin()
	if !ok {
		return
	}
	l.log.WithFields(logrus.Fields{"table": c.Table, "type": c.Type, "seq": seq}).Debug("Change received, re-fetching")
	go func() {
		defer l.wg.Done()
		l.run(l.runCtx, seq)
	}()
}

// refresh fetches synchronously. onUpdate must not call it.
func (l *liveQuery[T]) refresh(ctx context.Context) {
	seq, ok := l.begin()
	if !ok {
		return
	}
	defer l.wg.Done()
	l.run(ctx, seq)
}

// begin issues the next sequence number and registers the fetch with wg.
func (l *liveQuery[T]) begin() (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || !l.started {
		return 0, false
	}
	l.issued++
	l.wg.Add(1)
	return l.issued, true
}

func (l *liveQuery[T]) run(ctx context.Context, seq uint64) {
	fetchCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	// A stop while the fetch is in flight must abort it as well.
	stopWatch := context.AfterFunc(l.runCtx, cancel)
	defer stopWatch()

	value, err := l.fetch(fetchCtx)
	if err != nil {
		l.log.WithError(err).WithField("seq", seq).Warn("Fetch failed, delivering degraded result")
		value = l.degrade(err)
	}

	l.deliverMu.Lock()
	defer l.deliverMu.Unlock()

	l.mu.Lock()
	current := !l.closed && seq == l.issued
	l.mu.Unlock()
	if !current {
		l.log.WithField("seq", seq).Debug("Dropping superseded fetch result")
		return
	}
	l.onUpdate(value)
}

func (l *liveQuery[T]) stop() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	unsub := l.unsub
	cancel := l.cancel
	l.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
	l.wg.Wait()
}
