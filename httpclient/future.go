package httpclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/httpkit/logger"
)

// Future is the pending result of an asynchronous send. It resolves
// exactly once; every observer attached before or after sees that result.
// A panicking observer is recovered and logged; the remaining observers
// still run.
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	log  *logger.Logger

	mu        sync.Mutex
	value     T
	err       error
	observers []func(T, error)
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{}), log: logger.Default()}
}

// loggedFuture reports observer panics on l.
func loggedFuture[T any](f *Future[T], l *logger.Logger) *Future[T] {
	f.log = l
	return f
}

func failedFuture[T any](err error) *Future[T] {
	f := newFuture[T]()
	var zero T
	f.resolve(zero, err)
	return f
}

// resolve stores the result and notifies observers. Only the first call
// has an effect; it reports whether this call won.
func (f *Future[T]) resolve(v T, err error) bool {
	won := false
	f.once.Do(func() {
		won = true
		f.mu.Lock()
		f.value, f.err = v, err
		observers := f.observers
		f.observers = nil
		close(f.done)
		f.mu.Unlock()

		for _, fn := range observers {
			f.notify(fn, v, err)
		}
	})
	return won
}

// Done is closed once the future resolves.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Result returns the outcome without blocking. ok is false while pending.
func (f *Future[T]) Result() (v T, err error, ok bool) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.value, f.err, true
	default:
		return v, nil, false
	}
}

// Get blocks until the future resolves or ctx ends. An ended ctx yields a
// wait-timeout error; the underlying request keeps running.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		v, err, _ := f.Result()
		return v, err
	case <-ctx.Done():
		var zero T
		return zero, &Error{Code: ErrCodeWaitTimeout, Message: "wait abandoned: " + ctx.Err().Error(), Err: ctx.Err()}
	}
}

// Wait blocks up to timeout. A non-positive timeout waits until resolution.
func (f *Future[T]) Wait(timeout time.Duration) (T, error) {
	if timeout <= 0 {
		<-f.done
		v, err, _ := f.Result()
		return v, err
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-f.done:
		v, err, _ := f.Result()
		return v, err
	case <-t.C:
		var zero T
		return zero, &Error{Code: ErrCodeWaitTimeout, Message: "no response within " + timeout.String()}
	}
}

// OnComplete registers fn to run once with the result. If the future has
// already resolved fn runs immediately on the caller's goroutine;
// otherwise it runs on the goroutine that resolves the future.
func (f *Future[T]) OnComplete(fn func(T, error)) {
	f.mu.Lock()
	select {
	case <-f.done:
		v, err := f.value, f.err
		f.mu.Unlock()
		f.notify(fn, v, err)
	default:
		f.observers = append(f.observers, fn)
		f.mu.Unlock()
	}
}

func (f *Future[T]) notify(fn func(T, error), v T, err error) {
	defer func() {
		if r := recover(); r != nil && f.log != nil {
			f.log.Error("completion observer panicked", logger.Fields(
				logger.FieldError, fmt.Sprint(r),
			))
		}
	}()
	fn(v, err)
}
