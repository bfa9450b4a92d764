// Package uow defines the atomic unit used by multi-step mutations such as
// checkout and registration.
package uow

import (
	"context"
	"sync"
)

// UnitOfWork runs fn so that every store mutation made through the context
// it receives either commits together or not at all. Implementations join
// an already running unit when ctx carries one.
type UnitOfWork interface {
	RunAtomically(ctx context.Context, fn func(ctx context.Context) error) error
}

// Func adapts a plain function to UnitOfWork. The outermost call runs hooks
// registered with AfterCommit once f succeeds.
type Func func(ctx context.Context, fn func(ctx context.Context) error) error

// RunAtomically implements UnitOfWork.
func (f Func) RunAtomically(ctx context.Context, fn func(ctx context.Context) error) error {
	if InProgress(ctx) {
		return f(ctx, fn)
	}
	unitCtx, commit := WithCommitHooks(ctx)
	if err := f(unitCtx, fn); err != nil {
		return err
	}
	commit(ctx)
	return nil
}

// Passthrough runs fn directly without any atomicity. It suits stores that
// have no transactions and unit tests that do not exercise rollback.
var Passthrough UnitOfWork = Func(func(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
})

type hooksKey struct{}

type hooks struct {
	mu  sync.Mutex
	fns []func(ctx context.Context)
}

// WithCommitHooks starts collecting AfterCommit hooks in the returned
// context. The caller invokes commit after the outermost unit commits;
// hooks of a failed unit are simply dropped.
func WithCommitHooks(ctx context.Context) (_ context.Context, commit func(ctx context.Context)) {
	h := &hooks{}
	return context.WithValue(ctx, hooksKey{}, h), func(ctx context.Context) {
		h.mu.Lock()
		fns := h.fns
		h.fns = nil
		h.mu.Unlock()
		for _, fn := range fns {
			fn(ctx)
		}
	}
}

// InProgress reports whether ctx belongs to a running unit.
func InProgress(ctx context.Context) bool {
	_, ok := ctx.Value(hooksKey{}).(*hooks)
	return ok
}

// AfterCommit defers fn until the outermost unit carried by ctx commits.
// Outside a unit fn runs immediately.
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	h, ok := ctx.Value(hooksKey{}).(*hooks)
	if !ok {
		fn(ctx)
		return
	}
	h.mu.Lock()
	h.fns = append(h.fns, fn)
	h.mu.Unlock()
}
