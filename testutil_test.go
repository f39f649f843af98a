package wireup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// ============================================================================
// Shared test types
// ============================================================================

// tService is a basic service for testing.
type tService struct {
	ID    string
	Value int
}

// tDependency is a basic dependency for testing.
type tDependency struct {
	Name string
}

// tServiceWithDeps demonstrates constructor injection.
type tServiceWithDeps struct {
	Svc *tService
	Dep *tDependency
}

// tInterface is a basic interface for As()/keyed-interface testing.
type tInterface interface {
	GetID() string
}

func (s *tService) GetID() string { return s.ID }

// tDisposable implements Disposable for lifecycle testing.
type tDisposable struct {
	Name   string
	closed atomic.Bool
	mu     sync.Mutex
	err    error
}

func (d *tDisposable) Close() error {
	if d.closed.Swap(true) {
		return errors.New("already closed")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

func (d *tDisposable) IsClosed() bool { return d.closed.Load() }

// tCtxDisposable implements DisposableWithContext.
type tCtxDisposable struct {
	Name   string
	closed atomic.Bool
}

func (d *tCtxDisposable) Close(ctx context.Context) error {
	d.closed.Store(true)
	return nil
}

// tCircularA/tCircularB exercise cycle detection.
type tCircularA struct{ B *tCircularB }
type tCircularB struct{ A *tCircularA }

func newTCircularA(b *tCircularB) *tCircularA { return &tCircularA{B: b} }
func newTCircularB(a *tCircularA) *tCircularB { return &tCircularB{A: a} }

// tParams demonstrates parameter-object injection.
type tParams struct {
	In

	Svc      *tService
	Dep      *tDependency `optional:"true"`
	Named    *tService    `name:"named"`
	Services []*tService  `group:"services"`
}

// tResult demonstrates result-object registration.
type tResult struct {
	Out

	Primary   *tService
	Secondary *tService `name:"secondary"`
	Grouped   *tService `group:"services"`
}

var tInstanceCounter atomic.Int64

func newTService() *tService {
	return &tService{ID: "test", Value: 42}
}

func newTServiceWithID(id string) func() *tService {
	return func() *tService { return &tService{ID: id, Value: 42} }
}

func newTDependency() *tDependency {
	return &tDependency{Name: "dep"}
}

func newTServiceWithDeps(svc *tService, dep *tDependency) *tServiceWithDeps {
	return &tServiceWithDeps{Svc: svc, Dep: dep}
}

func newTDisposable() *tDisposable {
	return &tDisposable{Name: "disposable"}
}

func newTTransient() *tTransient {
	return &tTransient{Instance: int(tInstanceCounter.Add(1))}
}

type tTransient struct {
	Instance int
}

func newTServiceError() (*tService, error) {
	return nil, errors.New("constructor error")
}

func newTMultiReturn() (*tService, *tDependency) {
	return &tService{ID: "multi", Value: 1}, &tDependency{Name: "multi-dep"}
}

func newTMultiReturnWithError() (*tService, *tDependency, error) {
	return &tService{ID: "multi-err", Value: 2}, &tDependency{Name: "multi-err-dep"}, nil
}

func newTResult() tResult {
	return tResult{
		Primary:   &tService{ID: "primary", Value: 1},
		Secondary: &tService{ID: "secondary", Value: 2},
		Grouped:   &tService{ID: "grouped", Value: 3},
	}
}

func newTFromParams(p tParams) *tServiceWithDeps {
	var depName string
	if p.Dep != nil {
		depName = p.Dep.Name
	}
	return &tServiceWithDeps{Svc: p.Svc, Dep: &tDependency{Name: depName}}
}

// ============================================================================
// Test helpers
// ============================================================================

// buildProvider builds a Collection mutated by mutate and registers cleanup.
func buildProvider(t *testing.T, mutate func(Collection)) Provider {
	t.Helper()
	c := NewCollection()
	if mutate != nil {
		mutate(c)
	}
	p, err := c.Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// buildScope builds a provider and a child scope of it, registering cleanup
// for both.
func buildScope(t *testing.T, mutate func(Collection)) Scope {
	t.Helper()
	p := buildProvider(t, mutate)
	s := p.CreateScope(context.Background())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func requireResolve[T any](t *testing.T, r Resolving) T {
	t.Helper()
	v, err := Resolve[T](r)
	require.NoError(t, err)
	return v
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %v", timeout)
}
