package wireup

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/wireup-go/wireup/internal/synca"
)

// Scope controls the lifetime of Scoped services. In a web application a
// scope is typically created per incoming request; database connections and
// similar per-request state are registered Scoped so each request gets its
// own, torn down when the request finishes.
//
//	scope := provider.CreateScope(ctx)
//	defer scope.Close()
//
//	service, err := wireup.Resolve[MyService](scope)
type Scope interface {
	ID() string
	Context() context.Context

	// IsRoot reports whether this is the provider's root scope, where
	// singletons live. Resolving a Scoped service directly from it fails
	// when ProviderOptions.ValidateScopes is on.
	IsRoot() bool

	// RootScope returns the root scope of the provider this scope belongs to.
	RootScope() Scope

	// Parent returns the scope this one was created from, or nil for the
	// root scope.
	Parent() Scope

	// CreateChildScope creates a scope nested under this one.
	CreateChildScope(ctx context.Context) Scope

	Resolve(serviceType reflect.Type) (any, error)
	ResolveKeyed(serviceType reflect.Type, key any) (any, error)
	ResolveGroup(serviceType reflect.Type, group string) ([]any, error)
	ResolveSequence(serviceType reflect.Type) ([]any, error)
	ResolveKeyedSequence(serviceType reflect.Type, key any) ([]any, error)

	IsService(serviceType reflect.Type) bool
	IsKeyedService(serviceType reflect.Type, key any) bool

	IsDisposed() bool
	Close() error
}

// serviceScope is the default Scope implementation.
type serviceScope struct {
	id     string
	ctx    context.Context
	parent *serviceScope
	root   bool

	provider *serviceProvider

	values     *synca.Map[cacheKey, any]
	valueLocks *synca.Map[cacheKey, *synca.Lock]

	disposed      int32
	disposablesMu sync.Mutex
	disposables   []DisposableWithContext
}

func newRootScope(provider *serviceProvider) *serviceScope {
	s := &serviceScope{
		id:         uuid.NewString(),
		ctx:        context.Background(),
		root:       true,
		provider:   provider,
		values:     synca.NewMap[cacheKey, any](),
		valueLocks: synca.NewMap[cacheKey, *synca.Lock](),
	}
	s.ctx = contextWithScope(s.ctx, s)
	return s
}

func (s *serviceScope) ID() string              { return s.id }
func (s *serviceScope) Context() context.Context { return s.ctx }
func (s *serviceScope) IsRoot() bool             { return s.root }

func (s *serviceScope) RootScope() Scope {
	return s.provider.rootScope
}

func (s *serviceScope) Parent() Scope {
	if s.parent == nil {
		return nil
	}
	return s.parent
}

func (s *serviceScope) CreateChildScope(ctx context.Context) Scope {
	if ctx == nil {
		ctx = context.Background()
	}

	child := &serviceScope{
		id:         uuid.NewString(),
		parent:     s,
		provider:   s.provider,
		values:     synca.NewMap[cacheKey, any](),
		valueLocks: synca.NewMap[cacheKey, *synca.Lock](),
	}
	child.ctx = contextWithScope(ctx, child)
	return child
}

func (s *serviceScope) Resolve(serviceType reflect.Type) (any, error) {
	return s.resolveTop(identifier{Type: serviceType})
}

func (s *serviceScope) ResolveKeyed(serviceType reflect.Type, key any) (any, error) {
	if key == nil {
		return nil, ErrServiceKeyNil
	}
	if key == AnyKey {
		return nil, &KeyedServiceAnyKeyUsedToResolveError{ServiceType: serviceType}
	}
	return s.resolveTop(identifier{Type: serviceType, Key: key})
}

func (s *serviceScope) ResolveGroup(serviceType reflect.Type, group string) ([]any, error) {
	v, err := s.resolveTop(identifier{Type: reflect.SliceOf(serviceType), Key: "group:" + group})
	if err != nil {
		return nil, err
	}
	return toAnySlice(v), nil
}

func (s *serviceScope) ResolveSequence(serviceType reflect.Type) ([]any, error) {
	v, err := s.resolveTop(identifier{Type: reflect.SliceOf(serviceType)})
	if err != nil {
		return nil, err
	}
	return toAnySlice(v), nil
}

func (s *serviceScope) ResolveKeyedSequence(serviceType reflect.Type, key any) ([]any, error) {
	v, err := s.resolveTop(identifier{Type: reflect.SliceOf(serviceType), Key: key})
	if err != nil {
		return nil, err
	}
	return toAnySlice(v), nil
}

func (s *serviceScope) resolveTop(id identifier) (any, error) {
	if s.IsDisposed() {
		return nil, ErrScopeDisposed
	}
	// AnyKey is only meaningless as a single-service resolution key; as a
	// Sequence[T] key it enumerates every concrete-keyed registration, so
	// it is rejected here only for non-slice (single-service) identifiers.
	if id.Key == AnyKey && id.Type.Kind() != reflect.Slice {
		return nil, &KeyedServiceAnyKeyUsedToResolveError{ServiceType: id.Type}
	}

	owner := synca.NewOwner()
	site, err := s.provider.factory.getCallSite(id, nil, owner)
	if err != nil {
		return nil, &CannotResolveServiceError{ServiceType: id.Type, Key: id.Key, Cause: err}
	}

	if s.provider.options != nil && s.provider.options.ValidateScopes {
		if err := validateRootResolution(site, s); err != nil {
			return nil, err
		}
	}

	ctx := s.ctx
	var cancel context.CancelFunc
	if s.provider.options != nil && s.provider.options.ResolutionTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.provider.options.ResolutionTimeout)
		defer cancel()
	}

	var value any
	if cancel == nil {
		value, err = s.resolveCallSite(ctx, site, owner)
	} else {
		var v any
		var e error
		done := make(chan struct{})
		go func() { v, e = s.resolveCallSite(ctx, site, owner); close(done) }()
		select {
		case <-done:
			value, err = v, e
		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	if opts := s.provider.options; opts != nil {
		switch {
		case err == nil && opts.OnServiceResolved != nil:
			opts.OnServiceResolved(id.Type, value, 0)
		case err != nil && opts.OnServiceError != nil:
			opts.OnServiceError(id.Type, err)
		}
	}

	if err != nil {
		if ctx.Err() != nil && s.provider.options != nil && s.provider.options.ResolutionTimeout > 0 {
			return nil, &TimeoutError{ServiceType: id.Type, Timeout: s.provider.options.ResolutionTimeout}
		}
		return nil, err
	}
	return value, nil
}

func (s *serviceScope) IsService(serviceType reflect.Type) bool {
	return s.provider.IsService(serviceType)
}

func (s *serviceScope) IsKeyedService(serviceType reflect.Type, key any) bool {
	return s.provider.IsKeyedService(serviceType, key)
}

func (s *serviceScope) IsDisposed() bool {
	return atomic.LoadInt32(&s.disposed) != 0
}

// captureDisposable records value for teardown when the scope that cached
// it closes, skipping services the descriptor itself marks as not owned
// (instances registered directly are never torn down by the container).
func (s *serviceScope) captureDisposable(value any, d *Descriptor) {
	if d != nil && d.IsInstance {
		return
	}
	if value == any(s) {
		return
	}

	disposable := asDisposable(value)
	hasFinalize := d != nil && d.Finalize != nil
	if disposable == nil && !hasFinalize {
		return
	}

	s.disposablesMu.Lock()
	defer s.disposablesMu.Unlock()
	if hasFinalize {
		s.disposables = append(s.disposables, &finalizeDisposable{finalize: d.Finalize, value: value})
		return
	}
	s.disposables = append(s.disposables, disposable)
}

// Close tears down every disposable this scope cached, in reverse
// (LIFO) order.
func (s *serviceScope) Close() error {
	if !atomic.CompareAndSwapInt32(&s.disposed, 0, 1) {
		return nil
	}

	s.disposablesMu.Lock()
	toDispose := make([]DisposableWithContext, len(s.disposables))
	copy(toDispose, s.disposables)
	s.disposables = nil
	s.disposablesMu.Unlock()

	var errs []error
	for i := len(toDispose) - 1; i >= 0; i-- {
		if err := toDispose[i].Close(s.ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// finalizeDisposable adapts a Descriptor's FinalizeFunc to
// DisposableWithContext.
type finalizeDisposable struct {
	finalize FinalizeFunc
	value    any
}

func (f *finalizeDisposable) Close(ctx context.Context) error {
	return f.finalize(ctx, f.value)
}

// scopeContextKey is the context.Context key a scope stores itself under.
type scopeContextKey struct{}

func contextWithScope(ctx context.Context, s *serviceScope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, s)
}

// ScopeFromContext returns the scope a context carries, as set by
// Scope.Context or CreateScope/CreateChildScope.
func ScopeFromContext(ctx context.Context) (Scope, error) {
	s, ok := ctx.Value(scopeContextKey{}).(*serviceScope)
	if !ok || s == nil {
		return nil, ErrScopeNotInContext
	}
	if s.IsDisposed() {
		return nil, ErrScopeDisposed
	}
	return s, nil
}

func toAnySlice(v any) []any {
	rv := reflect.ValueOf(v)
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
