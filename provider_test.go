package wireup

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func descriptorFor(t *testing.T, ctor any, lifetime Lifetime) *Descriptor {
	t.Helper()
	c := NewCollection()
	var err error
	switch lifetime {
	case Singleton:
		err = c.AddSingleton(ctor)
	case Scoped:
		err = c.AddScoped(ctor)
	default:
		err = c.AddTransient(ctor)
	}
	require.NoError(t, err)
	descriptors := c.ToSlice()
	require.Len(t, descriptors, 1)
	return descriptors[0]
}

func TestResolutionTimeoutFiresOnSlowConstructor(t *testing.T) {
	c := NewCollection()
	require.NoError(t, c.AddSingleton(func() *tService {
		time.Sleep(50 * time.Millisecond)
		return &tService{ID: "slow"}
	}))

	p, err := c.BuildWithOptions(&ProviderOptions{ResolutionTimeout: 5 * time.Millisecond})
	require.NoError(t, err)
	defer p.Close()

	_, err = Resolve[*tService](p)
	require.Error(t, err)
	var timeoutErr *TimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
	assert.True(t, IsTimeout(err))
}

func TestBuildTimeoutFiresOnSlowEagerSingleton(t *testing.T) {
	c := NewCollection()
	require.NoError(t, c.AddSingleton(func() *tService {
		time.Sleep(50 * time.Millisecond)
		return &tService{}
	}, AutoActivate()))

	_, err := c.BuildWithOptions(&ProviderOptions{BuildTimeout: 5 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
}

func TestOnServiceResolvedHookFires(t *testing.T) {
	var resolvedType reflect.Type
	var resolvedValue any

	opts := &ProviderOptions{
		OnServiceResolved: func(serviceType reflect.Type, instance any, duration time.Duration) {
			resolvedType = serviceType
			resolvedValue = instance
		},
	}

	c := NewCollection()
	require.NoError(t, c.AddSingleton(newTService))
	p, err := c.BuildWithOptions(opts)
	require.NoError(t, err)
	defer p.Close()

	v := requireResolve[*tService](t, p)
	assert.Equal(t, serviceTypeOf[*tService](), resolvedType)
	assert.Same(t, v, resolvedValue)
}

// OnServiceError only fires once a call site has been compiled: it reports
// failures from resolveCallSite itself (a constructor returning an error),
// not a missing registration, which fails earlier during call-site lookup.
func TestOnServiceErrorHookFires(t *testing.T) {
	var gotErr error

	opts := &ProviderOptions{
		OnServiceError: func(serviceType reflect.Type, err error) {
			gotErr = err
		},
	}

	c := NewCollection()
	require.NoError(t, c.AddSingleton(newTServiceError))
	p, err := c.BuildWithOptions(opts)
	require.NoError(t, err)
	defer p.Close()

	_, err = Resolve[*tService](p)
	require.Error(t, err)
	require.NotNil(t, gotErr)
	assert.Equal(t, err, gotErr)
}

func TestAutoActivateRunsEagerlyAtBuild(t *testing.T) {
	activated := false
	c := NewCollection()
	require.NoError(t, c.AddSingleton(func() *tService {
		activated = true
		return &tService{}
	}, AutoActivate()))

	p, err := c.Build()
	require.NoError(t, err)
	defer p.Close()

	assert.True(t, activated, "an AutoActivate singleton must be constructed at Build, before any Resolve call")
}

func TestAddDescriptorAfterBuild(t *testing.T) {
	p := buildProvider(t, nil)

	d := descriptorFor(t, newTService, Singleton)
	require.NoError(t, p.AddDescriptor(d))

	v := requireResolve[*tService](t, p)
	assert.Equal(t, "test", v.ID)
}

// instanceDescriptor builds a bare instance Descriptor for instance: the
// only shape OverrideService accepts, since overrides never run a
// constructor.
func instanceDescriptor(instance any) *Descriptor {
	return &Descriptor{
		Type:             reflect.TypeOf(instance),
		IsInstance:       true,
		Instance:         instance,
		MultiReturnIndex: -1,
		ResultIndex:      -1,
	}
}

// An override is scoped to its Guard: resolutions made while it is open see
// the override value, but closing the Guard restores exactly what was
// active before it, including an already-constructed singleton instance.
func TestOverrideServiceScopedByGuard(t *testing.T) {
	p := buildProvider(t, func(c Collection) {
		require.NoError(t, c.AddSingleton(newTServiceWithID("original")))
	})

	original := requireResolve[*tService](t, p)
	assert.Equal(t, "original", original.ID)

	guard, err := p.OverrideService(instanceDescriptor(&tService{ID: "override"}))
	require.NoError(t, err)

	overridden := requireResolve[*tService](t, p)
	assert.Equal(t, "override", overridden.ID)

	require.NoError(t, guard.Close())

	restored := requireResolve[*tService](t, p)
	assert.Equal(t, "original", restored.ID)
	assert.Same(t, original, restored)
}

// Overrides of the same identifier nest like a stack: closing the inner
// Guard uncovers the outer override, not the original registration, until
// that Guard is closed too.
func TestOverrideServiceNestsLikeAStack(t *testing.T) {
	p := buildProvider(t, func(c Collection) {
		require.NoError(t, c.AddSingleton(newTServiceWithID("original")))
	})

	outer, err := p.OverrideService(instanceDescriptor(&tService{ID: "outer"}))
	require.NoError(t, err)
	inner, err := p.OverrideService(instanceDescriptor(&tService{ID: "inner"}))
	require.NoError(t, err)

	assert.Equal(t, "inner", requireResolve[*tService](t, p).ID)

	require.NoError(t, inner.Close())
	assert.Equal(t, "outer", requireResolve[*tService](t, p).ID)

	require.NoError(t, outer.Close())
	assert.Equal(t, "original", requireResolve[*tService](t, p).ID)
}

// Closing the same Guard twice is a no-op, not a double-pop of the stack.
func TestOverrideServiceGuardCloseIsIdempotent(t *testing.T) {
	p := buildProvider(t, func(c Collection) {
		require.NoError(t, c.AddSingleton(newTServiceWithID("original")))
	})

	guard, err := p.OverrideService(instanceDescriptor(&tService{ID: "override"}))
	require.NoError(t, err)

	require.NoError(t, guard.Close())
	require.NoError(t, guard.Close())

	assert.Equal(t, "original", requireResolve[*tService](t, p).ID)
}

// OverrideService rejects a constructor-based descriptor: overrides are
// value-only and never run a constructor.
func TestOverrideServiceRejectsConstructorDescriptor(t *testing.T) {
	p := buildProvider(t, func(c Collection) {
		require.NoError(t, c.AddSingleton(newTServiceWithID("original")))
	})

	_, err := p.OverrideService(descriptorFor(t, newTServiceWithID("ctor"), Singleton))
	require.Error(t, err)
	var invalid *InvalidServiceDescriptorError
	assert.ErrorAs(t, err, &invalid)
}

func TestOperationsFailAfterProviderClosed(t *testing.T) {
	p := buildProvider(t, nil)
	require.NoError(t, p.Close())
	assert.True(t, p.IsDisposed())

	d := descriptorFor(t, newTService, Singleton)

	assert.ErrorIs(t, p.AddDescriptor(d), ErrProviderDisposed)
	_, overrideErr := p.OverrideService(instanceDescriptor(&tService{}))
	assert.ErrorIs(t, overrideErr, ErrProviderDisposed)
}

func TestClosingProviderClosesRootScope(t *testing.T) {
	d := newTDisposable()
	c := NewCollection()
	require.NoError(t, c.AddSingleton(func() *tDisposable { return d }))

	p, err := c.Build()
	require.NoError(t, err)

	_ = requireResolve[*tDisposable](t, p)
	require.NoError(t, p.Close())
	assert.True(t, d.IsClosed())
}

func TestCreateScopeCarriesContext(t *testing.T) {
	type ctxKey struct{}
	p := buildProvider(t, nil)

	ctx := context.WithValue(context.Background(), ctxKey{}, "value")
	s := p.CreateScope(ctx)
	defer s.Close()

	assert.Equal(t, "value", s.Context().Value(ctxKey{}))
}
