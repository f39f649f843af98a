package wireup

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A multi-return constructor registers one Descriptor per non-error return
// value, each resolvable independently.
func TestMultiReturnConstructorRegistersBothValues(t *testing.T) {
	p := buildProvider(t, func(c Collection) {
		require.NoError(t, c.AddSingleton(newTMultiReturn))
	})

	svc := requireResolve[*tService](t, p)
	dep := requireResolve[*tDependency](t, p)
	assert.Equal(t, "multi", svc.ID)
	assert.Equal(t, "multi-dep", dep.Name)
}

// A Singleton multi-return constructor runs exactly once no matter how many
// of its sibling return values get resolved: both views share one producer
// call site.
func TestMultiReturnConstructorRunsOnce(t *testing.T) {
	var calls int32
	ctor := func() (*tService, *tDependency) {
		atomic.AddInt32(&calls, 1)
		return &tService{ID: "shared"}, &tDependency{Name: "shared"}
	}

	p := buildProvider(t, func(c Collection) {
		require.NoError(t, c.AddSingleton(ctor))
	})

	_ = requireResolve[*tService](t, p)
	_ = requireResolve[*tDependency](t, p)
	_ = requireResolve[*tService](t, p)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestMultiReturnConstructorWithErrorPropagates(t *testing.T) {
	p := buildProvider(t, func(c Collection) {
		require.NoError(t, c.AddSingleton(newTMultiReturnWithError))
	})

	svc := requireResolve[*tService](t, p)
	dep := requireResolve[*tDependency](t, p)
	assert.Equal(t, "multi-err", svc.ID)
	assert.Equal(t, "multi-err-dep", dep.Name)
}

// An Out result-object constructor registers each field as its own service,
// honoring name/group tags on the individual fields.
func TestOutResultObjectRegistersEachField(t *testing.T) {
	p := buildProvider(t, func(c Collection) {
		require.NoError(t, c.AddSingleton(newTResult))
	})

	primary := requireResolve[*tService](t, p)
	assert.Equal(t, "primary", primary.ID)

	secondary, err := ResolveKeyed[*tService](p, "secondary")
	require.NoError(t, err)
	assert.Equal(t, "secondary", secondary.ID)

	grouped, err := ResolveGroup[*tService](p, "services")
	require.NoError(t, err)
	require.Len(t, grouped, 1)
	assert.Equal(t, "grouped", grouped[0].ID)
}

// All three fields of a Singleton Out result-object share one underlying
// constructor invocation.
func TestOutResultObjectConstructorRunsOnce(t *testing.T) {
	var calls int32
	ctor := func() tResult {
		atomic.AddInt32(&calls, 1)
		return newTResult()
	}

	p := buildProvider(t, func(c Collection) {
		require.NoError(t, c.AddSingleton(ctor))
	})

	_ = requireResolve[*tService](t, p)
	_, err := ResolveKeyed[*tService](p, "secondary")
	require.NoError(t, err)
	_, err = ResolveGroup[*tService](p, "services")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

// A Transient multi-return constructor produces a fresh pair on every
// resolution of either sibling.
func TestMultiReturnTransientFreshEachTime(t *testing.T) {
	var calls int32
	ctor := func() (*tService, *tDependency) {
		n := atomic.AddInt32(&calls, 1)
		return &tService{ID: "multi"}, &tDependency{Name: string(rune('a' + n))}
	}

	p := buildProvider(t, func(c Collection) {
		require.NoError(t, c.AddTransient(ctor))
	})

	d1 := requireResolve[*tDependency](t, p)
	d2 := requireResolve[*tDependency](t, p)
	assert.NotEqual(t, d1.Name, d2.Name)
}
