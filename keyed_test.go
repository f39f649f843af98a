package wireup

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTWildcard() *tService { return &tService{ID: "wildcard"} }

func wildcardConstructorValue() reflect.Value {
	return reflect.ValueOf(newTWildcard)
}

func TestKeyedServiceResolution(t *testing.T) {
	p := buildProvider(t, func(c Collection) {
		require.NoError(t, c.AddSingleton(newTServiceWithID("redis"), Name("redis")))
		require.NoError(t, c.AddSingleton(newTServiceWithID("memory"), Name("memory")))
	})

	redis := RequireResolveKeyedT(t, p, "redis")
	memory := RequireResolveKeyedT(t, p, "memory")
	assert.Equal(t, "redis", redis.ID)
	assert.Equal(t, "memory", memory.ID)
}

func RequireResolveKeyedT(t *testing.T, p Provider, key any) *tService {
	t.Helper()
	v, err := ResolveKeyed[*tService](p, key)
	require.NoError(t, err)
	return v
}

func TestKeyedServiceMissingKeyFails(t *testing.T) {
	p := buildProvider(t, func(c Collection) {
		require.NoError(t, c.AddSingleton(newTServiceWithID("redis"), Name("redis")))
	})

	_, err := ResolveKeyed[*tService](p, "memory")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestResolveKeyedNilKeyFails(t *testing.T) {
	p := buildProvider(t, func(c Collection) {
		require.NoError(t, c.AddSingleton(newTServiceWithID("redis"), Name("redis")))
	})

	_, err := ResolveKeyed[*tService](p, nil)
	require.ErrorIs(t, err, ErrServiceKeyNil)
}

// S4 — ServiceKey injection: a field tagged servicekey:"true" is filled in
// with the resolving identifier's own key, not resolved as a service.
func TestServiceKeyInjection(t *testing.T) {
	type withKeyParams struct {
		In
		Key any `servicekey:"true"`
	}

	var captured any
	ctor := func(p withKeyParams) *tService {
		captured = p.Key
		return &tService{ID: "keyed"}
	}

	p := buildProvider(t, func(c Collection) {
		require.NoError(t, c.AddSingleton(ctor, Name("alpha")))
	})

	_, err := ResolveKeyed[*tService](p, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", captured)
}

// AnyKey cannot be used directly as a resolution key: it only matches during
// registration lookup, as the fallback for a requested key with no exact
// registration.
func TestAnyKeyNotDirectlyResolvable(t *testing.T) {
	p := buildProvider(t, nil)

	_, err := ResolveKeyed[*tService](p, AnyKey)
	require.Error(t, err)
	var anyKeyErr *KeyedServiceAnyKeyUsedToResolveError
	assert.ErrorAs(t, err, &anyKeyErr)
}

// A descriptor registered under AnyKey satisfies a lookup for any concrete
// key on its service type, falling back only when no exact-key registration
// exists.
func TestAnyKeyWildcardRegistrationFallback(t *testing.T) {
	p := buildProvider(t, func(c Collection) {
		require.NoError(t, c.AddSingleton(newTServiceWithID("exact"), Name("specific")))
	})

	ctorVal := wildcardConstructorValue()
	wildcard := &Descriptor{
		Type:             serviceTypeOf[*tService](),
		Key:              AnyKey,
		Lifetime:         Singleton,
		Constructor:      ctorVal,
		ConstructorType:  ctorVal.Type(),
		MultiReturnIndex: -1,
		ResultIndex:      -1,
	}
	require.NoError(t, p.AddDescriptor(wildcard))

	exact, err := ResolveKeyed[*tService](p, "specific")
	require.NoError(t, err)
	assert.Equal(t, "exact", exact.ID)

	fallback, err := ResolveKeyed[*tService](p, "anything-else")
	require.NoError(t, err)
	assert.Equal(t, "wildcard", fallback.ID)
}
