package wireup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorSingletonProduceAndFinalize(t *testing.T) {
	var finalizedWith *tService

	c := NewCollection()
	require.NoError(t, AddGeneratorSingleton(c, GeneratorFactory[*tService]{
		Produce: func(ctx context.Context, s Scope) (*tService, error) {
			return &tService{ID: "generated"}, nil
		},
		Finalize: func(ctx context.Context, v *tService) error {
			finalizedWith = v
			return nil
		},
	}))

	p, err := c.Build()
	require.NoError(t, err)

	v := requireResolve[*tService](t, p)
	assert.Equal(t, "generated", v.ID)

	require.NoError(t, p.Close())
	assert.Same(t, v, finalizedWith)
}

// A Scoped generator produces once per scope and finalizes when that scope
// (not the provider) closes.
func TestGeneratorScopedProducesPerScope(t *testing.T) {
	var finalizeCount int

	c := NewCollection()
	require.NoError(t, AddGeneratorScoped(c, GeneratorFactory[*tService]{
		Produce: func(ctx context.Context, s Scope) (*tService, error) {
			return &tService{ID: s.ID()}, nil
		},
		Finalize: func(ctx context.Context, v *tService) error {
			finalizeCount++
			return nil
		},
	}))

	p, err := c.Build()
	require.NoError(t, err)
	defer p.Close()

	s1 := p.CreateScope(context.Background())
	s2 := p.CreateScope(context.Background())

	v1 := requireResolve[*tService](t, s1)
	v2 := requireResolve[*tService](t, s2)
	assert.NotEqual(t, v1.ID, v2.ID)

	require.NoError(t, s1.Close())
	assert.Equal(t, 1, finalizeCount)
	require.NoError(t, s2.Close())
	assert.Equal(t, 2, finalizeCount)
}

// A Transient generator produces a fresh value on every resolution, each
// finalized independently when its owning scope closes.
func TestGeneratorTransientProducesEveryResolution(t *testing.T) {
	var produced int
	var finalized []int

	c := NewCollection()
	require.NoError(t, AddGeneratorTransient(c, GeneratorFactory[*tTransient]{
		Produce: func(ctx context.Context, s Scope) (*tTransient, error) {
			produced++
			return &tTransient{Instance: produced}, nil
		},
		Finalize: func(ctx context.Context, v *tTransient) error {
			finalized = append(finalized, v.Instance)
			return nil
		},
	}))

	p, err := c.Build()
	require.NoError(t, err)
	defer p.Close()

	s := p.CreateScope(context.Background())
	a := requireResolve[*tTransient](t, s)
	b := requireResolve[*tTransient](t, s)
	assert.NotEqual(t, a.Instance, b.Instance)

	require.NoError(t, s.Close())
	assert.ElementsMatch(t, []int{a.Instance, b.Instance}, finalized)
}

// A generator factory with no Finalize is legal; nothing runs on teardown.
func TestGeneratorWithoutFinalizeIsLegal(t *testing.T) {
	p := buildProvider(t, func(c Collection) {
		require.NoError(t, AddGeneratorSingleton(c, GeneratorFactory[*tService]{
			Produce: func(ctx context.Context, s Scope) (*tService, error) {
				return &tService{ID: "no-finalize"}, nil
			},
		}))
	})

	v := requireResolve[*tService](t, p)
	assert.Equal(t, "no-finalize", v.ID)
}

func TestGeneratorNilProduceRejected(t *testing.T) {
	c := NewCollection()
	err := AddGeneratorSingleton(c, GeneratorFactory[*tService]{})
	require.Error(t, err)
	var invalid *InvalidServiceDescriptorError
	assert.ErrorAs(t, err, &invalid)
}

// A generator's Produce func can inject the built-in Scope parameter, the
// same as an ordinary constructor.
func TestGeneratorProduceReceivesBuiltins(t *testing.T) {
	var gotScope Scope

	c := NewCollection()
	require.NoError(t, AddGeneratorScoped(c, GeneratorFactory[*tService]{
		Produce: func(ctx context.Context, s Scope) (*tService, error) {
			gotScope = s
			return &tService{}, nil
		},
	}))

	p, err := c.Build()
	require.NoError(t, err)
	defer p.Close()

	s := p.CreateScope(context.Background())
	defer s.Close()
	_ = requireResolve[*tService](t, s)
	assert.Same(t, s, gotScope)
}
