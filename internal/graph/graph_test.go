package graph

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	typ  reflect.Type
	key  any
	deps []NodeKey
}

func (p fakeProvider) GetType() reflect.Type        { return p.typ }
func (p fakeProvider) GetKey() any                  { return p.key }
func (p fakeProvider) GetDependencyKeys() []NodeKey { return p.deps }

var (
	typA = reflect.TypeOf(struct{ A int }{})
	typB = reflect.TypeOf(struct{ B int }{})
	typC = reflect.TypeOf(struct{ C int }{})
)

func TestDependencyGraph_DetectCycles_NoCycle(t *testing.T) {
	g := NewDependencyGraph()
	g.AddProvider(fakeProvider{typ: typA, deps: []NodeKey{{Type: typB}}})
	g.AddProvider(fakeProvider{typ: typB, deps: []NodeKey{{Type: typC}}})
	g.AddProvider(fakeProvider{typ: typC})

	assert.NoError(t, g.DetectCycles())
}

func TestDependencyGraph_DetectCycles_DirectCycle(t *testing.T) {
	g := NewDependencyGraph()
	g.AddProvider(fakeProvider{typ: typA, deps: []NodeKey{{Type: typB}}})
	g.AddProvider(fakeProvider{typ: typB, deps: []NodeKey{{Type: typA}}})

	err := g.DetectCycles()
	require.Error(t, err)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.GreaterOrEqual(t, len(cycleErr.Chain), 2)
}

func TestDependencyGraph_DetectCycles_IndirectCycle(t *testing.T) {
	g := NewDependencyGraph()
	g.AddProvider(fakeProvider{typ: typA, deps: []NodeKey{{Type: typB}}})
	g.AddProvider(fakeProvider{typ: typB, deps: []NodeKey{{Type: typC}}})
	g.AddProvider(fakeProvider{typ: typC, deps: []NodeKey{{Type: typA}}})

	err := g.DetectCycles()
	require.Error(t, err)
	var cycleErr *CycleError
	assert.True(t, errors.As(err, &cycleErr))
}

func TestDependencyGraph_DetectCycles_SelfDependency(t *testing.T) {
	g := NewDependencyGraph()
	g.AddProvider(fakeProvider{typ: typA, deps: []NodeKey{{Type: typA}}})

	err := g.DetectCycles()
	require.Error(t, err)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
}

// A dependency referenced only as a target (never itself added via
// AddProvider) must not be mistaken for part of a cycle.
func TestDependencyGraph_DetectCycles_DanglingDependencyIsFine(t *testing.T) {
	g := NewDependencyGraph()
	g.AddProvider(fakeProvider{typ: typA, deps: []NodeKey{{Type: typB}}})

	assert.NoError(t, g.DetectCycles())
}

func TestNodeKey_String_WithAndWithoutKey(t *testing.T) {
	plain := NodeKey{Type: typA}
	keyed := NodeKey{Type: typA, Key: "redis"}

	assert.Equal(t, typA.String(), plain.String())
	assert.Contains(t, keyed.String(), "redis")
}

func TestCycleError_ErrorMessageJoinsChain(t *testing.T) {
	err := &CycleError{Chain: []NodeKey{{Type: typA}, {Type: typB}, {Type: typA}}}
	assert.Contains(t, err.Error(), "->")
	assert.Contains(t, err.Error(), "circular dependency")
}
