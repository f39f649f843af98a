// Package graph provides build-time cycle detection over a service
// registry's declared dependencies, independent of the runtime call-site
// cache the resolver uses for actual resolution.
package graph

import (
	"fmt"
	"reflect"
)

// Provider is whatever a registry entry is: a type, an optional key, and
// the list of dependency node keys it requires.
type Provider interface {
	GetType() reflect.Type
	GetKey() any
	GetDependencyKeys() []NodeKey
}

// NodeKey identifies a node: a service type plus its optional key.
type NodeKey struct {
	Type reflect.Type
	Key  any
}

func (k NodeKey) String() string {
	if k.Key != nil {
		return fmt.Sprintf("%s[%v]", k.Type, k.Key)
	}
	return k.Type.String()
}

// CycleError reports a detected circular dependency as the ordered chain of
// nodes that close the loop.
type CycleError struct {
	Chain []NodeKey
}

func (e *CycleError) Error() string {
	s := ""
	for i, k := range e.Chain {
		if i > 0 {
			s += " -> "
		}
		s += k.String()
	}
	return fmt.Sprintf("circular dependency detected: %s", s)
}

// DependencyGraph is a directed graph of service dependencies, built once
// at Collection.Build time.
type DependencyGraph struct {
	edges map[NodeKey][]NodeKey
}

// NewDependencyGraph creates an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{edges: make(map[NodeKey][]NodeKey)}
}

// AddProvider records a node's outgoing dependency edges. It does not
// itself check for cycles; call DetectCycles once every provider has been
// added.
func (g *DependencyGraph) AddProvider(p Provider) {
	key := NodeKey{Type: p.GetType(), Key: p.GetKey()}
	g.edges[key] = append(g.edges[key], p.GetDependencyKeys()...)
	for _, dep := range p.GetDependencyKeys() {
		if _, ok := g.edges[dep]; !ok {
			g.edges[dep] = nil
		}
	}
}

// DetectCycles runs DFS from every node and returns the first cycle found.
func (g *DependencyGraph) DetectCycles() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[NodeKey]int, len(g.edges))
	var stack []NodeKey

	var visit func(n NodeKey) error
	visit = func(n NodeKey) error {
		color[n] = gray
		stack = append(stack, n)

		for _, dep := range g.edges[n] {
			switch color[dep] {
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			case gray:
				chain := append([]NodeKey{}, stack...)
				chain = append(chain, dep)
				start := 0
				for i, k := range chain {
					if k == dep {
						start = i
						break
					}
				}
				return &CycleError{Chain: chain[start:]}
			}
		}

		stack = stack[:len(stack)-1]
		color[n] = black
		return nil
	}

	for n := range g.edges {
		if color[n] == white {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}
