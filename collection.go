package wireup

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/wireup-go/wireup/internal/graph"
	"github.com/wireup-go/wireup/internal/reflection"
)

// Collection is the builder used to register services before producing a
// Provider. It is not safe for concurrent use: populate it from a single
// goroutine, then Build it once.
//
//	c := wireup.NewCollection()
//	c.AddSingleton(newLogger)
//	c.AddScoped(newDatabase)
//
//	provider, err := c.Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
type Collection interface {
	Build() (Provider, error)
	BuildWithOptions(options *ProviderOptions) (Provider, error)

	AddModules(modules ...ModuleOption) error

	AddSingleton(service any, opts ...AddOption) error
	AddScoped(service any, opts ...AddOption) error
	AddTransient(service any, opts ...AddOption) error

	AddSingletonInstance(instance any, opts ...AddOption) error

	HasService(serviceType reflect.Type) bool
	HasKeyedService(serviceType reflect.Type, key any) bool

	Remove(serviceType reflect.Type)
	RemoveKeyed(serviceType reflect.Type, key any)

	ToSlice() []*Descriptor
	Count() int
}

type collection struct {
	mu sync.RWMutex

	services map[identifier]*Descriptor
	groups   map[groupKey][]*Descriptor

	// orderByType preserves registration order per service type, so
	// Sequence[T] resolution (fan-in by type across every key, distinct
	// from a named Group) can replay declaration order.
	orderByType map[reflect.Type][]identifier

	analyzer *reflection.Analyzer
}

type groupKey struct {
	Type  reflect.Type
	Group string
}

var reservedTypes = map[reflect.Type]struct{}{
	contextType:  {},
	providerType: {},
	scopeType:    {},
}

// NewCollection creates an empty Collection.
func NewCollection() Collection {
	return &collection{
		services:    make(map[identifier]*Descriptor),
		groups:      make(map[groupKey][]*Descriptor),
		orderByType: make(map[reflect.Type][]identifier),
		analyzer:    reflection.NewAnalyzer(),
	}
}

func (c *collection) Build() (Provider, error) {
	return c.BuildWithOptions(nil)
}

func (c *collection) BuildWithOptions(options *ProviderOptions) (Provider, error) {
	if options == nil {
		options = &ProviderOptions{ValidateScopes: true}
	}

	if options.BuildTimeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), options.BuildTimeout)
		defer cancel()

		done := make(chan struct{})
		var p Provider
		var err error
		go func() {
			p, err = c.doBuild(options)
			close(done)
		}()
		select {
		case <-done:
			return p, err
		case <-ctx.Done():
			return nil, &TimeoutError{Timeout: options.BuildTimeout}
		}
	}

	return c.doBuild(options)
}

func (c *collection) doBuild(options *ProviderOptions) (Provider, error) {
	descriptors := c.ToSlice()

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.validateDependencyGraph(); err != nil {
		return nil, fmt.Errorf("wireup: build failed during graph validation: %w", err)
	}
	if options.ValidateScopes {
		if err := c.validateLifetimes(); err != nil {
			return nil, fmt.Errorf("wireup: build failed during lifetime validation: %w", err)
		}
	}

	p := newProvider(uuid.NewString(), c.services, c.groups, c.orderByType, c.analyzer, options)

	if options.ValidateOnBuild {
		if err := p.validateAll(descriptors); err != nil {
			_ = p.Close()
			return nil, err
		}
	}

	if err := p.activateEagerSingletons(descriptors); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("wireup: build failed during singleton activation: %w", err)
	}

	return p, nil
}

func (c *collection) AddModules(modules ...ModuleOption) error {
	for _, m := range modules {
		if m == nil {
			continue
		}
		if err := m(c); err != nil {
			return err
		}
	}
	return nil
}

func (c *collection) AddSingleton(service any, opts ...AddOption) error {
	return c.addConstructor(service, Singleton, opts...)
}

func (c *collection) AddScoped(service any, opts ...AddOption) error {
	return c.addConstructor(service, Scoped, opts...)
}

func (c *collection) AddTransient(service any, opts ...AddOption) error {
	return c.addConstructor(service, Transient, opts...)
}

func (c *collection) AddSingletonInstance(instance any, opts ...AddOption) error {
	if instance == nil {
		return ErrNilConstructor
	}
	options := resolveAddOptions(opts)
	d := newInstanceDescriptor(instance, Singleton, options)
	return c.register(d, options)
}

func (c *collection) addConstructor(service any, lifetime Lifetime, opts ...AddOption) error {
	if service == nil {
		return ErrNilConstructor
	}

	val := reflect.ValueOf(service)
	if val.Kind() != reflect.Func {
		options := resolveAddOptions(opts)
		d := newInstanceDescriptor(service, lifetime, options)
		return c.register(d, options)
	}

	options := resolveAddOptions(opts)
	descriptors, err := newConstructorDescriptors(c.analyzer, service, lifetime, options)
	if err != nil {
		return err
	}

	if len(options.ifaces) > 0 {
		if len(descriptors) != 1 {
			return &InvalidServiceDescriptorError{Message: "As() is only valid for a constructor producing a single service"}
		}
		return c.registerAsInterfaces(descriptors[0], options)
	}

	for _, d := range descriptors {
		if err := c.register(d, options); err != nil {
			return err
		}
	}
	return nil
}

func (c *collection) registerAsInterfaces(d *Descriptor, options *addOptions) error {
	for _, iface := range d.As {
		if !d.Type.Implements(iface) && !reflect.PointerTo(d.Type).Implements(iface) {
			return &InvalidServiceDescriptorError{
				ServiceType: d.Type,
				Message:     fmt.Sprintf("does not implement %s", formatType(iface)),
			}
		}
		clone := *d
		clone.Type = iface
		if err := c.register(&clone, options); err != nil {
			return err
		}
	}
	return nil
}

func (c *collection) register(d *Descriptor, options *addOptions) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if _, reserved := reservedTypes[d.Type]; reserved {
		return &InvalidServiceDescriptorError{ServiceType: d.Type, Message: "this type is provided automatically and cannot be registered"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if d.Group != "" {
		gk := groupKey{Type: d.Type, Group: d.Group}
		d.Key = len(c.groups[gk])
		c.groups[gk] = append(c.groups[gk], d)
		return nil
	}

	id := d.identifier()
	if _, exists := c.services[id]; exists && id.Key != AnyKey {
		return &InvalidServiceDescriptorError{ServiceType: d.Type, Message: fmt.Sprintf("service already registered for %s", id)}
	}
	c.services[id] = d
	c.orderByType[id.Type] = append(c.orderByType[id.Type], id)
	return nil
}

func (c *collection) HasService(t reflect.Type) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.services[identifier{Type: t}]
	return ok
}

func (c *collection) HasKeyedService(t reflect.Type, key any) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.services[identifier{Type: t, Key: key}]
	return ok
}

func (c *collection) Remove(t reflect.Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.services, identifier{Type: t})
}

func (c *collection) RemoveKeyed(t reflect.Type, key any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.services, identifier{Type: t, Key: key})
}

func (c *collection) ToSlice() []*Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Descriptor, 0, len(c.services))
	for _, d := range c.services {
		out = append(out, d)
	}
	for _, group := range c.groups {
		out = append(out, group...)
	}
	return out
}

func (c *collection) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := len(c.services)
	for _, group := range c.groups {
		n += len(group)
	}
	return n
}

// validateDependencyGraph checks for dependency cycles across every
// registered descriptor, including through group fan-in edges.
func (c *collection) validateDependencyGraph() error {
	g := graph.NewDependencyGraph()

	for id, d := range c.services {
		g.AddProvider(descriptorGraphNode{id: id, d: d})
	}
	for gk, descriptors := range c.groups {
		groupNode := identifier{Type: gk.Type, Key: "group:" + gk.Group}
		members := make([]graph.NodeKey, 0, len(descriptors))
		for _, d := range descriptors {
			members = append(members, graph.NodeKey{Type: d.Type, Key: d.Key})
			g.AddProvider(descriptorGraphNode{id: identifier{Type: d.Type, Key: d.Key}, d: d})
		}
		g.AddProvider(groupFanInNode{id: groupNode, members: members})
	}

	if err := g.DetectCycles(); err != nil {
		var cycle *graph.CycleError
		if errors.As(err, &cycle) {
			chain := make([]identifier, len(cycle.Chain))
			for i, k := range cycle.Chain {
				chain[i] = identifier{Type: k.Type, Key: k.Key}
			}
			return &CircularDependencyError{Chain: chain}
		}
		return err
	}
	return nil
}

// descriptorGraphNode adapts a Descriptor to graph.Provider, mapping group
// dependencies onto the synthetic group fan-in node instead of a single
// member.
type descriptorGraphNode struct {
	id identifier
	d  *Descriptor
}

func (n descriptorGraphNode) GetType() reflect.Type { return n.id.Type }
func (n descriptorGraphNode) GetKey() any           { return n.id.Key }
func (n descriptorGraphNode) GetDependencyKeys() []graph.NodeKey {
	keys := make([]graph.NodeKey, 0, len(n.d.Dependencies))
	for _, dep := range n.d.Dependencies {
		if dep.Group != "" {
			keys = append(keys, graph.NodeKey{Type: dep.Type, Key: "group:" + dep.Group})
			continue
		}
		keys = append(keys, graph.NodeKey{Type: dep.Type, Key: dep.Key})
	}
	return keys
}

type groupFanInNode struct {
	id      identifier
	members []graph.NodeKey
}

func (n groupFanInNode) GetType() reflect.Type            { return n.id.Type }
func (n groupFanInNode) GetKey() any                       { return n.id.Key }
func (n groupFanInNode) GetDependencyKeys() []graph.NodeKey { return n.members }

// validateLifetimes ensures singleton descriptors never depend, directly, on
// a scoped one. The full transitive check (through chains of non-scoped
// intermediaries) happens in callsite_factory.go when a singleton's call
// site is compiled; this is a cheap, build-time first pass.
func (c *collection) validateLifetimes() error {
	lifetimes := make(map[identifier]Lifetime)
	for id, d := range c.services {
		lifetimes[id] = d.Lifetime
	}
	for _, descriptors := range c.groups {
		for _, d := range descriptors {
			lifetimes[identifier{Type: d.Type, Key: d.Key}] = d.Lifetime
		}
	}

	check := func(d *Descriptor) error {
		if d.Lifetime != Singleton {
			return nil
		}
		for _, dep := range d.Dependencies {
			depLifetime, ok := lifetimes[identifier{Type: dep.Type, Key: dep.Key}]
			if !ok {
				continue
			}
			if depLifetime == Scoped {
				return &ScopedInSingletonError{SingletonType: d.Type, ScopedType: dep.Type}
			}
		}
		return nil
	}

	for _, d := range c.services {
		if err := check(d); err != nil {
			return err
		}
	}
	for _, descriptors := range c.groups {
		for _, d := range descriptors {
			if err := check(d); err != nil {
				return err
			}
		}
	}
	return nil
}
