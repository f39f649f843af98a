package wireup

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wireup-go/wireup/internal/reflection"
	"github.com/wireup-go/wireup/internal/synca"
)

// Provider is the built, immutable (except for AddDescriptor/OverrideService)
// dependency graph produced by Collection.Build. It owns the root scope,
// where singletons live, and is the factory for every child Scope.
//
//	provider, err := wireup.NewCollection().Build()
//	defer provider.Close()
//
//	logger, err := wireup.Resolve[Logger](provider)
type Provider interface {
	// RootScope returns the provider's root scope: the scope singletons are
	// cached against, and the default scope a bare Resolve call runs in.
	RootScope() Scope

	// CreateScope creates a new child scope of the root, for the lifetime of
	// one logical unit of work (an HTTP request, a job).
	CreateScope(ctx context.Context) Scope

	Resolve(serviceType reflect.Type) (any, error)
	ResolveKeyed(serviceType reflect.Type, key any) (any, error)
	ResolveGroup(serviceType reflect.Type, group string) ([]any, error)
	ResolveSequence(serviceType reflect.Type) ([]any, error)
	ResolveKeyedSequence(serviceType reflect.Type, key any) ([]any, error)

	IsService(serviceType reflect.Type) bool
	IsKeyedService(serviceType reflect.Type, key any) bool

	// AddDescriptor registers an additional descriptor after Build, useful
	// for plugin-style dynamic registration.
	AddDescriptor(d *Descriptor) error

	// OverrideService pushes d.Instance onto d's identifier's override
	// stack: every resolution of that identifier (direct or as a
	// dependency) returns d.Instance instead of its normal registration
	// until the returned Guard is closed, which pops the override and
	// restores whatever was active before it (the original registration,
	// or an outer override). d must be an instance descriptor (IsInstance
	// set); overrides are value-only, never re-run a constructor.
	OverrideService(d *Descriptor) (Guard, error)

	IsDisposed() bool
	Close() error
}

// ProviderOptions configures build-time and resolution-time behavior of a
// Provider.
type ProviderOptions struct {
	// ValidateScopes enables the scope-purity validator: with it on, a
	// Singleton that depends (directly or transitively) on a Scoped service
	// fails to compile with ScopedInSingletonError, and resolving a Scoped
	// service from the root scope fails with DirectScopedResolvedFromRootError
	// or ScopedResolvedFromRootError. With it off, neither check runs, the
	// same as the original's CallSiteValidator being entirely omitted.
	ValidateScopes bool

	// ValidateOnBuild eagerly compiles every registration except AnyKey
	// catch-alls (a group member through its group) at Build time so a
	// missing dependency or a cycle fails fast instead of surfacing on first
	// use.
	ValidateOnBuild bool

	// ResolutionTimeout bounds a single top-level Resolve/ResolveKeyed call.
	// Zero means no timeout.
	ResolutionTimeout time.Duration

	// BuildTimeout bounds Collection.Build itself. Zero means no timeout.
	BuildTimeout time.Duration

	// OnServiceResolved, when set, runs after every successful top-level
	// resolution.
	OnServiceResolved func(serviceType reflect.Type, instance any, duration time.Duration)

	// OnServiceError, when set, runs after a top-level resolution fails while
	// running its compiled call site (a ResolutionTimeout included). It is not
	// called when the call site fails to compile or scope validation rejects
	// the resolution.
	OnServiceError func(serviceType reflect.Type, err error)
}

// Guard releases a scoped override pushed by OverrideService, restoring
// whatever was active for that identifier beforehand. Closing a Guard more
// than once is a no-op.
type Guard interface {
	Close() error
}

// overrideGuard pops its override exactly once, even if Close is called from
// multiple goroutines or more than once.
type overrideGuard struct {
	once sync.Once
	pop  func()
}

func (g *overrideGuard) Close() error {
	g.once.Do(g.pop)
	return nil
}

// serviceProvider is the default Provider implementation.
type serviceProvider struct {
	id string

	factory  *callSiteFactory
	analyzer *reflection.Analyzer
	options  *ProviderOptions

	rootScope *serviceScope

	rootValues *synca.Map[cacheKey, any]
	rootLocks  *synca.Map[cacheKey, *synca.Lock]

	disposed int32
}

func newProvider(id string, services map[identifier]*Descriptor, groups map[groupKey][]*Descriptor, orderByType map[reflect.Type][]identifier, analyzer *reflection.Analyzer, options *ProviderOptions) *serviceProvider {
	p := &serviceProvider{
		id:         id,
		factory:    newCallSiteFactory(services, groups, orderByType, options.ValidateScopes),
		analyzer:   analyzer,
		options:    options,
		rootValues: synca.NewMap[cacheKey, any](),
		rootLocks:  synca.NewMap[cacheKey, *synca.Lock](),
	}
	p.rootScope = newRootScope(p)
	return p
}

func (p *serviceProvider) RootScope() Scope { return p.rootScope }

func (p *serviceProvider) CreateScope(ctx context.Context) Scope {
	return p.rootScope.CreateChildScope(ctx)
}

func (p *serviceProvider) Resolve(serviceType reflect.Type) (any, error) {
	return p.rootScope.Resolve(serviceType)
}

func (p *serviceProvider) ResolveKeyed(serviceType reflect.Type, key any) (any, error) {
	return p.rootScope.ResolveKeyed(serviceType, key)
}

func (p *serviceProvider) ResolveGroup(serviceType reflect.Type, group string) ([]any, error) {
	return p.rootScope.ResolveGroup(serviceType, group)
}

func (p *serviceProvider) ResolveSequence(serviceType reflect.Type) ([]any, error) {
	return p.rootScope.ResolveSequence(serviceType)
}

func (p *serviceProvider) ResolveKeyedSequence(serviceType reflect.Type, key any) ([]any, error) {
	return p.rootScope.ResolveKeyedSequence(serviceType, key)
}

func (p *serviceProvider) IsService(serviceType reflect.Type) bool {
	_, ok := p.factory.lookupDescriptor(identifier{Type: serviceType})
	return ok
}

func (p *serviceProvider) IsKeyedService(serviceType reflect.Type, key any) bool {
	_, ok := p.factory.lookupDescriptor(identifier{Type: serviceType, Key: key})
	return ok
}

func (p *serviceProvider) AddDescriptor(d *Descriptor) error {
	if p.IsDisposed() {
		return ErrProviderDisposed
	}
	return p.factory.addDescriptor(d)
}

func (p *serviceProvider) OverrideService(d *Descriptor) (Guard, error) {
	if p.IsDisposed() {
		return nil, ErrProviderDisposed
	}
	if !d.IsInstance {
		return nil, &InvalidServiceDescriptorError{ServiceType: d.Type, Message: "OverrideService only accepts an instance descriptor (IsInstance set); overrides never run a constructor"}
	}
	pop := p.factory.pushOverride(d.identifier(), d.Instance)
	return &overrideGuard{pop: pop}, nil
}

func (p *serviceProvider) IsDisposed() bool {
	return atomic.LoadInt32(&p.disposed) != 0
}

func (p *serviceProvider) Close() error {
	if !atomic.CompareAndSwapInt32(&p.disposed, 0, 1) {
		return nil
	}
	return p.rootScope.Close()
}

// validateAll compiles the call site for every non-keyed-wildcard descriptor,
// surfacing missing dependencies and cycles as a single aggregated error
// instead of waiting for first use.
func (p *serviceProvider) validateAll(descriptors []*Descriptor) error {
	var errs []error
	owner := synca.NewOwner()

	for _, d := range descriptors {
		if d.Key == AnyKey {
			continue
		}
		id := d.identifier()
		if d.Group != "" {
			id = identifier{Type: reflect.SliceOf(d.Type), Key: "group:" + d.Group}
		}
		if _, err := p.factory.getCallSite(id, nil, owner); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", formatType(d.Type), err))
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// activateEagerSingletons resolves every AutoActivate singleton once, right
// after Build, so their construction (and any side effects) happens
// deterministically at startup rather than on first lazy use.
func (p *serviceProvider) activateEagerSingletons(descriptors []*Descriptor) error {
	for _, d := range descriptors {
		if !d.AutoActivate || d.Lifetime != Singleton {
			continue
		}
		id := d.identifier()
		if d.Group != "" {
			id = identifier{Type: reflect.SliceOf(d.Type), Key: "group:" + d.Group}
		}
		if _, err := p.rootScope.resolveTop(id); err != nil {
			return fmt.Errorf("auto-activating %s: %w", formatType(d.Type), err)
		}
	}
	return nil
}
