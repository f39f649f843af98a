package wireup

import (
	"context"
	"reflect"
	"sync"

	"github.com/wireup-go/wireup/internal/reflection"
	"github.com/wireup-go/wireup/internal/synca"
)

// callSiteFactory compiles identifiers into callSites and caches the
// result, so a service's dependency plan is analyzed once no matter how
// many times it is later resolved.
//
// Grounded in the original's CallSiteFactory: a per-identifier fair lock
// (synca.Lock) makes concurrent compilation of the *same* identifier
// serialize onto one compiling goroutine instead of racing, while
// compilation of two different identifiers proceeds fully in parallel.
type callSiteFactory struct {
	services    map[identifier]*Descriptor
	groups      map[groupKey][]*Descriptor
	orderByType map[reflect.Type][]identifier

	compiled *synca.Map[identifier, *callSite]
	locks    *synca.Map[identifier, *synca.Lock]

	// invalidationMu guards mutation of services/groups/orderByType and
	// compiled-cache eviction together, so a concurrent compile either
	// observes the fully-old or fully-new registry state.
	invalidationMu sync.Mutex

	// producerMu/producers track the single shared call site that actually
	// invokes a multi-return or Out-struct constructor; every sibling
	// Descriptor it produces compiles to a siteProjection pointing at it.
	// producerLocks serializes concurrent first-compilation of the same
	// producer, the same way locks does for ordinary identifiers.
	producerMu    sync.Mutex
	producers     map[uintptr]*callSite
	producerLocks *synca.Map[uintptr, *synca.Lock]

	// validateScopes gates the scope-purity checks (ScopedInSingletonError
	// here, validateRootResolution in scope.go) behind ProviderOptions.
	validateScopes bool

	// overridesMu guards overrides, a per-identifier stack of values pushed
	// by Provider.OverrideService and popped by its Guard. Overrides bypass
	// compiled entirely: they are checked first in getCallSite and are never
	// written to the call-site cache, so popping one always restores exactly
	// whatever call site would otherwise have been compiled.
	overridesMu sync.Mutex
	overrides   map[identifier][]any
}

func newCallSiteFactory(services map[identifier]*Descriptor, groups map[groupKey][]*Descriptor, orderByType map[reflect.Type][]identifier, validateScopes bool) *callSiteFactory {
	return &callSiteFactory{
		services:       services,
		groups:         groups,
		orderByType:    orderByType,
		compiled:       synca.NewMap[identifier, *callSite](),
		locks:          synca.NewMap[identifier, *synca.Lock](),
		producers:      make(map[uintptr]*callSite),
		producerLocks:  synca.NewMap[uintptr, *synca.Lock](),
		validateScopes: validateScopes,
		overrides:      make(map[identifier][]any),
	}
}

// pushOverride pushes value onto id's override stack and returns a function
// that pops it again. Popping is idempotent from the caller's perspective:
// overrideGuard only ever invokes it once.
func (f *callSiteFactory) pushOverride(id identifier, value any) func() {
	f.overridesMu.Lock()
	f.overrides[id] = append(f.overrides[id], value)
	f.overridesMu.Unlock()

	popped := false
	return func() {
		if popped {
			return
		}
		popped = true

		f.overridesMu.Lock()
		defer f.overridesMu.Unlock()
		stack := f.overrides[id]
		if len(stack) == 0 {
			return
		}
		f.overrides[id] = stack[:len(stack)-1]
	}
}

// activeOverride reports the top of id's override stack, falling back to
// the (type, AnyKey) stack when id is itself keyed, per spec.md §4.F.2.
func (f *callSiteFactory) activeOverride(id identifier) (any, bool) {
	f.overridesMu.Lock()
	defer f.overridesMu.Unlock()

	if stack := f.overrides[id]; len(stack) > 0 {
		return stack[len(stack)-1], true
	}
	if id.Key != nil && id.Key != AnyKey {
		if stack := f.overrides[identifier{Type: id.Type, Key: AnyKey}]; len(stack) > 0 {
			return stack[len(stack)-1], true
		}
	}
	return nil, false
}

// addDescriptor registers a descriptor after the factory has already
// compiled call sites, invalidating any cached plan for its identifier (and
// for the Sequence[T]/group it participates in, since those fan in by type).
func (f *callSiteFactory) addDescriptor(d *Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}

	f.invalidationMu.Lock()
	defer f.invalidationMu.Unlock()

	id := d.identifier()
	if d.Group != "" {
		gk := groupKey{Type: d.Type, Group: d.Group}
		d.Key = len(f.groups[gk])
		f.groups[gk] = append(f.groups[gk], d)
	} else {
		f.services[id] = d
		f.orderByType[id.Type] = append(f.orderByType[id.Type], id)
	}

	f.compiled.TryRemove(id)
	seqType := reflect.SliceOf(d.Type)
	f.compiled.TryRemove(identifier{Type: seqType})
	f.compiled.TryRemove(identifier{Type: seqType, Key: AnyKey})
	if d.Group != "" {
		f.compiled.TryRemove(identifier{Type: seqType, Key: "group:" + d.Group})
	} else if d.Key != nil {
		f.compiled.TryRemove(identifier{Type: seqType, Key: d.Key})
	}
	return nil
}

// getCallSite compiles (or returns the cached compilation of) id. chain is
// the list of identifiers currently being compiled on this call stack, used
// for cycle detection; owner is the fair-lock owner token for this logical
// resolution.
func (f *callSiteFactory) getCallSite(id identifier, chain []identifier, owner synca.Owner) (*callSite, error) {
	if value, ok := f.activeOverride(id); ok {
		return overrideCallSite(id, value), nil
	}

	if site, ok := f.compiled.Get(id); ok {
		return site, nil
	}

	for _, seen := range chain {
		if seen == id {
			full := append(append([]identifier{}, chain...), id)
			return nil, &CircularDependencyError{Chain: full}
		}
	}

	lock := f.locks.GetOrAdd(id, func(identifier) *synca.Lock { return synca.NewLock() })
	if err := lock.Acquire(context.Background(), owner); err != nil {
		return nil, err
	}
	defer lock.Release(owner)

	if site, ok := f.compiled.Get(id); ok {
		return site, nil
	}

	site, err := f.compile(id, chain, owner)
	if err != nil {
		return nil, err
	}

	f.compiled.Upsert(id, site)
	return site, nil
}

// overrideCallSite wraps an overridden value as a Constant call site: it is
// never stored in compiled, so it cannot outlive the override itself, and it
// is never disposed, matching the original's ConstantCallSite.
func overrideCallSite(id identifier, value any) *callSite {
	return &callSite{
		kind:  siteInstance,
		id:    id,
		cache: resultCache{location: cacheNone},
		descriptor: &Descriptor{
			Type:             id.Type,
			Key:              id.Key,
			IsInstance:       true,
			Instance:         value,
			MultiReturnIndex: -1,
			ResultIndex:      -1,
		},
		resultIndex: -1,
	}
}

func (f *callSiteFactory) compile(id identifier, chain []identifier, owner synca.Owner) (*callSite, error) {
	nextChain := append(append([]identifier{}, chain...), id)

	if id.Type.Kind() == reflect.Slice {
		return f.compileSequence(id, nextChain, owner)
	}

	d, ok := f.lookupDescriptor(id)
	if !ok {
		if id.Key != nil {
			return nil, &NoKeyedServiceRegisteredError{ServiceType: id.Type, Key: id.Key}
		}
		return nil, &NoServiceRegisteredError{ServiceType: id.Type}
	}

	return f.compileDescriptor(d, nextChain, owner)
}

func (f *callSiteFactory) lookupDescriptor(id identifier) (*Descriptor, bool) {
	f.invalidationMu.Lock()
	defer f.invalidationMu.Unlock()
	if d, ok := f.services[id]; ok {
		return d, true
	}
	if id.Key != nil {
		if d, ok := f.services[identifier{Type: id.Type, Key: AnyKey}]; ok {
			return d, true
		}
	}
	return nil, false
}

func (f *callSiteFactory) compileDescriptor(d *Descriptor, chain []identifier, owner synca.Owner) (*callSite, error) {
	// An Out-result-object or multi-return constructor is shared by several
	// sibling Descriptors; route those through the producer/projection split
	// so siblings share one constructor call per cached value of the lifetime
	// (a Transient producer runs again on every resolution).
	if d.IsResultObject || d.MultiReturnIndex >= 0 {
		return f.compileProjection(d, chain, owner)
	}

	id := d.identifier()
	site := &callSite{
		id:          id,
		cache:       resultCacheFor(d.Lifetime, cacheKey{identifier: id}),
		descriptor:  d,
		resultIndex: -1,
	}

	if d.IsInstance {
		site.kind = siteInstance
		return site, nil
	}

	site.kind = siteConstructor

	args, isParamObject, scopedDescendant, firstScoped, err := f.buildArguments(d, chain, owner)
	if err != nil {
		return nil, err
	}
	if f.validateScopes && d.Lifetime == Singleton && scopedDescendant {
		return nil, &ScopedInSingletonError{SingletonType: d.Type, ScopedType: firstScoped}
	}
	site.arguments = args
	site.isParamObject = isParamObject
	site.scopedDescendant = scopedDescendant
	site.firstScopedType = firstScoped
	return site, nil
}

// buildArguments compiles the call sites for every dependency a constructor
// declares, in declaration order, resolving servicekey/optional/fromkeyed
// semantics. Shared by an ordinary constructor's call site and a shared
// producer's call site, since both invoke the same constructor the same way.
// firstScoped is the service type of the first Scoped dependency found in
// the tree (nil if scopedDescendant is false), mirroring the original's
// call-site-validator visit result without a second tree walk.
func (f *callSiteFactory) buildArguments(d *Descriptor, chain []identifier, owner synca.Owner) (args []argument, isParamObject bool, scopedDescendant bool, firstScoped reflect.Type, err error) {
	id := d.identifier()
	ctorType := d.ConstructorType
	isParamObject = ctorType != nil && ctorType.Kind() == reflect.Func &&
		ctorType.NumIn() == 1 && isParamObjectType(ctorType.In(0))
	scopedDescendant = d.Lifetime == Scoped
	if scopedDescendant {
		firstScoped = d.Type
	}

	args = make([]argument, 0, len(d.Dependencies))
	for _, dep := range d.Dependencies {
		if dep.IsServiceKey {
			args = append(args, argument{dep: dep, useOwnKey: true, ownKey: id.Key})
			continue
		}
		if b := builtinFor(dep.Type); b != builtinNone {
			args = append(args, argument{dep: dep, builtin: b})
			continue
		}

		depID := f.dependencyIdentifier(id, dep)
		depSite, getErr := f.getCallSite(depID, chain, owner)
		if getErr != nil {
			if dep.Optional && IsNotFound(getErr) {
				args = append(args, argument{dep: dep, site: nil})
				continue
			}
			return nil, false, false, nil, getErr
		}
		if depSite.scopedDescendant && !scopedDescendant {
			scopedDescendant = true
			firstScoped = depSite.firstScopedType
		}
		args = append(args, argument{dep: dep, site: depSite})
	}
	return args, isParamObject, scopedDescendant, firstScoped, nil
}

// compileProjection compiles d as a view onto a shared producer call site:
// the producer actually invokes the constructor (once, cached per its
// lifetime), and this call site merely extracts d's field/index from the
// producer's raw result.
func (f *callSiteFactory) compileProjection(d *Descriptor, chain []identifier, owner synca.Owner) (*callSite, error) {
	producer, err := f.getOrCompileProducer(d, chain, owner)
	if err != nil {
		return nil, err
	}

	id := d.identifier()
	return &callSite{
		kind:             siteProjection,
		id:               id,
		cache:            resultCacheFor(d.Lifetime, cacheKey{identifier: id}),
		descriptor:       d,
		isResultObject:   d.IsResultObject,
		resultIndex:      projectionIndex(d),
		producer:         producer,
		scopedDescendant: producer.scopedDescendant,
		firstScopedType:  producer.firstScopedType,
	}, nil
}

// getOrCompileProducer returns the single producer call site for d's
// constructor, compiling it at most once (double-checked under a
// per-constructor fair lock so concurrent first resolutions of different
// sibling Descriptors don't each compile and invoke it separately).
func (f *callSiteFactory) getOrCompileProducer(d *Descriptor, chain []identifier, owner synca.Owner) (*callSite, error) {
	key := d.Constructor.Pointer()

	f.producerMu.Lock()
	if p, ok := f.producers[key]; ok {
		f.producerMu.Unlock()
		return p, nil
	}
	f.producerMu.Unlock()

	lock := f.producerLocks.GetOrAdd(key, func(uintptr) *synca.Lock { return synca.NewLock() })
	if err := lock.Acquire(context.Background(), owner); err != nil {
		return nil, err
	}
	defer lock.Release(owner)

	f.producerMu.Lock()
	if p, ok := f.producers[key]; ok {
		f.producerMu.Unlock()
		return p, nil
	}
	f.producerMu.Unlock()

	producer, err := f.compileProducer(d, chain, owner)
	if err != nil {
		return nil, err
	}

	f.producerMu.Lock()
	f.producers[key] = producer
	f.producerMu.Unlock()
	return producer, nil
}

// compileProducer builds the call site that actually invokes a shared
// multi-return/Out-struct constructor. It is never looked up by an
// identifier a dependency can name directly; only compileProjection sites
// reference it, via producer.
func (f *callSiteFactory) compileProducer(d *Descriptor, chain []identifier, owner synca.Owner) (*callSite, error) {
	producerID := identifier{Type: d.ConstructorType, Key: d.Constructor.Pointer()}
	site := &callSite{
		kind:           siteConstructor,
		id:             producerID,
		cache:          resultCacheFor(d.Lifetime, cacheKey{identifier: producerID}),
		descriptor:     d,
		isResultObject: d.IsResultObject,
		resultIndex:    -1,
	}

	args, isParamObject, scopedDescendant, firstScoped, err := f.buildArguments(d, chain, owner)
	if err != nil {
		return nil, err
	}
	if f.validateScopes && d.Lifetime == Singleton && scopedDescendant {
		return nil, &ScopedInSingletonError{SingletonType: d.Type, ScopedType: firstScoped}
	}
	site.arguments = args
	site.isParamObject = isParamObject
	site.scopedDescendant = scopedDescendant
	site.firstScopedType = firstScoped
	return site, nil
}

// projectionIndex selects which position of a producer's raw result a
// projection call site extracts: an Out struct's field index, or a
// multi-return constructor's non-error return position.
func projectionIndex(d *Descriptor) int {
	if d.IsResultObject {
		return d.ResultIndex
	}
	return d.MultiReturnIndex
}

// dependencyIdentifier resolves one Dependency (already expressing
// name/group/servicekey/fromkeyed tags) to the concrete identifier it must
// be compiled against, applying fromkeyed's key-inheritance rules relative
// to the enclosing identifier own.
func (f *callSiteFactory) dependencyIdentifier(own identifier, dep reflection.Dependency) identifier {
	if dep.Group != "" {
		return identifier{Type: reflect.SliceOf(dep.Type), Key: "group:" + dep.Group}
	}
	if dep.IsSlice && dep.Group == "" {
		return identifier{Type: dep.Type}
	}

	switch dep.KeyMode {
	case reflection.KeyModeInherit:
		return identifier{Type: dep.Type, Key: own.Key}
	case reflection.KeyModeExplicit:
		return identifier{Type: dep.Type, Key: dep.ExplicitKey}
	case reflection.KeyModeNull:
		return identifier{Type: dep.Type, Key: nil}
	default:
		return identifier{Type: dep.Type, Key: dep.Key}
	}
}

func (f *callSiteFactory) compileSequence(id identifier, chain []identifier, owner synca.Owner) (*callSite, error) {
	elemType := id.Type.Elem()
	memberIDs := f.sequenceMemberIDs(elemType, id.Key)

	site := &callSite{
		kind:  siteSequence,
		id:    id,
		cache: resultCache{location: cacheNone},
	}

	members := make([]*callSite, 0, len(memberIDs))
	groupName, isGroup := groupNameFromKey(id.Key)
	for i, mid := range memberIDs {
		var m *callSite
		var err error
		if isGroup {
			// Group members live only in groups, not services: compile them from
			// their descriptors, caching each under the group's identifier + slot.
			f.invalidationMu.Lock()
			d := f.groups[groupKey{Type: elemType, Group: groupName}][i]
			f.invalidationMu.Unlock()
			if m, err = f.compileDescriptor(d, chain, owner); err == nil {
				m.cache.key = cacheKey{identifier: id, slot: i}
			}
		} else {
			m, err = f.getCallSite(mid, chain, owner)
		}
		if err != nil {
			return nil, err
		}
		if m.scopedDescendant && !site.scopedDescendant {
			site.scopedDescendant = true
			site.firstScopedType = m.firstScopedType
		}
		members = append(members, m)
	}
	site.members = members
	return site, nil
}

// sequenceMemberIDs resolves which identifiers fan into a Sequence[T]/group
// request, per spec.md §4.F.3's matching rules:
//   - a named group (id.Key is "group:<name>"): every member of that group,
//     in declaration order.
//   - AnyKey: every registration of elemType in services, the unkeyed one
//     included, in declaration order — AnyKey registrations are never
//     enumerated here even though AnyKey is the caller's key, since a
//     catch-all isn't itself one of the members. Group members are not in
//     services, so they never appear here either.
//   - any other key (nil included): only the registration sharing that
//     exact key, never a sibling registered under a different key.
func (f *callSiteFactory) sequenceMemberIDs(elemType reflect.Type, key any) []identifier {
	f.invalidationMu.Lock()
	defer f.invalidationMu.Unlock()
	if groupName, ok := groupNameFromKey(key); ok {
		members := f.groups[groupKey{Type: elemType, Group: groupName}]
		ids := make([]identifier, 0, len(members))
		for _, d := range members {
			ids = append(ids, identifier{Type: elemType, Key: d.Key})
		}
		return ids
	}

	if key == AnyKey {
		var ids []identifier
		for _, mid := range f.orderByType[elemType] {
			if mid.Key == AnyKey {
				continue
			}
			ids = append(ids, mid)
		}
		return ids
	}

	exact := identifier{Type: elemType, Key: key}
	if _, ok := f.services[exact]; ok {
		return []identifier{exact}
	}
	return nil
}

func groupNameFromKey(key any) (string, bool) {
	s, ok := key.(string)
	if !ok || len(s) < len("group:") || s[:len("group:")] != "group:" {
		return "", false
	}
	return s[len("group:"):], true
}

func isParamObjectType(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return false
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Type == reflect.TypeOf(reflection.In{}) {
			return true
		}
	}
	return false
}

