package wireup

import (
	"context"
	"fmt"
	"reflect"

	"github.com/wireup-go/wireup/internal/synca"
)

var errType = reflect.TypeOf((*error)(nil)).Elem()

// resolveCallSite executes a compiled call site against scope, dispatching
// on its cache location: a root-cached (Singleton) value is memoized on the
// provider and shared by every scope, a scope-cached (Scoped) value is
// memoized on scope alone, and an uncached (Transient) value is produced
// fresh on every call.
func (s *serviceScope) resolveCallSite(ctx context.Context, site *callSite, owner synca.Owner) (any, error) {
	switch site.cache.location {
	case cacheRoot:
		return s.provider.getOrCreateRootValue(ctx, site, owner)
	case cacheScope:
		return s.getOrCreateScopeValue(ctx, site, owner)
	default:
		v, err := s.produce(ctx, site, owner)
		if err != nil {
			return nil, err
		}
		// Transient values are never memoized, but a Transient disposable is
		// still owned by whichever scope produced it and must be torn down
		// in reverse order when that scope closes. A siteSequence's own
		// descriptor is nil (it has no constructor of its own); its members
		// already captured themselves when resolveCallSite recursed into
		// them individually, so capturing here too would be a no-op duplicate.
		if site.kind != siteSequence {
			s.captureDisposable(v, site.descriptor)
		}
		return v, nil
	}
}

// getOrCreateRootValue memoizes a Singleton call site's value on the
// provider, shared by every scope. Construction always runs in the root
// scope's own context; with ValidateScopes on, a singleton's dependency tree
// cannot reach a Scoped call site (rejected at compile time).
func (p *serviceProvider) getOrCreateRootValue(ctx context.Context, site *callSite, owner synca.Owner) (any, error) {
	if v, ok := p.rootValues.Get(site.cache.key); ok {
		return v, nil
	}

	lock := p.rootLocks.GetOrAdd(site.cache.key, func(cacheKey) *synca.Lock { return synca.NewLock() })
	if err := lock.Acquire(ctx, owner); err != nil {
		return nil, err
	}
	defer lock.Release(owner)

	if v, ok := p.rootValues.Get(site.cache.key); ok {
		return v, nil
	}

	v, err := p.rootScope.produce(p.rootScope.ctx, site, owner)
	if err != nil {
		return nil, err
	}

	p.rootValues.Upsert(site.cache.key, v)
	p.rootScope.captureDisposable(v, site.descriptor)
	return v, nil
}

// getOrCreateScopeValue memoizes a Scoped call site's value on scope alone.
func (s *serviceScope) getOrCreateScopeValue(ctx context.Context, site *callSite, owner synca.Owner) (any, error) {
	if v, ok := s.values.Get(site.cache.key); ok {
		return v, nil
	}

	lock := s.valueLocks.GetOrAdd(site.cache.key, func(cacheKey) *synca.Lock { return synca.NewLock() })
	if err := lock.Acquire(ctx, owner); err != nil {
		return nil, err
	}
	defer lock.Release(owner)

	if v, ok := s.values.Get(site.cache.key); ok {
		return v, nil
	}

	v, err := s.produce(ctx, site, owner)
	if err != nil {
		return nil, err
	}

	s.values.Upsert(site.cache.key, v)
	s.captureDisposable(v, site.descriptor)
	return v, nil
}

// produce runs a call site without consulting or populating any cache.
func (s *serviceScope) produce(ctx context.Context, site *callSite, owner synca.Owner) (any, error) {
	switch site.kind {
	case siteInstance:
		return site.descriptor.Instance, nil

	case siteConstructor:
		return s.produceConstructor(ctx, site, owner)

	case siteProjection:
		raw, err := s.resolveCallSite(ctx, site.producer, owner)
		if err != nil {
			return nil, err
		}
		values, ok := raw.([]reflect.Value)
		if !ok {
			return nil, fmt.Errorf("wireup: producer for %s returned %T, expected a raw result tuple", site.id, raw)
		}
		return extractProjected(site, values), nil

	case siteSequence:
		return s.produceSequence(ctx, site, owner)

	default:
		return nil, fmt.Errorf("wireup: unsupported call site kind for %s", site.id)
	}
}

// produceConstructor invokes the constructor a plain or producer call site
// wraps. A producer call site (backing an Out-struct or multi-return
// descriptor) returns the raw, unextracted []reflect.Value so every sibling
// siteProjection can pull its own field out of the same invocation; an
// ordinary call site returns its single extracted value.
func (s *serviceScope) produceConstructor(ctx context.Context, site *callSite, owner synca.Owner) (any, error) {
	d := site.descriptor

	out, err := s.invokeConstructor(ctx, site, owner)
	if err != nil {
		return nil, err
	}

	values, err := splitError(out)
	if err != nil {
		return nil, err
	}

	if d.IsResultObject || d.MultiReturnIndex >= 0 {
		return values, nil
	}
	return values[0].Interface(), nil
}

// invokeConstructor builds the call arguments for d's constructor (a struct
// value for a param-object constructor, positional values otherwise) and
// invokes it via reflection.
func (s *serviceScope) invokeConstructor(ctx context.Context, site *callSite, owner synca.Owner) ([]reflect.Value, error) {
	d := site.descriptor
	fn := d.Constructor
	fnType := fn.Type()

	if site.isParamObject {
		paramType := fnType.In(0)
		isPtr := paramType.Kind() == reflect.Pointer
		elemType := paramType
		if isPtr {
			elemType = paramType.Elem()
		}

		structVal := reflect.New(elemType).Elem()
		for _, arg := range site.arguments {
			val, err := s.resolveArgument(ctx, arg, owner)
			if err != nil {
				return nil, err
			}
			if val == nil {
				continue
			}
			setFieldValue(structVal.Field(arg.dep.Index), val)
		}

		if isPtr {
			ptr := reflect.New(elemType)
			ptr.Elem().Set(structVal)
			return fn.Call([]reflect.Value{ptr}), nil
		}
		return fn.Call([]reflect.Value{structVal}), nil
	}

	callArgs := make([]reflect.Value, len(site.arguments))
	for i, arg := range site.arguments {
		val, err := s.resolveArgument(ctx, arg, owner)
		if err != nil {
			return nil, err
		}
		callArgs[i] = valueOrZero(val, fnType.In(i))
	}
	return fn.Call(callArgs), nil
}

// resolveArgument obtains the value for one compiled argument: a built-in
// (context/provider/scope), the owning identifier's own key, a recursively
// resolved dependency call site, or nil for an unsatisfied optional
// dependency.
func (s *serviceScope) resolveArgument(ctx context.Context, arg argument, owner synca.Owner) (any, error) {
	switch {
	case arg.useOwnKey:
		return arg.ownKey, nil
	case arg.builtin == builtinContext:
		return ctx, nil
	case arg.builtin == builtinProvider:
		return s.provider, nil
	case arg.builtin == builtinScope:
		return s, nil
	case arg.site == nil:
		return nil, nil
	default:
		return s.resolveCallSite(ctx, arg.site, owner)
	}
}

// produceSequence resolves every member of a Sequence[T]/group fan-in into a
// concrete []ElemType slice, in declaration order.
func (s *serviceScope) produceSequence(ctx context.Context, site *callSite, owner synca.Owner) (any, error) {
	elemType := site.id.Type.Elem()
	result := reflect.MakeSlice(site.id.Type, 0, len(site.members))

	for _, m := range site.members {
		v, err := s.resolveCallSite(ctx, m, owner)
		if err != nil {
			return nil, err
		}
		result = reflect.Append(result, valueOrZero(v, elemType))
	}
	return result.Interface(), nil
}

// extractProjected pulls site's field/index out of a producer's raw result.
func extractProjected(site *callSite, values []reflect.Value) any {
	if site.isResultObject {
		structVal := values[0]
		if structVal.Kind() == reflect.Pointer {
			structVal = structVal.Elem()
		}
		rf := site.descriptor.ResultFields[site.resultIndex]
		return structVal.Field(rf.Index).Interface()
	}
	return values[site.resultIndex].Interface()
}

// splitError strips a trailing error return from a constructor's raw
// results, returning it if non-nil.
func splitError(out []reflect.Value) ([]reflect.Value, error) {
	if len(out) == 0 {
		return out, nil
	}
	last := out[len(out)-1]
	if !last.Type().Implements(errType) {
		return out, nil
	}
	if !last.IsNil() {
		return nil, last.Interface().(error)
	}
	return out[:len(out)-1], nil
}

// valueOrZero returns val as a reflect.Value of type t, or t's zero value if
// val is nil (an unsatisfied optional dependency).
func valueOrZero(val any, t reflect.Type) reflect.Value {
	if val == nil {
		return reflect.Zero(t)
	}
	return reflect.ValueOf(val)
}

// setFieldValue assigns val into field, leaving field at its zero value if
// val is nil.
func setFieldValue(field reflect.Value, val any) {
	if val == nil {
		return
	}
	field.Set(reflect.ValueOf(val))
}
