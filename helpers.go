package wireup

import (
	"fmt"
	"reflect"
)

// Resolving is satisfied by both Provider and Scope, so the generic helpers
// below work against either.
type Resolving interface {
	Resolve(serviceType reflect.Type) (any, error)
	ResolveKeyed(serviceType reflect.Type, key any) (any, error)
	ResolveGroup(serviceType reflect.Type, group string) ([]any, error)
	ResolveSequence(serviceType reflect.Type) ([]any, error)
	ResolveKeyedSequence(serviceType reflect.Type, key any) ([]any, error)
}

func serviceTypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// assertServiceType asserts service as T, falling back to a pointer
// dereference when T is a value type and service is a *T (the shape a
// pointer-returning constructor naturally produces).
func assertServiceType[T any](service any, serviceType reflect.Type) (T, error) {
	var zero T

	if svc, ok := service.(T); ok {
		return svc, nil
	}

	if serviceType.Kind() != reflect.Pointer && serviceType.Kind() != reflect.Interface {
		v := reflect.ValueOf(service)
		if v.Kind() == reflect.Pointer && !v.IsNil() && v.Elem().Type() == serviceType {
			if svc, ok := v.Elem().Interface().(T); ok {
				return svc, nil
			}
		}
	}

	return zero, fmt.Errorf("wireup: resolved value of type %T does not satisfy %s", service, formatType(serviceType))
}

// Resolve resolves the unkeyed service of type T from r.
func Resolve[T any](r Resolving) (T, error) {
	var zero T
	if r == nil {
		return zero, ErrNilServiceProvider
	}
	serviceType := serviceTypeOf[T]()
	service, err := r.Resolve(serviceType)
	if err != nil {
		return zero, err
	}
	return assertServiceType[T](service, serviceType)
}

// MustResolve resolves the unkeyed service of type T from r, panicking on
// failure. Intended for wiring code at program startup, not request paths.
func MustResolve[T any](r Resolving) T {
	v, err := Resolve[T](r)
	if err != nil {
		panic(err)
	}
	return v
}

// ResolveKeyed resolves the service of type T registered under key.
func ResolveKeyed[T any](r Resolving, key any) (T, error) {
	var zero T
	if r == nil {
		return zero, ErrNilServiceProvider
	}
	serviceType := serviceTypeOf[T]()
	service, err := r.ResolveKeyed(serviceType, key)
	if err != nil {
		return zero, err
	}
	return assertServiceType[T](service, serviceType)
}

// ResolveGroup resolves every service of type T registered in the named
// group, in registration order.
func ResolveGroup[T any](r Resolving, group string) ([]T, error) {
	if r == nil {
		return nil, ErrNilServiceProvider
	}
	serviceType := serviceTypeOf[T]()
	services, err := r.ResolveGroup(serviceType, group)
	if err != nil {
		return nil, err
	}
	return assertSlice[T](services, serviceType)
}

// ResolveSequence resolves the unkeyed registration of type T as a
// single-element sequence (or an empty one if T was never registered
// unkeyed) — the unnamed counterpart of ResolveGroup. A sibling registered
// under a Name never appears here; use ResolveKeyedSequence(r, key) for
// that, or ResolveKeyedSequence(r, wireup.AnyKey) to fan in every
// registration of T outside groups, unkeyed and keyed alike.
func ResolveSequence[T any](r Resolving) ([]T, error) {
	if r == nil {
		return nil, ErrNilServiceProvider
	}
	serviceType := serviceTypeOf[T]()
	services, err := r.ResolveSequence(serviceType)
	if err != nil {
		return nil, err
	}
	return assertSlice[T](services, serviceType)
}

// ResolveKeyedSequence resolves the Sequence[T] fan-in scoped to key: an
// exact concrete key matches only that key's own registration (same as
// ResolveSequence for the unkeyed case), while wireup.AnyKey enumerates
// every registration of T that is not in a group (the unkeyed one
// included), in declaration order.
func ResolveKeyedSequence[T any](r Resolving, key any) ([]T, error) {
	if r == nil {
		return nil, ErrNilServiceProvider
	}
	serviceType := serviceTypeOf[T]()
	services, err := r.ResolveKeyedSequence(serviceType, key)
	if err != nil {
		return nil, err
	}
	return assertSlice[T](services, serviceType)
}

func assertSlice[T any](services []any, serviceType reflect.Type) ([]T, error) {
	out := make([]T, 0, len(services))
	for _, service := range services {
		v, err := assertServiceType[T](service, serviceType)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// AddGeneratorSingleton registers factory as a singleton whose value is
// produced by its Produce func and, if set, torn down by its Finalize func
// when the provider closes.
func AddGeneratorSingleton[T any](c Collection, factory GeneratorFactory[T], opts ...AddOption) error {
	return addGenerator(c, factory, Singleton, opts...)
}

// AddGeneratorScoped registers factory as scoped: Produce runs once per
// scope, Finalize (if set) runs when that scope closes.
func AddGeneratorScoped[T any](c Collection, factory GeneratorFactory[T], opts ...AddOption) error {
	return addGenerator(c, factory, Scoped, opts...)
}

// AddGeneratorTransient registers factory as transient: Produce runs on
// every resolution, Finalize (if set) runs when the resolving scope closes.
func AddGeneratorTransient[T any](c Collection, factory GeneratorFactory[T], opts ...AddOption) error {
	return addGenerator(c, factory, Transient, opts...)
}

func addGenerator[T any](c Collection, factory GeneratorFactory[T], lifetime Lifetime, opts ...AddOption) error {
	cc, ok := c.(*collection)
	if !ok {
		return fmt.Errorf("wireup: AddGenerator* requires a *collection, got %T", c)
	}
	options := resolveAddOptions(opts)
	d, err := newGeneratorDescriptor[T](cc.analyzer, factory, lifetime, options)
	if err != nil {
		return err
	}
	return cc.register(d, options)
}
