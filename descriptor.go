package wireup

import (
	"context"
	"fmt"
	"reflect"

	"github.com/wireup-go/wireup/internal/reflection"
)

// FinalizeFunc runs when a value produced by a GeneratorFactory is torn
// down, mirroring the teardown half of a Python generator-backed factory.
type FinalizeFunc func(ctx context.Context, value any) error

// Descriptor is a single service registration: what it produces, how it is
// constructed, and under what lifetime and identity.
type Descriptor struct {
	// Type is the service type this descriptor produces.
	Type reflect.Type

	// Key is the optional key for a keyed registration. nil means unkeyed.
	Key any

	// Group is the optional fan-in group name this descriptor belongs to.
	Group string

	Lifetime Lifetime

	// Constructor is the reflected constructor function. Zero Value when
	// IsInstance is true.
	Constructor     reflect.Value
	ConstructorType reflect.Type
	Dependencies    []reflection.Dependency

	// As lists additional interface types this descriptor also satisfies,
	// each registered as its own identifier with its own call site and
	// cached value, so a constructor runs separately for each interface.
	As []reflect.Type

	IsInstance bool
	Instance   any

	// IsResultObject marks a constructor whose first return is an Out
	// struct: ResultIndex selects which field this Descriptor represents.
	IsResultObject bool
	ResultFields   []reflection.ResultField
	ResultIndex    int

	// MultiReturnIndex selects which non-error return value of a
	// multi-return constructor this Descriptor represents, or -1 for a
	// single-value (or Out-backed) constructor.
	MultiReturnIndex int

	// Finalize, when set, is invoked on teardown with the value this
	// descriptor produced — the Go stand-in for a generator factory's
	// post-yield cleanup code.
	Finalize FinalizeFunc

	// AutoActivate marks a descriptor the provider should eagerly
	// construct at Build time rather than lazily on first resolution
	// (only meaningful for Singleton).
	AutoActivate bool
}

// newInstanceDescriptor builds a Descriptor that wraps an already-built
// value: no constructor runs, the instance is shared directly.
func newInstanceDescriptor(instance any, lifetime Lifetime, opts *addOptions) *Descriptor {
	d := &Descriptor{
		Type:             reflect.TypeOf(instance),
		Lifetime:         lifetime,
		IsInstance:       true,
		Instance:         instance,
		MultiReturnIndex: -1,
		ResultIndex:      -1,
	}
	applyAddOptionsTo(d, opts)
	return d
}

// newConstructorDescriptors analyzes a constructor function and returns one
// Descriptor per value it produces: a single Descriptor for an ordinary
// constructor, or one per field for an Out-result-object / multi-return
// constructor.
func newConstructorDescriptors(analyzer *reflection.Analyzer, constructor any, lifetime Lifetime, opts *addOptions) ([]*Descriptor, error) {
	info, err := analyzer.Analyze(constructor)
	if err != nil {
		return nil, &InvalidServiceDescriptorError{Message: err.Error()}
	}

	val := reflect.ValueOf(constructor)
	typ := val.Type()

	base := func(resultIdx, multiIdx int) *Descriptor {
		return &Descriptor{
			Lifetime:         lifetime,
			Constructor:      val,
			ConstructorType:  typ,
			Dependencies:     info.Dependencies,
			IsResultObject:   info.IsResultObject,
			ResultFields:     info.Results,
			ResultIndex:      resultIdx,
			MultiReturnIndex: multiIdx,
		}
	}

	if info.IsResultObject {
		descriptors := make([]*Descriptor, 0, len(info.Results))
		for i, rf := range info.Results {
			d := base(i, -1)
			d.Type = rf.Type
			d.Group = rf.Group
			if rf.Key != nil {
				d.Key = rf.Key
			}
			applyAddOptionsTo(d, opts)
			descriptors = append(descriptors, d)
		}
		return descriptors, nil
	}

	nonError := make([]reflection.ResultField, 0, len(info.Results))
	for _, r := range info.Results {
		if !r.IsError {
			nonError = append(nonError, r)
		}
	}
	if len(nonError) == 0 {
		return nil, &InvalidServiceDescriptorError{Message: "constructor returns no usable value"}
	}

	if len(nonError) == 1 {
		d := base(-1, -1)
		d.Type = nonError[0].Type
		applyAddOptionsTo(d, opts)
		return []*Descriptor{d}, nil
	}

	descriptors := make([]*Descriptor, 0, len(nonError))
	for i, r := range nonError {
		d := base(-1, i)
		d.Type = r.Type
		applyAddOptionsTo(d, opts)
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

// newGeneratorDescriptor wraps a GeneratorFactory[T] as a single Descriptor
// whose constructor value is the Produce func; Finalize carries the
// teardown half. Produce is analyzed like any other constructor so its
// context.Context and Scope parameters resolve as the usual built-ins.
func newGeneratorDescriptor[T any](analyzer *reflection.Analyzer, factory GeneratorFactory[T], lifetime Lifetime, opts *addOptions) (*Descriptor, error) {
	if factory.Produce == nil {
		return nil, &InvalidServiceDescriptorError{Message: "generator factory Produce cannot be nil"}
	}

	produceFn := func(ctx context.Context, s Scope) (T, error) {
		return factory.Produce(ctx, s)
	}
	val := reflect.ValueOf(produceFn)

	info, err := analyzer.Analyze(produceFn)
	if err != nil {
		return nil, &InvalidServiceDescriptorError{Message: err.Error()}
	}

	d := &Descriptor{
		Type:             reflect.TypeOf((*T)(nil)).Elem(),
		Lifetime:         lifetime,
		Constructor:      val,
		ConstructorType:  val.Type(),
		Dependencies:     info.Dependencies,
		MultiReturnIndex: -1,
		ResultIndex:      -1,
	}
	if factory.Finalize != nil {
		d.Finalize = func(ctx context.Context, value any) error {
			v, ok := value.(T)
			if !ok {
				return fmt.Errorf("wireup: finalize received %T, expected %s", value, formatType(d.Type))
			}
			return factory.Finalize(ctx, v)
		}
	}
	applyAddOptionsTo(d, opts)
	return d, nil
}

// Validate checks internal consistency of a descriptor before it is added
// to a Collection.
func (d *Descriptor) Validate() error {
	if d.Type == nil {
		return &InvalidServiceDescriptorError{Message: "descriptor has no service type"}
	}
	if d.Key != nil && d.Group != "" {
		return &InvalidServiceDescriptorError{ServiceType: d.Type, Message: "descriptor cannot have both a key and a group"}
	}
	switch d.Lifetime {
	case Singleton, Scoped, Transient:
	default:
		return &InvalidServiceDescriptorError{ServiceType: d.Type, Message: fmt.Sprintf("invalid lifetime %v", d.Lifetime)}
	}
	if !d.IsInstance && !d.Constructor.IsValid() {
		return &InvalidServiceDescriptorError{ServiceType: d.Type, Message: "descriptor has neither an instance nor a constructor"}
	}
	return nil
}

// identifier returns the identity this descriptor registers under.
func (d *Descriptor) identifier() identifier {
	return identifier{Type: d.Type, Key: d.Key}
}

// GeneratorFactory models a sync-or-async generator-backed factory: Produce
// builds the value, Finalize tears it down. It is the Go stand-in for the
// Python original's yield-based factory, since Go has no generator syntax.
type GeneratorFactory[T any] struct {
	Produce  func(ctx context.Context, s Scope) (T, error)
	Finalize func(ctx context.Context, value T) error
}
