package wireup

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Sentinel errors for the common, contextless failure modes.
var (
	ErrServiceKeyNil      = errors.New("wireup: service key cannot be nil")
	ErrNilConstructor     = errors.New("wireup: constructor cannot be nil")
	ErrNilServiceProvider = errors.New("wireup: service provider cannot be nil")
	ErrCollectionBuilt    = errors.New("wireup: collection has already been built")
	ErrObjectDisposed     = errors.New("wireup: object has been disposed")
	ErrScopeDisposed      = errors.New("wireup: scope has been disposed")
	ErrProviderDisposed   = errors.New("wireup: provider has been disposed")
	ErrScopeNotInContext  = errors.New("wireup: no scope found in context")
	ErrAnyKeyNotResolvable = errors.New("wireup: AnyKey cannot be used as a resolution key; it only matches during registration lookup")
)

// NoServiceRegisteredError is returned when a service type has no matching
// registration at all.
type NoServiceRegisteredError struct {
	ServiceType reflect.Type
}

func (e *NoServiceRegisteredError) Error() string {
	return fmt.Sprintf("no service registered for type %s", formatType(e.ServiceType))
}

// NoKeyedServiceRegisteredError is returned when a service type exists but
// not under the requested key.
type NoKeyedServiceRegisteredError struct {
	ServiceType reflect.Type
	Key         any
}

func (e *NoKeyedServiceRegisteredError) Error() string {
	return fmt.Sprintf("no service registered for type %s with key %v", formatType(e.ServiceType), e.Key)
}

// InvalidServiceKeyTypeError is returned when a lookup key's type does not
// match the type any registration was keyed with.
type InvalidServiceKeyTypeError struct {
	ServiceType reflect.Type
	Key         any
}

func (e *InvalidServiceKeyTypeError) Error() string {
	return fmt.Sprintf("key %v (%T) is not a valid key for service type %s", e.Key, e.Key, formatType(e.ServiceType))
}

// KeyedServiceAnyKeyUsedToResolveError is returned when a caller tries to
// resolve using AnyKey directly instead of a concrete key.
type KeyedServiceAnyKeyUsedToResolveError struct {
	ServiceType reflect.Type
}

func (e *KeyedServiceAnyKeyUsedToResolveError) Error() string {
	return fmt.Sprintf("AnyKey cannot be used to resolve service %s directly", formatType(e.ServiceType))
}

func (e *KeyedServiceAnyKeyUsedToResolveError) Is(target error) bool {
	return target == ErrAnyKeyNotResolvable
}

// CircularDependencyError reports a dependency cycle discovered while
// compiling a call site.
type CircularDependencyError struct {
	Chain []identifier
}

func (e *CircularDependencyError) Error() string {
	parts := make([]string, len(e.Chain))
	for i, id := range e.Chain {
		parts[i] = id.String()
	}
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(parts, " -> "))
}

// CannotResolveServiceError wraps the underlying cause of a failed
// resolution with the identifier that triggered it.
type CannotResolveServiceError struct {
	ServiceType reflect.Type
	Key         any
	Cause       error
}

func (e *CannotResolveServiceError) Error() string {
	if e.Key != nil {
		return fmt.Sprintf("unable to resolve %s[key=%v]: %v", formatType(e.ServiceType), e.Key, e.Cause)
	}
	return fmt.Sprintf("unable to resolve %s: %v", formatType(e.ServiceType), e.Cause)
}

func (e *CannotResolveServiceError) Unwrap() error { return e.Cause }

// ModuleError wraps an error raised while a Module's builders ran.
type ModuleError struct {
	Module string
	Cause  error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("module %q: %v", e.Module, e.Cause)
}

func (e *ModuleError) Unwrap() error { return e.Cause }

// InvalidServiceDescriptorError indicates a descriptor failed validation at
// registration time.
type InvalidServiceDescriptorError struct {
	ServiceType reflect.Type
	Message     string
}

func (e *InvalidServiceDescriptorError) Error() string {
	if e.ServiceType != nil {
		return fmt.Sprintf("invalid descriptor for %s: %s", formatType(e.ServiceType), e.Message)
	}
	return fmt.Sprintf("invalid descriptor: %s", e.Message)
}

// ScopedInSingletonError is the scope-purity violation: a singleton's
// dependency graph reaches a scoped service.
type ScopedInSingletonError struct {
	SingletonType reflect.Type
	ScopedType    reflect.Type
}

func (e *ScopedInSingletonError) Error() string {
	return fmt.Sprintf("cannot consume scoped service %s from singleton %s", formatType(e.ScopedType), formatType(e.SingletonType))
}

// DirectScopedResolvedFromRootError is returned when the scoped service
// itself (not a dependency of it) is resolved directly from the root scope.
type DirectScopedResolvedFromRootError struct {
	ServiceType reflect.Type
}

func (e *DirectScopedResolvedFromRootError) Error() string {
	return fmt.Sprintf("cannot resolve scoped service %s from the root scope; create a scope first", formatType(e.ServiceType))
}

// ScopedResolvedFromRootError is returned when a root-scope resolution
// transitively reaches a scoped descendant.
type ScopedResolvedFromRootError struct {
	ServiceType reflect.Type
	ScopedType  reflect.Type
}

func (e *ScopedResolvedFromRootError) Error() string {
	return fmt.Sprintf("cannot resolve %s from the root scope: it depends on scoped service %s", formatType(e.ServiceType), formatType(e.ScopedType))
}

// TimeoutError is returned when a resolution exceeds ProviderOptions'
// ResolutionTimeout.
type TimeoutError struct {
	ServiceType reflect.Type
	Timeout     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("resolution of %s timed out after %v", formatType(e.ServiceType), e.Timeout)
}

func (e *TimeoutError) Is(target error) bool {
	return errors.Is(target, context.DeadlineExceeded)
}

// ValidationError aggregates problems found during Provider build-time
// validation (ValidateOnBuild).
type ValidationError struct {
	Errors []error
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("validation failed with %d error(s):\n%s", len(e.Errors), strings.Join(parts, "\n"))
}

func (e *ValidationError) Unwrap() []error { return e.Errors }

// IsNotFound reports whether err indicates a service had no registration.
func IsNotFound(err error) bool {
	var notFound *NoServiceRegisteredError
	var notFoundKeyed *NoKeyedServiceRegisteredError
	return errors.As(err, &notFound) || errors.As(err, &notFoundKeyed)
}

// IsCircularDependency reports whether err is (or wraps) a dependency cycle.
func IsCircularDependency(err error) bool {
	var circ *CircularDependencyError
	return errors.As(err, &circ)
}

// IsDisposed reports whether err indicates a disposed scope or provider.
func IsDisposed(err error) bool {
	return errors.Is(err, ErrObjectDisposed) || errors.Is(err, ErrScopeDisposed) || errors.Is(err, ErrProviderDisposed)
}

// IsTimeout reports whether err is (or wraps) a resolution timeout.
func IsTimeout(err error) bool {
	var timeout *TimeoutError
	return errors.As(err, &timeout) || errors.Is(err, context.DeadlineExceeded)
}
