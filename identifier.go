package wireup

import (
	"fmt"
	"reflect"
)

// anyKeySentinel is the concrete type behind AnyKey. It exists only so that
// AnyKey has an identity no caller-supplied key value can collide with.
type anyKeySentinel struct{}

// AnyKey is the wildcard key: a keyed descriptor registered with AnyKey
// satisfies a lookup for any key on its service type. A single-service
// lookup for AnyKey itself fails with KeyedServiceAnyKeyUsedToResolveError;
// as a sequence key it enumerates every non-group, non-AnyKey registration
// of the type.
var AnyKey = anyKeySentinel{}

// identifier is the canonical identity of a single registration: a type plus
// an optional key. The zero Key (nil) means "not keyed".
type identifier struct {
	Type reflect.Type
	Key  any
}

func (id identifier) String() string {
	if id.Key == nil {
		return formatType(id.Type)
	}
	return fmt.Sprintf("%s[key=%v]", formatType(id.Type), id.Key)
}

// cacheKey extends identifier with a slot that keeps apart the cached values
// of a named group's members, which are all cached under their group's
// sequence identifier; the slot is 0 everywhere else.
type cacheKey struct {
	identifier
	slot int
}

// formatType renders a reflect.Type for error messages and identifier
// strings, recursing through pointer indirection so *Foo reads as "*" plus
// Foo's own formatted name rather than reflect's default "*pkg.Foo" form.
func formatType(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t.Kind() == reflect.Pointer {
		return "*" + formatType(t.Elem())
	}
	if t.Name() == "" {
		return t.String()
	}
	if t.PkgPath() == "" {
		return t.Name()
	}
	return t.PkgPath() + "." + t.Name()
}
