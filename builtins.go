package wireup

import (
	"context"
	"reflect"
)

// Built-in types the provider supplies without a registration: any
// constructor may ask for them like any other dependency.
var (
	contextType  = reflect.TypeOf((*context.Context)(nil)).Elem()
	providerType = reflect.TypeOf((*Provider)(nil)).Elem()
	scopeType    = reflect.TypeOf((*Scope)(nil)).Elem()
)

// builtinKind marks an argument that is supplied directly from the
// resolving scope rather than through a compiled call site.
type builtinKind int

const (
	builtinNone builtinKind = iota
	builtinContext
	builtinProvider
	builtinScope
)

func builtinFor(t reflect.Type) builtinKind {
	switch t {
	case contextType:
		return builtinContext
	case providerType:
		return builtinProvider
	case scopeType:
		return builtinScope
	default:
		return builtinNone
	}
}
