package wireup

import (
	"reflect"

	"github.com/wireup-go/wireup/internal/reflection"
)

// cacheLocation says where a resolved value should be cached, derived
// straight from Lifetime: Singleton values live on the provider, Scoped
// values live on whichever scope resolved them, Transient values are never
// cached.
type cacheLocation int

const (
	cacheNone cacheLocation = iota
	cacheScope
	cacheRoot
)

type resultCache struct {
	location cacheLocation
	key      cacheKey
}

func resultCacheFor(lifetime Lifetime, key cacheKey) resultCache {
	switch lifetime {
	case Singleton:
		return resultCache{location: cacheRoot, key: key}
	case Scoped:
		return resultCache{location: cacheScope, key: key}
	default:
		return resultCache{location: cacheNone, key: key}
	}
}

type callSiteKind int

const (
	siteConstructor callSiteKind = iota
	siteInstance
	siteSequence
	// siteProjection extracts one value out of a shared producer call site,
	// for Out-struct results and multi-return constructors: the producer
	// runs once per cached value of its lifetime (on every resolution for a
	// Transient), and every sibling field/index gets its own cache entry
	// around a cheap field extraction.
	siteProjection
)

// argument describes how to obtain one value the constructor needs: another
// call site to resolve recursively, the current identifier's own key (for a
// servicekey-tagged field), or a built-in value supplied directly by the
// resolving scope (context.Context, Provider, Scope).
type argument struct {
	dep       reflection.Dependency
	site      *callSite // nil when useOwnKey or builtin != builtinNone
	useOwnKey bool
	ownKey    any // baked in at compile time: the enclosing identifier's key
	builtin   builtinKind
}

// callSite is a compiled, ready-to-execute plan for producing one service
// value. It is built once per identifier (a group member as part of its
// group's call site) by the callSiteFactory and then replayed by the
// resolver on every resolution.
type callSite struct {
	kind  callSiteKind
	id    identifier
	cache resultCache

	descriptor *Descriptor
	arguments  []argument

	isParamObject  bool
	isResultObject bool
	resultIndex    int // field index within an Out struct, -1 otherwise

	// members holds the compiled call sites fanned into a Sequence[T] or
	// named group, in declaration order.
	members []*callSite

	// producer is set on a siteProjection call site: the shared call site
	// that actually runs the constructor.
	producer *callSite

	// scopedDescendant is true if this call site or anything in its
	// dependency tree is Scoped. Computed once at compile time so the
	// validator never re-walks the tree per resolution.
	scopedDescendant bool

	// firstScopedType is the service type of the first Scoped call site
	// encountered in this call site's own tree (itself, if this call site is
	// Scoped), or nil if scopedDescendant is false. The callSiteFactory uses
	// it to name the offending type in ScopedInSingletonError, and the
	// validator in ScopedResolvedFromRootError, without re-walking the tree.
	firstScopedType reflect.Type
}
