package wireup

import (
	"reflect"

	"github.com/wireup-go/wireup/internal/reflection"
)

// In, embedded anonymously in a constructor's single struct parameter, turns
// that struct into a parameter object: every other exported field becomes a
// dependency resolved before the constructor runs, instead of the struct
// being resolved as a single service.
//
//	type serviceParams struct {
//	    wireup.In
//
//	    DB      *sql.DB
//	    Logger  Logger         `optional:"true"`
//	    Cache   Cache          `name:"redis"`
//	    Routes  []http.Handler `group:"routes"`
//	    Key     any            `servicekey:"true"`
//	}
//
// The In field must be embedded anonymously, not given a field name.
type In = reflection.In

// Out, embedded anonymously in a constructor's first return value, registers
// each other exported field of that struct as its own service instead of
// registering the struct as a whole.
//
//	type serviceResults struct {
//	    wireup.Out
//
//	    Users  *UserService
//	    Admin  *AdminService  `name:"admin"`
//	    Route  http.Handler   `group:"routes"`
//	}
type Out = reflection.Out

// AddOption customizes a single Collection.Add* registration.
type AddOption interface {
	applyAddOption(*addOptions)
}

type addOptions struct {
	name         string
	group        string
	ifaces       []any
	autoActivate bool
}

type addOptionFunc func(*addOptions)

func (f addOptionFunc) applyAddOption(o *addOptions) { f(o) }

// Name registers the service under a key, making it resolvable only via a
// keyed lookup (ResolveKeyed) for that key.
func Name(name string) AddOption {
	return addOptionFunc(func(o *addOptions) { o.name = name })
}

// Group adds the service to a named fan-in group, collected by a slice field
// tagged `group:"name"` on an In struct, or by ResolveGroup.
func Group(group string) AddOption {
	return addOptionFunc(func(o *addOptions) { o.group = group })
}

// As registers the value under one or more interface types it implements
// instead of its concrete type: when As is given, only the listed
// interfaces become resolvable, each compiled as its own call site, so a
// Singleton registered under two interfaces this way still runs its
// constructor once per interface rather than sharing one instance.
//
//	collection.AddSingleton(newPostgresStore, wireup.As(new(Reader), new(Writer)))
func As(interfaces ...any) AddOption {
	return addOptionFunc(func(o *addOptions) { o.ifaces = append(o.ifaces, interfaces...) })
}

// AutoActivate marks a Singleton registration for eager construction at
// Build time rather than on first resolution.
func AutoActivate() AddOption {
	return addOptionFunc(func(o *addOptions) { o.autoActivate = true })
}

func applyAddOptionsTo(d *Descriptor, opts *addOptions) {
	if opts == nil {
		return
	}
	if opts.name != "" {
		d.Key = opts.name
	}
	if opts.group != "" {
		d.Group = opts.group
	}
	d.AutoActivate = opts.autoActivate
	for _, iface := range opts.ifaces {
		t := reflect.TypeOf(iface)
		if t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		d.As = append(d.As, t)
	}
}

func resolveAddOptions(opts []AddOption) *addOptions {
	o := &addOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt.applyAddOption(o)
		}
	}
	return o
}
