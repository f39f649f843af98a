// Package wireup is a dependency injection container for Go applications,
// modeled on the lifetime and injection conventions of Microsoft.Extensions.DependencyInjection
// while staying idiomatic Go: constructor functions, struct tags instead of
// attributes, and explicit error returns instead of exceptions.
//
// # Overview
//
// wireup provides:
//   - Three service lifetimes: Singleton, Scoped, and Transient
//   - Constructor injection with automatic dependency resolution
//   - Keyed services, named groups, and unnamed sequence fan-in
//   - Parameter objects (In) and result objects (Out) for wide constructors
//   - Built-in injection of context.Context, Provider, and Scope
//   - Generator factories for services needing asynchronous teardown
//   - Compile-time rejection of scope-purity violations
//
// # Basic Usage
//
//	services := wireup.NewCollection()
//	services.AddSingleton(NewLogger)
//	services.AddScoped(NewUserService)
//
//	provider, err := services.Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	userService, err := wireup.Resolve[*UserService](provider)
//
// # Service Lifetimes
//
//   - Singleton: one instance, shared for the life of the Provider
//   - Scoped: one instance per Scope, typically one per request
//   - Transient: a new instance on every resolution
//
// With ProviderOptions.ValidateScopes on (as Build sets it), a Singleton's
// dependency graph may not reach a Scoped service: a direct dependency is
// rejected by Build, a transitive one when the Singleton's call site is
// compiled (at Build with ValidateOnBuild, otherwise on first resolution).
//
// # Parameter Objects (In)
//
//	type serviceParams struct {
//	    wireup.In
//
//	    DB      *sql.DB
//	    Logger  Logger         `optional:"true"`
//	    Cache   Cache          `name:"redis"`
//	    Routes  []http.Handler `group:"routes"`
//	}
//
//	func NewService(params serviceParams) *Service { ... }
//
// # Result Objects (Out)
//
//	type serviceResult struct {
//	    wireup.Out
//
//	    Users *UserService
//	    Admin *AdminService `name:"admin"`
//	}
//
//	func NewServices(db *sql.DB) serviceResult { ... }
//
// The fields of an Out struct share one underlying constructor call per
// cached value of its lifetime: a Singleton's runs once no matter how many
// of its fields get resolved, a Scoped one once per scope, and a Transient
// one on every resolution.
//
// # Keyed Services
//
//	services.AddSingleton(NewRedisCache, wireup.Name("redis"))
//	services.AddSingleton(NewMemoryCache, wireup.Name("memory"))
//
//	cache, err := wireup.ResolveKeyed[Cache](provider, "redis")
//
// # Groups and Sequences
//
// A named group fans in every registration tagged with the same group name,
// in registration order:
//
//	services.AddScoped(NewUserHandler, wireup.Group("handlers"))
//	services.AddScoped(NewAdminHandler, wireup.Group("handlers"))
//	handlers, err := wireup.ResolveGroup[http.Handler](provider, "handlers")
//
// A bare sequence fans in only the registration sharing the caller's key
// (the unkeyed one, by default); wireup.ResolveKeyedSequence with
// wireup.AnyKey instead fans in every registration of a type (the unkeyed
// one included; AnyKey catch-alls and group members excluded), in
// declaration order:
//
//	middlewares, err := wireup.ResolveSequence[Middleware](provider)
//	named, err := wireup.ResolveKeyedSequence[Middleware](provider, wireup.AnyKey)
//
// # Built-in Dependencies
//
// Any constructor may take a context.Context, wireup.Provider, or
// wireup.Scope parameter without registering one; the resolving scope
// supplies it directly.
//
// # Generator Factories
//
// A GeneratorFactory pairs a Produce func with an optional Finalize func run
// on teardown, the Go stand-in for a generator-backed factory:
//
//	wireup.AddGeneratorSingleton(services, wireup.GeneratorFactory[*Connection]{
//	    Produce: func(ctx context.Context, s wireup.Scope) (*Connection, error) {
//	        return dial(ctx)
//	    },
//	    Finalize: func(ctx context.Context, c *Connection) error {
//	        return c.Close()
//	    },
//	})
//
// # Modules
//
//	var DatabaseModule = wireup.Module("database",
//	    wireup.AddSingleton(NewDatabaseConnection),
//	    wireup.AddScoped(NewUserRepository),
//	)
//
//	services.AddModules(DatabaseModule)
//
// # Scopes
//
//	http.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
//	    scope := provider.CreateScope(r.Context())
//	    defer scope.Close()
//
//	    service, _ := wireup.Resolve[*UserService](scope)
//	})
//
// # Thread Safety
//
// Provider and Scope are safe for concurrent use. Collection is not: build
// up registrations from a single goroutine, then Build once.
package wireup
