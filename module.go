package wireup

import "errors"

// ModuleBuilder is one registration step inside a Module: typically one of
// AddSingleton, AddScoped, AddTransient, or a nested AddModule.
type ModuleBuilder func(Collection) error

// ModuleOption is a module, ready to be passed to Collection.AddModules.
type ModuleOption func(Collection) error

// Module groups related service registrations under a name, so registration
// failures are reported with that name attached. A failure inside a nested
// module keeps the innermost module's name.
//
//	var DatabaseModule = wireup.Module("database",
//	    wireup.AddSingleton(NewDatabaseConnection),
//	    wireup.AddScoped(NewUserRepository),
//	    wireup.AddScoped(NewOrderRepository),
//	)
//
//	var AppModule = wireup.Module("app",
//	    wireup.AddModule(DatabaseModule),
//	    wireup.AddScoped(NewAppService),
//	)
//
//	err := collection.AddModules(AppModule)
func Module(name string, builders ...ModuleBuilder) ModuleOption {
	return func(c Collection) error {
		for _, builder := range builders {
			if builder == nil {
				continue
			}
			if err := builder(c); err != nil {
				var modErr *ModuleError
				if errors.As(err, &modErr) {
					return err
				}
				return &ModuleError{Module: name, Cause: err}
			}
		}
		return nil
	}
}

// AddModule nests module as a ModuleBuilder inside another Module.
func AddModule(module ModuleOption) ModuleBuilder {
	return func(c Collection) error {
		if module == nil {
			return nil
		}
		return module(c)
	}
}

// AddSingleton creates a ModuleBuilder that registers constructor as a
// singleton.
func AddSingleton(constructor any, opts ...AddOption) ModuleBuilder {
	return func(c Collection) error {
		return c.AddSingleton(constructor, opts...)
	}
}

// AddScoped creates a ModuleBuilder that registers constructor as scoped.
func AddScoped(constructor any, opts ...AddOption) ModuleBuilder {
	return func(c Collection) error {
		return c.AddScoped(constructor, opts...)
	}
}

// AddTransient creates a ModuleBuilder that registers constructor as
// transient.
func AddTransient(constructor any, opts ...AddOption) ModuleBuilder {
	return func(c Collection) error {
		return c.AddTransient(constructor, opts...)
	}
}

// AddSingletonInstance creates a ModuleBuilder that registers an
// already-built singleton instance.
func AddSingletonInstance(instance any, opts ...AddOption) ModuleBuilder {
	return func(c Collection) error {
		return c.AddSingletonInstance(instance, opts...)
	}
}
