package wireup

// validateRootResolution enforces the one scope-purity check that cannot be
// decided at compile time: a scoped service can only be resolved from a
// scope that was actually created for it, never from the root scope.
//
// Singleton-depends-on-scoped is already rejected when its call site is
// compiled (see callSiteFactory.buildArguments), since a singleton's call
// site is built once and shared for the provider's entire lifetime. This
// check instead applies to resolving a call site directly against the root
// scope, where the lifetime is fine (scoped-from-scoped would also be fine)
// but the scope itself is wrong.
//
// Grounded in the original's CallSiteValidator.validate_resolution, adapted
// to read scopedDescendant/firstScopedType off the already-compiled call
// site instead of re-walking the tree per resolution.
func validateRootResolution(site *callSite, scope Scope) error {
	if !scope.IsRoot() {
		return nil
	}
	if !site.scopedDescendant {
		return nil
	}

	if site.id.Type == site.firstScopedType {
		return &DirectScopedResolvedFromRootError{ServiceType: site.id.Type}
	}
	return &ScopedResolvedFromRootError{ServiceType: site.id.Type, ScopedType: site.firstScopedType}
}
