// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines the seams where hosted Miras deployments
// attach capabilities the local build does not need.
//
// The local build serves a single user on their own machine: requests
// are trusted, queries are not recorded, and nothing is filtered. A
// hosted deployment fronts the same backend for many users and needs
// authentication, audit trails, and content filtering. Rather than
// fork the backend, those concerns are expressed here as interfaces
// with no-op defaults; deployments inject concrete implementations
// through ServiceOptions and the core code stays identical.
//
// # Extension Points
//
//   - auth.go: token validation and per-resource authorization
//     (AuthProvider, AuthzProvider)
//   - audit.go: recording of search turns and administrative actions
//     (AuditLogger)
//   - filter.go: query and answer transformation, such as secret
//     redaction (MessageFilter)
//
// # Thread Safety
//
// All interface implementations must be safe for concurrent use;
// multiple request goroutines call them simultaneously.
package extensions

// ServiceOptions groups the extension points handed to the backend at
// startup.
//
// All fields are optional; nil values are replaced with no-op defaults
// by DefaultOptions() or by nil checks in the consuming constructors.
//
// Example:
//
//	// Local build: use defaults
//	opts := extensions.DefaultOptions()
//
//	// Hosted deployment: inject implementations
//	opts := extensions.DefaultOptions().
//	    WithAuth(oidcProvider).
//	    WithAudit(warehouseAuditor)
type ServiceOptions struct {
	// AuthProvider validates authentication tokens.
	// Default: NopAuthProvider (always returns the local user)
	AuthProvider AuthProvider

	// AuthzProvider checks per-resource permissions.
	// Default: NopAuthzProvider (always allows)
	AuthzProvider AuthzProvider

	// AuditLogger records search turns and administrative actions.
	// Default: NopAuditLogger (discards all events)
	AuditLogger AuditLogger

	// MessageFilter transforms queries before they leave the process
	// and answers before they are stored.
	// Default: NopMessageFilter (passes through unchanged)
	MessageFilter MessageFilter
}

// DefaultOptions returns ServiceOptions with no-op defaults: every
// request authenticates as the local user, all actions are allowed,
// no audit trail, no filtering.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuthProvider:  &NopAuthProvider{},
		AuthzProvider: &NopAuthzProvider{},
		AuditLogger:   &NopAuditLogger{},
		MessageFilter: &NopMessageFilter{},
	}
}

// WithAuth returns a copy of opts with the given AuthProvider.
func (opts ServiceOptions) WithAuth(provider AuthProvider) ServiceOptions {
	opts.AuthProvider = provider
	return opts
}

// WithAuthz returns a copy of opts with the given AuthzProvider.
func (opts ServiceOptions) WithAuthz(provider AuthzProvider) ServiceOptions {
	opts.AuthzProvider = provider
	return opts
}

// WithAudit returns a copy of opts with the given AuditLogger.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}

// WithFilter returns a copy of opts with the given MessageFilter.
func (opts ServiceOptions) WithFilter(filter MessageFilter) ServiceOptions {
	opts.MessageFilter = filter
	return opts
}
