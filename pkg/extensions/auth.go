// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned when authentication or authorization
// fails. Implementations should wrap it so callers can match with
// errors.Is.
//
// Example:
//
//	if !validToken {
//	    return nil, fmt.Errorf("invalid token format: %w", extensions.ErrUnauthorized)
//	}
var ErrUnauthorized = errors.New("unauthorized")

// AuthInfo is the identity returned after successful authentication.
//
// UserID is the only required field. Metadata is the extension point
// for provider-specific claims (group memberships, MFA state) so the
// core type never needs to change.
type AuthInfo struct {
	// UserID is the unique identifier for the authenticated user.
	// Must never be empty.
	UserID string

	// Email is the user's email address, when the provider supplies one.
	Email string

	// Roles contains the user's role memberships for authorization
	// decisions. Common roles: "admin", "analyst", "viewer".
	Roles []string

	// Metadata holds additional claims from the identity provider.
	Metadata map[string]any
}

// HasRole checks if the user has a specific role.
//
//	if !authInfo.HasRole("admin") {
//	    return ErrUnauthorized
//	}
func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates authentication tokens and returns user
// identity.
//
// Implementations must be safe for concurrent use.
//
// The default NopAuthProvider accepts every token (including the empty
// string) and answers with the local user, which is what lets the CLI
// talk to a local backend with no auth infrastructure at all. Hosted
// deployments validate tokens against their identity provider and
// return real identities, wrapping ErrUnauthorized on rejection.
type AuthProvider interface {
	// Validate checks the token and returns the user's identity, or an
	// error wrapping ErrUnauthorized when the token is rejected.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// AuthzRequest describes one permission check: who wants to do what to
// which resource.
//
// Example:
//
//	req := AuthzRequest{
//	    User:         authInfo,
//	    Action:       "delete",
//	    ResourceType: "document",
//	    ResourceID:   "doc-456",
//	}
type AuthzRequest struct {
	// User is the authenticated user making the request, as returned
	// by AuthProvider.Validate.
	User *AuthInfo

	// Action is the operation being attempted.
	// Common actions: "create", "read", "delete", "search".
	Action string

	// ResourceType is the category of resource being accessed.
	// Examples: "document", "session", "datastore".
	ResourceType string

	// ResourceID is the specific resource instance. Empty means the
	// check is for the resource type in general.
	ResourceID string
}

// AuthzProvider checks whether a user may perform an action.
//
// Implementations must be safe for concurrent use. The default
// NopAuthzProvider allows everything; hosted deployments put RBAC or
// policy evaluation behind this interface.
type AuthzProvider interface {
	// Authorize returns nil when the action is permitted, or an error
	// wrapping ErrUnauthorized when it is denied.
	Authorize(ctx context.Context, req AuthzRequest) error
}

// NopAuthProvider authenticates every request as the local user with
// admin privileges. This is the default for local single-user builds.
type NopAuthProvider struct{}

// Validate ignores the token and returns the local user.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{
		UserID: "local-user",
		Roles:  []string{"admin"},
	}, nil
}

// NopAuthzProvider allows all actions. This is the default for local
// single-user builds.
type NopAuthzProvider struct{}

// Authorize always returns nil.
func (p *NopAuthzProvider) Authorize(_ context.Context, _ AuthzRequest) error {
	return nil
}

var (
	_ AuthProvider  = (*NopAuthProvider)(nil)
	_ AuthzProvider = (*NopAuthzProvider)(nil)
)
