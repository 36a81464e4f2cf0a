// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import "github.com/edgebus/edgebus/transport"

// Registry maps service names to transport identities. It is owned by
// the broker loop and is not safe for concurrent use.
type Registry struct {
	byName     map[string]transport.Identity
	byIdentity map[transport.Identity]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:     make(map[string]transport.Identity),
		byIdentity: make(map[transport.Identity]string),
	}
}

// Register binds name to identity. When name was bound to a different
// identity, that identity is returned with replaced set.
func (r *Registry) Register(name string, identity transport.Identity) (previous transport.Identity, replaced bool) {
	previous, exists := r.byName[name]
	r.byName[name] = identity
	r.byIdentity[identity] = name
	if exists && previous != identity {
		if r.byIdentity[previous] == name {
			delete(r.byIdentity, previous)
		}
		return previous, true
	}
	return "", false
}

// Lookup returns the identity registered under name.
func (r *Registry) Lookup(name string) (transport.Identity, bool) {
	identity, ok := r.byName[name]
	return identity, ok
}

// NameOf returns the service name identity last registered, for
// logging. Unknown identities return "".
func (r *Registry) NameOf(identity transport.Identity) string {
	return r.byIdentity[identity]
}

// Len returns the number of registered names.
func (r *Registry) Len() int {
	return len(r.byName)
}
