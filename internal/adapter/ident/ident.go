// Package ident supplies task identifiers.
package ident

import "github.com/google/uuid"

// UUIDSource implements ports.IDSource with random v4 UUIDs, matching the ids
// already present in stored datasets.
type UUIDSource struct{}

func (UUIDSource) NewID() string { return uuid.NewString() }
