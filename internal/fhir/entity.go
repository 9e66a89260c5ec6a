package fhir

import (
	"time"

	"fhirsync/internal/resource"
)

// ResourceEntity is the stored row for the current version of a resource.
// UUID is the surrogate id; it never changes, even when a server renames the
// logical id.
type ResourceEntity struct {
	UUID              string
	Type              string
	ID                string
	Payload           []byte // plaintext JSON
	VersionID         string // empty until the resource has been synced
	LastUpdatedRemote time.Time
	LastUpdatedLocal  time.Time
}

// ResourceWithUUID pairs a search result with its surrogate id.
type ResourceWithUUID struct {
	UUID     string
	Resource *resource.Resource
}

// IncludedResource is one row of a forward or reverse include search.
// SearchIndex is the reference path the include was requested for and
// BaseUUID identifies the base resource the row belongs to.
type IncludedResource struct {
	SearchIndex string
	BaseUUID    string
	Resource    *resource.Resource
}
