package fhir

import (
	"context"
	"time"

	"fhirsync/internal/resource"
)

// Database is the local resource store: current resources, the change log of
// pending local mutations, and the derived reference index.
// Every mutating method runs inside a single transaction.
type Database interface {
	// WithTransaction runs fn inside a transaction. Calls made from fn with the
	// context it receives join the same transaction instead of starting a new
	// one. The caller may abandon the call while it waits for the writer lock;
	// once the transaction has begun it runs to commit or rollback.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Resource operations

	// Insert stores new local resources and records an INSERT change for each.
	// Resources without a logical id get one assigned. Returns the logical ids.
	Insert(ctx context.Context, resources ...*resource.Resource) ([]string, error)

	// InsertRemote stores resources as already synced. No change is recorded.
	InsertRemote(ctx context.Context, resources ...*resource.Resource) error

	// Update replaces existing resources and records an UPDATE change carrying
	// the previous payload for each.
	Update(ctx context.Context, resources ...*resource.Resource) error

	// Delete removes the resource and records a DELETE change. Deleting a
	// resource that does not exist is a no-op.
	Delete(ctx context.Context, resourceType, id string) error

	// Select returns the current resource or a *ResourceNotFoundError.
	Select(ctx context.Context, resourceType, id string) (*resource.Resource, error)

	// SelectEntity returns the stored row or a *ResourceNotFoundError.
	SelectEntity(ctx context.Context, resourceType, id string) (*ResourceEntity, error)

	// Purge deletes a resource and, when force is set, its pending changes.
	// Without force, pending changes make it fail with a *PendingChangesError.
	Purge(ctx context.Context, resourceType, id string, force bool) error

	// ClearDatabase removes every resource, change and index row.
	ClearDatabase(ctx context.Context) error

	// Search operations

	Search(ctx context.Context, query SearchQuery) ([]ResourceWithUUID, error)
	SearchForwardReferenced(ctx context.Context, query SearchQuery) ([]IncludedResource, error)
	SearchReverseReferenced(ctx context.Context, query SearchQuery) ([]IncludedResource, error)
	Count(ctx context.Context, query SearchQuery) (int64, error)

	// Change log operations

	GetAllLocalChanges(ctx context.Context) ([]LocalChange, error)
	GetLocalChangesCount(ctx context.Context) (int64, error)
	GetLocalChanges(ctx context.Context, resourceType, id string) ([]LocalChange, error)
	GetLocalChangesByUUID(ctx context.Context, resourceUUID string) ([]LocalChange, error)

	// GetAllChangesForEarliestChangedResource returns every pending change of
	// the resource that owns the oldest pending change, oldest first.
	GetAllChangesForEarliestChangedResource(ctx context.Context) ([]LocalChange, error)

	// DeleteUpdates discards the changes named by token. Ids that no longer
	// exist are ignored.
	DeleteUpdates(ctx context.Context, token LocalChangeToken) error

	// Post-sync operations

	// UpdateVersionIDAndLastUpdated records remote metadata for a resource.
	UpdateVersionIDAndLastUpdated(ctx context.Context, resourceType, id, versionID string, lastUpdated time.Time) error

	// UpdateResourceAndReferences replaces the resource currently stored under
	// currentID with updated. If the logical id changed, every resource and
	// pending change referencing the old id is rewritten.
	UpdateResourceAndReferences(ctx context.Context, currentID string, updated *resource.Resource) error

	// UpdateResourcePostSync renames preSyncID to postSyncID, stamps the remote
	// metadata, and rewrites references held by other resources, including the
	// given dependents.
	UpdateResourcePostSync(ctx context.Context, resourceType, preSyncID, postSyncID, versionID string, lastUpdated time.Time, dependents []string) error

	// GetReferencingResourceUUIDs returns the surrogate ids of resources whose
	// pending changes reference resourceType/id.
	GetReferencingResourceUUIDs(ctx context.Context, resourceType, id string) ([]string, error)

	// Close closes the database connection.
	Close() error
}
