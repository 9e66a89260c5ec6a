package fhir

import (
	"context"
	"errors"
	"fmt"

	"fhirsync/internal/resource"
)

// Query is a compiled search with optional includes. search.Builder
// implements it.
type Query interface {
	Compile() (SearchQuery, error)
	CompileForwardIncludes(baseUUIDs []string) (SearchQuery, bool)
	CompileReverseIncludes(baseUUIDs []string) (SearchQuery, bool)
}

// CountQuery compiles to a statement selecting a single count.
type CountQuery interface {
	CompileCount() (SearchQuery, error)
}

// SearchResult holds the base matches of a search and the resources pulled
// in by its includes.
type SearchResult struct {
	Resources   []ResourceWithUUID
	Included    []IncludedResource
	RevIncluded []IncludedResource
}

// Engine is the service layer the CLI talks to. It coordinates the local
// store with the upload and download collaborators.
type Engine struct {
	database     Database
	uploader     Uploader
	consolidator Consolidator
	downloader   Downloader
	logger       Logger
}

// NewEngine creates an Engine. uploader, consolidator and downloader may be
// nil when sync is not needed; the sync operations then fail.
func NewEngine(database Database, uploader Uploader, consolidator Consolidator, downloader Downloader, logger Logger) *Engine {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Engine{
		database:     database,
		uploader:     uploader,
		consolidator: consolidator,
		downloader:   downloader,
		logger:       logger,
	}
}

func (e *Engine) Create(ctx context.Context, resources ...*resource.Resource) ([]string, error) {
	ids, err := e.database.Insert(ctx, resources...)
	if err != nil {
		return nil, fmt.Errorf("creating resources: %w", err)
	}
	e.logger.Info("created resources", "count", len(ids))
	return ids, nil
}

func (e *Engine) Get(ctx context.Context, resourceType, id string) (*resource.Resource, error) {
	return e.database.Select(ctx, resourceType, id)
}

func (e *Engine) Update(ctx context.Context, resources ...*resource.Resource) error {
	if err := e.database.Update(ctx, resources...); err != nil {
		return fmt.Errorf("updating resources: %w", err)
	}
	e.logger.Info("updated resources", "count", len(resources))
	return nil
}

func (e *Engine) Delete(ctx context.Context, resourceType, id string) error {
	if err := e.database.Delete(ctx, resourceType, id); err != nil {
		return fmt.Errorf("deleting %s/%s: %w", resourceType, id, err)
	}
	return nil
}

func (e *Engine) Purge(ctx context.Context, resourceType, id string, force bool) error {
	if err := e.database.Purge(ctx, resourceType, id, force); err != nil {
		return fmt.Errorf("purging %s/%s: %w", resourceType, id, err)
	}
	e.logger.Info("purged resource", "type", resourceType, "id", id, "force", force)
	return nil
}

// Search runs q and then its includes against the base matches.
func (e *Engine) Search(ctx context.Context, q Query) (*SearchResult, error) {
	base, err := q.Compile()
	if err != nil {
		return nil, fmt.Errorf("compiling search: %w", err)
	}
	resources, err := e.database.Search(ctx, base)
	if err != nil {
		return nil, err
	}

	result := &SearchResult{Resources: resources}
	uuids := make([]string, len(resources))
	for i, r := range resources {
		uuids[i] = r.UUID
	}

	if fwd, ok := q.CompileForwardIncludes(uuids); ok {
		if result.Included, err = e.database.SearchForwardReferenced(ctx, fwd); err != nil {
			return nil, err
		}
	}
	if rev, ok := q.CompileReverseIncludes(uuids); ok {
		if result.RevIncluded, err = e.database.SearchReverseReferenced(ctx, rev); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (e *Engine) Count(ctx context.Context, q CountQuery) (int64, error) {
	stmt, err := q.CompileCount()
	if err != nil {
		return 0, fmt.Errorf("compiling count: %w", err)
	}
	return e.database.Count(ctx, stmt)
}

// PendingChanges returns every change not yet uploaded, oldest first.
func (e *Engine) PendingChanges(ctx context.Context) ([]LocalChange, error) {
	return e.database.GetAllLocalChanges(ctx)
}

// SyncUpload uploads pending changes one resource at a time, oldest first,
// consolidating each result before moving on. It stops at the first failed
// upload and returns the number of changes uploaded until then.
func (e *Engine) SyncUpload(ctx context.Context) (int, error) {
	if e.uploader == nil || e.consolidator == nil {
		return 0, errors.New("sync upload is not configured")
	}

	count := 0
	var last LocalChangeToken
	for {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		changes, err := e.database.GetAllChangesForEarliestChangedResource(ctx)
		if err != nil {
			return count, fmt.Errorf("fetching pending changes: %w", err)
		}
		if len(changes) == 0 {
			break
		}

		token := TokenFor(changes)
		if count > 0 && token.Equal(last) {
			return count, fmt.Errorf("%w: changes %v were not discarded after upload", ErrIllegalState, token.IDs)
		}
		last = token

		result := e.uploader.Upload(ctx, changes)
		if failure, ok := result.(UploadFailure); ok {
			first := changes[0]
			e.logger.Error("upload failed", "type", first.ResourceType, "id", first.ResourceID, "error", failure.Err)
			return count, fmt.Errorf("uploading %s/%s: %w", first.ResourceType, first.ResourceID, failure.Err)
		}
		if err := e.consolidator.Consolidate(ctx, result); err != nil {
			return count, fmt.Errorf("consolidating upload: %w", err)
		}

		count += len(changes)
	}

	e.logger.Info("upload complete", "changes", count)
	return count, nil
}

// SyncDownload stores every remote resource that has no pending local
// changes. Resources with pending changes keep their local version until
// those changes are uploaded.
func (e *Engine) SyncDownload(ctx context.Context) (int, error) {
	if e.downloader == nil {
		return 0, errors.New("sync download is not configured")
	}

	remote, err := e.downloader.Download(ctx)
	if err != nil {
		return 0, fmt.Errorf("downloading resources: %w", err)
	}

	var accepted []*resource.Resource
	for _, r := range remote {
		pending, err := e.database.GetLocalChanges(ctx, r.Type, r.ID)
		if err != nil {
			return 0, err
		}
		if len(pending) > 0 {
			e.logger.Debug("keeping local version with pending changes", "resource", r.String(), "changes", len(pending))
			continue
		}
		accepted = append(accepted, r)
	}

	if err := e.database.InsertRemote(ctx, accepted...); err != nil {
		return 0, fmt.Errorf("storing downloaded resources: %w", err)
	}
	e.logger.Info("download complete", "resources", len(accepted), "skipped", len(remote)-len(accepted))
	return len(accepted), nil
}
