package fhir

import (
	"context"

	"fhirsync/internal/resource"
)

// Uploader sends pending changes to a remote. Transport problems are
// reported as an UploadFailure, never as a Go error.
type Uploader interface {
	Upload(ctx context.Context, changes []LocalChange) UploadRequestResult
}

// Consolidator folds an upload result back into local state.
type Consolidator interface {
	Consolidate(ctx context.Context, result UploadRequestResult) error
}

// Downloader fetches the current remote version of every resource.
type Downloader interface {
	Download(ctx context.Context) ([]*resource.Resource, error)
}
