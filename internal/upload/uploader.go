package upload

import (
	"context"
	"fmt"

	"fhirsync/internal/fhir"
)

// Uploader turns local changes into requests and sends them through a
// Transport. Transport errors become an UploadFailure value.
type Uploader struct {
	transport Transport
	mode      Mode
	logger    fhir.Logger
}

func NewUploader(transport Transport, mode Mode, logger fhir.Logger) *Uploader {
	if logger == nil {
		logger = fhir.NewNopLogger()
	}
	return &Uploader{transport: transport, mode: mode, logger: logger}
}

// Upload sends changes and maps each response back to the changes it
// acknowledges. Single requests that echo the stored resource yield a
// ResourceOutput; bundle entries yield a ResponseOutput.
func (u *Uploader) Upload(ctx context.Context, changes []fhir.LocalChange) fhir.UploadRequestResult {
	plan, err := Generate(u.mode, changes)
	if err != nil {
		return fhir.UploadFailure{LocalChanges: changes, Err: err}
	}

	var mappings []fhir.UploadResponseMapping
	if len(plan.Squashed) > 0 {
		mappings = append(mappings, fhir.UploadResponseMapping{LocalChanges: plan.Squashed})
	}

	for _, unit := range plan.Units {
		out, err := u.send(ctx, unit)
		if err != nil {
			u.logger.Warn("upload failed", "requests", len(unit.Requests), "error", err)
			return fhir.UploadFailure{LocalChanges: changes, Err: err}
		}
		mappings = append(mappings, out...)
	}

	u.logger.Debug("uploaded changes", "changes", len(changes), "mappings", len(mappings))
	return fhir.UploadSuccess{Mappings: mappings}
}

func (u *Uploader) send(ctx context.Context, unit Unit) ([]fhir.UploadResponseMapping, error) {
	if !unit.Bundle {
		req := unit.Requests[0]
		resp, err := u.transport.Do(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
		}
		out := fhir.UploadOutput(responseOutput(resp))
		if resp.Resource != nil {
			out = fhir.ResourceOutput{Resource: resp.Resource}
		}
		return []fhir.UploadResponseMapping{{LocalChanges: req.Changes, Output: out}}, nil
	}

	responses, err := u.transport.Transaction(ctx, unit.Requests)
	if err != nil {
		return nil, fmt.Errorf("transaction bundle: %w", err)
	}
	if len(responses) != len(unit.Requests) {
		return nil, fmt.Errorf("transaction bundle: got %d responses for %d entries", len(responses), len(unit.Requests))
	}

	mappings := make([]fhir.UploadResponseMapping, len(responses))
	for i, resp := range responses {
		mappings[i] = fhir.UploadResponseMapping{
			LocalChanges: unit.Requests[i].Changes,
			Output:       responseOutput(resp),
		}
	}
	return mappings, nil
}

func responseOutput(resp Response) fhir.ResponseOutput {
	return fhir.ResponseOutput{
		Status:       resp.Status,
		ETag:         resp.ETag,
		LastModified: resp.LastModified,
		Location:     resp.Location,
	}
}
