package upload

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fhirsync/internal/fhir"
)

// stubTransport answers every request with a fixed response.
type stubTransport struct {
	err      error
	requests []Request
	bundles  int
}

func (s *stubTransport) Do(ctx context.Context, req Request) (Response, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return Response{}, s.err
	}
	return s.respond(req), nil
}

func (s *stubTransport) Transaction(ctx context.Context, entries []Request) ([]Response, error) {
	s.bundles++
	s.requests = append(s.requests, entries...)
	if s.err != nil {
		return nil, s.err
	}
	out := make([]Response, len(entries))
	for i, e := range entries {
		out[i] = s.respond(e)
	}
	return out, nil
}

func (s *stubTransport) respond(req Request) Response {
	if req.Method == MethodDelete {
		return Response{Status: "204 No Content"}
	}
	r := req.Resource.Clone()
	r.SetMeta("1", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	return Response{
		Status:       "201 Created",
		Location:     "https://fhir.example.org/fhir/" + r.Reference() + "/_history/1",
		ETag:         `W/"1"`,
		LastModified: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Resource:     r,
	}
}

func TestUploader_URLMode(t *testing.T) {
	transport := &stubTransport{}
	u := NewUploader(transport, Mode{CreateVerb: MethodPut}, nil)

	changes := []fhir.LocalChange{
		change(1, "u1", "p1", fhir.ChangeInsert),
		change(2, "u2", "p2", fhir.ChangeUpdate),
		change(3, "u2", "p2", fhir.ChangeDelete),
	}
	result := u.Upload(context.Background(), changes)

	success, ok := result.(fhir.UploadSuccess)
	require.True(t, ok, "Upload() = %T, want UploadSuccess", result)
	require.Len(t, success.Mappings, 2)
	assert.Len(t, transport.requests, 2)
	assert.Zero(t, transport.bundles)

	out, ok := success.Mappings[0].Output.(fhir.ResourceOutput)
	require.True(t, ok)
	assert.Equal(t, "p1", out.Resource.ID)

	del, ok := success.Mappings[1].Output.(fhir.ResponseOutput)
	require.True(t, ok)
	assert.Equal(t, "204 No Content", del.Status)
	assert.Len(t, success.Mappings[1].LocalChanges, 2)
}

func TestUploader_BundleMode(t *testing.T) {
	transport := &stubTransport{}
	u := NewUploader(transport, Mode{Bundle: true, CreateVerb: MethodPost, BundleSize: 10}, nil)

	changes := []fhir.LocalChange{
		change(1, "u1", "p1", fhir.ChangeInsert),
		change(2, "u2", "p2", fhir.ChangeInsert),
		change(3, "u2", "p2", fhir.ChangeDelete),
	}
	result := u.Upload(context.Background(), changes)

	success, ok := result.(fhir.UploadSuccess)
	require.True(t, ok, "Upload() = %T, want UploadSuccess", result)
	assert.Equal(t, 1, transport.bundles)
	require.Len(t, success.Mappings, 2)

	squashed := success.Mappings[0]
	assert.Nil(t, squashed.Output)
	assert.Len(t, squashed.LocalChanges, 2)

	out, ok := success.Mappings[1].Output.(fhir.ResponseOutput)
	require.True(t, ok)
	assert.Equal(t, `W/"1"`, out.ETag)
	assert.Equal(t, MethodPost, transport.requests[0].Method)
}

func TestUploader_TransportErrorBecomesFailure(t *testing.T) {
	errDown := errors.New("connection refused")
	u := NewUploader(&stubTransport{err: errDown}, Mode{CreateVerb: MethodPut}, nil)

	changes := []fhir.LocalChange{change(1, "u1", "p1", fhir.ChangeInsert)}
	result := u.Upload(context.Background(), changes)

	failure, ok := result.(fhir.UploadFailure)
	require.True(t, ok, "Upload() = %T, want UploadFailure", result)
	assert.ErrorIs(t, failure.Err, errDown)
	assert.Equal(t, changes, failure.LocalChanges)
}

func TestUploader_ResponseCountMismatch(t *testing.T) {
	u := NewUploader(shortTransport{}, Mode{Bundle: true, CreateVerb: MethodPut, BundleSize: 10}, nil)

	result := u.Upload(context.Background(), []fhir.LocalChange{change(1, "u1", "p1", fhir.ChangeInsert)})
	_, ok := result.(fhir.UploadFailure)
	assert.True(t, ok, "Upload() = %T, want UploadFailure", result)
}

type shortTransport struct{}

func (shortTransport) Do(context.Context, Request) (Response, error) { return Response{}, nil }

func (shortTransport) Transaction(context.Context, []Request) ([]Response, error) {
	return nil, nil
}
