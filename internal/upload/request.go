package upload

import (
	"context"
	"time"

	"fhirsync/internal/fhir"
	"fhirsync/internal/resource"
)

// Method is the HTTP verb of a request or bundle entry.
type Method string

const (
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodDelete Method = "DELETE"
)

// Request is one interaction with the remote: a create, update or delete of
// a single resource. Changes are the local changes the request represents.
type Request struct {
	Method   Method
	URL      string // relative, e.g. "Patient" or "Patient/p1"
	Resource *resource.Resource
	Changes  []fhir.LocalChange
}

// Response is what the remote returned for one request or bundle entry.
// Resource is set only when the remote echoes the stored resource.
type Response struct {
	Status       string
	Location     string
	ETag         string
	LastModified time.Time
	Resource     *resource.Resource
}

// Transport executes requests against a remote. Do sends a single request;
// Transaction applies all entries atomically and returns one response per
// entry in order.
type Transport interface {
	Do(ctx context.Context, req Request) (Response, error)
	Transaction(ctx context.Context, entries []Request) ([]Response, error)
}
