package fhir

import (
	"time"

	"fhirsync/internal/resource"
)

// UploadRequestResult is the outcome of uploading one sync unit. It is either
// UploadSuccess or UploadFailure.
type UploadRequestResult interface {
	uploadRequestResult()
}

// UploadSuccess carries one mapping per acknowledged request or bundle entry.
type UploadSuccess struct {
	Mappings []UploadResponseMapping
}

// UploadFailure leaves local state untouched. Err describes why the
// transport failed; the store never inspects it.
type UploadFailure struct {
	LocalChanges []LocalChange
	Err          error
}

func (UploadSuccess) uploadRequestResult() {}
func (UploadFailure) uploadRequestResult() {}

// UploadResponseMapping links the changes that were uploaded together with
// what the remote returned for them.
type UploadResponseMapping struct {
	LocalChanges []LocalChange
	Output       UploadOutput
}

// UploadOutput is either ResourceOutput or ResponseOutput.
type UploadOutput interface {
	uploadOutput()
}

// ResourceOutput is returned when the remote echoes the stored resource.
type ResourceOutput struct {
	Resource *resource.Resource
}

// ResponseOutput is an HTTP-style response descriptor, as found in the
// entries of a transaction-response bundle.
type ResponseOutput struct {
	Status       string
	ETag         string
	LastModified time.Time
	Location     string
}

func (ResourceOutput) uploadOutput() {}
func (ResponseOutput) uploadOutput() {}
