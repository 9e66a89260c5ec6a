package fhir

import (
	"errors"
	"fmt"
)

var (
	// ErrResourceNotFound is returned when a (type, id) pair is absent from the store.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrIllegalState is returned when an operation is refused because of the
	// current state of the store, e.g. purging a resource with pending changes.
	ErrIllegalState = errors.New("illegal state")

	// ErrStorageModeConflict is returned at construction time when a database
	// file of the other storage mode (encrypted vs unencrypted) already exists.
	ErrStorageModeConflict = errors.New("storage mode conflict")
)

// ResourceNotFoundError identifies the missing resource. It matches
// ErrResourceNotFound with errors.Is.
type ResourceNotFoundError struct {
	Type string
	ID   string
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("resource not found with type %s and id %s", e.Type, e.ID)
}

func (e *ResourceNotFoundError) Is(target error) bool {
	return target == ErrResourceNotFound
}

// PendingChangesError is returned by a non-forced purge of a resource that
// still has local changes. It matches ErrIllegalState with errors.Is.
type PendingChangesError struct {
	Type  string
	ID    string
	Count int
}

func (e *PendingChangesError) Error() string {
	return fmt.Sprintf("resource with type %s and id %s has %d local change(s), either sync with server or force purge", e.Type, e.ID, e.Count)
}

func (e *PendingChangesError) Is(target error) bool {
	return target == ErrIllegalState
}
