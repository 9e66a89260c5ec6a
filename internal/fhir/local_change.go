package fhir

import "time"

// ChangeType is the kind of local mutation a change-log entry records.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// LocalChange is a pending local mutation not yet acknowledged by a remote
// system.
type LocalChange struct {
	ResourceType string
	ResourceID   string
	ResourceUUID string
	// VersionID is the remote version the change was made against; empty for
	// resources that were never synced.
	VersionID string
	Timestamp time.Time
	Type      ChangeType
	// Payload is the full resource after the change. It is nil for DELETE.
	Payload []byte
	// PreviousPayload is the resource before an UPDATE.
	PreviousPayload []byte
	Token           LocalChangeToken
}

// LocalChangeToken names one or more change-log entries. It is consumed to
// discard them once the upload they describe has succeeded.
type LocalChangeToken struct {
	IDs []int64
}

// TokenFor merges the tokens of all the given changes.
func TokenFor(changes []LocalChange) LocalChangeToken {
	var ids []int64
	for _, c := range changes {
		ids = append(ids, c.Token.IDs...)
	}
	return LocalChangeToken{IDs: ids}
}

// Equal reports whether both tokens name the same ids in the same order.
func (t LocalChangeToken) Equal(other LocalChangeToken) bool {
	if len(t.IDs) != len(other.IDs) {
		return false
	}
	for i := range t.IDs {
		if t.IDs[i] != other.IDs[i] {
			return false
		}
	}
	return true
}
