package database

import (
	"context"
	"fmt"
	"time"

	"fhirsync/internal/database/sqlc"
	"fhirsync/internal/fhir"
	"fhirsync/internal/index"
	"fhirsync/internal/resource"
)

// Change log operations

func (s *SQLiteDatabase) GetAllLocalChanges(ctx context.Context) ([]fhir.LocalChange, error) {
	rows, err := s.q(ctx).GetAllLocalChanges(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading local changes: %w", err)
	}
	return s.toLocalChanges(rows)
}

func (s *SQLiteDatabase) GetLocalChangesCount(ctx context.Context) (int64, error) {
	n, err := s.q(ctx).CountLocalChanges(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting local changes: %w", err)
	}
	return n, nil
}

func (s *SQLiteDatabase) GetLocalChanges(ctx context.Context, resourceType, id string) ([]fhir.LocalChange, error) {
	rows, err := s.q(ctx).GetLocalChangesByResource(ctx, sqlc.GetLocalChangesByResourceParams{
		ResourceType: resourceType,
		ResourceID:   id,
	})
	if err != nil {
		return nil, fmt.Errorf("loading local changes of %s/%s: %w", resourceType, id, err)
	}
	return s.toLocalChanges(rows)
}

func (s *SQLiteDatabase) GetLocalChangesByUUID(ctx context.Context, resourceUUID string) ([]fhir.LocalChange, error) {
	rows, err := s.q(ctx).GetLocalChangesByUUID(ctx, resourceUUID)
	if err != nil {
		return nil, fmt.Errorf("loading local changes of %s: %w", resourceUUID, err)
	}
	return s.toLocalChanges(rows)
}

func (s *SQLiteDatabase) GetAllChangesForEarliestChangedResource(ctx context.Context) ([]fhir.LocalChange, error) {
	rows, err := s.q(ctx).GetEarliestChangedResourceChanges(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading earliest changed resource: %w", err)
	}
	return s.toLocalChanges(rows)
}

func (s *SQLiteDatabase) DeleteUpdates(ctx context.Context, token fhir.LocalChangeToken) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		for _, id := range token.IDs {
			if err := s.q(ctx).DeleteLocalChange(ctx, id); err != nil {
				return fmt.Errorf("deleting local change %d: %w", id, err)
			}
		}
		return nil
	})
}

// Recording changes

func (s *SQLiteDatabase) addInsert(ctx context.Context, uuid string, r *resource.Resource, payload []byte, at time.Time) error {
	return s.addChange(ctx, sqlc.InsertLocalChangeParams{
		ResourceType: r.Type,
		ResourceID:   r.ID,
		ResourceUuid: uuid,
		Type:         string(fhir.ChangeInsert),
	}, payload, nil, at)
}

func (s *SQLiteDatabase) addUpdate(ctx context.Context, row sqlc.Resource, payload, previous []byte, at time.Time) error {
	return s.addChange(ctx, sqlc.InsertLocalChangeParams{
		ResourceType: row.ResourceType,
		ResourceID:   row.ResourceID,
		ResourceUuid: row.ResourceUuid,
		Type:         string(fhir.ChangeUpdate),
		VersionID:    row.VersionID,
	}, payload, previous, at)
}

func (s *SQLiteDatabase) addDelete(ctx context.Context, row sqlc.Resource, at time.Time) error {
	return s.addChange(ctx, sqlc.InsertLocalChangeParams{
		ResourceType: row.ResourceType,
		ResourceID:   row.ResourceID,
		ResourceUuid: row.ResourceUuid,
		Type:         string(fhir.ChangeDelete),
		VersionID:    row.VersionID,
	}, nil, nil, at)
}

func (s *SQLiteDatabase) addChange(ctx context.Context, params sqlc.InsertLocalChangeParams, payload, previous []byte, at time.Time) error {
	var err error
	params.Timestamp = at.UnixMilli()
	if params.Payload, err = s.seal(payload); err != nil {
		return err
	}
	if params.PreviousPayload, err = s.seal(previous); err != nil {
		return err
	}

	id, err := s.q(ctx).InsertLocalChange(ctx, params)
	if err != nil {
		return fmt.Errorf("recording %s change for %s/%s: %w", params.Type, params.ResourceType, params.ResourceID, err)
	}
	return s.recordReferences(ctx, id, payload)
}

// recordReferences indexes the references a pending change carries so that a
// later rename of the referenced resource can find and rewrite it.
func (s *SQLiteDatabase) recordReferences(ctx context.Context, changeID int64, payload []byte) error {
	if payload == nil {
		return nil
	}
	refs, err := index.ReferencesOf(payload)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		err := s.q(ctx).InsertLocalChangeReference(ctx, sqlc.InsertLocalChangeReferenceParams{
			LocalChangeID:          changeID,
			ResourceReferencePath:  ref.Path,
			ResourceReferenceValue: ref.Value,
		})
		if err != nil {
			return fmt.Errorf("recording reference %s of change %d: %w", ref.Value, changeID, err)
		}
	}
	return nil
}

func (s *SQLiteDatabase) toLocalChanges(rows []sqlc.LocalChange) ([]fhir.LocalChange, error) {
	changes := make([]fhir.LocalChange, 0, len(rows))
	for _, row := range rows {
		c, err := s.toLocalChange(row)
		if err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, nil
}

func (s *SQLiteDatabase) toLocalChange(row sqlc.LocalChange) (fhir.LocalChange, error) {
	payload, err := s.open(row.Payload)
	if err != nil {
		return fhir.LocalChange{}, err
	}
	previous, err := s.open(row.PreviousPayload)
	if err != nil {
		return fhir.LocalChange{}, err
	}
	return fhir.LocalChange{
		ResourceType:    row.ResourceType,
		ResourceID:      row.ResourceID,
		ResourceUUID:    row.ResourceUuid,
		VersionID:       row.VersionID,
		Timestamp:       time.UnixMilli(row.Timestamp).UTC(),
		Type:            fhir.ChangeType(row.Type),
		Payload:         payload,
		PreviousPayload: previous,
		Token:           fhir.LocalChangeToken{IDs: []int64{row.ID}},
	}, nil
}
