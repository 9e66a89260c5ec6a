package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fhirsync/internal/database/sqlc"
	"fhirsync/internal/fhir"
	"fhirsync/internal/index"
	"fhirsync/internal/resource"
)

// Resource operations

func (s *SQLiteDatabase) Insert(ctx context.Context, resources ...*resource.Resource) ([]string, error) {
	ids := make([]string, 0, len(resources))
	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		for _, r := range resources {
			r = r.Clone()
			if r.ID == "" {
				r.SetID(s.idgen.New())
			}
			if err := s.insertLocal(ctx, r); err != nil {
				return err
			}
			ids = append(ids, r.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *SQLiteDatabase) insertLocal(ctx context.Context, r *resource.Resource) error {
	payload, err := resource.Encode(r)
	if err != nil {
		return err
	}
	stored, err := s.seal(payload)
	if err != nil {
		return err
	}

	uuid := s.idgen.New()
	now := s.clock.Now()
	err = s.q(ctx).InsertResource(ctx, sqlc.InsertResourceParams{
		ResourceUuid:       uuid,
		ResourceType:       r.Type,
		ResourceID:         r.ID,
		SerializedResource: stored,
		LastUpdatedLocal:   toMillis(now),
	})
	if err != nil {
		return fmt.Errorf("inserting resource %s: %w", r, err)
	}
	if err := s.reindex(ctx, uuid, r.Type, payload); err != nil {
		return err
	}
	return s.addInsert(ctx, uuid, r, payload, now)
}

func (s *SQLiteDatabase) InsertRemote(ctx context.Context, resources ...*resource.Resource) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		for _, r := range resources {
			if r.ID == "" {
				return fmt.Errorf("inserting remote %s resource: missing id", r.Type)
			}
			r = r.Clone()
			payload, err := resource.Encode(r)
			if err != nil {
				return err
			}
			stored, err := s.seal(payload)
			if err != nil {
				return err
			}

			meta := r.Meta()
			uuid, err := s.q(ctx).UpsertRemoteResource(ctx, sqlc.UpsertRemoteResourceParams{
				ResourceUuid:       s.idgen.New(),
				ResourceType:       r.Type,
				ResourceID:         r.ID,
				SerializedResource: stored,
				VersionID:          meta.VersionID,
				LastUpdatedRemote:  toMillis(meta.LastUpdated),
			})
			if err != nil {
				return fmt.Errorf("inserting remote resource %s: %w", r, err)
			}
			if err := s.reindex(ctx, uuid, r.Type, payload); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteDatabase) Update(ctx context.Context, resources ...*resource.Resource) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		for _, r := range resources {
			row, err := s.getRow(ctx, r.Type, r.ID)
			if err != nil {
				return err
			}
			previous, err := s.open(row.SerializedResource)
			if err != nil {
				return err
			}
			payload, err := resource.Encode(r.Clone())
			if err != nil {
				return err
			}
			stored, err := s.seal(payload)
			if err != nil {
				return err
			}

			now := s.clock.Now()
			err = s.q(ctx).UpdateResourcePayload(ctx, sqlc.UpdateResourcePayloadParams{
				SerializedResource: stored,
				LastUpdatedLocal:   toMillis(now),
				ResourceUuid:       row.ResourceUuid,
			})
			if err != nil {
				return fmt.Errorf("updating resource %s: %w", r, err)
			}
			if err := s.reindex(ctx, row.ResourceUuid, r.Type, payload); err != nil {
				return err
			}
			if err := s.addUpdate(ctx, row, payload, previous, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteDatabase) Delete(ctx context.Context, resourceType, id string) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		row, err := s.getRow(ctx, resourceType, id)
		if errors.Is(err, fhir.ErrResourceNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		n, err := s.q(ctx).DeleteResource(ctx, sqlc.DeleteResourceParams{
			ResourceType: resourceType,
			ResourceID:   id,
		})
		if err != nil {
			return fmt.Errorf("deleting resource %s/%s: %w", resourceType, id, err)
		}
		if n == 0 {
			return nil
		}
		return s.addDelete(ctx, row, s.clock.Now())
	})
}

func (s *SQLiteDatabase) Select(ctx context.Context, resourceType, id string) (*resource.Resource, error) {
	row, err := s.getRow(ctx, resourceType, id)
	if err != nil {
		return nil, err
	}
	return s.decodeRow(row)
}

func (s *SQLiteDatabase) SelectEntity(ctx context.Context, resourceType, id string) (*fhir.ResourceEntity, error) {
	row, err := s.getRow(ctx, resourceType, id)
	if err != nil {
		return nil, err
	}
	return s.toEntity(row)
}

func (s *SQLiteDatabase) Purge(ctx context.Context, resourceType, id string, force bool) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		row, err := s.getRow(ctx, resourceType, id)
		if err != nil {
			return err
		}

		changes, err := s.q(ctx).GetLocalChangesByUUID(ctx, row.ResourceUuid)
		if err != nil {
			return fmt.Errorf("loading changes of %s/%s: %w", resourceType, id, err)
		}
		if len(changes) > 0 && !force {
			return &fhir.PendingChangesError{Type: resourceType, ID: id, Count: len(changes)}
		}

		if _, err := s.q(ctx).DeleteResource(ctx, sqlc.DeleteResourceParams{
			ResourceType: resourceType,
			ResourceID:   id,
		}); err != nil {
			return fmt.Errorf("purging resource %s/%s: %w", resourceType, id, err)
		}
		for _, c := range changes {
			if err := s.q(ctx).DeleteLocalChange(ctx, c.ID); err != nil {
				return fmt.Errorf("purging change %d: %w", c.ID, err)
			}
		}
		s.logger.Debug("purged resource", "type", resourceType, "id", id, "changes", len(changes))
		return nil
	})
}

func (s *SQLiteDatabase) ClearDatabase(ctx context.Context) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		// Index rows and change references go with their parents via ON DELETE CASCADE.
		if err := s.q(ctx).DeleteAllLocalChanges(ctx); err != nil {
			return fmt.Errorf("clearing local changes: %w", err)
		}
		if err := s.q(ctx).DeleteAllResources(ctx); err != nil {
			return fmt.Errorf("clearing resources: %w", err)
		}
		return nil
	})
}

// Post-sync operations

func (s *SQLiteDatabase) UpdateVersionIDAndLastUpdated(ctx context.Context, resourceType, id, versionID string, lastUpdated time.Time) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		row, err := s.getRow(ctx, resourceType, id)
		if errors.Is(err, fhir.ErrResourceNotFound) {
			// Deleted locally while the upload was in flight.
			s.logger.Debug("skipping metadata update for missing resource", "type", resourceType, "id", id)
			return nil
		}
		if err != nil {
			return err
		}

		r, err := s.decodeRow(row)
		if err != nil {
			return err
		}
		r.SetMeta(versionID, lastUpdated)
		return s.storeRemoteMeta(ctx, row.ResourceUuid, r, versionID, lastUpdated)
	})
}

func (s *SQLiteDatabase) storeRemoteMeta(ctx context.Context, uuid string, r *resource.Resource, versionID string, lastUpdated time.Time) error {
	payload, err := resource.Encode(r)
	if err != nil {
		return err
	}
	stored, err := s.seal(payload)
	if err != nil {
		return err
	}
	err = s.q(ctx).UpdateResourceRemoteMeta(ctx, sqlc.UpdateResourceRemoteMetaParams{
		SerializedResource: stored,
		VersionID:          versionID,
		LastUpdatedRemote:  toMillis(lastUpdated),
		ResourceUuid:       uuid,
	})
	if err != nil {
		return fmt.Errorf("updating remote metadata of %s: %w", r, err)
	}
	return nil
}

func (s *SQLiteDatabase) UpdateResourceAndReferences(ctx context.Context, currentID string, updated *resource.Resource) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		row, err := s.getRow(ctx, updated.Type, currentID)
		if err != nil {
			return err
		}

		r := updated.Clone()
		meta := r.Meta()
		if err := s.storeIdentity(ctx, row.ResourceUuid, r, meta.VersionID, meta.LastUpdated); err != nil {
			return err
		}
		if r.ID == currentID {
			return nil
		}
		oldRef := resource.ReferenceTo(r.Type, currentID)
		return s.rename(ctx, row.ResourceUuid, oldRef, r.Reference(), r.ID, nil)
	})
}

func (s *SQLiteDatabase) UpdateResourcePostSync(ctx context.Context, resourceType, preSyncID, postSyncID, versionID string, lastUpdated time.Time, dependents []string) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		row, err := s.getRow(ctx, resourceType, preSyncID)
		if errors.Is(err, fhir.ErrResourceNotFound) {
			s.logger.Debug("skipping post-sync update for missing resource", "type", resourceType, "id", preSyncID)
			return nil
		}
		if err != nil {
			return err
		}

		r, err := s.decodeRow(row)
		if err != nil {
			return err
		}
		r.SetID(postSyncID)
		r.SetMeta(versionID, lastUpdated)
		if err := s.storeIdentity(ctx, row.ResourceUuid, r, versionID, lastUpdated); err != nil {
			return err
		}
		if preSyncID == postSyncID {
			return nil
		}
		oldRef := resource.ReferenceTo(resourceType, preSyncID)
		return s.rename(ctx, row.ResourceUuid, oldRef, r.Reference(), postSyncID, dependents)
	})
}

// storeIdentity rewrites the logical id, payload and remote metadata of a row.
func (s *SQLiteDatabase) storeIdentity(ctx context.Context, uuid string, r *resource.Resource, versionID string, lastUpdated time.Time) error {
	payload, err := resource.Encode(r)
	if err != nil {
		return err
	}
	stored, err := s.seal(payload)
	if err != nil {
		return err
	}
	err = s.q(ctx).UpdateResourceIdentity(ctx, sqlc.UpdateResourceIdentityParams{
		ResourceID:         r.ID,
		SerializedResource: stored,
		VersionID:          versionID,
		LastUpdatedRemote:  toMillis(lastUpdated),
		ResourceUuid:       uuid,
	})
	if err != nil {
		return fmt.Errorf("updating identity of %s: %w", r, err)
	}
	return s.reindex(ctx, uuid, r.Type, payload)
}

// Row helpers

func (s *SQLiteDatabase) getRow(ctx context.Context, resourceType, id string) (sqlc.Resource, error) {
	row, err := s.q(ctx).GetResource(ctx, sqlc.GetResourceParams{
		ResourceType: resourceType,
		ResourceID:   id,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return sqlc.Resource{}, &fhir.ResourceNotFoundError{Type: resourceType, ID: id}
	}
	if err != nil {
		return sqlc.Resource{}, fmt.Errorf("loading resource %s/%s: %w", resourceType, id, err)
	}
	return row, nil
}

func (s *SQLiteDatabase) decodeRow(row sqlc.Resource) (*resource.Resource, error) {
	payload, err := s.open(row.SerializedResource)
	if err != nil {
		return nil, err
	}
	r, err := resource.Parse(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding stored %s/%s: %w", row.ResourceType, row.ResourceID, err)
	}
	return r, nil
}

func (s *SQLiteDatabase) toEntity(row sqlc.Resource) (*fhir.ResourceEntity, error) {
	payload, err := s.open(row.SerializedResource)
	if err != nil {
		return nil, err
	}
	return &fhir.ResourceEntity{
		UUID:              row.ResourceUuid,
		Type:              row.ResourceType,
		ID:                row.ResourceID,
		Payload:           payload,
		VersionID:         row.VersionID,
		LastUpdatedRemote: fromMillis(row.LastUpdatedRemote),
		LastUpdatedLocal:  fromMillis(row.LastUpdatedLocal),
	}, nil
}

// reindex replaces the derived reference and string index rows of a resource.
func (s *SQLiteDatabase) reindex(ctx context.Context, uuid, resourceType string, payload []byte) error {
	entries, err := index.Extract(payload)
	if err != nil {
		return err
	}

	q := s.q(ctx)
	if err := q.DeleteReferenceIndex(ctx, uuid); err != nil {
		return fmt.Errorf("clearing reference index: %w", err)
	}
	if err := q.DeleteStringIndex(ctx, uuid); err != nil {
		return fmt.Errorf("clearing string index: %w", err)
	}
	for _, ref := range entries.References {
		err := q.InsertReferenceIndex(ctx, sqlc.InsertReferenceIndexParams{
			ResourceUuid: uuid,
			ResourceType: resourceType,
			IndexPath:    ref.Path,
			IndexValue:   ref.Value,
		})
		if err != nil {
			return fmt.Errorf("indexing reference %s: %w", ref.Path, err)
		}
	}
	for _, str := range entries.Strings {
		err := q.InsertStringIndex(ctx, sqlc.InsertStringIndexParams{
			ResourceUuid: uuid,
			ResourceType: resourceType,
			IndexPath:    str.Path,
			IndexValue:   str.Value,
		})
		if err != nil {
			return fmt.Errorf("indexing string %s: %w", str.Path, err)
		}
	}
	return nil
}
