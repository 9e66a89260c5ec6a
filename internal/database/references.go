package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"fhirsync/internal/database/sqlc"
	"fhirsync/internal/resource"
)

func (s *SQLiteDatabase) GetReferencingResourceUUIDs(ctx context.Context, resourceType, id string) ([]string, error) {
	ref := resource.ReferenceTo(resourceType, id)
	rows, err := s.q(ctx).GetLocalChangesReferencing(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("finding changes referencing %s: %w", ref, err)
	}

	var uuids []string
	for _, row := range rows {
		if !slices.Contains(uuids, row.ResourceUuid) {
			uuids = append(uuids, row.ResourceUuid)
		}
	}
	return uuids, nil
}

// rename propagates a logical id change of the resource identified by uuid.
// Its own pending changes move to newID; every pending change and every
// stored resource that references oldRef is rewritten to newRef. dependents
// names extra resources to rewrite, captured before the caller discarded the
// changes that referenced them.
func (s *SQLiteDatabase) rename(ctx context.Context, uuid, oldRef, newRef, newID string, dependents []string) error {
	pending, err := s.updateResourceIDAndReferences(ctx, uuid, oldRef, newRef, newID)
	if err != nil {
		return err
	}

	indexed, err := s.q(ctx).GetResourceUUIDsReferencing(ctx, oldRef)
	if err != nil {
		return fmt.Errorf("finding resources referencing %s: %w", oldRef, err)
	}

	targets := slices.Concat(indexed, pending, dependents)
	slices.Sort(targets)
	targets = slices.Compact(targets)

	rewritten := 0
	for _, target := range targets {
		if target == uuid {
			continue
		}
		changed, err := s.rewriteResource(ctx, target, oldRef, newRef)
		if err != nil {
			return err
		}
		if changed {
			rewritten++
		}
	}

	s.logger.Debug("renamed resource", "from", oldRef, "to", newRef, "rewritten", rewritten)
	return nil
}

// updateResourceIDAndReferences moves the pending changes of uuid to newID,
// rewrites references to oldRef inside pending change payloads and returns the
// uuids of the resources those changes belong to. Change order is untouched.
func (s *SQLiteDatabase) updateResourceIDAndReferences(ctx context.Context, uuid, oldRef, newRef, newID string) ([]string, error) {
	q := s.q(ctx)
	err := q.UpdateLocalChangeResourceID(ctx, sqlc.UpdateLocalChangeResourceIDParams{
		ResourceID:   newID,
		ResourceUuid: uuid,
	})
	if err != nil {
		return nil, fmt.Errorf("moving changes of %s to %s: %w", oldRef, newRef, err)
	}

	rows, err := q.GetLocalChangesReferencing(ctx, oldRef)
	if err != nil {
		return nil, fmt.Errorf("finding changes referencing %s: %w", oldRef, err)
	}

	var uuids []string
	for _, row := range rows {
		payload, err := s.rewritePayload(row.Payload, oldRef, newRef)
		if err != nil {
			return nil, err
		}
		previous, err := s.rewritePayload(row.PreviousPayload, oldRef, newRef)
		if err != nil {
			return nil, err
		}

		sealedPayload, err := s.seal(payload)
		if err != nil {
			return nil, err
		}
		sealedPrevious, err := s.seal(previous)
		if err != nil {
			return nil, err
		}
		err = q.UpdateLocalChangePayloads(ctx, sqlc.UpdateLocalChangePayloadsParams{
			Payload:         sealedPayload,
			PreviousPayload: sealedPrevious,
			ID:              row.ID,
		})
		if err != nil {
			return nil, fmt.Errorf("rewriting change %d: %w", row.ID, err)
		}

		if err := q.DeleteLocalChangeReferences(ctx, row.ID); err != nil {
			return nil, fmt.Errorf("clearing references of change %d: %w", row.ID, err)
		}
		if err := s.recordReferences(ctx, row.ID, payload); err != nil {
			return nil, err
		}
		if !slices.Contains(uuids, row.ResourceUuid) {
			uuids = append(uuids, row.ResourceUuid)
		}
	}
	return uuids, nil
}

// rewritePayload opens a stored change payload and replaces references in it.
// The result is plaintext.
func (s *SQLiteDatabase) rewritePayload(stored []byte, oldRef, newRef string) ([]byte, error) {
	if stored == nil {
		return nil, nil
	}
	payload, err := s.open(stored)
	if err != nil {
		return nil, err
	}
	r, err := resource.Parse(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding change payload: %w", err)
	}
	if r.ReplaceReference(oldRef, newRef) == 0 {
		return payload, nil
	}
	return resource.Encode(r)
}

// rewriteResource replaces references in a stored resource. A resource that
// no longer exists is skipped. The local modification time is left alone: the
// rewrite is not a user edit.
func (s *SQLiteDatabase) rewriteResource(ctx context.Context, uuid, oldRef, newRef string) (bool, error) {
	q := s.q(ctx)
	row, err := q.GetResourceByUUID(ctx, uuid)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading resource %s: %w", uuid, err)
	}

	r, err := s.decodeRow(row)
	if err != nil {
		return false, err
	}
	if r.ReplaceReference(oldRef, newRef) == 0 {
		return false, nil
	}

	payload, err := resource.Encode(r)
	if err != nil {
		return false, err
	}
	stored, err := s.seal(payload)
	if err != nil {
		return false, err
	}
	err = q.UpdateResourcePayload(ctx, sqlc.UpdateResourcePayloadParams{
		SerializedResource: stored,
		LastUpdatedLocal:   row.LastUpdatedLocal,
		ResourceUuid:       uuid,
	})
	if err != nil {
		return false, fmt.Errorf("rewriting references of %s: %w", r, err)
	}
	return true, s.reindex(ctx, uuid, r.Type, payload)
}
