package upload

import (
	"context"
	"errors"
	"fmt"

	"fhirsync/internal/fhir"
)

// Strategy is how a successful upload is reconciled with local state.
type Strategy int

const (
	// StrategyMetadata applies when the client assigns ids (creates use PUT).
	// Ids never change, so only remote metadata is recorded.
	StrategyMetadata Strategy = iota
	// StrategyPostCascade applies when the server assigns ids (creates use
	// POST). Renamed resources have their references rewritten everywhere.
	StrategyPostCascade
)

func (s Strategy) String() string {
	switch s {
	case StrategyMetadata:
		return "metadata"
	case StrategyPostCascade:
		return "post-cascade"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// Consolidator folds upload results back into a Database.
type Consolidator struct {
	db       fhir.Database
	strategy Strategy
	logger   fhir.Logger
}

// NewConsolidator picks the strategy from the create verb of mode.
func NewConsolidator(db fhir.Database, mode Mode, logger fhir.Logger) *Consolidator {
	if logger == nil {
		logger = fhir.NewNopLogger()
	}
	strategy := StrategyMetadata
	if mode.CreateVerb == MethodPost {
		strategy = StrategyPostCascade
	}
	return &Consolidator{db: db, strategy: strategy, logger: logger}
}

func (c *Consolidator) Strategy() Strategy { return c.strategy }

// Consolidate applies result in a single transaction. A failure result
// leaves local state untouched.
func (c *Consolidator) Consolidate(ctx context.Context, result fhir.UploadRequestResult) error {
	success, ok := result.(fhir.UploadSuccess)
	if !ok {
		if failure, ok := result.(fhir.UploadFailure); ok {
			c.logger.Debug("not consolidating failed upload", "changes", len(failure.LocalChanges), "error", failure.Err)
		}
		return nil
	}

	return c.db.WithTransaction(ctx, func(ctx context.Context) error {
		if c.strategy == StrategyPostCascade {
			return c.postCascade(ctx, success.Mappings)
		}
		return c.metadata(ctx, success.Mappings)
	})
}

func (c *Consolidator) metadata(ctx context.Context, mappings []fhir.UploadResponseMapping) error {
	var changes []fhir.LocalChange
	for _, m := range mappings {
		changes = append(changes, m.LocalChanges...)
	}
	if err := c.db.DeleteUpdates(ctx, fhir.TokenFor(changes)); err != nil {
		return fmt.Errorf("discarding uploaded changes: %w", err)
	}

	for _, m := range mappings {
		switch out := m.Output.(type) {
		case fhir.ResourceOutput:
			if out.Resource == nil {
				continue
			}
			meta := out.Resource.Meta()
			if !meta.Complete() {
				c.logger.Warn("skipping resource without version metadata", "resource", out.Resource.String())
				continue
			}
			if err := c.db.UpdateVersionIDAndLastUpdated(ctx, out.Resource.Type, out.Resource.ID, meta.VersionID, meta.LastUpdated); err != nil {
				return err
			}
		case fhir.ResponseOutput:
			loc, version, ok := c.parseResponse(out)
			if !ok {
				continue
			}
			if err := c.db.UpdateVersionIDAndLastUpdated(ctx, loc.Type, loc.ID, version, out.LastModified); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Consolidator) postCascade(ctx context.Context, mappings []fhir.UploadResponseMapping) error {
	for _, m := range mappings {
		if len(m.LocalChanges) == 0 {
			continue
		}
		first := m.LocalChanges[0]

		switch out := m.Output.(type) {
		case fhir.ResponseOutput:
			// References held by other pending changes are gathered before
			// this mapping's entries are discarded.
			dependents, err := c.db.GetReferencingResourceUUIDs(ctx, first.ResourceType, first.ResourceID)
			if err != nil {
				return err
			}
			if err := c.discard(ctx, m.LocalChanges); err != nil {
				return err
			}
			loc, version, ok := c.parseResponse(out)
			if !ok {
				continue
			}
			err = c.db.UpdateResourcePostSync(ctx, loc.Type, first.ResourceID, loc.ID, version, out.LastModified, dependents)
			if err != nil {
				return err
			}

		case fhir.ResourceOutput:
			if err := c.discard(ctx, m.LocalChanges); err != nil {
				return err
			}
			if out.Resource == nil {
				continue
			}
			if !out.Resource.Meta().Complete() {
				c.logger.Warn("skipping resource without version metadata", "resource", out.Resource.String())
				continue
			}
			err := c.db.UpdateResourceAndReferences(ctx, first.ResourceID, out.Resource)
			if errors.Is(err, fhir.ErrResourceNotFound) {
				c.logger.Debug("uploaded resource no longer stored locally", "type", first.ResourceType, "id", first.ResourceID)
				continue
			}
			if err != nil {
				return err
			}

		default:
			if err := c.discard(ctx, m.LocalChanges); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Consolidator) discard(ctx context.Context, changes []fhir.LocalChange) error {
	if err := c.db.DeleteUpdates(ctx, fhir.TokenFor(changes)); err != nil {
		return fmt.Errorf("discarding uploaded changes: %w", err)
	}
	return nil
}

// parseResponse extracts the resource location and version of a response.
// Responses without a Location, such as deletes, are skipped quietly;
// anything else incomplete is logged.
func (c *Consolidator) parseResponse(out fhir.ResponseOutput) (Location, string, bool) {
	if out.Location == "" {
		c.logger.Debug("response carries no location", "status", out.Status)
		return Location{}, "", false
	}
	loc, ok := ParseLocation(out.Location)
	if !ok {
		c.logger.Warn("skipping response with malformed location", "location", out.Location)
		return Location{}, "", false
	}
	version, ok := VersionFromETag(out.ETag)
	if !ok || out.LastModified.IsZero() {
		c.logger.Warn("skipping response without etag or last-modified", "location", out.Location, "etag", out.ETag)
		return Location{}, "", false
	}
	return loc, version, true
}
