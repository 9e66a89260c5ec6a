package database

import (
	"context"
	"database/sql"
	"fmt"

	"fhirsync/internal/fhir"
	"fhirsync/internal/resource"
)

// Search operations
//
// Compiled statements select (resource_uuid, serialized_resource) for base
// searches and (index_path, base_uuid, serialized_resource) for includes.

func (s *SQLiteDatabase) Search(ctx context.Context, query fhir.SearchQuery) ([]fhir.ResourceWithUUID, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, query.Query, query.Args...)
	if err != nil {
		return nil, fmt.Errorf("running search: %w", err)
	}
	defer rows.Close()

	var results []fhir.ResourceWithUUID
	seen := make(map[string]bool)
	for rows.Next() {
		var uuid string
		var stored []byte
		if err := rows.Scan(&uuid, &stored); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		if seen[uuid] {
			continue
		}
		seen[uuid] = true

		r, err := s.decodePayload(stored)
		if err != nil {
			return nil, err
		}
		results = append(results, fhir.ResourceWithUUID{UUID: uuid, Resource: r})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search rows: %w", err)
	}
	return results, nil
}

func (s *SQLiteDatabase) SearchForwardReferenced(ctx context.Context, query fhir.SearchQuery) ([]fhir.IncludedResource, error) {
	return s.searchIncluded(ctx, query)
}

func (s *SQLiteDatabase) SearchReverseReferenced(ctx context.Context, query fhir.SearchQuery) ([]fhir.IncludedResource, error) {
	return s.searchIncluded(ctx, query)
}

func (s *SQLiteDatabase) searchIncluded(ctx context.Context, query fhir.SearchQuery) ([]fhir.IncludedResource, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, query.Query, query.Args...)
	if err != nil {
		return nil, fmt.Errorf("running include search: %w", err)
	}
	defer rows.Close()

	var results []fhir.IncludedResource
	for rows.Next() {
		var path, baseUUID string
		var stored []byte
		if err := rows.Scan(&path, &baseUUID, &stored); err != nil {
			return nil, fmt.Errorf("scanning include row: %w", err)
		}
		r, err := s.decodePayload(stored)
		if err != nil {
			return nil, err
		}
		results = append(results, fhir.IncludedResource{SearchIndex: path, BaseUUID: baseUUID, Resource: r})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading include rows: %w", err)
	}
	return results, nil
}

func (s *SQLiteDatabase) Count(ctx context.Context, query fhir.SearchQuery) (int64, error) {
	var n sql.NullInt64
	if err := s.conn(ctx).QueryRowContext(ctx, query.Query, query.Args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("running count: %w", err)
	}
	return n.Int64, nil
}

func (s *SQLiteDatabase) decodePayload(stored []byte) (*resource.Resource, error) {
	payload, err := s.open(stored)
	if err != nil {
		return nil, err
	}
	r, err := resource.Parse(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding search result: %w", err)
	}
	return r, nil
}
