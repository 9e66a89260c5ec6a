package upload_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fhirsync/internal/database"
	"fhirsync/internal/fhir"
	"fhirsync/internal/remote"
	"fhirsync/internal/resource"
	"fhirsync/internal/testutil"
	"fhirsync/internal/upload"
)

var serverTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

type recordingLogger struct {
	fhir.NopLogger
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Warn(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

type harness struct {
	db           *database.SQLiteDatabase
	server       *remote.Server
	uploader     *upload.Uploader
	consolidator *upload.Consolidator
}

func newHarness(t *testing.T, mode upload.Mode) *harness {
	t.Helper()
	db := testutil.NewTestDatabase(t)
	server, err := remote.NewServer(testutil.NewTestStore(), "https://fhir.example.org/fhir", testutil.FixedClock(), testutil.NewPrefixedIDGenerator("srv"), nil)
	require.NoError(t, err)
	return &harness{
		db:           db,
		server:       server,
		uploader:     upload.NewUploader(server, mode, nil),
		consolidator: upload.NewConsolidator(db, mode, nil),
	}
}

// syncNext uploads and consolidates the changes of the earliest changed resource.
func (h *harness) syncNext(t *testing.T) fhir.UploadRequestResult {
	t.Helper()
	ctx := context.Background()
	changes, err := h.db.GetAllChangesForEarliestChangedResource(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, changes)

	result := h.uploader.Upload(ctx, changes)
	require.NoError(t, h.consolidator.Consolidate(ctx, result))
	return result
}

func pendingCount(t *testing.T, db fhir.Database) int64 {
	t.Helper()
	n, err := db.GetLocalChangesCount(context.Background())
	require.NoError(t, err)
	return n
}

func TestNewConsolidator_Strategy(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	assert.Equal(t, upload.StrategyMetadata, upload.NewConsolidator(db, upload.Mode{CreateVerb: upload.MethodPut}, nil).Strategy())
	assert.Equal(t, upload.StrategyPostCascade, upload.NewConsolidator(db, upload.Mode{CreateVerb: upload.MethodPost}, nil).Strategy())
}

func TestConsolidate_Metadata(t *testing.T) {
	modes := map[string]upload.Mode{
		"url":    {CreateVerb: upload.MethodPut},
		"bundle": {Bundle: true, CreateVerb: upload.MethodPut, BundleSize: 10},
	}

	for name, mode := range modes {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t, mode)

			_, err := h.db.Insert(ctx, resource.New("Patient", "p1", map[string]any{"gender": "male"}))
			require.NoError(t, err)

			h.syncNext(t)

			assert.Zero(t, pendingCount(t, h.db))
			e, err := h.db.SelectEntity(ctx, "Patient", "p1")
			require.NoError(t, err)
			assert.Equal(t, "1", e.VersionID)
			assert.True(t, e.LastUpdatedRemote.Equal(serverTime), "LastUpdatedRemote = %v", e.LastUpdatedRemote)

			r, err := h.db.Select(ctx, "Patient", "p1")
			require.NoError(t, err)
			assert.Equal(t, "1", r.Meta().VersionID)

			t.Run("delete", func(t *testing.T) {
				require.NoError(t, h.db.Delete(ctx, "Patient", "p1"))
				h.syncNext(t)

				assert.Zero(t, pendingCount(t, h.db))
				_, err := h.server.Read(ctx, "Patient", "p1")
				assert.True(t, errors.Is(err, remote.ErrNotFound))
			})
		})
	}
}

func TestConsolidate_PostCascade(t *testing.T) {
	modes := map[string]upload.Mode{
		"url resource output":     {CreateVerb: upload.MethodPost},
		"bundle response output": {Bundle: true, CreateVerb: upload.MethodPost, BundleSize: 10},
	}

	for name, mode := range modes {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t, mode)

			ids, err := h.db.Insert(ctx,
				resource.New("Patient", "", map[string]any{"gender": "female"}),
				resource.New("Observation", "o1", map[string]any{"subject": map[string]any{"reference": "Patient/id-1"}}),
			)
			require.NoError(t, err)
			require.Equal(t, []string{"id-1", "o1"}, ids)

			h.syncNext(t)

			_, err = h.db.Select(ctx, "Patient", "id-1")
			assert.True(t, errors.Is(err, fhir.ErrResourceNotFound))
			e, err := h.db.SelectEntity(ctx, "Patient", "srv-1")
			require.NoError(t, err)
			assert.Equal(t, "id-2", e.UUID)
			assert.Equal(t, "1", e.VersionID)

			obs, err := h.db.Select(ctx, "Observation", "o1")
			require.NoError(t, err)
			assert.Equal(t, "Patient/srv-1", obs.Fields["subject"].(map[string]any)["reference"])

			pending, err := h.db.GetLocalChanges(ctx, "Observation", "o1")
			require.NoError(t, err)
			require.Len(t, pending, 1)
			assert.True(t, bytes.Contains(pending[0].Payload, []byte("Patient/srv-1")))

			h.syncNext(t)
			assert.Zero(t, pendingCount(t, h.db))

			uploaded, err := h.server.Read(ctx, "Observation", "srv-2")
			require.NoError(t, err)
			assert.Equal(t, "Patient/srv-1", uploaded.Fields["subject"].(map[string]any)["reference"])

			_, err = h.db.Select(ctx, "Observation", "srv-2")
			require.NoError(t, err)
		})
	}
}

func TestConsolidate_FailureIsNoOp(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDatabase(t)
	_, err := db.Insert(ctx,
		resource.New("Patient", "p1", nil),
		resource.New("Observation", "o1", map[string]any{"subject": map[string]any{"reference": "Patient/p1"}}))
	require.NoError(t, err)

	changes, err := db.GetAllLocalChanges(ctx)
	require.NoError(t, err)
	patientBefore, err := db.SelectEntity(ctx, "Patient", "p1")
	require.NoError(t, err)
	obsBefore, err := db.SelectEntity(ctx, "Observation", "o1")
	require.NoError(t, err)

	for _, mode := range []upload.Mode{{CreateVerb: upload.MethodPut}, {CreateVerb: upload.MethodPost}} {
		c := upload.NewConsolidator(db, mode, nil)
		err := c.Consolidate(ctx, fhir.UploadFailure{LocalChanges: changes, Err: errors.New("offline")})
		require.NoError(t, err)
	}

	after, err := db.GetAllLocalChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, changes, after)

	patientAfter, err := db.SelectEntity(ctx, "Patient", "p1")
	require.NoError(t, err)
	assert.Equal(t, patientBefore, patientAfter)
	assert.Empty(t, patientAfter.VersionID)
	obsAfter, err := db.SelectEntity(ctx, "Observation", "o1")
	require.NoError(t, err)
	assert.Equal(t, obsBefore, obsAfter)
}

func TestConsolidate_MalformedMetadataIsSkipped(t *testing.T) {
	tests := []struct {
		name   string
		mode   upload.Mode
		output fhir.UploadOutput
	}{
		{
			name:   "metadata with bad location",
			mode:   upload.Mode{CreateVerb: upload.MethodPut},
			output: fhir.ResponseOutput{Status: "201 Created", ETag: `W/"1"`, LastModified: serverTime, Location: "Patient/p1"},
		},
		{
			name:   "metadata without etag",
			mode:   upload.Mode{CreateVerb: upload.MethodPut},
			output: fhir.ResponseOutput{Status: "201 Created", LastModified: serverTime, Location: "Patient/p1/_history/1"},
		},
		{
			name:   "metadata resource without meta",
			mode:   upload.Mode{CreateVerb: upload.MethodPut},
			output: fhir.ResourceOutput{Resource: resource.New("Patient", "p1", nil)},
		},
		{
			name:   "post cascade without last-modified",
			mode:   upload.Mode{CreateVerb: upload.MethodPost},
			output: fhir.ResponseOutput{Status: "201 Created", ETag: `W/"1"`, Location: "Patient/srv-1/_history/1"},
		},
		{
			name:   "post cascade resource without meta",
			mode:   upload.Mode{CreateVerb: upload.MethodPost},
			output: fhir.ResourceOutput{Resource: resource.New("Patient", "srv-1", nil)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			db := testutil.NewTestDatabase(t)
			_, err := db.Insert(ctx, resource.New("Patient", "p1", nil))
			require.NoError(t, err)
			changes, err := db.GetAllLocalChanges(ctx)
			require.NoError(t, err)

			logger := &recordingLogger{}
			c := upload.NewConsolidator(db, tt.mode, logger)
			result := fhir.UploadSuccess{Mappings: []fhir.UploadResponseMapping{{LocalChanges: changes, Output: tt.output}}}
			require.NoError(t, c.Consolidate(ctx, result))

			assert.Len(t, logger.warns, 1)
			assert.Zero(t, pendingCount(t, db))

			e, err := db.SelectEntity(ctx, "Patient", "p1")
			require.NoError(t, err)
			assert.Empty(t, e.VersionID)
		})
	}
}

func TestConsolidate_SquashedChangesAreDiscarded(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, upload.Mode{Bundle: true, CreateVerb: upload.MethodPost, BundleSize: 10})

	_, err := h.db.Insert(ctx, resource.New("Patient", "p1", nil))
	require.NoError(t, err)
	require.NoError(t, h.db.Delete(ctx, "Patient", "p1"))

	result := h.syncNext(t)

	success, ok := result.(fhir.UploadSuccess)
	require.True(t, ok)
	require.Len(t, success.Mappings, 1)
	assert.Nil(t, success.Mappings[0].Output)
	assert.Zero(t, pendingCount(t, h.db))

	all, err := h.server.Download(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
