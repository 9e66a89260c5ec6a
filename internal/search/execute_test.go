package search_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fhirsync/internal/database"
	"fhirsync/internal/resource"
	"fhirsync/internal/search"
	"fhirsync/internal/testutil"
)

func TestCompiledQueriesAgainstStore(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDatabase(t)

	_, err := db.Insert(ctx,
		resource.New("Patient", "p1", map[string]any{"name": []any{map[string]any{"family": "Müller", "given": []any{"Anna"}}}}),
		resource.New("Patient", "p2", map[string]any{"name": []any{map[string]any{"family": "Miller", "given": []any{"Johann"}}}}),
		resource.New("Practitioner", "dr1", map[string]any{"name": []any{map[string]any{"family": "House"}}}),
		resource.New("Observation", "o1", map[string]any{
			"subject":   map[string]any{"reference": "Patient/p1"},
			"performer": []any{map[string]any{"reference": "Practitioner/dr1"}},
		}),
		resource.New("Observation", "o2", map[string]any{"subject": map[string]any{"reference": "Patient/p1"}}),
	)
	require.NoError(t, err)

	t.Run("exact string match ignores case and diacritics", func(t *testing.T) {
		q, err := search.New("Patient").WhereString("name.family", search.Exact, "MULLER").Compile()
		require.NoError(t, err)

		got, err := db.Search(ctx, q)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "p1", got[0].Resource.ID)
	})

	t.Run("starts with", func(t *testing.T) {
		q, err := search.New("Patient").WhereString("name.given", search.StartsWith, "jo").Compile()
		require.NoError(t, err)

		got, err := db.Search(ctx, q)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "p2", got[0].Resource.ID)
	})

	t.Run("reference filter with count", func(t *testing.T) {
		b := search.New("Observation").WhereReference("subject", "Patient/p1")
		q, err := b.CompileCount()
		require.NoError(t, err)

		n, err := db.Count(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("paging", func(t *testing.T) {
		q, err := search.New("Patient").SortByLastUpdated(true).Limit(1).Compile()
		require.NoError(t, err)

		got, err := db.Search(ctx, q)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "p2", got[0].Resource.ID)
	})

	t.Run("forward include", func(t *testing.T) {
		b := search.New("Observation").WhereReference("subject", "Patient/p1").Include("performer", "Practitioner")
		q, err := b.Compile()
		require.NoError(t, err)
		base, err := db.Search(ctx, q)
		require.NoError(t, err)

		var uuids []string
		for _, r := range base {
			uuids = append(uuids, r.UUID)
		}
		inc, ok := b.CompileForwardIncludes(uuids)
		require.True(t, ok)

		got, err := db.SearchForwardReferenced(ctx, inc)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Observation:performer", got[0].SearchIndex)
		assert.Equal(t, "dr1", got[0].Resource.ID)
	})

	t.Run("reverse include", func(t *testing.T) {
		b := search.New("Patient").WhereString("name.family", search.Exact, "muller").RevInclude("Observation", "subject")
		q, err := b.Compile()
		require.NoError(t, err)
		base, err := db.Search(ctx, q)
		require.NoError(t, err)
		require.Len(t, base, 1)

		rev, ok := b.CompileReverseIncludes([]string{base[0].UUID})
		require.True(t, ok)

		got, err := db.SearchReverseReferenced(ctx, rev)
		require.NoError(t, err)
		require.Len(t, got, 2)
		for i, want := range []string{"o1", "o2"} {
			assert.Equal(t, base[0].UUID, got[i].BaseUUID)
			assert.Equal(t, "Observation:subject", got[i].SearchIndex)
			assert.Equal(t, want, got[i].Resource.ID)
		}
	})
}

func TestCompiledQueriesAgainstEncryptedStore(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDatabase(t, database.WithSealer(testutil.NewTestSealer(t)))

	_, err := db.Insert(ctx,
		resource.New("Patient", "p1", map[string]any{"name": []any{map[string]any{"family": "Ångström"}}}),
		resource.New("Patient", "p2", map[string]any{"name": []any{map[string]any{"family": "Berg"}}}),
	)
	require.NoError(t, err)

	q, err := search.New("Patient").WhereString("name.family", search.Contains, "ngstr").Compile()
	require.NoError(t, err)

	got, err := db.Search(ctx, q)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].Resource.ID)
	assert.Equal(t, "Ångström", got[0].Resource.Fields["name"].([]any)[0].(map[string]any)["family"])
}
