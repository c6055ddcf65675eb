package catalog

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/mzexplorer/internal/sqlclient"
)

// fakeQuerier maps statement substrings to canned results.
type fakeQuerier struct {
	results map[string]*sqlclient.Result
	lastSQL string
	lastArg []any
}

func (f *fakeQuerier) Query(ctx context.Context, statement string, args ...any) (*sqlclient.Result, error) {
	f.lastSQL = statement
	f.lastArg = args
	for sub, res := range f.results {
		if strings.Contains(statement, sub) {
			return res, nil
		}
	}
	return &sqlclient.Result{}, nil
}

func TestKindString_Exhaustive(t *testing.T) {
	kinds := []Kind{
		KindDatabase, KindSchema, KindCluster, KindTable, KindView,
		KindMaterializedView, KindSource, KindSink, KindColumn,
	}
	seen := map[string]bool{}
	for _, k := range kinds {
		s := k.String()
		assert.False(t, strings.HasPrefix(s, "Kind("), "kind %d has no name", int(k))
		assert.False(t, seen[s], "duplicate name %q", s)
		seen[s] = true
	}
}

func TestListDatabases(t *testing.T) {
	q := &fakeQuerier{results: map[string]*sqlclient.Result{
		"mz_databases": {Rows: [][]any{
			{"u1", "materialize", "u1"},
			{"u2", "analytics", "u1"},
		}},
	}}

	dbs, err := ListDatabases(context.Background(), q)
	require.NoError(t, err)

	require.Len(t, dbs, 2)
	assert.Equal(t, Object{Kind: KindDatabase, ID: "u1", Name: "materialize", OwnerID: "u1"}, dbs[0])
	assert.Equal(t, "analytics", dbs[1].Name)
}

func TestListSchemas_FiltersByDatabase(t *testing.T) {
	q := &fakeQuerier{results: map[string]*sqlclient.Result{
		"mz_schemas": {Rows: [][]any{
			{"s1", "public", "u1", "u1"},
		}},
	}}

	schemas, err := ListSchemas(context.Background(), q, "u1")
	require.NoError(t, err)

	require.Len(t, schemas, 1)
	assert.Equal(t, "u1", schemas[0].DatabaseID)
	assert.Contains(t, q.lastSQL, "WHERE database_id = $1")
	assert.Equal(t, []any{"u1"}, q.lastArg)
}

func TestListRelations(t *testing.T) {
	relationKinds := map[Kind]string{
		KindTable:            "mz_tables",
		KindView:             "mz_views",
		KindMaterializedView: "mz_materialized_views",
		KindSource:           "mz_sources",
		KindSink:             "mz_sinks",
	}

	for kind, table := range relationKinds {
		t.Run(kind.String(), func(t *testing.T) {
			q := &fakeQuerier{results: map[string]*sqlclient.Result{
				table: {Rows: [][]any{{"o1", "obj", "u1"}}},
			}}

			objs, err := ListRelations(context.Background(), q, "s1", kind)
			require.NoError(t, err)

			require.Len(t, objs, 1)
			assert.Equal(t, kind, objs[0].Kind)
			assert.Equal(t, "s1", objs[0].SchemaID)
			assert.Contains(t, q.lastSQL, table)
		})
	}
}

func TestListRelations_RejectsNonRelationKinds(t *testing.T) {
	q := &fakeQuerier{}
	for _, kind := range []Kind{KindDatabase, KindSchema, KindCluster, KindColumn} {
		_, err := ListRelations(context.Background(), q, "s1", kind)
		require.Error(t, err, "kind %s", kind)
	}
}

func TestListColumns(t *testing.T) {
	q := &fakeQuerier{results: map[string]*sqlclient.Result{
		"mz_columns": {Rows: [][]any{
			{"id", "uint8"},
			{"name", "text"},
		}},
	}}

	cols, err := ListColumns(context.Background(), q, "t1")
	require.NoError(t, err)

	require.Len(t, cols, 2)
	assert.Equal(t, KindColumn, cols[0].Kind)
	assert.Equal(t, "uint8", cols[0].Type)
	assert.Equal(t, "name", cols[1].Name)
}

func TestList_NarrowRowIsAnError(t *testing.T) {
	q := &fakeQuerier{results: map[string]*sqlclient.Result{
		"mz_databases": {Rows: [][]any{
			{"u1", "materialize"},
		}},
	}}

	_, err := ListDatabases(context.Background(), q)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected at least 3")
}

func TestListColumns_NarrowRowIsAnError(t *testing.T) {
	q := &fakeQuerier{results: map[string]*sqlclient.Result{
		"mz_columns": {Rows: [][]any{
			{"id"},
		}},
	}}

	_, err := ListColumns(context.Background(), q, "t1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2")
}
