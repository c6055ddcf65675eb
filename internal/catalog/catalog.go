// Package catalog models the objects of the remote catalog as a tagged
// variant and provides the introspection queries to enumerate them.
package catalog

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/mzexplorer/internal/sqlclient"
)

// Kind discriminates catalog objects. Rendering and dispatch switch on it
// exhaustively; there is no string-tag fallback.
type Kind int

const (
	KindDatabase Kind = iota
	KindSchema
	KindCluster
	KindTable
	KindView
	KindMaterializedView
	KindSource
	KindSink
	KindColumn
)

func (k Kind) String() string {
	switch k {
	case KindDatabase:
		return "database"
	case KindSchema:
		return "schema"
	case KindCluster:
		return "cluster"
	case KindTable:
		return "table"
	case KindView:
		return "view"
	case KindMaterializedView:
		return "materialized view"
	case KindSource:
		return "source"
	case KindSink:
		return "sink"
	case KindColumn:
		return "column"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Object is one catalog entry. DatabaseID is set for schemas, SchemaID for
// relations, Type for sources/sinks and column data types.
type Object struct {
	Kind       Kind
	ID         string
	Name       string
	OwnerID    string
	DatabaseID string
	SchemaID   string
	Type       string
}

// Querier is the query surface the introspection functions run against.
// Both the session and a bare sqlclient.Client satisfy it.
type Querier interface {
	Query(ctx context.Context, statement string, args ...any) (*sqlclient.Result, error)
}

// ListDatabases enumerates mz_databases.
func ListDatabases(ctx context.Context, q Querier) ([]Object, error) {
	return list(ctx, q, KindDatabase,
		`SELECT id, name, owner_id FROM mz_databases ORDER BY name`)
}

// ListSchemas enumerates mz_schemas. When databaseID is non-empty, only
// schemas of that database are returned.
func ListSchemas(ctx context.Context, q Querier, databaseID string) ([]Object, error) {
	if databaseID == "" {
		return list(ctx, q, KindSchema,
			`SELECT id, name, owner_id, database_id FROM mz_schemas ORDER BY name`)
	}
	return list(ctx, q, KindSchema,
		`SELECT id, name, owner_id, database_id FROM mz_schemas WHERE database_id = $1 ORDER BY name`,
		databaseID)
}

// ListClusters enumerates mz_clusters.
func ListClusters(ctx context.Context, q Querier) ([]Object, error) {
	return list(ctx, q, KindCluster,
		`SELECT id, name, owner_id FROM mz_clusters ORDER BY name`)
}

// ListRelations enumerates the relations of one schema for the given kind.
func ListRelations(ctx context.Context, q Querier, schemaID string, kind Kind) ([]Object, error) {
	var statement string
	switch kind {
	case KindTable:
		statement = `SELECT id, name, owner_id FROM mz_tables WHERE schema_id = $1 ORDER BY name`
	case KindView:
		statement = `SELECT id, name, owner_id FROM mz_views WHERE schema_id = $1 ORDER BY name`
	case KindMaterializedView:
		statement = `SELECT id, name, owner_id FROM mz_materialized_views WHERE schema_id = $1 ORDER BY name`
	case KindSource:
		statement = `SELECT id, name, owner_id FROM mz_sources WHERE schema_id = $1 ORDER BY name`
	case KindSink:
		statement = `SELECT id, name, owner_id FROM mz_sinks WHERE schema_id = $1 ORDER BY name`
	case KindDatabase, KindSchema, KindCluster, KindColumn:
		return nil, fmt.Errorf("kind %s is not a schema relation", kind)
	default:
		return nil, fmt.Errorf("unknown kind %d", int(kind))
	}

	objects, err := list(ctx, q, kind, statement, schemaID)
	if err != nil {
		return nil, err
	}
	for i := range objects {
		objects[i].SchemaID = schemaID
	}
	return objects, nil
}

// ListColumns enumerates the columns of one relation, in positional order.
func ListColumns(ctx context.Context, q Querier, itemID string) ([]Object, error) {
	result, err := q.Query(ctx,
		`SELECT name, type FROM mz_columns WHERE id = $1 ORDER BY position`, itemID)
	if err != nil {
		return nil, err
	}

	columns := make([]Object, 0, len(result.Rows))
	for i, row := range result.Rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("column row %d has %d fields, expected 2", i, len(row))
		}
		columns = append(columns, Object{
			Kind: KindColumn,
			ID:   itemID,
			Name: asString(row[0]),
			Type: asString(row[1]),
		})
	}
	return columns, nil
}

func list(ctx context.Context, q Querier, kind Kind, statement string, args ...any) ([]Object, error) {
	result, err := q.Query(ctx, statement, args...)
	if err != nil {
		return nil, err
	}

	objects := make([]Object, 0, len(result.Rows))
	for i, row := range result.Rows {
		if len(row) < 3 {
			return nil, fmt.Errorf("%s row %d has %d fields, expected at least 3", kind, i, len(row))
		}
		obj := Object{
			Kind:    kind,
			ID:      asString(row[0]),
			Name:    asString(row[1]),
			OwnerID: asString(row[2]),
		}
		if len(row) > 3 {
			obj.DatabaseID = asString(row[3])
		}
		objects = append(objects, obj)
	}
	return objects, nil
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
