package cli

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/dmitrijs2005/mzexplorer/internal/catalog"
	"github.com/dmitrijs2005/mzexplorer/internal/sqlclient"
)

// ungated is the session surface that skips the readiness gate.
type ungated interface {
	PrivateQuery(ctx context.Context, statement string, args ...any) (*sqlclient.Result, error)
}

// privateQuerier adapts the ungated surface to catalog.Querier, so a
// listing never queues behind a refresh it triggered itself.
type privateQuerier struct {
	s ungated
}

func (q privateQuerier) Query(ctx context.Context, statement string, args ...any) (*sqlclient.Result, error) {
	return q.s.PrivateQuery(ctx, statement, args...)
}

func (a *App) querier() catalog.Querier {
	return privateQuerier{s: a.session}
}

// Env prints the session state and the current environment.
func (a *App) Env(ctx context.Context) error {
	printlnFn("state:    " + a.session.State().String())
	if err := a.session.LastError(); err != nil {
		printlnFn("error:    " + err.Error())
	}

	env := a.session.Environment()
	printlnFn("cluster:  " + env.Cluster)
	printlnFn("database: " + env.Database)
	printlnFn("schema:   " + env.Schema)
	printlnFn(fmt.Sprintf("available: %d clusters, %d databases, %d schemas",
		len(env.Clusters), len(env.Databases), len(env.Schemas)))
	return nil
}

// Use switches the database, cluster or schema of the session.
func (a *App) Use(ctx context.Context, what, name string) error {
	switch what {
	case "db", "database":
		return a.session.SetDatabase(ctx, name)
	case "cluster":
		return a.session.SetCluster(ctx, name)
	case "schema":
		return a.session.SetSchema(ctx, name)
	default:
		return fmt.Errorf("unknown target %q, expected db, cluster or schema", what)
	}
}

// Ls lists catalog objects of the given kind. With no kind, the top-level
// sets are listed together; per-set failures are combined, and the sets
// that loaded are still printed.
func (a *App) Ls(ctx context.Context, kind string) error {
	q := a.querier()

	switch kind {
	case "":
		var errs error

		databases, err := catalog.ListDatabases(ctx, q)
		errs = multierr.Append(errs, err)
		a.printObjects("databases", databases)

		schemas, err := catalog.ListSchemas(ctx, q, a.currentDatabaseID())
		errs = multierr.Append(errs, err)
		a.printObjects("schemas", schemas)

		clusters, err := catalog.ListClusters(ctx, q)
		errs = multierr.Append(errs, err)
		a.printObjects("clusters", clusters)

		return errs

	case "databases":
		databases, err := catalog.ListDatabases(ctx, q)
		return a.listInto("databases", databases, err)
	case "schemas":
		schemas, err := catalog.ListSchemas(ctx, q, a.currentDatabaseID())
		return a.listInto("schemas", schemas, err)
	case "clusters":
		clusters, err := catalog.ListClusters(ctx, q)
		return a.listInto("clusters", clusters, err)
	case "tables":
		return a.listRelations(ctx, catalog.KindTable)
	case "views":
		return a.listRelations(ctx, catalog.KindView)
	case "materialized-views":
		return a.listRelations(ctx, catalog.KindMaterializedView)
	case "sources":
		return a.listRelations(ctx, catalog.KindSource)
	case "sinks":
		return a.listRelations(ctx, catalog.KindSink)
	default:
		return fmt.Errorf("unknown kind %q", kind)
	}
}

func (a *App) listInto(title string, objects []catalog.Object, err error) error {
	if err != nil {
		return err
	}
	a.printObjects(title, objects)
	return nil
}

func (a *App) listRelations(ctx context.Context, kind catalog.Kind) error {
	schemaID := a.currentSchemaID()
	if schemaID == "" {
		return fmt.Errorf("no schema selected")
	}
	objects, err := catalog.ListRelations(ctx, a.querier(), schemaID, kind)
	if err != nil {
		return err
	}
	a.printObjects(kind.String()+"s", objects)
	return nil
}

func (a *App) printObjects(title string, objects []catalog.Object) {
	printlnFn(title + ":")
	for _, o := range objects {
		line := fmt.Sprintf("  %-6s %s", o.ID, o.Name)
		if o.Type != "" {
			line += "  (" + o.Type + ")"
		}
		printlnFn(line)
	}
}

func (a *App) currentDatabaseID() string {
	env := a.session.Environment()
	for _, db := range env.Databases {
		if db.Name == env.Database {
			return db.ID
		}
	}
	return ""
}

func (a *App) currentSchemaID() string {
	env := a.session.Environment()
	for _, schema := range env.Schemas {
		if schema.Name == env.Schema {
			return schema.ID
		}
	}
	return ""
}
