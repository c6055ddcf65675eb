package session

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/mzexplorer/internal/apppassword"
	"github.com/dmitrijs2005/mzexplorer/internal/catalog"
	"github.com/dmitrijs2005/mzexplorer/internal/sqlclient"
)

// beginCycle starts a new reload cycle: it bumps the generation, replaces
// the tracked cycle before any suspension point, and records the loading
// state. Any Ready caller from here on waits for this cycle, not a stale
// one.
func (s *Session) beginCycle(state State) (uint64, *cycle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	cur := &cycle{ch: make(chan struct{})}
	s.current = cur
	s.setStateLocked(state, nil)
	return s.generation, cur
}

// settle finishes a cycle: normalizes the error, updates visible state if
// the cycle still owns the latest generation, and wakes this cycle's
// waiters with its outcome. Stale cycles wake their waiters but leave
// state to the cycle that superseded them.
func (s *Session) settle(gen uint64, cur *cycle, err error) error {
	if err != nil {
		err = &LoadError{cause: err}
	}

	s.mu.Lock()
	if gen == s.generation {
		if err != nil {
			s.setStateLocked(StateError, err)
		} else {
			s.setStateLocked(StateReady, nil)
		}
	}
	s.mu.Unlock()

	cur.err = err
	close(cur.ch)
	return err
}

// LoadContext reads the selected profile, rebuilds the identity and region
// clients for it, and loads the environment. With no profiles at all the
// session becomes Ready with an empty environment (first-run state); with
// profiles but no selection it fails with ErrProfileDoesNotExist.
func (s *Session) LoadContext(ctx context.Context) error {
	gen, cur := s.beginCycle(StateLoadingCredentials)
	return s.settle(gen, cur, s.runLoadContext(ctx, gen))
}

// ReloadEnvironment re-resolves the region, rebuilds the pool and re-runs
// environment discovery for the active profile.
func (s *Session) ReloadEnvironment(ctx context.Context) error {
	return s.reload(ctx, false)
}

func (s *Session) reload(ctx context.Context, schemaOnly bool) error {
	gen, cur := s.beginCycle(StateLoadingEnvironment)
	return s.settle(gen, cur, s.runEnvironmentLoad(ctx, gen, schemaOnly))
}

func (s *Session) runLoadContext(ctx context.Context, gen uint64) error {
	if len(s.store.ProfileNames()) == 0 {
		s.mu.Lock()
		if gen != s.generation {
			s.mu.Unlock()
			return nil
		}
		prev := s.sql
		s.sql = nil
		s.profile = nil
		s.tokens = nil
		s.resolver = nil
		s.env = Environment{}
		s.mu.Unlock()

		if prev != nil {
			prev.Close()
		}
		return nil
	}

	profile, ok := s.store.Profile()
	if !ok {
		return ErrProfileDoesNotExist
	}

	cred, err := apppassword.Parse(profile.AppPassword)
	if err != nil {
		return fmt.Errorf("parsing app-password of profile %q: %w", s.store.ProfileName(), err)
	}

	tokens := s.clients.newTokenClient(profile.AdminEndpointOrDefault(s.opts.AdminEndpoint), cred, s.log)
	resolver := s.clients.newResolver(profile.CloudEndpointOrDefault(s.opts.CloudEndpoint), tokens, s.log)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return nil
	}
	p := profile
	s.profile = &p
	s.tokens = tokens
	s.resolver = resolver
	s.setStateLocked(StateLoadingEnvironment, nil)
	s.mu.Unlock()

	return s.runEnvironmentLoad(ctx, gen, false)
}

// runEnvironmentLoad is the body of one reload cycle: close the previous
// pool, resolve host and identity, build the new pool, discover the
// environment, and adopt everything atomically while gen is still the
// latest. A superseded cycle closes whatever it built and discards its
// results.
func (s *Session) runEnvironmentLoad(ctx context.Context, gen uint64, schemaOnly bool) error {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return nil
	}
	if s.profile == nil {
		s.mu.Unlock()
		return ErrUnconfiguredProfile
	}
	if s.tokens == nil || s.resolver == nil {
		s.mu.Unlock()
		return ErrUnconfiguredClients
	}
	profile := *s.profile
	tokens, resolver := s.tokens, s.resolver
	prevSQL := s.sql
	s.sql = nil
	prevEnv := s.env
	s.mu.Unlock()

	// The previous pool must be fully closed before its successor exists.
	if prevSQL != nil {
		prevSQL.Close()
	}

	host, err := resolver.GetHost(ctx, profile.Region)
	if err != nil {
		return err
	}

	email, err := tokens.GetEmail(ctx)
	if err != nil {
		return err
	}

	client, err := s.clients.connect(ctx, sqlclient.Params{
		Host:           host,
		User:           email,
		Password:       profile.AppPassword,
		Database:       profile.Database,
		Cluster:        profile.Cluster,
		Schema:         profile.Schema,
		ConnectTimeout: s.opts.ConnectTimeout,
	}, s.log)
	if err != nil {
		return err
	}

	env, err := discoverEnvironment(ctx, client, prevEnv, schemaOnly)
	if err != nil {
		client.Close()
		return err
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		client.Close()
		return nil
	}
	s.env = env
	s.sql = client
	s.mu.Unlock()

	s.log.Debug(ctx, "environment loaded",
		"cluster", env.Cluster, "database", env.Database, "schema", env.Schema)
	return nil
}

// discoverEnvironment issues the discovery queries concurrently and builds
// the next environment snapshot. On schemaOnly, only the two schema queries
// run; everything else carries over from prev. Results are adopted
// all-or-nothing by the caller.
func discoverEnvironment(ctx context.Context, q catalog.Querier, prev Environment, schemaOnly bool) (Environment, error) {
	var (
		cluster, database, schema      string
		clusters, databases, schemaSet []catalog.Object
	)

	g, gctx := errgroup.WithContext(ctx)

	if !schemaOnly {
		g.Go(func() error {
			var err error
			cluster, err = showValue(gctx, q, "SHOW cluster")
			return err
		})
		g.Go(func() error {
			var err error
			database, err = showValue(gctx, q, "SHOW database")
			return err
		})
		g.Go(func() error {
			var err error
			clusters, err = catalog.ListClusters(gctx, q)
			return err
		})
		g.Go(func() error {
			var err error
			databases, err = catalog.ListDatabases(gctx, q)
			return err
		})
	}
	g.Go(func() error {
		var err error
		schema, err = showValue(gctx, q, "SHOW schema")
		return err
	})
	g.Go(func() error {
		var err error
		schemaSet, err = catalog.ListSchemas(gctx, q, "")
		return err
	})

	if err := g.Wait(); err != nil {
		return Environment{}, err
	}

	env := prev
	if !schemaOnly {
		env.Cluster = cluster
		env.Database = database
		env.Clusters = clusters
		env.Databases = databases
	}
	env.Schema = schema

	// Schemas of other databases must never leak into the snapshot.
	databaseID := ""
	for _, db := range env.Databases {
		if db.Name == env.Database {
			databaseID = db.ID
			break
		}
	}
	filtered := make([]catalog.Object, 0, len(schemaSet))
	for _, sc := range schemaSet {
		if sc.DatabaseID == databaseID {
			filtered = append(filtered, sc)
		}
	}
	env.Schemas = filtered

	return env, nil
}

func showValue(ctx context.Context, q catalog.Querier, statement string) (string, error) {
	result, err := q.Query(ctx, statement)
	if err != nil {
		return "", err
	}
	if len(result.Rows) == 0 || len(result.Rows[0]) == 0 || result.Rows[0][0] == nil {
		return "", nil
	}
	return fmt.Sprint(result.Rows[0][0]), nil
}
