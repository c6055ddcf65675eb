package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/mzexplorer/internal/admin"
	"github.com/dmitrijs2005/mzexplorer/internal/apppassword"
	"github.com/dmitrijs2005/mzexplorer/internal/client/config"
	"github.com/dmitrijs2005/mzexplorer/internal/logging"
	"github.com/dmitrijs2005/mzexplorer/internal/sqlclient"
)

// ---- fakes ----

type fakeStore struct {
	mu       sync.Mutex
	current  string
	profiles map[string]config.Profile
}

func (f *fakeStore) Profile() (config.Profile, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[f.current]
	return p, ok
}

func (f *fakeStore) ProfileName() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeStore) ProfileNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.profiles))
	for name := range f.profiles {
		names = append(names, name)
	}
	return names
}

func (f *fakeStore) SetProfile(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.profiles[name]; !ok {
		return config.ErrNoSuchProfile
	}
	f.current = name
	return nil
}

type fakeTokens struct {
	email    string
	emailErr error
}

func (f *fakeTokens) GetToken(ctx context.Context) (admin.Token, error) {
	return admin.Token{AccessToken: "token", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeTokens) GetEmail(ctx context.Context) (string, error) {
	return f.email, f.emailErr
}

type fakeResolver struct {
	host string
	err  error
}

func (f *fakeResolver) GetHost(ctx context.Context, regionID string) (string, error) {
	return f.host, f.err
}

// fakeSQL answers the discovery queries from a fixed catalog fixture,
// shaped by the connection params it was built with.
type fakeSQL struct {
	params sqlclient.Params

	mu      sync.Mutex
	queries []string
	closed  int
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func (f *fakeSQL) Query(ctx context.Context, statement string, args ...any) (*sqlclient.Result, error) {
	f.mu.Lock()
	f.queries = append(f.queries, statement)
	f.mu.Unlock()

	single := func(v string) *sqlclient.Result {
		return &sqlclient.Result{Rows: [][]any{{v}}}
	}

	switch {
	case statement == "SHOW cluster":
		return single(orDefault(f.params.Cluster, "quickstart")), nil
	case statement == "SHOW database":
		return single(orDefault(f.params.Database, "materialize")), nil
	case statement == "SHOW schema":
		return single(orDefault(f.params.Schema, "public")), nil
	case strings.Contains(statement, "mz_clusters"):
		return &sqlclient.Result{Rows: [][]any{
			{"c1", "quickstart", "u1"},
			{"c2", "other", "u1"},
		}}, nil
	case strings.Contains(statement, "mz_databases"):
		return &sqlclient.Result{Rows: [][]any{
			{"u1", "materialize", "u1"},
			{"u2", "db2", "u1"},
		}}, nil
	case strings.Contains(statement, "mz_schemas"):
		return &sqlclient.Result{Rows: [][]any{
			{"s1", "public", "u1", "u1"},
			{"s2", "public", "u1", "u2"},
			{"s3", "analytics", "u1", "u2"},
		}}, nil
	default:
		return &sqlclient.Result{}, nil
	}
}

func (f *fakeSQL) CursorQuery(ctx context.Context, statement string) (*sqlclient.Cursor, error) {
	return nil, errors.New("not supported by fake")
}

func (f *fakeSQL) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func (f *fakeSQL) closedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSQL) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

// connector builds fakeSQL clients and can fail or block on demand.
type connector struct {
	mu       sync.Mutex
	created  []*fakeSQL
	connects int
	failWith error

	blockFirst chan struct{} // when set, the first connect waits on it
	started    chan struct{} // signaled when the first connect begins
}

func (c *connector) connect(ctx context.Context, params sqlclient.Params, log logging.Logger) (SQLClient, error) {
	c.mu.Lock()
	c.connects++
	n := c.connects
	failWith := c.failWith
	c.failWith = nil
	blockFirst, started := c.blockFirst, c.started
	c.mu.Unlock()

	if n == 1 && blockFirst != nil {
		if started != nil {
			started <- struct{}{}
		}
		<-blockFirst
	}

	if failWith != nil {
		return nil, failWith
	}

	client := &fakeSQL{params: params}
	c.mu.Lock()
	c.created = append(c.created, client)
	c.mu.Unlock()
	return client, nil
}

func (c *connector) connectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

// ---- wiring ----

type testRig struct {
	session   *Session
	store     *fakeStore
	tokens    *fakeTokens
	resolver  *fakeResolver
	connector *connector
}

func newRig(t *testing.T, profiles map[string]config.Profile, current string) *testRig {
	t.Helper()

	if profiles == nil {
		profiles = map[string]config.Profile{}
	}
	rig := &testRig{
		store:     &fakeStore{current: current, profiles: profiles},
		tokens:    &fakeTokens{email: "dev@example.com"},
		resolver:  &fakeResolver{host: "sql.us-east-1.example.com:6875"},
		connector: &connector{},
	}

	log := logging.NewTextLogger(io.Discard, 0)
	rig.session = New(rig.store, log, Options{})
	rig.session.clients = clients{
		newTokenClient: func(endpoint string, cred apppassword.Credential, log logging.Logger) TokenClient {
			return rig.tokens
		},
		newResolver: func(endpoint string, tokens TokenClient, log logging.Logger) HostResolver {
			return rig.resolver
		},
		connect: rig.connector.connect,
	}
	return rig
}

func devProfiles() map[string]config.Profile {
	return map[string]config.Profile{
		"dev": {AppPassword: apppassword.Generate().String(), Region: "aws/us-east-1"},
	}
}

// ---- tests ----

func TestLoadContext_FirstRunWithoutProfiles(t *testing.T) {
	rig := newRig(t, nil, "")
	ctx := context.Background()

	require.NoError(t, rig.session.LoadContext(ctx))

	assert.Equal(t, StateReady, rig.session.State())
	assert.Equal(t, Environment{}, rig.session.Environment())
	assert.Zero(t, rig.connector.connectCount())

	_, err := rig.session.Query(ctx, "SELECT 1")
	require.ErrorIs(t, err, ErrUnconfiguredProfile)
}

func TestLoadContext_NoSelectedProfile(t *testing.T) {
	rig := newRig(t, devProfiles(), "")
	ctx := context.Background()

	err := rig.session.LoadContext(ctx)
	require.ErrorIs(t, err, ErrProfileDoesNotExist)
	assert.Equal(t, StateError, rig.session.State())
}

func TestLoadContext_MalformedAppPassword(t *testing.T) {
	rig := newRig(t, map[string]config.Profile{
		"dev": {AppPassword: "mzp_garbage", Region: "aws/us-east-1"},
	}, "dev")

	err := rig.session.LoadContext(context.Background())
	require.ErrorIs(t, err, apppassword.ErrInvalidAppPassword)
	assert.Equal(t, StateError, rig.session.State())
}

func TestLoadContext_AdoptsEnvironmentAtomically(t *testing.T) {
	rig := newRig(t, devProfiles(), "dev")
	ctx := context.Background()

	require.NoError(t, rig.session.LoadContext(ctx))

	env := rig.session.Environment()
	assert.Equal(t, "quickstart", env.Cluster)
	assert.Equal(t, "materialize", env.Database)
	assert.Equal(t, "public", env.Schema)
	assert.Len(t, env.Clusters, 2)
	assert.Len(t, env.Databases, 2)

	// Only schemas of the current database survive.
	require.Len(t, env.Schemas, 1)
	assert.Equal(t, "s1", env.Schemas[0].ID)

	assert.Equal(t, StateReady, rig.session.State())
	assert.Equal(t, 1, rig.connector.connectCount())
}

func TestLoadContext_ResolverFailureEndsInError(t *testing.T) {
	rig := newRig(t, devProfiles(), "dev")
	rig.resolver.err = errors.New("region is not enabled: aws/us-east-1")

	err := rig.session.LoadContext(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateError, rig.session.State())

	// The message is normalized and capitalized for display.
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "Region is not enabled: aws/us-east-1", loadErr.Error())
}

func TestSetDatabase_RefiltersSchemas(t *testing.T) {
	rig := newRig(t, devProfiles(), "dev")
	ctx := context.Background()

	require.NoError(t, rig.session.LoadContext(ctx))
	require.NoError(t, rig.session.SetDatabase(ctx, "db2"))

	env := rig.session.Environment()
	assert.Equal(t, "db2", env.Database)

	require.Len(t, env.Schemas, 2)
	for _, schema := range env.Schemas {
		assert.Equal(t, "u2", schema.DatabaseID)
	}
}

func TestSetDatabase_PreviousPoolClosedBeforeSuccessor(t *testing.T) {
	rig := newRig(t, devProfiles(), "dev")
	ctx := context.Background()

	require.NoError(t, rig.session.LoadContext(ctx))
	first := rig.connector.created[0]

	require.NoError(t, rig.session.SetDatabase(ctx, "db2"))

	assert.Equal(t, 1, first.closedCount())
	assert.Equal(t, 2, rig.connector.connectCount())
	assert.Zero(t, rig.connector.created[1].closedCount())
}

func TestSetCluster_ConfirmedByReload(t *testing.T) {
	rig := newRig(t, devProfiles(), "dev")
	ctx := context.Background()

	require.NoError(t, rig.session.LoadContext(ctx))
	require.Equal(t, "quickstart", rig.session.Cluster())

	require.NoError(t, rig.session.SetCluster(ctx, "other"))
	assert.Equal(t, "other", rig.session.Cluster())
}

func TestSetCluster_FailedReloadKeepsLastGoodEnvironment(t *testing.T) {
	rig := newRig(t, devProfiles(), "dev")
	ctx := context.Background()

	require.NoError(t, rig.session.LoadContext(ctx))

	rig.connector.failWith = errors.New("connection refused")

	err := rig.session.SetCluster(ctx, "other")
	require.Error(t, err)

	// The last-good environment stays visible and consistent.
	assert.Equal(t, "quickstart", rig.session.Cluster())
	assert.Equal(t, StateError, rig.session.State())

	// The override was reverted: the next reload goes back to quickstart.
	require.NoError(t, rig.session.ReloadEnvironment(ctx))
	assert.Equal(t, "quickstart", rig.session.Cluster())
}

func TestSetSchema_ReloadsSchemaQueriesOnly(t *testing.T) {
	rig := newRig(t, devProfiles(), "dev")
	ctx := context.Background()

	require.NoError(t, rig.session.LoadContext(ctx))
	require.Equal(t, 6, rig.connector.created[0].queryCount())

	require.NoError(t, rig.session.SetSchema(ctx, "analytics"))

	env := rig.session.Environment()
	assert.Equal(t, "analytics", env.Schema)
	// Non-schema environment fields carry over.
	assert.Equal(t, "materialize", env.Database)
	assert.Len(t, env.Clusters, 2)

	// The schema-only reload issued exactly the two schema queries.
	second := rig.connector.created[1]
	assert.Equal(t, 2, second.queryCount())
}

func TestReady_ConcurrentWaitersShareOneCycle(t *testing.T) {
	rig := newRig(t, devProfiles(), "dev")
	rig.connector.blockFirst = make(chan struct{})
	rig.connector.started = make(chan struct{}, 1)
	ctx := context.Background()

	loadDone := make(chan error, 1)
	go func() { loadDone <- rig.session.LoadContext(ctx) }()

	<-rig.connector.started

	var wg sync.WaitGroup
	waiterErrs := make([]error, 5)
	for i := range waiterErrs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			waiterErrs[i] = rig.session.Ready(ctx)
		}(i)
	}

	close(rig.connector.blockFirst)
	require.NoError(t, <-loadDone)
	wg.Wait()

	for _, err := range waiterErrs {
		assert.NoError(t, err)
	}
	// Waiting triggered no duplicate reload: exactly one pool was created.
	assert.Equal(t, 1, rig.connector.connectCount())
}

func TestReload_StaleCycleIsDiscarded(t *testing.T) {
	rig := newRig(t, devProfiles(), "dev")
	ctx := context.Background()

	require.NoError(t, rig.session.LoadContext(ctx))

	// The next mutation blocks inside pool construction.
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	rig.connector.mu.Lock()
	rig.connector.connects = 0
	rig.connector.blockFirst = block
	rig.connector.started = started
	rig.connector.mu.Unlock()

	slowDone := make(chan error, 1)
	go func() { slowDone <- rig.session.SetCluster(ctx, "other") }()
	<-started

	// A later mutation supersedes it and completes first.
	require.NoError(t, rig.session.SetDatabase(ctx, "db2"))
	require.Equal(t, "db2", rig.session.Database())

	// Let the stale cycle finish: its results and pool must be discarded.
	close(block)
	require.NoError(t, <-slowDone)

	assert.Equal(t, "db2", rig.session.Database())

	created := rig.connector.created
	stale := created[len(created)-1]
	assert.Equal(t, 1, stale.closedCount(), "superseded cycle must close its own pool")
	assert.Equal(t, StateReady, rig.session.State())
}

func TestSetProfile_RebuildsContext(t *testing.T) {
	profiles := devProfiles()
	profiles["prod"] = config.Profile{
		AppPassword: apppassword.Generate().String(),
		Region:      "aws/eu-west-1",
		Cluster:     "prod_cluster",
	}
	rig := newRig(t, profiles, "dev")
	ctx := context.Background()

	require.NoError(t, rig.session.LoadContext(ctx))
	require.NoError(t, rig.session.SetProfile(ctx, "prod"))

	assert.Equal(t, "prod", rig.session.ProfileName())
	assert.Equal(t, "prod_cluster", rig.session.Cluster())

	err := rig.session.SetProfile(ctx, "missing")
	require.ErrorIs(t, err, config.ErrNoSuchProfile)
}

func TestSubscribe_ObservesTransitions(t *testing.T) {
	rig := newRig(t, devProfiles(), "dev")
	ctx := context.Background()

	events := rig.session.Subscribe()
	defer rig.session.Unsubscribe(events)

	require.NoError(t, rig.session.LoadContext(ctx))

	var states []State
	for len(events) > 0 {
		states = append(states, (<-events).State)
	}

	require.NotEmpty(t, states)
	assert.Equal(t, StateLoadingCredentials, states[0])
	assert.Equal(t, StateReady, states[len(states)-1])
	assert.Contains(t, states, StateLoadingEnvironment)
}

func TestQuery_BeforeLoadContext(t *testing.T) {
	rig := newRig(t, devProfiles(), "dev")

	_, err := rig.session.Query(context.Background(), "SELECT 1")
	require.ErrorIs(t, err, ErrUnconfiguredClients)
}

func TestQuery_WaitsForReadiness(t *testing.T) {
	rig := newRig(t, devProfiles(), "dev")
	rig.connector.blockFirst = make(chan struct{})
	rig.connector.started = make(chan struct{}, 1)
	ctx := context.Background()

	loadDone := make(chan error, 1)
	go func() { loadDone <- rig.session.LoadContext(ctx) }()
	<-rig.connector.started

	queryDone := make(chan error, 1)
	go func() {
		_, err := rig.session.Query(ctx, "SELECT 1")
		queryDone <- err
	}()

	select {
	case err := <-queryDone:
		t.Fatalf("query bypassed an unconnected pool: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(rig.connector.blockFirst)
	require.NoError(t, <-loadDone)
	require.NoError(t, <-queryDone)
}

func TestPrivateQuery_SkipsReadinessGate(t *testing.T) {
	rig := newRig(t, devProfiles(), "dev")
	rig.connector.blockFirst = make(chan struct{})
	rig.connector.started = make(chan struct{}, 1)
	ctx := context.Background()

	loadDone := make(chan error, 1)
	go func() { loadDone <- rig.session.LoadContext(ctx) }()
	<-rig.connector.started

	// The gated surface waits for the cycle; the ungated one returns at once.
	_, err := rig.session.PrivateQuery(ctx, "SELECT 1")
	require.ErrorIs(t, err, ErrUnconfiguredClients)

	close(rig.connector.blockFirst)
	require.NoError(t, <-loadDone)

	_, err = rig.session.PrivateQuery(ctx, "SELECT 1")
	require.NoError(t, err)
}
