// Package session is the orchestrator of the application: it owns the
// active profile, the current environment (cluster/database/schema plus
// their available sets), and the SQL connection pool, and it sequences
// credential exchange, region resolution and pool construction behind a
// generation-tagged reload protocol.
//
// Readers never observe a torn environment: discovery results are adopted
// atomically, and a reload that has been superseded by a newer one discards
// its results instead of overwriting fresher state.
package session

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode"

	"github.com/dmitrijs2005/mzexplorer/internal/admin"
	"github.com/dmitrijs2005/mzexplorer/internal/apppassword"
	"github.com/dmitrijs2005/mzexplorer/internal/catalog"
	"github.com/dmitrijs2005/mzexplorer/internal/client/config"
	"github.com/dmitrijs2005/mzexplorer/internal/cloud"
	"github.com/dmitrijs2005/mzexplorer/internal/logging"
	"github.com/dmitrijs2005/mzexplorer/internal/sqlclient"
)

var (
	// ErrProfileDoesNotExist means profiles exist but none is selected,
	// or the selected name points nowhere.
	ErrProfileDoesNotExist = errors.New("profile does not exist")

	// ErrUnconfiguredClients means the identity/region clients have not
	// been built yet (no successful LoadContext).
	ErrUnconfiguredClients = errors.New("clients are not configured")

	// ErrUnconfiguredProfile means no profile is active.
	ErrUnconfiguredProfile = errors.New("no profile is configured")
)

// State is the lifecycle position of the session.
type State int

const (
	StateUninitialized State = iota
	StateLoadingCredentials
	StateLoadingEnvironment
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoadingCredentials:
		return "loading credentials"
	case StateLoadingEnvironment:
		return "loading environment"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Environment is the current {cluster, database, schema} triple plus the
// enumerable sets available in the account. Schemas is always filtered to
// the current database. Mutated only through a completed reload.
type Environment struct {
	Cluster  string
	Database string
	Schema   string

	Clusters  []catalog.Object
	Databases []catalog.Object
	Schemas   []catalog.Object
}

// Event notifies subscribers of a state transition.
type Event struct {
	State State
	Err   error
}

// LoadError normalizes any failure of the load/reload chain into a single
// error with a human-readable, capitalized message. The cause remains
// reachable through errors.Is/As.
type LoadError struct {
	cause error
}

func (e *LoadError) Error() string {
	msg := e.cause.Error()
	if msg == "" {
		return "Load failed"
	}
	runes := []rune(msg)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func (e *LoadError) Unwrap() error { return e.cause }

// ProfileStore is the persistence collaborator for profiles.
// *config.Store satisfies it.
type ProfileStore interface {
	Profile() (config.Profile, bool)
	ProfileName() string
	ProfileNames() []string
	SetProfile(name string) error
}

// TokenClient supplies bearer tokens and verified identity claims.
// *admin.Client satisfies it.
type TokenClient interface {
	GetToken(ctx context.Context) (admin.Token, error)
	GetEmail(ctx context.Context) (string, error)
}

// HostResolver resolves a region id to the SQL endpoint address.
// *cloud.Resolver satisfies it.
type HostResolver interface {
	GetHost(ctx context.Context, regionID string) (string, error)
}

// SQLClient is the connection-manager surface the session depends on.
// *sqlclient.Client satisfies it.
type SQLClient interface {
	Query(ctx context.Context, statement string, args ...any) (*sqlclient.Result, error)
	CursorQuery(ctx context.Context, statement string) (*sqlclient.Cursor, error)
	Close()
}

// clients bundles the constructors for the per-profile collaborators so the
// reload protocol can rebuild them, and tests can substitute fakes.
type clients struct {
	newTokenClient func(endpoint string, cred apppassword.Credential, log logging.Logger) TokenClient
	newResolver    func(endpoint string, tokens TokenClient, log logging.Logger) HostResolver
	connect        func(ctx context.Context, params sqlclient.Params, log logging.Logger) (SQLClient, error)
}

func defaultClients() clients {
	return clients{
		newTokenClient: func(endpoint string, cred apppassword.Credential, log logging.Logger) TokenClient {
			return admin.NewClient(endpoint, cred, log)
		},
		newResolver: func(endpoint string, tokens TokenClient, log logging.Logger) HostResolver {
			return cloud.NewResolver(endpoint, tokens, log)
		},
		connect: func(ctx context.Context, params sqlclient.Params, log logging.Logger) (SQLClient, error) {
			return sqlclient.Connect(ctx, params, log)
		},
	}
}

// Options tune endpoint fallbacks and connection behavior.
type Options struct {
	AdminEndpoint  string
	CloudEndpoint  string
	ConnectTimeout time.Duration
}

// cycle is one reload's settlement point. Waiters registered against a
// cycle are woken when that cycle settles, with that cycle's outcome.
type cycle struct {
	ch  chan struct{}
	err error
}

// Session is the context orchestrator. All fields behind mu; the reload
// protocol snapshots what it needs under the lock and re-validates its
// generation before writing anything back.
type Session struct {
	store   ProfileStore
	log     logging.Logger
	opts    Options
	clients clients

	mu          sync.Mutex
	state       State
	lastErr     error
	env         Environment
	profile     *config.Profile
	tokens      TokenClient
	resolver    HostResolver
	sql         SQLClient
	generation  uint64
	current     *cycle
	subscribers []chan Event
}

// New builds a Session over the given profile store. Nothing is loaded
// until LoadContext runs.
func New(store ProfileStore, log logging.Logger, opts Options) *Session {
	return &Session{
		store:   store,
		log:     log,
		opts:    opts,
		clients: defaultClients(),
		state:   StateUninitialized,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the error of the most recent failed transition, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Environment returns the last fully adopted environment snapshot.
func (s *Session) Environment() Environment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.env
}

// Cluster returns the confirmed current cluster.
func (s *Session) Cluster() string { return s.Environment().Cluster }

// Database returns the confirmed current database.
func (s *Session) Database() string { return s.Environment().Database }

// Schema returns the confirmed current schema.
func (s *Session) Schema() string { return s.Environment().Schema }

// ProfileName returns the name of the selected profile.
func (s *Session) ProfileName() string { return s.store.ProfileName() }

// ProfileNames returns all stored profile names.
func (s *Session) ProfileNames() []string { return s.store.ProfileNames() }

// Ready blocks until the reload cycle current at call time settles, and
// returns its outcome. Concurrent callers observe the same cycle; waiting
// triggers no work of its own.
func (s *Session) Ready(ctx context.Context) error {
	s.mu.Lock()
	if s.current == nil {
		uninitialized := s.state == StateUninitialized
		s.mu.Unlock()
		if uninitialized {
			return ErrUnconfiguredClients
		}
		return nil
	}
	cur := s.current
	s.mu.Unlock()

	select {
	case <-cur.ch:
		return cur.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a state-transition listener. Events are delivered
// best-effort: a subscriber that stops draining loses events, it never
// blocks the session.
func (s *Session) Subscribe() <-chan Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Event, 16)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// Unsubscribe removes a listener registered with Subscribe.
func (s *Session) Unsubscribe(ch <-chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			close(sub)
			return
		}
	}
}

// Query runs user SQL through the active pool, after the current reload
// cycle settles: no query bypasses an unconnected pool.
func (s *Session) Query(ctx context.Context, statement string, args ...any) (*sqlclient.Result, error) {
	if err := s.Ready(ctx); err != nil {
		return nil, err
	}
	return s.PrivateQuery(ctx, statement, args...)
}

// PrivateQuery runs SQL through the active pool without waiting for an
// in-flight reload. Intended for renderer-side introspection that must not
// queue behind its own refresh.
func (s *Session) PrivateQuery(ctx context.Context, statement string, args ...any) (*sqlclient.Result, error) {
	sql, err := s.activeSQL()
	if err != nil {
		return nil, err
	}
	return sql.Query(ctx, statement, args...)
}

// CursorQuery opens a streaming cursor over statement on a dedicated
// pooled connection.
func (s *Session) CursorQuery(ctx context.Context, statement string) (*sqlclient.Cursor, error) {
	if err := s.Ready(ctx); err != nil {
		return nil, err
	}
	sql, err := s.activeSQL()
	if err != nil {
		return nil, err
	}
	return sql.CursorQuery(ctx, statement)
}

func (s *Session) activeSQL() (SQLClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.profile == nil {
		return nil, ErrUnconfiguredProfile
	}
	if s.sql == nil {
		return nil, ErrUnconfiguredClients
	}
	return s.sql, nil
}

// Close releases the pool. The session is unusable afterwards until a new
// LoadContext.
func (s *Session) Close() {
	s.mu.Lock()
	sql := s.sql
	s.sql = nil
	s.state = StateUninitialized
	s.mu.Unlock()

	if sql != nil {
		sql.Close()
	}
}

// setStateLocked records a transition and notifies subscribers. Callers
// hold mu.
func (s *Session) setStateLocked(state State, err error) {
	s.state = state
	s.lastErr = err

	ev := Event{State: state, Err: err}
	for _, sub := range s.subscribers {
		select {
		case sub <- ev:
		default:
		}
	}
}
