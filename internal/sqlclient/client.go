// Package sqlclient owns the pg-wire connection pool to the resolved
// region endpoint and exposes the two query modes of the application:
// full-result queries and streaming server-side cursors.
package sqlclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrijs2005/mzexplorer/internal/logging"
)

const (
	// Port is the fixed SQL-wire port of the region endpoint.
	Port = 6875

	// DefaultDatabase is used when the profile carries no database override.
	DefaultDatabase = "materialize"

	applicationName = "mzexplorer"
)

// ErrPoolConnect marks a failed pool construction or initial ping.
var ErrPoolConnect = errors.New("could not connect to the region endpoint")

// QueryError carries enough structure to render a caret-pointer diagnostic:
// the server message, the 1-based character position (0 when unknown), and
// the original statement.
type QueryError struct {
	Message  string
	Position int
	Query    string
	cause    error
}

func (e *QueryError) Error() string {
	if e.Position > 0 {
		return fmt.Sprintf("query failed at position %d: %s", e.Position, e.Message)
	}
	return "query failed: " + e.Message
}

func (e *QueryError) Unwrap() error { return e.cause }

// Params are the inputs for building connection configuration. Host is the
// resolved region address, possibly still carrying the well-known port
// suffix; User is the authenticated email from the verified claims, never
// user-supplied; Password is the raw app-password string.
type Params struct {
	Host           string
	User           string
	Password       string
	Database       string
	Cluster        string
	Schema         string
	ConnectTimeout time.Duration
}

// Column describes one field of a result set.
type Column struct {
	Name    string
	TypeOID uint32
}

// Result is a fully materialized result set.
type Result struct {
	Columns []Column
	Rows    [][]any
}

// Client is the connection manager: exactly one live pool per active
// profile. The session layer replaces the whole Client on profile switch,
// closing the predecessor first.
type Client struct {
	pool *pgxpool.Pool
	log  logging.Logger
}

// Connect builds the pool from params and verifies it with a ping.
// The returned Client is ready for queries; no query bypasses an
// unconnected pool because no Client exists until the ping succeeds.
func Connect(ctx context.Context, params Params, log logging.Logger) (*Client, error) {
	cfg, err := poolConfig(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPoolConnect, err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPoolConnect, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrPoolConnect, err)
	}

	log.Debug(ctx, "pool connected", "host", cfg.ConnConfig.Host, "database", cfg.ConnConfig.Database)

	return &Client{pool: pool, log: log}, nil
}

func poolConfig(params Params) (*pgxpool.Config, error) {
	if params.Host == "" {
		return nil, errors.New("no host resolved for region")
	}

	cfg, err := pgxpool.ParseConfig("")
	if err != nil {
		return nil, err
	}

	host := strings.TrimSuffix(params.Host, fmt.Sprintf(":%d", Port))

	cfg.ConnConfig.Host = host
	cfg.ConnConfig.Port = Port
	cfg.ConnConfig.User = params.User
	cfg.ConnConfig.Password = params.Password
	cfg.ConnConfig.Database = database(params)
	cfg.ConnConfig.ConnectTimeout = params.ConnectTimeout
	if cfg.ConnConfig.ConnectTimeout == 0 {
		cfg.ConnConfig.ConnectTimeout = 30 * time.Second
	}
	cfg.ConnConfig.TLSConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	cfg.ConnConfig.RuntimeParams["application_name"] = applicationName

	if opts := sessionOptions(params); opts != "" {
		cfg.ConnConfig.RuntimeParams["options"] = opts
	}

	return cfg, nil
}

func database(params Params) string {
	if params.Database != "" {
		return params.Database
	}
	return DefaultDatabase
}

// sessionOptions composes the startup "options" parameter carrying the
// cluster selection and schema search path.
func sessionOptions(params Params) string {
	var opts []string
	if params.Cluster != "" {
		opts = append(opts, "--cluster="+params.Cluster)
	}
	if params.Schema != "" {
		opts = append(opts, "-c search_path="+params.Schema)
	}
	return strings.Join(opts, " ")
}

// Query runs statement in a single round trip and materializes the full
// result set. Driver-level errors come back as *QueryError.
func (c *Client) Query(ctx context.Context, statement string, args ...any) (*Result, error) {
	rows, err := c.pool.Query(ctx, statement, args...)
	if err != nil {
		return nil, wrapQueryError(err, statement)
	}
	defer rows.Close()

	result := &Result{}
	for _, fd := range rows.FieldDescriptions() {
		result.Columns = append(result.Columns, Column{Name: fd.Name, TypeOID: fd.DataTypeOID})
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, wrapQueryError(err, statement)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapQueryError(err, statement)
	}

	return result, nil
}

// Close shuts the pool down. The session layer guarantees this completes
// before a successor pool is built.
func (c *Client) Close() {
	c.pool.Close()
}

func wrapQueryError(err error, statement string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &QueryError{
			Message:  pgErr.Message,
			Position: int(pgErr.Position),
			Query:    statement,
			cause:    err,
		}
	}
	return &QueryError{Message: err.Error(), Query: statement, cause: err}
}
