package sqlclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/mzexplorer/internal/logging"
)

// BatchSize is the number of rows retrieved per FETCH.
const BatchSize = 100

// Batch is one slice of a cursor's result stream.
type Batch struct {
	Columns []Column
	Rows    [][]any
}

type (
	fetchFunc  func(ctx context.Context) (*Batch, error)
	finishFunc func(ctx context.Context) error
)

// Cursor is a lazy, finite, non-restartable stream of result batches backed
// by a server-side cursor on a dedicated connection. The connection is held
// for the cursor's whole lifetime and released exactly once, on every exit
// path. Restarting means declaring a new cursor.
type Cursor struct {
	fetch  fetchFunc
	finish finishFunc
	log    logging.Logger

	closeOnce sync.Once
	done      bool
}

func newCursor(fetch fetchFunc, finish finishFunc, log logging.Logger) *Cursor {
	return &Cursor{fetch: fetch, finish: finish, log: log}
}

// CursorQuery opens a dedicated connection, begins a transaction, and
// declares a server-side cursor over statement. Batches are pulled with
// Next; Close releases the connection.
func (c *Client) CursorQuery(ctx context.Context, statement string) (*Cursor, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, wrapQueryError(err, statement)
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		conn.Release()
		return nil, wrapQueryError(err, statement)
	}

	finish := func(ctx context.Context) error {
		defer conn.Release()
		return tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, "DECLARE c CURSOR FOR "+statement); err != nil {
		if commitErr := finish(ctx); commitErr != nil {
			c.log.Warn(ctx, "commit after failed declare", "error", commitErr)
		}
		return nil, wrapQueryError(err, statement)
	}

	fetch := func(ctx context.Context) (*Batch, error) {
		rows, err := tx.Query(ctx, fmt.Sprintf("FETCH %d c", BatchSize))
		if err != nil {
			return nil, wrapQueryError(err, statement)
		}
		defer rows.Close()

		batch := &Batch{}
		for _, fd := range rows.FieldDescriptions() {
			batch.Columns = append(batch.Columns, Column{Name: fd.Name, TypeOID: fd.DataTypeOID})
		}
		for rows.Next() {
			values, err := rows.Values()
			if err != nil {
				return nil, wrapQueryError(err, statement)
			}
			batch.Rows = append(batch.Rows, values)
		}
		if err := rows.Err(); err != nil {
			return nil, wrapQueryError(err, statement)
		}
		return batch, nil
	}

	return newCursor(fetch, finish, c.log), nil
}

// Next returns the next batch, or (nil, nil) once the cursor is exhausted.
// The stream ends on the first fetch that yields zero rows; the cursor then
// closes itself. A fetch error also closes the cursor before propagating.
func (cur *Cursor) Next(ctx context.Context) (*Batch, error) {
	if cur.done {
		return nil, nil
	}

	batch, err := cur.fetch(ctx)
	if err != nil {
		cur.Close(ctx)
		return nil, err
	}

	if len(batch.Rows) == 0 {
		cur.Close(ctx)
		return nil, nil
	}

	return batch, nil
}

// Close commits the transaction and releases the underlying connection.
// Idempotent. A failed commit is logged, never escalated: the connection
// is released regardless.
func (cur *Cursor) Close(ctx context.Context) {
	cur.closeOnce.Do(func() {
		cur.done = true
		if err := cur.finish(ctx); err != nil {
			cur.log.Warn(ctx, "cursor commit failed", "error", err)
		}
	})
}
