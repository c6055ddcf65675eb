package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/mzexplorer/internal/client/history"
	"github.com/dmitrijs2005/mzexplorer/internal/sqlclient"
)

// Sql runs a statement through the session and prints the result. The
// execution is recorded in the history regardless of outcome. Engine
// errors with a position are rendered with a caret diagnostic.
func (a *App) Sql(ctx context.Context, statement string) error {
	started := time.Now()
	result, err := a.session.Query(ctx, statement)
	a.record(ctx, statement, started, result, err)

	if err != nil {
		var queryErr *sqlclient.QueryError
		if errors.As(err, &queryErr) {
			printQueryError(a.out, queryErr)
			return nil
		}
		return err
	}

	renderResult(a.out, result)
	return nil
}

// Stream runs a statement through a cursor and prints batches as they
// arrive. Suited for large results and SUBSCRIBE-style statements.
func (a *App) Stream(ctx context.Context, statement string) error {
	started := time.Now()

	cursor, err := a.session.CursorQuery(ctx, statement)
	if err != nil {
		a.record(ctx, statement, started, nil, err)
		var queryErr *sqlclient.QueryError
		if errors.As(err, &queryErr) {
			printQueryError(a.out, queryErr)
			return nil
		}
		return err
	}
	defer cursor.Close(ctx)

	var total int64
	header := false
	for {
		batch, err := cursor.Next(ctx)
		if err != nil {
			a.recordRows(ctx, statement, started, total, err)
			return err
		}
		if batch == nil {
			break
		}
		if !header && len(batch.Columns) > 0 {
			printHeader(a.out, batch.Columns)
			header = true
		}
		printRows(a.out, batch.Rows)
		total += int64(len(batch.Rows))
	}

	fmt.Fprintf(a.out, "(%d rows)\n", total)
	a.recordRows(ctx, statement, started, total, nil)
	return nil
}

// History prints the most recent statements, newest first.
func (a *App) History(ctx context.Context) error {
	entries, err := a.history.Recent(ctx, 20)
	if err != nil {
		return err
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %6s  %s",
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			e.Duration.Round(time.Millisecond), e.Statement)
		if e.Error != "" {
			line += "  [" + e.Error + "]"
		}
		printlnFn(line)
	}
	return nil
}

// Reload re-runs environment discovery for the active profile.
func (a *App) Reload(ctx context.Context) error {
	return a.session.ReloadEnvironment(ctx)
}

func (a *App) record(ctx context.Context, statement string, started time.Time, result *sqlclient.Result, err error) {
	var rows int64
	if result != nil {
		rows = int64(len(result.Rows))
	}
	a.recordRows(ctx, statement, started, rows, err)
}

func (a *App) recordRows(ctx context.Context, statement string, started time.Time, rows int64, err error) {
	entry := history.Entry{
		Statement: statement,
		StartedAt: started,
		Duration:  time.Since(started),
		Rows:      rows,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if herr := a.history.Append(ctx, entry); herr != nil {
		a.log.Warn(ctx, "failed to record history entry", "error", herr.Error())
	}
}

func renderResult(w io.Writer, r *sqlclient.Result) {
	printHeader(w, r.Columns)
	printRows(w, r.Rows)
	fmt.Fprintf(w, "(%d rows)\n", len(r.Rows))
}

func printHeader(w io.Writer, columns []sqlclient.Column) {
	if len(columns) == 0 {
		return
	}
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	fmt.Fprintln(w, strings.Join(names, "\t"))
}

func printRows(w io.Writer, rows [][]any) {
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
				continue
			}
			cells[i] = fmt.Sprint(v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
}

// printQueryError renders an engine error. When the engine reported a
// position, the offending line is shown with a caret under the offset.
func printQueryError(w io.Writer, e *sqlclient.QueryError) {
	fmt.Fprintln(w, "ERROR: "+e.Message)
	if e.Position > 0 && e.Query != "" {
		line, col := locate(e.Query, e.Position)
		fmt.Fprintln(w, line)
		fmt.Fprintln(w, strings.Repeat(" ", col)+"^")
	}
}

// locate maps a 1-based rune position in the statement to the line that
// contains it and the 0-based column within that line.
func locate(query string, position int) (string, int) {
	runes := []rune(query)
	idx := position - 1
	if idx >= len(runes) {
		idx = len(runes) - 1
	}
	if idx < 0 {
		idx = 0
	}

	start := idx
	for start > 0 && runes[start-1] != '\n' {
		start--
	}
	end := idx
	for end < len(runes) && runes[end] != '\n' {
		end++
	}
	return string(runes[start:end]), idx - start
}
