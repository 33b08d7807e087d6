package etl

import (
	"context"
	"database/sql"
	"fmt"
	"iter"

	"github.com/BartekS5/streamkit/internal/incremental"
	"github.com/BartekS5/streamkit/internal/stream"
	"github.com/BartekS5/streamkit/pkg/logger"
)

// SQLExtractor reads a SQL Server table with a single ordered query whose
// rows are streamed from one result set. With a watermark column it reads
// only rows above the persisted watermark, ordered by that column; without
// one it reads the whole table ordered by OrderBy.
type SQLExtractor struct {
	DB      *sql.DB
	Table   string
	OrderBy string
	Tracker *incremental.RowTracker
	Format  stream.Format
	Name    string
}

func (s *SQLExtractor) Extract(ctx context.Context) (*stream.Stream, error) {
	start, err := s.Tracker.Start(ctx)
	if err != nil {
		return nil, err
	}
	query, args := s.query(start)
	src := s.Tracker.Wrap(ctx, s.rows(ctx, query, args))
	return stream.New(s.Name, s.Format, src), nil
}

// query builds the SELECT for a run starting above start. It is a single
// query so rows sharing a watermark value all come from one result set.
func (s *SQLExtractor) query(start any) (string, []any) {
	order := s.OrderBy
	if col := s.Tracker.Column(); col != "" {
		order = col
	}

	query := "SELECT * FROM " + s.Table
	var args []any
	if start != nil && s.Tracker.Column() != "" {
		query += fmt.Sprintf(" WHERE %s > @p1", order)
		args = append(args, start)
	}
	if order != "" {
		query += " ORDER BY " + order
	}
	return query, args
}

// rows runs the query when iteration starts and closes the result set when
// iteration ends or is stopped.
func (s *SQLExtractor) rows(ctx context.Context, query string, args []any) iter.Seq2[stream.Record, error] {
	return func(yield func(stream.Record, error) bool) {
		rows, err := s.DB.QueryContext(ctx, query, args...)
		if err != nil {
			yield(nil, fmt.Errorf("reading %s: %w", s.Table, err))
			return
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			yield(nil, err)
			return
		}

		n := 0
		for rows.Next() {
			rec, err := scanRecord(rows, cols)
			if err != nil {
				yield(nil, err)
				return
			}
			n++
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("reading %s after %d rows: %w", s.Table, n, err))
			return
		}
		logger.Debugf("Read %d rows from %s", n, s.Table)
	}
}

func scanRecord(rows *sql.Rows, cols []string) (stream.Record, error) {
	columns := make([]any, len(cols))
	columnPointers := make([]any, len(cols))
	for i := range columns {
		columnPointers[i] = &columns[i]
	}
	if err := rows.Scan(columnPointers...); err != nil {
		return nil, err
	}

	m := make(stream.Record, len(cols))
	for i, colName := range cols {
		if b, ok := columns[i].([]byte); ok {
			m[colName] = string(b)
		} else {
			m[colName] = columns[i]
		}
	}
	return m, nil
}
