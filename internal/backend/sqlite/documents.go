// Package sqlite is the local document store: every collection lives in one
// table of JSON documents.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/vindennt/webcarros/internal/backend"
	"github.com/vindennt/webcarros/internal/backend/sqlite/migrations"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Documents implements backend.Documents on SQLite.
type Documents struct {
	db    *sql.DB
	clock backend.Clock
	ids   backend.IDGenerator
}

// Open opens the database at path (or ":memory:"), optionally applying
// pending migrations, and refuses to run on an outdated schema.
func Open(path string, migrate bool, clock backend.Clock, ids backend.IDGenerator) (*Documents, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if migrate {
		if err := migrations.Up(db); err != nil {
			db.Close()
			return nil, err
		}
	}
	if err := migrations.Check(db); err != nil {
		db.Close()
		return nil, err
	}

	return NewFromDB(db, clock, ids), nil
}

// NewFromDB wraps a connection whose schema is already in place.
func NewFromDB(db *sql.DB, clock backend.Clock, ids backend.IDGenerator) *Documents {
	if clock == nil {
		clock = backend.RealClock{}
	}
	if ids == nil {
		ids = backend.UUIDGenerator{}
	}
	return &Documents{db: db, clock: clock, ids: ids}
}

// OpenConnection opens and configures a SQLite connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each :memory: connection is its own database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

func (d *Documents) Close() error {
	return d.db.Close()
}

func (d *Documents) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	resolved := backend.ResolveServerTimestamps(fields, d.clock.Now())
	data, err := json.Marshal(normalizeTimes(resolved))
	if err != nil {
		return "", fmt.Errorf("encoding document: %w", err)
	}

	id := d.ids.New()
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)`,
		collection, id, string(data))
	if err != nil {
		return "", fmt.Errorf("inserting into %s: %w", collection, err)
	}
	return id, nil
}

func (d *Documents) Get(ctx context.Context, collection, id string) (*backend.Document, error) {
	var data string
	err := d.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`,
		collection, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, backend.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s/%s: %w", collection, id, err)
	}

	doc, err := decode(id, data)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (d *Documents) Query(ctx context.Context, collection string, q backend.Query) ([]backend.Document, error) {
	stmt, args, err := buildQuery(collection, q)
	if err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []backend.Document
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", collection, err)
		}
		doc, err := decode(id, data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", collection, err)
	}
	return docs, nil
}

func (d *Documents) Delete(ctx context.Context, collection, id string) error {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("deleting %s/%s: %w", collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting %s/%s: %w", collection, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, backend.ErrNotFound)
	}
	return nil
}

func buildQuery(collection string, q backend.Query) (string, []any, error) {
	var b strings.Builder
	args := []any{collection}

	b.WriteString(`SELECT id, data FROM documents WHERE collection = ?`)
	for _, f := range q.Filters {
		if !fieldName.MatchString(f.Field) {
			return "", nil, fmt.Errorf("invalid field name %q", f.Field)
		}
		var op string
		switch f.Op {
		case backend.OpEqual:
			op = "="
		case backend.OpGreaterOrEqual:
			op = ">="
		case backend.OpLess:
			op = "<"
		default:
			return "", nil, fmt.Errorf("unsupported operator %q", f.Op)
		}
		fmt.Fprintf(&b, ` AND json_extract(data, ?) %s ?`, op)
		args = append(args, "$."+f.Field, f.Value)
	}

	if q.OrderBy != "" {
		if !fieldName.MatchString(q.OrderBy) {
			return "", nil, fmt.Errorf("invalid field name %q", q.OrderBy)
		}
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		fmt.Fprintf(&b, ` ORDER BY json_extract(data, ?) %s, rowid`, dir)
		args = append(args, "$."+q.OrderBy)
	} else {
		b.WriteString(` ORDER BY rowid`)
	}
	return b.String(), args, nil
}

func decode(id, data string) (backend.Document, error) {
	fields := make(map[string]any)
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return backend.Document{}, fmt.Errorf("decoding document %s: %w", id, err)
	}
	return backend.Document{ID: id, Fields: fields}, nil
}

func normalizeTimes(fields map[string]any) map[string]any {
	for k, v := range fields {
		if t, ok := v.(time.Time); ok {
			fields[k] = t.UTC().Format(timeLayout)
		}
	}
	return fields
}

// Compile-time check that Documents implements backend.Documents
var _ backend.Documents = (*Documents)(nil)
