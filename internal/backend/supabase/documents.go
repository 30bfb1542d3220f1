package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/supabase-community/postgrest-go"

	"github.com/vindennt/webcarros/internal/backend"
)

// Documents implements backend.Documents with PostgREST: each collection is a
// table with an "id" primary key. Server timestamps are left to column
// defaults.
type Documents struct {
	baseURL   string
	anonKey   string
	secretKey string
}

func NewDocuments(supabaseURL, anonKey, secretKey string) *Documents {
	return &Documents{
		baseURL:   strings.TrimRight(supabaseURL, "/"),
		anonKey:   anonKey,
		secretKey: secretKey,
	}
}

// client returns a PostgREST client acting as the user carried by ctx (see
// backend.WithAccessToken), or as the system when there is none and a secret
// key is configured.
func (d *Documents) client(ctx context.Context) *postgrest.Client {
	restURL := d.baseURL + "/rest/v1"

	token := backend.AccessTokenFromContext(ctx)
	if token == "" && d.secretKey != "" {
		c := postgrest.NewClient(restURL, "", map[string]string{"apikey": d.secretKey})
		c.SetAuthToken(d.secretKey)
		return c
	}

	c := postgrest.NewClient(restURL, "", map[string]string{"apikey": d.anonKey})
	if token != "" {
		c.SetAuthToken(token)
	} else {
		c.SetAuthToken(d.anonKey)
	}
	return c
}

func (d *Documents) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	row := make(map[string]any, len(fields))
	for k, v := range fields {
		if backend.IsServerTimestamp(v) {
			continue
		}
		row[k] = v
	}

	resp, err := call(ctx, func() ([]byte, error) {
		b, _, err := d.client(ctx).From(collection).Insert(row, false, "", "representation", "").Execute()
		return b, err
	})
	if err != nil {
		return "", fmt.Errorf("inserting into %s: %w", collection, err)
	}

	docs, err := decodeRows(resp)
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("inserting into %s: no row returned", collection)
	}
	return docs[0].ID, nil
}

func (d *Documents) Get(ctx context.Context, collection, id string) (*backend.Document, error) {
	resp, err := call(ctx, func() ([]byte, error) {
		b, _, err := d.client(ctx).From(collection).Select("*", "", false).Eq("id", id).Execute()
		return b, err
	})
	if err != nil {
		return nil, fmt.Errorf("getting %s/%s: %w", collection, id, err)
	}

	docs, err := decodeRows(resp)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, backend.ErrNotFound)
	}
	return &docs[0], nil
}

func (d *Documents) Query(ctx context.Context, collection string, q backend.Query) ([]backend.Document, error) {
	resp, err := call(ctx, func() ([]byte, error) {
		f := d.client(ctx).From(collection).Select("*", "", false)
		for _, filter := range q.Filters {
			switch filter.Op {
			case backend.OpEqual:
				f = f.Eq(filter.Field, filter.Value)
			case backend.OpGreaterOrEqual:
				f = f.Gte(filter.Field, filter.Value)
			case backend.OpLess:
				f = f.Lt(filter.Field, filter.Value)
			default:
				return nil, fmt.Errorf("unsupported operator %q", filter.Op)
			}
		}
		if q.OrderBy != "" {
			f = f.Order(q.OrderBy, &postgrest.OrderOpts{Ascending: !q.Descending})
		}
		b, _, err := f.Execute()
		return b, err
	})
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", collection, err)
	}
	return decodeRows(resp)
}

func (d *Documents) Delete(ctx context.Context, collection, id string) error {
	resp, err := call(ctx, func() ([]byte, error) {
		b, _, err := d.client(ctx).From(collection).Delete("representation", "").Eq("id", id).Execute()
		return b, err
	})
	if err != nil {
		return fmt.Errorf("deleting %s/%s: %w", collection, id, err)
	}

	// PostgREST answers "[]" when the filter matched nothing
	docs, err := decodeRows(resp)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, backend.ErrNotFound)
	}
	return nil
}

func decodeRows(resp []byte) ([]backend.Document, error) {
	var rows []map[string]any
	if err := json.Unmarshal(resp, &rows); err != nil {
		return nil, fmt.Errorf("decoding rows: %w", err)
	}

	docs := make([]backend.Document, 0, len(rows))
	for _, row := range rows {
		id := fmt.Sprint(row["id"])
		delete(row, "id")
		docs = append(docs, backend.Document{ID: id, Fields: row})
	}
	return docs, nil
}

// Compile-time check that Documents implements backend.Documents
var _ backend.Documents = (*Documents)(nil)
