// Package schemafetch retrieves the schema document that drives pkg/schema
// parsing over HTTP.
package schemafetch

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/sync/singleflight"

	"github.com/moduledb/moduledb-go/pkg/schema"
)

// SchemaSource fetches the raw schema document for a database: a narrow
// interface with a real HTTP implementation and a static one for tests.
type SchemaSource interface {
	FetchSchema(ctx context.Context) ([]byte, error)
}

// SchemaFetchError is returned when the schema endpoint responds with a
// non-200 status.
type SchemaFetchError struct {
	Status int
	Body   string
}

func (e *SchemaFetchError) Error() string {
	return fmt.Sprintf("schema_fetch_failed(%d, %q)", e.Status, e.Body)
}

// HTTPSchemaSource fetches the schema document over HTTP from
// GET http://{host}/v1/database/{database}/schema?version=9.
type HTTPSchemaSource struct {
	Host     string
	Database string
	Client   *http.Client

	group singleflight.Group
}

// FetchSchema performs the HTTP GET, deduplicating concurrent callers via
// singleflight so a stampede of fetches during startup issues one request.
func (s *HTTPSchemaSource) FetchSchema(ctx context.Context) ([]byte, error) {
	v, err, _ := s.group.Do(s.Database, func() (interface{}, error) {
		return s.doFetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (s *HTTPSchemaSource) doFetch(ctx context.Context) ([]byte, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	url := fmt.Sprintf("http://%s/v1/database/%s/schema?version=9", s.Host, s.Database)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("schemafetch: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("schemafetch: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("schemafetch: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &SchemaFetchError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// StaticSchemaSource returns a fixed document, for tests and offline use.
type StaticSchemaSource struct {
	Document []byte
	Err      error
}

func (s StaticSchemaSource) FetchSchema(context.Context) ([]byte, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Document, nil
}

// Fetch retrieves and parses a schema in one step.
func Fetch(ctx context.Context, src SchemaSource) (*schema.Schema, error) {
	doc, err := src.FetchSchema(ctx)
	if err != nil {
		return nil, err
	}
	return schema.Parse(doc)
}
