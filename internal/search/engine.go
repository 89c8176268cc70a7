package search

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/healthtech/platform/internal/platform/fhir"
)

// Row is one result row as a column-name to value mapping.
type Row map[string]interface{}

// Executor runs a statement against the backing store. Implementations
// must acquire and release any connection within the call, on every exit
// path; the engine holds no connections across requests.
type Executor interface {
	Query(ctx context.Context, sql string, args ...interface{}) ([]Row, error)
}

// Engine is the generic search engine, parameterized per request by a
// resource schema. It is stateless and safe for concurrent use.
type Engine struct {
	exec Executor
	log  zerolog.Logger
}

func NewEngine(exec Executor, log zerolog.Logger) *Engine {
	return &Engine{exec: exec, log: log}
}

// Search translates the filter set into count and page queries, runs both
// concurrently, and wraps the page into a searchset Bundle. Failure of
// either query fails the whole request; cancellation of ctx abandons both.
func (e *Engine) Search(ctx context.Context, s *Schema, filters map[string]string, rawCount, rawOffset string) (*fhir.Bundle, error) {
	page, err := NormalizePage(rawCount, rawOffset)
	if err != nil {
		return nil, err
	}

	preds := BuildPredicates(s, filters)
	countStmt, pageStmt, err := Assemble(s, preds, page)
	if err != nil {
		return nil, err
	}

	var (
		total     int
		resources []fhir.Resource
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := e.exec.Query(gctx, countStmt.SQL, countStmt.Args...)
		if err != nil {
			return fmt.Errorf("count query: %w", err)
		}
		total = scanTotal(rows)
		return nil
	})
	g.Go(func() error {
		rows, err := e.exec.Query(gctx, pageStmt.SQL, pageStmt.Args...)
		if err != nil {
			return fmt.Errorf("page query: %w", err)
		}
		resources, err = MapDocuments(rows)
		return err
	})

	if err := g.Wait(); err != nil {
		e.log.Error().Err(err).
			Str("resource_type", s.ResourceType).
			Interface("filters", filters).
			Msg("search failed")
		return nil, err
	}

	return fhir.NewSearchBundle(total, resources), nil
}

// Get looks up a single resource by document id.
func (e *Engine) Get(ctx context.Context, s *Schema, id string) (fhir.Resource, error) {
	stmt, err := assembleGet(s, id)
	if err != nil {
		return nil, err
	}

	rows, err := e.exec.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		e.log.Error().Err(err).
			Str("resource_type", s.ResourceType).
			Str("id", id).
			Msg("lookup failed")
		return nil, fmt.Errorf("lookup query: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return DecodeDocument(rows[0][DocColumn])
}

// scanTotal pulls the scalar match count out of the count query result.
// Drivers differ on the integer width they hand back.
func scanTotal(rows []Row) int {
	if len(rows) == 0 {
		return 0
	}
	switch n := rows[0]["total"].(type) {
	case int64:
		return int(n)
	case int32:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}
