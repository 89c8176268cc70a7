package search

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// Statement is one logical query ready for the executor: statement text
// with $n placeholders plus its bound arguments. User-supplied values are
// always bound, never interpolated into the text.
type Statement struct {
	SQL  string
	Args []interface{}
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Assemble combines predicates and pagination into the two statements a
// search runs: a scalar count over the full match set, and a page slice
// ordered by the schema's descending default sort. Splitting the two lets
// total be computed without loading every matching document, and the
// queries can run concurrently.
func Assemble(s *Schema, preds []Predicate, page Page) (count, pageStmt Statement, err error) {
	where := conjunction(preds)

	cb := psql.Select("COUNT(*) AS total").From(s.Table)
	if where != nil {
		cb = cb.Where(where)
	}
	if count.SQL, count.Args, err = cb.ToSql(); err != nil {
		return Statement{}, Statement{}, fmt.Errorf("assemble count statement: %w", err)
	}

	pb := psql.Select(DocColumn).From(s.Table).
		OrderBy(s.sortExpr()).
		Limit(uint64(page.Count)).
		Offset(uint64(page.Offset))
	if where != nil {
		pb = pb.Where(where)
	}
	if pageStmt.SQL, pageStmt.Args, err = pb.ToSql(); err != nil {
		return Statement{}, Statement{}, fmt.Errorf("assemble page statement: %w", err)
	}

	return count, pageStmt, nil
}

// conjunction folds the predicates into one AND-ed sqlizer, or nil when
// there are no predicates (unfiltered search).
func conjunction(preds []Predicate) sq.Sqlizer {
	if len(preds) == 0 {
		return nil
	}
	and := make(sq.And, 0, len(preds))
	for _, p := range preds {
		switch p.Op {
		case OpLike:
			and = append(and, sq.Like{p.Expr: p.Values[0]})
		case OpAnyEqual:
			or := make(sq.Or, 0, len(p.Values))
			for _, v := range p.Values {
				or = append(or, sq.Eq{p.Expr: v})
			}
			and = append(and, or)
		default:
			and = append(and, sq.Eq{p.Expr: p.Values[0]})
		}
	}
	return and
}

// assembleGet builds the single-resource lookup statement.
func assembleGet(s *Schema, id string) (Statement, error) {
	b := psql.Select(DocColumn).From(s.Table).
		Where(sq.Eq{pathExpr("id"): id}).
		Limit(1)
	sql, args, err := b.ToSql()
	if err != nil {
		return Statement{}, fmt.Errorf("assemble get statement: %w", err)
	}
	return Statement{SQL: sql, Args: args}, nil
}
