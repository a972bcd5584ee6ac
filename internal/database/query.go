package database

import (
	"strings"
)

// QueryBuilder rewrites ? placeholders for the active dialect.
type QueryBuilder struct {
	dialect Dialect
}

// NewQueryBuilder creates a QueryBuilder for the given dialect.
func NewQueryBuilder(dialect Dialect) *QueryBuilder {
	return &QueryBuilder{dialect: dialect}
}

// Build converts ? placeholders to the dialect's form.
//
//	input:    "SELECT id FROM simulation_runs WHERE run_key = ? AND scope = ?"
//	SQLite:   unchanged
//	Postgres: "SELECT id FROM simulation_runs WHERE run_key = $1 AND scope = $2"
func (qb *QueryBuilder) Build(query string) string {
	if qb.dialect.SupportsLastInsertID() {
		return query
	}

	var result strings.Builder
	position := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result.WriteString(qb.dialect.Placeholder(position))
			position++
		} else {
			result.WriteByte(query[i])
		}
	}
	return result.String()
}

// BuildWithReturning is Build plus a RETURNING clause when the dialect has no
// LastInsertId.
func (qb *QueryBuilder) BuildWithReturning(query string, column string) string {
	converted := qb.Build(query)
	if !qb.dialect.SupportsLastInsertID() {
		converted += qb.dialect.ReturningClause(column)
	}
	return converted
}
