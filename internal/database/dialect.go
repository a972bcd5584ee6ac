package database

// Dialect hides the SQL differences between SQLite and PostgreSQL.
type Dialect interface {
	// DriverName is the database/sql driver to open.
	DriverName() string

	// Placeholder returns the bind parameter for a 1-based position.
	Placeholder(position int) string

	// SupportsLastInsertID reports whether Result.LastInsertId works.
	// Otherwise inserts use ReturningClause.
	SupportsLastInsertID() bool

	ReturningClause(column string) string

	// InitStatements run once after connecting.
	InitStatements() []string

	// IsDuplicateKeyError reports a unique constraint violation.
	IsDuplicateKeyError(err error) bool

	// AutoIncrementPrimaryKey is the column definition of a generated id.
	AutoIncrementPrimaryKey() string
}

// DialectType identifies the database dialect.
type DialectType string

const (
	DialectSQLite   DialectType = "sqlite"
	DialectPostgres DialectType = "postgres"
)

// NewDialect returns the dialect for the given type, SQLite for anything unknown.
func NewDialect(dialectType DialectType) Dialect {
	switch dialectType {
	case DialectPostgres:
		return &PostgresDialect{}
	default:
		return &SQLiteDialect{}
	}
}
