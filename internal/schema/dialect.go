// Package schema turns an inferred column layout into a concrete table in
// the target store: it synthesizes CREATE TABLE statements per dialect and
// verifies pre-existing tables against the inferred layout.
package schema

import (
	"fmt"
	"strings"

	"github.com/mkrogh/sheetpipe/internal/infer"
)

// Dialect describes how a target store spells identifiers, placeholders,
// and native column types. The type mapping per dialect is a fixed table;
// schema evolution is out of scope.
type Dialect interface {
	Name() string
	TypeName(t infer.Type) string
	Quote(ident string) string
	Placeholder(n int) string
}

// Postgres is the dialect for a networked PostgreSQL target.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

var pgTypes = map[infer.Type]string{
	infer.TypeBool:     "boolean",
	infer.TypeInteger:  "bigint",
	infer.TypeFloat:    "double precision",
	infer.TypeDecimal:  "numeric(18,4)",
	infer.TypeDate:     "date",
	infer.TypeDateTime: "timestamp",
	infer.TypeText:     "text",
}

func (Postgres) TypeName(t infer.Type) string { return pgTypes[t] }

func (Postgres) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (Postgres) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

// SQLite is the dialect for a local file-based target.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

var sqliteTypes = map[infer.Type]string{
	infer.TypeBool:     "integer",
	infer.TypeInteger:  "integer",
	infer.TypeFloat:    "real",
	infer.TypeDecimal:  "numeric",
	infer.TypeDate:     "date",
	infer.TypeDateTime: "datetime",
	infer.TypeText:     "text",
}

func (SQLite) TypeName(t infer.Type) string { return sqliteTypes[t] }

func (SQLite) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (SQLite) Placeholder(int) string { return "?" }
