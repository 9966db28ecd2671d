package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/mkrogh/sheetpipe/internal/infer"
)

// Column is a column as reported by the target store's catalog.
type Column struct {
	Name string
	Type string
}

// Executor is the slice of a store connection that schema work needs.
// Satisfied by store.Conn.
type Executor interface {
	Exec(ctx context.Context, sql string, args ...any) error
	TableColumns(ctx context.Context, table string) ([]Column, error)
}

// Mismatch is one column that differs between the inferred schema and an
// existing table.
type Mismatch struct {
	Column string
	Want   string // expected native type (or "missing")
	Got    string // actual native type (or "missing")
}

// ConflictError reports every column mismatch between the inferred schema
// and a pre-existing target table. The table is never silently migrated.
type ConflictError struct {
	Table      string
	Mismatches []Mismatch
}

func (e *ConflictError) Error() string {
	parts := make([]string, len(e.Mismatches))
	for i, m := range e.Mismatches {
		parts[i] = fmt.Sprintf("%s (want %s, got %s)", m.Column, m.Want, m.Got)
	}
	return fmt.Sprintf("schema conflict on table %s: %s", e.Table, strings.Join(parts, "; "))
}

// CreateTableSQL renders the CREATE TABLE statement for a schema in the
// given dialect. Column order follows the inferred schema.
func CreateTableSQL(d Dialect, table string, sc infer.Schema) string {
	cols := make([]string, len(sc))
	for i, c := range sc {
		cols[i] = fmt.Sprintf("%s %s", d.Quote(c.Name), d.TypeName(c.Type))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", d.Quote(table), strings.Join(cols, ", "))
}

// Ensure makes the target table match the inferred schema: it creates the
// table if absent, or verifies names and types if present. On mismatch it
// returns a *ConflictError listing every differing column. Ensure runs
// exactly once per import, before any rows are written.
func Ensure(ctx context.Context, ex Executor, d Dialect, table string, sc infer.Schema) error {
	existing, err := ex.TableColumns(ctx, table)
	if err != nil {
		return fmt.Errorf("inspect table %s: %w", table, err)
	}

	if len(existing) == 0 {
		if err := ex.Exec(ctx, CreateTableSQL(d, table, sc)); err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}
		return nil
	}

	byName := make(map[string]string, len(existing))
	for _, c := range existing {
		byName[strings.ToLower(c.Name)] = strings.ToLower(c.Type)
	}

	var mismatches []Mismatch
	for _, c := range sc {
		want := strings.ToLower(d.TypeName(c.Type))
		got, ok := byName[strings.ToLower(c.Name)]
		if !ok {
			mismatches = append(mismatches, Mismatch{Column: c.Name, Want: want, Got: "missing"})
			continue
		}
		if !typesCompatible(want, got) {
			mismatches = append(mismatches, Mismatch{Column: c.Name, Want: want, Got: got})
		}
	}

	if len(mismatches) > 0 {
		return &ConflictError{Table: table, Mismatches: mismatches}
	}
	return nil
}

// typeAliases maps catalog spellings back to the dialect's canonical names,
// e.g. Postgres reports "timestamp without time zone" for "timestamp".
var typeAliases = map[string]string{
	"timestamp without time zone": "timestamp",
	"character varying":           "text",
	"varchar":                     "text",
	"int8":                        "bigint",
	"float8":                      "double precision",
}

func typesCompatible(want, got string) bool {
	if alias, ok := typeAliases[got]; ok {
		got = alias
	}
	if got == want {
		return true
	}
	// numeric(18,4) vs numeric: precision is a creation detail, not a
	// compatibility requirement.
	return baseType(want) == baseType(got)
}

func baseType(t string) string {
	if i := strings.IndexByte(t, '('); i >= 0 {
		return strings.TrimSpace(t[:i])
	}
	return t
}
