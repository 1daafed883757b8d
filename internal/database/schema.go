package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jittakal/poolstore/pkg/mutation"
)

// Column is one column of a row schema.
type Column struct {
	Name       string
	Type       ColumnType
	NotNull    bool
	PrimaryKey bool
}

// Schema is a fixed row layout shared by every table created from it.
type Schema struct {
	Columns []Column
}

// ColumnNames returns the column names in declaration order.
func (s Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Statement is one parameterised SQL statement.
type Statement struct {
	Query string
	Args  []any
}

// CreateTableSQL renders CREATE TABLE IF NOT EXISTS for schema.
func CreateTableSQL(d Dialect, table string, schema Schema) (string, error) {
	if len(schema.Columns) == 0 {
		return "", errors.New("schema has no columns")
	}

	defs := make([]string, 0, len(schema.Columns)+1)
	var keys []string
	for _, c := range schema.Columns {
		def := d.Quote(c.Name) + " " + d.ColumnType(c.Type)
		if c.NotNull || c.PrimaryKey {
			def += " NOT NULL"
		}
		defs = append(defs, def)
		if c.PrimaryKey {
			keys = append(keys, d.Quote(c.Name))
		}
	}
	if len(keys) > 0 {
		defs = append(defs, "PRIMARY KEY ("+strings.Join(keys, ", ")+")")
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", d.Quote(table), strings.Join(defs, ", ")), nil
}

// InsertSQL renders a single-row INSERT with bind parameters.
func InsertSQL(d Dialect, table string, columns []string) string {
	cols := make([]string, len(columns))
	params := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = d.Quote(c)
		params[i] = d.Placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.Quote(table), strings.Join(cols, ", "), strings.Join(params, ", "))
}

// StatementFor turns a mutation into a statement for dialect d. Raw
// statements pass through untouched.
func StatementFor(d Dialect, m *mutation.Mutation) (Statement, error) {
	if m.IsRaw() {
		return Statement{Query: m.Statement, Args: m.Args}, nil
	}
	if m.Table == "" {
		return Statement{}, fmt.Errorf("mutation for %s has no resolved table", m.Target())
	}
	if len(m.Columns) == 0 || len(m.Columns) != len(m.Values) {
		return Statement{}, fmt.Errorf("mutation for %s: %d columns, %d values",
			m.Table, len(m.Columns), len(m.Values))
	}
	return Statement{Query: InsertSQL(d, m.Table, m.Columns), Args: m.Values}, nil
}
