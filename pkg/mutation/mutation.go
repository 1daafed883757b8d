package mutation

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/goccy/go-json"
)

// Mutation is one pending write.
type Mutation struct {
	Keyword   string    `json:"keyword,omitempty"`
	UID       string    `json:"uid,omitempty"`
	Table     string    `json:"table,omitempty"`
	Columns   []string  `json:"columns,omitempty"`
	Values    []any     `json:"values,omitempty"`
	Statement string    `json:"statement,omitempty"`
	Args      []any     `json:"args,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IsRaw reports whether the mutation carries a raw statement.
func (m *Mutation) IsRaw() bool {
	return m.Statement != ""
}

// IsPartitioned reports whether the mutation still has to be routed to a
// keyword/uid partition.
func (m *Mutation) IsPartitioned() bool {
	return m.Table == "" && m.Keyword != "" && m.UID != ""
}

// Target returns a human-readable destination for logs and errors.
func (m *Mutation) Target() string {
	switch {
	case m.Table != "":
		return m.Table
	case m.Keyword != "" || m.UID != "":
		return m.Keyword + "/" + m.UID
	case m.IsRaw():
		return "raw"
	default:
		return ""
	}
}

// Encode serializes a mutation to the bytes stored in a pool.
func Encode(m *Mutation) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("encode mutation: nil mutation")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode mutation: %w", err)
	}
	return data, nil
}

// Decode parses bytes produced by Encode.
func Decode(data []byte) (*Mutation, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var m Mutation
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode mutation: %w", err)
	}
	normalizeNumbers(m.Values)
	normalizeNumbers(m.Args)
	return &m, nil
}

func normalizeNumbers(values []any) {
	for i, v := range values {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		if iv, err := n.Int64(); err == nil {
			values[i] = iv
			continue
		}
		if fv, err := n.Float64(); err == nil {
			values[i] = fv
			continue
		}
		values[i] = n.String()
	}
}

// Insert builds a structured insert into table from the exported fields of
// row, which must be a struct or a pointer to one. Fields tagged `db:"-"` are
// skipped.
func Insert(table string, row any) (*Mutation, error) {
	v := reflect.ValueOf(row)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, fmt.Errorf("insert into %s: nil row", table)
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("insert into %s: row must be a struct, got %s", table, v.Kind())
	}

	t := v.Type()
	m := &Mutation{Table: table, CreatedAt: time.Now().UTC()}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Tag.Get("db")
		if name == "-" {
			continue
		}
		if name == "" {
			name = SnakeCase(field.Name)
		}
		m.Columns = append(m.Columns, name)
		m.Values = append(m.Values, columnValue(v.Field(i).Interface()))
	}
	if len(m.Columns) == 0 {
		return nil, fmt.Errorf("insert into %s: %s has no exported fields", table, t.Name())
	}
	return m, nil
}

// TimestampLayout is how Insert renders time.Time fields. Every supported
// dialect accepts it for timestamp columns.
const TimestampLayout = "2006-01-02 15:04:05.999999"

func columnValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(TimestampLayout)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.UTC().Format(TimestampLayout)
	default:
		return v
	}
}

// SnakeCase converts a Go identifier such as UserID to user_id.
func SnakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
