package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/lib/pq"

	"github.com/relabs-tech/restgen/core/csql"
)

// Dialect captures the differences between the supported SQL databases
type Dialect interface {
	// Quote quotes an identifier
	Quote(identifier string) string
	// Placeholder returns the placeholder for the n-th parameter, starting at 1
	Placeholder(n int) string
	// Returning is true if INSERT, UPDATE and DELETE support a RETURNING clause
	Returning() bool
}

type postgresDialect struct{}

func (postgresDialect) Quote(identifier string) string { return pq.QuoteIdentifier(identifier) }
func (postgresDialect) Placeholder(n int) string       { return "$" + strconv.Itoa(n) }
func (postgresDialect) Returning() bool                { return true }

type mysqlDialect struct{}

func (mysqlDialect) Quote(identifier string) string {
	return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
}
func (mysqlDialect) Placeholder(int) string { return "?" }
func (mysqlDialect) Returning() bool        { return false }

// DialectFor returns the dialect for a database client name
func DialectFor(client string) Dialect {
	if client == csql.ClientMySQL {
		return mysqlDialect{}
	}
	return postgresDialect{}
}

// SQL is the database/sql implementation of Adapter
type SQL struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQL returns an adapter for db speaking the given client's dialect
func NewSQL(db *sql.DB, client string) *SQL {
	return &SQL{db: db, dialect: DialectFor(client)}
}

// FromDB returns an adapter for a connection opened with csql.Open
func FromDB(db *csql.DB) *SQL {
	return NewSQL(db.DB, db.Client)
}

// Ping verifies the connection
func (s *SQL) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type queryBuilder struct {
	dialect Dialect
	sql     strings.Builder
	args    []interface{}
	err     error
}

func (q *queryBuilder) write(parts ...string) *queryBuilder {
	for _, p := range parts {
		q.sql.WriteString(p)
	}
	return q
}

func (q *queryBuilder) param(value interface{}) string {
	encoded, err := bindValue(value)
	if err != nil && q.err == nil {
		q.err = err
	}
	q.args = append(q.args, encoded)
	return q.dialect.Placeholder(len(q.args))
}

// bindValue encodes lists and objects as JSON text, the drivers only bind scalars
func bindValue(value interface{}) (interface{}, error) {
	switch value.(type) {
	case []interface{}, map[string]interface{}, []string, Row:
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("cannot encode value: %w", err)
		}
		return string(b), nil
	}
	return value, nil
}

func (q *queryBuilder) table(collection string) *queryBuilder {
	return q.write(q.dialect.Quote(collection))
}

func (q *queryBuilder) columns(p Projection) *queryBuilder {
	if p.All() {
		return q.write("*")
	}
	quoted := make([]string, len(p.columns))
	for i, c := range p.columns {
		quoted[i] = q.dialect.Quote(c)
	}
	return q.write(strings.Join(quoted, ", "))
}

func (q *queryBuilder) where(f Filter) *queryBuilder {
	if len(f) == 0 {
		return q
	}
	conditions := make([]string, len(f))
	for i, c := range f {
		conditions[i] = q.dialect.Quote(c.Column) + " = " + q.param(c.Value)
	}
	return q.write(" WHERE ", strings.Join(conditions, " AND "))
}

func (q *queryBuilder) returning(p Projection) *queryBuilder {
	return q.write(" RETURNING ").columns(p)
}

func (q *queryBuilder) String() string {
	return q.sql.String()
}

func (s *SQL) query() *queryBuilder {
	return &queryBuilder{dialect: s.dialect}
}

// sortedKeys returns the payload columns in a stable order
func sortedKeys(payload Row) []string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SelectRows selects up to limit rows starting at offset. Rows are ordered by id so
// that consecutive pages are disjoint.
func (s *SQL) SelectRows(ctx context.Context, collection string, projection Projection, filter Filter, limit, offset int) ([]Row, error) {
	q := s.query().write("SELECT ").columns(projection).write(" FROM ").table(collection).where(filter)
	q.write(" ORDER BY ", s.dialect.Quote(IDColumn))
	q.write(" LIMIT ", q.param(limit), " OFFSET ", q.param(offset))

	rows, err := s.db.QueryContext(ctx, q.String(), q.args...)
	if err != nil {
		return nil, wrap("select", collection, err)
	}
	result, err := scanRows(rows)
	return result, wrap("select", collection, err)
}

// SelectOne selects the first row matching filter
func (s *SQL) SelectOne(ctx context.Context, collection string, filter Filter, projection Projection) (Row, error) {
	return s.selectOne(ctx, s.db, collection, filter, projection)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func (s *SQL) selectOne(ctx context.Context, db queryer, collection string, filter Filter, projection Projection) (Row, error) {
	q := s.query().write("SELECT ").columns(projection).write(" FROM ").table(collection).where(filter)
	q.write(" LIMIT 1")
	rows, err := db.QueryContext(ctx, q.String(), q.args...)
	if err != nil {
		return nil, wrap("select", collection, err)
	}
	return firstRow(rows, "select", collection)
}

// InsertRow inserts payload and returns the inserted row
func (s *SQL) InsertRow(ctx context.Context, collection string, payload Row, returning Projection) (Row, error) {
	keys := sortedKeys(payload)
	q := s.query().write("INSERT INTO ").table(collection)
	if len(keys) == 0 {
		if s.dialect.Returning() {
			q.write(" DEFAULT VALUES")
		} else {
			q.write(" () VALUES ()")
		}
	} else {
		columns := make([]string, len(keys))
		params := make([]string, len(keys))
		for i, k := range keys {
			columns[i] = s.dialect.Quote(k)
			params[i] = q.param(payload[k])
		}
		q.write(" (", strings.Join(columns, ", "), ") VALUES (", strings.Join(params, ", "), ")")
	}
	if q.err != nil {
		return nil, wrap("insert", collection, q.err)
	}

	if s.dialect.Returning() {
		q.returning(returning)
		rows, err := s.db.QueryContext(ctx, q.String(), q.args...)
		if err != nil {
			return nil, wrap("insert", collection, err)
		}
		return firstRow(rows, "insert", collection)
	}

	res, err := s.db.ExecContext(ctx, q.String(), q.args...)
	if err != nil {
		return nil, wrap("insert", collection, err)
	}
	var id interface{}
	if explicit, ok := payload[IDColumn]; ok {
		id = explicit
	} else {
		lastID, err := res.LastInsertId()
		if err != nil {
			return nil, wrap("insert", collection, err)
		}
		id = lastID
	}
	return s.SelectOne(ctx, collection, ByID(id), returning)
}

// UpdateRow updates the row matching filter with payload and returns the updated row
func (s *SQL) UpdateRow(ctx context.Context, collection string, filter Filter, payload Row, returning Projection) (Row, error) {
	keys := sortedKeys(payload)
	if len(keys) == 0 {
		return s.SelectOne(ctx, collection, filter, returning)
	}

	q := s.query().write("UPDATE ").table(collection).write(" SET ")
	sets := make([]string, len(keys))
	for i, k := range keys {
		sets[i] = s.dialect.Quote(k) + " = " + q.param(payload[k])
	}
	q.write(strings.Join(sets, ", ")).where(filter)
	if q.err != nil {
		return nil, wrap("update", collection, q.err)
	}

	if s.dialect.Returning() {
		q.returning(returning)
		rows, err := s.db.QueryContext(ctx, q.String(), q.args...)
		if err != nil {
			return nil, wrap("update", collection, err)
		}
		return firstRow(rows, "update", collection)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrap("update", collection, err)
	}
	// affected rows are not checked, mysql does not count rows updated with identical values
	if _, err := tx.ExecContext(ctx, q.String(), q.args...); err != nil {
		tx.Rollback()
		return nil, wrap("update", collection, err)
	}
	row, err := s.selectOne(ctx, tx, collection, updatedFilter(filter, payload), returning)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	return row, wrap("update", collection, tx.Commit())
}

// updatedFilter rewrites filter conditions whose column was changed by payload
func updatedFilter(filter Filter, payload Row) Filter {
	out := make(Filter, len(filter))
	for i, c := range filter {
		if v, ok := payload[c.Column]; ok {
			c.Value = v
		}
		out[i] = c
	}
	return out
}

// DeleteRow deletes the row matching filter and returns it
func (s *SQL) DeleteRow(ctx context.Context, collection string, filter Filter, returning Projection) (Row, error) {
	q := s.query().write("DELETE FROM ").table(collection).where(filter)

	if s.dialect.Returning() {
		q.returning(returning)
		rows, err := s.db.QueryContext(ctx, q.String(), q.args...)
		if err != nil {
			return nil, wrap("delete", collection, err)
		}
		return firstRow(rows, "delete", collection)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrap("delete", collection, err)
	}
	row, err := s.selectOne(ctx, tx, collection, filter, returning)
	if err != nil || row == nil {
		tx.Rollback()
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, q.String(), q.args...); err != nil {
		tx.Rollback()
		return nil, wrap("delete", collection, err)
	}
	return row, wrap("delete", collection, tx.Commit())
}

func firstRow(rows *sql.Rows, op, collection string) (Row, error) {
	result, err := scanRows(rows)
	if err != nil {
		return nil, wrap(op, collection, err)
	}
	if len(result) == 0 {
		return nil, nil
	}
	return result[0], nil
}

// scanRows scans all rows into untyped objects and closes rows
func scanRows(rows *sql.Rows) ([]Row, error) {
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	jsonColumns := make([]bool, len(columns))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, t := range types {
			switch strings.ToUpper(t.DatabaseTypeName()) {
			case "JSON", "JSONB":
				jsonColumns[i] = true
			}
		}
	}
	result := []Row{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("cannot scan values: %w", err)
		}
		row := make(Row, len(columns))
		for i, c := range columns {
			value := values[i]
			if b, ok := value.([]byte); ok {
				value = string(b)
			}
			if text, ok := value.(string); ok && jsonColumns[i] {
				var decoded interface{}
				if err := json.Unmarshal([]byte(text), &decoded); err != nil {
					return nil, fmt.Errorf("cannot decode json column '%s': %w", c, err)
				}
				value = decoded
			}
			row[c] = value
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
