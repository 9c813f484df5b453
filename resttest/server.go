// Package resttest provides a REST API backed by an in-memory SQLite database
// for tests. It understands the query strings produced by the transformer
// package: "&" joined comparisons, _limit, _offset, _order and a primary key
// in the path.
package resttest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/exp/maps"
)

var (
	identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	comparison = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)(<=|>=|!=|=|<|>)(.*)$`)

	errNotFound = errors.New("not found")
)

// Server is an httptest.Server serving every table of DB.
type Server struct {
	*httptest.Server
	DB *sqlx.DB

	mu       sync.Mutex
	requests []string
}

// NewServer starts a server that is closed when tb finishes.
func NewServer(tb testing.TB) *Server {
	tb.Helper()
	db, err := sqlx.Connect("sqlite3", ":memory:")
	if err != nil {
		tb.Fatalf("open sqlite: %s", err)
	}
	// every connection to :memory: is a new database
	db.SetMaxOpenConns(1)
	s := &Server{DB: db}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	tb.Cleanup(func() {
		s.Close()
		db.Close()
	})
	return s
}

// CreateTable creates name with an integer primary key id and columns, given
// as SQL column definitions such as "age INTEGER".
func (s *Server) CreateTable(tb testing.TB, name string, columns ...string) {
	tb.Helper()
	defs := append([]string{"id INTEGER PRIMARY KEY AUTOINCREMENT"}, columns...)
	q := fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(defs, ", "))
	if _, err := s.DB.Exec(q); err != nil {
		tb.Fatalf("create table %s: %s", name, err)
	}
}

// Seed inserts rows into table.
func (s *Server) Seed(tb testing.TB, table string, rows ...map[string]any) {
	tb.Helper()
	for _, row := range rows {
		if _, err := s.insert(table, row); err != nil {
			tb.Fatalf("seed %s: %s", table, err)
		}
	}
}

// Requests returns "METHOD URI" for every request served so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.requests...)
}

type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string {
	return e.msg
}

func badRequest(format string, a ...any) error {
	return &httpError{http.StatusBadRequest, fmt.Sprintf(format, a...)}
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, r.Method+" "+r.URL.RequestURI())

	out, status, err := s.route(r)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		status = http.StatusInternalServerError
		var he *httpError
		if errors.As(err, &he) {
			status = he.status
		}
		if errors.Is(err, errNotFound) {
			status = http.StatusNotFound
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(out)
}

func (s *Server) route(r *http.Request) (any, int, error) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) > 2 || !identifier.MatchString(parts[0]) {
		return nil, 0, &httpError{http.StatusNotFound, "unknown resource " + r.URL.Path}
	}
	table := parts[0]
	columns, err := s.columns(table)
	if err != nil {
		return nil, 0, err
	}
	q, err := parseQuery(r.URL.RawQuery, columns)
	if err != nil {
		return nil, 0, err
	}
	single := len(parts) == 2
	if single {
		q.where = append(q.where, "id = ?")
		q.args = append(q.args, parts[1])
	}

	switch r.Method {
	case http.MethodGet:
		rows, err := s.selectRows(table, q)
		return shape(rows, single, err, http.StatusOK)
	case http.MethodPost:
		if single {
			return nil, 0, badRequest("cannot post to a single resource")
		}
		body, err := decodeBody(r, columns)
		if err != nil {
			return nil, 0, err
		}
		row, err := s.insert(table, body)
		return row, http.StatusCreated, err
	case http.MethodPut, http.MethodPatch:
		body, err := decodeBody(r, columns)
		if err != nil {
			return nil, 0, err
		}
		rows, err := s.update(table, q, body)
		return shape(rows, single, err, http.StatusOK)
	case http.MethodDelete:
		rows, err := s.delete(table, q)
		return shape(rows, single, err, http.StatusOK)
	}
	return nil, 0, &httpError{http.StatusMethodNotAllowed, "method not allowed"}
}

func shape(rows []map[string]any, single bool, err error, status int) (any, int, error) {
	if err != nil {
		return nil, 0, err
	}
	if !single {
		return rows, status, nil
	}
	if len(rows) == 0 {
		return nil, 0, errNotFound
	}
	return rows[0], status, nil
}

func (s *Server) columns(table string) (map[string]bool, error) {
	rows, err := s.DB.Queryx("SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	columns := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		columns[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, &httpError{http.StatusNotFound, "unknown table " + table}
	}
	return columns, nil
}

type query struct {
	where  []string
	args   []any
	order  []string
	limit  int
	offset int
}

func parseQuery(raw string, columns map[string]bool) (*query, error) {
	q := &query{limit: -1}
	if raw == "" {
		return q, nil
	}
	for _, component := range strings.Split(raw, "&") {
		if component == "" {
			continue
		}
		if strings.ContainsAny(component, "|()") {
			return nil, badRequest("unsupported filter %q", component)
		}
		key, value, _ := strings.Cut(component, "=")
		var err error
		switch key {
		case "_limit":
			q.limit, err = strconv.Atoi(value)
		case "_offset":
			q.offset, err = strconv.Atoi(value)
		case "_order":
			err = q.parseOrder(value, columns)
		default:
			err = q.parseComparison(component, columns)
		}
		if err != nil {
			return nil, badRequest("%s: %s", component, err)
		}
	}
	return q, nil
}

func (q *query) parseOrder(value string, columns map[string]bool) error {
	for _, term := range strings.Split(value, ",") {
		term, err := url.QueryUnescape(term)
		if err != nil {
			return err
		}
		col, dir, _ := strings.Cut(strings.TrimSpace(term), " ")
		if !columns[col] {
			return fmt.Errorf("unknown column %s", col)
		}
		switch strings.ToUpper(dir) {
		case "":
			q.order = append(q.order, col)
		case "ASC", "DESC":
			q.order = append(q.order, col+" "+strings.ToUpper(dir))
		default:
			return fmt.Errorf("bad direction %s", dir)
		}
	}
	return nil
}

func (q *query) parseComparison(component string, columns map[string]bool) error {
	m := comparison.FindStringSubmatch(component)
	if m == nil {
		return errors.New("not a comparison")
	}
	col, op, raw := m[1], m[2], m[3]
	if !columns[col] {
		return fmt.Errorf("unknown column %s", col)
	}
	value, err := url.QueryUnescape(raw)
	if err != nil {
		return err
	}
	switch {
	case value == "null" && op == "=":
		q.where = append(q.where, col+" IS NULL")
		return nil
	case value == "null" && op == "!=":
		q.where = append(q.where, col+" IS NOT NULL")
		return nil
	}
	var arg any = value
	switch value {
	case "true":
		arg = 1
	case "false":
		arg = 0
	}
	q.where = append(q.where, col+" "+op+" ?")
	q.args = append(q.args, arg)
	return nil
}

func (q *query) sql(table string) (string, []any) {
	b := strings.Builder{}
	b.WriteString("SELECT * FROM " + table)
	if len(q.where) > 0 {
		b.WriteString(" WHERE " + strings.Join(q.where, " AND "))
	}
	if len(q.order) > 0 {
		b.WriteString(" ORDER BY " + strings.Join(q.order, ", "))
	} else {
		b.WriteString(" ORDER BY id")
	}
	b.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", q.limit, q.offset))
	return b.String(), q.args
}

func (s *Server) selectRows(table string, q *query) ([]map[string]any, error) {
	stmt, args := q.sql(table)
	rows, err := s.DB.Queryx(stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ret := []map[string]any{}
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		ret = append(ret, row)
	}
	return ret, rows.Err()
}

func (s *Server) selectIDs(table string, q *query) ([]any, error) {
	rows, err := s.selectRows(table, q)
	if err != nil {
		return nil, err
	}
	ids := make([]any, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row["id"])
	}
	return ids, nil
}

func byIDs(ids []any) *query {
	marks := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	return &query{
		where: []string{"id IN (" + marks + ")"},
		args:  ids,
		limit: -1,
	}
}

func (s *Server) insert(table string, body map[string]any) (map[string]any, error) {
	cols := sortedKeys(body)
	args := make([]any, 0, len(cols))
	for _, c := range cols {
		args = append(args, body[c])
	}
	stmt := fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", table)
	if len(cols) > 0 {
		stmt = fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s)",
			table,
			strings.Join(cols, ", "),
			strings.TrimSuffix(strings.Repeat("?,", len(cols)), ","),
		)
	}
	res, err := s.DB.Exec(stmt, args...)
	if err != nil {
		return nil, badRequest("%s", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	rows, err := s.selectRows(table, byIDs([]any{id}))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errNotFound
	}
	return rows[0], nil
}

func (s *Server) update(table string, q *query, body map[string]any) ([]map[string]any, error) {
	ids, err := s.selectIDs(table, q)
	if err != nil || len(ids) == 0 {
		return []map[string]any{}, err
	}
	cols := sortedKeys(body)
	if len(cols) == 0 {
		return nil, badRequest("empty update")
	}
	sets := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+len(ids))
	for _, c := range cols {
		sets = append(sets, c+" = ?")
		args = append(args, body[c])
	}
	where := byIDs(ids)
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(sets, ", "), where.where[0])
	if _, err := s.DB.Exec(stmt, append(args, where.args...)...); err != nil {
		return nil, badRequest("%s", err)
	}
	return s.selectRows(table, where)
}

func (s *Server) delete(table string, q *query) ([]map[string]any, error) {
	rows, err := s.selectRows(table, q)
	if err != nil || len(rows) == 0 {
		return rows, err
	}
	ids := make([]any, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row["id"])
	}
	where := byIDs(ids)
	if _, err := s.DB.Exec("DELETE FROM "+table+" WHERE "+where.where[0], where.args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func decodeBody(r *http.Request, columns map[string]bool) (map[string]any, error) {
	body := map[string]any{}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, badRequest("decode body: %s", err)
	}
	for k, v := range body {
		if !columns[k] {
			return nil, badRequest("unknown column %s", k)
		}
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				body[k] = i
			} else if f, err := n.Float64(); err == nil {
				body[k] = f
			}
		}
	}
	return body, nil
}

func sortedKeys(m map[string]any) []string {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
