package transformer

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/lexiphanic/restdriver/compiler"
)

// primaryKey matches a whole id=<value> component of a query string.
var primaryKey = regexp.MustCompile(`(^|[?&])id=([^/?&|(),]+)(?:&|$)`)

// Request describes the HTTP request for a statement.
type Request struct {
	Method string
	// Path is the resource path without a leading slash, for example users/7.
	Path     string
	RawQuery string
	Header   http.Header
	// Payload is nil when the request has no body.
	Payload map[string]any
	// Body is the JSON encoded Payload.
	Body []byte
}

// URI is the path joined with the query string.
func (r *Request) URI() string {
	if r.RawQuery == "" {
		return r.Path
	}
	if strings.Contains(r.Path, "?") {
		return r.Path + "&" + r.RawQuery
	}
	return r.Path + "?" + r.RawQuery
}

// ToRequest converts stmt into a request binding params in order. For a
// select the column alias map needed by ToRows is returned as well.
func (t *Transformer) ToRequest(stmt compiler.Stmt, params []any) (*Request, AliasMap, error) {
	verb, err := t.methods.VerbFor(stmt.Operation())
	if err != nil {
		return nil, nil, err
	}

	var (
		table     *compiler.TableRef
		where     compiler.WhereNode
		payload   map[string]any
		aliases   = AliasMap{}
		remaining = params
		order     []compiler.OrderTerm
		limit     *compiler.Limit
	)
	switch s := stmt.(type) {
	case *compiler.InsertStmt:
		table = s.Table
	case *compiler.SelectStmt:
		table = s.From
		where = s.Where
		order = s.OrderBy
		limit = s.Limit
		aliases = Aliases(s)
	case *compiler.UpdateStmt:
		table = s.Table
		where = s.Where
	case *compiler.DeleteStmt:
		table = s.From
		where = s.Where
	default:
		return nil, nil, fmt.Errorf("%w: %T", ErrUnsupportedOperation, stmt)
	}
	if table == nil || table.Name == "" {
		return nil, nil, ErrMissingTablePath
	}
	alias := table.Alias
	if alias == "" {
		alias = table.Name
	}

	switch s := stmt.(type) {
	case *compiler.InsertStmt:
		payload, remaining, err = insertPayload(s, params)
	case *compiler.UpdateStmt:
		payload, remaining, err = updatePayload(s, alias, params)
	}
	if err != nil {
		return nil, nil, err
	}

	parts := []string{}
	if where != nil {
		var filter string
		filter, remaining, err = CompileWhere(where, alias, remaining)
		if err != nil {
			return nil, nil, err
		}
		parts = append(parts, filter)
	}
	if limit != nil {
		var paging []string
		paging, remaining, err = pagingParts(limit, remaining)
		if err != nil {
			return nil, nil, err
		}
		parts = append(parts, paging...)
	}
	if len(order) > 0 {
		terms := make([]string, 0, len(order))
		// The filter syntax orders by field names only.
		for _, o := range order {
			terms = append(terms, url.QueryEscape(stripAlias(o.Expr, alias)))
		}
		parts = append(parts, "_order="+strings.Join(terms, ","))
	}

	path, query := promotePrimaryKey(table.Name, joinQuery(parts))
	req := &Request{
		Method:   verb,
		Path:     path,
		RawQuery: query,
		Header:   http.Header{},
	}
	if len(payload) > 0 {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("encode payload: %w", err)
		}
		req.Payload = payload
		req.Body = body
		req.Header.Set("Content-Type", "application/json")
	}
	return req, aliases, nil
}

// insertPayload zips the column list with the values. A placeholder takes the
// next parameter. When the statement has fewer values than columns the
// remaining columns take parameters positionally.
func insertPayload(s *compiler.InsertStmt, params []any) (map[string]any, []any, error) {
	if len(s.ColNames) == 0 {
		return nil, params, ErrMissingColumnList
	}
	payload := map[string]any{}
	remaining := params
	for i, col := range s.ColNames {
		if i < len(s.ColValues) {
			if _, ok := s.ColValues[i].(compiler.Placeholder); !ok {
				payload[col] = s.ColValues[i]
				continue
			}
		}
		if len(remaining) == 0 {
			return nil, params, fmt.Errorf("%w: missing parameter for column %s", ErrMalformedWhereClause, col)
		}
		payload[col] = jsonValue(remaining[0])
		remaining = remaining[1:]
	}
	return payload, remaining, nil
}

// updatePayload renders the set list like a filter and reads it back as a
// form. Values are therefore strings.
func updatePayload(s *compiler.UpdateStmt, alias string, params []any) (map[string]any, []any, error) {
	if s.SetList == nil {
		return nil, params, nil
	}
	form, remaining, err := CompileWhere(s.SetList, alias, params)
	if err != nil {
		return nil, params, err
	}
	values, err := url.ParseQuery(form)
	if err != nil {
		return nil, params, fmt.Errorf("%w: %s", ErrMalformedWhereClause, err)
	}
	payload := make(map[string]any, len(values))
	for k, v := range values {
		payload[k] = v[len(v)-1]
	}
	return payload, remaining, nil
}

// pagingParts renders _offset and _limit. Placeholders are consumed in the
// order they are written in the statement.
func pagingParts(limit *compiler.Limit, params []any) ([]string, []any, error) {
	var (
		offset, rowCount int64
		err              error
	)
	remaining := params
	resolveOffset := func() {
		if limit.Offset != "" && err == nil {
			offset, remaining, err = limitValue(limit.Offset, remaining)
		}
	}
	resolveRowCount := func() {
		if limit.RowCount != "" && err == nil {
			rowCount, remaining, err = limitValue(limit.RowCount, remaining)
		}
	}
	if limit.OffsetLast {
		resolveRowCount()
		resolveOffset()
	} else {
		resolveOffset()
		resolveRowCount()
	}
	if err != nil {
		return nil, params, err
	}
	parts := []string{}
	if limit.Offset != "" {
		parts = append(parts, "_offset="+strconv.FormatInt(offset, 10))
	}
	if limit.RowCount != "" {
		parts = append(parts, "_limit="+strconv.FormatInt(rowCount, 10))
	}
	return parts, remaining, nil
}

func limitValue(raw string, params []any) (int64, []any, error) {
	if raw != "?" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, params, fmt.Errorf("%w: limit %q is not an integer", ErrMalformedWhereClause, raw)
		}
		return v, params, nil
	}
	if len(params) == 0 {
		return 0, params, fmt.Errorf("%w: missing parameter for limit", ErrMalformedWhereClause)
	}
	v, err := strconv.ParseInt(formatParam(params[0]), 10, 64)
	if err != nil {
		return 0, params, fmt.Errorf("%w: limit parameter %v is not an integer", ErrMalformedWhereClause, params[0])
	}
	return v, params[1:], nil
}

// joinQuery joins the non-empty parts with "&" and strips separators from
// their edges.
func joinQuery(parts []string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(p, "?&"); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "&")
}

// promotePrimaryKey moves an id=<value> component of query into the path.
func promotePrimaryKey(path, query string) (string, string) {
	loc := primaryKey.FindStringSubmatchIndex(query)
	if loc == nil {
		return path, query
	}
	value := query[loc[4]:loc[5]]
	query = query[:loc[0]] + query[loc[5]:]
	return path + "/" + value, strings.Trim(query, "?&")
}

// jsonValue makes a parameter JSON friendly. Byte slices are sent as text.
func jsonValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
