package transformer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/lexiphanic/restdriver/compiler"
)

// AliasMap maps a returned field name to the name requested in the select
// list.
type AliasMap map[string]string

// Row is a single result. Nested objects are map[string]any with their keys
// mapped the same way.
type Row map[string]any

// Aliases builds the alias map of a select list. A column without an alias
// maps to itself and the last occurrence of a column wins.
func Aliases(s *compiler.SelectStmt) AliasMap {
	aliases := AliasMap{}
	for _, rc := range s.ResultColumns {
		if rc.All || rc.Column == "" {
			continue
		}
		alias := rc.Alias
		if alias == "" {
			alias = rc.Column
		}
		aliases[rc.Column] = alias
	}
	return aliases
}

// AliasesFor returns the alias map of stmt. Only selects have aliases.
func AliasesFor(stmt compiler.Stmt) AliasMap {
	if s, ok := stmt.(*compiler.SelectStmt); ok {
		return Aliases(s)
	}
	return AliasMap{}
}

// ToRows decodes a response body into rows. A single object is one row and an
// array of objects is one row per element. An empty body or null has no rows.
// Keys found in aliases are renamed, every other key is prefixed with "_".
func ToRows(body []byte, aliases AliasMap) ([]Row, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return []Row{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var data any
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, err)
	}
	switch d := data.(type) {
	case nil:
		return []Row{}, nil
	case map[string]any:
		return []Row{mapRow(d, aliases)}, nil
	case []any:
		rows := make([]Row, 0, len(d))
		for i, datum := range d {
			obj, ok := datum.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: element %d is %T not an object", ErrMalformedResponse, i, datum)
			}
			rows = append(rows, mapRow(obj, aliases))
		}
		return rows, nil
	}
	return nil, fmt.Errorf("%w: unexpected %T", ErrMalformedResponse, data)
}

func mapRow(data map[string]any, aliases AliasMap) Row {
	ret := make(Row, len(data))
	for key, datum := range data {
		alias, ok := aliases[key]
		if !ok {
			alias = "_" + key
		}
		ret[alias] = mapValue(datum, aliases)
	}
	return ret
}

func mapValue(v any, aliases AliasMap) any {
	switch d := v.(type) {
	case map[string]any:
		return map[string]any(mapRow(d, aliases))
	case []any:
		ret := make([]any, len(d))
		for i, e := range d {
			ret[i] = mapValue(e, aliases)
		}
		return ret
	}
	return v
}
