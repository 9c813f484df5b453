// Package transformer converts SQL statements into REST requests and REST
// responses back into rows.
package transformer

import (
	"fmt"
	"io"
	"net/http"

	"github.com/lexiphanic/restdriver/compiler"
)

// Transformer holds the configuration shared by all transformations. It has
// no other state and is safe for concurrent use.
type Transformer struct {
	methods *MethodMap
}

// New returns a Transformer using methods to pick HTTP verbs. A nil methods
// uses the default mapping.
func New(methods *MethodMap) *Transformer {
	if methods == nil {
		methods = NewMethodMap(nil)
	}
	return &Transformer{methods: methods}
}

// Transform parses query and converts it into a request.
func (t *Transformer) Transform(query string, params []any) (*Request, error) {
	stmt, err := compiler.Parse(query)
	if err != nil {
		return nil, err
	}
	req, _, err := t.ToRequest(stmt, params)
	return req, err
}

// TransformBack parses query and maps the body of resp into rows using the
// aliases of the select list. The params are those given to Transform; rows
// do not depend on them.
func (t *Transformer) TransformBack(query string, params []any, resp *http.Response) ([]Row, error) {
	stmt, err := compiler.Parse(query)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return ToRows(body, AliasesFor(stmt))
}
