package transformer

import (
	"fmt"
	"net/http"
	"strings"
)

var defaultMethods = map[string]string{
	"INSERT": http.MethodPost,
	"UPDATE": http.MethodPut,
	"DELETE": http.MethodDelete,
	"SELECT": http.MethodGet,
}

// MethodMap converts SQL operation keywords to HTTP verbs.
type MethodMap struct {
	verbs map[string]string
}

// NewMethodMap returns a MethodMap for verbs. A nil map selects the default
// mapping. A non-nil map replaces the default entirely.
func NewMethodMap(verbs map[string]string) *MethodMap {
	if verbs == nil {
		verbs = defaultMethods
	}
	m := &MethodMap{verbs: make(map[string]string, len(verbs))}
	for op, verb := range verbs {
		m.verbs[strings.ToUpper(op)] = strings.ToUpper(verb)
	}
	return m
}

// VerbFor returns the HTTP verb for the operation keyword. Matching is case
// insensitive.
func (m *MethodMap) VerbFor(operation string) (string, error) {
	verb, ok := m.verbs[strings.ToUpper(operation)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedOperation, operation)
	}
	return verb, nil
}
