package main

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/lexiphanic/restdriver/transformer"
)

// bridgeRequest is the request as seen by the C interface.
type bridgeRequest struct {
	Method string          `json:"method,omitempty"`
	URI    string          `json:"uri,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
	Error  string          `json:"error,omitempty"`
}

var bridgeTransformer = transformer.New(nil)

func translateJSON(sql, paramsJSON string) string {
	out := bridgeRequest{}
	req, err := translateBridge(sql, paramsJSON)
	if err != nil {
		out.Error = err.Error()
	} else {
		out.Method = req.Method
		out.URI = req.URI()
		if len(req.Body) > 0 {
			out.Body = req.Body
		}
	}
	b, _ := json.Marshal(out)
	return string(b)
}

func translateBridge(sql, paramsJSON string) (*transformer.Request, error) {
	params := []any{}
	if strings.TrimSpace(paramsJSON) != "" {
		dec := json.NewDecoder(bytes.NewReader([]byte(paramsJSON)))
		dec.UseNumber()
		if err := dec.Decode(&params); err != nil {
			return nil, err
		}
	}
	return bridgeTransformer.Transform(sql, params)
}
