package transformer

import "errors"

var (
	ErrUnsupportedOperation = errors.New("cannot convert sql operation to http verb")
	ErrMissingTablePath     = errors.New("cannot convert table to path")
	ErrMissingColumnList    = errors.New("cannot find column names for payload")
	ErrMalformedWhereClause = errors.New("malformed where clause")
	ErrMalformedResponse    = errors.New("malformed response body")
)
