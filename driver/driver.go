// Package driver enables the REST transformer to be used with the go
// database/sql package.
package driver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lexiphanic/restdriver/compiler"
	"github.com/lexiphanic/restdriver/config"
	"github.com/lexiphanic/restdriver/db"
	"github.com/lexiphanic/restdriver/transformer"
	"github.com/lexiphanic/restdriver/transport"
	"github.com/sirupsen/logrus"
)

// DriverName is the name the driver is registered under.
const DriverName = "restsql"

var (
	// ErrNoInsertID is returned by LastInsertId when the API did not return
	// a numeric id.
	ErrNoInsertID    = errors.New("response has no numeric id")
	errTransactions  = errors.New("transactions are not supported")
	errNamedArgument = errors.New("named arguments are not supported")
)

func init() {
	sql.Register(DriverName, &restDriver{})
}

type restDriver struct{}

// Open implements driver.Driver. Name is either the base URL of the API or the
// path of a YAML config file.
func (d *restDriver) Open(name string) (driver.Conn, error) {
	c, err := d.OpenConnector(name)
	if err != nil {
		return nil, err
	}
	return c.Connect(context.Background())
}

// OpenConnector implements driver.DriverContext.
func (*restDriver) OpenConnector(name string) (driver.Connector, error) {
	cfg, err := config.FromDSN(name)
	if err != nil {
		return nil, err
	}
	return NewConnector(cfg)
}

// Connector shares one db.DB between the connections of a sql.DB.
type Connector struct {
	db *db.DB
}

type ConnectorOption func(*connectorOptions)

type connectorOptions struct {
	httpClient *http.Client
	log        logrus.FieldLogger
}

// WithHTTPClient sets the http.Client used for requests. The config timeout
// is ignored when it is given.
func WithHTTPClient(hc *http.Client) ConnectorOption {
	return func(o *connectorOptions) {
		o.httpClient = hc
	}
}

// WithLogger replaces the logger built from the config.
func WithLogger(log logrus.FieldLogger) ConnectorOption {
	return func(o *connectorOptions) {
		o.log = log
	}
}

// NewConnector builds a connector from cfg. Use it with sql.OpenDB.
func NewConnector(cfg config.Config, opts ...ConnectorOption) (*Connector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &connectorOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		log, err := cfg.Log.NewLogger()
		if err != nil {
			return nil, err
		}
		o.log = log
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	topts := []transport.Option{
		transport.WithHTTPClient(o.httpClient),
		transport.WithLogger(o.log),
	}
	for k, v := range cfg.Headers {
		topts = append(topts, transport.WithHeader(k, v))
	}
	if cfg.Auth.Secret != "" {
		signer, err := transport.NewTokenSigner(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.Subject, cfg.Auth.TTL)
		if err != nil {
			return nil, err
		}
		topts = append(topts, transport.WithTokenSigner(signer))
	}

	var methods *transformer.MethodMap
	if len(cfg.Methods) > 0 {
		methods = transformer.NewMethodMap(cfg.Methods)
	}
	d := db.New(
		transformer.New(methods),
		transport.New(cfg.BaseURL, topts...),
		db.WithLogger(o.log),
		db.WithCacheSize(cfg.Cache.Statements),
	)
	return &Connector{db: d}, nil
}

// DB returns the facade the connections use.
func (c *Connector) DB() *db.DB {
	return c.db
}

// Connect implements driver.Connector.
func (c *Connector) Connect(context.Context) (driver.Conn, error) {
	return &restConn{db: c.db}, nil
}

// Driver implements driver.Connector.
func (*Connector) Driver() driver.Driver {
	return &restDriver{}
}

type restConn struct {
	db *db.DB
}

// Begin implements driver.Conn.
func (*restConn) Begin() (driver.Tx, error) {
	return nil, errTransactions
}

// BeginTx implements driver.ConnBeginTx.
func (*restConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return nil, errTransactions
}

// Close implements driver.Conn.
func (*restConn) Close() error {
	return nil
}

// Ping implements driver.Pinger. The API is only contacted by statements.
func (*restConn) Ping(context.Context) error {
	return nil
}

// Prepare implements driver.Conn.
func (c *restConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

// PrepareContext implements driver.ConnPrepareContext.
func (c *restConn) PrepareContext(_ context.Context, query string) (driver.Stmt, error) {
	stmt, err := c.db.Prepare(query)
	if err != nil {
		return nil, err
	}
	return &restStmt{db: c.db, stmt: stmt}, nil
}

type restStmt struct {
	db   *db.DB
	stmt compiler.Stmt
}

// Close implements driver.Stmt.
func (*restStmt) Close() error {
	return nil
}

// NumInput implements driver.Stmt.
func (*restStmt) NumInput() int {
	// Per driver.Stmt docs a -1 means the driver will skip a sanity check for
	// the number of arguments prepared vs passed to be executed. Surplus
	// parameters are ignored and missing ones are reported by the transformer.
	return -1
}

// Exec implements driver.Stmt.
func (s *restStmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.exec(context.Background(), valuesToAny(args))
}

// ExecContext implements driver.StmtExecContext.
func (s *restStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	params, err := namedToAny(args)
	if err != nil {
		return nil, err
	}
	return s.exec(ctx, params)
}

func (s *restStmt) exec(ctx context.Context, params []any) (driver.Result, error) {
	result := s.db.Execute(ctx, s.stmt, params)
	if result.Err != nil {
		return nil, result.Err
	}
	return &restResult{rows: result.Rows}, nil
}

// Query implements driver.Stmt.
func (s *restStmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.query(context.Background(), valuesToAny(args))
}

// QueryContext implements driver.StmtQueryContext.
func (s *restStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	params, err := namedToAny(args)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, params)
}

func (s *restStmt) query(ctx context.Context, params []any) (driver.Rows, error) {
	result := s.db.Execute(ctx, s.stmt, params)
	if result.Err != nil {
		return nil, result.Err
	}
	return &restRows{cols: result.Columns, rows: result.Rows}, nil
}

func valuesToAny(args []driver.Value) []any {
	aarg := []any{}
	for _, arg := range args {
		aarg = append(aarg, arg)
	}
	return aarg
}

func namedToAny(args []driver.NamedValue) ([]any, error) {
	aarg := make([]any, len(args))
	for _, arg := range args {
		if arg.Name != "" {
			return nil, fmt.Errorf("%w: %s", errNamedArgument, arg.Name)
		}
		aarg[arg.Ordinal-1] = arg.Value
	}
	return aarg, nil
}

type restResult struct {
	rows []transformer.Row
}

// LastInsertId implements driver.Result. It is the _id of the first returned
// row.
func (r *restResult) LastInsertId() (int64, error) {
	if len(r.rows) == 0 {
		return 0, ErrNoInsertID
	}
	n, ok := r.rows[0]["_id"].(json.Number)
	if !ok {
		return 0, ErrNoInsertID
	}
	id, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrNoInsertID, n)
	}
	return id, nil
}

// RowsAffected implements driver.Result. It is the number of rows the API
// returned.
func (r *restResult) RowsAffected() (int64, error) {
	return int64(len(r.rows)), nil
}

type restRows struct {
	cols   []string
	rows   []transformer.Row
	rowIdx int
}

// Close implements driver.Rows.
func (*restRows) Close() error {
	return nil
}

// Columns implements driver.Rows.
func (r *restRows) Columns() []string {
	return r.cols
}

// Next implements driver.Rows.
func (r *restRows) Next(dest []driver.Value) error {
	if r.rowIdx == len(r.rows) {
		return io.EOF
	}
	row := r.rows[r.rowIdx]
	for i, col := range r.cols {
		v, err := toDriverValue(row[col])
		if err != nil {
			return fmt.Errorf("column %s: %w", col, err)
		}
		dest[i] = v
	}
	r.rowIdx += 1
	return nil
}

// toDriverValue converts a decoded JSON value. Numbers become int64 when they
// are integral and float64 otherwise. Objects and arrays are passed as JSON
// text.
func toDriverValue(v any) (driver.Value, error) {
	switch t := v.(type) {
	case nil, string, bool, int64, float64, time.Time:
		return t, nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		return t.Float64()
	case map[string]any, []any:
		return json.Marshal(t)
	}
	return nil, fmt.Errorf("unsupported value %T", v)
}
