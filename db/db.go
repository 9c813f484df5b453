// db serves as an interface for the REST driver where raw SQL goes in and
// convenient data structures come out. db is intended to be consumed by things
// like a repl (read eval print loop), a program, or the database/sql driver.
package db

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/lexiphanic/restdriver/compiler"
	"github.com/lexiphanic/restdriver/transformer"
	"github.com/lexiphanic/restdriver/transport"
	"github.com/sirupsen/logrus"
)

type sender interface {
	Send(context.Context, *transformer.Request) (*transport.Response, error)
}

type DB struct {
	transformer *transformer.Transformer
	sender      sender
	log         logrus.FieldLogger

	// mu guards statements. A nil statements disables caching.
	mu         sync.Mutex
	statements *lru.Cache
}

type Option func(*DB)

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(db *DB) {
		db.log = log
	}
}

// WithCacheSize keeps up to n parsed statements. Zero disables the cache.
func WithCacheSize(n int) Option {
	return func(db *DB) {
		if n <= 0 {
			db.statements = nil
			return
		}
		db.statements = lru.New(n)
	}
}

func New(t *transformer.Transformer, s sender, opts ...Option) *DB {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	db := &DB{
		transformer: t,
		sender:      s,
		log:         log,
		statements:  lru.New(128),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Result is the outcome of executing a statement.
type Result struct {
	// Columns are the keys of Rows. For a select the select list comes first
	// in order followed by the remaining keys sorted.
	Columns []string
	Rows    []transformer.Row
	// Request is the request that was sent.
	Request   *transformer.Request
	RequestID string
	Duration  time.Duration
	Err       error
}

// Tokenize splits sql into statements.
func (*DB) Tokenize(sql string) []compiler.Statement {
	return compiler.NewLexer(sql).ToStatements()
}

// IsTerminated reports whether the last statement ends with a semicolon.
func (*DB) IsTerminated(statements []compiler.Statement) bool {
	return compiler.IsTerminated(statements)
}

// Parse parses a statement returned by Tokenize.
func (*DB) Parse(statement compiler.Statement) (compiler.Stmt, error) {
	return compiler.NewParser(statement).Parse()
}

// Prepare parses a single statement. Parsed statements are cached by their
// text.
func (db *DB) Prepare(sql string) (compiler.Stmt, error) {
	key := strings.TrimSpace(sql)
	db.mu.Lock()
	if db.statements != nil {
		if stmt, ok := db.statements.Get(key); ok {
			db.mu.Unlock()
			return stmt.(compiler.Stmt), nil
		}
	}
	db.mu.Unlock()

	stmt, err := compiler.Parse(sql)
	if err != nil {
		return nil, err
	}
	db.mu.Lock()
	if db.statements != nil {
		db.statements.Add(key, stmt)
	}
	db.mu.Unlock()
	return stmt, nil
}

// Translate builds the request for stmt without sending it.
func (db *DB) Translate(stmt compiler.Stmt, params []any) (*transformer.Request, transformer.AliasMap, error) {
	return db.transformer.ToRequest(stmt, params)
}

// Execute sends stmt to the API and maps the response into rows.
func (db *DB) Execute(ctx context.Context, stmt compiler.Stmt, params []any) Result {
	start := time.Now()
	req, aliases, err := db.Translate(stmt, params)
	if err != nil {
		return Result{Err: err}
	}
	log := db.log.WithFields(logrus.Fields{
		"operation": stmt.Operation(),
		"method":    req.Method,
		"uri":       req.URI(),
	})
	resp, err := db.sender.Send(ctx, req)
	if err != nil {
		log.WithError(err).Warn("execute failed")
		return Result{Request: req, Err: err}
	}
	rows, err := transformer.ToRows(resp.Body, aliases)
	if err != nil {
		log.WithError(err).Warn("unreadable response")
		return Result{Request: req, RequestID: resp.RequestID, Err: err}
	}
	result := Result{
		Columns:   Columns(stmt, rows),
		Rows:      rows,
		Request:   req,
		RequestID: resp.RequestID,
		Duration:  time.Since(start),
	}
	log.WithFields(logrus.Fields{
		"request_id": resp.RequestID,
		"rows":       len(rows),
		"duration":   result.Duration,
	}).Debug("executed")
	return result
}

// Columns lists the keys of rows. The aliases of a select list come first in
// statement order, every other key follows sorted.
func Columns(stmt compiler.Stmt, rows []transformer.Row) []string {
	columns := []string{}
	seen := map[string]bool{}
	if s, ok := stmt.(*compiler.SelectStmt); ok {
		aliases := transformer.Aliases(s)
		for _, rc := range s.ResultColumns {
			if rc.All || rc.Column == "" {
				continue
			}
			alias := aliases[rc.Column]
			if seen[alias] {
				continue
			}
			seen[alias] = true
			columns = append(columns, alias)
		}
	}
	rest := []string{}
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				rest = append(rest, k)
			}
		}
	}
	sort.Strings(rest)
	return append(columns, rest...)
}
