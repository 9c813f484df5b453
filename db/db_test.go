package db

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/lexiphanic/restdriver/compiler"
	"github.com/lexiphanic/restdriver/transformer"
	"github.com/lexiphanic/restdriver/transport"
)

type fakeSender struct {
	requests []*transformer.Request
	body     string
	err      error
}

func (f *fakeSender) Send(_ context.Context, req *transformer.Request) (*transport.Response, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &transport.Response{StatusCode: 200, Body: []byte(f.body), RequestID: "req-1"}, nil
}

func mustCreateDB(t *testing.T, body string) (*DB, *fakeSender) {
	s := &fakeSender{body: body}
	return New(transformer.New(nil), s), s
}

func mustPrepare(t *testing.T, db *DB, sql string) compiler.Stmt {
	stmt, err := db.Prepare(sql)
	if err != nil {
		t.Fatalf("%s preparing sql: %s", err, sql)
	}
	return stmt
}

func TestExecute(t *testing.T) {
	db, s := mustCreateDB(t, `[{"name":"Ann","id":7,"age":30}]`)
	stmt := mustPrepare(t, db, "SELECT name AS n FROM users WHERE age > ? AND age < ?")
	res := db.Execute(context.Background(), stmt, []any{18, 65})
	if res.Err != nil {
		t.Fatalf("want no err got %s", res.Err)
	}
	if len(s.requests) != 1 || s.requests[0].URI() != "users?age>18&age<65" {
		t.Fatalf("got requests %#v", s.requests)
	}
	wantColumns := []string{"n", "_age", "_id"}
	if !reflect.DeepEqual(res.Columns, wantColumns) {
		t.Fatalf("got columns %v want %v", res.Columns, wantColumns)
	}
	wantRows := []transformer.Row{{"n": "Ann", "_id": json.Number("7"), "_age": json.Number("30")}}
	if !reflect.DeepEqual(res.Rows, wantRows) {
		t.Fatalf("got rows %#v want %#v", res.Rows, wantRows)
	}
	if res.RequestID != "req-1" {
		t.Fatalf("got request id %s", res.RequestID)
	}
}

func TestExecuteErrors(t *testing.T) {
	t.Run("transform", func(t *testing.T) {
		db, s := mustCreateDB(t, `[]`)
		res := db.Execute(context.Background(), mustPrepare(t, db, "SELECT * FROM users WHERE id = ?"), nil)
		if !errors.Is(res.Err, transformer.ErrMalformedWhereClause) {
			t.Fatalf("want ErrMalformedWhereClause got %v", res.Err)
		}
		if len(s.requests) != 0 {
			t.Fatal("nothing should be sent")
		}
	})
	t.Run("send", func(t *testing.T) {
		db, s := mustCreateDB(t, `[]`)
		s.err = errors.New("boom")
		res := db.Execute(context.Background(), mustPrepare(t, db, "DELETE FROM users"), nil)
		if res.Err != s.err {
			t.Fatalf("want send err got %v", res.Err)
		}
		if res.Request == nil || res.Request.Method != "DELETE" {
			t.Fatalf("want request on result got %#v", res.Request)
		}
	})
	t.Run("response", func(t *testing.T) {
		db, _ := mustCreateDB(t, `[1]`)
		res := db.Execute(context.Background(), mustPrepare(t, db, "SELECT * FROM users"), nil)
		if !errors.Is(res.Err, transformer.ErrMalformedResponse) {
			t.Fatalf("want ErrMalformedResponse got %v", res.Err)
		}
	})
}

func TestPrepareCache(t *testing.T) {
	db, _ := mustCreateDB(t, `[]`)
	a := mustPrepare(t, db, "SELECT * FROM users")
	b := mustPrepare(t, db, "  SELECT * FROM users\n")
	if a != b {
		t.Fatal("want cached statement")
	}
	if n := db.statements.Len(); n != 1 {
		t.Fatalf("want 1 cached statement got %d", n)
	}

	uncached := New(transformer.New(nil), &fakeSender{}, WithCacheSize(0))
	a = mustPrepare(t, uncached, "SELECT * FROM users")
	b = mustPrepare(t, uncached, "SELECT * FROM users")
	if a == b {
		t.Fatal("want a new statement without a cache")
	}
}

func TestPrepareErrors(t *testing.T) {
	db, _ := mustCreateDB(t, `[]`)
	for _, sql := range []string{"", "SELECT * FROM a; SELECT * FROM b", "CREATE TABLE a (id)"} {
		t.Run(sql, func(t *testing.T) {
			if _, err := db.Prepare(sql); err == nil {
				t.Fatal("want err")
			}
		})
	}
	if n := db.statements.Len(); n != 0 {
		t.Fatalf("errors should not be cached got %d", n)
	}
}

func TestTokenize(t *testing.T) {
	db, _ := mustCreateDB(t, `[]`)
	statements := db.Tokenize("SELECT * FROM a; DELETE FROM b")
	if len(statements) != 2 {
		t.Fatalf("want 2 statements got %d", len(statements))
	}
	if db.IsTerminated(statements) {
		t.Fatal("want unterminated")
	}
	stmt, err := db.Parse(statements[1])
	if err != nil {
		t.Fatal(err)
	}
	if stmt.Operation() != "DELETE" {
		t.Fatalf("got %s", stmt.Operation())
	}
}

func TestColumns(t *testing.T) {
	rows := []transformer.Row{
		{"n": 1, "_b": 2},
		{"n": 1, "_a": 2, "x": 3},
	}
	cases := []struct {
		sql  string
		want []string
	}{
		{"SELECT * FROM t", []string{"_a", "_b", "n", "x"}},
		{"SELECT x, name AS n FROM t", []string{"x", "n", "_a", "_b"}},
		{"SELECT missing FROM t", []string{"missing", "_a", "_b", "n", "x"}},
		{"DELETE FROM t", []string{"_a", "_b", "n", "x"}},
	}
	for _, c := range cases {
		t.Run(c.sql, func(t *testing.T) {
			stmt, err := compiler.Parse(c.sql)
			if err != nil {
				t.Fatal(err)
			}
			if got := Columns(stmt, rows); !reflect.DeepEqual(got, c.want) {
				t.Fatalf("got %v want %v", got, c.want)
			}
		})
	}
}
