package driver_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/lexiphanic/restdriver/config"
	"github.com/lexiphanic/restdriver/driver"
	"github.com/lexiphanic/restdriver/resttest"
	"github.com/lexiphanic/restdriver/transport"
)

func mustOpenSqlDb(t *testing.T) (*sql.DB, *resttest.Server) {
	s := resttest.NewServer(t)
	s.CreateTable(t, "foo", "name TEXT", "age INTEGER")
	db, err := sql.Open(driver.DriverName, s.URL)
	if err != nil {
		t.Fatalf("open err %s", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, s
}

func mustExecute(t *testing.T, db *sql.DB, sql string, args ...any) sql.Result {
	res, err := db.Exec(sql, args...)
	if err != nil {
		t.Fatalf("failed to exec %s with err %s", sql, err)
	}
	return res
}

type foo struct {
	id   int
	name string
}

func toFoos(t *testing.T, rows *sql.Rows) []*foo {
	defer rows.Close()
	fs := make([]*foo, 0)
	for rows.Next() {
		f := &foo{}
		if err := rows.Scan(&f.id, &f.name); err != nil {
			t.Fatalf("scan err %s", err)
		}
		fs = append(fs, f)
	}
	return fs
}

func TestSchema1(t *testing.T) {
	db, _ := mustOpenSqlDb(t)
	res := mustExecute(t, db, "INSERT INTO foo (name, age) VALUES ('one', ?)", 20)
	if id, err := res.LastInsertId(); err != nil || id != 1 {
		t.Fatalf("got last insert id %d %v", id, err)
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		t.Fatalf("got rows affected %d %v", n, err)
	}
	mustExecute(t, db, "INSERT INTO foo (name, age) VALUES (?, ?)", "two", 40)

	t.Run("TestQuery", func(t *testing.T) {
		rows, err := db.Query("SELECT id, name FROM foo")
		if err != nil {
			t.Fatalf("query err %s", err)
		}
		cols, err := rows.Columns()
		if err != nil {
			t.Fatal(err)
		}
		if want := []string{"id", "name", "_age"}; !reflect.DeepEqual(cols, want) {
			t.Fatalf("got columns %v want %v", cols, want)
		}
		rows.Close()
	})

	t.Run("TestQueryWithParam", func(t *testing.T) {
		rows, err := db.Query("SELECT id, name, age FROM foo WHERE id = ?", 2)
		if err != nil {
			t.Fatalf("query err %s", err)
		}
		defer rows.Close()
		if !rows.Next() {
			t.Fatal("want a row")
		}
		var id, age int
		var name string
		if err := rows.Scan(&id, &name, &age); err != nil {
			t.Fatal(err)
		}
		if id != 2 || name != "two" || age != 40 {
			t.Fatalf("got %d %s %d", id, name, age)
		}
		if rows.Next() {
			t.Fatal("want one row")
		}
	})

	t.Run("TestQueryWithParams", func(t *testing.T) {
		rows, err := db.Query("SELECT id, name AS name, age FROM foo WHERE age > ? AND age < ? ORDER BY age LIMIT ?", 10, 50, 5)
		if err != nil {
			t.Fatalf("query err %s", err)
		}
		defer rows.Close()
		got := []string{}
		for rows.Next() {
			var id, age int
			var name string
			if err := rows.Scan(&id, &name, &age); err != nil {
				t.Fatal(err)
			}
			got = append(got, name)
		}
		if want := []string{"one", "two"}; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v want %v", got, want)
		}
	})
}

func TestInsertWithParam(t *testing.T) {
	db, _ := mustOpenSqlDb(t)
	param := "'w'); DROP TABLE foo;--"
	mustExecute(t, db, "INSERT INTO foo (name) VALUES (?)", param)
	rows, err := db.Query("SELECT id, name FROM foo WHERE name = ?", param)
	if err != nil {
		t.Fatalf("query err %s", err)
	}
	fs := toFoos(t, rows)
	if d := len(fs); d != 1 {
		t.Fatalf("expected %d got %d", 1, d)
	}
	if fs[0].name != param {
		t.Fatalf("expected %s got %s", param, fs[0].name)
	}
	if fs[0].id != 1 {
		t.Fatalf("expected %d got %d", 1, fs[0].id)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	db, s := mustOpenSqlDb(t)
	s.Seed(t, "foo",
		map[string]any{"name": "a", "age": 1},
		map[string]any{"name": "b", "age": 2},
		map[string]any{"name": "c", "age": 3},
	)

	res := mustExecute(t, db, "UPDATE foo SET name = ? WHERE id = ?", "bb", 2)
	if n, _ := res.RowsAffected(); n != 1 {
		t.Fatalf("got rows affected %d", n)
	}
	res = mustExecute(t, db, "DELETE FROM foo WHERE age >= ?", 2)
	if n, _ := res.RowsAffected(); n != 2 {
		t.Fatalf("got rows affected %d", n)
	}
	res = mustExecute(t, db, "DELETE FROM foo WHERE age > 100")
	if n, _ := res.RowsAffected(); n != 0 {
		t.Fatalf("got rows affected %d", n)
	}
	if _, err := res.LastInsertId(); !errors.Is(err, driver.ErrNoInsertID) {
		t.Fatalf("want ErrNoInsertID got %v", err)
	}

	rows, err := db.Query("SELECT id, name FROM foo")
	if err != nil {
		t.Fatal(err)
	}
	fs := toFoos(t, rows)
	if len(fs) != 1 || fs[0].name != "a" {
		t.Fatalf("got %v", fs)
	}

	want := []string{
		"PUT /foo/2",
		"DELETE /foo?age>=2",
		"DELETE /foo?age>100",
		"GET /foo",
	}
	if got := s.Requests(); !reflect.DeepEqual(got, want) {
		t.Fatalf("got requests %v want %v", got, want)
	}
}

func TestErrors(t *testing.T) {
	db, _ := mustOpenSqlDb(t)
	if _, err := db.Begin(); err == nil {
		t.Fatal("want transactions to fail")
	}
	_, err := db.Query("SELECT * FROM missing")
	var se *transport.StatusError
	if !errors.As(err, &se) || !se.NotFound() {
		t.Fatalf("want not found status got %v", err)
	}
	if _, err := db.Exec("CREATE TABLE bar (id)"); err == nil {
		t.Fatal("want parse error")
	}
	if _, err := db.Query("SELECT * FROM foo WHERE id = :id", sql.Named("id", 1)); err == nil {
		t.Fatal("want named arguments to fail")
	}
}

func TestOpenConfigFile(t *testing.T) {
	if _, err := sql.Open(driver.DriverName, "/does/not/exist.yaml"); !errors.Is(err, config.ErrNotFound) {
		t.Fatalf("want ErrNotFound got %v", err)
	}
	if _, err := sql.Open(driver.DriverName, "ftp://example.com"); err == nil {
		t.Fatal("want err for a dsn that is neither a url nor a file")
	}
}

func TestOpenWithConfig(t *testing.T) {
	s := resttest.NewServer(t)
	s.CreateTable(t, "foo", "name TEXT")
	p := filepath.Join(t.TempDir(), "restsql.yaml")
	cfg := config.Default()
	cfg.BaseURL = s.URL
	cfg.Headers = map[string]string{"X-Api-Key": "k"}
	if err := config.Save(p, cfg); err != nil {
		t.Fatal(err)
	}
	db, err := sql.Open(driver.DriverName, p)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := db.Exec("INSERT INTO foo (name) VALUES (?)", "x"); err != nil {
		t.Fatal(err)
	}
	if got := s.Requests(); !reflect.DeepEqual(got, []string{"POST /foo"}) {
		t.Fatalf("got %v", got)
	}
}

func TestConnector(t *testing.T) {
	s := resttest.NewServer(t)
	s.CreateTable(t, "foo", "name TEXT")
	s.Seed(t, "foo", map[string]any{"name": "x"})

	cfg := config.Default()
	cfg.BaseURL = s.URL
	cfg.Methods = map[string]string{"SELECT": "GET"}
	c, err := driver.NewConnector(cfg)
	if err != nil {
		t.Fatal(err)
	}
	db := sqlx.NewDb(sql.OpenDB(c), driver.DriverName)
	defer db.Close()

	rows, err := db.QueryxContext(context.Background(), "SELECT name AS label FROM foo")
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	got := []map[string]any{}
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			t.Fatal(err)
		}
		got = append(got, row)
	}
	want := []map[string]any{{"label": "x", "_id": int64(1)}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v want %#v", got, want)
	}

	if _, err := db.Exec("DELETE FROM foo"); err == nil {
		t.Fatal("DELETE is not mapped and should fail")
	}
}
