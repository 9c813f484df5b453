package db

// This file contains tests that take a long time to run due to the tests
// sending thousands of requests.

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/lexiphanic/restdriver/resttest"
	"github.com/lexiphanic/restdriver/transformer"
	"github.com/lexiphanic/restdriver/transport"
)

func TestInsertAndSelectThousands(t *testing.T) {
	if os.Getenv("LONG_TEST") == "" {
		t.Skip("skipped long test")
	}
	s := resttest.NewServer(t)
	s.CreateTable(t, "test", "junk TEXT", "n INTEGER")
	db := New(transformer.New(nil), transport.New(s.URL))
	ctx := context.Background()

	insert := mustPrepare(t, db, "INSERT INTO test (junk, n) VALUES ('asdf', ?)")
	inserts := 5_000
	for i := 0; i < inserts; i += 1 {
		if res := db.Execute(ctx, insert, []any{i}); res.Err != nil {
			t.Fatalf("insert %d: %s", i, res.Err)
		}
	}

	res := db.Execute(ctx, mustPrepare(t, db, "SELECT n FROM test WHERE n >= ? ORDER BY n LIMIT 10"), []any{inserts - 100})
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if len(res.Rows) != 10 {
		t.Fatalf("want 10 rows got %d", len(res.Rows))
	}
	if n := res.Rows[0]["n"]; n != json.Number("4900") {
		t.Fatalf("want first row 4900 got %v", n)
	}

	res = db.Execute(ctx, mustPrepare(t, db, "DELETE FROM test WHERE n < ?"), []any{inserts / 2})
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if len(res.Rows) != inserts/2 {
		t.Fatalf("want %d deleted rows got %d", inserts/2, len(res.Rows))
	}
}
