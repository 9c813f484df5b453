package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/lexiphanic/restdriver/config"
	"github.com/lexiphanic/restdriver/resttest"
)

func TestParseParam(t *testing.T) {
	cases := map[string]any{
		"18":    int64(18),
		"-3":    int64(-3),
		"1.5":   1.5,
		"true":  true,
		"FALSE": false,
		"null":  nil,
		"Ann":   "Ann",
		"":      "",
	}
	for in, want := range cases {
		if got := parseParam(in); !reflect.DeepEqual(got, want) {
			t.Errorf("%q: got %#v want %#v", in, got, want)
		}
	}
}

func TestTranslateJSON(t *testing.T) {
	cases := []struct {
		sql    string
		params string
		want   bridgeRequest
	}{
		{
			sql:    "SELECT * FROM users WHERE id = ?",
			params: "[7]",
			want:   bridgeRequest{Method: "GET", URI: "users/7"},
		},
		{
			sql:    "INSERT INTO users (name, age) VALUES (?, ?)",
			params: `["Ann", 30]`,
			want:   bridgeRequest{Method: "POST", URI: "users", Body: json.RawMessage(`{"age":30,"name":"Ann"}`)},
		},
		{
			sql:  "SELECT * FROM users WHERE id = ?",
			want: bridgeRequest{Error: "malformed where clause: 1 placeholders but 0 parameters"},
		},
		{
			sql:    "SELECT * FROM users",
			params: "{",
			want:   bridgeRequest{Error: "unexpected EOF"},
		},
	}
	for _, c := range cases {
		t.Run(c.sql, func(t *testing.T) {
			got := bridgeRequest{}
			if err := json.Unmarshal([]byte(translateJSON(c.sql, c.params)), &got); err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, c.want) {
				t.Fatalf("got %#v want %#v", got, c.want)
			}
		})
	}
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	app := newApp()
	out := &bytes.Buffer{}
	app.Writer = out
	if err := app.Run(context.Background(), append([]string{"restsql"}, args...)); err != nil {
		t.Fatalf("%v: %s", args, err)
	}
	return out.String()
}

func TestTranslateCommand(t *testing.T) {
	out := run(t, "--base-url", "http://api.test/v1/", "translate", "-p", "18", "-p", "65",
		"SELECT name AS n FROM users WHERE age > ? AND age < ?")
	if want := "GET http://api.test/v1/users?age>18&age<65\n"; out != want {
		t.Fatalf("got %q want %q", out, want)
	}
}

func TestQueryAndExecCommands(t *testing.T) {
	s := resttest.NewServer(t)
	s.CreateTable(t, "users", "name TEXT", "age INTEGER")

	out := run(t, "--base-url", s.URL, "exec", "-p", "Ann", "-p", "30",
		"INSERT INTO users (name, age) VALUES (?, ?)")
	if want := "rows affected: 1\nlast insert id: 1\n"; out != want {
		t.Fatalf("got %q want %q", out, want)
	}

	out = run(t, "--base-url", s.URL, "query", "-p", "18", "SELECT name AS n FROM users WHERE age > ?")
	got := []map[string]any{}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("%s: %s", err, out)
	}
	want := []map[string]any{{"n": "Ann", "_age": float64(30), "_id": float64(1)}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v want %#v", got, want)
	}
}

func TestInitCommand(t *testing.T) {
	p := filepath.Join(t.TempDir(), "restsql.yaml")
	out := run(t, "--config", p, "--base-url", "https://example.com", "init")
	if !strings.Contains(out, p) {
		t.Fatalf("got %q", out)
	}
	cfg, err := config.Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BaseURL != "https://example.com" {
		t.Fatalf("got base url %s", cfg.BaseURL)
	}
	if err := newApp().Run(context.Background(), []string{"restsql", "--config", p, "init"}); err == nil {
		t.Fatal("init should not overwrite a config")
	}
	if _, err := os.Stat(p); err != nil {
		t.Fatal(err)
	}
}
