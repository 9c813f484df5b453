package repl

import (
	"encoding/json"
	"testing"

	"github.com/lexiphanic/restdriver/transformer"
)

func TestPrint(t *testing.T) {
	repl := New(nil, "")
	columns := []string{"id", "name"}
	rows := []transformer.Row{
		{"id": json.Number("1"), "name": "gud name"},
		{"id": json.Number("2"), "name": "gudder name"},
		{"id": json.Number("3"), "name": "guddest name"},
		{"id": json.Number("4"), "name": nil},
		{"id": json.Number("5")},
	}
	result := repl.printRows(columns, rows)
	e := "" +
		" id | name         \n" +
		"----+--------------\n" +
		" 1  | gud name     \n" +
		" 2  | gudder name  \n" +
		" 3  | guddest name \n" +
		" 4  | NULL         \n" +
		" 5  | NULL         \n" +
		"(5 rows)\n"
	if result != e {
		t.Errorf("\nwant\n%s\ngot\n%s\n", e, result)
	}
}

func TestPrintEmpty(t *testing.T) {
	repl := New(nil, "")
	result := repl.printRows([]string{"n"}, []transformer.Row{})
	e := "" +
		" n \n" +
		"---\n" +
		"(0 rows)\n"
	if result != e {
		t.Errorf("\nwant\n%s\ngot\n%s\n", e, result)
	}
}

func TestFormatCell(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"s", "s"},
		{json.Number("1.5"), "1.5"},
		{true, "true"},
		{map[string]any{"_a": json.Number("1")}, `{"_a":1}`},
		{[]any{"x"}, `["x"]`},
	}
	for _, c := range cases {
		got := formatCell(c.in)
		if got == nil || *got != c.want {
			t.Errorf("got %v want %s", got, c.want)
		}
	}
	if formatCell(nil) != nil {
		t.Error("want nil for NULL")
	}
}

func TestDescribeRequest(t *testing.T) {
	req, err := transformer.New(nil).Transform("INSERT INTO users (name) VALUES (?)", []any{"Ann"})
	if err != nil {
		t.Fatal(err)
	}
	want := "POST users\n{\"name\":\"Ann\"}"
	if got := describeRequest(req); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
