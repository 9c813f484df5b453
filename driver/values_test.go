package driver

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/lexiphanic/restdriver/transformer"
)

func TestToDriverValue(t *testing.T) {
	cases := []struct {
		in   any
		want any
	}{
		{nil, nil},
		{"s", "s"},
		{true, true},
		{json.Number("7"), int64(7)},
		{json.Number("1.5"), 1.5},
		{map[string]any{"_a": json.Number("1")}, []byte(`{"_a":1}`)},
		{[]any{"x", nil}, []byte(`["x",null]`)},
	}
	for _, c := range cases {
		got, err := toDriverValue(c.in)
		if err != nil {
			t.Fatalf("%#v: want no err got %s", c.in, err)
		}
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("got %#v want %#v", got, c.want)
		}
	}
	if _, err := toDriverValue(struct{}{}); err == nil {
		t.Fatal("want err for unsupported value")
	}
}

func TestLastInsertId(t *testing.T) {
	cases := []struct {
		rows    []transformer.Row
		want    int64
		wantErr bool
	}{
		{[]transformer.Row{{"_id": json.Number("12")}, {"_id": json.Number("13")}}, 12, false},
		{[]transformer.Row{{"_id": "abc"}}, 0, true},
		{[]transformer.Row{{"_id": json.Number("1.5")}}, 0, true},
		{[]transformer.Row{{"n": json.Number("1")}}, 0, true},
		{nil, 0, true},
	}
	for _, c := range cases {
		r := &restResult{rows: c.rows}
		got, err := r.LastInsertId()
		if c.wantErr {
			if !errors.Is(err, ErrNoInsertID) {
				t.Errorf("%v: want ErrNoInsertID got %v", c.rows, err)
			}
			continue
		}
		if err != nil || got != c.want {
			t.Errorf("%v: got %d %v want %d", c.rows, got, err, c.want)
		}
		if n, _ := r.RowsAffected(); n != int64(len(c.rows)) {
			t.Errorf("got rows affected %d", n)
		}
	}
}

func TestNamedToAny(t *testing.T) {
	got, err := namedToAny([]driver.NamedValue{{Ordinal: 2, Value: "b"}, {Ordinal: 1, Value: int64(1)}})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []any{int64(1), "b"}) {
		t.Fatalf("got %#v", got)
	}
}
