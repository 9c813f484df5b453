package transformer

import (
	"errors"
	"testing"
)

func TestVerbForDefaults(t *testing.T) {
	cases := map[string]string{
		"INSERT": "POST",
		"update": "PUT",
		"Delete": "DELETE",
		"select": "GET",
	}
	m := NewMethodMap(nil)
	for op, want := range cases {
		t.Run(op, func(t *testing.T) {
			got, err := m.VerbFor(op)
			if err != nil {
				t.Fatalf("want no err got %s", err)
			}
			if got != want {
				t.Fatalf("got %s want %s", got, want)
			}
		})
	}
}

func TestVerbForUnsupported(t *testing.T) {
	for _, op := range []string{"CREATE", "REPLACE", ""} {
		t.Run(op, func(t *testing.T) {
			_, err := NewMethodMap(nil).VerbFor(op)
			if !errors.Is(err, ErrUnsupportedOperation) {
				t.Fatalf("want ErrUnsupportedOperation got %v", err)
			}
		})
	}
}

func TestVerbForReplacementMap(t *testing.T) {
	m := NewMethodMap(map[string]string{"insert": "put", "SELECT": "POST"})
	if got, err := m.VerbFor("INSERT"); err != nil || got != "PUT" {
		t.Fatalf("got %s %v want PUT", got, err)
	}
	if got, err := m.VerbFor("select"); err != nil || got != "POST" {
		t.Fatalf("got %s %v want POST", got, err)
	}
	if _, err := m.VerbFor("DELETE"); !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatalf("replacement map should drop defaults got %v", err)
	}
}
