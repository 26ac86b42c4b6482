package source

import (
	"reflect"
	"strings"
	"testing"
)

func TestOpenJSONL(t *testing.T) {
	path := writeTemp(t, "events.jsonl", strings.Join([]string{
		`{"user": "alice", "count": 3}`,
		``,
		`{"count": 2, "tags": ["a", "b"], "note": null}`,
		`{"user": "bob", "score": 1.5}`,
	}, "\n"))

	src, err := OpenJSONL(path)
	if err != nil {
		t.Fatalf("OpenJSONL: %v", err)
	}
	defer src.Close()

	wantCols := []string{"user", "count", "tags", "note", "score"}
	if !reflect.DeepEqual(src.Columns(), wantCols) {
		t.Errorf("Columns() = %v, want %v", src.Columns(), wantCols)
	}

	rows := collectRows(t, src)
	want := [][]string{
		{"alice", "3", "", "", ""},
		{"", "2", `["a","b"]`, "", ""},
		{"bob", "", "", "", "1.5"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %v, want %v", rows, want)
	}
}

func TestOpenJSONLBadLine(t *testing.T) {
	path := writeTemp(t, "bad.jsonl", "{\"ok\": 1}\nnot json\n")

	if _, err := OpenJSONL(path); err == nil {
		t.Fatal("OpenJSONL succeeded on malformed input, want error")
	} else if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error %q does not name the failing line", err)
	}
}

func TestOpenJSONLType(t *testing.T) {
	path := writeTemp(t, "one.ndjson", `{"a": true}`)

	src, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	if src.Type() != "jsonl" {
		t.Errorf("Type() = %q, want jsonl", src.Type())
	}
	rows := collectRows(t, src)
	if !reflect.DeepEqual(rows, [][]string{{"true"}}) {
		t.Errorf("rows = %v", rows)
	}
}
