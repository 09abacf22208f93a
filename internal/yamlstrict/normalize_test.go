package yamlstrict

import "testing"

func TestParseValidDocument(t *testing.T) {
	v, err := Parse([]byte("name: example\ncount: 3\nenabled: true\nitems:\n  - a\n  - b\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	name, ok := v.Obj.Get("name")
	if !ok || name.Str != "example" {
		t.Fatalf("expected name=example, got %+v", name)
	}
}

func TestParseRejectsAnchor(t *testing.T) {
	_, err := Parse([]byte("base: &anchor\n  x: 1\nother:\n  y: 2\n"))
	assertKind(t, err, ErrAnchorAlias)
}

func TestParseRejectsAlias(t *testing.T) {
	_, err := Parse([]byte("base: &b\n  x: 1\nother: *b\n"))
	assertKind(t, err, ErrAnchorAlias)
}

func TestParseRejectsMergeKey(t *testing.T) {
	_, err := Parse([]byte("defaults: &d\n  x: 1\nitem:\n  <<: *d\n  y: 2\n"))
	assertKind(t, err, ErrAnchorAlias)
}

func TestParseRejectsFloat(t *testing.T) {
	_, err := Parse([]byte("ratio: 1.5\n"))
	assertKind(t, err, ErrFloatValue)
}

func TestParseRejectsDuplicateKey(t *testing.T) {
	_, err := Parse([]byte("a: 1\nb: 2\na: 3\n"))
	assertKind(t, err, ErrDuplicateKey)
}

func TestParseRejectsMultiDocument(t *testing.T) {
	_, err := Parse([]byte("a: 1\n---\nb: 2\n"))
	assertKind(t, err, ErrMultiDocument)
}

func TestParseRejectsCustomTag(t *testing.T) {
	_, err := Parse([]byte("stamp: !!timestamp 2024-01-01\n"))
	assertKind(t, err, ErrCustomTag)
}

func assertKind(t *testing.T, err error, want ErrorKind) {
	t.Helper()
	ye, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *yamlstrict.Error, got %T (%v)", err, err)
	}
	if ye.Kind != want {
		t.Fatalf("expected kind %s, got %s (%v)", want, ye.Kind, ye)
	}
}
