package canon

import (
	"testing"

	"github.com/assayhq/assay/internal/jsonstrict"
)

func TestDigestIndependentOfKeyOrderAndWhitespace(t *testing.T) {
	a := []byte(`{"b":1,"a":[1,2,3],"c":{"z":true,"y":null}}`)
	b := []byte("{\n  \"a\" : [1,2,3],\n  \"c\": {\"y\":null,\"z\":true},\n  \"b\":1\n}\n")

	da, _, err := FromJSON(a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	db, _, err := FromJSON(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if da != db {
		t.Fatalf("digests differ: %s vs %s", da, db)
	}
}

func TestDigestJSONAndYAMLAgree(t *testing.T) {
	j := []byte(`{"name":"pack-a","count":3,"tags":["x","y"]}`)
	y := []byte("tags:\n  - x\n  - y\nname: pack-a\ncount: 3\n")

	dj, _, err := FromJSON(j)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dy, _, err := FromYAML(y)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dj != dy {
		t.Fatalf("digests differ across syntaxes: %s vs %s", dj, dy)
	}
}

func TestDigestPrefixAndLength(t *testing.T) {
	d, _, err := FromJSON([]byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d) != len("sha256:")+64 {
		t.Fatalf("unexpected digest length: %q", d)
	}
	if d[:7] != "sha256:" {
		t.Fatalf("missing sha256: prefix: %q", d)
	}
}

func TestCompareUTF16OrdersSurrogatesAboveBMP(t *testing.T) {
	// RFC 8785's worked example: "€" sorts before "\U0001F600"
	// under UTF-16 code unit comparison even though the rune value of
	// the latter is larger.
	if compareUTF16("€", "\U0001F600") >= 0 {
		t.Fatalf("expected euro sign to sort before surrogate-pair rune")
	}
}

func TestWriteStringEscapesControlChars(t *testing.T) {
	v, err := Marshal(jsonstrict.String("a\tb"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(v) != `"a\tb"` {
		t.Fatalf("got %s", v)
	}
}
