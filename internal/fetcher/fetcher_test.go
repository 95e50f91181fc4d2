package fetcher

import (
	"encoding/json"
	"testing"
)

func TestCanonicalFlagID(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`"abc"`, `"abc"`},
		{`123`, `123`},
		{`{"b":2,"a":1}`, `{"a":1,"b":2}`},
	}
	for _, c := range cases {
		got, err := CanonicalFlagID(json.RawMessage(c.raw))
		if err != nil {
			t.Fatalf("CanonicalFlagID(%s): %v", c.raw, err)
		}
		if got != c.want {
			t.Errorf("CanonicalFlagID(%s) = %s, want %s", c.raw, got, c.want)
		}
	}
}

func TestCanonicalFlagIDRejectsMalformed(t *testing.T) {
	if _, err := CanonicalFlagID(json.RawMessage(`{not json`)); err == nil {
		t.Fatal("expected error for malformed flag-id")
	}
}
