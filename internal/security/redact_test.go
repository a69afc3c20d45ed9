package security

import (
	"strings"
	"testing"
)

func TestRedactPatternMatches(t *testing.T) {
	key := "sk-ant-" + strings.Repeat("x", 24)
	in := "key is " + key + " please don't log it"
	out := Redact(in)
	if out == in {
		t.Fatal("expected pattern redaction to change the string")
	}
	if contains(out, key) {
		t.Fatal("secret still present after redaction")
	}
}

func TestRegistryExactSubstringRedaction(t *testing.T) {
	r := NewRegistry()
	r.Add("tok_abc123")
	r.Add("tok_abc123_extended_secret")

	out := r.Redact("value=tok_abc123_extended_secret and unrelated text stays")
	if contains(out, "tok_abc123_extended_secret") {
		t.Fatal("longer secret leaked")
	}
	if !contains(out, "unrelated text stays") {
		t.Fatal("unrelated text corrupted")
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
