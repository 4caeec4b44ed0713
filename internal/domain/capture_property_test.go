package domain

import (
	"net/http"
	"testing"

	"pgregory.net/rapid"
)

// TestProperty_FormatHeadersDeterministic verifies that header rendering does
// not depend on map iteration order: the same header set always produces the
// same string, and the body is always the raw input behind the fixed prefix.
func TestProperty_FormatHeadersDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		names := rapid.SliceOfN(rapid.StringMatching(`[A-Za-z][A-Za-z0-9-]{0,15}`), 0, 8).Draw(t, "names")
		h := http.Header{}
		for i, name := range names {
			h.Add(name, rapid.StringN(0, 20, -1).Draw(t, "value"+string(rune('a'+i))))
		}
		body := rapid.String().Draw(t, "body")

		first := NewCapturedRequest(http.MethodPut, h, body)
		for i := 0; i < 3; i++ {
			again := NewCapturedRequest(http.MethodPut, h.Clone(), body)
			if again != first {
				t.Fatalf("capture not deterministic:\n  %+v\n  %+v", first, again)
			}
		}
		if first.Body != "Body: "+body {
			t.Fatalf("Body = %q, want prefix + %q", first.Body, body)
		}
	})
}
