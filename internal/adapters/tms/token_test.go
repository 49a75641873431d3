package tms

import (
	"testing"

	perr "detention/internal/platform/errors"
)

func TestExtractToken(t *testing.T) {
	cases := []struct {
		markup, want string
	}{
		{`<meta name="session-token" content="aaa">`, "aaa"},
		{`<meta content='bbb' name='csrf-token'>`, "bbb"},
		{`<script>window.app = {"sessionToken": "ccc"}</script>`, "ccc"},
		{`<script>sessionToken = 'ddd';</script>`, "ddd"},
		{`<form><input type="hidden" name="__session" value="eee"></form>`, "eee"},
	}
	for _, c := range cases {
		got, err := ExtractToken(c.markup)
		if err != nil || got != c.want {
			t.Fatalf("ExtractToken(%q) = %q, %v", c.markup, got, err)
		}
	}
	if _, err := ExtractToken("<html></html>"); !perr.IsCode(err, perr.ErrorCodeJSON) {
		t.Fatalf("missing token should be a parse error, got %v", err)
	}
}
