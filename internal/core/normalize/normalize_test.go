package normalize

import "testing"

func TestKey(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"   ", ""},
		{"ACME Foods", "acme foods"},
		{"  Acme   Foods, Inc. ", "acme foods inc"},
		{"Nestlé Waters", "nestle waters"},
		{"Ｂｅｎ＆Ｊｅｒｒｙ", "ben and jerry"},
		{"Procter & Gamble", "procter and gamble"},
		{"c.h. robinson", "c h robinson"},
		{"bad\xffbyte", "badbyte"},
		{"zero\u200bwidth", "zerowidth"},
	}
	for _, c := range cases {
		if got := Key(c.in); got != c.want {
			t.Fatalf("Key(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestEqual(t *testing.T) {
	if !Equal("ACME FOODS", "acme  foods") {
		t.Fatalf("case and spacing should not matter")
	}
	if Equal("acme foods", "acme food") {
		t.Fatalf("different names must not collide")
	}
}
