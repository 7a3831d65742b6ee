package sexpr

import (
	"errors"
	"testing"
)

func TestParse_TextLayerRoundTrip(t *testing.T) {
	src := `(page 0 0 2550 3300 (line 10 20 50 70 (word 10 20 30 70 "Hello") (word 35 20 50 70 "w\303\263rld")))`
	v, err := Parse(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l, ok := v.(List)
	if !ok {
		t.Fatalf("expected List, got %T", v)
	}
	if l[0] != Symbol("page") {
		t.Errorf("expected page symbol, got %v", l[0])
	}
	if l[3] != Int(2550) {
		t.Errorf("expected 2550, got %v", l[3])
	}
	word := l[5].(List)[6].(List)
	if word[5] != String("wórld") {
		t.Errorf("expected octal escapes decoded as UTF-8, got %q", word[5])
	}

	again, err := Parse(Format(v))
	if err != nil {
		t.Fatalf("reparse failed: %v", err)
	}
	if !Equal(v, again) {
		t.Errorf("expected round trip to be identical:\n%s\n%s", Format(v), Format(again))
	}
}

func TestFormat_Escapes(t *testing.T) {
	tests := []struct {
		in   Value
		want string
	}{
		{String("a\"b"), `"a\"b"`},
		{String("tab\there"), `"tab\there"`},
		{String("back\\slash"), `"back\\slash"`},
		{String("\x01"), `"\001"`},
		{String("zażółć"), `"zażółć"`},
		{List{Symbol("bookmarks")}, `(bookmarks)`},
		{List{}, `()`},
		{nil, `()`},
		{Int(-4), `-4`},
	}
	for _, tt := range tests {
		if got := Format(tt.in); got != tt.want {
			t.Errorf("Format(%#v): expected %s, got %s", tt.in, tt.want, got)
		}
	}
}

func TestParse_Atoms(t *testing.T) {
	vals, err := ParseAll(`foo -12 +3 1x "s" |with space| ; trailing comment`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Value{Symbol("foo"), Int(-12), Int(3), Symbol("1x"), String("s"), Symbol("with space")}
	if len(vals) != len(want) {
		t.Fatalf("expected %d values, got %d", len(want), len(vals))
	}
	for i := range want {
		if !Equal(vals[i], want[i]) {
			t.Errorf("value %d: expected %#v, got %#v", i, want[i], vals[i])
		}
	}
}

func TestFormat_SymbolsReadBack(t *testing.T) {
	for _, v := range []Value{
		List{Symbol("a"), Symbol("b c")},
		List{Symbol("12")},
		List{Symbol("-7"), Symbol("")},
		List{Symbol("semi;colon"), Symbol("(paren"), Symbol(`quo"te`)},
		List{Symbol("a|b"), Symbol("1x"), Symbol("#1")},
	} {
		text := Format(v)
		back, err := Parse(text)
		if err != nil {
			t.Errorf("Parse(%s): unexpected error: %v", text, err)
			continue
		}
		if !Equal(v, back) {
			t.Errorf("expected %#v to read back from %s, got %#v", v, text, back)
		}
	}
	if got := Format(List{Symbol("b c"), Symbol("12")}); got != `(|b c| |12|)` {
		t.Errorf("expected (|b c| |12|), got %s", got)
	}
	if got := Format(Symbol("bookmarks")); got != "bookmarks" {
		t.Errorf("expected bare symbol, got %s", got)
	}
}

func TestParse_Errors(t *testing.T) {
	for _, src := range []string{`(a b`, `)`, `"open`, `(a) (b)`, ``, `"\400"`, `"\777"`} {
		_, err := Parse(src)
		var se *SyntaxError
		if !errors.As(err, &se) {
			t.Errorf("Parse(%q): expected SyntaxError, got %v", src, err)
		}
	}
}

func TestEqual(t *testing.T) {
	a := List{Symbol("x"), Int(1), List{String("s")}}
	if !Equal(a, Clone(a)) {
		t.Error("expected clone to be equal")
	}
	if Equal(a, List{Symbol("x"), Int(1), List{Symbol("s")}}) {
		t.Error("expected String and Symbol atoms to differ")
	}
	if Equal(Int(1), String("1")) {
		t.Error("expected Int and String to differ")
	}
	if !Equal(List(nil), List{}) {
		t.Error("expected nil and empty lists to be equal")
	}
}

func TestClone_Independent(t *testing.T) {
	a := List{Symbol("x"), List{Int(1)}}
	b := Clone(a).(List)
	b[1].(List)[0] = Int(2)
	if a[1].(List)[0] != Int(1) {
		t.Error("expected clone mutation not to affect the original")
	}
}
