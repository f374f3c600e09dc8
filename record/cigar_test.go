package record

import (
	"reflect"
	"testing"
)

func TestParseCigarString(t *testing.T) {
	cases := []struct {
		in   string
		want []CigarOp
	}{
		{"*", []CigarOp{}},
		{"4M", []CigarOp{{4, OpMatch}}},
		{"4M1I3M", []CigarOp{{4, OpMatch}, {1, OpInsert}, {3, OpMatch}}},
	}
	for _, c := range cases {
		got, err := ParseCigarString(c.in)
		if err != nil {
			t.Fatalf("ParseCigarString(%q): %v", c.in, err)
		}
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("ParseCigarString(%q) = %v, want %v", c.in, got, c.want)
		}
		if back := FormatCigarString(got); back != c.in && !(c.in == "*" && back == "*") {
			t.Errorf("FormatCigarString(ParseCigarString(%q)) = %q", c.in, back)
		}
	}
}

func TestParseCigarStringInvalid(t *testing.T) {
	for _, in := range []string{"", "M4", "4Q", "4"} {
		if _, err := ParseCigarString(in); err == nil {
			t.Errorf("ParseCigarString(%q): expected error", in)
		}
	}
}

// S6: packed CIGAR [0x00000040] (length 4, code 0 = match) decodes to
// [(match, 4)].
func TestCigarOpByCode(t *testing.T) {
	packed := uint32(0x00000040)
	length := packed >> 4
	code := packed & 0xF
	op, err := CigarOpByCode(code)
	if err != nil {
		t.Fatalf("CigarOpByCode: %v", err)
	}
	if op != OpMatch || length != 4 {
		t.Errorf("decoded (%c, %d), want (M, 4)", op, length)
	}
}

func TestReferenceAndQuerySpan(t *testing.T) {
	ops := []CigarOp{{4, OpMatch}, {2, OpInsert}, {3, OpDelete}, {1, OpSoftClip}}
	if got := ReferenceSpan(ops); got != 7 {
		t.Errorf("ReferenceSpan = %d, want 7", got)
	}
	if got := QuerySpan(ops); got != 7 {
		t.Errorf("QuerySpan = %d, want 7", got)
	}
}
