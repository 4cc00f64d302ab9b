package textnorm

import "testing"

func TestAMI(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"so i think a b c, ok?", "SO I. THINK A. B. C. , OK ?"},
		{"Hello world.", "HELLO WORLD ."},
		{"  yeah   yeah  ", "YEAH YEAH"},
		{"the t v remote", "THE T. V. REMOTE"},
		{"", ""},
		{"It's fine!", "IT'S. FINE !"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := AMI(tt.in); got != tt.want {
				t.Errorf("AMI(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoose(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello, World!", "hello world"},
		{"  The   Cat  sat. ", "the cat sat"},
		{"don't", "dont"},
	}
	for _, tt := range tests {
		if got := Loose(tt.in); got != tt.want {
			t.Errorf("Loose(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"", "identity", "ami", "loose"} {
		if _, err := Lookup(name); err != nil {
			t.Errorf("Lookup(%q) error = %v", name, err)
		}
	}
	fn, _ := Lookup("")
	if got := fn("Mixed Case, kept."); got != "Mixed Case, kept." {
		t.Errorf("default normalizer changed input: %q", got)
	}
	if _, err := Lookup("klingon"); err == nil {
		t.Error("Lookup(unknown) should fail")
	}
}

func TestNormalizersAreDeterministic(t *testing.T) {
	in := "Is it A.M. or p.m., Bob?"
	for _, name := range Names() {
		fn, _ := Lookup(name)
		if a, b := fn(in), fn(in); a != b {
			t.Errorf("%s not deterministic: %q vs %q", name, a, b)
		}
	}
}
