package semver

import (
	"encoding/json"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Version
		wantErr bool
	}{
		{name: "single component", input: "1", want: Version{1, 0, 0}},
		{name: "two components", input: "2.3", want: Version{2, 3, 0}},
		{name: "three components", input: "1.2.3", want: Version{1, 2, 3}},
		{name: "zeros", input: "0.0.0", want: Version{0, 0, 0}},
		{name: "large components", input: "10.20.30", want: Version{10, 20, 30}},
		{name: "empty string", input: "", wantErr: true},
		{name: "letters", input: "a.b", wantErr: true},
		{name: "four components", input: "1.2.3.4", wantErr: true},
		{name: "trailing dot", input: "1.2.", wantErr: true},
		{name: "leading dot", input: ".1.2", wantErr: true},
		{name: "empty middle component", input: "1..2", wantErr: true},
		{name: "negative component", input: "1.-2.3", wantErr: true},
		{name: "plus sign", input: "+1.2.3", wantErr: true},
		{name: "spaces", input: " 1.2.3", wantErr: true},
		{name: "v prefix", input: "v1.2.3", wantErr: true},
		{name: "pre-release tag", input: "1.2.3-beta", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) = %v, expected error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want int
	}{
		{name: "equal", a: "1.2.3", b: "1.2.3", want: 0},
		{name: "patch greater", a: "1.2.3", b: "1.2.2", want: 1},
		{name: "patch less", a: "1.2.2", b: "1.2.3", want: -1},
		{name: "minor outranks patch", a: "1.3.0", b: "1.2.9", want: 1},
		{name: "major outranks minor", a: "2.0.0", b: "1.9.9", want: 1},
		{name: "defaulted components equal", a: "1", b: "1.0.0", want: 0},
		{name: "two components vs three", a: "2.3", b: "2.3.1", want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Parse(tt.a)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.a, err)
			}
			b, err := Parse(tt.b)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.b, err)
			}
			if got := a.Compare(b); got != tt.want {
				t.Errorf("Compare(%s, %s) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
			// Comparison must be antisymmetric.
			if got := b.Compare(a); got != -tt.want {
				t.Errorf("Compare(%s, %s) = %d, want %d", tt.b, tt.a, got, -tt.want)
			}
		})
	}
}

// TestCompareTransitive exercises ordering across every triple of a sorted
// sample: whenever a < b and b < c, a < c must hold.
func TestCompareTransitive(t *testing.T) {
	inputs := []string{
		"0.0.0", "0.0.1", "0.1.0", "0.9.9", "1", "1.0.1", "1.2.2",
		"1.2.3", "1.3", "2", "2.0.1", "3.1.4", "10.0.0",
	}

	versions := make([]Version, len(inputs))
	for i, s := range inputs {
		v, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", s, err)
		}
		versions[i] = v
	}

	for _, a := range versions {
		for _, b := range versions {
			for _, c := range versions {
				if a.Compare(b) < 0 && b.Compare(c) < 0 && a.Compare(c) >= 0 {
					t.Errorf("transitivity violated: %s < %s and %s < %s but Compare(%s, %s) = %d",
						a, b, b, c, a, c, a.Compare(c))
				}
			}
		}
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "1", want: "1.0.0"},
		{input: "2.3", want: "2.3.0"},
		{input: "1.2.3", want: "1.2.3"},
	}

	for _, tt := range tests {
		v, err := Parse(tt.input)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", tt.input, err)
		}
		if got := v.String(); got != tt.want {
			t.Errorf("Parse(%q).String() = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestJSON(t *testing.T) {
	data, err := json.Marshal(Version{1, 2, 3})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `"1.2.3"` {
		t.Errorf("Marshal = %s, want %q", data, `"1.2.3"`)
	}

	var v Version
	if err := json.Unmarshal([]byte(`"2.3"`), &v); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if (v != Version{2, 3, 0}) {
		t.Errorf("Unmarshal = %v, want 2.3.0", v)
	}

	if err := json.Unmarshal([]byte(`"nope"`), &v); err == nil {
		t.Error("expected error for malformed version string")
	}
}
