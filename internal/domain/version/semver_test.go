package version

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"1.2.3", "1.2.3", false},
		{"v1.2.3", "1.2.3", false},
		{"0.0.0", "0.0.0", false},
		{"1.2.3-rc.1", "1.2.3-rc.1", false},
		{"1.2.3+build.5", "1.2.3+build.5", false},
		{" 1.2.3\n", "1.2.3", false},
		{"1.2", "", true},
		{"1", "", true},
		{"a.b.c", "", true},
		{"", "", true},
		{"1.2.3.4", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidVersion) {
					t.Errorf("error %v should wrap ErrInvalidVersion", err)
				}
				return
			}
			if got.String() != tt.want {
				t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseLenient(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"1.2.3", "1.2.3", false},
		{"1.2", "1.2.0", false},
		{"2", "2.0.0", false},
		{"v3.1", "3.1.0", false},
		{"not-a-version", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLenient(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLenient(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got.String() != tt.want {
				t.Errorf("ParseLenient(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestMustParsePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustParse should panic on invalid input")
		}
	}()
	MustParse("nope")
}

func TestSemanticVersion_Accessors(t *testing.T) {
	v := MustParse("4.5.6-beta")
	if v.Major() != 4 || v.Minor() != 5 || v.Patch() != 6 {
		t.Errorf("components = %d.%d.%d, want 4.5.6", v.Major(), v.Minor(), v.Patch())
	}
	if v.Prerelease() != "beta" {
		t.Errorf("Prerelease() = %q, want beta", v.Prerelease())
	}
	if v.IsZero() {
		t.Error("IsZero() = true for 4.5.6-beta")
	}
	if !Zero.IsZero() {
		t.Error("Zero.IsZero() = false")
	}
}

func TestSemanticVersion_Compare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.0", "2.0.0", -1},
		{"1.1.0", "1.0.9", 1},
		{"1.0.1", "1.0.2", -1},
		{"1.0.0-alpha", "1.0.0", -1},
		{"1.0.0", "1.0.0-alpha", 1},
		{"1.0.0-alpha", "1.0.0-beta", -1},
		{"1.0.0+a", "1.0.0+b", 0},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			if got := MustParse(tt.a).Compare(MustParse(tt.b)); got != tt.want {
				t.Errorf("Compare() = %d, want %d", got, tt.want)
			}
		})
	}

	if !MustParse("1.0.0").LessThan(MustParse("1.0.1")) {
		t.Error("LessThan() = false, want true")
	}
	if !MustParse("1.0.0+x").Equal(MustParse("1.0.0")) {
		t.Error("Equal() should ignore metadata")
	}
}
