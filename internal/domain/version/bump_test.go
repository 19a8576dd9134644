package version

import (
	"errors"
	"testing"
)

func TestBumpType_Ordering(t *testing.T) {
	if !(BumpPatch < BumpMinor && BumpMinor < BumpMajor) {
		t.Fatal("bump types must be ordered patch < minor < major")
	}
	if BumpNone >= BumpPatch {
		t.Error("BumpNone must sort below every valid bump")
	}
}

func TestBumpType_IsValid(t *testing.T) {
	for _, bt := range []BumpType{BumpMajor, BumpMinor, BumpPatch} {
		if !bt.IsValid() {
			t.Errorf("IsValid() = false for %s, want true", bt)
		}
	}
	for _, bt := range []BumpType{BumpNone, BumpType(9)} {
		if bt.IsValid() {
			t.Errorf("IsValid() = true for %d, want false", bt)
		}
	}
}

func TestParseBumpType(t *testing.T) {
	tests := []struct {
		input   string
		wantBT  BumpType
		wantErr bool
	}{
		{"major", BumpMajor, false},
		{"minor", BumpMinor, false},
		{"patch", BumpPatch, false},
		{"none", BumpNone, true},
		{"", BumpNone, true},
		{"MAJOR", BumpNone, true},
		{"prerelease", BumpNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			bt, err := ParseBumpType(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBumpType(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidBumpType) {
				t.Errorf("error %v should wrap ErrInvalidBumpType", err)
			}
			if bt != tt.wantBT {
				t.Errorf("ParseBumpType(%q) = %v, want %v", tt.input, bt, tt.wantBT)
			}
		})
	}
}

func TestBumpType_TextRoundTrip(t *testing.T) {
	for _, bt := range AllBumpTypes() {
		text, err := bt.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v) error = %v", bt, err)
		}
		var got BumpType
		if err := got.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q) error = %v", text, err)
		}
		if got != bt {
			t.Errorf("round trip = %v, want %v", got, bt)
		}
	}

	if _, err := BumpNone.MarshalText(); err == nil {
		t.Error("MarshalText(BumpNone) should fail")
	}
}

func TestMaxBump(t *testing.T) {
	tests := []struct {
		name  string
		bumps []BumpType
		want  BumpType
	}{
		{"empty", nil, BumpNone},
		{"single", []BumpType{BumpMinor}, BumpMinor},
		{"patch and minor", []BumpType{BumpPatch, BumpMinor}, BumpMinor},
		{"order independent", []BumpType{BumpMajor, BumpPatch, BumpMinor}, BumpMajor},
		{"duplicates", []BumpType{BumpPatch, BumpPatch}, BumpPatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaxBump(tt.bumps...); got != tt.want {
				t.Errorf("MaxBump(%v) = %v, want %v", tt.bumps, got, tt.want)
			}
		})
	}
}

func TestSemanticVersion_Bump(t *testing.T) {
	tests := []struct {
		name    string
		version string
		bump    BumpType
		want    string
	}{
		{"major", "1.2.3", BumpMajor, "2.0.0"},
		{"major from zero", "0.1.0", BumpMajor, "1.0.0"},
		{"minor", "1.2.3", BumpMinor, "1.3.0"},
		{"minor from zero", "0.0.0", BumpMinor, "0.1.0"},
		{"patch", "1.2.3", BumpPatch, "1.2.4"},
		{"patch large", "1.2.99", BumpPatch, "1.2.100"},
		{"drops prerelease", "1.2.3-alpha", BumpPatch, "1.2.4"},
		{"drops metadata", "1.2.3+build", BumpMinor, "1.3.0"},
		{"none is identity", "1.2.3", BumpNone, "1.2.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MustParse(tt.version).Bump(tt.bump)
			if got.String() != tt.want {
				t.Errorf("%s.Bump(%v) = %v, want %v", tt.version, tt.bump, got, tt.want)
			}
		})
	}
}

func TestSemanticVersion_BumpPatchThenMinorResetsPatch(t *testing.T) {
	for _, s := range []string{"0.0.0", "1.2.3", "4.0.9"} {
		v := MustParse(s)
		got := v.Bump(BumpPatch).Bump(BumpMinor)
		if got.Patch() != 0 || got.Minor() != v.Minor()+1 || got.Major() != v.Major() {
			t.Errorf("bump(bump(%s, patch), minor) = %v", s, got)
		}
	}
}

func TestSemanticVersion_BumpImmutability(t *testing.T) {
	original := MustParse("1.2.3")
	_ = original.Bump(BumpMajor)
	if original.String() != "1.2.3" {
		t.Errorf("original version was modified: got %v, want 1.2.3", original)
	}
}
