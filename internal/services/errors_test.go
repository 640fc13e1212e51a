package services

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("disk full")
	err := Wrap(ErrTransient, "extract_text", "write pages", "temp dir", base)
	if !errors.Is(err, ErrTransient) {
		t.Fatal("expected wrapped error to match ErrTransient")
	}
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped error to match the underlying error")
	}
	for _, part := range []string{"extract_text", "write pages", "temp dir", "disk full"} {
		if !strings.Contains(err.Error(), part) {
			t.Errorf("error %q missing %q", err, part)
		}
	}
}

func TestWrapNilMarkerDefaultsTransient(t *testing.T) {
	err := Wrap(nil, "embed", "", "", errors.New("connection refused"))
	if !errors.Is(err, ErrTransient) {
		t.Fatal("nil marker should default to ErrTransient")
	}
}

func TestWrapNilInner(t *testing.T) {
	err := Wrap(ErrValidation, "ingest", "check payload", "unknown kind", nil)
	if !errors.Is(err, ErrValidation) {
		t.Fatal("expected ErrValidation")
	}
	if !strings.Contains(err.Error(), "unknown kind") {
		t.Errorf("error %q missing message", err)
	}
}

func TestIsPermanent(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{Wrap(ErrValidation, "chunk", "", "", nil), true},
		{Wrap(ErrConfiguration, "ocr_cloud", "", "missing api key", nil), true},
		{Wrap(ErrNotFound, "extract_text", "", "", nil), true},
		{Wrap(ErrTransient, "embed", "", "", nil), false},
		{Wrap(ErrExternalTool, "ocr_local", "", "", errors.New("exit 1")), false},
		{Wrap(ErrTimeout, "categorize", "", "", nil), false},
		{errors.New("bare"), false},
	}
	for _, tc := range cases {
		if got := IsPermanent(tc.err); got != tc.want {
			t.Errorf("IsPermanent(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
