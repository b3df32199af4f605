package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainErrors_MatchTheirSentinels(t *testing.T) {
	cases := []struct {
		err      error
		sentinel error
		kind     ErrorKind
	}{
		{Oversize("big.png", MaxUploadBytes), ErrOversize, KindOversize},
		{InvalidParameter("width %q", "abc"), ErrInvalidParameter, KindInvalidParameter},
		{Unsupported("notes.txt"), ErrUnsupportedType, KindUnsupportedType},
		{DecodeFailure("broken.png", errors.New("bad header")), ErrDecodeFailure, KindDecodeFailure},
		{Internal(errors.New("boom")), ErrInternal, KindInternal},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			wrapped := fmt.Errorf("context: %w", tc.err)
			if !errors.Is(wrapped, tc.sentinel) {
				t.Fatalf("expected errors.Is to match %v", tc.sentinel)
			}
			if got := KindOf(wrapped); got != tc.kind {
				t.Fatalf("expected kind %s, got %s", tc.kind, got)
			}
			if tc.err.Error() == "" {
				t.Fatalf("error message should not be empty")
			}
		})
	}
}

func TestDomainErrors_AreDistinct(t *testing.T) {
	if errors.Is(Oversize("a", 1), ErrDecodeFailure) {
		t.Fatalf("oversize must not match decode failure")
	}
	if got := KindOf(errors.New("plain")); got != KindInternal {
		t.Fatalf("untyped errors should be internal, got %s", got)
	}
}

func TestDecodeFailure_UnwrapsCause(t *testing.T) {
	cause := errors.New("unexpected EOF")
	err := DecodeFailure("x.png", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable through Unwrap")
	}
}
