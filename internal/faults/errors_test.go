package faults

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapTagsMarker(t *testing.T) {
	err := Wrap(ErrInvalidArgument, "broker", "check queue", "queue name is empty", nil)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid-argument classification, got %v", err)
	}
	if !strings.Contains(err.Error(), "check queue") {
		t.Fatalf("expected operation context in message, got %q", err.Error())
	}
}

func TestWrapDoesNotDoubleClassify(t *testing.T) {
	inner := Wrap(ErrNotFound, "itemstore", "read content", "no item row", nil)
	outer := Wrap(ErrUpstream, "pump", "load content", "", inner)
	if !errors.Is(outer, ErrNotFound) {
		t.Fatalf("inner classification lost: %v", outer)
	}
	if errors.Is(outer, ErrUpstream) {
		t.Fatalf("already-classified error was re-tagged: %v", outer)
	}
}

func TestWrapDefaultsToUpstream(t *testing.T) {
	err := Wrap(nil, "broker", "publish", "", errors.New("connection reset"))
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected upstream classification, got %v", err)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"invalid argument", Wrap(ErrInvalidArgument, "c", "o", "m", nil), 400},
		{"not found", Wrap(ErrNotFound, "c", "o", "m", nil), 404},
		{"timeout", Wrap(ErrTimeout, "c", "o", "m", nil), 408},
		{"unsupported", Wrap(ErrUnsupported, "c", "o", "m", nil), 405},
		{"unclassified", errors.New("boom"), 502},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StatusFor(tc.err); got != tc.want {
				t.Fatalf("StatusFor(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}
