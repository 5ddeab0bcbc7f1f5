package faults

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrTimeout         = errors.New("timeout")
	ErrUpstream        = errors.New("upstream failure")
	ErrUnsupported     = errors.New("unsupported operation")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later status classification. The marker
// should be one of the exported sentinel errors above. If err is already
// classified it is returned augmented with detail but not re-tagged, so a
// classification survives multiple layers unchanged.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if err != nil && Classified(err) {
		return fmt.Errorf("%s: %w", detail, err)
	}
	if marker == nil {
		marker = ErrUpstream
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classified reports whether err already carries one of the taxonomy markers.
func Classified(err error) bool {
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrUpstream) ||
		errors.Is(err, ErrUnsupported)
}

// StatusFor maps a classified error to the numeric status recorded on work
// items and surfaced to callers.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInvalidArgument):
		return 400
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrTimeout):
		return 408
	case errors.Is(err, ErrUnsupported):
		return 405
	default:
		return 502
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "operation failure"
	}
	return strings.Join(parts, ": ")
}
