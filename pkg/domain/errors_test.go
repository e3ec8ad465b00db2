package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_UnwrapsToKindSentinel(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		kind     Kind
	}{
		{"unauthenticated", ErrInvalidCredentials, ErrUnauthenticated, KindUnauthenticated},
		{"forbidden", Forbidden(SubsystemUserLifecycle, "no"), ErrForbidden, KindForbidden},
		{"not found", ErrUserNotFound, ErrNotFound, KindNotFound},
		{"bad request", ErrSelfDeletion, ErrBadRequest, KindBadRequest},
		{"conflict", ErrSlugTaken, ErrConflict, KindConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("handler: %w", tt.err)
			if !errors.Is(wrapped, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", wrapped, tt.sentinel)
			}
			if !errors.Is(wrapped, tt.err) {
				t.Errorf("errors.Is(%v, %v) = false", wrapped, tt.err)
			}
			if got := KindOf(wrapped); got != tt.kind {
				t.Errorf("KindOf() = %v, want %v", got, tt.kind)
			}
		})
	}
}

func TestKindOf_Unclassified(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindInternal {
		t.Errorf("KindOf() = %v, want %v", got, KindInternal)
	}
}

func TestSubsystemOf_DistinguishesForbiddenSources(t *testing.T) {
	lifecycle := Forbidden(SubsystemUserLifecycle, "admins can only create managers and clients")
	module := Forbidden(SubsystemModulePermission, "missing WRITE permission on FINANCIAL")

	if SubsystemOf(lifecycle) == SubsystemOf(module) {
		t.Error("lifecycle and module-permission denials must carry different subsystems")
	}
	if !errors.Is(lifecycle, ErrForbidden) || !errors.Is(module, ErrForbidden) {
		t.Error("both denials must unwrap to ErrForbidden")
	}
}
