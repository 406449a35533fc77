package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestProjdError_Error(t *testing.T) {
	tests := []struct {
		name      string
		err       *ProjdError
		wantParts []string
	}{
		{
			name:      "with cause",
			err:       New(WatchSetup, "cannot watch /a", errors.New("too many open files")),
			wantParts: []string{"WATCH_SETUP", "cannot watch /a", "too many open files"},
		},
		{
			name:      "without cause",
			err:       NewFileNotOpen("/a/b.ts"),
			wantParts: []string{"FILE_NOT_OPEN", `"/a/b.ts"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			for _, part := range tt.wantParts {
				if !strings.Contains(got, part) {
					t.Errorf("Error() = %q, want to contain %q", got, part)
				}
			}
		})
	}
}

func TestUnwrapAndCodeOf(t *testing.T) {
	root := errors.New("root cause")
	err := New(InternalError, "boom", root)
	if err.Unwrap() != root {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), root)
	}

	wrapped := fmt.Errorf("request failed: %w", NewProjectNotFound("/p/tsconfig.json"))
	if CodeOf(wrapped) != ProjectNotFound {
		t.Errorf("CodeOf = %v, want %v", CodeOf(wrapped), ProjectNotFound)
	}
	if !Is(wrapped, ProjectNotFound) {
		t.Error("Is should see through wrapping")
	}
	if CodeOf(errors.New("plain")) != InternalError {
		t.Error("plain errors map to InternalError")
	}
}

func TestHintsAndDetails(t *testing.T) {
	err := Newf(ReferenceCycle, "cycle a -> b -> a")
	if err.Hint == "" {
		t.Error("ReferenceCycle should carry a hint")
	}

	inv := NewInvalidRequest("line", "must be positive")
	details, ok := inv.Details.(map[string]string)
	if !ok || details["field"] != "line" {
		t.Errorf("Details = %#v", inv.Details)
	}
}
