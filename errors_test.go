// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package platform

import (
	"errors"
	"fmt"
	"testing"
)

func TestCreationError(t *testing.T) {
	err := NewCreationError(BackendWGPU, fmt.Errorf("%w: open adapter", ErrNoDevice))
	var ce *CreationError
	if !errors.As(err, &ce) || ce.Backend != BackendWGPU {
		t.Fatalf("NewCreationError() = %v", err)
	}
	if !errors.Is(err, ErrNoDevice) {
		t.Error("CreationError does not unwrap to its cause")
	}
	if want := "platform: create wgpu driver: platform: no suitable device found: open adapter"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	again := NewCreationError(BackendNoop, err)
	if again != err {
		t.Errorf("NewCreationError() rewrapped a CreationError: %v", again)
	}
}

func TestCommandError(t *testing.T) {
	tests := []struct {
		name  string
		err   *CommandError
		want  string
		fatal bool
	}{
		{
			name: "no handle",
			err:  &CommandError{Op: "EndFrame", Err: ErrInvalidCommand},
			want: "platform: EndFrame: platform: invalid command",
		},
		{
			name:  "fatal",
			err:   &CommandError{Op: "DestroyBuffer", Handle: 7, Err: ErrHandleDestroyed, Fatal: true},
			want:  "platform: DestroyBuffer (handle 7): platform: handle already destroyed [fatal]",
			fatal: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
			if got := IsFatal(fmt.Errorf("wrapped: %w", tt.err)); got != tt.fatal {
				t.Errorf("IsFatal() = %v, want %v", got, tt.fatal)
			}
			if !errors.Is(tt.err, tt.err.Err) {
				t.Error("CommandError does not unwrap to its cause")
			}
		})
	}
	if IsFatal(ErrHandleDestroyed) {
		t.Error("IsFatal(bare sentinel) = true")
	}
}
