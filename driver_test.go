// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package platform

import (
	"errors"
	"testing"
)

func TestCheckProgramDesc(t *testing.T) {
	vs := Stage{Source: "vs"}
	fs := Stage{Source: "fs"}
	cs := Stage{Source: "cs"}
	tests := []struct {
		name string
		desc *ProgramDesc
		ok   bool
	}{
		{"nil", nil, false},
		{"empty", &ProgramDesc{}, false},
		{"fragment only", &ProgramDesc{Fragment: fs}, false},
		{"vertex only", &ProgramDesc{Vertex: vs}, true},
		{"render", &ProgramDesc{Vertex: vs, Fragment: fs}, true},
		{"compute", &ProgramDesc{Compute: cs}, true},
		{"mixed", &ProgramDesc{Vertex: vs, Compute: cs}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckProgramDesc(tt.desc)
			if tt.ok && err != nil {
				t.Errorf("CheckProgramDesc() = %v, want nil", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidCommand) {
				t.Errorf("CheckProgramDesc() = %v, want ErrInvalidCommand", err)
			}
		})
	}
}

func TestStageEntry(t *testing.T) {
	if got := (Stage{Source: "x"}).Entry(DefaultVertexEntry); got != "vs_main" {
		t.Errorf("Entry() = %q, want vs_main", got)
	}
	if got := (Stage{Source: "x", EntryPoint: "main"}).Entry(DefaultVertexEntry); got != "main" {
		t.Errorf("Entry() = %q, want main", got)
	}
}

func TestStats(t *testing.T) {
	var s Stats
	s.Kinds[KindBuffer].Live = 2
	s.Kinds[KindProgram].Live = 3
	if s.Live() != 5 {
		t.Errorf("Live() = %d, want 5", s.Live())
	}
	if s.Kind(KindProgram).Live != 3 {
		t.Errorf("Kind(program).Live = %d", s.Kind(KindProgram).Live)
	}
	if len(ResourceKinds) != NumResourceKinds {
		t.Errorf("ResourceKinds has %d entries, want %d", len(ResourceKinds), NumResourceKinds)
	}
	if KindSampler.String() != "sampler" || ResourceKind(9).String() != "ResourceKind(9)" {
		t.Error("ResourceKind.String() mismatch")
	}
	if !NullHandle.IsNull() || Handle(1).IsNull() {
		t.Error("Handle.IsNull() mismatch")
	}
}
