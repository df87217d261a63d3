// Copyright 2026 The Skirmish Authors
// SPDX-License-Identifier: Apache-2.0

package game

import (
	"strings"
	"testing"
)

func TestSerialize_RoundsCoordinates(t *testing.T) {
	unit := NewUnit(3, 10.6, 19.4, "p1")
	unit.MoveTo(99.5, 0)

	dto := serialize(unit)

	if dto.X != 11 || dto.Y != 19 {
		t.Fatalf("expected rounded position (11, 19), got (%d, %d)", dto.X, dto.Y)
	}
	if dto.TX != 100 || dto.TY != 0 {
		t.Fatalf("expected rounded target (100, 0), got (%d, %d)", dto.TX, dto.TY)
	}
	if dto.Owner != "p1" || dto.HP != UnitMaxHP {
		t.Fatalf("unexpected dto %+v", dto)
	}
}

func TestMaterialize_RestoresUnit(t *testing.T) {
	dto := UnitDTO{ID: 5, X: 40, Y: 50, TX: 60, TY: 70, HP: 80, Owner: "p2"}

	unit := materialize(dto)

	if unit.ID != 5 || unit.X != 40 || unit.Y != 50 {
		t.Fatalf("unexpected unit %+v", unit)
	}
	if unit.TargetX != 60 || unit.TargetY != 70 {
		t.Fatalf("expected target (60, 70), got (%v, %v)", unit.TargetX, unit.TargetY)
	}
	if unit.HP != 80 || unit.MaxHP != UnitMaxHP || unit.Owner != "p2" {
		t.Fatalf("unexpected unit %+v", unit)
	}
}

func TestSnapshot_Validate(t *testing.T) {
	valid := Snapshot{Tick: 4, Units: []UnitDTO{
		{ID: 1, X: 10, Y: 10, HP: 100, Owner: "p1"},
		{ID: 2, X: 20, Y: 20, HP: 50, Owner: "p2"},
	}}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid snapshot, got %v", err)
	}

	empty := Snapshot{Tick: 8}
	if err := empty.Validate(); err != nil {
		t.Fatalf("expected empty unit list to be valid, got %v", err)
	}

	tests := []struct {
		name     string
		snapshot Snapshot
		wantErr  string
	}{
		{
			"negative tick",
			Snapshot{Tick: -1},
			"tick",
		},
		{
			"non-positive unit id",
			Snapshot{Units: []UnitDTO{{ID: 0, HP: 1, Owner: "p1"}}},
			"id",
		},
		{
			"duplicate unit id",
			Snapshot{Units: []UnitDTO{
				{ID: 1, HP: 1, Owner: "p1"},
				{ID: 1, HP: 1, Owner: "p2"},
			}},
			"twice",
		},
		{
			"missing owner",
			Snapshot{Units: []UnitDTO{{ID: 1, HP: 1}}},
			"owner",
		},
		{
			"negative hp",
			Snapshot{Units: []UnitDTO{{ID: 1, HP: -5, Owner: "p1"}}},
			"hp",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.snapshot.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}
