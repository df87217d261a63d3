// Copyright 2026 The Skirmish Authors
// SPDX-License-Identifier: Apache-2.0

package game

import "math"

// UnitSpeed is the distance a unit covers per simulation tick.
const UnitSpeed = 2.0

// UnitMaxHP is the starting and maximum health of a spawned unit.
const UnitMaxHP = 100

// Unit is one simulation entity. Identifiers are assigned monotonically
// by the authoritative side only. Selected is local UI state and never
// crosses the wire.
type Unit struct {
	ID      int
	X, Y    float64
	TargetX float64
	TargetY float64
	HP      int
	MaxHP   int
	Owner   string

	// Selected marks the unit in the local selection. Not synchronized.
	Selected bool
}

// NewUnit spawns a unit at the given position with a full health bar
// and no movement order (target equals position).
func NewUnit(id int, x, y float64, owner string) *Unit {
	return &Unit{
		ID:      id,
		X:       x,
		Y:       y,
		TargetX: x,
		TargetY: y,
		HP:      UnitMaxHP,
		MaxHP:   UnitMaxHP,
		Owner:   owner,
	}
}

// MoveTo sets the unit's movement target. The unit reaches it over
// subsequent Step calls.
func (u *Unit) MoveTo(x, y float64) {
	u.TargetX = x
	u.TargetY = y
}

// Step advances the unit one tick toward its target at UnitSpeed. When
// the remaining distance is not more than one step, the position snaps
// exactly onto the target, so a unit at its target stays put and never
// oscillates around it.
func (u *Unit) Step() {
	dx := u.TargetX - u.X
	dy := u.TargetY - u.Y
	distance := math.Hypot(dx, dy)

	if distance > UnitSpeed {
		u.X += dx / distance * UnitSpeed
		u.Y += dy / distance * UnitSpeed
	} else {
		u.X = u.TargetX
		u.Y = u.TargetY
	}
}

// AtTarget reports whether the unit has reached its movement target.
func (u *Unit) AtTarget() bool {
	return u.X == u.TargetX && u.Y == u.TargetY
}
