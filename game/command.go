// Copyright 2026 The Skirmish Authors
// SPDX-License-Identifier: Apache-2.0

package game

import (
	"encoding/json"
	"fmt"
)

// CommandKind enumerates the actions a player can request. The set is
// closed: decoding rejects anything else, so adding a kind is a
// compile-visible change here and in Engine.applyCommand.
type CommandKind string

// KindMove orders units toward a map position.
const KindMove CommandKind = "move"

// Command is one requested action with its parameters. The acting
// player is implicit — it is whoever the command arrived from, never a
// field a sender could forge.
//
// The wire shape is a JSON array: ["move", x, y] orders every unit the
// acting player owns; ["move", x, y, id...] names specific units, and
// ids the acting player does not own are no-ops for those units.
type Command struct {
	Kind CommandKind

	// X, Y is the target position for KindMove.
	X, Y int

	// UnitIDs optionally restricts the command to named units. Empty
	// means all of the acting player's units.
	UnitIDs []int
}

// MoveCommand builds a move order toward (x, y) for the given units
// (none means every owned unit).
func MoveCommand(x, y int, unitIDs ...int) Command {
	return Command{Kind: KindMove, X: x, Y: y, UnitIDs: unitIDs}
}

// MarshalJSON encodes the command in its array wire shape.
func (c Command) MarshalJSON() ([]byte, error) {
	if c.Kind != KindMove {
		return nil, fmt.Errorf("cannot encode command of unknown kind %q", c.Kind)
	}
	fields := make([]any, 0, 3+len(c.UnitIDs))
	fields = append(fields, string(c.Kind), c.X, c.Y)
	for _, id := range c.UnitIDs {
		fields = append(fields, id)
	}
	return json.Marshal(fields)
}

// UnmarshalJSON decodes the array wire shape, validating the kind tag
// and the argument count for that kind.
func (c *Command) UnmarshalJSON(data []byte) error {
	var fields []json.Number
	// Decode in two steps: the tag is a string, the rest are numbers.
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("command is not an array: %w", err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("command array is empty")
	}

	var kind string
	if err := json.Unmarshal(raw[0], &kind); err != nil {
		return fmt.Errorf("command tag is not a string: %w", err)
	}

	fields = make([]json.Number, 0, len(raw)-1)
	for _, element := range raw[1:] {
		var number json.Number
		if err := json.Unmarshal(element, &number); err != nil {
			return fmt.Errorf("command argument %s is not a number: %w", element, err)
		}
		fields = append(fields, number)
	}

	switch CommandKind(kind) {
	case KindMove:
		if len(fields) < 2 {
			return fmt.Errorf("move command needs x and y, got %d arguments", len(fields))
		}
		x, err := fields[0].Int64()
		if err != nil {
			return fmt.Errorf("move x: %w", err)
		}
		y, err := fields[1].Int64()
		if err != nil {
			return fmt.Errorf("move y: %w", err)
		}
		command := Command{Kind: KindMove, X: int(x), Y: int(y)}
		for _, field := range fields[2:] {
			id, err := field.Int64()
			if err != nil {
				return fmt.Errorf("move unit id: %w", err)
			}
			command.UnitIDs = append(command.UnitIDs, int(id))
		}
		*c = command
		return nil
	default:
		return fmt.Errorf("unknown command kind %q", kind)
	}
}
