// Copyright 2026 The Skirmish Authors
// SPDX-License-Identifier: Apache-2.0

package game

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/skirmish-game/skirmish/lib/clock"
)

// Role selects which half of the sync protocol an engine runs. The two
// are mutually exclusive per running instance.
type Role int

const (
	// RoleHost owns the canonical simulation and broadcasts snapshots.
	RoleHost Role = iota

	// RoleFollower mirrors the host's state and forwards its local
	// commands instead of executing them.
	RoleFollower
)

func (r Role) String() string {
	if r == RoleHost {
		return "host"
	}
	return "follower"
}

// ChannelClass names one of the two logical transports between a pair
// of peers. The values double as the data channel labels on the wire.
type ChannelClass string

const (
	// ChannelReliable is ordered with guaranteed delivery. Snapshots
	// travel here.
	ChannelReliable ChannelClass = "reliable"

	// ChannelFast is unordered and may drop messages. Command input
	// travels here; a lost command is superseded by the next one.
	ChannelFast ChannelClass = "fast"
)

// Sender is the engine's one-way door to the network. Sends are
// fire-and-forget: implementations drop silently when a channel is not
// open, and the engine never waits on them.
type Sender interface {
	// Broadcast transmits to every connected peer.
	Broadcast(channel ChannelClass, payload []byte)

	// SendToHost transmits to the authoritative peer.
	SendToHost(channel ChannelClass, payload []byte)
}

// Player is a session participant as the simulation sees it.
type Player struct {
	ID    string
	Color string
}

// TickInterval is the simulation advance cadence. 20 simulation ticks
// per second with a snapshot every snapshotEvery ticks gives followers
// five full states per second to interpolate between.
const TickInterval = 50 * time.Millisecond

// snapshotEvery is the advance-to-broadcast ratio: every 4th tick the
// host serializes the unit set and broadcasts it.
const snapshotEvery = 4

// Starting roster geometry. Successive players spawn far enough apart
// that rosters never overlap, so collision between fresh spawns needs
// no resolution.
const (
	rosterSize    = 3
	rosterSpacing = 30
	spawnBaseX    = 100
	spawnBaseY    = 100
	spawnStrideX  = 100
	spawnStrideY  = 80
)

// Engine is the state sync engine. In RoleHost it owns the canonical
// Unit and Player collections, applies commands, advances the
// simulation on a fixed cadence, and broadcasts snapshots. In
// RoleFollower it forwards local commands to the host and reconciles
// its unit set against incoming snapshots by wholesale replacement.
//
// All methods are safe for concurrent use; the tick loop and network
// delivery run on different goroutines.
type Engine struct {
	role   Role
	selfID string
	hostID string
	sender Sender
	clk    clock.Clock
	logger *slog.Logger

	mu         sync.Mutex
	units      map[int]*Unit
	players    map[string]*Player
	tick       int
	nextUnitID int

	// lastSnapshotTick gates follower reconciliation: snapshots older
	// than the last applied one are ignored.
	lastSnapshotTick int
}

// New creates an engine. selfID is the local player identifier
// assigned by the relay; hostID identifies the authoritative peer, the
// only sender whose snapshots a follower will apply.
func New(role Role, selfID, hostID string, sender Sender, clk clock.Clock, logger *slog.Logger) *Engine {
	return &Engine{
		role:             role,
		selfID:           selfID,
		hostID:           hostID,
		sender:           sender,
		clk:              clk,
		logger:           logger,
		units:            make(map[int]*Unit),
		players:          make(map[string]*Player),
		nextUnitID:       1,
		lastSnapshotTick: -1,
	}
}

// Role returns the engine's role.
func (e *Engine) Role() Role { return e.role }

// SelfID returns the local player identifier.
func (e *Engine) SelfID() string { return e.selfID }

// Run drives the simulation until ctx is cancelled. The loop wakes on
// a clock ticker and never blocks on network conditions; a slow peer
// cannot stall the simulation.
func (e *Engine) Run(ctx context.Context) {
	ticker := e.clk.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Advance()
		}
	}
}

// Advance performs one simulation step. On the host this is the
// authoritative tick: the counter increments, every unit steps toward
// its target, and every snapshotEvery-th tick the full unit set is
// broadcast on the reliable channel. On a follower it only steps units
// locally — targets and speed are known, so follower state stays
// usable for continuous rendering between snapshots.
func (e *Engine) Advance() {
	e.mu.Lock()

	if e.role == RoleFollower {
		for _, unit := range e.units {
			unit.Step()
		}
		e.mu.Unlock()
		return
	}

	e.tick++
	for _, unit := range e.units {
		unit.Step()
	}

	var payload []byte
	if e.tick%snapshotEvery == 0 {
		snapshot := e.snapshotLocked()
		encoded, err := EncodeSnapshot(snapshot)
		if err != nil {
			e.logger.Error("encoding snapshot failed", "tick", e.tick, "error", err)
		} else {
			payload = encoded
		}
	}
	e.mu.Unlock()

	// Broadcast outside the lock: the sender may fan out to many
	// peers and must not extend the simulation critical section.
	if payload != nil {
		e.sender.Broadcast(ChannelReliable, payload)
	}
}

// AddPlayer registers a player that became ready and spawns its
// starting roster at an offset derived from the player count.
// Host-only: followers learn about players through snapshots.
func (e *Engine) AddPlayer(playerID string) {
	if e.role != RoleHost {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.players[playerID]; exists {
		return
	}
	e.players[playerID] = &Player{ID: playerID, Color: PlayerColor(playerID)}

	count := len(e.players)
	startX := float64(spawnBaseX + count*spawnStrideX)
	startY := float64(spawnBaseY + count*spawnStrideY)
	for i := 0; i < rosterSize; i++ {
		unit := NewUnit(e.nextUnitID, startX+float64(i*rosterSpacing), startY, playerID)
		e.nextUnitID++
		e.units[unit.ID] = unit
	}

	e.logger.Info("player joined simulation",
		"player", playerID,
		"players", count,
		"units", len(e.units),
	)
}

// RemovePlayer drops a player and every unit it owns, in one critical
// section so the next snapshot cannot contain a half-removed roster.
func (e *Engine) RemovePlayer(playerID string) {
	if e.role != RoleHost {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.players[playerID]; !exists {
		return
	}
	delete(e.players, playerID)
	for id, unit := range e.units {
		if unit.Owner == playerID {
			delete(e.units, id)
		}
	}

	e.logger.Info("player left simulation", "player", playerID, "units", len(e.units))
}

// IssueCommand submits a locally originated command. The host applies
// it immediately against its own units; a follower forwards it to the
// host on the best-effort channel and changes nothing locally — the
// effect arrives in a later snapshot.
func (e *Engine) IssueCommand(command Command) {
	if e.role == RoleHost {
		e.mu.Lock()
		e.applyCommandLocked(e.selfID, command)
		e.mu.Unlock()
		return
	}

	payload, err := EncodeInput([]Command{command})
	if err != nil {
		e.logger.Error("encoding command failed", "error", err)
		return
	}
	e.sender.SendToHost(ChannelFast, payload)
}

// HandleMessage ingests one game-channel message from a peer. The host
// accepts input envelopes (from is the acting player); a follower
// accepts snapshots from the host. Anything else — including malformed payloads — is
// dropped without effect.
func (e *Engine) HandleMessage(from string, data []byte) {
	envelope, err := DecodeEnvelope(data)
	if err != nil {
		e.logger.Debug("dropping game message", "from", from, "error", err)
		return
	}

	switch {
	case e.role == RoleHost && envelope.T == TagInput:
		e.mu.Lock()
		for _, command := range envelope.Cmd {
			e.applyCommandLocked(from, command)
		}
		e.mu.Unlock()

	case e.role == RoleFollower && envelope.T == TagSnapshot:
		// Only the host is authoritative. A snapshot relayed by any
		// other peer is discarded before it can overwrite local state.
		if from != e.hostID {
			e.logger.Debug("dropping snapshot from non-host peer", "from", from)
			return
		}
		e.applySnapshot(Snapshot{Tick: envelope.Tick, Units: envelope.Units})

	default:
		e.logger.Debug("dropping game message for wrong role",
			"from", from, "tag", string(envelope.T), "role", e.role.String())
	}
}

// applyCommandLocked executes one command on behalf of playerID.
// Ownership is enforced per unit: a named unit the player does not own
// is a no-op for that unit. Commands from unknown players fall through
// harmlessly — they own nothing.
func (e *Engine) applyCommandLocked(playerID string, command Command) {
	switch command.Kind {
	case KindMove:
		x, y := float64(command.X), float64(command.Y)
		if len(command.UnitIDs) == 0 {
			for _, unit := range e.units {
				if unit.Owner == playerID {
					unit.MoveTo(x, y)
				}
			}
			return
		}
		for _, id := range command.UnitIDs {
			if unit, ok := e.units[id]; ok && unit.Owner == playerID {
				unit.MoveTo(x, y)
			}
		}
	}
}

// applySnapshot replaces the follower's entire unit collection with
// the snapshot's contents. Units absent from the snapshot are dropped;
// previously unknown ids are created fresh; existing units keep their
// struct (and with it the local Selected flag) but take every
// synchronized field from the wire. Snapshots older than the last
// applied tick are ignored; an equal tick re-applies idempotently.
func (e *Engine) applySnapshot(snapshot Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if snapshot.Tick < e.lastSnapshotTick {
		e.logger.Debug("ignoring stale snapshot",
			"tick", snapshot.Tick, "lastApplied", e.lastSnapshotTick)
		return
	}
	e.lastSnapshotTick = snapshot.Tick
	e.tick = snapshot.Tick

	next := make(map[int]*Unit, len(snapshot.Units))
	for _, dto := range snapshot.Units {
		unit, exists := e.units[dto.ID]
		if !exists {
			unit = materialize(dto)
		} else {
			unit.X = float64(dto.X)
			unit.Y = float64(dto.Y)
			unit.TargetX = float64(dto.TX)
			unit.TargetY = float64(dto.TY)
			unit.HP = dto.HP
			unit.Owner = dto.Owner
		}
		next[dto.ID] = unit
	}
	e.units = next
}

// snapshotLocked serializes the current unit set. Caller holds e.mu.
func (e *Engine) snapshotLocked() Snapshot {
	units := make([]UnitDTO, 0, len(e.units))
	for _, unit := range e.units {
		units = append(units, serialize(unit))
	}
	// Deterministic order keeps snapshots byte-comparable across
	// identical states, which the tests rely on.
	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })
	return Snapshot{Tick: e.tick, Units: units}
}

// CurrentSnapshot returns a serialized view of the current state, for
// inspection and tests.
func (e *Engine) CurrentSnapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Tick returns the current tick counter.
func (e *Engine) Tick() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}

// UnitByID returns a copy of the unit with the given id.
func (e *Engine) UnitByID(id int) (Unit, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if unit, ok := e.units[id]; ok {
		return *unit, true
	}
	return Unit{}, false
}

// Units returns copies of all units, ordered by id.
func (e *Engine) Units() []Unit {
	e.mu.Lock()
	defer e.mu.Unlock()
	units := make([]Unit, 0, len(e.units))
	for _, unit := range e.units {
		units = append(units, *unit)
	}
	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })
	return units
}

// UnitsOwnedBy returns copies of the units owned by playerID, ordered
// by id.
func (e *Engine) UnitsOwnedBy(playerID string) []Unit {
	e.mu.Lock()
	defer e.mu.Unlock()
	units := make([]Unit, 0, rosterSize)
	for _, unit := range e.units {
		if unit.Owner == playerID {
			units = append(units, *unit)
		}
	}
	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })
	return units
}

// Players returns the known players, ordered by id.
func (e *Engine) Players() []Player {
	e.mu.Lock()
	defer e.mu.Unlock()
	players := make([]Player, 0, len(e.players))
	for _, player := range e.players {
		players = append(players, *player)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })
	return players
}

// Select marks the given unit ids as selected and clears every other
// selection. Selection is local UI state: it only ever affects which
// units the local caller chooses to name in a command.
func (e *Engine) Select(unitIDs ...int) {
	wanted := make(map[int]bool, len(unitIDs))
	for _, id := range unitIDs {
		wanted[id] = true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for id, unit := range e.units {
		unit.Selected = wanted[id] && unit.Owner == e.selfID
	}
}

// SelectedUnitIDs returns the ids of the currently selected units,
// ordered by id.
func (e *Engine) SelectedUnitIDs() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]int, 0, rosterSize)
	for id, unit := range e.units {
		if unit.Selected {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}
