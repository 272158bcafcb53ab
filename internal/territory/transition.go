package territory

import "time"

const (
	captureStrength  = 10
	conquestStrength = 25
	reinforceGain    = 10
	defenseBonus     = 20
)

// Status tells whether a transition changed the record.
type Status int

const (
	Unchanged Status = iota
	Applied
)

func (s Status) String() string {
	if s == Applied {
		return "applied"
	}
	return "unchanged"
}

type Action string

const (
	ActionCapture   Action = "capture"
	ActionConquest  Action = "conquest"
	ActionReinforce Action = "reinforce"
	ActionDefend    Action = "defend"
	ActionAttack    Action = "attack"
	ActionDecay     Action = "decay"
)

// Result describes one transition. A failed precondition yields Status
// Unchanged with Before equal to After.
type Result struct {
	Status Status    `json:"status"`
	Action Action    `json:"action"`
	TileID string    `json:"tileId"`
	Actor  Player    `json:"actor"`
	At     time.Time `json:"at"`
	Before State     `json:"before"`
	After  State     `json:"after"`

	// PreviousStrength is the strength the tile had when the contest that
	// vacated it opened for a conquest, and Before.Strength otherwise.
	PreviousStrength int `json:"previousStrength"`
	// Days is the number of calendar days charged by a decay.
	Days int `json:"days,omitempty"`

	Events []Event `json:"events,omitempty"`
}

func (r Result) Applied() bool { return r.Status == Applied }

// Vacated reports whether the transition drove an owned tile to neutral.
func (r Result) Vacated() bool {
	return r.Applied() && r.Before.Kind == Owned && r.After.Kind == Neutral
}

func (t *Territory) unchanged(action Action, actor Player, now time.Time, s State) Result {
	return Result{
		Status:           Unchanged,
		Action:           action,
		TileID:           t.TileID,
		Actor:            actor,
		At:               now,
		Before:           s,
		After:            s,
		PreviousStrength: s.Strength,
	}
}

func (t *Territory) current() (State, bool) {
	s, err := t.State()
	return s, err == nil
}

// Capture claims a neutral tile for actor with the starting strength.
func (t *Territory) Capture(actor Player, now time.Time) Result {
	before, ok := t.current()
	if !ok || !before.IsNeutral() || actor.ID == "" {
		return t.unchanged(ActionCapture, actor, now, before)
	}
	r := t.claim(ActionCapture, actor, now, captureStrength, t.LastCapturedBy)
	r.Before = before
	r.PreviousStrength = before.Strength
	return r
}

// Conquer claims a tile that attack, performed by actor in the same step,
// has just vacated. The conquest starts at a higher strength than a plain
// capture.
func (t *Territory) Conquer(actor Player, now time.Time, attack Result) Result {
	before, ok := t.current()
	if !ok || !before.IsNeutral() || actor.ID == "" ||
		attack.Action != ActionAttack || !attack.Vacated() ||
		attack.Actor.ID != actor.ID || attack.TileID != t.TileID {
		return t.unchanged(ActionConquest, actor, now, before)
	}
	r := t.claim(ActionConquest, actor, now, conquestStrength, attack.Before.Owner.ID)
	r.Before = before
	r.PreviousStrength = attack.Before.Strength
	if c := attack.Before.Contest; c != nil {
		r.PreviousStrength = max(c.From, attack.Before.Strength)
	}
	return r
}

func (t *Territory) claim(action Action, actor Player, now time.Time, strength int, previousOwner string) Result {
	after := State{Kind: Owned, Owner: actor, Strength: strength}
	t.setState(after)
	t.CapturedAt = now
	t.LastReinforcedAt = now
	t.LastDecayedAt = time.Time{}
	t.CaptureCount++
	t.LastCapturedBy = actor.ID
	t.appendHistory(actor, now, previousOwner)

	return Result{
		Status: Applied,
		Action: action,
		TileID: t.TileID,
		Actor:  actor,
		At:     now,
		After:  after,
	}
}

// Reinforce strengthens a tile owned by actor. Reinforcing a contested tile
// is a successful defense: the contest is cleared and a bonus is added.
func (t *Territory) Reinforce(actor Player, now time.Time) Result {
	before, ok := t.current()
	if !ok || !before.OwnedBy(actor.ID) {
		return t.unchanged(ActionReinforce, actor, now, before)
	}

	action := ActionReinforce
	after := before
	after.Strength = min(MaxStrength, before.Strength+reinforceGain)
	if before.Contest != nil {
		action = ActionDefend
		after.Contest = nil
		after.Strength = min(MaxStrength, after.Strength+defenseBonus)
	}
	t.setState(after)
	t.LastReinforcedAt = now

	return Result{
		Status:           Applied,
		Action:           action,
		TileID:           t.TileID,
		Actor:            actor,
		At:               now,
		Before:           before,
		After:            after,
		PreviousStrength: before.Strength,
	}
}

// Attack halves the strength of a tile owned by someone other than actor
// and marks it contested. An open contest keeps its starting strength. At zero strength the tile turns neutral; the
// attacker still has to capture it.
func (t *Territory) Attack(actor Player, now time.Time) Result {
	before, ok := t.current()
	if !ok || before.Kind != Owned || actor.ID == "" || before.Owner.ID == actor.ID {
		return t.unchanged(ActionAttack, actor, now, before)
	}

	after := before
	after.Strength = before.Strength / 2
	after.Contest = &Contest{By: actor.ID, From: before.Strength}
	if before.Contest != nil {
		after.Contest.From = max(before.Contest.From, before.Strength)
	}
	if after.Strength == 0 {
		after = NeutralState()
	}
	t.setState(after)

	r := Result{
		Status:           Applied,
		Action:           ActionAttack,
		TileID:           t.TileID,
		Actor:            actor,
		At:               now,
		Before:           before,
		After:            after,
		PreviousStrength: before.Strength,
	}
	r.Events = attackEvents(r)
	return r
}

// Decay removes one strength point per UTC calendar day since the later of
// the last reinforcement and the last decay. Calling it again on the same
// day is a no-op.
func (t *Territory) Decay(now time.Time) Result {
	before, ok := t.current()
	if !ok || before.Kind != Owned {
		return t.unchanged(ActionDecay, Player{}, now, before)
	}

	anchor := t.LastReinforcedAt
	if t.LastDecayedAt.After(anchor) {
		anchor = t.LastDecayedAt
	}
	days := calendarDays(anchor, now)
	if days <= 0 {
		return t.unchanged(ActionDecay, Player{}, now, before)
	}

	after := before
	after.Strength = max(0, before.Strength-days)
	if after.Strength == 0 {
		after = NeutralState()
	}
	t.setState(after)
	t.LastDecayedAt = now

	r := Result{
		Status:           Applied,
		Action:           ActionDecay,
		TileID:           t.TileID,
		At:               now,
		Before:           before,
		After:            after,
		PreviousStrength: before.Strength,
		Days:             days,
	}
	r.Events = decayEvents(r)
	return r
}

// neverReinforced stands in for a missing reinforcement date, enough to
// drain any strength.
const neverReinforced = 999

func calendarDays(from, to time.Time) int {
	if from.IsZero() {
		return neverReinforced
	}
	fy, fm, fd := from.UTC().Date()
	ty, tm, td := to.UTC().Date()
	start := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	end := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours() / 24)
}
