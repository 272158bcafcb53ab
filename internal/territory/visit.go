package territory

import "time"

// Loss records a tile taken from its owner.
type Loss struct {
	TileID  string `json:"tileId"`
	OwnerID string `json:"ownerId"`
}

// Outcome is the combined effect of one player entering a tile.
type Outcome struct {
	TileID   string   `json:"tileId"`
	Steps    []Result `json:"steps"`
	XP       int      `json:"xp"`
	Captured bool     `json:"captured"`
	Defended bool     `json:"defended"`
	Lost     *Loss    `json:"lost,omitempty"`
	Events   []Event  `json:"events,omitempty"`
}

// Changed reports whether any step modified the record.
func (o Outcome) Changed() bool {
	for _, s := range o.Steps {
		if s.Applied() {
			return true
		}
	}
	return false
}

// Visit applies the transition for actor entering t: capture when neutral,
// reinforce when already owned by actor, otherwise attack and conquer if the
// attack vacated the tile.
func Visit(t *Territory, actor Player, now time.Time, policy XPPolicy) Outcome {
	out := Outcome{TileID: t.TileID}

	switch {
	case t.IsNeutral():
		out.add(t.Capture(actor, now), policy)
	case t.OwnerID == actor.ID:
		out.add(t.Reinforce(actor, now), policy)
	default:
		attack := t.Attack(actor, now)
		out.add(attack, policy)
		if attack.Vacated() {
			out.Lost = &Loss{TileID: t.TileID, OwnerID: attack.Before.Owner.ID}
			out.add(t.Conquer(actor, now, attack), policy)
		}
	}
	return out
}

func (o *Outcome) add(r Result, policy XPPolicy) {
	o.Steps = append(o.Steps, r)
	o.Events = append(o.Events, r.Events...)
	if !r.Applied() {
		return
	}
	o.XP += policy.Award(r)
	switch r.Action {
	case ActionCapture, ActionConquest:
		o.Captured = true
	case ActionDefend:
		o.Defended = true
	}
}
