package territory

import "time"

type EventKind string

const (
	// EventAttacked fires on the attack that first contests a tile it leaves owned.
	EventAttacked EventKind = "territory.attacked"
	// EventLost fires when an attack or decay drives an owned tile to neutral.
	EventLost EventKind = "territory.lost"
	// EventWeak fires when strength drops below WeakThreshold without vacating,
	// and on the attack that opens a contest on a tile already below it.
	EventWeak EventKind = "territory.weak"
)

// Event is addressed to OwnerID, the owner before the transition. ActorName
// is the attacker for EventAttacked and the captor for EventLost.
type Event struct {
	Kind      EventKind `json:"kind"`
	TileID    string    `json:"tileId"`
	OwnerID   string    `json:"ownerId"`
	Strength  int       `json:"strength"`
	ActorName string    `json:"actorName,omitempty"`
	At        time.Time `json:"at"`
}

func attackEvents(r Result) []Event {
	owner := r.Before.Owner.ID
	if r.Vacated() {
		return []Event{{
			Kind:      EventLost,
			TileID:    r.TileID,
			OwnerID:   owner,
			ActorName: r.Actor.Name,
			At:        r.At,
		}}
	}

	var events []Event
	if r.Before.Contest == nil {
		events = append(events, Event{
			Kind:      EventAttacked,
			TileID:    r.TileID,
			OwnerID:   owner,
			Strength:  r.After.Strength,
			ActorName: r.Actor.Name,
			At:        r.At,
		})
	}
	if weakened(r) || (r.Before.Contest == nil && r.After.Strength < WeakThreshold) {
		events = append(events, weakEvent(r))
	}
	return events
}

func decayEvents(r Result) []Event {
	if r.Vacated() {
		return []Event{{
			Kind:    EventLost,
			TileID:  r.TileID,
			OwnerID: r.Before.Owner.ID,
			At:      r.At,
		}}
	}
	if weakened(r) {
		return []Event{weakEvent(r)}
	}
	return nil
}

func weakened(r Result) bool {
	return r.Before.Strength >= WeakThreshold && r.After.Kind == Owned && r.After.Strength < WeakThreshold
}

func weakEvent(r Result) Event {
	return Event{
		Kind:     EventWeak,
		TileID:   r.TileID,
		OwnerID:  r.Before.Owner.ID,
		Strength: r.After.Strength,
		At:       r.At,
	}
}
