package territory

import (
	"time"

	"github.com/google/uuid"
)

// CaptureEvent is one entry of a tile's capture history.
type CaptureEvent struct {
	ID            string    `json:"id"`
	PlayerID      string    `json:"playerId"`
	PlayerName    string    `json:"playerName"`
	CapturedAt    time.Time `json:"capturedAt"`
	PreviousOwner string    `json:"previousOwner,omitempty"`
}

// appendHistory keeps the newest HistoryLimit entries.
func (t *Territory) appendHistory(actor Player, now time.Time, previousOwner string) {
	t.History = append(t.History, CaptureEvent{
		ID:            uuid.NewString(),
		PlayerID:      actor.ID,
		PlayerName:    actor.Name,
		CapturedAt:    now,
		PreviousOwner: previousOwner,
	})
	if n := len(t.History); n > HistoryLimit {
		t.History = append([]CaptureEvent(nil), t.History[n-HistoryLimit:]...)
	}
}
