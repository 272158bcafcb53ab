// Package convert maps domain types to and from their GORM models.
package convert

import (
	"database/sql"
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/stravx/conquest/internal/model"
	"github.com/stravx/conquest/internal/profile"
	"github.com/stravx/conquest/internal/session"
	"github.com/stravx/conquest/internal/territory"
)

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}

// historyToJSON converts capture history to datatypes.JSON for DB storage.
func historyToJSON(history []territory.CaptureEvent) datatypes.JSON {
	events := make([]model.CaptureEvent, len(history))
	for i, h := range history {
		events[i] = model.CaptureEvent{
			ID:            h.ID,
			PlayerID:      h.PlayerID,
			PlayerName:    h.PlayerName,
			CapturedAt:    h.CapturedAt.UTC(),
			PreviousOwner: h.PreviousOwner,
		}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(data)
}

// TerritoryToModel converts a territory to its GORM row.
func TerritoryToModel(t territory.Territory) model.Territory {
	return model.Territory{
		TileID:           t.TileID,
		CenterLat:        t.CenterLat,
		CenterLon:        t.CenterLon,
		Zoom:             t.Zoom,
		OwnerID:          nullString(t.OwnerID),
		OwnerName:        nullString(t.OwnerName),
		CapturedAt:       nullTime(t.CapturedAt),
		Strength:         t.Strength,
		LastReinforcedAt: nullTime(t.LastReinforcedAt),
		IsContested:      t.IsContested,
		ContestedBy:      nullString(t.ContestedBy),
		ContestedFrom:    t.ContestedFrom,
		CaptureCount:     t.CaptureCount,
		LastCapturedBy:   nullString(t.LastCapturedBy),
		CaptureHistory:   historyToJSON(t.History),
		LastDecayedAt:    nullTime(t.LastDecayedAt),
		Version:          t.Version,
	}
}

func badgesToJSON(badges []profile.Badge) datatypes.JSON {
	entries := make([]model.BadgeEntry, len(badges))
	for i, b := range badges {
		entries[i] = model.BadgeEntry{Kind: string(b.Kind), UnlockedAt: b.UnlockedAt.UTC()}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(data)
}

// ProfileToModel converts a profile to its GORM row.
func ProfileToModel(p profile.Profile) model.Profile {
	return model.Profile{
		PlayerID:            p.PlayerID,
		Name:                p.Name,
		TotalXP:             p.TotalXP,
		Level:               p.Level,
		TerritoriesOwned:    p.TerritoriesOwned,
		TerritoriesCaptured: p.TerritoriesCaptured,
		TerritoriesDefended: p.TerritoriesDefended,
		TerritoriesLost:     p.TerritoriesLost,
		Badges:              badgesToJSON(p.Badges),
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

// SummaryToRecord converts an ended session summary to its GORM row.
func SummaryToRecord(s session.Summary) model.SessionRecord {
	return model.SessionRecord{
		ID:                  s.SessionID,
		PlayerID:            s.PlayerID,
		StartedAt:           s.StartedAt.UTC(),
		EndedAt:             s.EndedAt.UTC(),
		TerritoriesCaptured: s.TerritoriesCaptured,
		XPGained:            s.XPGained,
		TilesVisited:        s.TilesVisited,
		SkippedSamples:      s.SkippedSamples,
		Pending:             s.Pending,
	}
}
