package convert

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/stravx/conquest/internal/model"
	"github.com/stravx/conquest/internal/profile"
	"github.com/stravx/conquest/internal/session"
	"github.com/stravx/conquest/internal/territory"
)

func fromNullTime(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

// jsonToHistory decodes the capture history column. A malformed column
// yields an empty history rather than failing the whole record.
func jsonToHistory(data []byte) []territory.CaptureEvent {
	if len(data) == 0 {
		return nil
	}
	var events []model.CaptureEvent
	if err := json.Unmarshal(data, &events); err != nil || len(events) == 0 {
		return nil
	}
	history := make([]territory.CaptureEvent, len(events))
	for i, e := range events {
		history[i] = territory.CaptureEvent{
			ID:            e.ID,
			PlayerID:      e.PlayerID,
			PlayerName:    e.PlayerName,
			CapturedAt:    e.CapturedAt.UTC(),
			PreviousOwner: e.PreviousOwner,
		}
	}
	return history
}

// TerritoryFromModel converts a GORM row to a territory.
func TerritoryFromModel(m model.Territory) *territory.Territory {
	return &territory.Territory{
		TileID:           m.TileID,
		CenterLat:        m.CenterLat,
		CenterLon:        m.CenterLon,
		Zoom:             m.Zoom,
		OwnerID:          m.OwnerID.String,
		OwnerName:        m.OwnerName.String,
		CapturedAt:       fromNullTime(m.CapturedAt),
		Strength:         m.Strength,
		LastReinforcedAt: fromNullTime(m.LastReinforcedAt),
		IsContested:      m.IsContested,
		ContestedBy:      m.ContestedBy.String,
		ContestedFrom:    m.ContestedFrom,
		CaptureCount:     m.CaptureCount,
		LastCapturedBy:   m.LastCapturedBy.String,
		History:          jsonToHistory(m.CaptureHistory),
		LastDecayedAt:    fromNullTime(m.LastDecayedAt),
		Version:          m.Version,
	}
}

func jsonToBadges(data []byte) []profile.Badge {
	var entries []model.BadgeEntry
	if len(data) == 0 || json.Unmarshal(data, &entries) != nil || len(entries) == 0 {
		return nil
	}
	badges := make([]profile.Badge, len(entries))
	for i, e := range entries {
		badges[i] = profile.Badge{Kind: profile.BadgeKind(e.Kind), UnlockedAt: e.UnlockedAt.UTC()}
	}
	return badges
}

// ProfileFromModel converts a GORM row to a profile.
func ProfileFromModel(m model.Profile) profile.Profile {
	return profile.Profile{
		PlayerID:            m.PlayerID,
		Name:                m.Name,
		TotalXP:             m.TotalXP,
		Level:               m.Level,
		TerritoriesOwned:    m.TerritoriesOwned,
		TerritoriesCaptured: m.TerritoriesCaptured,
		TerritoriesDefended: m.TerritoriesDefended,
		TerritoriesLost:     m.TerritoriesLost,
		Badges:              jsonToBadges(m.Badges),
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

// RecordToSummary converts a stored session row back to a summary.
func RecordToSummary(r model.SessionRecord) session.Summary {
	return session.Summary{
		SessionID:           r.ID,
		PlayerID:            r.PlayerID,
		StartedAt:           r.StartedAt.UTC(),
		EndedAt:             r.EndedAt.UTC(),
		TerritoriesCaptured: r.TerritoriesCaptured,
		XPGained:            r.XPGained,
		TilesVisited:        r.TilesVisited,
		SkippedSamples:      r.SkippedSamples,
		Pending:             r.Pending,
	}
}
