package model

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Territory{},
	&Profile{},
	&SessionRecord{},
}

////////////////////////
// TERRITORY MODELS
////////////////////////

// Territory is the persisted ownership record of one grid tile.
// Optional fields are nullable columns.
type Territory struct {
	TileID    string  `json:"tileId" gorm:"primaryKey;size:64"`
	CenterLat float64 `json:"centerLat"`
	CenterLon float64 `json:"centerLon"`
	Zoom      int     `json:"zoom" gorm:"index:idx_territory_zoom"`

	OwnerID    sql.NullString `json:"ownerId" gorm:"size:64;index:idx_territory_owner_id"`
	OwnerName  sql.NullString `json:"ownerName" gorm:"size:127"`
	CapturedAt sql.NullTime   `json:"capturedAt"`

	Strength         int            `json:"strength" gorm:"not null"`
	LastReinforcedAt sql.NullTime   `json:"lastReinforcedAt"`
	IsContested      bool           `json:"isContested" gorm:"not null"`
	ContestedBy      sql.NullString `json:"contestedBy" gorm:"size:64"`
	ContestedFrom    int            `json:"contestedFrom" gorm:"not null;default:0"`

	CaptureCount   int            `json:"captureCount" gorm:"not null"`
	LastCapturedBy sql.NullString `json:"lastCapturedBy" gorm:"size:64"`
	CaptureHistory datatypes.JSON `json:"captureHistory"`

	LastDecayedAt sql.NullTime `json:"lastDecayedAt"`
	Version       int64        `json:"version" gorm:"not null"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

func (*Territory) TableName() string {
	return "territories"
}

// CaptureEvent is one element of Territory.CaptureHistory.
type CaptureEvent struct {
	ID            string    `json:"id"`
	PlayerID      string    `json:"playerId"`
	PlayerName    string    `json:"playerName"`
	CapturedAt    time.Time `json:"capturedAt"`
	PreviousOwner string    `json:"previousOwner,omitempty"`
}

////////////////////////
// PLAYER MODELS
////////////////////////

// Profile holds a player's progression counters.
type Profile struct {
	PlayerID            string         `json:"playerId" gorm:"primaryKey;size:64"`
	Name                string         `json:"name" gorm:"size:127"`
	TotalXP             int            `json:"totalXp" gorm:"not null"`
	Level               int            `json:"level" gorm:"not null"`
	TerritoriesOwned    int            `json:"territoriesOwned" gorm:"not null"`
	TerritoriesCaptured int            `json:"territoriesCaptured" gorm:"not null"`
	TerritoriesDefended int            `json:"territoriesDefended" gorm:"not null"`
	TerritoriesLost     int            `json:"territoriesLost" gorm:"not null"`
	Badges              datatypes.JSON `json:"badges"`
	CreatedAt           time.Time      `json:"createdAt"`
	UpdatedAt           time.Time      `json:"updatedAt"`
}

func (*Profile) TableName() string {
	return "profiles"
}

// BadgeEntry is one element of Profile.Badges.
type BadgeEntry struct {
	Kind       string    `json:"kind"`
	UnlockedAt time.Time `json:"unlockedAt"`
}

// SessionRecord is the summary kept after a capture session ends.
type SessionRecord struct {
	ID                  string    `json:"id" gorm:"primaryKey;size:36"`
	PlayerID            string    `json:"playerId" gorm:"size:64;index:idx_session_player_id"`
	StartedAt           time.Time `json:"startedAt"`
	EndedAt             time.Time `json:"endedAt"`
	TerritoriesCaptured int       `json:"territoriesCaptured"`
	XPGained            int       `json:"xpGained"`
	TilesVisited        int       `json:"tilesVisited"`
	SkippedSamples      int       `json:"skippedSamples"`
	Pending             int       `json:"pending"`
}

func (*SessionRecord) TableName() string {
	return "capture_sessions"
}
