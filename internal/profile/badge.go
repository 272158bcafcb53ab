package profile

import (
	"slices"
	"time"
)

// BadgeXP is credited once for every badge a player unlocks.
const BadgeXP = 100

type BadgeKind string

const (
	BadgeFirstTerritory BadgeKind = "first_territory"
	BadgeCartographer   BadgeKind = "cartographer"
	BadgeBaron          BadgeKind = "baron"
	BadgeEmperor        BadgeKind = "emperor"
	BadgeDefender       BadgeKind = "defender"
)

type Badge struct {
	Kind       BadgeKind `json:"kind"`
	UnlockedAt time.Time `json:"unlockedAt"`
}

type badgeRule struct {
	kind BadgeKind
	met  func(Profile) bool
}

// Owned thresholds are checked against the current count, so a player who
// loses tiles keeps a badge but has to own the count again for the next one.
var badgeRules = []badgeRule{
	{BadgeFirstTerritory, func(p Profile) bool { return p.TerritoriesCaptured >= 1 }},
	{BadgeCartographer, func(p Profile) bool { return p.TerritoriesOwned >= 10 }},
	{BadgeBaron, func(p Profile) bool { return p.TerritoriesOwned >= 50 }},
	{BadgeEmperor, func(p Profile) bool { return p.TerritoriesOwned >= 100 }},
	{BadgeDefender, func(p Profile) bool { return p.TerritoriesDefended >= 10 }},
}

func (p Profile) HasBadge(kind BadgeKind) bool {
	return slices.ContainsFunc(p.Badges, func(b Badge) bool { return b.Kind == kind })
}

// unlockBadges grants every badge p qualifies for and does not hold yet,
// crediting BadgeXP for each.
func (p *Profile) unlockBadges(now time.Time) {
	var unlocked []Badge
	for _, rule := range badgeRules {
		if rule.met(*p) && !p.HasBadge(rule.kind) {
			unlocked = append(unlocked, Badge{Kind: rule.kind, UnlockedAt: now})
		}
	}
	if len(unlocked) == 0 {
		return
	}
	p.Badges = append(slices.Clone(p.Badges), unlocked...)
	p.TotalXP += len(unlocked) * BadgeXP
}

// NewBadges returns the badges after holds that before did not.
func NewBadges(before, after Profile) []Badge {
	var out []Badge
	for _, b := range after.Badges {
		if !before.HasBadge(b.Kind) {
			out = append(out, b)
		}
	}
	return out
}
