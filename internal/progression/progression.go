// Package progression maps accumulated XP to levels and rank titles.
package progression

// XPForLevel returns the XP needed to advance from level n to n+1.
func XPForLevel(n int) int {
	switch {
	case n < 1:
		return 0
	case n <= 5:
		return 200 * n
	case n <= 10:
		return 1000 + 400*(n-5)
	case n <= 15:
		return 3000 + 800*(n-10)
	case n <= 20:
		return 7000 + 1500*(n-15)
	default:
		return 14500 + 2500*(n-20)
	}
}

// TotalXPForLevel returns the cumulative XP at which level n is reached.
func TotalXPForLevel(n int) int {
	total := 0
	for l := 1; l < n; l++ {
		total += XPForLevel(l)
	}
	return total
}

// Level returns the level reached with xp. Levels start at 1.
func Level(xp int) int {
	level := 1
	threshold := XPForLevel(level)
	for xp >= threshold {
		xp -= threshold
		level++
		threshold = XPForLevel(level)
	}
	return level
}

// LevelProgress locates xp inside its level.
type LevelProgress struct {
	Level       int     `json:"level"`
	CurrentXP   int     `json:"currentXp"`
	RequiredXP  int     `json:"requiredXp"`
	Fraction    float64 `json:"fraction"`
	Rank        string  `json:"rank"`
	TotalXP     int     `json:"totalXp"`
	NextLevelXP int     `json:"nextLevelXp"`
}

// Progress returns where xp sits between its level and the next.
func Progress(xp int) LevelProgress {
	if xp < 0 {
		xp = 0
	}
	level := Level(xp)
	current := xp - TotalXPForLevel(level)
	required := XPForLevel(level)
	return LevelProgress{
		Level:       level,
		CurrentXP:   current,
		RequiredXP:  required,
		Fraction:    float64(current) / float64(required),
		Rank:        RankTitle(level),
		TotalXP:     xp,
		NextLevelXP: TotalXPForLevel(level + 1),
	}
}

// RankTitle names the rank band of level.
func RankTitle(level int) string {
	switch {
	case level <= 5:
		return "Explorer"
	case level <= 10:
		return "Adventurer"
	case level <= 15:
		return "Conqueror"
	case level <= 20:
		return "Champion"
	default:
		return "Legend"
	}
}

// LevelUps returns how many levels are gained moving from before to after XP.
func LevelUps(before, after int) int {
	if after <= before {
		return 0
	}
	return Level(after) - Level(before)
}
