package territory

// XPPolicy maps applied transitions to experience points.
type XPPolicy struct {
	NeutralCapture  int `mapstructure:"neutralCapture" json:"neutralCapture"`
	Reinforce       int `mapstructure:"reinforce" json:"reinforce"`
	DefenseBonus    int `mapstructure:"defenseBonus" json:"defenseBonus"`
	Conquest        int `mapstructure:"conquest" json:"conquest"`
	StrongConquest  int `mapstructure:"strongConquest" json:"strongConquest"`
	StrongThreshold int `mapstructure:"strongThreshold" json:"strongThreshold"`
}

func DefaultXPPolicy() XPPolicy {
	return XPPolicy{
		NeutralCapture:  10,
		Reinforce:       5,
		DefenseBonus:    20,
		Conquest:        25,
		StrongConquest:  50,
		StrongThreshold: 50,
	}
}

// Award returns the XP earned by the actor of r. Attacks and decay earn
// nothing. A conquest is rated on the strength the tile had when the
// contest that vacated it opened.
func (p XPPolicy) Award(r Result) int {
	if !r.Applied() {
		return 0
	}
	switch r.Action {
	case ActionCapture:
		return p.NeutralCapture
	case ActionReinforce:
		return p.Reinforce
	case ActionDefend:
		return p.Reinforce + p.DefenseBonus
	case ActionConquest:
		if r.PreviousStrength > p.StrongThreshold {
			return p.StrongConquest
		}
		return p.Conquest
	default:
		return 0
	}
}
