package streak

// Milestone is a streak length that unlocks a badge and an XP bonus.
type Milestone struct {
	Days  int    `json:"days" mapstructure:"days"`
	Badge string `json:"badge" mapstructure:"badge"`
	XP    int    `json:"xp" mapstructure:"xp"`
}

// DefaultMilestones is the milestone table used when none is configured.
var DefaultMilestones = []Milestone{
	{Days: 5, Badge: "Daily-Challenge", XP: 30},
}

// Reached returns the milestones whose length current has met or passed.
func Reached(milestones []Milestone, current int) []Milestone {
	var out []Milestone
	for _, m := range milestones {
		if m.Days > 0 && current >= m.Days {
			out = append(out, m)
		}
	}
	return out
}

// ForBadge looks up the milestone that grants badge.
func ForBadge(milestones []Milestone, badge string) (Milestone, bool) {
	for _, m := range milestones {
		if m.Badge == badge {
			return m, true
		}
	}
	return Milestone{}, false
}
