package conciliation

import (
	"sort"
	"strings"
)

// MediatorPolicy assigns new cases to the roster member with the fewest
// open cases. Ties go to the lexically smallest name so the choice is
// reproducible.
type MediatorPolicy struct {
	roster []string
}

func NewMediatorPolicy(roster []string) *MediatorPolicy {
	seen := make(map[string]bool, len(roster))
	var clean []string
	for _, m := range roster {
		m = strings.TrimSpace(m)
		if m != "" && !seen[m] {
			seen[m] = true
			clean = append(clean, m)
		}
	}
	sort.Strings(clean)
	return &MediatorPolicy{roster: clean}
}

func (p *MediatorPolicy) Roster() []string {
	return append([]string(nil), p.roster...)
}

// Assign picks a mediator given the open case count per mediator. It
// returns "" when the roster is empty.
func (p *MediatorPolicy) Assign(open map[string]int) string {
	best, bestLoad := "", 0
	for _, m := range p.roster {
		if load := open[m]; best == "" || load < bestLoad {
			best, bestLoad = m, load
		}
	}
	return best
}
