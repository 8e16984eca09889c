package chains

import (
	"sort"

	"prayerchain_back_end_go/models"
)

// ActiveOrdered returns the active participants sorted by turn position
// ascending. An empty roster is valid (every member may have left).
func ActiveOrdered(participants []models.ChainParticipant) []models.ChainParticipant {
	roster := make([]models.ChainParticipant, 0, len(participants))
	for _, p := range participants {
		if p.IsActive {
			roster = append(roster, p)
		}
	}
	sort.Slice(roster, func(i, j int) bool {
		return roster[i].TurnPosition < roster[j].TurnPosition
	})
	return roster
}

// CheckRoster verifies the roster invariant: the turn positions of the active
// participants must be exactly 0..k-1, no duplicates, no gaps. Every mutation
// of a chain's membership runs this before committing; a violation is never
// repaired in place.
func CheckRoster(chainID string, roster []models.ChainParticipant) error {
	seen := make([]bool, len(roster))
	positions := make([]int, 0, len(roster))
	ok := true
	for _, p := range roster {
		positions = append(positions, p.TurnPosition)
		if p.TurnPosition < 0 || p.TurnPosition >= len(roster) || seen[p.TurnPosition] {
			ok = false
			continue
		}
		seen[p.TurnPosition] = true
	}
	if !ok {
		return &RosterCorruptError{ChainID: chainID, Positions: positions}
	}
	return nil
}
