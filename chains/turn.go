package chains

import (
	"prayerchain_back_end_go/models"
)

// CurrentTurn derives which participant is expected to pray next from the
// ordered active roster and the chain's most recent prayer event. It is a pure
// function of its inputs; callers must hold both from the same snapshot.
//
// The rotation is round-robin: the turn belongs to the successor of whoever
// prayed last, wrapping from the end of the roster back to the front. If the
// last prayer was taken by someone who has since left the chain, the rotation
// resets to position 0. Resetting to the front (rather than resuming after the
// departed member's old slot) is a deliberate policy: leave renumbers the
// remaining positions, so "the departed member's successor" is ambiguous once
// the gap has been closed.
func CurrentTurn(roster []models.ChainParticipant, lastEvent *models.PrayerEvent) *models.ChainParticipant {
	if len(roster) == 0 {
		return nil
	}
	if lastEvent == nil {
		return &roster[0]
	}
	for i := range roster {
		if roster[i].UserID == lastEvent.UserID {
			return &roster[(i+1)%len(roster)]
		}
	}
	// Last prayer came from a departed participant.
	return &roster[0]
}
