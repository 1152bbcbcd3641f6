package zone

// Phase is the host program's lifecycle tag. Under fixed-address placement
// it is purely diagnostic, since memory is never partitioned by phase, but it
// keeps the allocator's logs correlatable with the host's own lifecycle.
//
// Transitions:
//
//	[uninitialised] --init--> [character-creation] --switch--> [game]
//	                                 ^                            |
//	                                 +---------- restart ---------+
type Phase uint8

const (
	// PhaseCharacterCreation is the phase entered on init and restart.
	PhaseCharacterCreation Phase = iota
	// PhaseGame is entered by SwitchPhase once play begins, and by an
	// enumeration-mode load.
	PhaseGame
)

func (p Phase) String() string {
	if p == PhaseGame {
		return "game"
	}
	return "character-creation"
}
