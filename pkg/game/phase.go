package game

import "fmt"

// Phase is the stage a room is in. Rooms begin Waiting, cycle through
// Day, Voting and Night once a game starts, and finish in Ended, which is
// terminal.
type Phase uint8

const (
	PhaseWaiting Phase = iota
	PhaseDay
	PhaseVoting
	PhaseNight
	PhaseEnded
)

// next returns the phase that follows p in the day cycle. Waiting and
// Ended do not advance.
func (p Phase) next() Phase {
	switch p {
	case PhaseDay:
		return PhaseVoting
	case PhaseVoting:
		return PhaseNight
	case PhaseNight:
		return PhaseDay
	}
	return p
}

// InGame reports whether p is one of the cycling phases of a running game.
func (p Phase) InGame() bool {
	return p == PhaseDay || p == PhaseVoting || p == PhaseNight
}

func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "waiting"
	case PhaseDay:
		return "day"
	case PhaseVoting:
		return "voting"
	case PhaseNight:
		return "night"
	case PhaseEnded:
		return "ended"
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}
