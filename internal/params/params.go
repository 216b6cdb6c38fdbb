package params

import "time"

const (
	// MinPlayers is the smallest membership a room needs before a game can start.
	MinPlayers = 4
	// MaxPlayers caps a room's membership.
	MaxPlayers = 20

	// EndDayLimit is the day count at which a running game is forcibly ended.
	EndDayLimit = 7

	// MinOptions and MaxOptions bound the number of choices a ballot may carry.
	MinOptions = 2
	MaxOptions = 10

	// BaseWeight is the vote weight every participant starts from.
	BaseWeight = 100
	// BaseHealth is the health assigned to a participant on join.
	BaseHealth = 100
	// BaseResources is the resource balance assigned to a participant on join.
	BaseResources = 50

	// PolicyYield is the resource amount granted to living participants
	// when a policy ballot carries.
	PolicyYield = 25
	// AllianceShield is the health granted to an elected ally.
	AllianceShield = 20

	// DetectiveBonus and HackerBonus are the default role weight bonuses of
	// schema version 1. The other roles carry no bonus.
	DetectiveBonus = 10
	HackerBonus    = 5

	// ResourceTier1 and ResourceTier2 are the default resource thresholds of
	// schema version 1, with the bonus granted above each. The higher tier
	// replaces the lower one.
	ResourceTier1      = 100
	ResourceTier1Bonus = 10
	ResourceTier2      = 200
	ResourceTier2Bonus = 25

	// DayDuration, VotingDuration and NightDuration are the default phase lengths.
	DayDuration    = 5 * time.Minute
	VotingDuration = 3 * time.Minute
	NightDuration  = 4 * time.Minute

	// SessionDuration is the default lifetime of a tally session.
	SessionDuration = 2 * time.Minute
)
