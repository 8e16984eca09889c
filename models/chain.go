package models

import (
	"time"
)

type Chain struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	CreatorID        string    `json:"creator_id"`
	MaxParticipants  int       `json:"max_participants"`
	TurnDurationDays int       `json:"turn_duration_days"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type ChainParticipant struct {
	ID           string     `json:"id"`
	ChainID      string     `json:"chain_id"`
	UserID       string     `json:"user_id"`
	TurnPosition int        `json:"turn_position"`
	IsActive     bool       `json:"is_active"`
	LastTurnAt   *time.Time `json:"last_turn_at"`
	JoinedAt     time.Time  `json:"joined_at"`
}

type PrayerEvent struct {
	ID       string    `json:"id"`
	ChainID  string    `json:"chain_id"`
	UserID   string    `json:"user_id"`
	Content  string    `json:"content"`
	PrayedAt time.Time `json:"prayed_at"`
}

// ChainView is the read model returned for a single chain: the chain itself,
// its active roster in turn order, whose turn it currently is, and the most
// recent prayer events.
type ChainView struct {
	Chain        Chain              `json:"chain"`
	Roster       []ChainParticipant `json:"roster"`
	CurrentTurn  *ChainParticipant  `json:"current_turn"`
	RecentEvents []PrayerEvent      `json:"recent_events"`
}
