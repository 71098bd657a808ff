package models

import (
	"time"
)

type EventStatus string

const (
	EventOffline EventStatus = "offline"
	EventStandby EventStatus = "standby"
	EventLive    EventStatus = "live"
)

func (s EventStatus) Valid() bool {
	switch s {
	case EventOffline, EventStandby, EventLive:
		return true
	}
	return false
}

type PagesEnabled struct {
	Requests bool `json:"requests"`
	Display  bool `json:"display"`
}

// EventConfig holds host-editable settings. PinHash is never sent to guests.
type EventConfig struct {
	WelcomeMessage     string `json:"welcome_message,omitempty"`
	SecondaryMessage   string `json:"secondary_message,omitempty"`
	ThemePrimaryColor  string `json:"theme_primary_color,omitempty"`
	ThemeAccentColor   string `json:"theme_accent_color,omitempty"`
	MaxRequestsPerUser int    `json:"max_requests_per_user,omitempty"`
	AutoApprove        bool   `json:"auto_approve"`
	PinHash            string `json:"pin_hash,omitempty"`
}

type Event struct {
	ID           string       `json:"id"`
	UserID       string       `json:"user_id"`
	Status       EventStatus  `json:"status"`
	PagesEnabled PagesEnabled `json:"pages_enabled"`
	Config       EventConfig  `json:"config"`
	Version      int          `json:"version"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

type PageVisibility string

const (
	PagePartyNotStarted PageVisibility = "party-not-started"
	PageDisabled        PageVisibility = "disabled"
	PageEnabled         PageVisibility = "enabled"
)

type PageState struct {
	Requests PageVisibility `json:"requests"`
	Display  PageVisibility `json:"display"`
}
