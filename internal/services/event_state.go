package services

import (
	"reflect"

	"dj-requests/models"
)

const (
	ReasonNoChanges        = "No changes detected"
	ReasonLiveRequiresPage = "Live status requires at least one page to be enabled"
)

type TransitionResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// StateChange is the proposed next state of an event. A nil PagesEnabled or
// Config keeps the current value.
type StateChange struct {
	Status       models.EventStatus
	PagesEnabled *models.PagesEnabled
	Config       *models.EventConfig
}

// CanTransition allows every move between offline, standby and live except
// staying put.
func CanTransition(from, to models.EventStatus) bool {
	return from != to
}

func ValidateStateTransition(current models.Event, change StateChange) TransitionResult {
	pages, cfg := resolveChange(current, change)

	if change.Status == current.Status &&
		pages == current.PagesEnabled &&
		reflect.DeepEqual(cfg, current.Config) {
		return TransitionResult{Valid: false, Reason: ReasonNoChanges}
	}

	if change.Status == models.EventLive && !pages.Requests && !pages.Display {
		return TransitionResult{Valid: false, Reason: ReasonLiveRequiresPage}
	}

	return TransitionResult{Valid: true}
}

func GetPageState(status models.EventStatus, pages models.PagesEnabled) models.PageState {
	switch status {
	case models.EventLive:
		return models.PageState{
			Requests: pageVisibility(pages.Requests),
			Display:  pageVisibility(pages.Display),
		}
	case models.EventStandby:
		return models.PageState{Requests: models.PageDisabled, Display: models.PageDisabled}
	default:
		return models.PageState{Requests: models.PagePartyNotStarted, Display: models.PagePartyNotStarted}
	}
}

func resolveChange(current models.Event, change StateChange) (models.PagesEnabled, models.EventConfig) {
	pages := current.PagesEnabled
	if change.PagesEnabled != nil {
		pages = *change.PagesEnabled
	}
	cfg := current.Config
	if change.Config != nil {
		cfg = *change.Config
	}
	return pages, cfg
}

func pageVisibility(enabled bool) models.PageVisibility {
	if enabled {
		return models.PageEnabled
	}
	return models.PageDisabled
}
