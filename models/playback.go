package models

import (
	"time"
)

type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height,omitempty"`
	Width  int    `json:"width,omitempty"`
}

type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Album struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Images []Image `json:"images,omitempty"`
}

type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	URI        string   `json:"uri"`
	DurationMs int      `json:"duration_ms"`
	Artists    []Artist `json:"artists"`
	Album      Album    `json:"album"`
}

type Device struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	VolumePercent int    `json:"volume_percent"`
}

// PlaybackState is one poll of a tenant's player. A nil *PlaybackState means
// nothing is active; Item and Device are nil when the player reports none.
type PlaybackState struct {
	IsPlaying  bool    `json:"is_playing"`
	ProgressMs int     `json:"progress_ms"`
	Device     *Device `json:"device"`
	Item       *Track  `json:"item"`
}

type EnhancedQueueItem struct {
	Track
	RequestedBy *string `json:"requested_by"`
}

type PlaybackUpdate struct {
	CurrentTrack *Track              `json:"current_track"`
	Queue        []EnhancedQueueItem `json:"queue"`
	IsPlaying    bool                `json:"is_playing"`
	ProgressMs   int                 `json:"progress_ms"`
	Device       *Device             `json:"device"`
	Timestamp    time.Time           `json:"timestamp"`
}
