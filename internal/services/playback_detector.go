package services

import (
	"reflect"

	"dj-requests/models"
)

// NormalizedPlayback is the part of a PlaybackState that is stable between
// polls. Progress is left out on purpose: it moves every second.
type NormalizedPlayback struct {
	IsPlaying bool
	Device    *models.Device
	Item      *NormalizedTrack
}

type NormalizedTrack struct {
	ID         string
	Name       string
	URI        string
	DurationMs int
	Artists    []models.Artist
	Album      models.Album
}

func NormalizePlayback(state *models.PlaybackState) *NormalizedPlayback {
	if state == nil {
		return nil
	}

	n := &NormalizedPlayback{IsPlaying: state.IsPlaying}
	if state.Device != nil {
		d := *state.Device
		n.Device = &d
	}
	if state.Item != nil {
		n.Item = &NormalizedTrack{
			ID:         state.Item.ID,
			Name:       state.Item.Name,
			URI:        state.Item.URI,
			DurationMs: state.Item.DurationMs,
			Album: models.Album{
				ID:     state.Item.Album.ID,
				Name:   state.Item.Album.Name,
				Images: nilIfEmpty(state.Item.Album.Images),
			},
		}
		for _, a := range state.Item.Artists {
			n.Item.Artists = append(n.Item.Artists, models.Artist{ID: a.ID, Name: a.Name})
		}
	}
	return n
}

// HasMeaningfulChange reports whether anything a listener would notice
// changed between two polls.
func HasMeaningfulChange(current, previous *models.PlaybackState) bool {
	if hasCriticalChange(current, previous) {
		return true
	}
	return !reflect.DeepEqual(NormalizePlayback(current), NormalizePlayback(previous))
}

func hasCriticalChange(current, previous *models.PlaybackState) bool {
	switch {
	case current == nil && previous == nil:
		return false
	case current == nil || previous == nil:
		return true
	}

	if current.IsPlaying != previous.IsPlaying {
		return true
	}
	if trackID(current) != trackID(previous) {
		return true
	}
	return deviceID(current) != deviceID(previous)
}

// TrackChanged is true when the playing track id differs, including a track
// appearing or disappearing.
func TrackChanged(current, previous *models.PlaybackState) bool {
	return trackID(current) != trackID(previous)
}

// QueueChanged compares queues literally: order and content both count.
func QueueChanged(current, previous []models.Track) bool {
	if len(current) == 0 && len(previous) == 0 {
		return false
	}
	return !reflect.DeepEqual(current, previous)
}

func trackID(state *models.PlaybackState) string {
	if state == nil || state.Item == nil {
		return ""
	}
	return state.Item.ID
}

func deviceID(state *models.PlaybackState) string {
	if state == nil || state.Device == nil {
		return ""
	}
	return state.Device.ID
}

func nilIfEmpty(images []models.Image) []models.Image {
	if len(images) == 0 {
		return nil
	}
	return images
}
