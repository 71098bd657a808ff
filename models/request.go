package models

import (
	"time"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
	RequestPlayed   RequestStatus = "played"
)

// TimestampField returns the record field stamped when a request enters status s.
func (s RequestStatus) TimestampField() string {
	switch s {
	case RequestApproved:
		return "approved_at"
	case RequestRejected:
		return "rejected_at"
	case RequestPlayed:
		return "played_at"
	}
	return ""
}

type Request struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	TrackURI      string        `json:"track_uri"`
	TrackName     string        `json:"track_name"`
	ArtistName    string        `json:"artist_name"`
	AlbumName     string        `json:"album_name"`
	DurationMs    int           `json:"duration_ms"`
	RequesterName string        `json:"requester_name"`
	Status        RequestStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	ApprovedAt    *time.Time    `json:"approved_at,omitempty"`
	RejectedAt    *time.Time    `json:"rejected_at,omitempty"`
	PlayedAt      *time.Time    `json:"played_at,omitempty"`
}

type RequestStats struct {
	Total            int `json:"total"`
	Pending          int `json:"pending"`
	Approved         int `json:"approved"`
	Rejected         int `json:"rejected"`
	Played           int `json:"played"`
	UniqueRequesters int `json:"unique_requesters"`
}
