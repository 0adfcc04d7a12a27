package video

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/huddle/core"
)

type (
	Video struct {
		ID              string     `json:"id"`
		ExternalID      string     `json:"externalId"`
		Title           string     `json:"title"`
		Description     string     `json:"description"`
		ChannelID       string     `json:"channelId"`
		ThumbnailURL    string     `json:"thumbnailUrl"`
		DurationSeconds int        `json:"durationSeconds"`
		PublishedAt     *time.Time `json:"publishedAt"`
		CreatedAt       time.Time  `json:"createdAt"`
		UpdatedAt       time.Time  `json:"updatedAt"`
		Markers         []Marker   `json:"markers,omitempty"`
	}

	// Marker is a note pinned at a moment of a video.
	Marker struct {
		ID        string    `json:"id"`
		VideoID   string    `json:"videoId"`
		Timestamp float64   `json:"timestamp"` // seconds from the start
		Label     string    `json:"label"`
		Note      string    `json:"note"`
		Color     string    `json:"color"`
		CreatedBy string    `json:"createdBy"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	// Metadata is what the video platform knows about a video.
	Metadata struct {
		ExternalID      string
		Title           string
		Description     string
		ChannelID       string
		ThumbnailURL    string
		DurationSeconds int
		PublishedAt     *time.Time
	}

	// Page is one page of a channel listing; an empty NextPageToken ends the listing.
	Page struct {
		Items         []Metadata
		NextPageToken string
	}

	SyncResult struct {
		ChannelID string `json:"channelId"`
		Fetched   int    `json:"fetched"`
		Created   int    `json:"created"`
		Updated   int    `json:"updated"`
		Skipped   int    `json:"skipped"` // duplicates within the listing
		Pages     int    `json:"pages"`
	}

	ImportVideo struct {
		ExternalID string `json:"externalId" validate:"required,max=64"`
	}

	SyncChannel struct {
		ChannelID string `json:"channelId" validate:"max=64"`
	}

	NewMarker struct {
		Timestamp float64 `json:"timestamp" validate:"gte=0"`
		Label     string  `json:"label" validate:"required,notblank,max=200"`
		Note      string  `json:"note" validate:"max=4000"`
		Color     string  `json:"color" validate:"max=16"`
	}

	UpdateMarker struct {
		Timestamp *float64 `json:"timestamp" validate:"omitempty,gte=0"`
		Label     *string  `json:"label" validate:"omitempty,notblank,max=200"`
		Note      *string  `json:"note" validate:"omitempty,max=4000"`
		Color     *string  `json:"color" validate:"omitempty,max=16"`
	}

	QueryFilter struct {
		Search    string `query:"search"`
		ChannelID string `query:"channel"`
	}
)

func (iv *ImportVideo) Validate(validate *validator.Validate) error {
	iv.ExternalID = core.CleanString(iv.ExternalID)
	return validate.Struct(iv)
}

func (sc *SyncChannel) Validate(validate *validator.Validate) error {
	sc.ChannelID = core.CleanString(sc.ChannelID)
	return validate.Struct(sc)
}

func (nm *NewMarker) Validate(validate *validator.Validate) error {
	nm.Label = core.CleanString(nm.Label)
	nm.Note = core.CleanString(nm.Note)
	nm.Color = core.CleanString(nm.Color, true)
	return validate.Struct(nm)
}

func (um *UpdateMarker) Validate(validate *validator.Validate) error {
	return validate.Struct(um)
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search, true)
	qf.ChannelID = core.CleanString(qf.ChannelID)
}

func (m Metadata) apply(v *Video) {
	v.ExternalID = m.ExternalID
	v.Title = m.Title
	v.Description = m.Description
	v.ChannelID = m.ChannelID
	v.ThumbnailURL = m.ThumbnailURL
	v.DurationSeconds = m.DurationSeconds
	v.PublishedAt = m.PublishedAt
}
