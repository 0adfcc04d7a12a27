// Package video manages the film-study library: videos imported from the video platform and their markers.
package video

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/huddle/core"
	"github.com/trezcool/huddle/core/user"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("video")
	ErrMarkerNotFound = core.NewNotFoundError("marker")
	ErrNoProvider     = core.NewValidationError(errors.New("no video provider is configured"))
	ErrNoChannel      = core.NewValidationError(nil, core.FieldError{Field: "channelId", Error: "this field is required"})
)

// maxSyncPages bounds a channel sync.
const maxSyncPages = 100

type (
	// Provider looks videos up on the video platform.
	Provider interface {
		// Lookup returns the metadata of a video; an unknown id yields ErrNotFound.
		Lookup(ctx context.Context, externalID string) (Metadata, error)
		// ListChannel returns a page of the channel's videos; an empty pageToken starts the listing.
		ListChannel(ctx context.Context, channelID, pageToken string) (Page, error)
	}

	SyncMetrics interface {
		RecordSync(res SyncResult, err error)
	}

	Repository interface {
		QueryVideos(ctx context.Context, filter QueryFilter) ([]Video, error)
		GetVideo(ctx context.Context, id string, withMarkers bool) (Video, error)
		// UpsertVideo inserts v, or updates the video having the same external id. Reports whether v was created.
		UpsertVideo(ctx context.Context, v Video) (Video, bool, error)
		// DeleteVideo deletes the video and its markers.
		DeleteVideo(ctx context.Context, id string) error

		// QueryMarkers returns the video's markers ordered by timestamp.
		QueryMarkers(ctx context.Context, videoID string) ([]Marker, error)
		CreateMarker(ctx context.Context, m Marker) (Marker, error)
		GetMarker(ctx context.Context, videoID, markerID string) (Marker, error)
		UpdateMarker(ctx context.Context, m Marker) (Marker, error)
		DeleteMarker(ctx context.Context, videoID, markerID string) error
	}

	ServiceInterface interface {
		Query(ctx context.Context, filter QueryFilter) ([]Video, error)
		Get(ctx context.Context, id string) (Video, error)
		Import(ctx context.Context, iv ImportVideo) (Video, error)
		Delete(ctx context.Context, id string) error
		Sync(ctx context.Context, channelID string) (SyncResult, error)

		ListMarkers(ctx context.Context, videoID string) ([]Marker, error)
		CreateMarker(ctx context.Context, videoID string, nm NewMarker, creator user.User) (Marker, error)
		UpdateMarker(ctx context.Context, videoID, markerID string, um UpdateMarker) (Marker, error)
		DeleteMarker(ctx context.Context, videoID, markerID string) error
	}

	Service struct {
		repo           Repository
		provider       Provider
		metrics        SyncMetrics
		defaultChannel string
	}
)

var _ ServiceInterface = (*Service)(nil)

// NewService builds the video service. provider may be nil when no video platform is configured:
// imports and syncs are then rejected.
func NewService(repo Repository, provider Provider, metrics SyncMetrics, conf *core.Config) *Service {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Service{repo: repo, provider: provider, metrics: metrics, defaultChannel: conf.Video.ChannelID}
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Video, error) {
	filter.Clean()
	return svc.repo.QueryVideos(ctx, filter)
}

// Get returns the video with its markers.
func (svc *Service) Get(ctx context.Context, id string) (Video, error) {
	return svc.repo.GetVideo(ctx, id, true)
}

// Import fetches the video's metadata and saves it, updating the video when already imported.
func (svc *Service) Import(ctx context.Context, iv ImportVideo) (Video, error) {
	if svc.provider == nil {
		return Video{}, ErrNoProvider
	}
	meta, err := svc.provider.Lookup(ctx, iv.ExternalID)
	if err != nil {
		return Video{}, err
	}
	v, _, err := svc.save(ctx, meta)
	return v, err
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteVideo(ctx, id)
}

// Sync imports every video of the channel (the configured one when channelID is empty), page by page.
// Videos listed twice are only saved once.
func (svc *Service) Sync(ctx context.Context, channelID string) (res SyncResult, err error) {
	if svc.provider == nil {
		return SyncResult{}, ErrNoProvider
	}
	if channelID == "" {
		channelID = svc.defaultChannel
	}
	if channelID == "" {
		return SyncResult{}, ErrNoChannel
	}
	res.ChannelID = channelID
	defer func() { svc.metrics.RecordSync(res, err) }()

	seen := make(map[string]bool)
	seenTokens := make(map[string]bool)
	var token string
	for res.Pages < maxSyncPages {
		page, err := svc.provider.ListChannel(ctx, channelID, token)
		if err != nil {
			return res, errors.Wrapf(err, "listing channel %s", channelID)
		}
		res.Pages++

		for _, meta := range page.Items {
			res.Fetched++
			if meta.ExternalID == "" || seen[meta.ExternalID] {
				res.Skipped++
				continue
			}
			seen[meta.ExternalID] = true
			if meta.ChannelID == "" {
				meta.ChannelID = channelID
			}

			_, created, err := svc.save(ctx, meta)
			if err != nil {
				return res, err
			}
			if created {
				res.Created++
			} else {
				res.Updated++
			}
		}

		token = page.NextPageToken
		if token == "" || seenTokens[token] {
			break
		}
		seenTokens[token] = true
	}
	return res, nil
}

func (svc *Service) save(ctx context.Context, meta Metadata) (Video, bool, error) {
	now := time.Now().UTC()
	v := Video{CreatedAt: now, UpdatedAt: now}
	meta.apply(&v)
	return svc.repo.UpsertVideo(ctx, v)
}

// Markers

func (svc *Service) ListMarkers(ctx context.Context, videoID string) ([]Marker, error) {
	if _, err := svc.repo.GetVideo(ctx, videoID, false); err != nil {
		return nil, err
	}
	return svc.repo.QueryMarkers(ctx, videoID)
}

func (svc *Service) CreateMarker(ctx context.Context, videoID string, nm NewMarker, creator user.User) (Marker, error) {
	if _, err := svc.repo.GetVideo(ctx, videoID, false); err != nil {
		return Marker{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateMarker(ctx, Marker{
		VideoID:   videoID,
		Timestamp: nm.Timestamp,
		Label:     nm.Label,
		Note:      nm.Note,
		Color:     nm.Color,
		CreatedBy: creator.ID,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *Service) UpdateMarker(ctx context.Context, videoID, markerID string, um UpdateMarker) (Marker, error) {
	m, err := svc.repo.GetMarker(ctx, videoID, markerID)
	if err != nil {
		return Marker{}, err
	}
	if um.Timestamp != nil {
		m.Timestamp = *um.Timestamp
	}
	if um.Label != nil {
		m.Label = core.CleanString(*um.Label)
	}
	if um.Note != nil {
		m.Note = core.CleanString(*um.Note)
	}
	if um.Color != nil {
		m.Color = core.CleanString(*um.Color, true)
	}
	m.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateMarker(ctx, m)
}

func (svc *Service) DeleteMarker(ctx context.Context, videoID, markerID string) error {
	return svc.repo.DeleteMarker(ctx, videoID, markerID)
}

type noopMetrics struct{}

func (noopMetrics) RecordSync(SyncResult, error) {}
