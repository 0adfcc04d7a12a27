package gormdb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trezcool/huddle/core/video"
)

type (
	videoRow struct {
		ID              string `gorm:"primaryKey"`
		ExternalID      string `gorm:"uniqueIndex"`
		Title           string
		Description     string
		ChannelID       string `gorm:"index"`
		ThumbnailURL    string
		DurationSeconds int
		PublishedAt     *time.Time
		CreatedAt       time.Time
		UpdatedAt       time.Time
		Markers         []markerRow `gorm:"foreignKey:VideoID"`
	}

	markerRow struct {
		ID        string  `gorm:"primaryKey"`
		VideoID   string  `gorm:"index:idx_video_markers_video_timestamp"`
		Timestamp float64 `gorm:"index:idx_video_markers_video_timestamp"`
		Label     string
		Note      string
		Color     string
		CreatedBy string
		CreatedAt time.Time
		UpdatedAt time.Time
	}
)

func (videoRow) TableName() string  { return "videos" }
func (markerRow) TableName() string { return "video_markers" }

func videoFromRow(row videoRow) video.Video {
	v := video.Video{
		ID:              row.ID,
		ExternalID:      row.ExternalID,
		Title:           row.Title,
		Description:     row.Description,
		ChannelID:       row.ChannelID,
		ThumbnailURL:    row.ThumbnailURL,
		DurationSeconds: row.DurationSeconds,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
	if row.PublishedAt != nil {
		published := row.PublishedAt.UTC()
		v.PublishedAt = &published
	}
	for _, m := range row.Markers {
		v.Markers = append(v.Markers, markerFromRow(m))
	}
	return v
}

func markerToRow(m video.Marker) markerRow {
	return markerRow{
		ID:        m.ID,
		VideoID:   m.VideoID,
		Timestamp: m.Timestamp,
		Label:     m.Label,
		Note:      m.Note,
		Color:     m.Color,
		CreatedBy: m.CreatedBy,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

func markerFromRow(row markerRow) video.Marker {
	return video.Marker{
		ID:        row.ID,
		VideoID:   row.VideoID,
		Timestamp: row.Timestamp,
		Label:     row.Label,
		Note:      row.Note,
		Color:     row.Color,
		CreatedBy: row.CreatedBy,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

func orderedMarkers(db *gorm.DB) *gorm.DB {
	return db.Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}}).Order("created_at")
}

type videoRepository struct {
	db *gorm.DB
}

var _ video.Repository = (*videoRepository)(nil) // interface compliance check

func NewVideoRepository(db *gorm.DB) *videoRepository {
	return &videoRepository{db: db}
}

func (repo videoRepository) QueryVideos(ctx context.Context, filter video.QueryFilter) ([]video.Video, error) {
	q := repo.db.WithContext(ctx).Model(&videoRow{})
	if filter.Search != "" {
		q = likeAny(q, filter.Search, "title", "description")
	}
	if filter.ChannelID != "" {
		q = q.Where("channel_id = ?", filter.ChannelID)
	}

	var rows []videoRow
	if err := q.Order("published_at DESC").Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "querying videos")
	}
	videos := make([]video.Video, 0, len(rows))
	for _, row := range rows {
		videos = append(videos, videoFromRow(row))
	}
	return videos, nil
}

func (repo videoRepository) GetVideo(ctx context.Context, id string, withMarkers bool) (video.Video, error) {
	if !validID(id) {
		return video.Video{}, video.ErrNotFound
	}
	q := repo.db.WithContext(ctx)
	if withMarkers {
		q = q.Preload("Markers", orderedMarkers)
	}
	var row videoRow
	if err := q.Where("id = ?", id).Take(&row).Error; err != nil {
		return video.Video{}, trapNotFound(err, video.ErrNotFound, "finding video")
	}
	v := videoFromRow(row)
	if withMarkers && v.Markers == nil {
		v.Markers = []video.Marker{}
	}
	return v, nil
}

func (repo videoRepository) UpsertVideo(ctx context.Context, v video.Video) (video.Video, bool, error) {
	row := videoRow{
		ExternalID:      v.ExternalID,
		Title:           v.Title,
		Description:     v.Description,
		ChannelID:       v.ChannelID,
		ThumbnailURL:    v.ThumbnailURL,
		DurationSeconds: v.DurationSeconds,
		PublishedAt:     v.PublishedAt,
		CreatedAt:       v.CreatedAt.UTC(),
		UpdatedAt:       v.UpdatedAt.UTC(),
	}

	var created bool
	err := repo.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing videoRow
		err := tx.Where("external_id = ?", v.ExternalID).Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			created = true
			row.ID = newID()
			return tx.Create(&row).Error
		case err != nil:
			return err
		}

		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
		return tx.Model(&videoRow{}).Where("id = ?", row.ID).Select("*").Omit("id", "created_at", "Markers").Updates(&row).Error
	})
	if err != nil {
		return video.Video{}, false, errors.Wrap(err, "saving video")
	}
	return videoFromRow(row), created, nil
}

func (repo videoRepository) DeleteVideo(ctx context.Context, id string) error {
	if !validID(id) {
		return video.ErrNotFound
	}
	return repo.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("video_id = ?", id).Delete(&markerRow{}).Error; err != nil {
			return errors.Wrap(err, "deleting markers")
		}
		res := tx.Where("id = ?", id).Delete(&videoRow{})
		if res.Error != nil {
			return errors.Wrap(res.Error, "deleting video")
		}
		if res.RowsAffected == 0 {
			return video.ErrNotFound
		}
		return nil
	})
}

// Markers

func (repo videoRepository) QueryMarkers(ctx context.Context, videoID string) ([]video.Marker, error) {
	var rows []markerRow
	if err := orderedMarkers(repo.db.WithContext(ctx).Where("video_id = ?", videoID)).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "querying markers")
	}
	markers := make([]video.Marker, 0, len(rows))
	for _, row := range rows {
		markers = append(markers, markerFromRow(row))
	}
	return markers, nil
}

func (repo videoRepository) CreateMarker(ctx context.Context, m video.Marker) (video.Marker, error) {
	m.ID = newID()
	row := markerToRow(m)
	if err := repo.db.WithContext(ctx).Create(&row).Error; err != nil {
		return video.Marker{}, errors.Wrap(err, "inserting marker")
	}
	return markerFromRow(row), nil
}

func (repo videoRepository) GetMarker(ctx context.Context, videoID, markerID string) (video.Marker, error) {
	if !validID(markerID) {
		return video.Marker{}, video.ErrMarkerNotFound
	}
	var row markerRow
	err := repo.db.WithContext(ctx).Where("id = ? AND video_id = ?", markerID, videoID).Take(&row).Error
	if err != nil {
		return video.Marker{}, trapNotFound(err, video.ErrMarkerNotFound, "finding marker")
	}
	return markerFromRow(row), nil
}

func (repo videoRepository) UpdateMarker(ctx context.Context, m video.Marker) (video.Marker, error) {
	row := markerToRow(m)
	res := repo.db.WithContext(ctx).Model(&markerRow{}).Where("id = ?", m.ID).
		Select("*").Omit("id", "video_id", "created_by", "created_at").Updates(&row)
	if res.Error != nil {
		return video.Marker{}, errors.Wrap(res.Error, "updating marker")
	}
	if res.RowsAffected == 0 {
		return video.Marker{}, video.ErrMarkerNotFound
	}
	return m, nil
}

func (repo videoRepository) DeleteMarker(ctx context.Context, videoID, markerID string) error {
	if !validID(markerID) {
		return video.ErrMarkerNotFound
	}
	res := repo.db.WithContext(ctx).Where("id = ? AND video_id = ?", markerID, videoID).Delete(&markerRow{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "deleting marker")
	}
	if res.RowsAffected == 0 {
		return video.ErrMarkerNotFound
	}
	return nil
}
