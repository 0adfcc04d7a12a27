package gormdb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trezcool/huddle/core/announcement"
	"github.com/trezcool/huddle/core/push"
)

type (
	subscriptionRow struct {
		ID        string `gorm:"primaryKey"`
		UserID    string `gorm:"index"`
		Endpoint  string `gorm:"uniqueIndex"`
		P256dh    string
		Auth      string
		CreatedAt time.Time
	}

	announcementRow struct {
		ID        string `gorm:"primaryKey"`
		Title     string
		Body      string
		URL       string
		TeamID    string `gorm:"index"`
		CreatedBy string
		CreatedAt time.Time `gorm:"index"`
	}
)

func (subscriptionRow) TableName() string { return "push_subscriptions" }
func (announcementRow) TableName() string { return "announcements" }

func subscriptionFromRow(row subscriptionRow) push.Subscription {
	return push.Subscription{
		ID:        row.ID,
		UserID:    row.UserID,
		Endpoint:  row.Endpoint,
		Keys:      push.Keys{P256dh: row.P256dh, Auth: row.Auth},
		CreatedAt: row.CreatedAt.UTC(),
	}
}

type pushRepository struct {
	db *gorm.DB
}

var _ push.Repository = (*pushRepository)(nil) // interface compliance check

func NewPushRepository(db *gorm.DB) *pushRepository {
	return &pushRepository{db: db}
}

func (repo pushRepository) SaveSubscription(ctx context.Context, sub push.Subscription) (push.Subscription, error) {
	row := subscriptionRow{
		ID:        newID(),
		UserID:    sub.UserID,
		Endpoint:  sub.Endpoint,
		P256dh:    sub.Keys.P256dh,
		Auth:      sub.Keys.Auth,
		CreatedAt: sub.CreatedAt.UTC(),
	}
	var saved subscriptionRow
	err := repo.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth"}),
		}).Create(&row).Error
		if err != nil {
			return err
		}
		return tx.Where("endpoint = ?", row.Endpoint).Take(&saved).Error
	})
	if err != nil {
		return push.Subscription{}, errors.Wrap(err, "saving subscription")
	}
	return subscriptionFromRow(saved), nil
}

func (repo pushRepository) QuerySubscriptions(ctx context.Context, userIDs ...string) ([]push.Subscription, error) {
	q := repo.db.WithContext(ctx).Model(&subscriptionRow{})
	if len(userIDs) > 0 {
		q = q.Where("user_id IN ?", userIDs)
	}
	var rows []subscriptionRow
	if err := q.Order("created_at").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "querying subscriptions")
	}
	subs := make([]push.Subscription, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, subscriptionFromRow(row))
	}
	return subs, nil
}

func (repo pushRepository) DeleteSubscription(ctx context.Context, userID, endpoint string) error {
	res := repo.db.WithContext(ctx).Where("user_id = ? AND endpoint = ?", userID, endpoint).Delete(&subscriptionRow{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "deleting subscription")
	}
	if res.RowsAffected == 0 {
		return push.ErrNotFound
	}
	return nil
}

func (repo pushRepository) DeleteSubscriptions(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	err := repo.db.WithContext(ctx).Where("id IN ?", ids).Delete(&subscriptionRow{}).Error
	return errors.Wrap(err, "deleting subscriptions")
}

// Announcements

func announcementFromRow(row announcementRow) announcement.Announcement {
	return announcement.Announcement{
		ID:        row.ID,
		Title:     row.Title,
		Body:      row.Body,
		URL:       row.URL,
		TeamID:    row.TeamID,
		CreatedBy: row.CreatedBy,
		CreatedAt: row.CreatedAt.UTC(),
	}
}

type announcementRepository struct {
	db *gorm.DB
}

var _ announcement.Repository = (*announcementRepository)(nil) // interface compliance check

func NewAnnouncementRepository(db *gorm.DB) *announcementRepository {
	return &announcementRepository{db: db}
}

func (repo announcementRepository) CreateAnnouncement(ctx context.Context, a announcement.Announcement) (announcement.Announcement, error) {
	row := announcementRow{
		ID:        newID(),
		Title:     a.Title,
		Body:      a.Body,
		URL:       a.URL,
		TeamID:    a.TeamID,
		CreatedBy: a.CreatedBy,
		CreatedAt: a.CreatedAt.UTC(),
	}
	if err := repo.db.WithContext(ctx).Create(&row).Error; err != nil {
		return announcement.Announcement{}, errors.Wrap(err, "inserting announcement")
	}
	return announcementFromRow(row), nil
}

func (repo announcementRepository) QueryAnnouncements(ctx context.Context, filter announcement.QueryFilter) ([]announcement.Announcement, error) {
	q := repo.db.WithContext(ctx).Model(&announcementRow{})
	if filter.TeamID != "" {
		q = q.Where("team_id = ? OR team_id = ''", filter.TeamID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var rows []announcementRow
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "querying announcements")
	}
	out := make([]announcement.Announcement, 0, len(rows))
	for _, row := range rows {
		out = append(out, announcementFromRow(row))
	}
	return out, nil
}

func (repo announcementRepository) GetAnnouncement(ctx context.Context, id string) (announcement.Announcement, error) {
	if !validID(id) {
		return announcement.Announcement{}, announcement.ErrNotFound
	}
	var row announcementRow
	if err := repo.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return announcement.Announcement{}, trapNotFound(err, announcement.ErrNotFound, "finding announcement")
	}
	return announcementFromRow(row), nil
}

func (repo announcementRepository) DeleteAnnouncement(ctx context.Context, id string) error {
	if !validID(id) {
		return announcement.ErrNotFound
	}
	res := repo.db.WithContext(ctx).Where("id = ?", id).Delete(&announcementRow{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "deleting announcement")
	}
	if res.RowsAffected == 0 {
		return announcement.ErrNotFound
	}
	return nil
}
