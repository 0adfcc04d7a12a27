package gormdb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/trezcool/huddle/core/chat"
)

type (
	roomRow struct {
		ID        string `gorm:"primaryKey"`
		Name      string
		TeamID    string `gorm:"index"`
		CreatedBy string
		CreatedAt time.Time
	}

	messageRow struct {
		ID        string    `gorm:"primaryKey"`
		RoomID    string    `gorm:"index:idx_chat_messages_room_created"`
		UserID    string
		Body      string
		CreatedAt time.Time `gorm:"index:idx_chat_messages_room_created"`
	}
)

func (roomRow) TableName() string    { return "chat_rooms" }
func (messageRow) TableName() string { return "chat_messages" }

func roomFromRow(row roomRow) chat.Room {
	return chat.Room{
		ID:        row.ID,
		Name:      row.Name,
		TeamID:    row.TeamID,
		CreatedBy: row.CreatedBy,
		CreatedAt: row.CreatedAt.UTC(),
	}
}

func messageFromRow(row messageRow) chat.Message {
	return chat.Message{
		ID:        row.ID,
		RoomID:    row.RoomID,
		UserID:    row.UserID,
		Body:      row.Body,
		CreatedAt: row.CreatedAt.UTC(),
	}
}

type chatRepository struct {
	db *gorm.DB
}

var _ chat.Repository = (*chatRepository)(nil) // interface compliance check

func NewChatRepository(db *gorm.DB) *chatRepository {
	return &chatRepository{db: db}
}

func (repo chatRepository) CreateRoom(ctx context.Context, r chat.Room) (chat.Room, error) {
	row := roomRow{
		ID:        newID(),
		Name:      r.Name,
		TeamID:    r.TeamID,
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt.UTC(),
	}
	if err := repo.db.WithContext(ctx).Create(&row).Error; err != nil {
		return chat.Room{}, errors.Wrap(err, "inserting room")
	}
	return roomFromRow(row), nil
}

func (repo chatRepository) QueryRooms(ctx context.Context, teamID string) ([]chat.Room, error) {
	q := repo.db.WithContext(ctx).Model(&roomRow{})
	if teamID != "" {
		q = q.Where("team_id = ? OR team_id = ''", teamID)
	}
	var rows []roomRow
	if err := q.Order("name").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "querying rooms")
	}
	rooms := make([]chat.Room, 0, len(rows))
	for _, row := range rows {
		rooms = append(rooms, roomFromRow(row))
	}
	return rooms, nil
}

func (repo chatRepository) GetRoom(ctx context.Context, id string) (chat.Room, error) {
	if !validID(id) {
		return chat.Room{}, chat.ErrNotFound
	}
	var row roomRow
	if err := repo.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return chat.Room{}, trapNotFound(err, chat.ErrNotFound, "finding room")
	}
	return roomFromRow(row), nil
}

func (repo chatRepository) DeleteRoom(ctx context.Context, id string) error {
	if !validID(id) {
		return chat.ErrNotFound
	}
	return repo.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", id).Delete(&messageRow{}).Error; err != nil {
			return errors.Wrap(err, "deleting messages")
		}
		res := tx.Where("id = ?", id).Delete(&roomRow{})
		if res.Error != nil {
			return errors.Wrap(res.Error, "deleting room")
		}
		if res.RowsAffected == 0 {
			return chat.ErrNotFound
		}
		return nil
	})
}

func (repo chatRepository) CreateMessage(ctx context.Context, m chat.Message) (chat.Message, error) {
	row := messageRow{
		ID:        newID(),
		RoomID:    m.RoomID,
		UserID:    m.UserID,
		Body:      m.Body,
		CreatedAt: m.CreatedAt.UTC(),
	}
	if err := repo.db.WithContext(ctx).Create(&row).Error; err != nil {
		return chat.Message{}, errors.Wrap(err, "inserting message")
	}
	return messageFromRow(row), nil
}

func (repo chatRepository) QueryMessages(ctx context.Context, roomID string, filter chat.HistoryFilter) ([]chat.Message, error) {
	q := repo.db.WithContext(ctx).Where("room_id = ?", roomID)
	if filter.Before != nil {
		q = q.Where("created_at < ?", filter.Before.UTC())
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var rows []messageRow
	if err := q.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "querying messages")
	}
	messages := make([]chat.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, messageFromRow(row))
	}
	return messages, nil
}
