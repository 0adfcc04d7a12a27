// Package chat holds the team chat rooms and their message history.
package chat

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/huddle/core"
	"github.com/trezcool/huddle/core/user"
)

var ErrNotFound = core.NewNotFoundError("room")

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

type (
	Room struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		TeamID    string    `json:"teamId"`
		CreatedBy string    `json:"createdBy"`
		CreatedAt time.Time `json:"createdAt"`
	}

	Message struct {
		ID        string    `json:"id"`
		RoomID    string    `json:"roomId"`
		UserID    string    `json:"userId"`
		Body      string    `json:"body"`
		CreatedAt time.Time `json:"createdAt"`
	}

	NewRoom struct {
		Name   string `json:"name" validate:"required,notblank,max=100"`
		TeamID string `json:"teamId"`
	}

	NewMessage struct {
		Body string `json:"body" validate:"required,notblank,max=4000"`
	}

	// HistoryFilter pages through a room's messages, newest first: Before is the cursor (exclusive).
	HistoryFilter struct {
		Before *time.Time `query:"-"`
		Limit  int        `query:"limit"`
	}

	Repository interface {
		CreateRoom(ctx context.Context, r Room) (Room, error)
		// QueryRooms returns the team's rooms (all of them with an empty teamID) ordered by name.
		QueryRooms(ctx context.Context, teamID string) ([]Room, error)
		GetRoom(ctx context.Context, id string) (Room, error)
		// DeleteRoom deletes the room and its messages.
		DeleteRoom(ctx context.Context, id string) error
		CreateMessage(ctx context.Context, m Message) (Message, error)
		QueryMessages(ctx context.Context, roomID string, filter HistoryFilter) ([]Message, error)
	}

	// Broadcaster delivers posted messages to the room's live subscribers.
	Broadcaster interface {
		Broadcast(roomID string, m Message)
	}

	ServiceInterface interface {
		CreateRoom(ctx context.Context, nr NewRoom, creator user.User) (Room, error)
		QueryRooms(ctx context.Context, teamID string) ([]Room, error)
		GetRoom(ctx context.Context, id string) (Room, error)
		DeleteRoom(ctx context.Context, id string) error
		Post(ctx context.Context, roomID string, nm NewMessage, author user.User) (Message, error)
		History(ctx context.Context, roomID string, filter HistoryFilter) ([]Message, error)
	}

	Service struct {
		repo        Repository
		broadcaster Broadcaster
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, broadcaster Broadcaster) *Service {
	return &Service{repo: repo, broadcaster: broadcaster}
}

func (nr *NewRoom) Validate(validate *validator.Validate) error {
	nr.Name = core.CleanString(nr.Name)
	nr.TeamID = core.CleanString(nr.TeamID)
	return validate.Struct(nr)
}

func (nm *NewMessage) Validate(validate *validator.Validate) error {
	nm.Body = core.CleanString(nm.Body)
	return validate.Struct(nm)
}

func (hf *HistoryFilter) Clean() {
	if hf.Limit <= 0 {
		hf.Limit = DefaultHistoryLimit
	} else if hf.Limit > MaxHistoryLimit {
		hf.Limit = MaxHistoryLimit
	}
	if hf.Before != nil {
		before := hf.Before.UTC()
		hf.Before = &before
	}
}

func (svc *Service) CreateRoom(ctx context.Context, nr NewRoom, creator user.User) (Room, error) {
	teamID := nr.TeamID
	if teamID == "" {
		teamID = creator.TeamID
	}
	return svc.repo.CreateRoom(ctx, Room{
		Name:      nr.Name,
		TeamID:    teamID,
		CreatedBy: creator.ID,
		CreatedAt: time.Now().UTC(),
	})
}

func (svc *Service) QueryRooms(ctx context.Context, teamID string) ([]Room, error) {
	return svc.repo.QueryRooms(ctx, teamID)
}

func (svc *Service) GetRoom(ctx context.Context, id string) (Room, error) {
	return svc.repo.GetRoom(ctx, id)
}

func (svc *Service) DeleteRoom(ctx context.Context, id string) error {
	return svc.repo.DeleteRoom(ctx, id)
}

// Post saves the message then broadcasts it to the room's live subscribers.
func (svc *Service) Post(ctx context.Context, roomID string, nm NewMessage, author user.User) (Message, error) {
	if _, err := svc.repo.GetRoom(ctx, roomID); err != nil {
		return Message{}, err
	}
	m, err := svc.repo.CreateMessage(ctx, Message{
		RoomID:    roomID,
		UserID:    author.ID,
		Body:      nm.Body,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return Message{}, err
	}
	if svc.broadcaster != nil {
		svc.broadcaster.Broadcast(roomID, m)
	}
	return m, nil
}

// History returns the room's messages, newest first.
func (svc *Service) History(ctx context.Context, roomID string, filter HistoryFilter) ([]Message, error) {
	if _, err := svc.repo.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	filter.Clean()
	return svc.repo.QueryMessages(ctx, roomID, filter)
}

// CanAccess reports whether usr may read and post in r.
func CanAccess(usr user.User, r Room) bool {
	return usr.IsAdmin() || usr.TeamID == "" || r.TeamID == "" || usr.TeamID == r.TeamID
}
