// Package announcement publishes team announcements and pushes them to subscribed devices.
package announcement

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/huddle/core"
	"github.com/trezcool/huddle/core/push"
	"github.com/trezcool/huddle/core/user"
)

var ErrNotFound = core.NewNotFoundError("announcement")

type (
	Announcement struct {
		ID        string    `json:"id"`
		Title     string    `json:"title"`
		Body      string    `json:"body"`
		URL       string    `json:"url"`
		TeamID    string    `json:"teamId"`
		CreatedBy string    `json:"createdBy"`
		CreatedAt time.Time `json:"createdAt"`
	}

	NewAnnouncement struct {
		Title  string `json:"title" validate:"required,notblank,max=200"`
		Body   string `json:"body" validate:"max=4000"`
		URL    string `json:"url" validate:"omitempty,max=2000"`
		TeamID string `json:"teamId"`
	}

	// Published is a created announcement with the result of its push fan-out.
	Published struct {
		Announcement
		Delivery push.Report `json:"delivery"`
	}

	QueryFilter struct {
		TeamID string `query:"team"`
		Limit  int    `query:"limit"`
	}

	Repository interface {
		CreateAnnouncement(ctx context.Context, a Announcement) (Announcement, error)
		// QueryAnnouncements returns the newest announcements first.
		QueryAnnouncements(ctx context.Context, filter QueryFilter) ([]Announcement, error)
		GetAnnouncement(ctx context.Context, id string) (Announcement, error)
		DeleteAnnouncement(ctx context.Context, id string) error
	}

	Notifier interface {
		Notify(ctx context.Context, n push.Notification, userIDs ...string) (push.Report, error)
	}

	ServiceInterface interface {
		Create(ctx context.Context, na NewAnnouncement, creator user.User) (Published, error)
		Query(ctx context.Context, filter QueryFilter) ([]Announcement, error)
		Get(ctx context.Context, id string) (Announcement, error)
		Delete(ctx context.Context, id string) error
	}

	Service struct {
		repo     Repository
		notifier Notifier
		logger   core.Logger
	}
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, notifier Notifier, logger core.Logger) *Service {
	return &Service{repo: repo, notifier: notifier, logger: logger}
}

func (na *NewAnnouncement) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Body = core.CleanString(na.Body)
	na.URL = core.CleanString(na.URL)
	na.TeamID = core.CleanString(na.TeamID)
	return validate.Struct(na)
}

func (qf *QueryFilter) Clean() {
	qf.TeamID = core.CleanString(qf.TeamID)
	if qf.Limit <= 0 {
		qf.Limit = defaultLimit
	} else if qf.Limit > maxLimit {
		qf.Limit = maxLimit
	}
}

// Create saves the announcement, then pushes it to every subscription and waits for the fan-out.
// A failed fan-out does not fail the creation.
func (svc *Service) Create(ctx context.Context, na NewAnnouncement, creator user.User) (Published, error) {
	teamID := na.TeamID
	if teamID == "" {
		teamID = creator.TeamID
	}
	a, err := svc.repo.CreateAnnouncement(ctx, Announcement{
		Title:     na.Title,
		Body:      na.Body,
		URL:       na.URL,
		TeamID:    teamID,
		CreatedBy: creator.ID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return Published{}, err
	}

	pub := Published{Announcement: a}
	pub.Delivery, err = svc.notifier.Notify(ctx, push.Notification{
		Title: a.Title,
		Body:  a.Body,
		URL:   a.URL,
		Tag:   "announcement:" + a.ID,
	})
	if err != nil {
		svc.logger.Error("pushing announcement", err, creator)
	}
	return pub, nil
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Announcement, error) {
	filter.Clean()
	return svc.repo.QueryAnnouncements(ctx, filter)
}

func (svc *Service) Get(ctx context.Context, id string) (Announcement, error) {
	return svc.repo.GetAnnouncement(ctx, id)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteAnnouncement(ctx, id)
}
