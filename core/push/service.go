// Package push keeps users' web-push subscriptions and fans notifications out to them.
package push

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/huddle/core"
	"github.com/trezcool/huddle/core/user"
)

var ErrNotFound = core.NewNotFoundError("subscription")

const defaultConcurrency = 16

// delivery results
const (
	ResultSent    = "sent"
	ResultExpired = "expired"
	ResultFailed  = "failed"
)

type (
	Repository interface {
		// SaveSubscription inserts sub, or updates the subscription having the same endpoint.
		SaveSubscription(ctx context.Context, sub Subscription) (Subscription, error)
		// QuerySubscriptions returns the subscriptions of the given users, or all of them when none is given.
		QuerySubscriptions(ctx context.Context, userIDs ...string) ([]Subscription, error)
		DeleteSubscription(ctx context.Context, userID, endpoint string) error
		DeleteSubscriptions(ctx context.Context, ids ...string) error
	}

	// Sender delivers a payload to one subscription and returns the push service's HTTP status.
	Sender interface {
		Send(ctx context.Context, sub Subscription, payload []byte) (int, error)
	}

	Metrics interface {
		RecordDelivery(result string)
	}

	ServiceInterface interface {
		Subscribe(ctx context.Context, ns NewSubscription, usr user.User) (Subscription, error)
		Unsubscribe(ctx context.Context, endpoint string, usr user.User) error
		Subscriptions(ctx context.Context, usr user.User) ([]Subscription, error)
		Notify(ctx context.Context, n Notification, userIDs ...string) (Report, error)
	}

	Service struct {
		repo        Repository
		sender      Sender
		metrics     Metrics
		logger      core.Logger
		concurrency int
	}
)

var _ ServiceInterface = (*Service)(nil)

// NewService builds the push service. A nil sender disables delivery (every Notify returns an empty report).
func NewService(repo Repository, sender Sender, metrics Metrics, logger core.Logger, conf *core.Config) *Service {
	concurrency := conf.Push.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Service{repo: repo, sender: sender, metrics: metrics, logger: logger, concurrency: concurrency}
}

func (svc *Service) Subscribe(ctx context.Context, ns NewSubscription, usr user.User) (Subscription, error) {
	return svc.repo.SaveSubscription(ctx, Subscription{
		UserID:    usr.ID,
		Endpoint:  ns.Endpoint,
		Keys:      ns.Keys,
		CreatedAt: time.Now().UTC(),
	})
}

func (svc *Service) Unsubscribe(ctx context.Context, endpoint string, usr user.User) error {
	return svc.repo.DeleteSubscription(ctx, usr.ID, endpoint)
}

func (svc *Service) Subscriptions(ctx context.Context, usr user.User) ([]Subscription, error) {
	return svc.repo.QuerySubscriptions(ctx, usr.ID)
}

// Notify sends n to every subscription of the given users (everyone when none is given) and waits for all sends.
// Subscriptions the push service reports as gone (404, 410) are deleted; other failures are logged and ignored.
func (svc *Service) Notify(ctx context.Context, n Notification, userIDs ...string) (Report, error) {
	if svc.sender == nil {
		return Report{}, nil
	}
	subs, err := svc.repo.QuerySubscriptions(ctx, userIDs...)
	if err != nil {
		return Report{}, errors.Wrap(err, "querying subscriptions")
	}
	if len(subs) == 0 {
		return Report{}, nil
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return Report{}, errors.Wrap(err, "encoding notification")
	}

	var (
		mu      sync.Mutex
		report  Report
		expired []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(svc.concurrency)
	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			result := svc.deliver(gctx, sub, payload)
			svc.metrics.RecordDelivery(result)

			mu.Lock()
			defer mu.Unlock()
			switch result {
			case ResultSent:
				report.Sent++
			case ResultExpired:
				report.Expired++
				expired = append(expired, sub.ID)
			default:
				report.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(expired) > 0 {
		if err := svc.repo.DeleteSubscriptions(ctx, expired...); err != nil {
			svc.logger.Error("deleting expired push subscriptions", err)
		}
	}
	return report, nil
}

func (svc *Service) deliver(ctx context.Context, sub Subscription, payload []byte) string {
	status, err := svc.sender.Send(ctx, sub, payload)
	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return ResultExpired
	case err != nil:
		svc.logger.Warn("sending push notification", err, map[string]interface{}{"subscriptionId": sub.ID})
		return ResultFailed
	case status >= http.StatusBadRequest:
		svc.logger.Warn("sending push notification", map[string]interface{}{"subscriptionId": sub.ID, "status": status})
		return ResultFailed
	}
	return ResultSent
}

type noopMetrics struct{}

func (noopMetrics) RecordDelivery(string) {}
