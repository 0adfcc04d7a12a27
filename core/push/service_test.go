package push_test

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/huddle/core"
	"github.com/trezcool/huddle/core/push"
	"github.com/trezcool/huddle/core/user"
	logsvc "github.com/trezcool/huddle/services/logger"
)

type memRepo struct {
	mu      sync.Mutex
	subs    []push.Subscription
	deleted []string
}

func (r *memRepo) SaveSubscription(_ context.Context, sub push.Subscription) (push.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.subs {
		if s.Endpoint == sub.Endpoint {
			sub.ID = s.ID
			r.subs[i] = sub
			return sub, nil
		}
	}
	sub.ID = sub.Endpoint
	r.subs = append(r.subs, sub)
	return sub, nil
}

func (r *memRepo) QuerySubscriptions(_ context.Context, userIDs ...string) ([]push.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []push.Subscription
	for _, s := range r.subs {
		if len(userIDs) == 0 || contains(userIDs, s.UserID) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memRepo) DeleteSubscription(_ context.Context, userID, endpoint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.subs {
		if s.UserID == userID && s.Endpoint == endpoint {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			return nil
		}
	}
	return push.ErrNotFound
}

func (r *memRepo) DeleteSubscriptions(_ context.Context, ids ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, ids...)
	return nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// fakeSender answers with the status registered for the endpoint (201 by default).
type fakeSender struct {
	statuses map[string]int
	errs     map[string]error
	calls    int32
	payloads sync.Map
}

func (s *fakeSender) Send(_ context.Context, sub push.Subscription, payload []byte) (int, error) {
	atomic.AddInt32(&s.calls, 1)
	s.payloads.Store(sub.Endpoint, payload)
	if err := s.errs[sub.Endpoint]; err != nil {
		return 0, err
	}
	if status, ok := s.statuses[sub.Endpoint]; ok {
		return status, nil
	}
	return http.StatusCreated, nil
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *countingMetrics) RecordDelivery(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[result]++
}

var conf = &core.Config{Push: core.PushConfig{Concurrency: 2}}

func TestNotify(t *testing.T) {
	ctx := context.Background()
	repo := new(memRepo)
	alice := user.User{ID: "alice"}
	bob := user.User{ID: "bob"}
	svc := push.NewService(repo, nil, nil, logsvc.NopLogger{}, conf)

	for _, sub := range []struct {
		usr      user.User
		endpoint string
	}{
		{alice, "https://push.example.com/ok-1"},
		{alice, "https://push.example.com/gone"},
		{bob, "https://push.example.com/ok-2"},
		{bob, "https://push.example.com/not-found"},
		{bob, "https://push.example.com/error"},
		{bob, "https://push.example.com/broken"},
	} {
		_, err := svc.Subscribe(ctx, push.NewSubscription{Endpoint: sub.endpoint, Keys: push.Keys{P256dh: "k", Auth: "a"}}, sub.usr)
		require.NoError(t, err)
	}

	t.Run("disabled without sender", func(t *testing.T) {
		report, err := svc.Notify(ctx, push.Notification{Title: "hi"})
		require.NoError(t, err)
		assert.Equal(t, push.Report{}, report)
	})

	sender := &fakeSender{
		statuses: map[string]int{
			"https://push.example.com/gone":      http.StatusGone,
			"https://push.example.com/not-found": http.StatusNotFound,
			"https://push.example.com/error":     http.StatusInternalServerError,
		},
		errs: map[string]error{"https://push.example.com/broken": errors.New("connection reset")},
	}
	metrics := new(countingMetrics)
	svc = push.NewService(repo, sender, metrics, logsvc.NopLogger{}, conf)

	t.Run("all users", func(t *testing.T) {
		report, err := svc.Notify(ctx, push.Notification{Title: "Practice moved", URL: "/announcements"})
		require.NoError(t, err)
		assert.Equal(t, push.Report{Sent: 2, Expired: 2, Failed: 2}, report)
		assert.Equal(t, int32(6), atomic.LoadInt32(&sender.calls))
		assert.Equal(t, map[string]int{push.ResultSent: 2, push.ResultExpired: 2, push.ResultFailed: 2}, metrics.counts)

		deleted := append([]string(nil), repo.deleted...)
		sort.Strings(deleted)
		assert.Equal(t, []string{"https://push.example.com/gone", "https://push.example.com/not-found"}, deleted)

		raw, ok := sender.payloads.Load("https://push.example.com/ok-1")
		require.True(t, ok)
		var n push.Notification
		require.NoError(t, json.Unmarshal(raw.([]byte), &n))
		assert.Equal(t, "Practice moved", n.Title)
	})

	t.Run("selected users", func(t *testing.T) {
		report, err := svc.Notify(ctx, push.Notification{Title: "hi"}, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, report.Total())
	})

	t.Run("no subscription", func(t *testing.T) {
		report, err := svc.Notify(ctx, push.Notification{Title: "hi"}, "nobody")
		require.NoError(t, err)
		assert.Equal(t, push.Report{}, report)
	})
}

func TestSubscribeUpsertsByEndpoint(t *testing.T) {
	ctx := context.Background()
	repo := new(memRepo)
	svc := push.NewService(repo, nil, nil, logsvc.NopLogger{}, conf)
	usr := user.User{ID: "alice"}

	first, err := svc.Subscribe(ctx, push.NewSubscription{Endpoint: "https://push.example.com/1", Keys: push.Keys{P256dh: "a", Auth: "b"}}, usr)
	require.NoError(t, err)
	second, err := svc.Subscribe(ctx, push.NewSubscription{Endpoint: "https://push.example.com/1", Keys: push.Keys{P256dh: "c", Auth: "d"}}, usr)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	subs, err := svc.Subscriptions(ctx, usr)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "c", subs[0].Keys.P256dh)

	require.NoError(t, svc.Unsubscribe(ctx, "https://push.example.com/1", usr))
	assert.True(t, core.IsNotFound(svc.Unsubscribe(ctx, "https://push.example.com/1", usr)))
}
