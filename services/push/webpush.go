// Package pushsvc delivers web-push notifications through the browsers' push services.
package pushsvc

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/pkg/errors"

	"github.com/trezcool/huddle/core"
	"github.com/trezcool/huddle/core/push"
)

type webPushSender struct {
	opts webpush.Options
}

var _ push.Sender = (*webPushSender)(nil) // interface compliance check

// NewWebPushSender returns nil when no VAPID keys are configured, which disables delivery.
func NewWebPushSender(conf *core.Config, client *http.Client) push.Sender {
	if !conf.PushEnabled() {
		return nil
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &webPushSender{opts: webpush.Options{
		HTTPClient:      client,
		Subscriber:      strings.TrimPrefix(conf.Push.Subscriber, "mailto:"), // webpush adds it back
		TTL:             conf.Push.TTL,
		Urgency:         webpush.UrgencyNormal,
		VAPIDPublicKey:  conf.Push.VAPIDPublicKey,
		VAPIDPrivateKey: conf.Push.VAPIDPrivateKey,
	}}
}

func (s *webPushSender) Send(ctx context.Context, sub push.Subscription, payload []byte) (int, error) {
	opts := s.opts
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{Auth: sub.Keys.Auth, P256dh: sub.Keys.P256dh},
	}, &opts)
	if err != nil {
		return 0, errors.Wrap(err, "webpush.SendNotification")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
