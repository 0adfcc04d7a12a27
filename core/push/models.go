package push

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/huddle/core"
)

type (
	Keys struct {
		P256dh string `json:"p256dh" validate:"required"`
		Auth   string `json:"auth" validate:"required"`
	}

	// Subscription is a browser push endpoint registered by a user.
	Subscription struct {
		ID        string    `json:"id"`
		UserID    string    `json:"userId"`
		Endpoint  string    `json:"endpoint"`
		Keys      Keys      `json:"keys"`
		CreatedAt time.Time `json:"createdAt"`
	}

	NewSubscription struct {
		Endpoint string `json:"endpoint" validate:"required,url"`
		Keys     Keys   `json:"keys"`
	}

	// Notification is the JSON payload delivered to the service worker.
	Notification struct {
		Title string `json:"title"`
		Body  string `json:"body,omitempty"`
		URL   string `json:"url,omitempty"`
		Tag   string `json:"tag,omitempty"`
	}

	// Report sums up a fan-out.
	Report struct {
		Sent    int `json:"sent"`
		Expired int `json:"expired"`
		Failed  int `json:"failed"`
	}
)

func (ns *NewSubscription) Validate(validate *validator.Validate) error {
	ns.Endpoint = core.CleanString(ns.Endpoint)
	ns.Keys.P256dh = core.CleanString(ns.Keys.P256dh)
	ns.Keys.Auth = core.CleanString(ns.Keys.Auth)
	return validate.Struct(ns)
}

func (r Report) Total() int { return r.Sent + r.Expired + r.Failed }
