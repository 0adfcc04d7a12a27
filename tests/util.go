// Package testutil holds the helpers shared by the test suites.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/huddle/core"
	"github.com/trezcool/huddle/core/play"
	"github.com/trezcool/huddle/core/training"
	"github.com/trezcool/huddle/core/user"
)

// Config returns a config fit for tests: no external service is configured.
func Config() *core.Config {
	return &core.Config{
		Env:                       "TEST",
		Build:                     "test",
		Debug:                     false,
		TestMode:                  true,
		AppName:                   "Huddle",
		SecretKey:                 "test-secret-key-0123456789",
		FrontendBaseURL:           "http://localhost:3000",
		DefaultFromEmailStr:       "Huddle <noreply@huddle.test>",
		PasswordResetTimeoutDelta: 24 * time.Hour,
		Server: core.ServerConfig{
			Host:                      "localhost",
			Address:                   "127.0.0.1:0",
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 24 * time.Hour,
			AllowedOrigins:            []string{"*"},
		},
		Database: core.DatabaseConfig{Engine: "sqlite", Name: ":memory:"},
		Push:     core.PushConfig{Concurrency: 4, TTL: 60},
		Video:    core.VideoConfig{RequestsPerMinute: 600},
	}
}

// Validator returns a validator with every custom validation registered.
func Validator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	play.InitValidators(validate, translator)
	training.InitValidators(validate, translator)
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	teamID string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	if roles == nil {
		roles = []string{}
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		TeamID:    teamID,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}
