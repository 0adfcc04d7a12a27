package gormdb

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/huddle/core"
	"github.com/trezcool/huddle/core/user"
	"github.com/trezcool/huddle/fs"
	emailsvc "github.com/trezcool/huddle/services/email"
	logsvc "github.com/trezcool/huddle/services/logger"
	"github.com/trezcool/huddle/tests"
)

func newUserService(t *testing.T) (*user.ServiceMock, *userRepository, *emailsvc.ConsoleServiceMock) {
	t.Helper()
	conf := testutil.Config()
	tmpls, err := core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf)
	require.NoError(t, err)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, tmpls, logsvc.NopLogger{})
	repo := NewUserRepository(newTestDB(t))
	return user.NewServiceMock(repo, mailSvc, conf), repo, mailSvc
}

func usernames(users []user.User) []string {
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Username)
	}
	sort.Strings(names)
	return names
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	_, repo, _ := newUserService(t)
	past := time.Now().Add(-48 * time.Hour)

	owner := testutil.CreateUser(t, repo, "Olga Owner", "olga", "olga@huddle.test", "Pass1234!", []string{user.RoleAdminOwner}, "", true, past)
	coach := testutil.CreateUser(t, repo, "Carl Coach", "carl", "carl@huddle.test", "Pass1234!", []string{user.RoleCoach}, "team-1", true)
	assistant := testutil.CreateUser(t, repo, "Ann Assistant", "ann", "ann@huddle.test", "", []string{user.RoleCoachAssistant}, "team-1", true)
	player := testutil.CreateUser(t, repo, "Pete Player", "pete", "pete@huddle.test", "", []string{user.RolePlayer}, "team-2", false)

	t.Run("uniqueness", func(t *testing.T) {
		assert.Equal(t, user.ErrUsernameExists, repo.CheckUsernameUniqueness(ctx, "carl", "new@huddle.test"))
		assert.Equal(t, user.ErrEmailExists, repo.CheckUsernameUniqueness(ctx, "newbie", "ann@huddle.test"))
		assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "carl", "carl@huddle.test", coach))
		assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "newbie", ""))
	})

	t.Run("get", func(t *testing.T) {
		tests := []struct {
			name   string
			filter user.GetFilter
			want   string
		}{
			{"by id", user.GetFilter{ID: coach.ID}, "carl"},
			{"by username", user.GetFilter{Username: "ann"}, "ann"},
			{"by email", user.GetFilter{Email: "pete@huddle.test"}, "pete"},
			{"by username or email (username)", user.GetFilter{UsernameOrEmail: []string{"olga"}}, "olga"},
			{"by username or email (email)", user.GetFilter{UsernameOrEmail: []string{"olga@huddle.test"}}, "olga"},
			{"unknown", user.GetFilter{Username: "nobody"}, ""},
			{"malformed id", user.GetFilter{ID: "42"}, ""},
			{"empty", user.GetFilter{}, ""},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				usr, err := repo.GetUser(ctx, tc.filter)
				if tc.want == "" {
					assert.Equal(t, user.ErrNotFound, err)
					return
				}
				require.NoError(t, err)
				assert.Equal(t, tc.want, usr.Username)
			})
		}
	})

	t.Run("query", func(t *testing.T) {
		active := true
		tests := []struct {
			name   string
			filter *user.QueryFilter
			want   []string
		}{
			{"all", nil, []string{"ann", "carl", "olga", "pete"}},
			{"search", &user.QueryFilter{Search: "CO"}, []string{"carl"}},
			{"coaches", &user.QueryFilter{Roles: []string{"coach:"}}, []string{"ann", "carl"}},
			{"admins or players", &user.QueryFilter{Roles: []string{"admin:", "player:"}}, []string{"olga", "pete"}},
			{"active", &user.QueryFilter{IsActive: &active}, []string{"ann", "carl", "olga"}},
			{"team", &user.QueryFilter{TeamID: "team-1"}, []string{"ann", "carl"}},
			{"created before", &user.QueryFilter{CreatedTo: time.Now().Add(-24 * time.Hour)}, []string{"olga"}},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				users, err := repo.QueryUsers(ctx, tc.filter, nil)
				require.NoError(t, err)
				assert.Equal(t, tc.want, usernames(users))
			})
		}

		users, err := repo.QueryUsers(ctx, nil, []core.DBOrdering{{Field: "username", Ascending: true}, {Field: "bogus; DROP TABLE users"}})
		require.NoError(t, err)
		require.Len(t, users, 4)
		assert.Equal(t, "ann", users[0].Username)
		assert.Equal(t, "pete", users[3].Username)
	})

	t.Run("users exist", func(t *testing.T) {
		ok, err := repo.UsersExist(ctx, coach.ID, player.ID, coach.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.UsersExist(ctx, coach.ID, "5b1d7c57-3f4e-4b8e-9f9e-0c43a1f6afff")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = repo.UsersExist(ctx, "not-a-uuid")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("update", func(t *testing.T) {
		usr := assistant
		usr.Name = "Ann A."
		usr.Roles = []string{user.RoleCoach}
		usr.LastLogin = time.Now().UTC()
		updated, err := repo.UpdateUser(ctx, usr)
		require.NoError(t, err)
		assert.Equal(t, "Ann A.", updated.Name)

		got, err := repo.GetUser(ctx, user.GetFilter{ID: assistant.ID})
		require.NoError(t, err)
		assert.Equal(t, []string{user.RoleCoach}, got.Roles)
		assert.False(t, got.LastLogin.IsZero())
		assert.WithinDuration(t, assistant.CreatedAt, got.CreatedAt, time.Second)

		_, err = repo.UpdateUser(ctx, user.User{ID: "5b1d7c57-3f4e-4b8e-9f9e-0c43a1f6afff", Roles: []string{}})
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.DeleteUsers(ctx, player.ID, owner.ID, "garbage"))
		users, err := repo.QueryUsers(ctx, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"ann", "carl"}, usernames(users))
	})
}

func TestPasswordReset(t *testing.T) {
	ctx := context.Background()
	svc, repo, mailSvc := newUserService(t)
	usr := testutil.CreateUser(t, repo, "Carl Coach", "carl", "carl@huddle.test", "OldPass123!", []string{user.RoleCoach}, "", true)
	testutil.CreateUser(t, repo, "Gone", "gone", "gone@huddle.test", "OldPass123!", nil, "", false)

	assert.Equal(t, user.ErrNotFound, svc.RequestPasswordReset(ctx, "nobody@huddle.test"))
	assert.Equal(t, user.ErrAccountDeactivated, svc.RequestPasswordReset(ctx, "gone@huddle.test"))
	assert.Empty(t, mailSvc.SentMessages())

	require.NoError(t, svc.RequestPasswordReset(ctx, " CARL@huddle.test "))
	sent := mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "carl@huddle.test", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "http://localhost:3000/password-reset/")
	assert.Contains(t, sent[0].HTMLContent, "Carl Coach")

	data := svc.LastResetMessage.TemplateData.(map[string]string)
	uid, token := data["UID"], data["Token"]
	assert.Contains(t, sent[0].TextContent, uid+"/"+token)

	t.Run("invalid links", func(t *testing.T) {
		tests := []struct {
			name       string
			uid, token string
		}{
			{"tampered token", uid, token + "x"},
			{"wrong uid", user.EncodeUID(user.User{ID: "5b1d7c57-3f4e-4b8e-9f9e-0c43a1f6afff"}), token},
			{"garbage uid", "%%%", token},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				err := svc.ResetPassword(ctx, user.ResetUserPassword{UID: tc.uid, Token: tc.token, Password: "NewPass123!", PasswordConfirm: "NewPass123!"})
				var verr *core.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, user.ErrInvalidResetLink, verr.Err)
			})
		}
	})

	require.NoError(t, svc.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: token, Password: "NewPass123!", PasswordConfirm: "NewPass123!"}))
	updated, err := svc.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.NoError(t, updated.CheckPassword("NewPass123!"))
	assert.Error(t, updated.CheckPassword("OldPass123!"))

	// the token is tied to the old password hash
	err = svc.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: token, Password: "Other123!", PasswordConfirm: "Other123!"})
	assert.Error(t, err)
}
