package echoapi_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	echoapi "github.com/trezcool/huddle/apps/api/echo"
	"github.com/trezcool/huddle/core"
	"github.com/trezcool/huddle/core/announcement"
	"github.com/trezcool/huddle/core/chat"
	"github.com/trezcool/huddle/core/diag"
	"github.com/trezcool/huddle/core/play"
	"github.com/trezcool/huddle/core/push"
	"github.com/trezcool/huddle/core/training"
	"github.com/trezcool/huddle/core/user"
	"github.com/trezcool/huddle/core/video"
	"github.com/trezcool/huddle/fs"
	emailsvc "github.com/trezcool/huddle/services/email"
	logsvc "github.com/trezcool/huddle/services/logger"
	"github.com/trezcool/huddle/services/realtime"
	"github.com/trezcool/huddle/storage/database/gormdb"
	"github.com/trezcool/huddle/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

// fakeSender answers 410 for the endpoints in gone, 201 otherwise.
type fakeSender struct {
	mu   sync.Mutex
	gone map[string]bool
	sent []string
}

func (s *fakeSender) Send(_ context.Context, sub push.Subscription, _ []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sub.Endpoint)
	if s.gone[sub.Endpoint] {
		return http.StatusGone, nil
	}
	return http.StatusCreated, nil
}

type fakeStore struct{}

func (fakeStore) Ping(context.Context) error { return nil }
func (fakeStore) Stats() sql.DBStats         { return sql.DBStats{OpenConnections: 1, MaxOpenConnections: 1} }
func (fakeStore) Counts(context.Context) (map[string]int64, error) {
	return map[string]int64{"users": 3}, nil
}

type testApp struct {
	srv    *echoapi.Server
	conf   *core.Config
	db     *gorm.DB
	auth   *echoapi.Authenticator
	users  user.Repository
	mail   *emailsvc.ConsoleServiceMock
	sender *fakeSender
	hub    *realtime.Hub
}

func setup(t *testing.T) *testApp {
	t.Helper()
	conf := testutil.Config()

	db, err := gormdb.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	tmpls, err := core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf)
	require.NoError(t, err)
	logger := logsvc.NopLogger{}
	mail := emailsvc.NewConsoleServiceMock(conf, tmpls, logger)
	validate, translator := testutil.Validator()

	usrRepo := gormdb.NewUserRepository(db)
	usrSvc := user.NewServiceMock(usrRepo, mail, conf)
	sender := &fakeSender{gone: map[string]bool{}}
	pushSvc := push.NewService(gormdb.NewPushRepository(db), sender, nil, logger, conf)
	hub := realtime.NewHub(conf, logger)
	t.Cleanup(hub.Close)

	srv := echoapi.NewServer(&echoapi.Options{
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,

		UserSvc:         usrSvc,
		PlaySvc:         play.NewService(gormdb.NewPlayRepository(db)),
		PushSvc:         pushSvc,
		AnnouncementSvc: announcement.NewService(gormdb.NewAnnouncementRepository(db), pushSvc, logger),
		VideoSvc:        video.NewService(gormdb.NewVideoRepository(db), nil, nil, conf),
		TrainingSvc:     training.NewService(gormdb.NewTrainingRepository(db), usrRepo),
		ChatSvc:         chat.NewService(gormdb.NewChatRepository(db), hub),
		ChatFeed:        hub,
		Diag:            diag.NewService(fakeStore{}, hub, conf),
	})

	return &testApp{
		srv:    srv,
		conf:   conf,
		db:     db,
		auth:   echoapi.NewAuthenticator(conf, usrSvc),
		users:  usrRepo,
		mail:   mail,
		sender: sender,
		hub:    hub,
	}
}

func (app *testApp) createUser(t *testing.T, uname string, roles []string, teamID string) user.User {
	return testutil.CreateUser(t, app.users, uname, uname, uname+"@huddle.test", "Pass1234!", roles, teamID, true)
}

func (app *testApp) token(t *testing.T, usr user.User) string {
	token, err := app.auth.GenerateToken(app.auth.UserClaims(usr))
	require.NoError(t, err, "getToken()")
	return token
}

func (app *testApp) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	app.srv.ServeHTTP(rec, req)
	return rec
}

// call runs the request and decodes the response body into out.
func (app *testApp) call(t *testing.T, method, path, token string, body interface{}, wantCode int, out interface{}) {
	t.Helper()
	var data []byte
	if body != nil {
		data = marshalObj(t, body)
	}
	rec := app.do(method, path, token, data)
	require.Equal(t, wantCode, rec.Code, rec.Body.String())
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
}

func (app *testApp) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := app.do(method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	require.NoError(t, err, "marshalObj()")
	return data
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
	if tt.wantData != nil {
		assert.JSONEq(t, string(tt.wantData), rec.Body.String())
	}
}
