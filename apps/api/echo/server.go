package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/huddle/core"
	"github.com/trezcool/huddle/core/announcement"
	"github.com/trezcool/huddle/core/chat"
	"github.com/trezcool/huddle/core/diag"
	"github.com/trezcool/huddle/core/play"
	"github.com/trezcool/huddle/core/push"
	"github.com/trezcool/huddle/core/training"
	"github.com/trezcool/huddle/core/user"
	"github.com/trezcool/huddle/core/video"
)

type (
	// Diagnostics builds the admin health report.
	Diagnostics interface {
		Report(ctx context.Context) diag.Report
	}

	Options struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		Metrics        HTTPMetrics // optional
		DisableReqLogs bool

		UserSvc         user.ServiceInterface
		PlaySvc         play.ServiceInterface
		PushSvc         push.ServiceInterface
		AnnouncementSvc announcement.ServiceInterface
		VideoSvc        video.ServiceInterface
		TrainingSvc     training.ServiceInterface
		ChatSvc         chat.ServiceInterface
		ChatFeed        ChatFeed // optional
		Diag            Diagnostics
	}

	Server struct {
		opts     *Options
		app      *echo.Echo
		auth     *Authenticator
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(opts *Options) *Server {
	s := &Server{
		opts:     opts,
		app:      echo.New(),
		auth:     NewAuthenticator(opts.Conf, opts.UserSvc),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.opts.Conf
	s.app.HideBanner = true
	s.app.Debug = conf.Debug
	s.app.Server.ReadTimeout = conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = conf.Server.WriteTimeout

	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: conf.Server.AllowedOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	if s.opts.Metrics != nil {
		s.app.Use(metricsMiddleware(s.opts.Metrics, s))
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.SignalShutdown)

	s.app.GET("/", s.home)

	api := s.app.Group("/api")
	jwt := s.auth.middleware()

	s.registerUserAPI(api, jwt)
	s.registerPlayAPI(api, jwt)
	s.registerPushAPI(api, jwt)
	s.registerVideoAPI(api, jwt)
	s.registerTrainingAPI(api, jwt)
	s.registerChatAPI(api, jwt)
	s.registerAdminAPI(api, jwt)
}

// Start listens on the configured address; a listening failure is sent to Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.opts.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

// SignalShutdown asks the process to shut down gracefully.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.opts.Conf.AppName+" API!")
}
