package dig_container

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/dig"
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
	metricsvc "github.com/trezcool/huddle/services/metrics"
	pushsvc "github.com/trezcool/huddle/services/push"
	"github.com/trezcool/huddle/services/realtime"
	videosvc "github.com/trezcool/huddle/services/video"
	"github.com/trezcool/huddle/storage/database"
	"github.com/trezcool/huddle/storage/database/gormdb"
	sqlxdb "github.com/trezcool/huddle/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(os.Stdout, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(os.Stdout, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*gorm.DB, error) {
	setUp := func() (*gorm.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}
		db, err := database.OpenGorm(conf)
		if err != nil {
			return nil, err
		}
		if conf.Database.Engine == database.EngineSQLite {
			return db, nil // schema created from the models
		}

		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "getting pool")
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err = database.Migrate(ctx, sqlDB, "up"); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Error("setting up database", err)
		return nil, errors.Wrap(err, "setting up database")
	}
	return db, nil
}

func newSqlx(db *gorm.DB) (*sqlx.DB, error) {
	return database.OpenSqlx(db)
}

func newEmailTemplates(conf *core.Config) (*core.EmailTemplates, error) {
	return core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf)
}

func newEmailService(conf *core.Config, tmpls *core.EmailTemplates, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, tmpls, os.Stdout, logger)
	}
	return emailsvc.NewSendgridService(conf, tmpls, logger)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newMetrics(reg *prometheus.Registry, hub *realtime.Hub) *metricsvc.Prometheus {
	return metricsvc.NewPrometheus(reg, hub)
}

func newPushService(repo push.Repository, metrics *metricsvc.Prometheus, logger core.Logger, conf *core.Config) *push.Service {
	sender := pushsvc.NewWebPushSender(conf, nil)
	if sender == nil {
		logger.Warn("push notifications disabled: no VAPID keys configured")
	}
	return push.NewService(repo, sender, metrics, logger, conf)
}

func newAnnouncementService(repo announcement.Repository, notifier *push.Service, logger core.Logger) *announcement.Service {
	return announcement.NewService(repo, notifier, logger)
}

func newVideoService(repo video.Repository, metrics *metricsvc.Prometheus, logger core.Logger, conf *core.Config) *video.Service {
	provider := videosvc.NewYouTubeClient(conf, &http.Client{Timeout: 30 * time.Second}, logger)
	if provider == nil {
		logger.Warn("video imports disabled: no video API key configured")
	}
	return video.NewService(repo, provider, metrics, conf)
}

func newTrainingService(repo training.Repository, users user.Repository) *training.Service {
	return training.NewService(repo, users)
}

func newChatService(repo chat.Repository, hub *realtime.Hub) *chat.Service {
	return chat.NewService(repo, hub)
}

func newDiagService(db *sqlx.DB, hub *realtime.Hub, conf *core.Config) *diag.Service {
	return diag.NewService(sqlxdb.NewDiagStore(db), hub, conf)
}

type serverParams struct {
	dig.In

	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	Metrics    *metricsvc.Prometheus

	UserSvc         user.ServiceInterface
	PlaySvc         *play.Service
	PushSvc         *push.Service
	AnnouncementSvc *announcement.Service
	VideoSvc        *video.Service
	TrainingSvc     *training.Service
	ChatSvc         *chat.Service
	Hub             *realtime.Hub
	Diag            *diag.Service
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(&echoapi.Options{
		Conf:       p.Conf,
		Logger:     p.Logger,
		Validate:   p.Validate,
		Translator: p.Translator,
		Metrics:    p.Metrics,

		UserSvc:         p.UserSvc,
		PlaySvc:         p.PlaySvc,
		PushSvc:         p.PushSvc,
		AnnouncementSvc: p.AnnouncementSvc,
		VideoSvc:        p.VideoSvc,
		TrainingSvc:     p.TrainingSvc,
		ChatSvc:         p.ChatSvc,
		ChatFeed:        p.Hub,
		Diag:            p.Diag,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newSqlx))
	must(c.Provide(newEmailTemplates))
	must(c.Provide(newEmailService))
	must(c.Provide(validator.New))
	must(c.Provide(newTranslator))
	must(c.Provide(newRegistry))
	must(c.Provide(realtime.NewHub))
	must(c.Provide(newMetrics))

	// repositories
	must(c.Provide(gormdb.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(gormdb.NewPlayRepository, dig.As(new(play.Repository))))
	must(c.Provide(gormdb.NewPushRepository, dig.As(new(push.Repository))))
	must(c.Provide(gormdb.NewAnnouncementRepository, dig.As(new(announcement.Repository))))
	must(c.Provide(gormdb.NewVideoRepository, dig.As(new(video.Repository))))
	must(c.Provide(gormdb.NewTrainingRepository, dig.As(new(training.Repository))))
	must(c.Provide(gormdb.NewChatRepository, dig.As(new(chat.Repository))))

	// services
	must(c.Provide(user.NewService, dig.As(new(user.ServiceInterface))))
	must(c.Provide(play.NewService))
	must(c.Provide(newPushService))
	must(c.Provide(newAnnouncementService))
	must(c.Provide(newVideoService))
	must(c.Provide(newTrainingService))
	must(c.Provide(newChatService))
	must(c.Provide(newDiagService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
