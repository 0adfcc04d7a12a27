package main

import (
	"net/http"
	"os"
	"time"

	"github.com/trezcool/huddle/core"
	"github.com/trezcool/huddle/core/video"
	logsvc "github.com/trezcool/huddle/services/logger"
	videosvc "github.com/trezcool/huddle/services/video"
	"github.com/trezcool/huddle/storage/database"
	"github.com/trezcool/huddle/storage/database/gormdb"
)

var logger core.Logger

func main() {
	conf := core.NewConfig()
	rlogger := logsvc.NewRollbarLogger(os.Stderr, conf)
	rlogger.Enable(!conf.Debug)
	logger = rlogger

	// set up DB
	db, err := database.OpenGorm(conf)
	errAndDie(err)
	sqlDB, err := db.DB()
	errAndDie(err)
	defer func() { _ = sqlDB.Close() }()

	provider := videosvc.NewYouTubeClient(conf, &http.Client{Timeout: 30 * time.Second}, logger)

	// start CLI
	cli := commandLine{
		conf:     conf,
		db:       sqlDB,
		usrRepo:  gormdb.NewUserRepository(db),
		videoSvc: video.NewService(gormdb.NewVideoRepository(db), provider, nil, conf),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("admin command failed", err)
		}
		_ = sqlDB.Close()
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
