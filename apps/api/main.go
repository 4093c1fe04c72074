package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	"github.com/go-playground/validator/v10"

	echoapi "github.com/loopverse/campus/apps/api/echo"
	"github.com/loopverse/campus/core"
	"github.com/loopverse/campus/core/learning"
	"github.com/loopverse/campus/core/user"
	appfs "github.com/loopverse/campus/fs"
	emailsvc "github.com/loopverse/campus/services/email"
	logsvc "github.com/loopverse/campus/services/logger"
	pushsvc "github.com/loopverse/campus/services/push"
	"github.com/loopverse/campus/storage/database"
	inmemdb "github.com/loopverse/campus/storage/database/inmem"
	sqlxrepos "github.com/loopverse/campus/storage/database/sqlx"
)

const engineMemory = "memory"

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		log.Fatalf("setting up zap: %v", err)
	}
	logger := logsvc.NewRollbarLogger(zl.Named("api"), conf)
	dbLogger := logsvc.NewRollbarLogger(zl.Named("db"), conf)
	defer func() { _ = zl.Sync() }()

	// set up DB
	repos, closeDB, err := setUpRepositories(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = closeDB(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridApiKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	usrSvc := user.NewService(repos.user, mailSvc, conf)
	learningSvc := learning.NewService(repos.learning)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	if err = core.ParseEmailTemplates(appfs.FS, conf); err != nil {
		logger.Fatal("parsing email templates", err)
	}
	if err = user.LoadCommonPasswords(appfs.FS); err != nil {
		logger.Fatal("loading common passwords", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := pushsvc.NewHub(logger, conf.Push)
	go hub.Run(ctx)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:        conf,
		Logger:      logger,
		UserSvc:     usrSvc,
		LearningSvc: learningSvc,
		Hub:         hub,
		Validate:    validate,
		Translator:  translator,
	})

	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig), map[string]interface{}{"signal": sig.String()})

		// give outstanding requests a deadline for completion
		sctx, scancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer scancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(sctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

type repositories struct {
	user     user.Repository
	learning learning.Repository
}

// setUpRepositories opens the configured store. The "memory" engine keeps everything in process.
func setUpRepositories(conf *core.Config) (repositories, func() error, error) {
	if conf.Database.Engine == engineMemory {
		db := inmemdb.Open()
		return repositories{
			user:     inmemdb.NewUserRepository(db),
			learning: inmemdb.NewLearningRepository(db),
		}, func() error { return nil }, nil
	}

	if err := database.CreateIfNotExist(context.Background(), conf); err != nil {
		return repositories{}, nil, err
	}
	db, err := database.Open(conf)
	if err != nil {
		return repositories{}, nil, err
	}
	if err = database.Migrate(db.DB); err != nil {
		_ = db.Close()
		return repositories{}, nil, err
	}
	return repositories{
		user:     sqlxrepos.NewUserRepository(db),
		learning: sqlxrepos.NewLearningRepository(db),
	}, db.Close, nil
}
