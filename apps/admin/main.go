package main

import (
	"fmt"
	"log"
	"os"

	"github.com/loopverse/campus/core"
	"github.com/loopverse/campus/core/user"
	emailsvc "github.com/loopverse/campus/services/email"
	logsvc "github.com/loopverse/campus/services/logger"
	"github.com/loopverse/campus/storage/database"
	sqlxrepos "github.com/loopverse/campus/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		log.Fatalf("setting up zap: %v", err)
	}
	logger := logsvc.NewRollbarLogger(zl.Named("admin"), conf)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}

	repo := sqlxrepos.NewUserRepository(db)
	cli := commandLine{
		db:     db.DB,
		usrSvc: user.NewService(repo, emailsvc.NewConsoleService(conf, logger), conf),
		repo:   repo,
		out:    os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	_ = zl.Sync()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %v\n", err)
		}
		os.Exit(1)
	}
}
