// Command client is a terminal host for the LoopVerse session manager.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/loopverse/campus/core"
	"github.com/loopverse/campus/core/session"
	logsvc "github.com/loopverse/campus/services/logger"
	pushsvc "github.com/loopverse/campus/services/push"
	remotesvc "github.com/loopverse/campus/services/remote"
	kvstore "github.com/loopverse/campus/storage/kv"
)

func main() {
	os.Exit(run())
}

func run() int {
	conf := core.NewConfig()

	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		log.Fatalf("setting up zap: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	logger := logsvc.NewRollbarLogger(zl.Named("client"), conf)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := kvstore.Open(ctx, conf.Storage)
	if err != nil {
		logger.Error("opening local storage", err)
		return 1
	}
	defer func() { _ = closeStore() }()

	client := remotesvc.NewClient(conf.Session.RemoteURL, store, logger, nil)
	notifier := pushsvc.NewNotifier(client, logger)

	var identities session.IdentityProvider
	if conf.Session.DemoAccounts {
		identities = session.DemoIdentities()
	}

	m, err := session.NewManager(session.Deps{
		Auth:       client,
		Profiles:   client,
		Storage:    store,
		Logger:     logger,
		Notifier:   notifier,
		Identities: identities,
		Navigator: session.NavigatorFunc(func(route string) {
			fmt.Printf("-> %s\n", route)
		}),
		Theme: session.ThemeApplierFunc(func(dark bool) {
			logger.Debug("theme applied", map[string]interface{}{"dark": dark})
		}),
	}, session.OptionsFromConfig(conf.Session))
	if err != nil {
		logger.Error("setting up session manager", err)
		return 1
	}
	defer m.Close()

	m.Bootstrap(ctx)

	cli := commandLine{m: m, notifier: notifier, campus: client, out: os.Stdout}
	err = cli.run(ctx, os.Args)
	m.Wait()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %v\n", err)
		}
		return 1
	}
	return 0
}
