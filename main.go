package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/stegofed/activitypub"
	"github.com/deemkeen/stegofed/admin"
	"github.com/deemkeen/stegofed/db"
	"github.com/deemkeen/stegofed/domain"
	"github.com/deemkeen/stegofed/moderation"
	"github.com/deemkeen/stegofed/util"
	"github.com/deemkeen/stegofed/web"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

func main() {

	conf, err := util.ReadConf()
	if err != nil {
		log.Fatal("Failed to read configuration", "err", err)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          util.Name,
	})
	if level, err := log.ParseLevel(conf.Conf.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	log.SetDefault(logger)

	logger.Info("Starting", "version", util.GetNameAndVersion())
	logger.Debug("Configuration:\n" + util.PrettyPrint(conf))

	if logger.GetLevel() > log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, logger, os.Args[1:]); err != nil {
		if errors.Is(err, admin.ErrUsage) {
			os.Exit(2)
		}
		logger.Fatal("Stopped", "err", err)
	}
	logger.Info("Bye")
}

// run serves the instance, or runs the admin command named in args.
func run(ctx context.Context, conf *util.AppConfig, logger *log.Logger, args []string) error {
	store, err := db.Open(util.ResolveFilePath(conf.Conf.DatabasePath))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	appAccount, err := ensureApplicationAccount(ctx, store, conf, logger)
	if err != nil {
		return err
	}
	appKey, err := activitypub.ParsePrivateKey(appAccount.WebPrivateKey)
	if err != nil {
		return fmt.Errorf("application key: %w", err)
	}

	urls := activitypub.URLs{Domain: conf.Conf.SslDomain}
	fetcher := activitypub.NewHTTPFetcher(activitypub.FetcherOptions{
		Timeout:    conf.Conf.FetchTimeout,
		UserAgent:  util.UserAgent(conf.Conf.SslDomain),
		SigningKey: appKey,
		KeyID:      activitypub.KeyID(urls.ApplicationActor()),
		Logger:     logger,
	})

	engineConf := activitypub.Config{
		Domain:                    conf.Conf.SslDomain,
		ApplicationUser:           conf.Conf.ApplicationUser,
		AllowIncomingInteractions: conf.Conf.AllowIncomingInteractions,
		EnableReposts:             conf.Conf.EnableReposts,
	}
	deps := activitypub.Deps{
		Store:     store,
		Gate:      moderation.NewGate(store, conf.Conf.BlockedDomains, conf.Conf.BlockedKeywords),
		Fetcher:   fetcher,
		Deliverer: activitypub.NewQueueDeliverer(store, logger),
		Logger:    logger,
	}

	outbox := activitypub.NewOutbox(engineConf, deps)
	if len(args) > 0 && args[0] != "serve" {
		return admin.NewRunner(store, outbox, os.Stdout, logger).Run(ctx, args)
	}

	janitor, err := activitypub.NewJanitor(store, conf.Conf.JanitorCron, conf.ActivityRetention(), logger)
	if err != nil {
		return err
	}

	router := web.NewRouter(conf, web.Deps{
		Store:  store,
		Inbox:  activitypub.NewInbox(engineConf, deps),
		Outbox: outbox,
		Keys:   activitypub.NewActorResolver(store, fetcher, logger),
		Logger: logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	if conf.Conf.WithAp {
		g.Go(func() error {
			activitypub.NewDeliveryWorker(engineConf, store, store, logger).Run(gctx)
			return nil
		})
		g.Go(func() error {
			janitor.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		return web.Serve(gctx, conf, router, logger)
	})
	return g.Wait()
}

// ensureApplicationAccount returns the account holding the application
// actor's keys, creating it with a fresh key pair on first start.
func ensureApplicationAccount(ctx context.Context, store *db.DB, conf *util.AppConfig, logger *log.Logger) (*domain.Account, error) {
	acc, err := store.ReadAccByUsername(ctx, conf.Conf.ApplicationUser)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("read application account: %w", err)
	}

	keypair, err := util.GeneratePemKeypair()
	if err != nil {
		return nil, fmt.Errorf("generate application key: %w", err)
	}
	acc = &domain.Account{
		Username:                  conf.Conf.ApplicationUser,
		DisplayName:               conf.Conf.SslDomain,
		ManuallyApprovesFollowers: true,
		WebPublicKey:              keypair.Public,
		WebPrivateKey:             keypair.Private,
	}
	if err := store.CreateAccount(ctx, acc); err != nil {
		return nil, fmt.Errorf("create application account: %w", err)
	}
	logger.Info("Created application account", "username", acc.Username)
	return acc, nil
}
