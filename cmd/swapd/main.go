package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/rwax/swapd/internal/config"
	"github.com/rwax/swapd/internal/core/application"
	"github.com/rwax/swapd/internal/core/ports"
	"github.com/rwax/swapd/internal/infrastructure/db"
	"github.com/rwax/swapd/internal/infrastructure/ledger/memledger"
	ledgerrpc "github.com/rwax/swapd/internal/infrastructure/ledger/rpc"
	"github.com/rwax/swapd/internal/infrastructure/oracle/static"
	scheduler "github.com/rwax/swapd/internal/infrastructure/scheduler/gocron"
	"github.com/rwax/swapd/internal/interface/web"
	"github.com/rwax/swapd/pkg/ratelimit"
)

// nolint:all
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	log.SetLevel(log.Level(cfg.LogLevel))

	log.Info("starting swapd...")

	dbSvc, err := db.NewService(db.ServiceConfig{
		DbType:   cfg.DbType,
		DbConfig: []any{cfg.Datadir, log.New()},
	})
	if err != nil {
		log.WithError(err).Fatal("failed to open db")
	}

	var ledgerSvc ports.LedgerClient
	switch cfg.LedgerType {
	case "rpc":
		ledgerSvc = ledgerrpc.NewService(cfg.LedgerURL)
	default:
		log.Warn("using the in-process simulated ledger; funds are not real")
		ledgerSvc = memledger.NewService()
	}

	buildInfo := application.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	}

	orchestrator := application.NewEscrowOrchestrator(ledgerSvc, cfg.LedgerCallTimeout)
	appSvc := application.NewService(
		buildInfo, dbSvc, orchestrator,
		ratelimit.New(cfg.MutatingRateWindow, cfg.MutatingRateThreshold),
		ratelimit.New(cfg.ReadRateWindow, cfg.ReadRateThreshold),
	)
	statsSvc := application.NewStatisticsView(dbSvc, static.NewService("USD", nil))

	schedulerSvc := scheduler.NewScheduler()
	schedulerSvc.Start()
	if err := schedulerSvc.ScheduleSweep(cfg.SweepInterval, func() {
		if _, err := appSvc.SweepExpired(context.Background()); err != nil {
			log.WithError(err).Warn("sweep failed")
		}
	}); err != nil {
		log.WithError(err).Fatal("failed to schedule sweep")
	}

	svc := web.NewService(cfg.HTTPPort, appSvc, statsSvc)

	log.RegisterExitHandler(func() {
		svc.Stop()
		schedulerSvc.Stop()
		dbSvc.Close()
	})

	log.Info("starting service...")
	svc.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	log.Info("shutting down service...")
	log.Exit(0)
}
