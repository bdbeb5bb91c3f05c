package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"

	echoapi "github.com/mafunzo/mafunzo/apps/api/echo"
	"github.com/mafunzo/mafunzo/core"
	"github.com/mafunzo/mafunzo/core/enrollment"
	"github.com/mafunzo/mafunzo/core/program"
	"github.com/mafunzo/mafunzo/core/referral"
	cachesvc "github.com/mafunzo/mafunzo/services/cache"
	emailsvc "github.com/mafunzo/mafunzo/services/email"
	logsvc "github.com/mafunzo/mafunzo/services/logger"
	"github.com/mafunzo/mafunzo/storage/database"
	sqlxrepos "github.com/mafunzo/mafunzo/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig(core.Getwd())

	std := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	var logger core.Logger
	if conf.Debug {
		logger = logsvc.NewConsoleLogger(std)
	} else {
		logger = logsvc.NewRollbarLogger(std, conf)
	}

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("Failed to close DB", err)
		}
	}()
	dbx := sqlx.NewDb(db, conf.Database.Engine)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	cache := cachesvc.NewRedisCache(conf)

	referralSvc := referral.NewService(conf, sqlxrepos.NewReferralRepository(dbx), logger, cache)
	programSvc := program.NewService(sqlxrepos.NewProgramRepository(dbx))
	enrollmentSvc := enrollment.NewService(sqlxrepos.NewEnrollmentRepository(dbx), programSvc, referralSvc, mailSvc, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	// warm the leaderboard cache periodically
	warmer := cron.New()
	if _, err = warmer.AddFunc("@every 1m", func() {
		if err := referralSvc.RefreshLeaderboards(context.Background()); err != nil {
			logger.Error(fmt.Sprintf("refreshing leaderboards: %v", err), err)
		}
	}); err != nil {
		logger.Fatal(fmt.Sprintf("scheduling leaderboard warmer: %v", err), err)
	}
	warmer.Start()
	defer warmer.Stop()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:          conf,
			Logger:        logger,
			ReferralSvc:   referralSvc,
			ProgramSvc:    programSvc,
			EnrollmentSvc: enrollmentSvc,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sql.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
