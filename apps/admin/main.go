package main

import (
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/mafunzo/mafunzo/core"
	"github.com/mafunzo/mafunzo/core/program"
	"github.com/mafunzo/mafunzo/core/referral"
	logsvc "github.com/mafunzo/mafunzo/services/logger"
	"github.com/mafunzo/mafunzo/storage/database"
	sqlxrepos "github.com/mafunzo/mafunzo/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig(core.Getwd())

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())
	dbx := sqlx.NewDb(db, conf.Database.Engine)

	// start CLI
	cli := commandLine{
		db:          db,
		programSvc:  program.NewService(sqlxrepos.NewProgramRepository(dbx)),
		referralSvc: referral.NewService(conf, sqlxrepos.NewReferralRepository(dbx), logsvc.NewConsoleLogger(logger), nil),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
