package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/peerly/core"
	"github.com/trezcool/peerly/core/review"
	appfs "github.com/trezcool/peerly/fs"
	emailsvc "github.com/trezcool/peerly/services/email"
	logsvc "github.com/trezcool/peerly/services/logger"
	"github.com/trezcool/peerly/services/summarizer"
	"github.com/trezcool/peerly/storage/database"
	sqlxrepos "github.com/trezcool/peerly/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)

	// set up DB
	db, err := database.Open(conf)
	errAndDie(logger, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = database.Ping(ctx, db)
	cancel()
	errAndDie(logger, err)

	validate := validator.New(validator.WithRequiredStructEnabled())
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf.FrontendBaseURL, conf.Debug, logger)

	courses := sqlxrepos.NewCourseRepository(db)
	mailer := emailsvc.NewService(conf, logger)

	// start CLI
	cli := commandLine{
		db:      db,
		courses: courses,
		reviewSvc: review.NewService(conf, sqlxrepos.NewReviewRepository(db), courses,
			summarizer.New(conf), mailer, logger),
		validate:   validate,
		translator: translator,
		in:         os.Stdin,
		out:        os.Stdout,
	}
	err = cli.run(os.Args)
	if !errors.Is(err, errHelp) {
		printErr(err)
	}
	mailer.Wait() // let queued emails go out
	_ = db.Close()
	if err != nil {
		os.Exit(1)
	}
}

func printErr(err error) {
	if err == nil {
		return
	}
	var vErr *core.ValidationError
	if errors.As(err, &vErr) && len(vErr.Fields) > 0 {
		fmt.Fprintln(os.Stderr, "\nerror: invalid input")
		for _, f := range vErr.Fields {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", f.Field, f.Error)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
}

func errAndDie(logger core.Logger, err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
