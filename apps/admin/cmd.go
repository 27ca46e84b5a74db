package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/peerly/core"
	"github.com/trezcool/peerly/core/course"
	"github.com/trezcool/peerly/core/review"
)

var (
	isTerminalFunc = term.IsTerminal // mockable

	errHelp    = errors.New("help provided")
	errAborted = errors.New("aborted")
)

type commandLine struct {
	db         *sqlx.DB
	courses    course.Repository
	reviewSvc  *review.Service
	validate   *validator.Validate
	translator ut.Translator
	in         io.Reader
	out        io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                                - run a goose command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  importcourse -file FILE                               - import a course described in YAML")
	fmt.Fprintln(cli.out, "  generatereviews -assignment ID [-per-student N] [-yes] - (re)assign peer reviewers")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	importCmd := flag.NewFlagSet("importcourse", flag.ExitOnError)
	importFile := importCmd.String("file", "", "The YAML file describing the course.")

	generateCmd := flag.NewFlagSet("generatereviews", flag.ExitOnError)
	generateAsgmt := generateCmd.Int("assignment", 0, "The assignment ID.")
	generatePerStudent := generateCmd.Int("per-student", 0, "Reviews per student (defaults to the configured value).")
	generateYes := generateCmd.Bool("yes", false, "Do not ask for confirmation.")

	ctx := context.Background()

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, args[2:])
	case "importcourse":
		if err := importCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *importFile == "" {
			importCmd.Usage()
			return errHelp
		}
		return cli.importCourse(ctx, *importFile)
	case "generatereviews":
		if err := generateCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *generateAsgmt < 1 {
			generateCmd.Usage()
			return errHelp
		}
		if !*generateYes {
			ok, err := cli.confirm(fmt.Sprintf("Pending reviews of assignment %d will be reassigned. Proceed?", *generateAsgmt))
			if err != nil {
				return err
			}
			if !ok {
				return errAborted
			}
		}
		return cli.generateReviews(ctx, *generateAsgmt, *generatePerStudent)
	default:
		cli.printUsage()
		return errHelp
	}
}

// confirm asks a yes/no question. Without a terminal, -yes is required.
func (cli *commandLine) confirm(question string) (bool, error) {
	if !isTerminalFunc(int(os.Stdin.Fd())) {
		return false, errors.New("not a terminal: use -yes to confirm")
	}
	fmt.Fprintf(cli.out, "%s [y/N] ", question)
	answer, err := bufio.NewReader(cli.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	answer = core.CleanString(answer, true /* lower */)
	return answer == "y" || answer == "yes", nil
}

// print writes v as YAML.
func (cli *commandLine) print(v interface{}) error {
	enc := yaml.NewEncoder(cli.out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
