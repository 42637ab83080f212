package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/letsssgooo/quizResults/internal/auth"
	"github.com/letsssgooo/quizResults/internal/client"
	"github.com/spf13/pflag"
)

const usage = `usage: quizresultsctl [flags] <command> [command flags]

commands:
  submit       sign and send a test result
  tests        list results of a user
  count        count tests passed by a user
  leaderboard  show the leaderboard
  topusers     show top users by total score

flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}

		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("quizresultsctl", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}

	addr := fs.String("addr", envOr("QUIZRESULTS_URL", "http://localhost:3000"), "service base URL")
	secret := fs.String("secret", os.Getenv("QUIZRESULTS_SIGNING_SECRET"), "signing secret for submit")
	algorithm := fs.String("algorithm", string(auth.AlgorithmMD5), "signature algorithm: md5 or hmac-sha256")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("command is required")
	}

	command, rest := fs.Arg(0), fs.Args()[1:]

	var signer client.Signer
	if *secret != "" {
		verifier, err := auth.NewVerifier(auth.Algorithm(*algorithm), *secret)
		if err != nil {
			return err
		}
		signer = verifier
	}

	c := client.NewHTTPClient(*addr, signer)

	switch command {
	case "submit":
		return submit(ctx, c, rest, out)
	case "tests":
		userID, err := parseUser(command, rest)
		if err != nil {
			return err
		}

		tests, err := c.Tests(ctx, userID)
		if err != nil {
			return err
		}

		return printJSON(out, tests)
	case "count":
		userID, err := parseUser(command, rest)
		if err != nil {
			return err
		}

		count, err := c.TestsCount(ctx, userID)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(out, count)
		return err
	case "leaderboard":
		entries, err := c.Leaderboard(ctx)
		if err != nil {
			return err
		}

		return printJSON(out, entries)
	case "topusers":
		users, err := c.TopUsers(ctx)
		if err != nil {
			return err
		}

		return printJSON(out, users)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func submit(ctx context.Context, c *client.HTTPClient, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("submit", pflag.ContinueOnError)

	userID := fs.Int64("user", 0, "user id")
	testID := fs.Int64("test", 0, "test id")
	score := fs.Int("score", 0, "score")
	total := fs.Int("total", 0, "total questions")
	platform := fs.String("platform", "", "vk_platform launch parameter")

	if err := fs.Parse(args); err != nil {
		return err
	}

	req := client.SubmitRequest{
		UserID:         *userID,
		TestID:         *testID,
		Score:          *score,
		TotalQuestions: *total,
	}

	if *platform != "" {
		req.Launch = map[string]interface{}{"vk_platform": *platform}
	}

	if err := c.SaveTestResult(ctx, req); err != nil {
		return err
	}

	_, err := fmt.Fprintln(out, "saved")
	return err
}

func parseUser(command string, args []string) (int64, error) {
	fs := pflag.NewFlagSet(command, pflag.ContinueOnError)
	userID := fs.Int64("user", 0, "user id")

	if err := fs.Parse(args); err != nil {
		return 0, err
	}

	if !fs.Changed("user") {
		return 0, fmt.Errorf("%s: --user is required", command)
	}

	return *userID, nil
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

func envOr(name, fallback string) string {
	if value, ok := os.LookupEnv(name); ok {
		return value
	}

	return fallback
}
