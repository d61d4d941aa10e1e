package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	if err := newRootCmd(os.Stdout, os.Stderr, isTTY).Execute(); err != nil {
		var shown reportedError
		if !errors.As(err, &shown) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// isTTY reports whether stderr is a character device (interactive terminal).
// We check stderr because the TUI renders to stderr, allowing stdout to be piped.
func isTTY() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// reportedError marks an error the displayer has already shown.
type reportedError struct{ err error }

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

// cli carries what every command needs before configuration is resolved.
type cli struct {
	flags  rootFlags
	stdout io.Writer
	stderr io.Writer
	isTTY  func() bool
}

func newRootCmd(stdout, stderr io.Writer, tty func() bool) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr, isTTY: tty}

	root := &cobra.Command{
		Use:   "sptb",
		Short: "Command-line client for the Student Project Team Builder",
		Long: `sptb signs in to a Student Project Team Builder server and works with
students, projects, requests, follows and memberships from the terminal.

Tokens are kept per profile in a local file and refreshed automatically when
the server rejects an expired access token.

Environment Variables:
  SPTB_API_URL        API base URL (default: http://localhost:8000/)
  SPTB_TOKEN_FILE     Token storage file (default: .sptb-tokens.json)
  SPTB_PROFILE        Token profile (default: default)
  SPTB_TIMEOUT        Per-call timeout (default: 10s)
  SPTB_RATE_LIMIT     Max API calls per second (default: unlimited)
  SPTB_LOG_LEVEL      Log level (default: warn)
  SPTB_LOG_FILE       Write JSON logs to this file
  SPTB_ACCESS_TOKEN   Use this access token in memory instead of the token file
  SPTB_REFRESH_TOKEN  Use this refresh token in memory instead of the token file`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&c.flags.apiURL, "api-url", "", "API base URL (overrides SPTB_API_URL)")
	pf.StringVar(&c.flags.tokenFile, "token-file", "", "Token storage file (overrides SPTB_TOKEN_FILE)")
	pf.StringVar(&c.flags.profile, "profile", "", "Token profile (overrides SPTB_PROFILE)")
	pf.StringVar(&c.flags.timeout, "timeout", "", "Per-call timeout, e.g. 5s (overrides SPTB_TIMEOUT)")
	pf.StringVar(&c.flags.rateLimit, "rate-limit", "", "Max API calls per second (overrides SPTB_RATE_LIMIT)")
	pf.StringVar(&c.flags.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides SPTB_LOG_LEVEL)")
	pf.StringVar(&c.flags.logFile, "log-file", "", "Write JSON logs to this file (overrides SPTB_LOG_FILE)")
	pf.BoolVar(&c.flags.json, "json", false, "Output JSON instead of human-readable text")
	pf.BoolVar(&c.flags.plain, "plain", false, "Plain progress output even on a terminal")

	root.AddCommand(
		c.loginCmd(),
		c.logoutCmd(),
		c.statusCmd(),
		c.whoamiCmd(),
		c.profileCmd(),
		c.studentsCmd(),
		c.projectsCmd(),
		c.messagesCmd(),
		c.requestsCmd(),
		c.followsCmd(),
		c.membershipsCmd(),
	)
	return root
}
