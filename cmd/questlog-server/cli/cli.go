// Package cli implements the "questlog-server db" operator commands. They
// read the same environment as the server; -db-driver and -db-url override
// it per invocation.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"questlog/internal/logging"
	"questlog/internal/server"
	"questlog/internal/server/config"
	"questlog/internal/server/service"
	"questlog/internal/server/storage"
)

const timeFormat = "2006-01-02 15:04:05"

// readPassword is replaced in tests.
var readPassword = func() ([]byte, error) {
	return term.ReadPassword(int(os.Stdin.Fd()))
}

// Run is the entry point for the CLI mini-app
func Run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("subcommand required: migrate, user, progress")
	}

	switch args[0] {
	case "migrate":
		return runMigrate(args[1:], out)
	case "user":
		if len(args) < 2 {
			return fmt.Errorf("user subcommand required: add, list")
		}
		return runUser(args[1], args[2:], out)
	case "progress":
		return runProgress(args[1:], out)
	default:
		return fmt.Errorf("unknown subcommand: %s", args[0])
	}
}

func runUser(subcommand string, args []string, out io.Writer) error {
	switch subcommand {
	case "add":
		return runUserAdd(args, out)
	case "list":
		return runUserList(args, out)
	default:
		return fmt.Errorf("unknown user subcommand: %s", subcommand)
	}
}

// command bundles the flag set and database settings shared by every
// subcommand.
type command struct {
	fs  *flag.FlagSet
	cfg *config.Config
}

func newCommand(name string) (*command, error) {
	cfg, err := config.Load(nil)
	if err != nil {
		return nil, err
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&cfg.DBDriver, "db-driver", cfg.DBDriver, "Storage driver: postgres or sqlite3")
	fs.StringVar(&cfg.DBURL, "db-url", cfg.DBURL, "Database URL or SQLite file path")
	return &command{fs: fs, cfg: cfg}, nil
}

func (c *command) parse(args []string) error {
	if err := c.fs.Parse(args); err != nil {
		return err
	}
	return c.cfg.Validate()
}

// open connects without the server's implicit migration unless migrate is set.
func (c *command) open(ctx context.Context, migrate bool) (storage.Store, *slog.Logger, error) {
	logger := logging.Setup("questlog-cli", "text", "warn", os.Stderr)
	c.cfg.DBAutoMigrate = migrate
	c.cfg.DBConnectRetries = 0
	store, err := server.OpenStore(ctx, c.cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	return store, logger, nil
}

func runMigrate(args []string, out io.Writer) error {
	cmd, err := newCommand("migrate")
	if err != nil {
		return err
	}
	if err := cmd.parse(args); err != nil {
		return err
	}

	store, _, err := cmd.open(context.Background(), true)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Fprintf(out, "Migrations applied (%s)\n", cmd.cfg.DBDriver)
	return nil
}

func runUserAdd(args []string, out io.Writer) error {
	cmd, err := newCommand("user add")
	if err != nil {
		return err
	}
	email := cmd.fs.String("email", "", "Email address (required)")
	username := cmd.fs.String("username", "", "Username (optional)")
	password := cmd.fs.String("password", "", "Password")
	interactive := cmd.fs.Bool("interactive", false, "Interactive password prompt")

	if err := cmd.parse(args); err != nil {
		return err
	}

	if *email == "" {
		return fmt.Errorf("email required")
	}

	var pw string
	switch {
	case *interactive && *password != "":
		return fmt.Errorf("cannot use -interactive with -password")
	case *interactive:
		fmt.Fprint(out, "Enter password: ")
		pwBytes, err := readPassword()
		fmt.Fprintln(out)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		pw = string(pwBytes)
	case *password != "":
		pw = *password
	default:
		return fmt.Errorf("password required: use -password or -interactive")
	}
	if pw == "" {
		return fmt.Errorf("password must not be empty")
	}

	ctx := context.Background()
	store, logger, err := cmd.open(ctx, false)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := service.New(store.Users(), store.Progress(), service.NewHasher(), logger, cmd.cfg.DBQueryTimeout)
	id, err := svc.Register(ctx, *username, *email, pw)
	if errors.Is(err, service.ErrEmailTaken) {
		return fmt.Errorf("email already registered: %s", *email)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Fprintf(out, "User created successfully:\n")
	fmt.Fprintf(out, "  ID: %d\n", id)
	if *username != "" {
		fmt.Fprintf(out, "  Username: %s\n", *username)
	}
	fmt.Fprintf(out, "  Email: %s\n", *email)
	return nil
}

func runUserList(args []string, out io.Writer) error {
	cmd, err := newCommand("user list")
	if err != nil {
		return err
	}
	if err := cmd.parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	store, _, err := cmd.open(ctx, false)
	if err != nil {
		return err
	}
	defer store.Close()

	users, err := store.Users().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}
	if len(users) == 0 {
		fmt.Fprintln(out, "No users found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUsername\tEmail\tCreated")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	for _, u := range users {
		username := u.Username
		if username == "" {
			username = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", u.ID, username, u.Email, u.CreatedAt.UTC().Format(timeFormat))
	}
	w.Flush()

	fmt.Fprintf(out, "\nFound %d user(s)\n", len(users))
	return nil
}

func runProgress(args []string, out io.Writer) error {
	cmd, err := newCommand("progress")
	if err != nil {
		return err
	}
	email := cmd.fs.String("email", "", "Email address (required)")
	if err := cmd.parse(args); err != nil {
		return err
	}
	if *email == "" {
		return fmt.Errorf("email required")
	}

	ctx := context.Background()
	store, _, err := cmd.open(ctx, false)
	if err != nil {
		return err
	}
	defer store.Close()

	rows, err := store.Progress().ListByEmail(ctx, *email)
	if err != nil {
		return fmt.Errorf("failed to list progress: %w", err)
	}
	if len(rows) == 0 {
		fmt.Fprintf(out, "No progress recorded for %s\n", *email)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Quest\tProgress\tUpdated\tData")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, p := range rows {
		fmt.Fprintf(w, "%s\t%g\t%s\t%s\n", p.QuestID, p.Progress, p.UpdatedAt.UTC().Format(timeFormat), truncate(string(p.Data), 40))
	}
	w.Flush()

	fmt.Fprintf(out, "\nFound %d quest(s)\n", len(rows))
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
