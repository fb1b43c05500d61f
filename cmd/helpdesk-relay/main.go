// ABOUTME: Entry point for helpdesk-relay
// ABOUTME: Runs the Telegram relay and the maintenance subcommands around its database

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/helpdesk-relay/internal/clients"
	"github.com/2389/helpdesk-relay/internal/config"
	"github.com/2389/helpdesk-relay/internal/dedupe"
	"github.com/2389/helpdesk-relay/internal/history"
	"github.com/2389/helpdesk-relay/internal/legacy"
	"github.com/2389/helpdesk-relay/internal/relay"
	"github.com/2389/helpdesk-relay/internal/sessions"
	"github.com/2389/helpdesk-relay/internal/settings"
	"github.com/2389/helpdesk-relay/internal/store"
	"github.com/2389/helpdesk-relay/internal/telegram"
	"github.com/2389/helpdesk-relay/internal/texts"
)

// Version is set at build time.
var version = "dev"

const banner = `
  _        _           _             _
 | |_  ___| |_ __   __| |___ ___ __| |__
 | ' \/ -_) | '_ \ / _' / -_|_-</ /| / /
 |_||_\___|_| .__/ \__,_\___/__/\_\|_\_\  relay
            |_|
`

func usage() {
	fmt.Println("Usage: helpdesk-relay <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                 Start the relay")
	fmt.Println("  init                  Write a starter config file")
	fmt.Println("  import --dir DIR      Import state from a legacy data directory")
	fmt.Println("  registry --file CSV   Add known client phones from a CSV file")
	fmt.Println("  operators             List operators and their session counts")
	fmt.Println("  audit                 Show recent admin actions")
	fmt.Println("  texts                 Print the built-in message catalog as TOML")
	fmt.Println("  version               Print the version")
	fmt.Println()
	fmt.Println("Every command accepts --config PATH (default: $HELPDESK_CONFIG or")
	fmt.Println("$XDG_CONFIG_HOME/helpdesk/relay.yaml) and --env PATH (default: .env).")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, args)
	case "init":
		err = runInit(args)
	case "import":
		err = runImport(ctx, args)
	case "registry":
		err = runRegistry(ctx, args)
	case "operators":
		err = runOperators(ctx, args)
	case "audit":
		err = runAudit(ctx, args)
	case "texts":
		err = runTexts(args)
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// commonFlags are accepted by every command that reads the config.
type commonFlags struct {
	config string
	env    string
}

func newFlagSet(name string, common *commonFlags) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.StringVar(&common.config, "config", config.DefaultPath(), "config file path")
	flags.StringVar(&common.env, "env", ".env", "dotenv file loaded before the config")
	return flags
}

// loadConfig loads the dotenv file, then the YAML config.
func loadConfig(common commonFlags) (*config.Config, error) {
	if err := config.LoadDotEnv(common.env); err != nil {
		return nil, err
	}
	cfg, err := config.Load(common.config)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	s, err := store.OpenSQLiteStore(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return s, nil
}

func clientDefaults(cat *texts.Catalog) clients.Defaults {
	return clients.Defaults{
		State:         store.ClientState(cat.Defaults.State),
		Cities:        cat.Defaults.Cities,
		Subscriptions: cat.Defaults.Subscriptions,
	}
}

func runServe(ctx context.Context, args []string) error {
	var common commonFlags
	flags := newFlagSet("serve", &common)
	if err := flags.Parse(args); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := loadConfig(common)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", common.config)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s (%s)\n", cfg.Database.Path, driverName(cfg.Database.Driver))
	if cfg.Texts.Path != "" {
		green.Print("    ▶ ")
		fmt.Printf("Texts:     %s\n", cfg.Texts.Path)
	}
	fmt.Println()

	backend, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	catalog, err := texts.NewHolder(cfg.Texts.Path)
	if err != nil {
		return fmt.Errorf("loading texts: %w", err)
	}

	sess, err := sessions.New(ctx, backend, logger)
	if err != nil {
		return err
	}
	dir, err := clients.New(ctx, backend, backend, logger)
	if err != nil {
		return err
	}
	admins, err := relay.NewAdmins(ctx, backend, cfg.Admins, logger)
	if err != nil {
		return err
	}

	seen := dedupe.New[int](cfg.Dedupe.TTL, cfg.Dedupe.MaxSize)

	bridge, err := telegram.New(telegram.Config{
		Token:          cfg.Telegram.Token,
		PollTimeout:    cfg.Telegram.PollTimeout,
		RequestTimeout: cfg.Telegram.RequestTimeout,
	}, seen, logger)
	if err != nil {
		return err
	}

	router := relay.NewRouter(relay.Deps{
		Transport: bridge,
		Sessions:  sess,
		Clients:   dir,
		Settings:  settings.NewEngine(dir, catalog, logger),
		History:   history.New(backend, logger),
		Forwards:  backend,
		Admins:    admins,
		Catalog:   catalog,
		Audit:     backend,
	}, relay.Config{
		ForwardLimit:  cfg.History.ForwardLimit,
		OperatorLimit: cfg.History.OperatorLimit,
		LogsDefault:   cfg.History.LogsDefault,
	}, logger)

	logger.Info("starting helpdesk-relay",
		"config", common.config,
		"database", cfg.Database.Path,
		"operators", len(sess.Operators()),
		"admins", len(admins.List()),
	)

	return bridge.Run(ctx, router)
}

func driverName(driver string) string {
	if driver == "" {
		return store.DriverModernc
	}
	return driver
}

func runInit(args []string) error {
	var common commonFlags
	flags := newFlagSet("init", &common)
	force := flags.Bool("force", false, "overwrite an existing config file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	path := common.config
	if _, err := os.Stat(path); err == nil && !*force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("checking %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(config.Template), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Wrote %s\n", path)
	fmt.Println("  Set HELPDESK_TELEGRAM_TOKEN (or edit telegram.token), then run: helpdesk-relay serve")
	return nil
}

func runImport(ctx context.Context, args []string) error {
	var common commonFlags
	flags := newFlagSet("import", &common)
	dir := flags.String("dir", "", "legacy data directory (operators.json, sessions.json, ...)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *dir == "" {
		return fmt.Errorf("--dir is required")
	}

	cfg, err := loadConfig(common)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	backend, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	catalog, err := texts.NewHolder(cfg.Texts.Path)
	if err != nil {
		return fmt.Errorf("loading texts: %w", err)
	}

	rep, err := legacy.NewImporter(backend, clientDefaults(catalog.Current()), logger).ImportDir(ctx, *dir)
	if err != nil {
		return err
	}
	err = backend.AppendAuditLog(ctx, &store.AuditEntry{
		Action: store.AuditImport,
		Detail: map[string]any{
			"dir":       *dir,
			"operators": rep.Operators,
			"sessions":  rep.Sessions,
			"clients":   rep.Clients,
			"phones":    rep.Phones,
		},
	})
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Imported %d operators, %d sessions, %d clients, %d new phones\n",
		rep.Operators, rep.Sessions, rep.Clients, rep.Phones)
	return nil
}

func runRegistry(ctx context.Context, args []string) error {
	var common commonFlags
	flags := newFlagSet("registry", &common)
	file := flags.String("file", "", "CSV file with a phone column")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("--file is required")
	}

	cfg, err := loadConfig(common)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	backend, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	added, err := legacy.NewImporter(backend, clients.Defaults{}, logger).ImportRegistryFile(ctx, *file)
	if err != nil {
		return err
	}
	total, err := backend.CountKnownPhones(ctx)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Added %d phones (%d known)\n", added, total)
	return nil
}

func runOperators(ctx context.Context, args []string) error {
	var common commonFlags
	flags := newFlagSet("operators", &common)
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(common)
	if err != nil {
		return err
	}

	backend, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	quiet := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	sess, err := sessions.New(ctx, backend, quiet)
	if err != nil {
		return err
	}

	ops := sess.Operators()
	if len(ops) == 0 {
		fmt.Println("No operators.")
		return nil
	}

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	fmt.Printf("%-16s %-10s %s\n", "CHAT ID", "STATUS", "SESSIONS")
	for _, op := range ops {
		fmt.Printf("%-16d ", op.ChatID)
		if op.Available {
			green.Printf("%-10s ", "available")
		} else {
			red.Printf("%-10s ", "away")
		}
		fmt.Printf("%d\n", op.Sessions)
	}
	return nil
}

func runAudit(ctx context.Context, args []string) error {
	var common commonFlags
	flags := newFlagSet("audit", &common)
	limit := flags.IntP("limit", "n", 50, "number of entries")
	action := flags.String("action", "", "only this action (add_operator, delete_admin, ...)")
	actor := flags.Int64("actor", 0, "only actions by this chat id")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(common)
	if err != nil {
		return err
	}

	backend, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	filter := store.AuditFilter{Limit: *limit}
	if *action != "" {
		a := store.AuditAction(*action)
		filter.Action = &a
	}
	if flags.Changed("actor") {
		filter.ActorID = actor
	}

	entries, err := backend.ListAuditLog(ctx, filter)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No audit entries.")
		return nil
	}

	gray := color.New(color.FgHiBlack)
	cyan := color.New(color.FgCyan)
	for _, e := range entries {
		gray.Printf("%s ", e.Timestamp.Local().Format("2006-01-02 15:04:05"))
		cyan.Printf("%-16s", e.Action)
		fmt.Printf(" actor=%d", e.ActorID)
		if e.TargetID != 0 {
			fmt.Printf(" target=%d", e.TargetID)
		}
		if len(e.Detail) > 0 {
			fmt.Printf(" %v", e.Detail)
		}
		fmt.Println()
	}
	return nil
}

func runTexts(args []string) error {
	flags := pflag.NewFlagSet("texts", pflag.ContinueOnError)
	path := flags.String("file", "", "catalog to validate and print instead of the built-in one")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cat := texts.Default()
	if *path != "" {
		var err error
		if cat, err = texts.Load(*path); err != nil {
			return err
		}
	}
	return toml.NewEncoder(os.Stdout).Encode(cat)
}
