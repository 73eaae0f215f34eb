// Command fsctl runs, replays and maintains feedsieve.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/pkg/browser"
	"github.com/urfave/cli/v2"

	"github.com/ibeckermayer/feedsieve/internal/app"
	"github.com/ibeckermayer/feedsieve/internal/auth"
	browseropts "github.com/ibeckermayer/feedsieve/internal/browser"
	"github.com/ibeckermayer/feedsieve/internal/config"
	"github.com/ibeckermayer/feedsieve/internal/logger"
	"github.com/ibeckermayer/feedsieve/internal/marks"
	"github.com/ibeckermayer/feedsieve/internal/scheduler"
	"github.com/ibeckermayer/feedsieve/internal/store"
	"github.com/ibeckermayer/feedsieve/internal/types"
)

func main() {
	config.LoadDotEnv()

	cliApp := &cli.App{
		Name:  "fsctl",
		Usage: "filter the feed with an LLM, and look after the bits around it",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "config file (default: user config dir)",
				EnvVars: []string{"FEEDSIEVE_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override log.level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			replayCommand(),
			loginCommand(),
			logoutCommand(),
			statusCommand(),
			reportCommand(),
			pruneCommand(),
			openCommand(),
			botTestCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// configLoader reads the config file selected by --config
func configLoader(c *cli.Context) func() (*config.Config, error) {
	return func() (*config.Config, error) {
		if path := c.String("config"); path != "" {
			return config.LoadFile(path)
		}
		return config.Load()
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := configLoader(c)()
	if err != nil {
		return nil, err
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	logger.Setup(cfg.Log)
	return cfg, nil
}

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func authManager() (*auth.Manager, error) {
	path, err := auth.DefaultCookieStorePath()
	if err != nil {
		return nil, err
	}
	return auth.NewManager(auth.NewCookieStore(path)), nil
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "filter the live feed in a browser window until interrupted (Alt+Shift+F toggles)",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "headless", Usage: "run the browser without a window"},
			&cli.BoolFlag{Name: "snapshot", Usage: "save the mirrored feed on exit for replay"},
			&cli.BoolFlag{Name: "dump-llm", Usage: "write every prompt and response to the cache dir"},
			&cli.BoolFlag{Name: "dump-records", Usage: "write the extracted content of every submitted post on exit"},
			&cli.StringFlag{Name: "mode", Usage: "display mode: blur or hide"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if c.IsSet("headless") {
				cfg.Scraping.Headless = c.Bool("headless")
			}
			if c.Bool("snapshot") {
				cfg.Scraping.SnapshotOnExit = true
			}
			if c.Bool("dump-llm") {
				cfg.Scraping.DumpLLM = true
			}
			if c.Bool("dump-records") {
				cfg.Scraping.DumpRecords = true
			}
			if mode := c.String("mode"); mode != "" {
				cfg.DisplayMode = types.DisplayMode(mode)
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			ctx, stop := signalContext(c)
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			// kill -HUP re-reads enabled, display_mode and criteria
			a.ReloadOnSignal(ctx, configLoader(c), syscall.SIGHUP)
			return a.RunLive(ctx)
		},
	}
}

func replayCommand() *cli.Command {
	return &cli.Command{
		Name:      "replay",
		Usage:     "run the filter offline over a saved feed snapshot",
		ArgsUsage: "<snapshot.html>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "record", Usage: "write replay verdicts to the history database"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("replay needs exactly one snapshot file", 1)
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			f, err := os.Open(c.Args().First())
			if err != nil {
				return err
			}
			defer f.Close()

			ctx, stop := signalContext(c)
			defer stop()

			opts := []app.Option{app.WithIDs(&marks.SequenceIDs{Prefix: "replay-"})}
			if !c.Bool("record") {
				st, err := store.New(":memory:")
				if err != nil {
					return err
				}
				opts = append(opts, app.WithStore(st))
			}
			a, err := app.New(ctx, cfg, opts...)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Replay(ctx, f)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tAUTHOR\tVERDICT\tREASON")
			for _, r := range res.Results {
				author := ""
				if rec, err := a.Store().Get(r.CorrelationID); err == nil {
					author = rec.Author
				}
				verdict, reason := string(r.Category), r.Reason
				if r.Error != "" {
					verdict, reason = "error", r.Error
				}
				fmt.Fprintf(w, "%s\t@%s\t%s\t%s\n", r.CorrelationID, author, verdict, reason)
			}
			w.Flush()
			fmt.Printf("\n%d posts submitted, %d treated\n", res.Submitted, res.Treated)
			return nil
		},
	}
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "log in to the feed in a browser window and store the session",
		Action: func(c *cli.Context) error {
			if _, err := loadConfig(c); err != nil {
				return err
			}
			m, err := authManager()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(c)
			defer stop()
			if err := m.Login(ctx); err != nil {
				return err
			}
			fmt.Println(m.Status())
			return nil
		},
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "forget the stored feed session",
		Action: func(c *cli.Context) error {
			m, err := authManager()
			if err != nil {
				return err
			}
			if err := m.Logout(); err != nil {
				return err
			}
			fmt.Println("Logged out")
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show login state and recent verdict counts",
		Action: func(c *cli.Context) error {
			m, err := authManager()
			if err != nil {
				return err
			}
			fmt.Printf("Session: %s\n", m.Status())

			path, err := store.DefaultPath()
			if err != nil {
				return err
			}
			st, err := store.New(path)
			if err != nil {
				return err
			}
			defer st.Close()
			stats, err := st.Stats(time.Now().Add(-24 * time.Hour))
			if err != nil {
				return err
			}
			fmt.Printf("Last 24h: %d posts, %d filtered (%.0f%%), %d highlighted, %d errors, %d pending\n",
				stats.Total, stats.Filtered, stats.FilterRate()*100, stats.Highlighted, stats.Errors, stats.Pending)
			return nil
		},
	}
}

func reportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "render recent verdicts as HTML and open it",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-open", Usage: "only print the report path"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			a, err := app.New(c.Context, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			path, err := a.WriteReport(c.Context)
			if err != nil {
				return err
			}
			fmt.Println(path)
			if c.Bool("no-open") {
				return nil
			}
			return browser.OpenFile(path)
		},
	}
}

func pruneCommand() *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "delete verdict history older than store.retention_days now",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			a, err := app.New(c.Context, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			retention := time.Duration(cfg.Store.RetentionDays) * 24 * time.Hour
			return a.Scheduler().RunNow(c.Context, "prune", scheduler.PruneJob(a.Store(), retention, time.Now))
		},
	}
}

func openCommand() *cli.Command {
	return &cli.Command{
		Name:      "open",
		Usage:     "open the config file or the cache directory",
		ArgsUsage: "<config|cache>",
		Action: func(c *cli.Context) error {
			var (
				path string
				err  error
			)
			switch target := c.Args().First(); target {
			case "config":
				path, err = config.ConfigPath()
			case "cache":
				path, err = config.CacheDir()
			default:
				return cli.Exit(fmt.Sprintf("unknown target %q (want config or cache)", target), 1)
			}
			if err != nil {
				return fmt.Errorf("failed to get path: %w", err)
			}
			return browser.OpenFile(path)
		},
	}
}

func botTestCommand() *cli.Command {
	return &cli.Command{
		Name:  "bot-test",
		Usage: "open " + browseropts.BotTestURL + " with the stealth options to audit the fingerprint",
		Action: func(c *cli.Context) error {
			ctx, stop := signalContext(c)
			defer stop()
			fmt.Println("Press Ctrl-C to close the browser...")
			return browseropts.BotTest(ctx)
		},
	}
}
