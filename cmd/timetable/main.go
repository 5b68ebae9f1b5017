package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"

	"timetable/internal/cache"
	"timetable/internal/config"
	"timetable/internal/ics"
	appLog "timetable/internal/log"
	"timetable/internal/refresh"
	"timetable/internal/remote"
	"timetable/internal/schedule"
	"timetable/internal/view"
	"timetable/internal/web"
)

const version = "1.0.0"

func main() {
	app := &cli.App{
		Name:    "timetable",
		Usage:   "Show today's HSRM course timetable and when it changes next.",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "./timetable.yaml", Usage: "path to config file", EnvVars: []string{"TIMETABLE_CONFIG"}},
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "dotenv file with TIMETABLE_USERNAME/TIMETABLE_PASSWORD"},
			&cli.StringFlag{Name: "log-level", Value: "", Usage: "debug, info, warn or error (default LOG_LEVEL)"},
			&cli.StringFlag{Name: "program", Usage: "study program (overrides config)"},
			&cli.IntFlag{Name: "semester", Usage: "semester (overrides config)"},
		},
		Before: func(c *cli.Context) error {
			if lvl := c.String("log-level"); lvl != "" {
				appLog.SetLevel(appLog.ParseLevel(lvl))
			}
			return nil
		},
		Commands: []*cli.Command{
			todayCommand(),
			exportCommand(),
			serveCommand(),
			clearCacheCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		appLog.Error("timetable failed", err)
		os.Exit(1)
	}
}

// deps bundles the wired components shared by all commands.
type deps struct {
	cfg     *config.Config
	client  *remote.Client
	store   *cache.Store
	service *schedule.Service
}

func setup(c *cli.Context, needCredentials bool) (*deps, error) {
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if p := c.String("program"); p != "" {
		cfg.Program = p
	}
	if s := c.Int("semester"); s > 0 {
		cfg.Semester = s
	}
	if needCredentials {
		if err := cfg.LoadCredentials(c.String("env-file")); err != nil {
			return nil, err
		}
	}

	client := remote.NewClient(remote.Config{
		BaseURL:   cfg.BaseURL,
		WebURL:    cfg.LinkURL(),
		UserAgent: "timetable/" + version,
	})
	store := cache.NewOS(cfg.CacheDir)

	appLog.Debug("effective config",
		"config_path", path,
		"base_url", cfg.BaseURL,
		"program", cfg.Program,
		"semester", cfg.Semester,
		"cache_dir", cfg.CacheDir,
		"max_events", cfg.MaxEvents,
	)

	return &deps{
		cfg:     cfg,
		client:  client,
		store:   store,
		service: schedule.NewService(client, store),
	}, nil
}

// signalContext is canceled on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func todayCommand() *cli.Command {
	return &cli.Command{
		Name:  "today",
		Usage: "Print the events of today and the next refresh time.",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Usage: "maximum number of events shown (overrides config)"},
			&cli.BoolFlag{Name: "json", Usage: "print the raw result as JSON"},
		},
		Action: func(c *cli.Context) error {
			a, err := setup(c, true)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(c.Context)
			defer cancel()

			limit := a.cfg.MaxEvents
			if m := c.Int("limit"); m > 0 {
				limit = m
			}

			data := a.service.Today(ctx, a.cfg.Program, a.cfg.Semester, a.cfg.Credentials)
			now := a.service.Now()
			tc := data.Context
			next := refresh.Next(a.service.Grid(), now, tc.Midnight, tc.NextMidnight)

			if c.Bool("json") {
				enc := json.NewEncoder(c.App.Writer)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					schedule.Data
					NextRefresh string `json:"next_refresh"`
				}{data, next.Format(time.RFC3339)})
			}

			printToday(c.App.Writer, a, data, limit)
			fmt.Fprintf(c.App.Writer, "next refresh: %s\n", next.Format("Mon 15:04"))
			return nil
		},
	}
}

func printToday(w io.Writer, a *deps, data schedule.Data, limit int) {
	tc := data.Context
	fmt.Fprintf(w, "%s%d, KW %d\n", a.cfg.Program, a.cfg.Semester, tc.Week)

	if !data.Lecturers.OK() {
		fmt.Fprintf(w, "lecturers: %s\n", data.Lecturers.Err.Message)
	}
	if !data.Events.OK() {
		fmt.Fprintf(w, "error: %s\n", data.Events.Err.Message)
		return
	}

	v := view.Select(data.Events.Value, a.service.Now(), tc.Midnight, limit)
	switch v.Status {
	case view.StatusNoEvents:
		fmt.Fprintln(w, "no events today")
	case view.StatusNoMoreEvents:
		fmt.Fprintln(w, "no more events today")
	}
	for _, it := range v.Visible {
		marker := " "
		if it.InProgress {
			marker = "*"
		}
		line := fmt.Sprintf("%s %s-%s  %s", marker, it.Start.Format("15:04"), it.End.Format("15:04"), it.Event.Name)
		if len(it.Event.Rooms) > 0 {
			line += "  " + it.Event.Rooms[0]
		}
		if l, ok := it.Event.FirstLecturer(); ok {
			line += "  " + l.Name
		}
		fmt.Fprintln(w, line)
	}
	if v.Hidden > 0 {
		fmt.Fprintf(w, "  +%d more\n", v.Hidden)
	}
	fmt.Fprintln(w, a.client.WebLink(a.cfg.Program, a.cfg.Semester, tc.Week))
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write today's events as an iCalendar file.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "-", Usage: "output file, - for stdout"},
		},
		Action: func(c *cli.Context) error {
			a, err := setup(c, true)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(c.Context)
			defer cancel()

			data := a.service.Today(ctx, a.cfg.Program, a.cfg.Semester, a.cfg.Credentials)
			if !data.Events.OK() {
				return fmt.Errorf("load events: %w", data.Events.Err)
			}

			w := c.App.Writer
			if out := c.String("output"); out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}

			return ics.Export(w, data.Events.Value, ics.Options{
				Program:  a.cfg.Program,
				Semester: a.cfg.Semester,
				Week:     data.Context.Week,
				Midnight: data.Context.Midnight,
				Links:    a.client,
			})
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve today's schedule over HTTP and prefetch it whenever the view changes.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "HTTP listen address (overrides config)"},
		},
		Action: func(c *cli.Context) error {
			a, err := setup(c, true)
			if err != nil {
				return err
			}
			if l := c.String("listen"); l != "" {
				a.cfg.Listen = l
			}
			ctx, cancel := signalContext(c.Context)
			defer cancel()

			srv := web.NewServer(a.cfg, a.service, a.client)

			scheduler := cron.New(cron.WithLogger(cronLogger{}))
			scheduler.Schedule(refresh.Schedule{Grid: a.service.Grid()}, cron.FuncJob(func() {
				data := srv.Today(ctx, a.cfg.Program, a.cfg.Semester)
				appLog.Info("prefetch done",
					"week", data.Context.Week,
					"day", data.Context.Day,
					"events_ok", data.Events.OK(),
					"lecturers_ok", data.Lecturers.OK(),
				)
			}))
			scheduler.Start()
			defer func() { <-scheduler.Stop().Done() }()

			appLog.Info("timetable serving",
				"listen", a.cfg.Listen,
				"program", a.cfg.Program,
				"semester", a.cfg.Semester,
			)
			return srv.Serve(ctx)
		},
	}
}

func clearCacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "clear-cache",
		Usage: "Remove all cached events and lecturers.",
		Action: func(c *cli.Context) error {
			a, err := setup(c, false)
			if err != nil {
				return err
			}
			removed, err := a.store.Clear()
			if err != nil {
				return err
			}
			if removed {
				fmt.Fprintf(c.App.Writer, "removed %s\n", a.store.Dir())
			} else {
				fmt.Fprintf(c.App.Writer, "nothing to remove at %s\n", a.store.Dir())
			}
			return nil
		},
	}
}

// cronLogger routes cron's logging into the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}
