// Command fieldview is a terminal dashboard for field sensor devices: live
// charts and GPS position from a WebSocket or MQTT feed, a history overlay
// from the stored records, and a read-only JSON status API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lmittmann/tint"

	"github.com/luki/fieldview/internal/config"
	"github.com/luki/fieldview/internal/feed"
	"github.com/luki/fieldview/internal/geo"
	"github.com/luki/fieldview/internal/history"
	"github.com/luki/fieldview/internal/maps"
	"github.com/luki/fieldview/internal/monitor"
	"github.com/luki/fieldview/internal/reading"
	"github.com/luki/fieldview/internal/replay"
	"github.com/luki/fieldview/internal/store"
	"github.com/luki/fieldview/internal/viewer"
	"github.com/luki/fieldview/internal/web"
)

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "live":
		err = runLive(os.Args[2:])
	case "history":
		err = runHistory(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "export":
		err = runExport(os.Args[2:])
	case "import":
		err = runImport(os.Args[2:])
	case "help", "-h", "--help":
		printHelp()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printHelp()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("Usage: fieldview <command> [-config file.yaml] [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  live      live dashboard (charts, device list, GPS map)")
	fmt.Println("  history   history overlay of stored records")
	fmt.Println("  serve     headless: route the live feed and serve the status API")
	fmt.Println("  export    write the configured history source to a CSV file")
	fmt.Println("  import    load a CSV export into the SQLite history file")
}

// ── Wiring ───────────────────────────────────────────────────────────

type app struct {
	cfg     *config.Config
	log     *slog.Logger
	closeFn func()
}

func setup(name string, args []string, tui bool, extra func(fs *flag.FlagSet)) (*app, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	cfgPath := fs.String("config", os.Getenv("FIELDVIEW_CONFIG"), "path to the YAML config file")
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return nil, err
	}

	log, closeFn, err := newLogger(cfg.Log, tui)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)
	return &app{cfg: cfg, log: log, closeFn: closeFn}, nil
}

// newLogger logs to stdout, or to the log file when the terminal belongs
// to a TUI.
func newLogger(cfg config.LogConfig, tui bool) (*slog.Logger, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	var w io.Writer = os.Stdout
	closeFn := func() {}
	if tui {
		if cfg.File == "" {
			w = io.Discard
		} else {
			f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return nil, nil, fmt.Errorf("opening log file: %w", err)
			}
			w = f
			closeFn = func() { f.Close() }
		}
	}

	log := slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    tui,
	}))
	return log, closeFn, nil
}

func (a *app) newSession() (*feed.Session, error) {
	zero, err := reading.ParseZeroPolicy(a.cfg.Series.ZeroPolicy)
	if err != nil {
		return nil, err
	}
	sel, err := feed.ParseSelectionPolicy(a.cfg.Series.Selection)
	if err != nil {
		return nil, err
	}
	return feed.NewSession(history.NewRegistry(a.cfg.Series.Capacity, zero), sel), nil
}

func (a *app) newCanvas() *maps.Canvas {
	c := maps.NewCanvas()
	zoom := a.cfg.Map.Zoom
	if zoom <= 0 {
		zoom = maps.DefaultZoom
	}
	c.SetView(maps.Point{Lat: a.cfg.Map.CenterLat, Lon: a.cfg.Map.CenterLon}, zoom)
	return c
}

func (a *app) newGeocoder() geo.Geocoder {
	if a.cfg.Geocoder.Disabled {
		return nil
	}
	return geo.NewNominatim(a.cfg.Geocoder.BaseURL, a.cfg.Geocoder.UserAgent, a.cfg.Geocoder.GetTimeout())
}

func (a *app) newFeedSource() feed.Source {
	fc := a.cfg.Feed
	if fc.Transport == "mqtt" {
		src := feed.NewMQTTSource(fc.MQTT.Broker, fc.MQTT.Topic, fc.MQTT.ClientID, a.log)
		src.QoS = byte(fc.MQTT.QoS)
		return src
	}
	return feed.NewWebSocketSource(fc.WebSocketURL, a.log)
}

// newLoader opens the history source. The returned close func releases
// database pools.
func (a *app) newLoader(ctx context.Context, m maps.Map, geocoder geo.Geocoder) (*replay.Loader, func(), error) {
	src, err := store.Open(ctx, a.cfg.History)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {}
	if c, ok := src.(store.Closer); ok {
		closeFn = func() { c.Close() }
	}
	h := a.cfg.History
	return replay.NewLoader(src, geocoder, m, h.Jitter, h.Concurrency, a.log), closeFn, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runTUI(ctx context.Context, model tea.Model) (*tea.Program, func() error) {
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	return p, func() error {
		_, err := p.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	}
}

// ── Commands ─────────────────────────────────────────────────────────

func runLive(args []string) error {
	a, err := setup("live", args, true, nil)
	if err != nil {
		return err
	}
	defer a.closeFn()

	ctx, stop := signalContext()
	defer stop()

	session, err := a.newSession()
	if err != nil {
		return err
	}
	canvas := a.newCanvas()
	geocoder := a.newGeocoder()
	tracker := geo.NewTracker(canvas, geocoder, a.log)
	router := feed.NewRouter(session, tracker, a.log)

	p, run := runTUI(ctx, monitor.New(ctx, router, canvas))
	// Update runs inside the program's event loop, so the redraw must not
	// block on it.
	tracker.OnChange = func() { go p.Send(monitor.RedrawMsg{}) }

	src := a.newFeedSource()
	go func() {
		err := src.Run(ctx, func(raw []byte) { p.Send(monitor.FeedMsg(raw)) })
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error("live feed stopped", "error", err)
			p.Send(monitor.FeedErrMsg{Err: err})
		}
	}()

	if a.cfg.History.Enabled {
		loader, closeFn, err := a.newLoader(ctx, canvas, geocoder)
		if err != nil {
			a.log.Error("history overlay disabled", "error", err)
		} else {
			defer closeFn()
			go func() {
				if _, err := loader.Load(ctx, a.cfg.History.DeviceID); err == nil {
					p.Send(monitor.RedrawMsg{})
				}
			}()
		}
	}

	if a.cfg.Web.Enabled {
		srv := web.NewServer(a.cfg.Web.Addr, session, tracker, canvas, a.log)
		go func() {
			if err := srv.Run(ctx); err != nil {
				a.log.Error("status api stopped", "error", err)
			}
		}()
	}

	err = run()
	stop()
	tracker.Wait()
	return err
}

func runHistory(args []string) error {
	var device string
	a, err := setup("history", args, true, func(fs *flag.FlagSet) {
		fs.StringVar(&device, "device", "", "device id to load (default: history.device_id, empty for all)")
	})
	if err != nil {
		return err
	}
	defer a.closeFn()
	if device == "" {
		device = a.cfg.History.DeviceID
	}

	ctx, stop := signalContext()
	defer stop()

	canvas := a.newCanvas()
	loader, closeFn, err := a.newLoader(ctx, canvas, a.newGeocoder())
	if err != nil {
		return err
	}
	defer closeFn()

	_, run := runTUI(ctx, viewer.New(ctx, loader, device, canvas))
	return run()
}

func runServe(args []string) error {
	a, err := setup("serve", args, false, nil)
	if err != nil {
		return err
	}
	defer a.closeFn()

	ctx, stop := signalContext()
	defer stop()

	session, err := a.newSession()
	if err != nil {
		return err
	}
	session.OnDevices = func(n int) {
		a.log.Info("device list changed", "count", n, "text", feed.CountText(n))
	}

	canvas := a.newCanvas()
	geocoder := a.newGeocoder()
	tracker := geo.NewTracker(canvas, geocoder, a.log)
	router := feed.NewRouter(session, tracker, a.log)
	defer tracker.Wait()

	if a.cfg.History.Enabled {
		loader, closeFn, err := a.newLoader(ctx, canvas, geocoder)
		if err != nil {
			a.log.Error("history overlay disabled", "error", err)
		} else {
			defer closeFn()
			go loader.Load(ctx, a.cfg.History.DeviceID)
		}
	}

	go func() {
		if err := feed.Pump(ctx, a.newFeedSource(), router); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error("live feed stopped", "error", err)
		}
	}()

	addr := a.cfg.Web.Addr
	return web.NewServer(addr, session, tracker, canvas, a.log).Run(ctx)
}

func runExport(args []string) error {
	var out, device string
	a, err := setup("export", args, false, func(fs *flag.FlagSet) {
		fs.StringVar(&out, "out", "history.csv", "output CSV file")
		fs.StringVar(&device, "device", "", "device id (empty for all)")
	})
	if err != nil {
		return err
	}
	defer a.closeFn()

	ctx, stop := signalContext()
	defer stop()

	src, err := store.Open(ctx, a.cfg.History)
	if err != nil {
		return err
	}
	if c, ok := src.(store.Closer); ok {
		defer c.Close()
	}

	recs, err := src.Fetch(ctx, device)
	if err != nil {
		return err
	}
	if err := store.WriteCSV(out, recs); err != nil {
		return err
	}
	a.log.Info("history exported", "records", len(recs), "file", out)
	return nil
}

func runImport(args []string) error {
	var in string
	a, err := setup("import", args, false, func(fs *flag.FlagSet) {
		fs.StringVar(&in, "csv", "", "CSV export to load")
	})
	if err != nil {
		return err
	}
	defer a.closeFn()
	if in == "" {
		return errors.New("import: -csv is required")
	}

	ctx, stop := signalContext()
	defer stop()

	recs, err := (&store.CSVSource{Path: in}).Fetch(ctx, "")
	if err != nil {
		return err
	}

	db, err := store.NewSQLiteSource(a.cfg.History.SQLite)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}
	if err := db.Insert(ctx, recs); err != nil {
		return err
	}
	a.log.Info("history imported", "records", len(recs), "db", a.cfg.History.SQLite.Path)
	return nil
}
