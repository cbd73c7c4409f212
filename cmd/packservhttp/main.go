package main

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/crgimenes/goconfig"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/packserv/packserv"
	"github.com/packserv/packserv/auth"
	"github.com/packserv/packserv/counter"
	"github.com/packserv/packserv/httpd"
	"github.com/packserv/packserv/internal/srcfiles"
	"github.com/packserv/packserv/inventory"
)

// Version is stamped at build time via -ldflags.
var Version = "devel"

// Config this struct is using the goconfig library for simple flag and
// env var parsing. See: https://github.com/crgimenes/goconfig
type Config struct {
	Port             int    `cfgDefault:"9001" cfg:"PORT" cfgHelper:"TCP port to listen on"`
	IP               string `cfgDefault:"::" cfg:"IP" cfgHelper:"Address to listen on"`
	PackageDir       string `cfgDefault:"packages" cfg:"PACKAGE_DIR" cfgHelper:"Directory holding the package tar files and auth.json"`
	EnableStatistics bool   `cfgDefault:"true" cfg:"ENABLE_STATISTICS" cfgHelper:"Maintain per-version download counter files"`
	Deterministic    bool   `cfgDefault:"true" cfg:"DETERMINISTIC" cfgHelper:"Strong entity tags and no timing info in responses"`
	SSL              bool   `cfgDefault:"false" cfg:"SSL" cfgHelper:"Value reported in the wcf-update-server-ssl header"`
	PageTitle        string `cfg:"PAGE_TITLE" cfgHelper:"Title of the rendered pages"`
	Host             string `cfg:"HOST" cfgHelper:"Base URL override for self-references, e.g. https://update.example.com"`
	LogLevel         string `cfgDefault:"info" cfg:"LOG_LEVEL" cfgHelper:"Log levels: debug, info, warning, error, fatal, panic"`
	MetricsAddr      string `cfg:"METRICS_ADDR" cfgHelper:"Optional listen address for the Prometheus /metrics endpoint"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	goconfig.PrefixEnv = "PACKSERV"
	conf := Config{}
	if err := goconfig.Parse(&conf); err != nil {
		log.Fatal().Msgf("failed to parse config: %v", err)
	}

	// setup pretty logging
	zerolog.SetGlobalLevel(logLevel(conf))
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	ctx = log.Logger.WithContext(ctx)

	if os.Geteuid() == 0 {
		log.Fatal().Msg("cowardly refusing to run as root")
	}

	dir, err := filepath.Abs(conf.PackageDir)
	if err != nil {
		log.Fatal().Msgf("invalid package directory: %v", err)
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		log.Fatal().Str("dir", dir).Msg("package directory does not exist")
	}

	state := &inventory.State{}
	switch cfg, err := auth.Load(filepath.Join(dir, inventory.AuthFile)); {
	case err == nil:
		state.SetAuth(cfg)
	case errors.Is(err, fs.ErrNotExist):
		state.SetAuth(&auth.Config{})
	default:
		log.Fatal().Msgf("failed to read auth.json: %v", err)
	}

	snapshot, err := inventory.Scan(ctx, dir)
	if err != nil {
		log.Fatal().Msgf("failed to read package directory: %v", err)
	}
	state.SetSnapshot(snapshot)

	watcher, err := inventory.NewWatcher(ctx, dir, state, 0)
	if err != nil {
		log.Fatal().Msgf("failed to watch package directory: %v", err)
	}
	defer watcher.Close()

	sources, err := srcfiles.Load(packserv.Sources)
	if err != nil {
		log.Fatal().Msgf("failed to load embedded sources: %v", err)
	}

	h := httpd.New(httpd.Opts{
		State:            state,
		Counter:          counter.New(dir),
		PackageDir:       dir,
		Sources:          sources,
		SSL:              conf.SSL,
		Deterministic:    conf.Deterministic,
		EnableStatistics: conf.EnableStatistics,
		PageTitle:        conf.PageTitle,
		Host:             strings.TrimRight(conf.Host, "/"),
		Version:          Version,
	})

	addr := net.JoinHostPort(conf.IP, strconv.Itoa(conf.Port))
	srv := &http.Server{
		Addr:        addr,
		Handler:     h,
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return watcher.Run(ctx) })
	eg.Go(func() error {
		log.Printf("starting http server on %v", addr)
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	if conf.MetricsAddr != "" {
		m := http.NewServeMux()
		m.Handle("/metrics", promhttp.Handler())
		msrv := &http.Server{Addr: conf.MetricsAddr, Handler: m}
		eg.Go(func() error {
			log.Printf("starting metrics server on %v", conf.MetricsAddr)
			err := msrv.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		eg.Go(func() error {
			<-ctx.Done()
			return msrv.Shutdown(context.Background())
		})
	}
	eg.Go(func() error {
		<-ctx.Done()
		return srv.Shutdown(context.Background())
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Msgf("server error: %v", err)
	}
}

func logLevel(conf Config) zerolog.Level {
	level := strings.ToLower(conf.LogLevel)
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}
