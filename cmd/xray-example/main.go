// Package main runs a small HTTP server instrumented with otxray.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/arloliu/otxray"
	otxgin "github.com/arloliu/otxray/gin"
	otxhttp "github.com/arloliu/otxray/http"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var errFailRoute = errors.New("requested failure")

func main() {
	cfg := newConfig()
	fs := flag.NewFlagSet("xray-example", flag.ExitOnError)
	cfg.bindFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}
	cfg.applyEnvOverrides()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}

	return zap.NewProduction()
}

func recorderConfig(cfg *Config) (*otxray.Config, error) {
	xcfg := otxray.DefaultConfig()
	if cfg.ConfigFile != "" {
		loaded, err := otxray.LoadConfig(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
		xcfg = loaded
	}
	if cfg.SegmentName != "" {
		xcfg.SegmentName = cfg.SegmentName
	}

	return xcfg, nil
}

func run(ctx context.Context, cfg *Config) error {
	zl, err := newLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()

	xcfg, err := recorderConfig(cfg)
	if err != nil {
		return err
	}

	opts := []otxray.Option{otxray.WithLogger(otxray.NewZapLogger(zl))}
	if cfg.Manual {
		opts = append(opts, otxray.WithManualMode())
	}

	rec, err := otxray.Setup(ctx, xcfg, opts...)
	if err != nil {
		return fmt.Errorf("setup recorder: %w", err)
	}
	defer func() {
		if err := rec.Shutdown(context.WithoutCancel(ctx)); err != nil {
			zl.Error("shutdown recorder", zap.Error(err))
		}
	}()

	var handler http.Handler
	switch cfg.Framework {
	case "http":
		handler = newHTTPHandler(rec)
	case "gin":
		handler = newGinHandler(rec)
	default:
		return fmt.Errorf("unknown framework %q", cfg.Framework)
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("listening", zap.String("addr", cfg.Addr), zap.String("framework", cfg.Framework))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func newHTTPHandler(rec *otxray.Recorder) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		if seg := otxhttp.SegmentFromRequest(r); seg != nil {
			_ = seg.AddAnnotation("hitController", true)
		}
		_, _ = w.Write([]byte("Hello World!"))
	})
	mux.HandleFunc("GET /fail", func(w http.ResponseWriter, r *http.Request) {
		_ = otxhttp.ReportError(r, errFailRoute)
		http.Error(w, errFailRoute.Error(), http.StatusInternalServerError)
	})

	return otxhttp.Register(rec, mux)
}

func newGinHandler(rec *otxray.Recorder) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), otxgin.Middleware(rec))
	r.GET("/", func(c *gin.Context) {
		if seg := otxgin.Segment(c); seg != nil {
			_ = seg.AddAnnotation("hitController", true)
		}
		c.String(http.StatusOK, "Hello World!")
	})
	r.GET("/fail", func(c *gin.Context) {
		_ = c.Error(errFailRoute)
		c.String(http.StatusInternalServerError, errFailRoute.Error())
	})

	return r
}
