// Overlay server: captures the resource bar, runs OCR, and serves readings over HTTP and WebSocket.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GriffinCanCode/resource-overlay/internal/config"
	"github.com/GriffinCanCode/resource-overlay/internal/grpcclient"
	"github.com/GriffinCanCode/resource-overlay/internal/grpcserver"
	"github.com/GriffinCanCode/resource-overlay/internal/ocr"
	"github.com/GriffinCanCode/resource-overlay/internal/orchestrator"
	screencap "github.com/GriffinCanCode/resource-overlay/internal/screen"
	"github.com/GriffinCanCode/resource-overlay/internal/server"
)

const shutdownTimeout = 5 * time.Second

func main() {
	healthcheck := flag.Bool("healthcheck", false, "probe the running server's gRPC health endpoint and exit")
	flag.Parse()

	cfg := config.Load()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if *healthcheck {
		os.Exit(probe(cfg))
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	engine, err := newEngine(cfg)
	if err != nil {
		slog.Error("failed to create OCR backend", "backend", cfg.OCRBackend, "error", err)
		os.Exit(1)
	}
	if c, ok := engine.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}

	capturer := screencap.New(screencap.Options{
		Display:    cfg.CaptureDisplay,
		CropHeight: cfg.CaptureCropHeight,
		Scale:      cfg.CaptureScale,
	})

	mgr, err := orchestrator.New(cfg, engine, capturer)
	if err != nil {
		slog.Error("failed to create orchestrator", "error", err)
		os.Exit(1)
	}
	srv := server.New(mgr, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var health *grpcserver.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			slog.Error("grpc listen failed", "addr", cfg.GRPCAddr, "error", err)
			os.Exit(1)
		}
		health = grpcserver.New()
		mgr.OnHealthChange(health.SetServing)
		go func() {
			if err := health.Serve(lis); err != nil {
				slog.Error("grpc server error", "error", err)
			}
		}()
	}

	if err := mgr.Start(ctx); err != nil {
		slog.Error("orchestrator error", "error", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		slog.Info("overlay server starting", "http", cfg.HTTPAddr, "grpc", cfg.GRPCAddr,
			"backend", cfg.OCRBackend, "policy", cfg.MatchPolicy, "rate", cfg.CaptureRate)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	srv.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	if health != nil {
		health.Stop(shutdownCtx)
	}
	mgr.Stop()
	slog.Info("shutdown complete")
}

func newEngine(cfg *config.Config) (ocr.Engine, error) {
	if cfg.OCRBackend == config.BackendTesseract {
		t, err := ocr.NewTesseractRecognizer()
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	return ocr.NewWorker(ocr.NewResolver(ocr.ResolverConfig{
		Mode:         ocr.ParseMode(cfg.AppEnv),
		BaseDir:      cfg.OCRBaseDir,
		EnginePath:   cfg.OCREnginePath,
		EngineScript: cfg.OCREngineScript,
	})), nil
}

// probe exits 0 when the ocr health service reports SERVING.
func probe(cfg *config.Config) int {
	if cfg.GRPCAddr == "" {
		slog.Error("healthcheck needs GRPC_ADDR")
		return 2
	}
	client, err := grpcclient.New(dialAddr(cfg.GRPCAddr))
	if err != nil {
		slog.Error("healthcheck failed", "error", err)
		return 1
	}
	defer func() { _ = client.Close() }()

	serving, err := client.Check(context.Background(), grpcserver.ServiceName)
	if err != nil {
		slog.Error("healthcheck failed", "error", err)
		return 1
	}
	if !serving {
		slog.Warn("ocr engine not serving")
		return 1
	}
	return 0
}

// dialAddr turns a listen address like ":50061" into something dialable.
func dialAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil || host != "" {
		return addr
	}
	return net.JoinHostPort("localhost", port)
}
