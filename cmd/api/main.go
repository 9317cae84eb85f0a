package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/faceauth/internal/api"
	"github.com/your-org/faceauth/internal/api/handlers"
	"github.com/your-org/faceauth/internal/api/ws"
	"github.com/your-org/faceauth/internal/config"
	"github.com/your-org/faceauth/internal/face"
	"github.com/your-org/faceauth/internal/observability"
	"github.com/your-org/faceauth/internal/queue"
	"github.com/your-org/faceauth/internal/recognizer"
	"github.com/your-org/faceauth/internal/storage"
	"github.com/your-org/faceauth/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting faceauth API service",
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Backend,
		"blob", cfg.Blob.Backend,
	)

	// Metadata store
	var store storage.Store
	switch cfg.Storage.Backend {
	case "postgres":
		db, err := storage.NewPostgresStore(cfg.Database)
		if err != nil {
			slog.Error("connect to postgres", "error", err)
			os.Exit(1)
		}
		store = db
	case "snapshot":
		snap, err := storage.NewSnapshotStore(cfg.Storage.SnapshotPath)
		if err != nil {
			slog.Error("open snapshot store", "error", err)
			os.Exit(1)
		}
		store = snap
	default:
		slog.Error("unknown storage backend", "backend", cfg.Storage.Backend)
		os.Exit(1)
	}
	defer store.Close()

	// Crop blob store
	var blobs storage.BlobStore
	switch cfg.Blob.Backend {
	case "minio":
		m, err := storage.NewMinIOBlobStore(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		if err := m.EnsureBucket(context.Background()); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
		blobs = m
	case "fs":
		fsb, err := storage.NewFSBlobStore(cfg.Blob.DataDir)
		if err != nil {
			slog.Error("open blob directory", "error", err)
			os.Exit(1)
		}
		blobs = fsb
	default:
		slog.Error("unknown blob backend", "backend", cfg.Blob.Backend)
		os.Exit(1)
	}

	templates := storage.NewTemplateStore(store, blobs)

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	sinks := []face.EventSink{hub}
	checks := map[string]handlers.Pinger{}

	// NATS is optional: with no URL configured events stay in-process.
	if cfg.NATS.URL != "" {
		producer, err := queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		if err := producer.EnsureStream(context.Background()); err != nil {
			slog.Warn("ensure nats stream", "error", err)
		}
		sinks = append(sinks, producer)
		checks["nats"] = producer
	}

	// Face detector
	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("onnx runtime init failed", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	det, err := vision.NewDetector(
		filepath.Join(cfg.Vision.ModelsDir, "det_10g.onnx"),
		float32(cfg.Vision.DetectionThreshold),
	)
	if err != nil {
		slog.Error("load face detector", "error", err)
		os.Exit(1)
	}
	defer det.Close()

	rec := recognizer.NewAdapter(cfg.Recognizer.ModelPath)
	svc := face.NewService(store, templates, vision.NewDetectorLocator(det), rec,
		cfg.Recognizer.MatchThreshold, sinks...)

	// Warm the classifier so the first /auth doesn't pay for a retrain.
	if err := svc.EnsureModel(context.Background()); err != nil {
		slog.Warn("warm classifier load", "error", err)
	}

	router := api.NewRouter(api.RouterConfig{
		APIKey:  cfg.Server.APIKey,
		Service: svc,
		Store:   store,
		Blobs:   blobs,
		Hub:     hub,
		Checks:  checks,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}

// getONNXLibPath returns the ONNX Runtime shared library path.
func getONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
