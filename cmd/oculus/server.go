package main

import (
	"errors"
	"maps"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/oculus/internal/config"
	"github.com/MrWong99/oculus/internal/health"
	"github.com/MrWong99/oculus/internal/observe"
)

// newServer builds the diagnostics server: Prometheus metrics plus the
// liveness and readiness checks, all behind the observe middleware.
func newServer(cfg config.ServerConfig, m *observe.Metrics, checkers []health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(checkers...).Register(mux)

	return &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           observe.Middleware(m)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// telemetryConfig describes this assistant in exported telemetry: the
// configured service name and build version, which providers and camera it
// runs, and the user's resource attributes on top.
func telemetryConfig(cfg *config.Config, version string) observe.ProviderConfig {
	attrs := map[string]string{
		"oculus.llm.provider":    cfg.Providers.LLM.Name,
		"oculus.llm.model":       cfg.Providers.LLM.Model,
		"oculus.stt.provider":    cfg.Providers.STT.Name,
		"oculus.tts.provider":    cfg.Providers.TTS.Name,
		"oculus.capture.backend": cfg.Capture.Backend,
	}
	maps.DeleteFunc(attrs, func(_, v string) bool { return v == "" })
	maps.Copy(attrs, cfg.Server.ResourceAttributes)
	return observe.ProviderConfig{
		ServiceName:    cfg.Server.ServiceName,
		ServiceVersion: version,
		Attributes:     attrs,
	}
}

// serve blocks until srv stops. A graceful Shutdown is not an error.
func serve(srv *http.Server, tls *config.TLSConfig) error {
	var err error
	if tls != nil {
		err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
	} else {
		err = srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
