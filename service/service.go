package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-rerun/metrics"
)

// Config selects which HTTP endpoints run next to the rerun service.
type Config struct {
	// HealthzAddr is the health endpoint listen address; empty disables it.
	HealthzAddr string
	Metrics     opmetrics.CLIConfig
}

type Service struct {
	Config  Config
	Healthz *HealthzServer
	Metrics *MetricsServer
}

func New(cfg Config) *Service {
	s := &Service{
		Config:  cfg,
		Healthz: &HealthzServer{},
		Metrics: &MetricsServer{},
	}
	return s
}

func (s *Service) Start(ctx context.Context) {
	log.Info("service starting")

	if s.Config.HealthzAddr != "" {
		addr := s.Config.HealthzAddr
		log.Info("starting healthz server", "addr", addr)
		go func() {
			if err := s.Healthz.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("error starting healthz server", "err", err)
				metrics.RecordErrorDetails("healthz_server", err)
			}
		}()
	}

	if s.Config.Metrics.Enabled {
		addr := net.JoinHostPort(s.Config.Metrics.ListenAddr, strconv.Itoa(s.Config.Metrics.ListenPort))
		log.Info("starting metrics server", "addr", addr)
		go func() {
			if err := s.Metrics.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("error starting metrics server", "err", err)
				metrics.RecordErrorDetails("metrics_server", err)
			}
		}()
	}

	log.Info("service started")
}

func (s *Service) Shutdown() {
	log.Info("service shutting down")

	if s.Config.HealthzAddr != "" {
		_ = s.Healthz.Shutdown()
		log.Info("healthz stopped")
	}

	if s.Config.Metrics.Enabled {
		_ = s.Metrics.Shutdown()
		log.Info("metrics stopped")
	}

	log.Info("service stopped")
}
