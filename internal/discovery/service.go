package discovery

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/strefethen/cast-hub-go/internal/config"
)

// Service runs the configured discovery backend against one scanner.
// mDNS devices announce themselves, so that backend is a long-lived
// re-querying loop; SSDP is a periodic sweep driven by a cron entry.
type Service struct {
	cfg     config.Config
	scanner *Scanner
	cron    *cron.Cron
	cancel  context.CancelFunc
}

func NewService(cfg config.Config, scanner *Scanner) *Service {
	return &Service{cfg: cfg, scanner: scanner}
}

func (s *Service) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	interval := time.Duration(s.cfg.ScanIntervalMs) * time.Millisecond

	switch s.cfg.DiscoveryMode {
	case "mdns":
		go RunMDNS(ctx, s.scanner, interval)
	case "ssdp":
		timeout := time.Duration(s.cfg.SSDPTimeoutMs) * time.Millisecond
		go RunSSDP(ctx, s.scanner, timeout)
		s.cron = cron.New()
		_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
			RunSSDP(ctx, s.scanner, timeout)
		})
		if err != nil {
			cancel()
			return fmt.Errorf("scheduling ssdp rescan: %w", err)
		}
		s.cron.Start()
	default:
		cancel()
		return fmt.Errorf("unknown discovery mode %q", s.cfg.DiscoveryMode)
	}

	log.Printf("discovery started in %s mode", s.cfg.DiscoveryMode)
	return nil
}

func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.cron = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
