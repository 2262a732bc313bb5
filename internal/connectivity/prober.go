package connectivity

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	defaultProbeInterval = 5 * time.Second
	defaultProbeTimeout  = 2 * time.Second
)

// Prober периодически проверяет доступность URL и выставляет Monitor.
type Prober struct {
	monitor  *Monitor
	client   *http.Client
	target   string
	interval time.Duration
	logger   *log.Entry
}

// NewProber создаёт Prober. interval <= 0 — значение по умолчанию.
func NewProber(monitor *Monitor, target string, interval time.Duration, client *http.Client, logger *log.Entry) *Prober {
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	if client == nil {
		client = &http.Client{Timeout: defaultProbeTimeout}
	}
	if logger == nil {
		logger = log.WithField("component", "connectivity-prober")
	}
	return &Prober{
		monitor:  monitor,
		client:   client,
		target:   target,
		interval: interval,
		logger:   logger,
	}
}

// Run проверяет связность до отмены ctx.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.ProbeOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProbeOnce(ctx)
		}
	}
}

// ProbeOnce выполняет одну проверку: любой HTTP-ответ означает online.
func (p *Prober) ProbeOnce(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.target, nil)
	if err != nil {
		p.logger.WithError(err).Warn("build probe request")
		return p.monitor.Online()
	}

	online := true
	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return p.monitor.Online()
		}
		online = false
		p.logger.WithError(err).Debug("probe failed")
	} else {
		_ = resp.Body.Close()
	}

	p.monitor.Set(online)
	return online
}
