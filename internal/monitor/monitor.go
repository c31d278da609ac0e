// Package monitor periodically queries a set of game servers and records
// their state, deduplicating unchanged observations.
package monitor

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/qsrv/sourceq/internal/config"
	"github.com/qsrv/sourceq/internal/geoip"
	"github.com/qsrv/sourceq/internal/models"
	"github.com/qsrv/sourceq/internal/storage"
	"github.com/qsrv/sourceq/pkg/a2s"
)

// Target identifies one game server to query.
type Target struct {
	Host string
	Port int
}

func (t Target) String() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// ParseTargets converts HOST[:PORT] command line arguments into targets,
// applying the default query port when none is given.
func ParseTargets(args []string) ([]Target, error) {
	targets := make([]Target, 0, len(args))

	for _, arg := range args {
		host, portStr, err := net.SplitHostPort(arg)
		if err != nil {
			// Bare host, use the default port
			targets = append(targets, Target{Host: arg, Port: config.DefaultQueryPort})
			continue
		}

		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid port in %q", arg)
		}

		targets = append(targets, Target{Host: host, Port: port})
	}

	return targets, nil
}

// NewClient creates an A2S client for a target configured from the query options.
func NewClient(q config.Query, t Target) (*a2s.Client, error) {
	client, err := a2s.New(t.Host, t.Port)
	if err != nil {
		return nil, err
	}

	client.Timeout = q.Timeout
	client.BufferSize = q.BufferSize
	client.Retries = q.Retries

	enc, err := a2s.ResolveEncoding(q.Encoding)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	client.Encoding = enc

	return client, nil
}

// Monitor drives the periodic query loop over a fixed set of targets.
type Monitor struct {
	store   *storage.Repository
	geo     *geoip.Provider
	limiter *rate.Limiter
	seen    map[Target]uint64
	targets []Target
	query   config.Query
	workers int
	mu      sync.Mutex
}

// New creates a Monitor. Store and geo may be nil, disabling persistence
// and country lookup respectively.
func New(targets []Target, cfg *config.Config, store *storage.Repository, geo *geoip.Provider) *Monitor {
	workers := cfg.Watch.Workers
	if workers < 1 {
		workers = 1
	}

	return &Monitor{
		store:   store,
		geo:     geo,
		limiter: rate.NewLimiter(rate.Limit(cfg.Watch.Rate), cfg.Watch.Burst),
		seen:    make(map[Target]uint64, len(targets)),
		targets: targets,
		query:   cfg.Query,
		workers: workers,
	}
}

// Run sweeps all targets immediately and then on every interval tick until
// the context is cancelled.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	log.Info().
		Int("targets", len(m.targets)).
		Dur("interval", interval).
		Msg("Starting watch loop")

	m.sweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Watch loop stopped")
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

// sweep queries every target once using the worker pool.
func (m *Monitor) sweep(ctx context.Context) {
	jobs := make(chan Target, len(m.targets))
	var wg sync.WaitGroup

	for i := 0; i < m.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for target := range jobs {
				m.queryTarget(ctx, target)
			}
		}()
	}

	for _, t := range m.targets {
		jobs <- t
	}
	close(jobs)

	wg.Wait()
}

// queryTarget performs one rate-limited A2S_INFO query against a target and
// persists the result when it differs from the previous observation.
func (m *Monitor) queryTarget(ctx context.Context, target Target) {
	logCtx := log.With().Str("server", target.String()).Logger()

	if err := m.limiter.Wait(ctx); err != nil {
		return // context cancelled
	}

	client, err := NewClient(m.query, target)
	if err != nil {
		logCtx.Error().Err(err).Msg("Failed to create client")
		return
	}
	defer func() { _ = client.Close() }()

	info, err := client.GetInfo()
	if err != nil {
		logCtx.Debug().Err(err).Msg("Server query failed")
		return
	}

	snapshot := models.FromInfo(target.Host, target.Port, info)
	if m.geo != nil {
		snapshot.CountryCode = m.geo.CountryCode(target.Host)
	}

	logCtx.Debug().
		Str("name", snapshot.ServerName).
		Str("map", snapshot.MapName).
		Uint8("players", snapshot.Players).
		Int64("ping_ms", snapshot.PingMs).
		Msg("Server state")

	if m.store == nil {
		return
	}

	hash := snapshotHash(snapshot)

	m.mu.Lock()
	unchanged := m.seen[target] == hash
	m.seen[target] = hash
	m.mu.Unlock()

	if unchanged {
		logCtx.Trace().Msg("State unchanged, snapshot skipped")
		return
	}

	if err := m.store.InsertSnapshot(snapshot); err != nil {
		logCtx.Error().Err(err).Msg("Failed to save snapshot")
	}
}
