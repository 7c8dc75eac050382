package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"

	"portal/internal/gateway"
	"portal/internal/obs"
	"portal/internal/ops"
	"portal/internal/store"
	"portal/pkg/conn"
)

func main() {
	if err := run(); err != nil {
		log.Printf("gatewayd: %v", err)
		os.Exit(1)
	}
}

func run() error {
	configFlag := flag.String("config", "", "path to the JSON config file")
	flag.Parse()

	cfg, err := ops.Load(strings.TrimSpace(*configFlag))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Profiling.Address != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: cfg.Profiling.ApplicationName,
			ServerAddress:   cfg.Profiling.Address,
			Logger:          emptyLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
				pyroscope.ProfileGoroutines,
			},
		})
		if err != nil {
			return err
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	metrics := obs.NewMetrics()
	opts := []gateway.Option{
		gateway.WithMetrics(metrics),
		gateway.WithHandler(gateway.HandlerFunc(logDispatch)),
	}

	if cfg.Postgres != nil {
		pg, err := conn.New(*cfg.Postgres)
		if err != nil {
			return err
		}
		defer pg.Close()

		sessions, err := store.NewSessions(pg.DB(), cfg.SessionName)
		if err != nil {
			return err
		}
		if err := sessions.Migrate(ctx); err != nil {
			return err
		}
		opts = append(opts, gateway.WithStore(sessions))
		logs.Infof("gatewayd: session checkpoints in %s", cfg.Postgres.DSN())
	}

	client, err := gateway.NewClient(cfg.Gateway, opts...)
	if err != nil {
		return err
	}

	if cfg.StatsInterval > 0 {
		go reportStats(ctx, metrics, cfg.StatsInterval)
	}

	logs.Infof("gatewayd: starting")
	if err := client.Run(ctx); err != nil {
		return err
	}
	logs.Infof("gatewayd: stopped")
	return nil
}

func logDispatch(_ context.Context, d gateway.Dispatch) {
	logs.Debugf("gatewayd: dispatch %s seq=%d size=%d", d.Type, d.Seq, len(d.Data))
}

func reportStats(ctx context.Context, metrics *obs.Metrics, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := metrics.Snapshot()
			hb := snap.HeartbeatLatency
			logs.Infof("gatewayd: stats connects=%d ready=%d resumed=%d reconnects=%d zombies=%d dispatches=%d drops=%d hb_rtt avg=%s max=%s",
				snap.Get(obs.CounterConnects),
				snap.Get(obs.CounterReady),
				snap.Get(obs.CounterResumed),
				snap.Get(obs.CounterReconnects),
				snap.Get(obs.CounterZombies),
				snap.Get(obs.CounterDispatches),
				snap.Get(obs.CounterDispatchDrops),
				hb.Avg,
				hb.Max,
			)
		}
	}
}

type emptyLogger struct{}

func (emptyLogger) Infof(_ string, _ ...interface{})  {}
func (emptyLogger) Debugf(_ string, _ ...interface{}) {}
func (emptyLogger) Errorf(_ string, _ ...interface{}) {}
