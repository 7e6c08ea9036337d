// Command orchestratord runs the measurement-fabric orchestrator: it
// accepts peer connections and routes CALL/RESULT traffic between
// measurement and interface clients (spec.md §4).
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-envparse"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/allisontodd/shout/internal/config"
	"github.com/allisontodd/shout/internal/logging"
	"github.com/allisontodd/shout/internal/metrics"
	"github.com/allisontodd/shout/internal/orchestrator"
)

var opt struct {
	EnvFile string
	Help    bool
}

func init() {
	pflag.StringVarP(&opt.EnvFile, "env-file", "e", "", "Read configuration overrides from this env file")
	pflag.BoolVarP(&opt.Help, "help", "h", false, "Show this help text")
}

func main() {
	pflag.Parse()
	if opt.Help {
		fmt.Printf("usage: %s [options]\n\noptions:\n%s", os.Args[0], pflag.CommandLine.FlagUsages())
		os.Exit(0)
	}

	envs, err := loadEnv(opt.EnvFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(2)
	}

	var cfg config.OrchestratorConfig
	if err := config.Unmarshal(&cfg, envs); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: invalid configuration: %v\n", err)
		os.Exit(2)
	}

	log := logging.New(logging.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	var m *metrics.Orchestrator
	var srv *orchestrator.Server
	if cfg.MetricsAddr != "" {
		m = metrics.NewOrchestrator(func() float64 { return srv.CallMapLen() })
		reg := prometheus.NewRegistry()
		m.MustRegister(reg)
		srv = orchestrator.New(cfg, log, m)
		go serveMetrics(cfg.MetricsAddr, reg, log)
	} else {
		srv = orchestrator.New(cfg, log, nil)
	}

	go sweepLoop(srv, cfg.CallMapTTL, log)

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Addr).Msg("failed to listen")
	}
	log.Info().Str("addr", cfg.Addr).Msg("orchestrator listening")

	if err := srv.Serve(ln); err != nil {
		log.Fatal().Err(err).Msg("orchestrator exited")
	}
}

func loadEnv(path string) ([]string, error) {
	envs := append([]string(nil), os.Environ()...)
	if path == "" {
		return envs, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open env file: %w", err)
	}
	defer f.Close()

	parsed, err := envparse.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse env file: %w", err)
	}
	for k, v := range parsed {
		envs = append(envs, k+"="+v)
	}
	return envs, nil
}

func sweepLoop(srv *orchestrator.Server, ttl time.Duration, log zerolog.Logger) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for range ticker.C {
		if n := srv.SweepCallMap(); n > 0 {
			log.Debug().Int("dropped", n).Msg("swept abandoned call-map entries")
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.Info().Str("addr", addr).Msg("metrics listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("metrics server exited")
	}
}
