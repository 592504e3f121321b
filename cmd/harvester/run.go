package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Sternrassler/listing-harvester/internal/config"
	"github.com/Sternrassler/listing-harvester/pkg/client"
	"github.com/Sternrassler/listing-harvester/pkg/export"
	"github.com/Sternrassler/listing-harvester/pkg/logging"
	"github.com/Sternrassler/listing-harvester/pkg/metrics"
	"github.com/Sternrassler/listing-harvester/pkg/pagination"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// exportTimeout bounds the export after the run. The export runs even when
// the run itself was interrupted.
const exportTimeout = 2 * time.Minute

func newRunCmd() *cobra.Command {
	var (
		configPath string
		fv         = config.Default()
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Harvest the listing and export the records",
		Example: `  harvester run --endpoint https://example.com/api/items/searchItem/ --auth-token 00028c2d
  harvester run --config configs/harvester.yaml --concurrency 20 --sqlite-path harvest.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd, &cfg, fv)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return runHarvest(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "YAML config file")

	f.StringVar(&fv.Endpoint, "endpoint", "", "listing endpoint URL")
	f.StringVar(&fv.UserAgent, "user-agent", fv.UserAgent, "User-Agent header")
	f.StringVar(&fv.BearerToken, "bearer-token", "", "token for the Authorization header (sends \"null\" when empty)")
	f.StringVar(&fv.AuthToken, "auth-token", "", "token for the X-Authorization header")
	f.StringVar(&fv.Origin, "origin", "", "Origin header")
	f.StringVar(&fv.Referer, "referer", "", "Referer header")
	f.StringToStringVar(&fv.Headers, "header", nil, "extra request header as name=value (repeatable)")

	f.IntVar(&fv.Concurrency, "concurrency", fv.Concurrency, "maximum in-flight page fetches in the primary pass")
	f.IntVar(&fv.RetryConcurrency, "retry-concurrency", fv.RetryConcurrency, "maximum in-flight page fetches in the retry pass")
	f.DurationVar(&fv.RequestTimeout, "request-timeout", fv.RequestTimeout, "timeout of a single page request")
	f.DurationVar(&fv.RunTimeout, "run-timeout", 0, "timeout of the whole run (0 = none)")
	f.IntVar(&fv.MaxConnsPerHost, "max-conns-per-host", 0, "HTTP connection pool size (0 = concurrency)")

	f.StringVar(&fv.LogLevel, "log-level", fv.LogLevel, "log level (debug, info, warn, error)")
	f.BoolVar(&fv.LogPretty, "log-pretty", false, "human-readable log output")

	f.StringVar(&fv.Output.Dir, "output-dir", fv.Output.Dir, "JSONL output directory (empty disables)")
	f.StringVar(&fv.Output.Prefix, "output-prefix", fv.Output.Prefix, "JSONL file name prefix")
	f.StringVar(&fv.Redis.Addr, "redis-addr", "", "Redis address for export (empty disables)")
	f.StringVar(&fv.Redis.Password, "redis-password", "", "Redis password")
	f.IntVar(&fv.Redis.DB, "redis-db", 0, "Redis database")
	f.DurationVar(&fv.Redis.TTL, "redis-ttl", 0, "expiry of exported Redis keys (0 = none)")
	f.StringVar(&fv.SQLite.Path, "sqlite-path", "", "SQLite database for export (empty disables)")
	f.StringVar(&fv.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

// applyFlags copies the flags set on the command line over cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config, fv config.Config) {
	changed := cmd.Flags().Changed

	overrides := []struct {
		flag  string
		apply func()
	}{
		{"endpoint", func() { cfg.Endpoint = fv.Endpoint }},
		{"user-agent", func() { cfg.UserAgent = fv.UserAgent }},
		{"bearer-token", func() { cfg.BearerToken = fv.BearerToken }},
		{"auth-token", func() { cfg.AuthToken = fv.AuthToken }},
		{"origin", func() { cfg.Origin = fv.Origin }},
		{"referer", func() { cfg.Referer = fv.Referer }},
		{"header", func() {
			headers := make(map[string]string, len(cfg.Headers)+len(fv.Headers))
			for k, v := range cfg.Headers {
				headers[k] = v
			}
			for k, v := range fv.Headers {
				headers[k] = v
			}
			cfg.Headers = headers
		}},
		{"concurrency", func() { cfg.Concurrency = fv.Concurrency }},
		{"retry-concurrency", func() { cfg.RetryConcurrency = fv.RetryConcurrency }},
		{"request-timeout", func() { cfg.RequestTimeout = fv.RequestTimeout }},
		{"run-timeout", func() { cfg.RunTimeout = fv.RunTimeout }},
		{"max-conns-per-host", func() { cfg.MaxConnsPerHost = fv.MaxConnsPerHost }},
		{"log-level", func() { cfg.LogLevel = fv.LogLevel }},
		{"log-pretty", func() { cfg.LogPretty = fv.LogPretty }},
		{"output-dir", func() { cfg.Output.Dir = fv.Output.Dir }},
		{"output-prefix", func() { cfg.Output.Prefix = fv.Output.Prefix }},
		{"redis-addr", func() { cfg.Redis.Addr = fv.Redis.Addr }},
		{"redis-password", func() { cfg.Redis.Password = fv.Redis.Password }},
		{"redis-db", func() { cfg.Redis.DB = fv.Redis.DB }},
		{"redis-ttl", func() { cfg.Redis.TTL = fv.Redis.TTL }},
		{"sqlite-path", func() { cfg.SQLite.Path = fv.SQLite.Path }},
		{"metrics-addr", func() { cfg.MetricsAddr = fv.MetricsAddr }},
	}

	for _, o := range overrides {
		if changed(o.flag) {
			o.apply()
		}
	}
}

// runHarvest runs one harvest and exports the result. Aborted runs export
// nothing; interrupted runs export what they collected as partial.
func runHarvest(ctx context.Context, cfg config.Config, out io.Writer) error {
	logging.Setup(cfg.LoggingConfig())
	logger := logging.NewLogger("cli")

	if cfg.MetricsAddr != "" {
		srv, err := metrics.Listen(cfg.MetricsAddr)
		if err != nil {
			return err
		}
		metricsCtx, stopMetrics := context.WithCancel(context.Background())
		defer stopMetrics()
		go func() {
			if err := srv.Serve(metricsCtx); err != nil {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	lc, err := client.New(cfg.ClientConfig())
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer lc.Close()

	sinks, closeSinks, err := buildSinks(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSinks()
	logSinks(logger, sinks)

	h, err := pagination.New(lc, cfg.HarvesterConfig(), logging.NewLogger("harvester"))
	if err != nil {
		return fmt.Errorf("create harvester: %w", err)
	}

	res, runErr := h.Harvest(ctx)
	printSummary(out, res)

	if runErr != nil && !errors.Is(runErr, pagination.ErrInterrupted) {
		return runErr
	}

	if res.RecordCount() == 0 {
		fmt.Fprintln(out, "No data was harvested; nothing exported.")
		return runErr
	}

	if len(sinks) == 0 {
		logger.Warn().Int("records", res.RecordCount()).Msg("No export sinks configured - records discarded")
		return runErr
	}

	exportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), exportTimeout)
	defer cancel()

	batch := export.FromResult(res, cfg.Endpoint)
	if err := sinks.Export(exportCtx, batch); err != nil {
		return errors.Join(runErr, fmt.Errorf("export: %w", err))
	}
	printExports(out, sinks, batch)

	return runErr
}

// buildSinks opens every configured export target. The returned func closes
// them.
func buildSinks(ctx context.Context, cfg config.Config) (export.Multi, func(), error) {
	var (
		sinks   export.Multi
		closers []func() error
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.Output.Dir != "" {
		s, err := export.NewJSONLSink(cfg.Output.Dir, cfg.Output.Prefix)
		if err != nil {
			return nil, closeAll, err
		}
		sinks = append(sinks, s)
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, rdb.Close)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		sinks = append(sinks, export.NewRedisSink(rdb, cfg.Output.Prefix, cfg.Redis.TTL))
	}

	if cfg.SQLite.Path != "" {
		s, err := export.OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		closers = append(closers, s.Close)
		sinks = append(sinks, s)
	}

	return sinks, closeAll, nil
}

// logSinks lists the configured sinks at debug level.
func logSinks(logger zerolog.Logger, sinks export.Multi) {
	names := make([]string, len(sinks))
	for i, s := range sinks {
		names[i] = s.Name()
	}
	logger.Debug().Strs("sinks", names).Msg("Export sinks configured")
}
