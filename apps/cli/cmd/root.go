package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tickfetch/tickfetch/packages/client"
	"github.com/tickfetch/tickfetch/packages/core/config"
	"github.com/tickfetch/tickfetch/packages/output"
	"github.com/tickfetch/tickfetch/packages/stats"
	"github.com/tickfetch/tickfetch/packages/targets"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	configFlag  string
	verboseFlag bool
	noColorFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "tickfetch",
	Short: "Probe market-data HTTP endpoints over a pooled client",
	Long: `tickfetch fetches market and reference data over HTTP using a
connection-pooled, retrying client. It can probe single endpoints,
benchmark them under sustained load, and archive the exchanges for
later inspection.`,
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to a tickfetch config file")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Verbose output and debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadCLIConfig loads the config file and applies the global flags on top.
func loadCLIConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configFlag)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verboseFlag {
		cfg.Verbose = config.BoolPtr(true)
	}
	if noColorFlag {
		cfg.NoColor = config.BoolPtr(true)
	}
	return cfg, nil
}

// newLogger builds the structured log sink for the client. Quiet runs
// discard everything; --verbose gets a development console logger.
func newLogger(cfg *config.Config) *zap.Logger {
	if !cfg.GetVerbose() {
		return zap.NewNop()
	}
	logCfg := zap.NewDevelopmentConfig()
	log, err := logCfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func newFormatter(cfg *config.Config) *output.ConsoleFormatter {
	return output.NewConsoleFormatter(
		output.WithVerbose(cfg.GetVerbose()),
		output.WithNoColor(cfg.GetNoColor()),
	)
}

// clientOptions translates file configuration into client options. The
// recorder is optional.
func clientOptions(cfg *config.Config, rec *stats.Recorder, log *zap.Logger) []client.Option {
	opts := []client.Option{
		client.WithLogger(log),
		client.WithRetries(cfg.GetRetries()),
	}
	if rec != nil {
		opts = append(opts, client.WithStats(rec))
	}
	if d := cfg.RequestTimeout(); d > 0 {
		opts = append(opts, client.WithRequestTimeout(d))
	}
	if cfg.MaxPerHost > 0 {
		opts = append(opts, client.WithMaxPerHost(cfg.MaxPerHost))
	}
	if cfg.MaxTotal > 0 {
		opts = append(opts, client.WithMaxTotal(cfg.MaxTotal))
	}
	if d := cfg.IdleTimeoutDuration(); d > 0 {
		opts = append(opts, client.WithIdleTimeout(d))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, client.WithUserAgent(cfg.UserAgent))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, client.WithDefaultHeaders(cfg.Headers))
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, client.WithRateLimit(cfg.RateLimit, cfg.RateBurst))
	}
	if cfg.GetInsecure() {
		opts = append(opts, client.WithInsecureTLS())
	}
	return opts
}

// sendTarget turns one target definition into a request and sends it.
func sendTarget(ctx context.Context, c *client.Client, t targets.Target) (*client.Response, error) {
	reqOpts := []client.RequestOption{}
	if len(t.Headers) > 0 {
		reqOpts = append(reqOpts, client.WithHeaders(t.Headers))
	}
	if t.Timeout > 0 {
		reqOpts = append(reqOpts, client.WithTimeout(t.Timeout.Std()))
	}
	if t.Idempotent {
		reqOpts = append(reqOpts, client.WithIdempotent())
	}

	var body []byte
	if t.Body != "" {
		body = []byte(t.Body)
	}
	return c.Send(ctx, client.NewRequest(t.Method, t.URL, body, reqOpts...))
}

// parseHeaderFlags parses repeated "Name: value" flags.
func parseHeaderFlags(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q, expected \"Name: value\"", h)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}
