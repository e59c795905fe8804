package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/tickfetch/tickfetch/packages/client"
	"github.com/tickfetch/tickfetch/packages/stats"
	"github.com/tickfetch/tickfetch/packages/targets"
)

var benchCmd = &cobra.Command{
	Use:   "bench [url]",
	Short: "Benchmark endpoints through the pooled client",
	Long: `Run a fixed-duration latency benchmark against one URL or a YAML
target list, pacing requests with a global rate limiter and reporting
latency percentiles from the recorded histogram.

Examples:
  # 30 seconds at 100 rps against one endpoint
  tickfetch bench https://api.example.com/v1/ticks -d 30s -r 100

  # Round-robin over a target list with 20 workers
  tickfetch bench --targets targets.yaml -d 1m -r 200 -c 20`,
	Args: cobra.MaximumNArgs(1),
	RunE: benchCommand,
}

var (
	benchDurationFlag    string
	benchRateFlag        float64
	benchConcurrencyFlag int
	benchTargetsFlag     string
)

func init() {
	benchCmd.Flags().StringVarP(&benchDurationFlag, "duration", "d", "10s", "Benchmark duration (e.g. 30s, 5m)")
	benchCmd.Flags().Float64VarP(&benchRateFlag, "rate", "r", 50, "Target requests per second")
	benchCmd.Flags().IntVarP(&benchConcurrencyFlag, "concurrency", "c", 10, "Number of concurrent workers")
	benchCmd.Flags().StringVar(&benchTargetsFlag, "targets", "", "YAML target list to benchmark")
}

func benchCommand(cmd *cobra.Command, args []string) error {
	list, err := benchTargets(args)
	if err != nil {
		return err
	}

	duration, err := time.ParseDuration(benchDurationFlag)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if benchRateFlag <= 0 {
		return fmt.Errorf("rate must be positive")
	}
	if benchConcurrencyFlag <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}

	cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	defer log.Sync()
	formatter := newFormatter(cfg)

	rec := stats.NewRecorder()
	c := client.New(clientOptions(cfg, rec, log)...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer c.Close(context.Background())

	runCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(benchRateFlag), benchConcurrencyFlag)
	var next atomic.Uint64

	var wg sync.WaitGroup
	for i := 0; i < benchConcurrencyFlag; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := limiter.Wait(runCtx); err != nil {
					return
				}
				t := list[next.Add(1)%uint64(len(list))]
				// Outcomes land in the recorder; individual errors
				// are expected under load and not printed.
				_, _ = sendTarget(runCtx, c, t)
			}
		}()
	}
	wg.Wait()

	formatter.FormatSummary(rec.Summary())
	if cfg.GetVerbose() {
		formatter.FormatPool(c.PoolStats())
	}
	return nil
}

func benchTargets(args []string) ([]targets.Target, error) {
	if benchTargetsFlag != "" {
		if len(args) > 0 {
			return nil, fmt.Errorf("give either a url or --targets, not both")
		}
		return targets.Load(benchTargetsFlag)
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("a url argument or --targets is required")
	}
	return []targets.Target{{Name: args[0], URL: args[0], Method: "GET"}}, nil
}
