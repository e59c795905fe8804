package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"

	"github.com/tickfetch/tickfetch/packages/client"
	"github.com/tickfetch/tickfetch/packages/pool"
	"github.com/tickfetch/tickfetch/packages/stats"
)

// ConsoleFormatter renders fetch results and bench summaries for humans.
type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

// FormatResponse prints one completed request.
func (f *ConsoleFormatter) FormatResponse(name string, resp *client.Response) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	symbol := green("✓")
	statusFn := green
	if !resp.OK() {
		symbol = red("✗")
		statusFn = red
	}

	fmt.Fprintf(f.writer, "%s %s %s %s %s\n",
		symbol, name,
		statusFn(resp.StatusText),
		cyan(fmt.Sprintf("(%dms)", resp.Elapsed.Milliseconds())),
		fmt.Sprintf("%d bytes", len(resp.Data)))

	if resp.Attempts > 1 {
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Fprintf(f.writer, "  %s\n", yellow(fmt.Sprintf("succeeded on attempt %d", resp.Attempts)))
	}

	if f.verbose {
		for _, h := range resp.Headers {
			fmt.Fprintf(f.writer, "  %s: %s\n", h.Name, h.Value)
		}
	}
}

// FormatError prints one failed request.
func (f *ConsoleFormatter) FormatError(name string, err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s %s\n", red("✗"), name, red(err.Error()))
}

// FormatExtract prints an extracted JSON field.
func (f *ConsoleFormatter) FormatExtract(path, value string) {
	cyan := color.New(color.FgCyan).SprintFunc()
	fmt.Fprintf(f.writer, "  %s = %s\n", cyan(path), value)
}

// FormatBody prints the response body verbatim.
func (f *ConsoleFormatter) FormatBody(data []byte) {
	f.writer.Write(data)
	if len(data) > 0 && data[len(data)-1] != '\n' {
		fmt.Fprintln(f.writer)
	}
}

// FormatSummary prints a bench run's aggregated metrics.
func (f *ConsoleFormatter) FormatSummary(s *stats.Summary) {
	bold := color.New(color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Fprintf(f.writer, "\n%s\n", bold("Summary"))
	fmt.Fprintf(f.writer, "  requests:  %d in %s (%.1f rps)\n", s.Total, s.Duration.Round(time.Millisecond), s.RPS)
	fmt.Fprintf(f.writer, "  success:   %s", green(fmt.Sprintf("%d (%.1f%%)", s.Success, s.SuccessRate*100)))
	if s.Failures > 0 {
		fmt.Fprintf(f.writer, "   failed: %s", red(fmt.Sprintf("%d", s.Failures)))
	}
	if s.Timeouts > 0 {
		fmt.Fprintf(f.writer, "   timeouts: %s", red(fmt.Sprintf("%d", s.Timeouts)))
	}
	if s.Retries > 0 {
		fmt.Fprintf(f.writer, "   retries: %d", s.Retries)
	}
	fmt.Fprintf(f.writer, "\n")
	fmt.Fprintf(f.writer, "  latency:   p50=%s p95=%s p99=%s max=%s\n",
		s.P50.Round(time.Microsecond), s.P95.Round(time.Microsecond), s.P99.Round(time.Microsecond), s.Max.Round(time.Microsecond))

	if f.verbose && len(s.Hosts) > 0 {
		fmt.Fprintf(f.writer, "\n%s\n", bold("Per host"))
		names := make([]string, 0, len(s.Hosts))
		for name := range s.Hosts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			h := s.Hosts[name]
			fmt.Fprintf(f.writer, "  %s: %d ok / %d total, p95=%s\n",
				name, h.Success, h.Total, h.P95.Round(time.Microsecond))
		}
	}
}

// FormatPool prints a snapshot of connection pool occupancy.
func (f *ConsoleFormatter) FormatPool(ps pool.Stats) {
	fmt.Fprintf(f.writer, "  pool: %d idle, %d in use, %d waiting\n", ps.Idle, ps.InUse, ps.Waiting)
}
