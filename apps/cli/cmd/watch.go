package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/tickfetch/tickfetch/packages/client"
	"github.com/tickfetch/tickfetch/packages/targets"
)

var watchCmd = &cobra.Command{
	Use:   "watch <targets.yaml>",
	Short: "Re-probe targets whenever their definition file changes",
	Long: `Probe every target in a YAML list, then watch the file and re-run
the probes on each change. Useful while iterating on endpoint
definitions.`,
	Args: cobra.ExactArgs(1),
	RunE: watchCommand,
}

func watchCommand(cmd *cobra.Command, args []string) error {
	path := args[0]

	cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	defer log.Sync()
	formatter := newFormatter(cfg)

	c := client.New(clientOptions(cfg, nil, log)...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer c.Close(context.Background())

	runAll := func() {
		list, err := targets.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return
		}
		for _, t := range list {
			resp, err := sendTarget(ctx, c, t)
			if err != nil {
				formatter.FormatError(t.Name, err)
				continue
			}
			formatter.FormatResponse(t.Name, resp)
			if t.Extract != "" {
				formatter.FormatExtract(t.Extract, resp.Field(t.Extract).String())
			}
		}
	}

	runAll()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory rather than the file: editors often replace
	// the file on save, which drops a watch held on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "watching %s\n", path)

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Editors save in bursts; let the writes settle and drain
			// the queued events before re-running.
			time.Sleep(100 * time.Millisecond)
			drainEvents(watcher)
			fmt.Fprintf(os.Stderr, "\n%s changed\n", path)
			runAll()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
		}
	}
}

func drainEvents(watcher *fsnotify.Watcher) {
	for {
		select {
		case <-watcher.Events:
		default:
			return
		}
	}
}
