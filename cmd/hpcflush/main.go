// Command hpcflush forces immediate write-back of cached files from an HPC
// cache tier to its backing NAS storage.
//
// File paths are read from standard input, one per line, relative to the
// export:
//
//	find /mnt/cache/results -name '*.dat' | sed 's|^/mnt/cache||' | \
//	    hpcflush /1_1_1_0 cache01 --threads 8
//
// The exit code is non-zero when any file failed to flush.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/microsoft/hpc-cache-nfsv3-client/internal/logger"
	"github.com/microsoft/hpc-cache-nfsv3-client/pkg/config"
	"github.com/microsoft/hpc-cache-nfsv3-client/pkg/flushclient"
	"github.com/microsoft/hpc-cache-nfsv3-client/pkg/flusher"
	"github.com/microsoft/hpc-cache-nfsv3-client/pkg/metrics"
	prommetrics "github.com/microsoft/hpc-cache-nfsv3-client/pkg/metrics/prometheus"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath     string
		threads        int
		timeoutSeconds int
		syncMode       bool
		verbose        bool
		metricsListen  string
	)

	cmd := &cobra.Command{
		Use:     "hpcflush EXPORT SERVER",
		Short:   "Force write-back of cached files to backing storage",
		Long:    "Flushes files held dirty in an HPC cache tier to the backing NAS,\nspeaking NFSv3 directly to the cache mount address.\nPaths are read from standard input, one per line, relative to EXPORT.",
		Version: version,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			cfg.Server.Export = args[0]
			cfg.Server.Address = args[1]
			if cmd.Flags().Changed("threads") {
				cfg.Flush.Threads = threads
			}
			if cmd.Flags().Changed("timeout") {
				cfg.Flush.FileTimeout = time.Duration(timeoutSeconds) * time.Second
			}
			if cmd.Flags().Changed("sync") {
				cfg.Flush.Sync = syncMode
			}
			if verbose {
				cfg.Logging.Verbose = true
				cfg.Logging.Level = "DEBUG"
			}
			if cmd.Flags().Changed("metrics-listen") {
				cfg.Metrics.Enabled = true
				cfg.Metrics.Listen = metricsListen
			}

			if err := config.Validate(cfg); err != nil {
				return err
			}

			cmd.SilenceUsage = true
			return runFlush(cmd.Context(), cfg, os.Stdin)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path")
	cmd.Flags().IntVarP(&threads, "threads", "t", flusher.DefaultThreads, "number of flush workers")
	cmd.Flags().IntVar(&timeoutSeconds, "timeout", int(flusher.DefaultFileTimeout/time.Second), "per-file flush timeout in seconds")
	cmd.Flags().BoolVar(&syncMode, "sync", false, "block on each flush instead of trigger-and-poll")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log every flush recheck")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "expose Prometheus metrics on this address")

	cmd.SetContext(signalContext())
	cmd.AddCommand(newInitConfigCmd(), newExportsCmd(), newPathFromHandleCmd())
	return cmd
}

// signalContext cancels on SIGINT/SIGTERM so an interrupted run still
// reports the files it finished.
func signalContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx
}

func runFlush(ctx context.Context, cfg *config.Config, input *os.File) error {
	logger.SetLevel(cfg.Logging.Level)

	if cfg.Metrics.Enabled {
		metrics.Set(prommetrics.NewRPCMetrics())
		prommetrics.Serve(cfg.Metrics.Listen)
	}

	sessionCfg, err := cfg.SessionConfig()
	if err != nil {
		return err
	}
	session, err := flushclient.Connect(sessionCfg)
	if err != nil {
		return err
	}
	defer session.Close()

	logger.Info("Connected to %s export %s (threads=%d sync=%v timeout=%s)",
		cfg.Server.Address, cfg.Server.Export, cfg.Flush.Threads, cfg.Flush.Sync, cfg.Flush.FileTimeout)

	paths := make(chan string)
	go func() {
		defer close(paths)
		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			select {
			case paths <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			logger.Error("reading paths from stdin: %v", err)
		}
	}()

	start := time.Now()
	report := flusher.New(session, cfg.FlusherConfig()).Run(ctx, paths)

	counts := report.Counts()
	logger.Info("Done in %.2f sec: %d flushed, %d failed, %d unresolved, %d timed out",
		time.Since(start).Seconds(),
		counts[flusher.Flushed], counts[flusher.FlushFailed],
		counts[flusher.ResolutionFailed], counts[flusher.TimedOut])

	if errs := report.Errors(); errs > 0 {
		return fmt.Errorf("%d of %d files did not flush", errs, len(report.Results))
	}
	return nil
}

// newInitConfigCmd writes a sample configuration file.
func newInitConfigCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a sample configuration file with default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = config.GetDefaultConfigPath()
			}
			if err := config.WriteSample(path); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "output", "o", "", "destination path (default: user config dir)")
	return cmd
}

// newExportsCmd lists the exports a cache address advertises.
func newExportsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exports EXPORT SERVER",
		Short: "List the exports advertised by a cache address",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			session, err := flushclient.Connect(flushclient.Config{Export: args[0], Server: args[1]})
			if err != nil {
				return err
			}
			defer session.Close()

			entries, err := session.Exports()
			if err != nil {
				return err
			}
			for _, entry := range entries {
				if len(entry.Groups) == 0 {
					fmt.Println(entry.Dir)
					continue
				}
				fmt.Printf("%s %s\n", entry.Dir, strings.Join(entry.Groups, ","))
			}
			return nil
		},
	}
}

// newPathFromHandleCmd recovers a path for a raw file handle, for example
// one captured from a packet trace while debugging a stuck flush.
func newPathFromHandleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path-from-handle EXPORT SERVER HEXHANDLE",
		Short: "Resolve a hex-encoded NFSv3 file handle back to a path",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			fh, err := flushclient.ParseHandle(args[2])
			if err != nil {
				return err
			}

			session, err := flushclient.Connect(flushclient.Config{Export: args[0], Server: args[1]})
			if err != nil {
				return err
			}
			defer session.Close()

			path, err := session.PathFromHandle(fh)
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}
}
