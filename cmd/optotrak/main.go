// Command optotrak receives three-marker poses from an Optotrak host over
// UDP and serves them over HTTP and a gRPC stream.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/optotrak/internal/api"
	"github.com/banshee-data/optotrak/internal/config"
	"github.com/banshee-data/optotrak/internal/monitoring"
	"github.com/banshee-data/optotrak/internal/pose"
	"github.com/banshee-data/optotrak/internal/posestream"
	"github.com/banshee-data/optotrak/internal/rigdb"
	"github.com/banshee-data/optotrak/internal/tracker"
	"github.com/banshee-data/optotrak/internal/version"
)

const shutdownTimeout = 5 * time.Second

type options struct {
	configPath  string
	rig         string
	mode        string
	port        int
	replay      string
	httpListen  string
	grpcListen  string
	showVersion bool
}

func parseFlags(args []string, stderr io.Writer) (options, *flag.FlagSet, error) {
	var o options
	fs := flag.NewFlagSet("optotrak", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "Path to a JSON or YAML config file")
	fs.StringVar(&o.rig, "rig", "", "Load the named rig profile from the database")
	fs.StringVar(&o.mode, "mode", "", "Input mode: live, simulated or replay")
	fs.IntVar(&o.port, "port", 0, "UDP port to listen on")
	fs.StringVar(&o.replay, "replay", "", "pcap file to replay (implies -mode replay)")
	fs.StringVar(&o.httpListen, "listen", "", "HTTP listen address")
	fs.StringVar(&o.grpcListen, "grpc-listen", "", "gRPC pose stream listen address")
	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return o, fs, err
	}
	return o, fs, nil
}

// apply overlays the flags that were set explicitly.
func (o options) apply(fs *flag.FlagSet, cfg *config.Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			cfg.Mode = o.mode
		case "port":
			cfg.UDP.Port = o.port
		case "replay":
			cfg.Replay.File = o.replay
			cfg.Mode = tracker.ModeReplay.String()
		case "listen":
			cfg.HTTP.Listen = o.httpListen
		case "grpc-listen":
			cfg.GRPC.Listen = o.grpcListen
		}
	})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "optotrak: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, fs, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Fprintln(stdout, version.String())
		return nil
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	closer, err := monitoring.Setup(monitoring.Options{
		Level:       cfg.Log.Level,
		Console:     stderr,
		GraylogAddr: cfg.Log.Graylog,
	})
	if err != nil {
		return err
	}
	defer closer.Close()
	log := monitoring.Component("main")
	log.Info().Str("version", version.Version).Str("sha", version.GitSHA).Msg("starting optotrak")

	var rigs *rigdb.DB
	if cfg.DB.Path != "" {
		rigs, err = rigdb.Open(cfg.DB.Path)
		if err != nil {
			return fmt.Errorf("failed to open rig database: %w", err)
		}
		defer rigs.Close()
	}

	rigName := cfg.Rig
	if opts.rig != "" {
		rigName = opts.rig
	}
	if rigName != "" {
		if rigs == nil {
			return fmt.Errorf("rig %q requested but db.path is empty", rigName)
		}
		profile, err := rigs.GetRigConfigByName(rigName)
		if err != nil {
			return fmt.Errorf("failed to load rig %q: %w", rigName, err)
		}
		if profile == nil {
			return fmt.Errorf("rig %q: %w", rigName, rigdb.ErrNotFound)
		}
		cfg.ApplyRig(profile)
		log.Info().Str("rig", profile.Name).Int("port", profile.UDPPort).Msg("applied rig profile")
	}

	// Flags beat both the file and the rig profile.
	opts.apply(fs, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	tcfg, err := cfg.Tracker()
	if err != nil {
		return err
	}

	t := tracker.New(tcfg,
		tracker.WithStatusHandler(func(ev tracker.StatusEvent) {
			e := log.Info()
			if ev.Err != nil {
				e = log.Warn().Err(ev.Err)
			}
			e.Str("state", ev.State.String()).Int("attempt", ev.Attempt).Msg("tracker status")
		}),
		tracker.WithFirstDataHandler(func(s pose.Snapshot) {
			log.Info().Uint64("seq", s.Seq).Msg("first marker data received")
		}),
	)
	if err := t.Start(ctx); err != nil {
		return err
	}
	defer t.Stop()

	var httpServer *http.Server
	if cfg.HTTP.Listen != "" {
		var store api.RigStore
		if rigs != nil {
			store = rigs
		}
		srv := api.NewServer(t, store)
		mux := srv.ServeMux()
		debug := tsweb.Debugger(mux)
		debug.KV("Version", version.String())
		srv.AttachDebugRoutes(debug)
		if rigs != nil {
			if err := rigs.AttachAdminRoutes(debug); err != nil {
				return err
			}
		}
		httpServer = &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           api.LoggingMiddleware(mux),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	var (
		stream    *posestream.Server
		streamLis net.Listener
	)
	if cfg.GRPC.Listen != "" {
		streamLis, err = net.Listen("tcp", cfg.GRPC.Listen)
		if err != nil {
			return fmt.Errorf("failed to listen for pose stream on %s: %w", cfg.GRPC.Listen, err)
		}
		stream = posestream.NewServer(t, cfg.GRPC.Interval)
	}

	var wg sync.WaitGroup
	errc := make(chan error, 2)

	if httpServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Str("address", httpServer.Addr).Msg("HTTP server listening")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("HTTP server: %w", err)
			}
		}()
	}
	if stream != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := stream.Serve(streamLis); err != nil {
				errc <- fmt.Errorf("pose stream: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown requested")
	case <-t.Done():
		runErr = t.Err()
		if runErr != nil {
			log.Error().Err(runErr).Msg("tracker stopped")
		} else {
			log.Info().Msg("tracker finished")
		}
	case runErr = <-errc:
		log.Error().Err(runErr).Msg("server failed")
	}

	t.Stop()
	if stream != nil {
		stream.Stop()
	}
	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP server shutdown")
		}
		cancel()
	}
	wg.Wait()
	t.Wait()

	stats := t.Stats()
	log.Info().
		Uint64("packets", stats.PacketsReceived).
		Uint64("dropped", stats.PacketsDropped).
		Uint64("reconnects", stats.Reconnects).
		Msg("optotrak stopped")
	return runErr
}
