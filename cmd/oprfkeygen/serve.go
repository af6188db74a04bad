package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TaceoLabs/oprf-key-registry/api"
	"github.com/TaceoLabs/oprf-key-registry/registry"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordinator",
	Long: `Run the key-generation coordinator and its HTTP API.

Durable state lives in a badger database under --data-dir. Without a data
directory everything is kept in memory and lost on exit.

Examples:
  # 2-of-3 coordinator with a remote proof verifier
  oprfkeygen serve --data-dir /var/lib/oprfkeygen \
    --admin 0xa000000000000000000000000000000000000001 \
    --verifier-url http://verifier:9000/verify

  # Development mode, mTLS peers and no proof checks
  oprfkeygen serve --tls-cert server.crt --tls-key server.key --tls-ca peers.crt \
    --admin 0xa000000000000000000000000000000000000001 --accept-all-proofs`,
	Args: cobra.NoArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		mustBind(viper.GetViper(), cmd, map[string]string{
			"listen":              "listen",
			"data_dir":            "data-dir",
			"num_peers":           "num-peers",
			"threshold":           "threshold",
			"admins":              "admin",
			"peers":               "peer",
			"event_retention":     "event-retention",
			"trust_caller_header": "trust-caller-header",
			"verifier.url":        "verifier-url",
			"verifier.accept_all": "accept-all-proofs",
			"verifier.timeout":    "verifier-timeout",
			"tls.cert":            "tls-cert",
			"tls.key":             "tls-key",
			"tls.ca":              "tls-ca",
		})
	},
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("listen", ":8080", "address to listen on")
	f.String("data-dir", "", "badger data directory (in-memory if empty)")
	f.IntP("num-peers", "n", 3, "number of peers (n)")
	f.IntP("threshold", "t", 2, "reconstruction threshold (t)")
	f.StringSlice("admin", nil, "bootstrap admin address (repeatable)")
	f.StringSlice("peer", nil, "bootstrap peer address in party order (repeatable)")
	f.Int("event-retention", 4096, "number of events kept for replay")
	f.Bool("trust-caller-header", false, "accept the caller address from the "+api.HeaderPeerAddress+" header")
	f.String("verifier-url", "", "remote proof verifier endpoint")
	f.Bool("accept-all-proofs", false, "accept every proof (development only)")
	f.Duration("verifier-timeout", 10*time.Second, "remote proof verifier timeout")
	f.String("tls-cert", "", "TLS certificate file")
	f.String("tls-key", "", "TLS private key file")
	f.String("tls-ca", "", "CA for peer client certificates")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}
	return serve(ctx, cfg, log, ln)
}

// serve runs the coordinator on ln until ctx is done.
func serve(ctx context.Context, cfg *Config, log zerolog.Logger, ln net.Listener) error {
	verifiers, err := cfg.verifiers(log)
	if err != nil {
		ln.Close()
		return err
	}
	tlsCfg, err := cfg.serverTLS()
	if err != nil {
		ln.Close()
		return err
	}
	store, err := openStore(cfg.DataDir, log)
	if err != nil {
		ln.Close()
		return err
	}

	metrics := registry.NewMetrics("")
	reg, err := registry.New(registry.Config{
		NumPeers:       cfg.NumPeers,
		Threshold:      cfg.Threshold,
		Admins:         cfg.Admins,
		Peers:          cfg.Peers,
		Verifiers:      verifiers,
		Store:          store,
		Logger:         &log,
		Metrics:        metrics,
		EventRetention: cfg.EventRetention,
	})
	if err != nil {
		store.Close()
		ln.Close()
		return err
	}

	srv := &http.Server{
		Handler: api.New(reg, api.Options{
			TrustCallerHeader: cfg.TrustCallerHeader,
			Metrics:           metrics.Handler(),
			Logger:            &log,
		}),
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return reg.Run(gctx)
	})
	g.Go(func() error {
		log.Info().
			Str("addr", ln.Addr().String()).
			Bool("tls", tlsCfg != nil).
			Int("num_peers", cfg.NumPeers).
			Int("threshold", cfg.Threshold).
			Msg("serving")
		var err error
		if tlsCfg != nil {
			err = srv.ServeTLS(ln, "", "")
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	err = g.Wait()
	if cerr := reg.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close store: %w", cerr)
	}
	return err
}

func openStore(dir string, log zerolog.Logger) (registry.Store, error) {
	if dir == "" {
		log.Warn().Msg("no data directory configured, state is kept in memory")
		return registry.NewMemoryStore(), nil
	}
	store, err := registry.OpenBadgerStore(dir)
	if err != nil {
		return nil, err
	}
	log.Info().Str("data_dir", dir).Msg("opened badger store")
	return store, nil
}
