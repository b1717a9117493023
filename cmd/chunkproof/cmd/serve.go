package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gordian-engine/chunkproof/cpfetch"
	"github.com/gordian-engine/chunkproof/cpquic"
	"github.com/gordian-engine/chunkproof/cpstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const metricsNamespace = "chunkproof"

func (c *command) initServeCmd() {
	cmd := &cobra.Command{
		Use:   "serve FILE...",
		Short: "Serve the chunks of files over QUIC",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.bind(cmd); err != nil {
				return err
			}
			chunkSize, err := c.chunkSize()
			if err != nil {
				return err
			}
			logger, err := c.logger(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			provider := cpstore.NewProvider(logger.With("sys", "store"), cpstore.ProviderConfig{})
			for _, name := range args {
				data, err := os.ReadFile(name)
				if err != nil {
					return fmt.Errorf("read input file: %w", err)
				}
				root := provider.Put(data, chunkSize)
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", root, name)
			}

			m := cpfetch.NewMetrics(metricsNamespace)
			if addr := c.config.GetString(optionNameMetricsAddr); addr != "" {
				registry := prometheus.NewRegistry()
				registry.MustRegister(m.Collectors()...)

				srv := &http.Server{
					Addr:    addr,
					Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
				}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Warn("Metrics server stopped", "err", err)
					}
				}()
				defer srv.Close()
			}

			tlsConf, err := cpquic.SelfSignedTLSConfig(0)
			if err != nil {
				return err
			}
			l, err := cpquic.Listen(c.config.GetString(optionNameListen), tlsConf, nil)
			if err != nil {
				return err
			}
			defer l.Close()

			logger.Info("Listening", "addr", l.Addr().String())
			fmt.Fprintf(cmd.OutOrStdout(), "listening %s\n", l.Addr())

			s := cpfetch.NewServer(logger.With("sys", "server"), cpfetch.ServerConfig{
				Source:  provider,
				Metrics: m,
			})

			var wg sync.WaitGroup
			defer wg.Wait()

			for {
				conn, err := l.Accept(ctx)
				if err != nil {
					if ctx.Err() != nil {
						logger.Info("Shutting down", "cause", context.Cause(ctx))
						return nil
					}
					return fmt.Errorf("accept connection: %w", err)
				}

				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := s.Serve(ctx, conn); err != nil && ctx.Err() == nil {
						logger.Debug("Connection closed", "remote", conn.RemoteAddr().String(), "err", err)
					}
					_ = conn.CloseWithError(0, "")
				}()
			}
		},
	}

	cmd.Flags().Uint32(optionNameChunkSize, defaultChunkSize, "chunk size in bytes")
	cmd.Flags().String(optionNameListen, "127.0.0.1:4242", "UDP address to listen on")
	cmd.Flags().String(optionNameMetricsAddr, "", "HTTP address to expose Prometheus metrics on (disabled if empty)")

	c.root.AddCommand(cmd)
}
