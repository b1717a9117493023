package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/gordian-engine/chunkproof/cpfetch"
	"github.com/gordian-engine/chunkproof/cpquic"
	"github.com/spf13/cobra"
)

func (c *command) initFetchCmd() {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch a blob by root from one or more QUIC peers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.bind(cmd); err != nil {
				return err
			}
			root, err := c.rootDigest()
			if err != nil {
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

			peers := c.config.GetStringSlice(optionNamePeer)
			if len(peers) == 0 {
				return errors.New("at least one peer is required")
			}

			ctx := cmd.Context()

			conns := make([]cpquic.Conn, 0, len(peers))
			defer func() {
				for _, conn := range conns {
					_ = conn.CloseWithError(0, "")
				}
			}()
			for _, p := range peers {
				conn, err := cpquic.Dial(ctx, p, nil, nil)
				if err != nil {
					logger.Warn("Skipping unreachable peer", "peer", p, "err", err)
					continue
				}
				conns = append(conns, conn)
			}
			if len(conns) == 0 {
				return errors.New("no peers reachable")
			}

			f := cpfetch.NewFetcher(logger.With("sys", "fetcher"), cpfetch.FetcherConfig{
				MaxBlobSize: c.config.GetUint64(optionNameMaxBlobSize),
				Parallelism: c.config.GetInt(optionNameParallelism),
			})

			start := time.Now()
			data, err := f.FetchBlob(ctx, conns, root, chunkSize)
			if err != nil {
				return fmt.Errorf("fetch blob: %w", err)
			}
			logger.Info("Fetched blob", "root", root.String(), "size", len(data), "dur", time.Since(start))

			return writeOutput(cmd.OutOrStdout(), c.config.GetString(optionNameOutput), data)
		},
	}

	cmd.Flags().String(optionNameRoot, "", "trusted root, in hex")
	cmd.Flags().Uint32(optionNameChunkSize, defaultChunkSize, "chunk size in bytes")
	cmd.Flags().Uint64(optionNameMaxBlobSize, defaultMaxBlobSize, "largest blob to allocate, in bytes")
	cmd.Flags().StringSlice(optionNamePeer, nil, "peer UDP address; may be repeated")
	cmd.Flags().Int(optionNameParallelism, 8, "maximum concurrent chunk requests")
	cmd.Flags().String(optionNameOutput, "", "output file (default stdout)")

	c.root.AddCommand(cmd)
}
