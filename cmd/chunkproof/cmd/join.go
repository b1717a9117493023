package cmd

import (
	"errors"
	"fmt"

	"github.com/gordian-engine/chunkproof/cpblob"
	"github.com/gordian-engine/chunkproof/cpchunk"
	"github.com/spf13/cobra"
)

func (c *command) initJoinCmd() {
	cmd := &cobra.Command{
		Use:   "join CHUNKFILE...",
		Short: "Reassemble a blob from encoded chunks",
		Long: `Reassemble a blob from encoded chunks in any order.
Every chunk is verified against --root before it is used.
Invalid and duplicate chunks are reported and skipped.`,
		Args: cobra.MinimumNArgs(1),
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

			r := cpblob.NewReassembler(logger, cpblob.ReassemblerConfig{
				Root:        root,
				ChunkSize:   chunkSize,
				MaxBlobSize: c.config.GetUint64(optionNameMaxBlobSize),
			})

			for _, name := range args {
				err := eachChunk(name, chunkSize, func(ch cpchunk.Chunk) error {
					if err := r.AddChunk(ch); err != nil {
						var tooLarge cpblob.BlobTooLargeError
						if errors.As(err, &tooLarge) {
							return err
						}
						logger.Warn("Skipping chunk", "file", name, "index", ch.Proof.Index, "err", err)
					}
					return nil
				})
				if err != nil {
					return err
				}
			}

			data, err := r.Bytes()
			if err != nil {
				return fmt.Errorf("%w: missing chunks %v", err, r.Missing())
			}

			return writeOutput(cmd.OutOrStdout(), c.config.GetString(optionNameOutput), data)
		},
	}

	cmd.Flags().String(optionNameRoot, "", "trusted root, in hex")
	cmd.Flags().Uint32(optionNameChunkSize, defaultChunkSize, "chunk size in bytes")
	cmd.Flags().Uint64(optionNameMaxBlobSize, defaultMaxBlobSize, "largest blob to allocate, in bytes")
	cmd.Flags().String(optionNameOutput, "", "output file (default stdout)")

	c.root.AddCommand(cmd)
}
