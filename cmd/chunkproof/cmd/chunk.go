package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/gordian-engine/chunkproof/cpchunk"
	"github.com/spf13/cobra"
)

func (c *command) initChunkCmd() {
	cmd := &cobra.Command{
		Use:   "chunk FILE",
		Short: "Write encoded chunks of a file, each with its proof",
		Long: `Write the encoded chunk at --index, or every chunk in order with --all.
Multiple chunks are written back to back and may be read by verify and join.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
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

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read input file: %w", err)
			}

			var indices []uint64
			if c.config.GetBool(optionNameAll) {
				n := cpchunk.Count(len(data), chunkSize)
				indices = make([]uint64, n)
				for i := range n {
					indices[i] = i
				}
			} else {
				indices = []uint64{c.config.GetUint64(optionNameIndex)}
			}

			var w io.Writer = cmd.OutOrStdout()
			if out := c.config.GetString(optionNameOutput); out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer func() {
					if cerr := f.Close(); cerr != nil && err == nil {
						err = fmt.Errorf("close output file: %w", cerr)
					}
				}()
				w = f
			}

			var buf []byte
			for _, i := range indices {
				ch, err := cpchunk.New(data, i, chunkSize)
				if err != nil {
					return fmt.Errorf("build chunk %d: %w", i, err)
				}
				buf, err = ch.AppendBinary(buf[:0])
				if err != nil {
					return fmt.Errorf("encode chunk %d: %w", i, err)
				}
				if _, err := w.Write(buf); err != nil {
					return fmt.Errorf("write chunk %d: %w", i, err)
				}
			}

			logger.Debug("Wrote chunks", "file", args[0], "count", len(indices))
			return nil
		},
	}

	cmd.Flags().Uint32(optionNameChunkSize, defaultChunkSize, "chunk size in bytes")
	cmd.Flags().Uint64(optionNameIndex, 0, "index of the chunk to write")
	cmd.Flags().Bool(optionNameAll, false, "write every chunk")
	cmd.Flags().String(optionNameOutput, "", "output file (default stdout)")

	c.root.AddCommand(cmd)
}
