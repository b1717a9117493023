package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gordian-engine/chunkproof/cpchunk"
	"github.com/spf13/cobra"
)

func (c *command) initVerifyCmd() {
	cmd := &cobra.Command{
		Use:   "verify CHUNKFILE...",
		Short: "Verify encoded chunks against a trusted root",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.bind(cmd); err != nil {
				return err
			}
			root, err := c.rootDigest()
			if err != nil {
				return err
			}
			maxChunkSize := c.config.GetUint32(optionNameMaxChunkSize)

			var bad int
			for _, name := range args {
				err := eachChunk(name, maxChunkSize, func(ch cpchunk.Chunk) error {
					if err := ch.VerifyAgainst(root); err != nil {
						bad++
						fmt.Fprintf(cmd.OutOrStdout(), "%s: chunk %d: INVALID: %v\n", name, ch.Proof.Index, err)
						return nil
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: chunk %d of %d: ok\n", name, ch.Proof.Index, ch.Proof.Count)
					return nil
				})
				if err != nil {
					return err
				}
			}

			if bad > 0 {
				return fmt.Errorf("%d invalid chunks", bad)
			}
			return nil
		},
	}

	cmd.Flags().String(optionNameRoot, "", "trusted root, in hex")
	cmd.Flags().Uint32(optionNameMaxChunkSize, defaultChunkSize, "largest chunk data length to accept")

	c.root.AddCommand(cmd)
}

// eachChunk decodes every chunk in the named file, in order.
func eachChunk(name string, maxChunkSize uint32, fn func(cpchunk.Chunk) error) error {
	f, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("open chunk file: %w", err)
	}
	defer f.Close()

	dec := cpchunk.NewDecoder(f, maxChunkSize)
	for {
		ch, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
		if err := fn(ch); err != nil {
			return err
		}
	}
}

// writeOutput writes data to the named file, or to w if name is empty.
func writeOutput(w io.Writer, name string, data []byte) error {
	if name == "" {
		_, err := w.Write(data)
		return err
	}
	if err := os.WriteFile(name, data, 0o644); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}
	return nil
}

