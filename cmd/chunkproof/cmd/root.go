package cmd

import (
	"fmt"
	"os"

	"github.com/gordian-engine/chunkproof/cpchunk"
	"github.com/spf13/cobra"
)

func (c *command) initRootCmd() {
	cmd := &cobra.Command{
		Use:   "root FILE",
		Short: "Print the Merkle root and chunk count of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.bind(cmd); err != nil {
				return err
			}
			chunkSize, err := c.chunkSize()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read input file: %w", err)
			}

			root := cpchunk.Root(data, chunkSize)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", root, cpchunk.Count(len(data), chunkSize))
			return nil
		},
	}

	cmd.Flags().Uint32(optionNameChunkSize, defaultChunkSize, "chunk size in bytes")

	c.root.AddCommand(cmd)
}
