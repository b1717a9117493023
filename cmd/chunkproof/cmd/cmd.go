// Package cmd implements the chunkproof command line interface.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gordian-engine/chunkproof/cpdigest"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	optionNameVerbosity    = "verbosity"
	optionNameChunkSize    = "chunk-size"
	optionNameMaxChunkSize = "max-chunk-size"
	optionNameMaxBlobSize  = "max-blob-size"
	optionNameRoot         = "root"
	optionNameIndex        = "index"
	optionNameAll          = "all"
	optionNameOutput       = "output"
	optionNameListen       = "listen"
	optionNameMetricsAddr  = "metrics-addr"
	optionNamePeer         = "peer"
	optionNameParallelism  = "parallelism"
)

const (
	defaultChunkSize   = 64 * 1024
	defaultMaxBlobSize = 1 << 30
)

func init() {
	cobra.EnableCommandSorting = false
}

type command struct {
	root    *cobra.Command
	config  *viper.Viper
	cfgFile string

	ctx context.Context
}

type option func(*command)

// withArgs overrides the process arguments.
func withArgs(args ...string) option {
	return func(c *command) {
		c.root.SetArgs(args)
	}
}

// withContext sets the context the command runs under.
func withContext(ctx context.Context) option {
	return func(c *command) {
		c.ctx = ctx
	}
}

// withOutput redirects the standard output and error streams.
func withOutput(out, errOut io.Writer) option {
	return func(c *command) {
		c.root.SetOut(out)
		c.root.SetErr(errOut)
	}
}

func newCommand(opts ...option) (c *command, err error) {
	c = &command{
		ctx: context.Background(),
		root: &cobra.Command{
			Use:           "chunkproof",
			Short:         "Split, prove, verify and transfer chunked blobs",
			SilenceErrors: true,
			SilenceUsage:  true,
			PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
				return c.initConfig()
			},
		},
	}

	for _, o := range opts {
		o(c)
	}

	c.initGlobalFlags()

	c.initRootCmd()
	c.initChunkCmd()
	c.initVerifyCmd()
	c.initJoinCmd()
	c.initServeCmd()
	c.initFetchCmd()

	return c, nil
}

func (c *command) Execute() (err error) {
	return c.root.ExecuteContext(c.ctx)
}

// Execute parses command line arguments and runs appropriate functions.
func Execute() (err error) {
	c, err := newCommand()
	if err != nil {
		return err
	}
	return c.Execute()
}

func (c *command) initGlobalFlags() {
	globalFlags := c.root.PersistentFlags()
	globalFlags.StringVar(&c.cfgFile, "config", "", "config file")
	globalFlags.String(optionNameVerbosity, "info", "log verbosity level 0=silent, 1=error, 2=warn, 3=info, 4=debug")
}

func (c *command) initConfig() (err error) {
	config := viper.New()

	// Environment
	config.SetEnvPrefix("chunkproof")
	config.AutomaticEnv() // read in environment variables that match
	config.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if c.cfgFile != "" {
		config.SetConfigFile(c.cfgFile)
		if err := config.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
	}

	if err := config.BindPFlags(c.root.PersistentFlags()); err != nil {
		return err
	}

	c.config = config
	return nil
}

// bind makes the flags of cmd available through c.config,
// so that each may also be set from the environment or config file.
func (c *command) bind(cmd *cobra.Command) error {
	return c.config.BindPFlags(cmd.Flags())
}

func (c *command) logger(cmd *cobra.Command) (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(c.config.GetString(optionNameVerbosity)) {
	case "0", "silent":
		return slog.New(slog.NewTextHandler(io.Discard, nil)), nil
	case "1", "error":
		level = slog.LevelError
	case "2", "warn":
		level = slog.LevelWarn
	case "3", "info":
		level = slog.LevelInfo
	case "4", "debug":
		level = slog.LevelDebug
	default:
		return nil, fmt.Errorf("unknown verbosity level %q", c.config.GetString(optionNameVerbosity))
	}

	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	})), nil
}

func (c *command) chunkSize() (uint32, error) {
	sz := c.config.GetUint32(optionNameChunkSize)
	if sz == 0 {
		return 0, errors.New("chunk size must be positive")
	}
	return sz, nil
}

func (c *command) rootDigest() (cpdigest.Digest, error) {
	s := c.config.GetString(optionNameRoot)
	if s == "" {
		return cpdigest.Digest{}, errors.New("root is required")
	}
	d, err := cpdigest.ParseHex(s)
	if err != nil {
		return cpdigest.Digest{}, fmt.Errorf("parse root: %w", err)
	}
	return d, nil
}
