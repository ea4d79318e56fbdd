// Command tosdata downloads, splits and inspects manifest datasets stored in
// TOS.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Noofbiz/tosdata/config"
	"github.com/Noofbiz/tosdata/datasets"
	"github.com/Noofbiz/tosdata/logging"
	"github.com/Noofbiz/tosdata/objstore"
	"github.com/Noofbiz/tosdata/objstore/dirstore"
	"github.com/Noofbiz/tosdata/objstore/s3store"
)

var (
	configPath string
	logLevel   string
	storeDir   string
	kindName   string

	cfg    config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tosdata",
	Short: "Work with manifest datasets stored in TOS",
	Long: `tosdata materializes labeled datasets described by a JSON-lines manifest,
splits them into training and test sets and reads their payloads back from
the object store.

Credentials and endpoint come from the config file and the VOLC_ACCESSKEY,
VOLC_SECRETKEY, VOLC_REGION, TOS_ENDPOINT and ML_PLATFORM_ENV variables.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")
	rootCmd.PersistentFlags().StringVar(&storeDir, "store-dir", "", "Read objects from a local <bucket>/<key> mirror instead of TOS")
	rootCmd.PersistentFlags().StringVar(&kindName, "kind", "image", "Dataset kind: image or text")

	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(splitCmd)
	rootCmd.AddCommand(peekCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(serveMetricsCmd)
}

func setup(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	c = c.FromEnv(os.LookupEnv)
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	l, err := logging.NewWriter(cmd.ErrOrStderr(), c.Log)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	cfg, logger = c, l
	logger.Debug().Stringer("config", cfg).Msg("configuration loaded")
	return nil
}

// storeFactory returns the object-store client factory for this run.
func storeFactory() objstore.Factory {
	if storeDir != "" {
		return dirstore.Factory(storeDir)
	}
	return s3store.Factory(cfg, nil)
}

// newDataset returns an empty dataset of the selected kind.
func newDataset(opts datasets.Options) (*datasets.Dataset, error) {
	kind, err := datasets.ParseKind(kindName)
	if err != nil {
		return nil, err
	}
	opts.Logger = &logger
	if kind == datasets.KindText {
		return datasets.NewTextDataset(opts), nil
	}
	return datasets.NewImageDataset(opts), nil
}

// openDataset adopts a materialized dataset directory.
func openDataset(dir string) (*datasets.Dataset, error) {
	d, err := newDataset(datasets.Options{})
	if err != nil {
		return nil, err
	}
	if err := d.Open(dir); err != nil {
		return nil, err
	}
	return d, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
