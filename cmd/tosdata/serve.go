package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Noofbiz/tosdata/datasets"
	"github.com/Noofbiz/tosdata/loader"
	"github.com/Noofbiz/tosdata/metrics"
)

var (
	serveAddr    string
	serveDir     string
	serveWorkers int
	serveBatch   int
	serveEpochs  int
	serveShuffle bool
	serveSeed    int64
	serveHold    bool
)

var serveMetricsCmd = &cobra.Command{
	Use:   "serve-metrics",
	Short: "Stream a dataset through the parallel loader while exporting fetch metrics",
	Long: `Serve /metrics and /livez on --addr, then read every record of --dir from
the object store for --epochs epochs using --workers concurrent fetches. With
--hold the server keeps running until interrupted.`,
	RunE: runServeMetrics,
}

func init() {
	serveMetricsCmd.Flags().StringVar(&serveAddr, "addr", ":9090", "Listen address")
	serveMetricsCmd.Flags().StringVarP(&serveDir, "dir", "d", "", "Materialized dataset directory")
	serveMetricsCmd.Flags().IntVar(&serveWorkers, "workers", 4, "Concurrent fetches")
	serveMetricsCmd.Flags().IntVar(&serveBatch, "batch-size", 32, "Records per batch")
	serveMetricsCmd.Flags().IntVar(&serveEpochs, "epochs", 1, "Passes over the dataset")
	serveMetricsCmd.Flags().BoolVar(&serveShuffle, "shuffle", false, "Shuffle every epoch")
	serveMetricsCmd.Flags().Int64Var(&serveSeed, "seed", 0, "Shuffle seed")
	serveMetricsCmd.Flags().BoolVar(&serveHold, "hold", true, "Keep serving after the last epoch")
	serveMetricsCmd.MarkFlagRequired("dir")
}

func runServeMetrics(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	fetch, err := metrics.NewFetch(reg)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", serveAddr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: metrics.Handler(reg), ReadHeaderTimeout: 10 * time.Second}
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		if err := <-served; err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
	fmt.Fprintf(cmd.OutOrStdout(), "serving metrics on http://%s/metrics\n", ln.Addr())

	d, err := openDataset(serveDir)
	if err != nil {
		return err
	}
	ds, err := d.BuildRemote(storeFactory(), datasets.WithObserver(fetch))
	if err != nil {
		return err
	}
	l, err := loader.New(ds, loader.Options{
		Workers:   serveWorkers,
		BatchSize: serveBatch,
		Shuffle:   serveShuffle,
		Seed:      serveSeed,
		Logger:    &logger,
	})
	if err != nil {
		return err
	}
	defer l.Close()

	for epoch := range serveEpochs {
		start := time.Now()
		records := 0
		err := l.Batches(ctx, func(items []loader.Item) error {
			records += len(items)
			return nil
		})
		if err != nil {
			return fmt.Errorf("epoch %d: %w", epoch, err)
		}
		logger.Info().Int("epoch", epoch).Int("records", records).Dur("elapsed", time.Since(start)).Msg("epoch done")
		fmt.Fprintf(cmd.OutOrStdout(), "epoch %d: %d records\n", epoch, records)
		l.Reset()
	}

	if serveHold {
		<-ctx.Done()
	}
	return nil
}
