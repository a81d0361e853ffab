package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/withObsrvr/obsrvr-bucketizer/internal/bucketize"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/catalog"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/config"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/importer"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/logging"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/metrics"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/notify"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/report"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/sink"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/source"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "bucketizer: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv("BUCKETIZER_CONFIG"), "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logging.Setup(logging.Config{
		Format: cfg.Logging.Format,
		Level:  cfg.Logging.Level,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	met := metrics.Init()
	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				logging.Component("metrics").Error("metrics server failed", "error", err)
			}
		}()
	}

	runID := uuid.New().String()
	correlationID := logging.GenerateCorrelationID()
	ctx = logging.WithCorrelationID(ctx, correlationID)
	log := logging.ProcedureLogger(correlationID, cfg.Procedure, cfg.Output.Dataset, runID)

	log.Info("starting run",
		"version", bucketize.Version,
		"git_sha", bucketize.GitSHA,
		"backend", cfg.Output.Storage.Backend)

	store, err := storage.NewStore(cfg.Output.Storage)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	defer store.Close()

	producer := storage.ProducerInfo{
		Name:    "obsrvr-bucketizer",
		Version: bucketize.Version,
		GitSHA:  bucketize.GitSHA,
	}
	out := sink.NewParquetSink(cfg.SinkConfig(runID), store, producer)

	labels := metrics.Labels{
		Procedure: cfg.Procedure,
		Dataset:   cfg.Output.Dataset,
		Backend:   cfg.Output.Storage.Backend,
	}

	rep := &report.Report{
		RunID:     runID,
		Procedure: cfg.Procedure,
		Dataset:   cfg.Output.Dataset,
		Version:   cfg.Output.DatasetVersion,
		StartedAt: time.Now().UTC(),
	}

	var status *sink.Status
	switch cfg.Procedure {
	case "bucketize":
		status, err = runBucketize(ctx, cfg, labels, out, rep)
	case "import_json":
		status, err = runImport(ctx, cfg, labels, out, rep)
	default:
		err = fmt.Errorf("unknown procedure %q", cfg.Procedure)
	}

	rep.EndedAt = time.Now().UTC()
	rep.Succeeded = err == nil
	if err != nil {
		rep.Error = err.Error()
	}
	if status != nil {
		rep.RowCount = status.RowCount
		rep.CellCount = status.CellCount
		rep.ByteSize = status.ByteSize
		rep.Checksum = status.Checksum
		rep.URI = status.URI
	}

	writeReport(cfg, rep, log)
	if err != nil {
		return err
	}

	// Catalog and notify failures are warn-and-continue: the dataset
	// is already committed.
	recordRun(ctx, cfg, labels, met, status, log)
	emitEvent(ctx, cfg, labels, met, status, log)

	log.Info("run finished",
		"rows", status.RowCount,
		"cells", status.CellCount,
		"uri", status.URI)
	return nil
}

func runBucketize(ctx context.Context, cfg *config.Config, labels metrics.Labels, out sink.Sink, rep *report.Report) (*sink.Status, error) {
	src, err := source.NewRowSource(cfg.Input)
	if err != nil {
		return nil, fmt.Errorf("creating row source: %w", err)
	}
	defer src.Close()

	engine, err := bucketize.New(bucketize.Config{
		Buckets:        cfg.Buckets,
		Workers:        cfg.Perf.Workers,
		FlushThreshold: cfg.Perf.FlushThreshold,
		Labels:         labels,
	})
	if err != nil {
		return nil, err
	}

	result, err := engine.Run(ctx, src, out)
	if err != nil {
		return nil, err
	}
	if !result.Validation.Valid {
		return result.Status, fmt.Errorf("run validation failed: %v", result.Validation.Errors)
	}
	return result.Status, nil
}

func runImport(ctx context.Context, cfg *config.Config, labels metrics.Labels, out sink.Sink, rep *report.Report) (*sink.Status, error) {
	importCfg := cfg.Import
	importCfg.Labels = labels

	result, err := importer.New(importCfg).Run(ctx, out)
	if err != nil {
		return nil, err
	}
	rep.LineErrors = result.LineErrors
	return result.Status, nil
}

func writeReport(cfg *config.Config, rep *report.Report, log *slog.Logger) {
	var mgr report.Manager = report.Noop{}
	if cfg.Report.Enabled {
		mgr = report.NewFileManager(cfg.Report.Path)
	}
	if err := mgr.Write(rep); err != nil {
		log.Warn("failed to write run report", "error", err)
	}
}

func recordRun(ctx context.Context, cfg *config.Config, labels metrics.Labels, met *metrics.Metrics, status *sink.Status, log *slog.Logger) {
	cat, err := catalog.NewPostgresCatalog(ctx, cfg.Catalog.DatabaseDSN, cfg.Catalog.ConnectTimeout)
	if err != nil {
		met.CatalogErrors.WithLabelValues(labels.Values()...).Inc()
		log.Warn("catalog unavailable", "error", err)
		return
	}
	defer cat.Close()

	if err := cat.EnsureDataset(ctx, cfg.Output.Namespace, cfg.Output.Dataset, cfg.Output.DatasetVersion); err != nil {
		met.CatalogErrors.WithLabelValues(labels.Values()...).Inc()
		log.Warn("failed to ensure dataset", "error", err)
		return
	}

	prev, err := cat.LastChecksum(ctx, cfg.Output.Namespace, cfg.Output.Dataset, cfg.Output.DatasetVersion)
	if err != nil {
		met.CatalogErrors.WithLabelValues(labels.Values()...).Inc()
		log.Warn("failed to read last checksum", "error", err)
		return
	}

	err = cat.RecordRun(ctx, catalog.Run{
		RunID:        status.RunID,
		Namespace:    cfg.Output.Namespace,
		Dataset:      cfg.Output.Dataset,
		Version:      cfg.Output.DatasetVersion,
		Procedure:    cfg.Procedure,
		RowCount:     status.RowCount,
		CellCount:    status.CellCount,
		ByteSize:     status.ByteSize,
		Checksum:     status.Checksum,
		PrevChecksum: prev,
		URI:          status.URI,
		CommittedAt:  status.CommittedAt,
	})
	if err != nil {
		met.CatalogErrors.WithLabelValues(labels.Values()...).Inc()
		log.Warn("failed to record run", "error", err)
	}
}

func emitEvent(ctx context.Context, cfg *config.Config, labels metrics.Labels, met *metrics.Metrics, status *sink.Status, log *slog.Logger) {
	emitter, err := notify.NewEmitter(notify.Config{
		Enabled:       cfg.Notify.Enabled,
		EndpointURL:   cfg.Notify.EndpointURL,
		FilePath:      cfg.Notify.FilePath,
		ChainHeadPath: cfg.Notify.ChainHeadPath,
	})
	if err != nil {
		met.NotifyErrors.WithLabelValues(labels.Values()...).Inc()
		log.Warn("notify unavailable", "error", err)
		return
	}
	defer emitter.Close()

	ev := notify.Event{
		EventType: notify.EventTypeRunCommitted,
		Namespace: cfg.Output.Namespace,
		Dataset:   cfg.Output.Dataset,
		Version:   cfg.Output.DatasetVersion,
		RunID:     status.RunID,
		Procedure: cfg.Procedure,
		RowCount:  status.RowCount,
		ByteSize:  status.ByteSize,
		Checksum:  status.Checksum,
		URI:       status.URI,
	}
	if err := emitter.Emit(ctx, ev); err != nil {
		met.NotifyErrors.WithLabelValues(labels.Values()...).Inc()
		log.Warn("failed to emit event", "error", err)
	}
}
