package ingester

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethpandaops/perfstor/pkg/api/storage"
	"github.com/ethpandaops/perfstor/pkg/api/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// defaultConcurrency is the number of objects ingested in parallel when
// no explicit concurrency value is configured.
const defaultConcurrency = 4

// Ingester is a background service that periodically scans a storage
// prefix for run files and imports them as Run records.
type Ingester interface {
	Start(ctx context.Context) error
	Stop() error

	// RunOnce executes a single pass and reports how many objects were
	// imported.
	RunOnce(ctx context.Context) (int, error)
}

// Compile-time interface check.
var _ Ingester = (*ingester)(nil)

type ingester struct {
	log         logrus.FieldLogger
	store       store.Store
	backend     storage.Backend
	prefix      string
	interval    time.Duration
	concurrency int
	done        chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	dbMu        sync.Mutex // serializes DB writes to avoid SQLite contention
}

// NewIngester creates a new background ingester.
func NewIngester(
	log logrus.FieldLogger,
	st store.Store,
	backend storage.Backend,
	prefix string,
	interval time.Duration,
	concurrency int,
) Ingester {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &ingester{
		log:         log.WithField("component", "ingester"),
		store:       st,
		backend:     backend,
		prefix:      prefix,
		interval:    interval,
		concurrency: concurrency,
		done:        make(chan struct{}),
	}
}

// Start launches a background goroutine that runs an immediate pass and
// then ticks at the configured interval.
func (in *ingester) Start(ctx context.Context) error {
	in.log.WithFields(logrus.Fields{
		"interval":    in.interval.String(),
		"concurrency": in.concurrency,
		"backend":     in.backend.Name(),
		"prefix":      in.prefix,
	}).Info("Starting ingester")

	in.wg.Add(1)

	go func() {
		defer in.wg.Done()

		in.runPass(ctx)

		ticker := time.NewTicker(in.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				in.runPass(ctx)
			case <-in.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop signals the ingester goroutine to stop and waits for it.
func (in *ingester) Stop() error {
	in.stopOnce.Do(func() { close(in.done) })
	in.wg.Wait()

	in.log.Info("Ingester stopped")

	return nil
}

func (in *ingester) runPass(ctx context.Context) {
	if _, err := in.RunOnce(ctx); err != nil {
		in.log.WithError(err).Warn("Ingest pass failed")
	}
}

// RunOnce lists the prefix, skips already ingested keys and imports the
// rest with bounded parallelism. A failing object is logged and retried
// on the next pass.
func (in *ingester) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	source := in.backend.Name()

	keys, err := in.backend.List(ctx, in.prefix)
	if err != nil {
		return 0, fmt.Errorf("listing %s: %w", in.prefix, err)
	}

	seenKeys, err := in.store.ListIngestedKeys(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("listing ingested keys: %w", err)
	}

	seen := make(map[string]struct{}, len(seenKeys))
	for _, k := range seenKeys {
		seen[k] = struct{}{}
	}

	pending := make([]string, 0, len(keys))

	for _, k := range keys {
		if !strings.HasSuffix(k, ".json") {
			continue
		}

		if _, ok := seen[k]; ok {
			continue
		}

		pending = append(pending, k)
	}

	in.log.WithFields(logrus.Fields{
		"storage_objects": len(keys),
		"ingested":        len(seenKeys),
		"pending":         len(pending),
	}).Debug("Scanning ingest prefix")

	if len(pending) == 0 {
		return 0, nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(in.concurrency)

	var imported atomic.Int64

	for _, key := range pending {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			case <-in.done:
				return nil
			default:
			}

			n, err := in.ingestObject(gCtx, source, key)
			if err != nil {
				in.log.WithError(err).
					WithField("key", key).
					Warn("Failed to ingest object")

				return nil //nolint:nilerr // log and continue
			}

			in.log.WithField("key", key).
				WithField("runs", n).
				Info("Ingested object")

			imported.Add(1)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(imported.Load()), fmt.Errorf("ingesting objects: %w", err)
	}

	count := int(imported.Load())

	in.log.WithFields(logrus.Fields{
		"imported": count,
		"duration": time.Since(start).String(),
	}).Info("Ingest pass completed")

	return count, nil
}

// ingestObject imports one object and records its key.
func (in *ingester) ingestObject(
	ctx context.Context, source, key string,
) (int, error) {
	data, err := in.backend.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("reading object: %w", err)
	}

	if data == nil {
		return 0, fmt.Errorf("object disappeared")
	}

	runs, err := DecodeRuns(data)
	if err != nil {
		return 0, err
	}

	in.dbMu.Lock()
	defer in.dbMu.Unlock()

	if err := in.store.ImportRuns(ctx, &store.IngestedFile{
		Source:    source,
		ObjectKey: key,
	}, runs); err != nil {
		return 0, err
	}

	return len(runs), nil
}

// DecodeRuns decodes either a single run object or an array of runs,
// using the same JSON shape as the create endpoint.
func DecodeRuns(data []byte) ([]store.Run, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty run file")
	}

	if trimmed[0] == '[' {
		var runs []store.Run
		if err := json.Unmarshal(trimmed, &runs); err != nil {
			return nil, fmt.Errorf("decoding run array: %w", err)
		}

		return runs, nil
	}

	var run store.Run
	if err := json.Unmarshal(trimmed, &run); err != nil {
		return nil, fmt.Errorf("decoding run: %w", err)
	}

	return []store.Run{run}, nil
}
