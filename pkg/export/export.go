package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethpandaops/perfstor/pkg/api/storage"
	"github.com/ethpandaops/perfstor/pkg/api/store"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Exporter writes snapshots of all runs to a storage backend.
type Exporter interface {
	// Export encodes every run and writes it under the configured prefix,
	// returning the written key.
	Export(ctx context.Context) (string, error)
}

// Compile-time interface check.
var _ Exporter = (*exporter)(nil)

type exporter struct {
	log     logrus.FieldLogger
	runs    store.RunRepository
	backend storage.Backend
	prefix  string
	format  string
	now     func() time.Time
}

// NewExporter creates an Exporter. format is "json" or "yaml".
func NewExporter(
	log logrus.FieldLogger,
	runs store.RunRepository,
	backend storage.Backend,
	prefix, format string,
) (Exporter, error) {
	if format != "json" && format != "yaml" {
		return nil, fmt.Errorf("unsupported export format %q", format)
	}

	return &exporter{
		log:     log.WithField("component", "exporter"),
		runs:    runs,
		backend: backend,
		prefix:  prefix,
		format:  format,
		now:     time.Now,
	}, nil
}

func (e *exporter) Export(ctx context.Context) (string, error) {
	if err := e.backend.Preflight(ctx); err != nil {
		return "", fmt.Errorf("preflight: %w", err)
	}

	runs, err := e.runs.FindAll(ctx)
	if err != nil {
		return "", err
	}

	if runs == nil {
		runs = []store.Run{}
	}

	data, contentType, err := Encode(runs, e.format)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("runs-%s.%s", e.now().UTC().Format("20060102T150405Z"), e.format)
	key := storage.JoinKey(e.prefix, name)

	if err := e.backend.Put(ctx, key, data, contentType); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"key":     key,
		"runs":    len(runs),
		"backend": e.backend.Name(),
	}).Info("Export completed")

	return key, nil
}

// Encode serializes runs in the given format and returns the content type.
func Encode(runs []store.Run, format string) ([]byte, string, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(runs, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("encoding json: %w", err)
		}

		return append(data, '\n'), "application/json", nil
	case "yaml":
		data, err := yaml.Marshal(yamlRuns(runs))
		if err != nil {
			return nil, "", fmt.Errorf("encoding yaml: %w", err)
		}

		return data, "application/yaml", nil
	default:
		return nil, "", fmt.Errorf("unsupported export format %q", format)
	}
}

// yamlRun mirrors the JSON field names of store.Run.
type yamlRun struct {
	ID        uint                `yaml:"id"`
	TestName  string              `yaml:"testName"`
	TimeStart store.LocalDateTime `yaml:"timeStart"`
	TimeEnd   store.LocalDateTime `yaml:"timeEnd"`
	Duration  float64             `yaml:"duration"`
}

func yamlRuns(runs []store.Run) []yamlRun {
	out := make([]yamlRun, 0, len(runs))
	for _, r := range runs {
		out = append(out, yamlRun(r))
	}

	return out
}
