// Package snapshot implements the lighter-weight ingestion path: one
// request per filter preset recording only the total offer count.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/AbdallahZerfaoui/apec-observer/internal/apec"
)

// Client fetches one page of search results.
type Client interface {
	Search(ctx context.Context, req apec.SearchRequest) (apec.SearchResponse, error)
}

// MetricStore appends total-count observations.
type MetricStore interface {
	AppendMetric(ctx context.Context, configName string, value int64, retrievedAt string) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Artifact is one extracted observation; it is both appended to the
// metrics table and dumped as a timestamped JSON file.
type Artifact struct {
	ConfigName  string `json:"config_name"`
	Value       int64  `json:"value"`
	RetrievedAt string `json:"retrieved_at"`
}

// Runner executes snapshot extractions.
type Runner struct {
	client  Client
	metrics MetricStore
	clock   Clock
	dataDir string
	logger  *zap.Logger
}

// New constructs a Runner writing artifacts under dataDir.
func New(client Client, metrics MetricStore, clock Clock, dataDir string, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		client:  client,
		metrics: metrics,
		clock:   clock,
		dataDir: dataDir,
		logger:  logger,
	}
}

// Run extracts the total offer count for each named preset: a minimal
// one-result search, one metric row, and one JSON artifact per preset.
func (r *Runner) Run(ctx context.Context, presetNames []string) ([]Artifact, error) {
	artifacts := make([]Artifact, 0, len(presetNames))
	for _, name := range presetNames {
		preset, err := apec.PresetByName(name)
		if err != nil {
			return artifacts, err
		}

		resp, err := r.client.Search(ctx, apec.NewSearchRequest(preset, 1, 0))
		if err != nil {
			return artifacts, fmt.Errorf("snapshot preset %s: %w", name, err)
		}

		now := r.clock.Now().UTC()
		artifact := Artifact{
			ConfigName:  name,
			Value:       int64(resp.TotalCount),
			RetrievedAt: now.Format(time.RFC3339Nano),
		}
		if err := r.metrics.AppendMetric(ctx, name, artifact.Value, artifact.RetrievedAt); err != nil {
			return artifacts, err
		}
		path, err := r.writeArtifact(artifact, now)
		if err != nil {
			return artifacts, err
		}

		r.logger.Info("snapshot extracted",
			zap.String("preset", name),
			zap.Int64("total_offers", artifact.Value),
			zap.String("artifact", path))
		artifacts = append(artifacts, artifact)
	}
	return artifacts, nil
}

func (r *Runner) writeArtifact(artifact Artifact, now time.Time) (string, error) {
	if err := os.MkdirAll(r.dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	name := fmt.Sprintf("apec_%s_%s.json", artifact.ConfigName, now.Format("20060102_150405"))
	path := filepath.Join(r.dataDir, name)

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal artifact: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}
