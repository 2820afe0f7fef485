package align

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultTransformCachePath is the default path of the fitted-transform cache.
const DefaultTransformCachePath = ".transform-cache.json"

// CachedTransform is one fitted transform with its fit statistics.
type CachedTransform struct {
	Transform SimilarityTransform `json:"transform"`
	Matched   int                 `json:"matched"`
	Residual  float64             `json:"residual"`
}

// TransformCache persists every transform fitted during a run.
type TransformCache struct {
	RunID       string                     `json:"runId"`
	Split       string                     `json:"split"`
	LastUpdated int64                      `json:"lastUpdated"`
	Clips       map[string]CachedTransform `json:"clips"`
	Scans       map[string]CachedTransform `json:"scans"`
}

// NewTransformCache collects the fitted transforms of a report. Skipped units
// are left out.
func NewTransformCache(report *RunReport) *TransformCache {
	c := &TransformCache{
		RunID: report.RunID,
		Split: report.Split,
		Clips: make(map[string]CachedTransform),
		Scans: make(map[string]CachedTransform),
	}
	for _, res := range report.Results() {
		if !res.OK() {
			continue
		}
		entry := CachedTransform{
			Transform: res.Transform,
			Matched:   res.Correspondences.Len(),
			Residual:  res.Residual,
		}
		if res.Pass == PassScan {
			c.Scans[res.Unit] = entry
		} else {
			c.Clips[res.Unit] = entry
		}
	}
	return c
}

// Get returns the cached transform of a unit. A nil cache holds nothing.
func (c *TransformCache) Get(pass Pass, unit string) (SimilarityTransform, bool) {
	if c == nil {
		return SimilarityTransform{}, false
	}
	entries := c.Clips
	if pass == PassScan {
		entries = c.Scans
	}
	entry, ok := entries[unit]
	return entry.Transform, ok
}

// LoadTransforms loads a transform cache. A missing file yields nil, nil.
func LoadTransforms(path string) (*TransformCache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading transform cache: %w", err)
	}

	var c TransformCache
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing transform cache: %w", err)
	}
	return &c, nil
}

// SaveTransforms writes the cache, stamping LastUpdated.
func SaveTransforms(path string, c *TransformCache) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating transform cache directory: %w", err)
	}

	c.LastUpdated = time.Now().Unix()

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling transform cache: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing transform cache: %w", err)
	}
	return nil
}
