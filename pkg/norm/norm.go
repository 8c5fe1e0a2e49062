// Package norm exposes detector-pair sensitivities for a canonical scanner
// as a read-only view over an efficiency model.
package norm

import (
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"petsirdrecon/internal/models"
	"petsirdrecon/pkg/correspondence"
)

// Norm answers sensitivity queries by flat detector pair. Energy is not
// resolved: every query uses energy bin 0.
type Norm struct {
	info   *models.ScannerInformation
	table  *correspondence.Table
	model  EfficiencyModel
	cache  *lru.Cache[models.DetectorPair, float64]
	logger *slog.Logger
}

// Option configures a Norm
type Option func(*options)

type options struct {
	cacheSize int
	logger    *slog.Logger
}

// WithCacheSize keeps up to n pair weights in an LRU cache. Zero disables
// caching.
func WithCacheSize(n int) Option {
	return func(o *options) {
		o.cacheSize = n
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// New builds the sensitivity view of a canonicalized scanner
func New(info *models.ScannerInformation, table *correspondence.Table, model EfficiencyModel, opts ...Option) (*Norm, error) {
	if model == nil {
		return nil, fmt.Errorf("efficiency model is required")
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	n := &Norm{
		info:   info,
		table:  table,
		model:  model,
		logger: o.logger,
	}
	if o.cacheSize > 0 {
		cache, err := lru.New[models.DetectorPair, float64](o.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create sensitivity cache: %w", err)
		}
		n.cache = cache
	}

	n.logger.Debug("sensitivity view created",
		"module", "norm",
		"model", fmt.Sprintf("%T", model),
		"cacheSize", o.cacheSize)
	return n, nil
}

// Value returns the sensitivity of a detector pair; higher is more
// sensitive
func (n *Norm) Value(pair models.DetectorPair) (float64, error) {
	if n.cache != nil {
		if v, ok := n.cache.Get(pair); ok {
			return v, nil
		}
	}

	var types [2]models.TypeOfModule
	var bins [2]models.ExpandedDetectionBin
	for side := 0; side < 2; side++ {
		key, err := n.table.HierarchicalKeyOf(pair[side])
		if err != nil {
			return 0, fmt.Errorf("failed to resolve detector %d: %w", pair[side], err)
		}
		types[side] = key.Type
		bins[side] = models.ExpandedDetectionBin{Module: key.Module, Element: key.Element, Energy: 0}
	}

	v, err := n.model.Efficiency(types, bins)
	if err != nil {
		return 0, fmt.Errorf("failed to query efficiency of pair %v: %w", pair, err)
	}
	if n.cache != nil {
		n.cache.Add(pair, v)
	}
	return v, nil
}

// Set is not supported on a derived sensitivity view
func (n *Norm) Set(pair models.DetectorPair, value float64) error {
	return fmt.Errorf("%w: cannot set sensitivity of pair %v", models.ErrUnsupportedOperation, pair)
}

// Increment is not supported on a derived sensitivity view
func (n *Norm) Increment(pair models.DetectorPair, value float64) error {
	return fmt.Errorf("%w: cannot increment sensitivity of pair %v", models.ErrUnsupportedOperation, pair)
}

// Clear is not supported on a derived sensitivity view
func (n *Norm) Clear(value float64) error {
	return fmt.Errorf("%w: cannot clear sensitivities", models.ErrUnsupportedOperation)
}

// CacheLen returns the number of cached pair weights
func (n *Norm) CacheLen() int {
	if n.cache == nil {
		return 0
	}
	return n.cache.Len()
}
