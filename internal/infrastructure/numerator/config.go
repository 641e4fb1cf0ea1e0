package numerator

import (
	"slices"

	corenumerator "bookkeeping/internal/core/numerator"
	"bookkeeping/internal/core/tx"
	"bookkeeping/pkg/config"
)

// NewFromConfig creates a Service numbering by the application settings:
// SEQUENCE_MAX_VALUE bounds every series, and each entry of
// cfg.Sequences.Series configures its own.
func NewFromConfig(repo corenumerator.Repository, txm tx.Manager, cfg *config.Config, opts ...Option) (*Service, error) {
	defaults := corenumerator.Config{MaxValue: cfg.Sequences.MaxValue}
	s := New(repo, txm, append([]Option{WithDefaults(defaults)}, opts...)...)

	entityTypes := make([]string, 0, len(cfg.Sequences.Series))
	for entityType := range cfg.Sequences.Series {
		entityTypes = append(entityTypes, entityType)
	}
	slices.Sort(entityTypes)
	for _, entityType := range entityTypes {
		sc := cfg.Sequences.Series[entityType]
		series := corenumerator.Config{
			Prefix:      sc.Prefix,
			PadWidth:    sc.PadWidth,
			MinValue:    sc.MinValue,
			MaxValue:    sc.MaxValue,
			IncrementBy: sc.IncrementBy,
		}
		if series.MaxValue == 0 {
			series.MaxValue = cfg.Sequences.MaxValue
		}
		if err := s.Configure(entityType, series); err != nil {
			return nil, err
		}
	}
	return s, nil
}
