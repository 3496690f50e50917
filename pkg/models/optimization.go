package models

// OptimizationConfig is the process-wide tuning state for the cost
// optimization layer. It is persisted under a fixed settings key and
// re-persisted after every mutation.
type OptimizationConfig struct {
	EnableLocalModel    bool    `json:"enable_local_model"`
	EnableCaching       bool    `json:"enable_caching"`
	EnableOptimization  bool    `json:"enable_optimization"`
	DailyCostLimit      float64 `json:"daily_cost_limit"`
	CacheSizeLimit      int     `json:"cache_size_limit"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	FallbackEnabled     bool    `json:"fallback_enabled"`
}

// DefaultOptimizationConfig returns the first-boot defaults.
func DefaultOptimizationConfig() OptimizationConfig {
	return OptimizationConfig{
		EnableLocalModel:    true,
		EnableCaching:       true,
		EnableOptimization:  true,
		DailyCostLimit:      10.0,
		CacheSizeLimit:      1000,
		SimilarityThreshold: 0.85,
		FallbackEnabled:     true,
	}
}

// OptimizationConfigPatch carries a partial config update; nil fields are
// left unchanged.
type OptimizationConfigPatch struct {
	EnableLocalModel    *bool    `json:"enable_local_model,omitempty"`
	EnableCaching       *bool    `json:"enable_caching,omitempty"`
	EnableOptimization  *bool    `json:"enable_optimization,omitempty"`
	DailyCostLimit      *float64 `json:"daily_cost_limit,omitempty"`
	CacheSizeLimit      *int     `json:"cache_size_limit,omitempty"`
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`
	FallbackEnabled     *bool    `json:"fallback_enabled,omitempty"`
}

// Apply returns a copy of cfg with the patch's non-nil fields applied.
func (p OptimizationConfigPatch) Apply(cfg OptimizationConfig) OptimizationConfig {
	if p.EnableLocalModel != nil {
		cfg.EnableLocalModel = *p.EnableLocalModel
	}
	if p.EnableCaching != nil {
		cfg.EnableCaching = *p.EnableCaching
	}
	if p.EnableOptimization != nil {
		cfg.EnableOptimization = *p.EnableOptimization
	}
	if p.DailyCostLimit != nil {
		cfg.DailyCostLimit = *p.DailyCostLimit
	}
	if p.CacheSizeLimit != nil {
		cfg.CacheSizeLimit = *p.CacheSizeLimit
	}
	if p.SimilarityThreshold != nil {
		cfg.SimilarityThreshold = *p.SimilarityThreshold
	}
	if p.FallbackEnabled != nil {
		cfg.FallbackEnabled = *p.FallbackEnabled
	}
	return cfg
}
