package abundance

import (
	"proteodiff/domain/core"
)

// Status is the classification of one feature
type Status string

const (
	StatusIncreased      Status = "Increased"
	StatusDecreased      Status = "Decreased"
	StatusNotSignificant Status = "Not significant"
)

// FitMode selects the per-feature estimator
type FitMode string

const (
	FitLeastSquares FitMode = "ls"
	FitRobust       FitMode = "robust"
)

// ParseFitMode accepts the short and long spellings
func ParseFitMode(s string) (FitMode, bool) {
	switch s {
	case "ls", "least-squares", "leastsquares", "":
		return FitLeastSquares, true
	case "robust":
		return FitRobust, true
	}
	return "", false
}

// Result is the final record for one feature. Untestable features keep
// NaN statistics and Tested=false.
type Result struct {
	FeatureID     string  `json:"feature_id" db:"feature_id"`
	LogFC         float64 `json:"logFC" db:"log_fc"`
	AveExpr       float64 `json:"AveExpr" db:"ave_expr"`
	T             float64 `json:"t" db:"t"`
	ModeratedT    float64 `json:"moderated_t" db:"moderated_t"`
	PValue        float64 `json:"P.Value" db:"p_value"`
	AdjPValue     float64 `json:"adj.P.Val" db:"adj_p_value"`
	ModeratedVar  float64 `json:"moderated_var" db:"moderated_var"`
	ModeratedDF   float64 `json:"moderated_df" db:"moderated_df"`
	Status        Status  `json:"status" db:"status"`
	Tested        bool    `json:"tested" db:"tested"`
	UntestableWhy string  `json:"untestable_reason,omitempty" db:"untestable_reason"`
}

// Prior is the fitted scaled inverse chi-squared prior. D0 == 0 means no
// shrinkage was applied.
type Prior struct {
	D0  float64 `json:"d0" db:"prior_df"`
	S02 float64 `json:"s0_squared" db:"prior_var"`
}

// Settings records the configuration a table was produced with
type Settings struct {
	FitMode     FitMode `json:"fit_mode" db:"fit_mode"`
	Numerator   string  `json:"numerator" db:"numerator"`
	Denominator string  `json:"denominator" db:"denominator"`
	FCThreshold float64 `json:"fc_threshold" db:"fc_threshold"`
	Alpha       float64 `json:"alpha" db:"alpha"`
	Intercept   bool    `json:"intercept" db:"intercept"`
}

// ResultTable is produced atomically by one pipeline invocation
type ResultTable struct {
	RunID       core.RunID     `json:"run_id"`
	Fingerprint core.Hash      `json:"fingerprint"`
	CreatedAt   core.Timestamp `json:"created_at"`
	Settings    Settings       `json:"settings"`
	Prior       Prior          `json:"prior"`
	Warnings    []string       `json:"warnings,omitempty"`
	Results     []Result       `json:"results"`
}

// Summary counts features per status
type Summary struct {
	Total      int `json:"total"`
	Tested     int `json:"tested"`
	Untestable int `json:"untestable"`
	Increased  int `json:"increased"`
	Decreased  int `json:"decreased"`
}

// Summarize counts features per status
func (t *ResultTable) Summarize() Summary {
	s := Summary{Total: len(t.Results)}
	for _, r := range t.Results {
		if !r.Tested {
			s.Untestable++
			continue
		}
		s.Tested++
		switch r.Status {
		case StatusIncreased:
			s.Increased++
		case StatusDecreased:
			s.Decreased++
		}
	}
	return s
}

// Lookup returns the result for a feature id
func (t *ResultTable) Lookup(featureID string) (Result, bool) {
	for _, r := range t.Results {
		if r.FeatureID == featureID {
			return r, true
		}
	}
	return Result{}, false
}
