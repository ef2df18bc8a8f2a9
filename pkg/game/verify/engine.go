package verify

import (
	"errors"
	"fmt"
	"math"
	"time"

	"mapforge/pkg/engine/world"
	"mapforge/pkg/game/builder"
)

// Config holds scoring weights and thresholds. It is fixed for a run.
type Config struct {
	QuantitativeWeight   float64 `yaml:"quantitative_weight"`
	QualitativeWeight    float64 `yaml:"qualitative_weight"`
	PassThreshold        float64 `yaml:"pass_threshold"`
	CriticalCapMargin    float64 `yaml:"critical_cap_margin"`
	ApproxTolerance      float64 `yaml:"approx_tolerance"`
	ApproxMinSlack       int     `yaml:"approx_min_slack"`
	ConnectivityWeight   float64 `yaml:"connectivity_weight"`
	ConnectivityCritical bool    `yaml:"connectivity_critical"`
	DensityWeight        float64 `yaml:"density_weight"`
}

// DefaultConfig returns the standard scoring configuration
func DefaultConfig() Config {
	return Config{
		QuantitativeWeight: 0.6,
		QualitativeWeight:  0.4,
		PassThreshold:      7.0,
		CriticalCapMargin:  1.0,
		ApproxTolerance:    0.25,
		ApproxMinSlack:     1,
		ConnectivityWeight: 2.0,
		DensityWeight:      1.0,
	}
}

// Validate rejects configurations that cannot produce a meaningful score
func (c Config) Validate() error {
	switch {
	case c.QuantitativeWeight < 0 || c.QualitativeWeight < 0:
		return errors.New("verification weights must not be negative")
	case c.QuantitativeWeight == 0 && c.QualitativeWeight == 0:
		return errors.New("quantitative and qualitative weights are both zero")
	case c.PassThreshold < 0 || c.PassThreshold > 10:
		return fmt.Errorf("pass threshold %.2f outside 0-10", c.PassThreshold)
	case c.CriticalCapMargin <= 0:
		return errors.New("critical cap margin must be positive")
	case c.ApproxTolerance < 0 || c.ApproxMinSlack < 0:
		return errors.New("approximate tolerance must not be negative")
	case c.ConnectivityWeight < 0 || c.DensityWeight < 0:
		return errors.New("check weights must not be negative")
	}
	return nil
}

// Check categories
const (
	CategoryEntityCount  = "entity_count"
	CategoryConnectivity = "connectivity"
	CategoryDensity      = "density"
)

// Result flags
const (
	FlagQualitativeMissing = "qualitative_missing"
	FlagJudgmentMalformed  = "judgment_malformed"
	FlagCriticalFailure    = "critical_failure"
	FlagJudgeMismatch      = "judge_mismatch"
)

// Check is one deterministic test against the map
type Check struct {
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Passed   bool    `json:"passed"`
	Expected string  `json:"expected"`
	Actual   string  `json:"actual"`
	Weight   float64 `json:"weight"`
	Critical bool    `json:"critical"`
}

// Explanation lists what went right and wrong
type Explanation struct {
	Positive []string `json:"positive"`
	Negative []string `json:"negative"`
}

// Result is the outcome of verifying one map
type Result struct {
	ArtifactID        string      `json:"artifact_id"`
	Prompt            string      `json:"prompt"`
	Score             float64     `json:"score"`
	Passed            bool        `json:"passed"`
	QuantitativeScore float64     `json:"quantitative_score"`
	QualitativeScore  *float64    `json:"qualitative_score,omitempty"`
	Checks            []Check     `json:"checks"`
	Judgment          *Judgment   `json:"judgment,omitempty"`
	CriticalFailure   bool        `json:"critical_failure"`
	Flags             []string    `json:"flags,omitempty"`
	Explanation       Explanation `json:"explanation"`
	VerifiedAt        time.Time   `json:"verified_at"`
}

// HasFlag reports whether the result carries a flag
func (r Result) HasFlag(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// FailedChecks returns the checks that did not pass
func (r Result) FailedChecks() []Check {
	var out []Check
	for _, c := range r.Checks {
		if !c.Passed {
			out = append(out, c)
		}
	}
	return out
}

// Stage is a step of one verification run
type Stage int

const (
	StageQuantitative Stage = iota
	StageQualitative
	StageAggregate
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageQuantitative:
		return "quantitative"
	case StageQualitative:
		return "qualitative"
	case StageAggregate:
		return "aggregate"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// Engine scores artifacts. It has no I/O and is safe for concurrent use.
type Engine struct {
	cfg Config
	now func() time.Time
}

// NewEngine creates an engine; the config is validated once here
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, now: time.Now}, nil
}

// Config returns the engine's scoring configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// run carries the state of one verification through its stages
type run struct {
	stage    Stage
	art      *builder.Artifact
	manifest Manifest
	judgment *Judgment
	res      Result
}

// Verify scores an artifact against a manifest. A nil judgment means the
// qualitative stage is skipped and the result is flagged qualitative_missing.
func (e *Engine) Verify(art *builder.Artifact, m Manifest, j *Judgment) Result {
	r := &run{
		stage:    StageQuantitative,
		art:      art,
		manifest: m,
		judgment: j,
		res: Result{
			ArtifactID: art.ID,
			Prompt:     art.Prompt,
			VerifiedAt: e.now().UTC(),
		},
	}
	for r.stage != StageDone {
		switch r.stage {
		case StageQuantitative:
			e.quantitative(r)
			r.stage = StageQualitative
		case StageQualitative:
			e.qualitative(r)
			r.stage = StageAggregate
		case StageAggregate:
			e.aggregate(r)
			r.stage = StageDone
		}
	}
	return r.res
}

// VerifyReply parses a raw judge reply first; a malformed reply degrades to
// quantitative-only scoring
func (e *Engine) VerifyReply(art *builder.Artifact, m Manifest, reply string) (Result, error) {
	j, err := ParseJudgment(reply)
	if err != nil {
		res := e.Verify(art, m, nil)
		res.Flags = append(res.Flags, FlagJudgmentMalformed)
		return res, err
	}
	return e.Verify(art, m, &j), nil
}

func (e *Engine) quantitative(r *run) {
	counts := r.art.CountByType()
	for _, exp := range r.manifest.Entries {
		r.res.Checks = append(r.res.Checks, e.countCheck(exp, counts[exp.EntityType]))
	}

	if e.cfg.ConnectivityWeight > 0 || e.cfg.ConnectivityCritical {
		rep := r.art.Connectivity
		r.res.Checks = append(r.res.Checks, Check{
			Name:     CategoryConnectivity,
			Category: CategoryConnectivity,
			Passed:   r.art.Connected,
			Expected: "all passable tiles reachable",
			Actual:   fmt.Sprintf("%d/%d reachable", rep.Reachable, rep.Passable),
			Weight:   e.cfg.ConnectivityWeight,
			Critical: e.cfg.ConnectivityCritical,
		})
	}

	if r.manifest.Density != DensityNone && e.cfg.DensityWeight > 0 {
		if c, ok := e.densityCheck(r.art, r.manifest.Density); ok {
			r.res.Checks = append(r.res.Checks, c)
		}
	}

	var total, passed float64
	for _, c := range r.res.Checks {
		total += c.Weight
		if c.Passed {
			passed += c.Weight
		}
		if !c.Passed && c.Critical {
			r.res.CriticalFailure = true
		}
	}
	r.res.QuantitativeScore = 10
	if total > 0 {
		r.res.QuantitativeScore = round2(passed / total * 10)
	}
}

// tolerance is the allowed distance from an approximate expected count
func (e *Engine) tolerance(expected int) int {
	band := int(math.Ceil(float64(expected) * e.cfg.ApproxTolerance))
	if band < e.cfg.ApproxMinSlack {
		band = e.cfg.ApproxMinSlack
	}
	return band
}

func (e *Engine) countCheck(exp Expectation, actual int) Check {
	c := Check{
		Name:     CategoryEntityCount + ":" + exp.EntityType,
		Category: CategoryEntityCount,
		Actual:   fmt.Sprintf("%d", actual),
		Weight:   exp.Weight,
		Critical: exp.Critical,
	}
	if exp.Exact {
		c.Expected = fmt.Sprintf("exactly %d", exp.Expected)
		c.Passed = actual == exp.Expected
		return c
	}
	band := e.tolerance(exp.Expected)
	c.Expected = fmt.Sprintf("about %d (±%d)", exp.Expected, band)
	diff := actual - exp.Expected
	if diff < 0 {
		diff = -diff
	}
	c.Passed = diff <= band && (exp.Expected == 0 || actual > 0)
	return c
}

func (e *Engine) densityCheck(art *builder.Artifact, density string) (Check, bool) {
	g, err := art.Grid()
	if err != nil || g.Width()*g.Height() == 0 {
		return Check{}, false
	}
	ratio := float64(g.Count(world.Wall)) / float64(g.Width()*g.Height())
	c := Check{
		Name:     CategoryDensity,
		Category: CategoryDensity,
		Actual:   fmt.Sprintf("wall ratio %.2f", ratio),
		Weight:   e.cfg.DensityWeight,
	}
	switch density {
	case DensityDense:
		c.Expected = "wall ratio >= 0.40"
		c.Passed = ratio >= 0.4
	case DensityOpen:
		c.Expected = "wall ratio <= 0.60"
		c.Passed = ratio <= 0.6
	default:
		return Check{}, false
	}
	return c, true
}

func (e *Engine) qualitative(r *run) {
	if r.judgment == nil {
		r.res.Flags = append(r.res.Flags, FlagQualitativeMissing)
		return
	}
	j := *r.judgment
	conf := j.Confidence
	if math.IsNaN(conf) || conf < 1 || conf > 10 {
		r.res.Flags = append(r.res.Flags, FlagJudgmentMalformed)
		return
	}
	r.res.Judgment = &j
	r.res.QualitativeScore = &conf
	if !j.Matches {
		r.res.Flags = append(r.res.Flags, FlagJudgeMismatch)
	}
}

func (e *Engine) aggregate(r *run) {
	quant := r.res.QuantitativeScore
	score := quant
	if r.res.QualitativeScore != nil {
		qw, lw := e.cfg.QuantitativeWeight, e.cfg.QualitativeWeight
		score = (qw*quant + lw*(*r.res.QualitativeScore)) / (qw + lw)
	}

	if r.res.CriticalFailure {
		r.res.Flags = append(r.res.Flags, FlagCriticalFailure)
		score = math.Min(score, e.cfg.PassThreshold-e.cfg.CriticalCapMargin)
	}
	score = math.Max(0, math.Min(10, score))
	r.res.Score = round2(score)
	r.res.Passed = !r.res.CriticalFailure && r.res.Score >= e.cfg.PassThreshold

	for _, c := range r.res.Checks {
		line := fmt.Sprintf("%s: expected %s, got %s", c.Name, c.Expected, c.Actual)
		if c.Passed {
			r.res.Explanation.Positive = append(r.res.Explanation.Positive, line)
		} else {
			r.res.Explanation.Negative = append(r.res.Explanation.Negative, line)
		}
	}
	if r.res.Judgment != nil {
		r.res.Explanation.Positive = append(r.res.Explanation.Positive, r.res.Judgment.Positive...)
		r.res.Explanation.Negative = append(r.res.Explanation.Negative, r.res.Judgment.Negative...)
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
