package verify

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapforge/pkg/engine/world"
	"mapforge/pkg/game/builder"
)

// buildArtifact makes a 20x15 map with one 10x8 room at (2,2), the player
// and the given number of goblins inside it
func buildArtifact(t *testing.T, prompt string, goblins int) *builder.Artifact {
	t.Helper()
	b := builder.New(builder.DefaultLimits())
	require.NoError(t, b.CreateGrid(20, 15))
	_, _, err := b.PlaceRoom(builder.RoomSpec{Position: "(2,2)", Width: 10, Height: 8, ID: "hall"})
	require.NoError(t, err)
	_, _, err = b.PlaceEntity(builder.EntitySpec{Type: "player", Position: "(5,5)"})
	require.NoError(t, err)
	for i := 0; i < goblins; i++ {
		_, _, err = b.PlaceEntity(builder.EntitySpec{Type: "goblin", Position: world.Pt(3+i, 3).String()})
		require.NoError(t, err)
	}
	_, err = b.Finalize()
	require.NoError(t, err)
	art, err := b.Artifact(prompt, "test")
	require.NoError(t, err)
	return art
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig())
	require.NoError(t, err)
	return e
}

func TestDeriveManifest(t *testing.T) {
	m := DeriveManifest("A crypt with 3 goblins, an ogre, two treasure chests and some ghosts")

	player, ok := m.Entry("player")
	require.True(t, ok)
	assert.Equal(t, Expectation{EntityType: "player", Expected: 1, Exact: true, Weight: 1, Critical: true}, player)
	assert.Equal(t, "player", m.Entries[0].EntityType)

	goblin, ok := m.Entry("goblin")
	require.True(t, ok)
	assert.Equal(t, 3, goblin.Expected)
	assert.True(t, goblin.Exact)
	assert.True(t, goblin.Critical)

	ogre, ok := m.Entry("ogre")
	require.True(t, ok)
	assert.Equal(t, 1, ogre.Expected)
	assert.True(t, ogre.Exact)
	assert.False(t, ogre.Critical)

	chest, ok := m.Entry("chest")
	require.True(t, ok)
	assert.Equal(t, 2, chest.Expected, "treasure and chest in one phrase count once")

	spirit, ok := m.Entry("spirit")
	require.True(t, ok)
	assert.False(t, spirit.Exact)
	assert.Equal(t, 3, spirit.Expected)

	_, ok = m.Entry("shop")
	assert.False(t, ok)
	assert.Equal(t, DensityNone, m.Density)
}

func TestDeriveManifestQuantifiers(t *testing.T) {
	tests := []struct {
		prompt   string
		typ      string
		expected int
		exact    bool
	}{
		{"a few angry goblins", "goblin", 3, false},
		{"many orcs", "goblin", 5, false},
		{"goblins everywhere", "goblin", 2, false},
		{"a shop", "shop", 1, true},
		{"a merchant and 2 stores", "shop", 2, true},
		{"one tomb and one grave", "tomb", 2, true},
		{"5 spirits", "spirit", 5, true},
	}
	for _, tt := range tests {
		t.Run(tt.prompt, func(t *testing.T) {
			e, ok := DeriveManifest(tt.prompt).Entry(tt.typ)
			require.True(t, ok)
			assert.Equal(t, tt.expected, e.Expected)
			assert.Equal(t, tt.exact, e.Exact)
		})
	}
}

func TestDeriveManifestDensity(t *testing.T) {
	assert.Equal(t, DensityDense, DeriveManifest("a dense maze of tunnels").Density)
	assert.Equal(t, DensityOpen, DeriveManifest("an open field with a hut").Density)
}

func TestParseManifestYAML(t *testing.T) {
	data := []byte(`
prompt: goblin camp
density: open
entries:
  - entity_type: Goblin
    expected: 4
  - entity_type: chest
    expected: 2
    exact: true
    critical: true
    weight: 3
`)
	m, err := ParseManifest(data)
	require.NoError(t, err)
	require.Len(t, m.Entries, 3)
	assert.Equal(t, "player", m.Entries[0].EntityType)
	assert.Equal(t, Expectation{EntityType: "goblin", Expected: 4, Weight: 1}, m.Entries[1])
	assert.Equal(t, 3.0, m.Entries[2].Weight)
	assert.Equal(t, DensityOpen, m.Density)

	_, err = ParseManifest([]byte("entries:\n  - entity_type: \"9lives\"\n"))
	assert.Error(t, err)
	_, err = ParseManifest([]byte("entries:\n  - entity_type: goblin\n    expected: -1\n"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "m.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	loaded, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, m, loaded)
}

func TestParseJudgment(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  Judgment
	}{
		{
			name:  "plain",
			reply: `{"matches": true, "confidence": 8, "positive": ["two rooms"], "negative": []}`,
			want:  Judgment{Matches: true, Confidence: 8, Positive: []string{"two rooms"}},
		},
		{
			name:  "fenced with prose",
			reply: "Here is my assessment:\n```json\n{\"matches_request\": false, \"confidence\": \"4\", \"negative_aspects\": [\"no water\"]}\n```\nThanks",
			want:  Judgment{Matches: false, Confidence: 4, Negative: []string{"no water"}},
		},
		{
			name:  "aliases and missing elements",
			reply: `Result: {"confidence": 6.5, "positive_aspects": ["layout"], "issues": ["cramped"], "missing_elements": ["shop"]}`,
			want:  Judgment{Matches: true, Confidence: 6.5, Positive: []string{"layout"}, Negative: []string{"cramped", "shop"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJudgment(tt.reply)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseJudgmentMalformed(t *testing.T) {
	for _, reply := range []string{
		"I think it is fine",
		`{"matches": true}`,
		`{"matches": true, "confidence": 11}`,
		`{"matches": true, "confidence": 0}`,
		`{"matches": true, "confidence": "high"}`,
		`{"matches": true, "confidence": "NaN"}`,
		`{"matches": true, "confidence": "Inf"}`,
		`{"matches": true, "score": "-Inf/10"}`,
		`{"matches": tru`,
	} {
		_, err := ParseJudgment(reply)
		assert.ErrorIs(t, err, world.ErrJudgmentParse, reply)
	}
}

func TestCriticalFailureCapsScore(t *testing.T) {
	e := newEngine(t)
	art := buildArtifact(t, "three goblins", 2)
	m := Manifest{Entries: []Expectation{
		{EntityType: "player", Expected: 1, Exact: true, Weight: 1, Critical: true},
		{EntityType: "goblin", Expected: 3, Exact: true, Weight: 2, Critical: true},
	}}

	res := e.Verify(art, m, &Judgment{Matches: true, Confidence: 10})
	assert.False(t, res.Passed)
	assert.True(t, res.CriticalFailure)
	assert.LessOrEqual(t, res.Score, 6.0)
	assert.True(t, res.HasFlag(FlagCriticalFailure))
	failed := res.FailedChecks()
	require.Len(t, failed, 1)
	assert.Equal(t, "entity_count:goblin", failed[0].Name)
	assert.Equal(t, "exactly 3", failed[0].Expected)
	assert.Equal(t, "2", failed[0].Actual)
}

func TestNonFiniteJudgmentIsIgnored(t *testing.T) {
	e := newEngine(t)
	art := buildArtifact(t, "three goblins", 3)
	m := DeriveManifest(art.Prompt)

	res := e.Verify(art, m, &Judgment{Matches: true, Confidence: math.NaN()})
	assert.False(t, math.IsNaN(res.Score))
	assert.GreaterOrEqual(t, res.Score, 0.0)
	assert.LessOrEqual(t, res.Score, 10.0)
	assert.Nil(t, res.QualitativeScore)
	assert.True(t, res.HasFlag(FlagJudgmentMalformed))

	_, err := json.Marshal(res)
	assert.NoError(t, err)
}

func TestPassingMapCombinesScores(t *testing.T) {
	e := newEngine(t)
	art := buildArtifact(t, "three goblins", 3)
	m := DeriveManifest(art.Prompt)

	res := e.Verify(art, m, &Judgment{Matches: true, Confidence: 8, Positive: []string{"fits"}})
	assert.True(t, res.Passed)
	assert.Equal(t, 10.0, res.QuantitativeScore)
	// 0.6*10 + 0.4*8
	assert.InDelta(t, 9.2, res.Score, 0.001)
	require.NotNil(t, res.QualitativeScore)
	assert.Equal(t, 8.0, *res.QualitativeScore)
	assert.Contains(t, res.Explanation.Positive, "fits")
	assert.Empty(t, res.Explanation.Negative)
	assert.Equal(t, art.ID, res.ArtifactID)
}

func TestMissingJudgmentFallsBackToQuantitative(t *testing.T) {
	e := newEngine(t)
	art := buildArtifact(t, "three goblins", 3)

	res := e.Verify(art, DeriveManifest(art.Prompt), nil)
	assert.True(t, res.HasFlag(FlagQualitativeMissing))
	assert.Nil(t, res.QualitativeScore)
	assert.Equal(t, res.QuantitativeScore, res.Score)
	assert.True(t, res.Passed)

	res, err := e.VerifyReply(art, DeriveManifest(art.Prompt), "no json here")
	assert.ErrorIs(t, err, world.ErrJudgmentParse)
	assert.True(t, res.HasFlag(FlagQualitativeMissing))
	assert.True(t, res.HasFlag(FlagJudgmentMalformed))
	assert.Equal(t, 10.0, res.Score)
}

func TestApproximateTolerance(t *testing.T) {
	e := newEngine(t)
	tests := []struct {
		expected, actual int
		pass             bool
	}{
		{3, 2, true},
		{3, 4, true},
		{3, 5, false},
		{8, 6, true},
		{8, 5, false},
		{2, 0, false},
	}
	for _, tt := range tests {
		c := e.countCheck(Expectation{EntityType: "goblin", Expected: tt.expected, Weight: 1}, tt.actual)
		assert.Equal(t, tt.pass, c.Passed, "expected %d actual %d", tt.expected, tt.actual)
	}
}

func TestConnectivityAndDensityChecks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConnectivityCritical = true
	e, err := NewEngine(cfg)
	require.NoError(t, err)

	art := buildArtifact(t, "a dense maze", 0)
	res := e.Verify(art, DeriveManifest(art.Prompt), nil)
	names := map[string]bool{}
	for _, c := range res.Checks {
		names[c.Name] = c.Passed
	}
	assert.True(t, names[CategoryConnectivity])
	assert.True(t, names[CategoryDensity], "one small room on a 20x15 grid is mostly wall")

	art = buildArtifact(t, "an open field", 0)
	art.Connected = false
	res = e.Verify(art, DeriveManifest(art.Prompt), &Judgment{Matches: true, Confidence: 9})
	assert.False(t, res.Passed)
	assert.True(t, res.CriticalFailure)
	assert.Len(t, res.FailedChecks(), 2)
}

func TestConfigValidate(t *testing.T) {
	bad := []func(*Config){
		func(c *Config) { c.QuantitativeWeight = -1 },
		func(c *Config) { c.QuantitativeWeight, c.QualitativeWeight = 0, 0 },
		func(c *Config) { c.PassThreshold = 11 },
		func(c *Config) { c.ApproxTolerance = -0.1 },
		func(c *Config) { c.CriticalCapMargin = 0 },
	}
	for i, mutate := range bad {
		cfg := DefaultConfig()
		mutate(&cfg)
		_, err := NewEngine(cfg)
		assert.Error(t, err, "case %d", i)
	}
	assert.NoError(t, DefaultConfig().Validate())
}

func TestSummarize(t *testing.T) {
	e := newEngine(t)
	pass := buildArtifact(t, "three goblins", 3)
	fail := buildArtifact(t, "three goblins", 1)
	m := DeriveManifest("three goblins")

	results := []Result{
		e.Verify(pass, m, &Judgment{Matches: true, Confidence: 8}),
		e.Verify(fail, m, nil),
		e.Verify(fail, m, nil),
	}
	s := Summarize(results)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Passed)
	assert.Equal(t, 2, s.Failed)
	require.Len(t, s.CommonFailures, 2)
	assert.Equal(t, 2, s.CommonFailures[0].Count)
	cats := []string{s.CommonFailures[0].Category, s.CommonFailures[1].Category}
	assert.ElementsMatch(t, []string{"entity_count:goblin", FlagQualitativeMissing}, cats)
	assert.InDelta(t, 66.67, s.CommonFailures[0].Percent, 0.01)

	assert.Equal(t, Summary{}, Summarize(nil))
}

type stubJudge struct {
	reply string
	err   error
	seen  string
}

func (s *stubJudge) Name() string { return "stub" }

func (s *stubJudge) Judge(ctx context.Context, prompt, rendering string) (string, error) {
	s.seen = rendering
	return s.reply, s.err
}

func TestVerifierWithJudge(t *testing.T) {
	art := buildArtifact(t, "three goblins", 3)
	render := func(a *builder.Artifact) string { return "map:" + a.ID }

	judge := &stubJudge{reply: `{"matches":true,"confidence":7}`}
	v := NewVerifier(newEngine(t), judge, render, nil)
	res, err := v.Verify(context.Background(), art, nil)
	require.NoError(t, err)
	assert.Equal(t, "map:"+art.ID, judge.seen)
	assert.InDelta(t, 8.8, res.Score, 0.001)

	judge.reply = "garbage"
	res, err = v.Verify(context.Background(), art, nil)
	require.NoError(t, err, "malformed replies degrade instead of failing")
	assert.True(t, res.HasFlag(FlagQualitativeMissing))

	judge.err = world.Errorf(world.KindExternalService, "judge unavailable")
	_, err = v.Verify(context.Background(), art, nil)
	assert.True(t, errors.Is(err, world.ErrExternalService))
}

func TestFileJudge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "judgment.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"matches":false,"confidence":3}`), 0o644))

	art := buildArtifact(t, "three goblins", 3)
	m := DeriveManifest(art.Prompt)
	v := NewVerifier(newEngine(t), FileJudge{Path: path}, nil, nil)
	res, err := v.Verify(context.Background(), art, &m)
	require.NoError(t, err)
	assert.True(t, res.HasFlag(FlagJudgeMismatch))
	// 0.6*10 + 0.4*3
	assert.InDelta(t, 7.2, res.Score, 0.001)
}
