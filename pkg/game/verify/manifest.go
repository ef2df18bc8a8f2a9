// Package verify scores a finished map against the prompt that produced it.
// Deterministic checks (entity counts, connectivity, density) are combined
// with an optional qualitative judgment into one 0-10 score.
package verify

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"mapforge/pkg/game/builder"
)

// Expectation is one expected entity count
type Expectation struct {
	EntityType string  `yaml:"entity_type" json:"entity_type"`
	Expected   int     `yaml:"expected" json:"expected"`
	Exact      bool    `yaml:"exact" json:"exact"`
	Weight     float64 `yaml:"weight" json:"weight"`
	Critical   bool    `yaml:"critical" json:"critical"`
}

// Density hints derived from the prompt
const (
	DensityNone  = ""
	DensityDense = "dense"
	DensityOpen  = "open"
)

// Manifest is the expected-entity table for one prompt. Verification only
// reads it.
type Manifest struct {
	Prompt  string        `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	Entries []Expectation `yaml:"entries" json:"entries"`
	Density string        `yaml:"density,omitempty" json:"density,omitempty"`
}

// Entry returns the expectation for an entity type
func (m Manifest) Entry(entityType string) (Expectation, bool) {
	for _, e := range m.Entries {
		if e.EntityType == entityType {
			return e, true
		}
	}
	return Expectation{}, false
}

// entity synonyms; the first word of each list is the canonical type
var entityWords = map[string][]string{
	"player":  {"player", "hero", "adventurer"},
	"ogre":    {"ogre", "troll"},
	"goblin":  {"goblin", "orc"},
	"shop":    {"shop", "store", "merchant", "shopkeeper", "vendor"},
	"chest":   {"chest", "treasure", "loot"},
	"tomb":    {"tomb", "grave", "sarcophagus", "coffin"},
	"spirit":  {"spirit", "ghost", "wraith", "specter", "spectre"},
	"human":   {"human", "villager", "person", "guard", "npc"},
	"monster": {"monster", "enemy", "creature"},
}

// CanonicalEntity maps an entity word or synonym to its canonical type
func CanonicalEntity(word string) (string, bool) {
	w := strings.ToLower(strings.TrimSpace(word))
	for typ, words := range entityWords {
		for _, syn := range words {
			if w == syn {
				return typ, true
			}
		}
	}
	return "", false
}

var numberWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "single": 1, "two": 2, "three": 3, "four": 4,
	"five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"a couple of": 2, "a pair of": 2,
}

var vagueWords = map[string]int{
	"some": 3, "several": 3, "a few": 3, "few": 3, "multiple": 3, "many": 5, "lots of": 5, "numerous": 5,
}

var (
	denseWords = regexp.MustCompile(`\b(dense|maze|labyrinth|cramped|tight|narrow|claustrophobic)\b`)
	openWords  = regexp.MustCompile(`\b(open|field|spacious|wide|vast|sprawling)\b`)
)

// quantifier alternatives ordered longest first so "a few" beats "a"
var quantifierPattern = func() string {
	var qs []string
	for k := range numberWords {
		qs = append(qs, regexp.QuoteMeta(k))
	}
	for k := range vagueWords {
		qs = append(qs, regexp.QuoteMeta(k))
	}
	sort.Slice(qs, func(i, j int) bool { return len(qs[i]) > len(qs[j]) })
	return `\d+|` + strings.Join(qs, "|")
}()

// mentionPatterns holds, per synonym: an optional quantifier, at most one
// adjective, then the word in singular or plural
var mentionPatterns = func() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp)
	for _, words := range entityWords {
		for _, w := range words {
			out[w] = regexp.MustCompile(`\b(?:(` + quantifierPattern + `)\s+(?:[a-z\-]+\s+)??)?` +
				regexp.QuoteMeta(w) + `(s|es)?\b`)
		}
	}
	return out
}()

type mention struct {
	count  int
	exact  bool
	plural bool
	stated bool
}

// DeriveManifest builds expectations from keywords and quantities in the
// prompt. Digits and number words are exact and critical; "a"/"an" is exact;
// vague quantifiers and bare plurals are approximate. The player is always
// an exact critical entry of 1.
func DeriveManifest(prompt string) Manifest {
	text := strings.ToLower(prompt)
	m := Manifest{Prompt: prompt}

	types := make([]string, 0, len(entityWords))
	for t := range entityWords {
		types = append(types, t)
	}
	sort.Strings(types)

	for _, typ := range types {
		if typ == builder.PlayerType {
			continue
		}
		found := mentions(text, entityWords[typ])
		if len(found) == 0 {
			continue
		}
		m.Entries = append(m.Entries, combine(typ, found))
	}

	m.Entries = append([]Expectation{{
		EntityType: builder.PlayerType, Expected: 1, Exact: true, Weight: 1, Critical: true,
	}}, m.Entries...)

	switch {
	case denseWords.MatchString(text):
		m.Density = DensityDense
	case openWords.MatchString(text):
		m.Density = DensityOpen
	}
	return m
}

// mentions finds every synonym match; overlapping matches such as
// "treasure" inside "two treasure chests" count once, the longest wins
func mentions(text string, words []string) []mention {
	type span struct {
		start, end int
		m          mention
	}
	var spans []span
	for _, word := range words {
		for _, idx := range mentionPatterns[word].FindAllStringSubmatchIndex(text, -1) {
			q := ""
			if idx[2] >= 0 {
				q = text[idx[2]:idx[3]]
			}
			spans = append(spans, span{idx[0], idx[1], parseMention(q, idx[4] >= 0)})
		}
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})
	var out []mention
	lastEnd := -1
	for _, s := range spans {
		if s.start < lastEnd {
			continue
		}
		out = append(out, s.m)
		lastEnd = s.end
	}
	return out
}

func parseMention(q string, plural bool) mention {
	q = strings.TrimSpace(q)
	if q == "" {
		if plural {
			return mention{count: 2, plural: true}
		}
		return mention{count: 1}
	}
	if n, err := strconv.Atoi(q); err == nil {
		return mention{count: n, exact: true, stated: true, plural: plural}
	}
	if n, ok := vagueWords[q]; ok {
		return mention{count: n, plural: plural}
	}
	n := numberWords[q]
	return mention{count: n, exact: true, stated: q != "a" && q != "an", plural: plural}
}

// combine sums stated counts across mentions; without any stated count the
// largest implied count wins
func combine(typ string, found []mention) Expectation {
	sum, stated, exact := 0, false, true
	maxCount := 0
	for _, f := range found {
		if f.stated {
			sum += f.count
			stated = true
		}
		if f.count > maxCount {
			maxCount = f.count
		}
		if !f.exact {
			exact = false
		}
	}
	if stated {
		return Expectation{EntityType: typ, Expected: sum, Exact: true, Weight: 2, Critical: true}
	}
	return Expectation{EntityType: typ, Expected: maxCount, Exact: exact, Weight: 1}
}

// ParseManifest reads a YAML manifest. Missing weights default to 1 and a
// player entry is added when absent.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	hasPlayer := false
	for i := range m.Entries {
		e := &m.Entries[i]
		typ, ok := builder.NormalizeEntityType(e.EntityType)
		if !ok {
			return Manifest{}, fmt.Errorf("manifest entry %d: invalid entity type %q", i, e.EntityType)
		}
		e.EntityType = typ
		if e.Expected < 0 {
			return Manifest{}, fmt.Errorf("manifest entry %s: expected count must not be negative", typ)
		}
		if e.Weight == 0 {
			e.Weight = 1
		}
		if typ == builder.PlayerType {
			hasPlayer = true
		}
	}
	if !hasPlayer {
		m.Entries = append([]Expectation{{
			EntityType: builder.PlayerType, Expected: 1, Exact: true, Weight: 1, Critical: true,
		}}, m.Entries...)
	}
	return m, nil
}

// LoadManifest reads a YAML manifest file
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// Marshal encodes the manifest as YAML
func (m Manifest) Marshal() ([]byte, error) {
	return yaml.Marshal(m)
}
