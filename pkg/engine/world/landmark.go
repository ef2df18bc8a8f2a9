package world

import "strings"

// Landmark kinds
const (
	LandmarkRoom   = "room"
	LandmarkPlayer = "player"
	LandmarkWater  = "water"
	LandmarkCustom = "custom"
)

// Landmark is a named reference point with an optional bounding region
type Landmark struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Point  Point  `json:"point"`
	Region *Rect  `json:"region,omitempty"`
}

// LandmarkRegistry maps names to landmarks for one session.
// Names are unique case-insensitively; the original spelling is kept.
type LandmarkRegistry struct {
	byKey map[string]Landmark
	order []string
}

// NewLandmarkRegistry creates an empty registry
func NewLandmarkRegistry() *LandmarkRegistry {
	return &LandmarkRegistry{byKey: make(map[string]Landmark)}
}

func landmarkKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Has reports whether a landmark with this name exists
func (r *LandmarkRegistry) Has(name string) bool {
	_, ok := r.byKey[landmarkKey(name)]
	return ok
}

// Add registers a new landmark. Empty and already-used names are rejected.
func (r *LandmarkRegistry) Add(lm Landmark) error {
	key := landmarkKey(lm.Name)
	if key == "" {
		return Errorf(KindSchemaValidation, "landmark name must not be empty")
	}
	if _, ok := r.byKey[key]; ok {
		return Errorf(KindDuplicateLandmark, "landmark %q already exists", lm.Name)
	}
	lm.Name = strings.TrimSpace(lm.Name)
	r.byKey[key] = lm
	r.order = append(r.order, key)
	return nil
}

// Lookup returns the landmark for name or an UnknownLandmarkError
func (r *LandmarkRegistry) Lookup(name string) (Landmark, error) {
	lm, ok := r.byKey[landmarkKey(name)]
	if !ok {
		return Landmark{}, Errorf(KindUnknownLandmark, "unknown landmark %q", name)
	}
	return lm, nil
}

// Names returns landmark names in insertion order
func (r *LandmarkRegistry) Names() []string {
	out := make([]string, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.byKey[k].Name)
	}
	return out
}

// All returns every landmark in insertion order
func (r *LandmarkRegistry) All() []Landmark {
	out := make([]Landmark, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.byKey[k])
	}
	return out
}

// Len returns the number of registered landmarks
func (r *LandmarkRegistry) Len() int {
	return len(r.order)
}

// Clone returns an independent copy of the registry
func (r *LandmarkRegistry) Clone() *LandmarkRegistry {
	c := NewLandmarkRegistry()
	for _, k := range r.order {
		lm := r.byKey[k]
		if lm.Region != nil {
			reg := *lm.Region
			lm.Region = &reg
		}
		c.byKey[k] = lm
		c.order = append(c.order, k)
	}
	return c
}
