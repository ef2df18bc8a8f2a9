package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"mapforge/pkg/game/builder"
	"mapforge/pkg/game/verify"
)

// JSONStore keeps every record in one local JSON file
type JSONStore struct {
	filePath string
	mutex    sync.RWMutex
	writeMu  sync.Mutex
	data     *jsonData
}

// jsonData represents the structure of the JSON database
type jsonData struct {
	Artifacts     map[string]json.RawMessage `json:"artifacts"`
	Verifications map[string]json.RawMessage `json:"verifications"`
}

// NewJSONStore opens or creates the JSON file at filePath
func NewJSONStore(filePath string) (*JSONStore, error) {
	store := &JSONStore{
		filePath: filePath,
		data: &jsonData{
			Artifacts:     make(map[string]json.RawMessage),
			Verifications: make(map[string]json.RawMessage),
		},
	}

	if _, err := os.Stat(filePath); err == nil {
		if err := store.loadFromFile(); err != nil {
			return nil, fmt.Errorf("failed to load JSON store: %w", err)
		}
	} else {
		if err := store.saveToFile(); err != nil {
			return nil, fmt.Errorf("failed to create JSON store file: %w", err)
		}
	}
	return store, nil
}

func (js *JSONStore) loadFromFile() error {
	js.mutex.Lock()
	defer js.mutex.Unlock()

	file, err := os.ReadFile(js.filePath)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(file, js.data); err != nil {
		return err
	}
	if js.data.Artifacts == nil {
		js.data.Artifacts = make(map[string]json.RawMessage)
	}
	if js.data.Verifications == nil {
		js.data.Verifications = make(map[string]json.RawMessage)
	}
	return nil
}

// saveToFile writes the whole database; callers must not hold the lock
func (js *JSONStore) saveToFile() error {
	js.writeMu.Lock()
	defer js.writeMu.Unlock()

	js.mutex.RLock()
	data, err := json.MarshalIndent(js.data, "", "  ")
	js.mutex.RUnlock()
	if err != nil {
		return err
	}

	tmp := js.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, js.filePath)
}

// SaveArtifact stores or replaces a map
func (js *JSONStore) SaveArtifact(ctx context.Context, a *builder.Artifact) error {
	if err := checkArtifact(a); err != nil {
		return err
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}
	js.mutex.Lock()
	js.data.Artifacts[a.ID] = raw
	js.mutex.Unlock()
	return js.saveToFile()
}

// LoadArtifact loads a map by id
func (js *JSONStore) LoadArtifact(ctx context.Context, id string) (*builder.Artifact, error) {
	js.mutex.RLock()
	raw, exists := js.data.Artifacts[id]
	js.mutex.RUnlock()
	if !exists {
		return nil, fmt.Errorf("artifact %s: %w", id, ErrNotFound)
	}
	return builder.DecodeArtifact(raw)
}

// ListArtifacts lists every stored map, oldest first
func (js *JSONStore) ListArtifacts(ctx context.Context) ([]Summary, error) {
	js.mutex.RLock()
	defer js.mutex.RUnlock()

	out := make([]Summary, 0, len(js.data.Artifacts))
	for id, raw := range js.data.Artifacts {
		var s Summary
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("artifact %s: %w", id, err)
		}
		out = append(out, s)
	}
	sortSummaries(out)
	return out, nil
}

// SaveVerification stores the latest verification of a map
func (js *JSONStore) SaveVerification(ctx context.Context, r verify.Result) error {
	if r.ArtifactID == "" {
		return fmt.Errorf("verification without artifact id")
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal verification: %w", err)
	}
	js.mutex.Lock()
	js.data.Verifications[r.ArtifactID] = raw
	js.mutex.Unlock()
	return js.saveToFile()
}

// LoadVerification loads the verification of a map
func (js *JSONStore) LoadVerification(ctx context.Context, artifactID string) (verify.Result, error) {
	js.mutex.RLock()
	raw, exists := js.data.Verifications[artifactID]
	js.mutex.RUnlock()
	if !exists {
		return verify.Result{}, fmt.Errorf("verification of %s: %w", artifactID, ErrNotFound)
	}
	return decodeVerification(raw)
}

// Close closes the store (no-op for JSON store)
func (js *JSONStore) Close() error {
	return nil
}
