// Package store persists finished maps and their verification results.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"mapforge/pkg/game/builder"
	"mapforge/pkg/game/verify"
)

// ErrNotFound is returned when an id has no record
var ErrNotFound = errors.New("not found")

// Summary is the listing view of a stored map
type Summary struct {
	ID          string    `json:"id"`
	Prompt      string    `json:"prompt"`
	Generator   string    `json:"generator,omitempty"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Connected   bool      `json:"connected"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Storage defines the interface for map persistence
type Storage interface {
	SaveArtifact(ctx context.Context, a *builder.Artifact) error
	LoadArtifact(ctx context.Context, id string) (*builder.Artifact, error)
	ListArtifacts(ctx context.Context) ([]Summary, error)
	SaveVerification(ctx context.Context, r verify.Result) error
	LoadVerification(ctx context.Context, artifactID string) (verify.Result, error)
	Close() error
}

// Drivers
const (
	DriverJSON     = "json"
	DriverBolt     = "bolt"
	DriverPostgres = "postgres"
)

// Config selects and configures a driver
type Config struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// Open returns the store named by cfg.Driver
func Open(cfg Config) (Storage, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", DriverJSON:
		path := cfg.Path
		if path == "" {
			path = "mapforge.json"
		}
		s, err := NewJSONStore(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverBolt:
		path := cfg.Path
		if path == "" {
			path = "mapforge.db"
		}
		s, err := NewBoltStore(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres storage needs a dsn")
		}
		s, err := NewPostgresStore(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func summarize(a *builder.Artifact) Summary {
	return Summary{
		ID:          a.ID,
		Prompt:      a.Prompt,
		Generator:   a.Generator,
		Width:       a.Width,
		Height:      a.Height,
		Connected:   a.Connected,
		GeneratedAt: a.GeneratedAt,
	}
}

// sortSummaries orders oldest first; ids break ties
func sortSummaries(s []Summary) {
	sort.Slice(s, func(i, j int) bool {
		if !s[i].GeneratedAt.Equal(s[j].GeneratedAt) {
			return s[i].GeneratedAt.Before(s[j].GeneratedAt)
		}
		return s[i].ID < s[j].ID
	})
}

func checkArtifact(a *builder.Artifact) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("artifact without id")
	}
	return nil
}

func decodeVerification(data []byte) (verify.Result, error) {
	var r verify.Result
	if err := json.Unmarshal(data, &r); err != nil {
		return verify.Result{}, fmt.Errorf("decode verification: %w", err)
	}
	return r, nil
}
