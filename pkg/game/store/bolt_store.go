package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"mapforge/pkg/game/builder"
	"mapforge/pkg/game/verify"
)

var (
	artifactsBucket     = []byte("maps")
	verificationsBucket = []byte("verifications")
)

// BoltStore keeps records in an embedded bbolt database
type BoltStore struct {
	filename string
	database *bolt.DB
}

// NewBoltStore opens or creates the database file
func NewBoltStore(filename string) (*BoltStore, error) {
	db, err := bolt.Open(filename, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{artifactsBucket, verificationsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}
	return &BoltStore{filename: filename, database: db}, nil
}

func (bs *BoltStore) put(bucket []byte, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return bs.database.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), raw)
	})
}

// get copies the value out; bbolt memory is only valid inside the transaction
func (bs *BoltStore) get(bucket []byte, key string) ([]byte, error) {
	var out []byte
	err := bs.database.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

// SaveArtifact stores or replaces a map
func (bs *BoltStore) SaveArtifact(ctx context.Context, a *builder.Artifact) error {
	if err := checkArtifact(a); err != nil {
		return err
	}
	if err := bs.put(artifactsBucket, a.ID, a); err != nil {
		return fmt.Errorf("failed to save artifact: %w", err)
	}
	return nil
}

// LoadArtifact loads a map by id
func (bs *BoltStore) LoadArtifact(ctx context.Context, id string) (*builder.Artifact, error) {
	raw, err := bs.get(artifactsBucket, id)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", id, err)
	}
	return builder.DecodeArtifact(raw)
}

// ListArtifacts lists every stored map, oldest first
func (bs *BoltStore) ListArtifacts(ctx context.Context) ([]Summary, error) {
	var out []Summary
	err := bs.database.View(func(tx *bolt.Tx) error {
		return tx.Bucket(artifactsBucket).ForEach(func(k, v []byte) error {
			var s Summary
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("artifact %s: %w", k, err)
			}
			out = append(out, s)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortSummaries(out)
	return out, nil
}

// SaveVerification stores the latest verification of a map
func (bs *BoltStore) SaveVerification(ctx context.Context, r verify.Result) error {
	if r.ArtifactID == "" {
		return fmt.Errorf("verification without artifact id")
	}
	if err := bs.put(verificationsBucket, r.ArtifactID, r); err != nil {
		return fmt.Errorf("failed to save verification: %w", err)
	}
	return nil
}

// LoadVerification loads the verification of a map
func (bs *BoltStore) LoadVerification(ctx context.Context, artifactID string) (verify.Result, error) {
	raw, err := bs.get(verificationsBucket, artifactID)
	if err != nil {
		return verify.Result{}, fmt.Errorf("verification of %s: %w", artifactID, err)
	}
	return decodeVerification(raw)
}

// Close closes the database
func (bs *BoltStore) Close() error {
	if bs.database == nil {
		return nil
	}
	return bs.database.Close()
}
