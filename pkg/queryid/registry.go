package queryid

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"xrelay/pkg/config"
	"xrelay/pkg/logger"
)

// Operation names as they appear in the upstream bundle's exported
// operation metadata.
const (
	OpListFollowers  = "Followers"
	OpRemoveFollower = "RemoveFollower"
)

// Operations lists every operation the relay dispatches.
var Operations = []string{OpListFollowers, OpRemoveFollower}

// Details describes one GraphQL operation as exported by the bundle.
type Details struct {
	QueryID       string `json:"queryId"`
	OperationName string `json:"operationName"`
	OperationType string `json:"operationType"`
}

// Registry is the process-wide lookup from operation name to its current
// query id. Entries refreshed from the bundle expire so that a long-dead
// refresher surfaces as lookup failures rather than silently stale ids.
type Registry struct {
	cache        *cache.Cache
	snapshotPath string
	ttl          time.Duration
	mu           sync.Mutex
	logger       logger.Logger
}

// NewRegistry builds a registry from configuration. Pinned ids never
// expire; otherwise the registry is seeded from the on-disk snapshot when
// one exists.
func NewRegistry(cfg *config.QueryIDConfig) (*Registry, error) {
	r := &Registry{
		cache:  cache.New(cache.NoExpiration, 10*time.Minute),
		ttl:    cache.NoExpiration,
		logger: logger.GetLogger(),
	}

	if cfg.Followers != "" && cfg.RemoveFollower != "" {
		r.Set(Details{QueryID: cfg.Followers, OperationName: OpListFollowers, OperationType: "query"})
		r.Set(Details{QueryID: cfg.RemoveFollower, OperationName: OpRemoveFollower, OperationType: "mutation"})
		return r, nil
	}

	if cfg.RefreshInterval > 0 {
		r.ttl = 4 * cfg.RefreshInterval
	}

	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		r.snapshotPath = filepath.Join(cfg.DataDir, "query_ids.json")
		if err := r.loadSnapshot(); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Lookup returns the current details for an operation. It fails when the
// operation has never been discovered or its entry has expired.
func (r *Registry) Lookup(operation string) (Details, error) {
	v, ok := r.cache.Get(operation)
	if !ok {
		return Details{}, fmt.Errorf("no query id known for operation %q", operation)
	}
	return v.(Details), nil
}

// Set records the current details for an operation.
func (r *Registry) Set(details Details) {
	r.cache.Set(details.OperationName, details, r.ttl)
}

type snapshot struct {
	SavedAt    time.Time `json:"saved_at"`
	Operations []Details `json:"operations"`
}

// SaveSnapshot writes the current entries to disk atomically. A registry
// without a data directory skips persistence.
func (r *Registry) SaveSnapshot() error {
	if r.snapshotPath == "" {
		return nil
	}

	snap := snapshot{SavedAt: time.Now().UTC()}
	for _, op := range Operations {
		if d, err := r.Lookup(op); err == nil {
			snap.Operations = append(snap.Operations, d)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tempPath := r.snapshotPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary snapshot file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(snap); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync snapshot file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close snapshot file: %w", err)
	}
	if err := os.Rename(tempPath, r.snapshotPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}

	r.logger.DebugWithFields("Query id snapshot saved", map[string]interface{}{
		"path":       r.snapshotPath,
		"operations": len(snap.Operations),
	})
	return nil
}

func (r *Registry) loadSnapshot() error {
	file, err := os.Open(r.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer file.Close()

	var snap snapshot
	if err := json.NewDecoder(file).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	for _, d := range snap.Operations {
		r.Set(d)
	}

	r.logger.InfoWithFields("Query id snapshot loaded", map[string]interface{}{
		"path":       r.snapshotPath,
		"saved_at":   snap.SavedAt,
		"operations": len(snap.Operations),
	})
	return nil
}
