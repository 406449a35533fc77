// Package buildstate records what each reference-graph node was built
// from, so a later build can tell whether the node is up to date.
package buildstate

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/crypto/blake2b"

	"projd/internal/slogutil"
	"projd/internal/storage"
	"projd/internal/vfs"
)

// Fingerprint identifies the content of one input file.
type Fingerprint struct {
	Path    string
	ModTime time.Time
	Hash    string
}

// Record is the state of a node after its last build.
type Record struct {
	Node       string
	ConfigPath string
	BuiltAt    time.Time
	ErrorCount int
	Inputs     []Fingerprint
	Outputs    []string
}

// Store persists records in a storage database and fingerprints files of
// one host.
type Store struct {
	db     *storage.DB
	fs     *vfs.FS
	logger *slog.Logger
	owned  bool
}

// New wraps an open database.
func New(db *storage.DB, fs *vfs.FS, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Store{db: db, fs: fs, logger: logger}
}

// OpenMemory creates a store over a private in-memory database. Closing
// the store closes the database.
func OpenMemory(fs *vfs.FS, logger *slog.Logger) (*Store, error) {
	db, err := storage.OpenMemory(logger)
	if err != nil {
		return nil, err
	}
	s := New(db, fs, logger)
	s.owned = true
	return s, nil
}

// Close releases a database the store opened itself.
func (s *Store) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}

// Key returns the node key of a config path.
func (s *Store) Key(configPath string) string {
	return s.fs.Canonical(configPath)
}

// HashFile returns the hex blake2b-256 digest of the file at path.
func HashFile(fs *vfs.FS, path string) (string, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Fingerprint reads the current fingerprint of path.
func (s *Store) Fingerprint(path string) (Fingerprint, error) {
	mt, ok := s.fs.ModTime(path)
	if !ok {
		return Fingerprint{}, fmt.Errorf("buildstate: %s does not exist", path)
	}
	hash, err := HashFile(s.fs, path)
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{Path: path, ModTime: mt, Hash: hash}, nil
}

// Get loads the record of configPath. ok is false when the node has never
// been built.
func (s *Store) Get(configPath string) (*Record, bool, error) {
	node := s.Key(configPath)
	rec := &Record{Node: node}
	var builtAt int64
	err := s.db.QueryRow(
		"SELECT config_path, built_at, error_count FROM build_nodes WHERE node = ?", node,
	).Scan(&rec.ConfigPath, &builtAt, &rec.ErrorCount)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("buildstate: load %s: %w", node, err)
	}
	rec.BuiltAt = time.Unix(0, builtAt)

	rows, err := s.db.Query("SELECT path, mod_time, hash FROM build_inputs WHERE node = ? ORDER BY path", node)
	if err != nil {
		return nil, false, fmt.Errorf("buildstate: load inputs of %s: %w", node, err)
	}
	for rows.Next() {
		var fp Fingerprint
		var mt int64
		if err := rows.Scan(&fp.Path, &mt, &fp.Hash); err != nil {
			rows.Close()
			return nil, false, err
		}
		fp.ModTime = time.Unix(0, mt)
		rec.Inputs = append(rec.Inputs, fp)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	rows, err = s.db.Query("SELECT path FROM build_outputs WHERE node = ? ORDER BY path", node)
	if err != nil {
		return nil, false, fmt.Errorf("buildstate: load outputs of %s: %w", node, err)
	}
	defer rows.Close()
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, false, err
		}
		rec.Outputs = append(rec.Outputs, p)
	}
	return rec, true, rows.Err()
}

// Put replaces the record of rec.ConfigPath.
func (s *Store) Put(rec Record) error {
	node := s.Key(rec.ConfigPath)
	return s.db.WithTx(func(tx *sql.Tx) error {
		if err := deleteNode(tx, node); err != nil {
			return err
		}
		if _, err := tx.Exec(
			"INSERT INTO build_nodes (node, config_path, built_at, error_count) VALUES (?, ?, ?, ?)",
			node, rec.ConfigPath, rec.BuiltAt.UnixNano(), rec.ErrorCount,
		); err != nil {
			return fmt.Errorf("buildstate: store %s: %w", node, err)
		}
		for _, fp := range rec.Inputs {
			if _, err := tx.Exec(
				"INSERT OR REPLACE INTO build_inputs (node, path, mod_time, hash) VALUES (?, ?, ?, ?)",
				node, fp.Path, fp.ModTime.UnixNano(), fp.Hash,
			); err != nil {
				return fmt.Errorf("buildstate: store input %s: %w", fp.Path, err)
			}
		}
		for _, p := range rec.Outputs {
			if _, err := tx.Exec("INSERT OR IGNORE INTO build_outputs (node, path) VALUES (?, ?)", node, p); err != nil {
				return fmt.Errorf("buildstate: store output %s: %w", p, err)
			}
		}
		return nil
	})
}

// Delete forgets configPath.
func (s *Store) Delete(configPath string) error {
	node := s.Key(configPath)
	return s.db.WithTx(func(tx *sql.Tx) error {
		return deleteNode(tx, node)
	})
}

// deleteNode removes a node with its inputs and outputs. The child rows
// are deleted explicitly rather than left to the cascade.
func deleteNode(tx *sql.Tx, node string) error {
	for _, table := range []string{"build_inputs", "build_outputs", "build_nodes"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE node = ?", node); err != nil {
			return fmt.Errorf("buildstate: delete %s from %s: %w", node, table, err)
		}
	}
	return nil
}

// Nodes lists the config paths of every recorded node, sorted.
func (s *Store) Nodes() ([]string, error) {
	rows, err := s.db.Query("SELECT config_path FROM build_nodes ORDER BY node")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Changed compares the recorded inputs of rec with inputs and returns the
// paths that were added, removed or whose content differs. A file whose
// modification time is unchanged is not rehashed.
func (s *Store) Changed(rec *Record, inputs []string) []string {
	recorded := make(map[string]Fingerprint, len(rec.Inputs))
	for _, fp := range rec.Inputs {
		recorded[s.fs.Canonical(fp.Path)] = fp
	}

	var changed []string
	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		key := s.fs.Canonical(in)
		if seen[key] {
			continue
		}
		seen[key] = true
		fp, ok := recorded[key]
		if !ok {
			changed = append(changed, in)
			continue
		}
		mt, exists := s.fs.ModTime(in)
		if !exists {
			changed = append(changed, in)
			continue
		}
		if mt.Equal(fp.ModTime) {
			continue
		}
		hash, err := HashFile(s.fs, in)
		if err != nil || hash != fp.Hash {
			changed = append(changed, in)
		}
	}
	for key, fp := range recorded {
		if !seen[key] {
			changed = append(changed, fp.Path)
		}
	}
	sort.Strings(changed)
	if len(changed) > 0 {
		s.logger.Debug("Build inputs changed", "node", rec.ConfigPath, "count", len(changed))
	}
	return changed
}

// Snapshot fingerprints every existing path in inputs.
func (s *Store) Snapshot(inputs []string) []Fingerprint {
	out := make([]Fingerprint, 0, len(inputs))
	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		key := s.fs.Canonical(in)
		if seen[key] {
			continue
		}
		seen[key] = true
		fp, err := s.Fingerprint(in)
		if err != nil {
			continue
		}
		out = append(out, fp)
	}
	return out
}
