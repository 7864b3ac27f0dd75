// Package artifact provides the content-addressed filesystem store.
// Layout: <root>/<safe_source_id>/<source_version>/<rel_path>, plus a few
// root-scoped files (context/auto_handoff.md, voice_gallery.json).
package artifact

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
	"github.com/aurora-labs/aurora-cli/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.ArtifactStore = (*Store)(nil)

// Store is the filesystem artifact store.
type Store struct {
	root string
}

// NewStore creates an artifact store rooted at root. If root is empty it
// defaults to ~/.aurora/artifacts.
func NewStore(root string) (*Store, error) {
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		root = filepath.Join(home, ".aurora", "artifacts")
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("creating artifact root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the artifact root directory.
func (s *Store) Root() string {
	return s.root
}

// path resolves an artifact path, sanitising each component. The rel path
// is kept POSIX-style in manifests; separators are translated here.
func (s *Store) path(sourceID, sourceVersion, relPath string) (string, error) {
	rel := filepath.FromSlash(relPath)
	if relPath == "" || strings.Contains(relPath, "..") || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: artifact path %q", domain.ErrInvalidInput, relPath)
	}
	return filepath.Join(s.root, domain.SafeSourceID(sourceID), sourceVersion, rel), nil
}

// rootPath resolves a root-scoped file.
func (s *Store) rootPath(relPath string) (string, error) {
	rel := filepath.FromSlash(relPath)
	if relPath == "" || strings.Contains(relPath, "..") || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: artifact path %q", domain.ErrInvalidInput, relPath)
	}
	return filepath.Join(s.root, rel), nil
}

// Exists reports whether the artifact file is present on disk.
func (s *Store) Exists(sourceID, sourceVersion, relPath string) bool {
	full, err := s.path(sourceID, sourceVersion, relPath)
	if err != nil {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && !info.IsDir()
}

// WriteText writes a UTF-8 text artifact.
func (s *Store) WriteText(sourceID, sourceVersion, relPath, text string) error {
	return s.WriteBytes(sourceID, sourceVersion, relPath, []byte(text))
}

// ReadText reads a UTF-8 text artifact.
func (s *Store) ReadText(sourceID, sourceVersion, relPath string) (string, error) {
	data, err := s.ReadBytes(sourceID, sourceVersion, relPath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteBytes writes a binary artifact, creating parent directories.
func (s *Store) WriteBytes(sourceID, sourceVersion, relPath string, data []byte) error {
	full, err := s.path(sourceID, sourceVersion, relPath)
	if err != nil {
		return err
	}
	return writeFile(full, data)
}

// ReadBytes reads a binary artifact. A missing file maps to
// domain.ErrArtifactMissing so stages can retry.
func (s *Store) ReadBytes(sourceID, sourceVersion, relPath string) ([]byte, error) {
	full, err := s.path(sourceID, sourceVersion, relPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", domain.ErrArtifactMissing, relPath)
	}
	if err != nil {
		return nil, fmt.Errorf("reading artifact %s: %w", relPath, err)
	}
	return data, nil
}

// WriteJSONL serialises one JSON object per line.
func (s *Store) WriteJSONL(sourceID, sourceVersion, relPath string, rows []any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("encoding jsonl row: %w", err)
		}
	}
	return s.WriteBytes(sourceID, sourceVersion, relPath, buf.Bytes())
}

// ReadJSONL passes each non-empty line to visit.
func (s *Store) ReadJSONL(sourceID, sourceVersion, relPath string, visit func(line []byte) error) error {
	data, err := s.ReadBytes(sourceID, sourceVersion, relPath)
	if err != nil {
		return err
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := visit(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanning jsonl %s: %w", relPath, err)
	}
	return nil
}

// WriteRootText writes a root-scoped file.
func (s *Store) WriteRootText(relPath, text string) error {
	full, err := s.rootPath(relPath)
	if err != nil {
		return err
	}
	return writeFile(full, []byte(text))
}

// ReadRootText reads a root-scoped file.
func (s *Store) ReadRootText(relPath string) (string, error) {
	full, err := s.rootPath(relPath)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %s", domain.ErrArtifactMissing, relPath)
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", relPath, err)
	}
	return string(data), nil
}

// writeFile writes via a temp file and rename so readers never observe a
// partial artifact.
func writeFile(full string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(full), 0o700); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing artifact: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		return fmt.Errorf("publishing artifact: %w", err)
	}
	return nil
}
