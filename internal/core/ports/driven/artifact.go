package driven

// ArtifactStore owns the content-addressed filesystem bytes under
// <root>/<safe(source_id)>/<source_version>/<rel_path>. Artifacts are
// write-once in practice: stage idempotence prevents concurrent writers of
// the same path (whoever wrote first wins, the second short-circuits).
type ArtifactStore interface {
	// Root returns the artifact root directory.
	Root() string

	// Exists reports whether the artifact file is present on disk.
	Exists(sourceID, sourceVersion, relPath string) bool

	// WriteText / ReadText handle UTF-8 text artifacts.
	WriteText(sourceID, sourceVersion, relPath, text string) error
	ReadText(sourceID, sourceVersion, relPath string) (string, error)

	// WriteBytes / ReadBytes handle binary artifacts.
	WriteBytes(sourceID, sourceVersion, relPath string, data []byte) error
	ReadBytes(sourceID, sourceVersion, relPath string) ([]byte, error)

	// WriteJSONL serialises one JSON object per line.
	WriteJSONL(sourceID, sourceVersion, relPath string, rows []any) error

	// ReadJSONL passes each non-empty line to visit.
	ReadJSONL(sourceID, sourceVersion, relPath string, visit func(line []byte) error) error

	// WriteRootText / ReadRootText handle root-scoped files such as
	// context/auto_handoff.md and voice_gallery.json.
	WriteRootText(relPath, text string) error
	ReadRootText(relPath string) (string, error)
}
