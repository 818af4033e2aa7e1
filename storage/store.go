package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category names a public asset class. Each category maps to one directory
// under the storage root.
type Category string

const (
	CategoryAlbumArt    Category = "albumArt"
	CategoryCompressed  Category = "compressed"
	CategoryProfilePics Category = "profilePics"
)

// stagingDir holds raw uploads while a pipeline run is in flight. Never
// publicly readable.
const stagingDir = "staging"

var publicCategories = map[Category]bool{
	CategoryAlbumArt:    true,
	CategoryCompressed:  true,
	CategoryProfilePics: true,
}

// ErrInvalidCategory is returned for reads outside the known categories.
var ErrInvalidCategory = errors.New("invalid storage category")

// ErrInvalidPath is returned when a requested name would escape the
// storage root.
var ErrInvalidPath = errors.New("invalid storage path")

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_\-\.]`)

// Store is a category-scoped file store rooted at a single directory.
// Output names carry a timestamp-and-uuid prefix, so two pipeline runs can
// never write the same path.
type Store struct {
	root string
}

// NewStore creates a store rooted at root and ensures the category and
// staging directories exist.
func NewStore(root string) (*Store, error) {
	s := &Store{root: root}
	for _, dir := range []string{
		filepath.Join(root, string(CategoryAlbumArt)),
		filepath.Join(root, string(CategoryCompressed)),
		filepath.Join(root, string(CategoryProfilePics)),
		filepath.Join(root, stagingDir),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
		}
	}
	return s, nil
}

// Root returns the storage root directory.
func (s *Store) Root() string {
	return s.root
}

// CategoryDir returns the directory backing a category.
func (s *Store) CategoryDir(category Category) string {
	return filepath.Join(s.root, string(category))
}

// uniqueName derives a collision-free stored name from an uploaded filename.
func uniqueName(originalName string) string {
	base := filepath.Base(originalName)
	base = unsafeNameChars.ReplaceAllString(strings.ReplaceAll(base, " ", "_"), "")
	if base == "" || base == "." {
		base = "upload"
	}
	return fmt.Sprintf("%d-%s-%s", time.Now().UnixMilli(), uuid.NewString()[:8], base)
}

// Stage copies an uploaded file into the staging area under a unique name
// and returns the staged path. Staged files belong to exactly one pipeline
// run and are removed when it finishes or fails.
func (s *Store) Stage(src io.Reader, originalName string) (string, error) {
	destPath := filepath.Join(s.root, stagingDir, uniqueName(originalName))
	if err := writeFile(destPath, src); err != nil {
		return "", err
	}
	return destPath, nil
}

// SaveTo copies src into a category directory under a unique name derived
// from originalName and returns the stored path.
func (s *Store) SaveTo(category Category, src io.Reader, originalName string) (string, error) {
	if !publicCategories[category] {
		return "", fmt.Errorf("%w: %s", ErrInvalidCategory, category)
	}
	destPath := filepath.Join(s.CategoryDir(category), uniqueName(originalName))
	if err := writeFile(destPath, src); err != nil {
		return "", err
	}
	return destPath, nil
}

// OutputPath reserves a unique destination path in a category for a derived
// file (transcoder output) without creating it.
func (s *Store) OutputPath(category Category, originalName, suffix string) (string, error) {
	if !publicCategories[category] {
		return "", fmt.Errorf("%w: %s", ErrInvalidCategory, category)
	}
	name := uniqueName(originalName)
	ext := filepath.Ext(name)
	name = strings.TrimSuffix(name, ext) + suffix + ext
	return filepath.Join(s.CategoryDir(category), name), nil
}

// PublicPath resolves a category + file name to an absolute disk path,
// rejecting unknown categories and any name that would escape the storage
// root (path traversal).
func (s *Store) PublicPath(category Category, name string) (string, error) {
	if !publicCategories[category] {
		return "", fmt.Errorf("%w: %s", ErrInvalidCategory, category)
	}

	absRoot, err := filepath.Abs(s.CategoryDir(category))
	if err != nil {
		return "", fmt.Errorf("failed to resolve category dir: %w", err)
	}

	candidate := filepath.Join(absRoot, filepath.FromSlash(name))
	normalized := filepath.Clean(candidate)
	if normalized != absRoot && !strings.HasPrefix(normalized, absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, name)
	}
	if normalized == absRoot {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, name)
	}

	return normalized, nil
}

// Remove deletes a stored file. Missing files are not an error, which keeps
// rollback idempotent.
func (s *Store) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

func writeFile(destPath string, src io.Reader) error {
	destFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", destPath, err)
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, src); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("failed to copy uploaded file to %s: %w", destPath, err)
	}
	return nil
}
