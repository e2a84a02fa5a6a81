// Package media stores card images in a flat directory under generated names.
package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ErrInvalidName is returned for names that are not a plain file name.
var ErrInvalidName = errors.New("invalid media name")

// ErrInvalidDataURI is returned for malformed data URIs.
var ErrInvalidDataURI = errors.New("invalid data URI")

var dataURIRe = regexp.MustCompile(`^data:([a-zA-Z0-9!#$&^_.+-]+/[a-zA-Z0-9!#$&^_.+-]+)?((?:;[^;,]*)*);base64,(.*)$`)

// Store is a media directory. All file access goes through an os.Root, so
// no name can reach outside the directory.
type Store struct {
	dir    string
	prefix string
	root   *os.Root
}

// Open creates dir if needed and opens it as a media store. prefix is the
// URL path under which files are served, e.g. "/media/".
func Open(dir, prefix string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open media directory: %w", err)
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Store{dir: dir, prefix: prefix, root: root}, nil
}

// Close releases the directory handle.
func (s *Store) Close() error {
	return s.root.Close()
}

// Dir returns the directory the store writes to.
func (s *Store) Dir() string { return s.dir }

// FS returns a read-only view of the store for serving files.
func (s *Store) FS() fs.FS { return s.root.FS() }

// Save writes data under a new unique name with the given extension and
// returns the name.
func (s *Store) Save(data []byte, ext string) (string, error) {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	name := uuid.NewString() + ext
	if err := validName(name); err != nil {
		return "", err
	}

	f, err := s.root.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create media file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		s.root.Remove(name) //nolint:errcheck
		return "", fmt.Errorf("failed to write media file: %w", err)
	}
	if err := f.Close(); err != nil {
		s.root.Remove(name) //nolint:errcheck
		return "", fmt.Errorf("failed to close media file: %w", err)
	}
	return name, nil
}

// SaveDataURI decodes a base64 data URI and stores its payload.
func (s *Store) SaveDataURI(uri string) (string, error) {
	mime, data, err := ParseDataURI(uri)
	if err != nil {
		return "", err
	}
	return s.Save(data, Extension(mime, data))
}

// Exists reports whether name is a file in the store.
func (s *Store) Exists(name string) bool {
	if validName(name) != nil {
		return false
	}
	info, err := s.root.Stat(name)
	return err == nil && info.Mode().IsRegular()
}

// Open opens a stored file for reading.
func (s *Store) Open(name string) (*os.File, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	return s.root.Open(name)
}

// Remove deletes name. A missing file is not an error.
func (s *Store) Remove(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := s.root.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove media file: %w", err)
	}
	return nil
}

// URL returns the path a client fetches name from, or "" for no image.
func (s *Store) URL(name string) string {
	if name == "" {
		return ""
	}
	return s.prefix + name
}

// NameFromURL returns the file name addressed by a media URL path such as
// "/media/abc.png". ok is false for anything else.
func (s *Store) NameFromURL(locator string) (name string, ok bool) {
	if !strings.HasPrefix(locator, s.prefix) {
		return "", false
	}
	name = strings.TrimPrefix(locator, s.prefix)
	if validName(name) != nil {
		return "", false
	}
	return name, true
}

// Cleanup deletes every file not in referenced that was last modified
// before cutoff and returns the removed names. Newer files may belong to an
// edit or import that has not committed yet.
func (s *Store) Cleanup(referenced map[string]bool, cutoff time.Time) ([]string, error) {
	entries, err := fs.ReadDir(s.root.FS(), ".")
	if err != nil {
		return nil, fmt.Errorf("failed to list media directory: %w", err)
	}

	var removed []string
	var errs []error
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || referenced[e.Name()] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, fmt.Errorf("failed to stat %s: %w", e.Name(), err))
			}
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := s.root.Remove(e.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", e.Name(), err))
			continue
		}
		removed = append(removed, e.Name())
	}
	return removed, errors.Join(errs...)
}

// ParseDataURI splits a base64 data URI into its mime type and payload.
func ParseDataURI(uri string) (string, []byte, error) {
	m := dataURIRe.FindStringSubmatch(strings.TrimSpace(uri))
	if m == nil {
		return "", nil, ErrInvalidDataURI
	}
	payload := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
			return -1
		}
		return r
	}, m[3])

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	}
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	if len(data) == 0 {
		return "", nil, fmt.Errorf("%w: empty payload", ErrInvalidDataURI)
	}
	return strings.ToLower(m[1]), data, nil
}

// Extension picks a file extension from a declared mime type, falling back
// to sniffing the content, then ".bin".
func Extension(mime string, data []byte) string {
	if mime != "" {
		if m := mimetype.Lookup(mime); m != nil && m.Extension() != "" {
			return m.Extension()
		}
	}
	if len(data) > 0 {
		if ext := mimetype.Detect(data).Extension(); ext != "" {
			return ext
		}
	}
	return ".bin"
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || name != path.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
