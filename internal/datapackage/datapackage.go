package datapackage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

// Extension is the file extension of package descriptor files
const Extension = ".json"

// Descriptor is a decoded data-package descriptor. Numbers are kept as
// json.Number so that re-encoding reproduces them verbatim.
type Descriptor map[string]any

// IsPackageFile returns true if name looks like a package descriptor file.
// Hidden files are never package files.
func IsPackageFile(name string) bool {
	base := filepath.Base(name)
	return !strings.HasPrefix(base, ".") && filepath.Ext(base) == Extension
}

// DiscoverFiles finds package files directly inside dir (no recursion).
// Base names matching any of the exclude globs are skipped.
func DiscoverFiles(fs afero.Fs, dir string, exclude []string) ([]string, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, info := range entries {
		if info.IsDir() || !IsPackageFile(info.Name()) {
			continue
		}

		excluded, err := matchAny(exclude, info.Name())
		if err != nil {
			return nil, err
		}
		if excluded {
			continue
		}

		files = append(files, filepath.Join(dir, info.Name()))
	}

	return files, nil
}

func matchAny(patterns []string, name string) (bool, error) {
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return false, fmt.Errorf("invalid exclude pattern %q: %w", pattern, doublestar.ErrBadPattern)
		}
		ok, err := doublestar.Match(pattern, name)
		if err != nil {
			return false, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Decode parses a descriptor. The top level must be a JSON object.
func Decode(data []byte) (Descriptor, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var d Descriptor
	if err := dec.Decode(&d); err != nil {
		return nil, err
	}
	if d == nil {
		return nil, errors.New("descriptor must be a JSON object")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after descriptor")
	}

	return d, nil
}

// Load reads and decodes a descriptor file.
func Load(fs afero.Fs, path string) (Descriptor, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Name returns the descriptor's name field, or "" if unset.
func (d Descriptor) Name() string {
	return d.stringField("name")
}

// Title returns the descriptor's title field, or "" if unset.
func (d Descriptor) Title() string {
	return d.stringField("title")
}

func (d Descriptor) stringField(key string) string {
	if s, ok := d[key].(string); ok {
		return s
	}
	return ""
}

// ResourceNames lists the names of the package resources in order.
func (d Descriptor) ResourceNames() []string {
	resources, _ := d["resources"].([]any)
	names := make([]string, 0, len(resources))
	for _, r := range resources {
		if res, ok := r.(map[string]any); ok {
			if name, ok := res["name"].(string); ok {
				names = append(names, name)
			}
		}
	}
	return names
}

// Resource returns the resource descriptor with the given name.
func (d Descriptor) Resource(name string) (map[string]any, bool) {
	resources, _ := d["resources"].([]any)
	for _, r := range resources {
		if res, ok := r.(map[string]any); ok && res["name"] == name {
			return res, true
		}
	}
	return nil, false
}

// ResolveName returns the snapshot name of a descriptor: the explicit name
// field, or the slugified title when no name is set. The name becomes the
// base name of the package file, so it must be a single path element.
func ResolveName(d Descriptor) (string, error) {
	name := d.Name()
	if name == "" {
		name = Slugify(d.Title())
	}
	if name == "" {
		return "", errors.New("descriptor has neither a name nor a usable title")
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

// ValidateName rejects names that would not map to a visible file directly
// inside the synced folder.
func ValidateName(name string) error {
	switch {
	case name == "":
		return errors.New("package name is empty")
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("package name %q must not start with a dot", name)
	case strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, filepath.Separator):
		return fmt.Errorf("package name %q must not contain a path separator", name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("package name %q contains a NUL byte", name)
	}
	return nil
}
