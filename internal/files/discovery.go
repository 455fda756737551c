package files

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileInfo represents information about a discovered file
type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
	// Partitions holds key=value directory segments between the root and the file
	Partitions map[string]string
}

// Discovery finds artifacts below a root directory
type Discovery struct {
	root string
}

// NewDiscovery creates a new file discovery instance
func NewDiscovery(root string) *Discovery {
	return &Discovery{root: root}
}

// FindCSVFiles walks the root and returns every .csv file sorted by path
func (d *Discovery) FindCSVFiles() ([]FileInfo, error) {
	return d.FindByExtension(".csv")
}

// FindByExtension walks the root for files with the extension, sorted by path
func (d *Discovery) FindByExtension(ext string) ([]FileInfo, error) {
	if _, err := os.Stat(d.root); err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", d.root, err)
	}

	var out []FileInfo
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(path), ext) {
			return nil
		}
		if strings.HasPrefix(entry.Name(), ".") {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(d.root, path)
		out = append(out, FileInfo{
			Path:       path,
			Name:       entry.Name(),
			Size:       info.Size(),
			ModTime:    info.ModTime(),
			Partitions: ParsePartitions(filepath.Dir(rel)),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// ParsePartitions extracts key=value segments from a relative directory path
func ParsePartitions(rel string) map[string]string {
	parts := make(map[string]string)
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if k, v, ok := strings.Cut(seg, "="); ok && k != "" {
			parts[k] = v
		}
	}
	return parts
}
