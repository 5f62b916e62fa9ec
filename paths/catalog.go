package paths

import (
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// csvPattern matches data files at any depth, regardless of extension case.
const csvPattern = "**/*.[cC][sS][vV]"

// DataFile is one selectable entry of the raw-data catalog.
type DataFile struct {
	Name string `json:"name"`
	// Path is the identifier to send back in task requests.
	Path string `json:"path"`
	Type string `json:"type"`
}

// ListDataFiles lists every CSV file under datasetDir. Returned paths are
// identifiers prefixed with the dataset folder name. A missing directory
// yields an empty list.
func ListDataFiles(datasetDir string) ([]DataFile, error) {
	info, err := os.Stat(datasetDir)
	if err != nil || !info.IsDir() {
		return []DataFile{}, nil
	}

	matches, err := GlobCSV(datasetDir)
	if err != nil {
		return nil, err
	}

	root := filepath.Base(datasetDir)
	files := make([]DataFile, 0, len(matches))
	for _, rel := range matches {
		name := path.Base(rel)
		kind := mime.TypeByExtension(path.Ext(name))
		if kind == "" {
			kind = "text/csv"
		}
		files = append(files, DataFile{Name: name, Path: root + "/" + rel, Type: kind})
	}
	return files, nil
}

// GlobCSV returns the slash-separated paths, relative to dir, of every
// regular ".csv" file below dir in lexical order. Hidden temp files left by
// an interrupted atomic write never match.
func GlobCSV(dir string) ([]string, error) {
	fsys := os.DirFS(dir)
	matches, err := doublestar.Glob(fsys, csvPattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", dir, err)
	}
	files := matches[:0]
	for _, m := range matches {
		info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(m)))
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, m)
	}
	sort.Strings(files)
	return files, nil
}
