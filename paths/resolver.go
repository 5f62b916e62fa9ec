// Package paths maps data-file identifiers onto the annotation directory tree.
//
// An identifier is a slash-separated path relative to the data root whose
// first component is the dataset folder, e.g.
// "Raw_Time_Series_Data/patients/p01.csv". Its ledgers live under
//
//	<annotations root>/<dataset>_CSV_Annotations/Working_Folder/<subpath>/<name>.csv
//	<annotations root>/<dataset>_CSV_Annotations/Saving_Folder/<subpath>/<name>.csv
package paths

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/orian/trendlabel/models"
)

const (
	annotationsSuffix = "_CSV_Annotations"
	WorkingFolder     = "Working_Folder"
	SavingFolder      = "Saving_Folder"
)

// Resolved holds the three locations derived from one identifier.
type Resolved struct {
	// Identifier is the cleaned, slash-separated identifier.
	Identifier     string
	WorkingPath    string
	SavedPath      string
	AnnotationsDir string
}

// Resolver computes ledger locations. The zero value is not usable.
type Resolver struct {
	DataRoot        string
	AnnotationsRoot string
}

// NewResolver returns a resolver rooted at dataRoot (where identifiers are
// resolved for reading raw series) and annotationsRoot.
func NewResolver(dataRoot, annotationsRoot string) *Resolver {
	return &Resolver{DataRoot: dataRoot, AnnotationsRoot: annotationsRoot}
}

// Clean validates an identifier and returns its canonical slash form.
// Empty, absolute and escaping identifiers are rejected with models.ErrPath.
func Clean(identifier string) (string, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(identifier, `\`, "/"))
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty identifier", models.ErrPath)
	}
	if strings.HasPrefix(trimmed, "/") || filepath.IsAbs(trimmed) || filepath.VolumeName(trimmed) != "" {
		return "", fmt.Errorf("%w: %q is absolute", models.ErrPath, identifier)
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q escapes the data root", models.ErrPath, identifier)
	}
	return cleaned, nil
}

// Resolve computes the working ledger, saved ledger and annotations
// directory for identifier, creating every missing parent directory.
// Safe to call concurrently.
func (r *Resolver) Resolve(identifier string) (Resolved, error) {
	res, err := r.Locate(identifier)
	if err != nil {
		return Resolved{}, err
	}
	for _, dir := range []string{filepath.Dir(res.WorkingPath), filepath.Dir(res.SavedPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Resolved{}, fmt.Errorf("create annotation directory: %w", err)
		}
	}
	return res, nil
}

// Locate is Resolve without touching the filesystem.
func (r *Resolver) Locate(identifier string) (Resolved, error) {
	cleaned, err := Clean(identifier)
	if err != nil {
		return Resolved{}, err
	}
	parts := strings.Split(cleaned, "/")
	if len(parts) < 2 {
		return Resolved{}, fmt.Errorf("%w: %q has no dataset folder", models.ErrPath, identifier)
	}

	dataset := parts[0]
	sub := parts[1 : len(parts)-1]
	name := ledgerName(parts[len(parts)-1])

	annotationsDir := r.AnnotationsDir(dataset)
	working := filepath.Join(append(append([]string{annotationsDir, WorkingFolder}, sub...), name)...)
	saved := filepath.Join(append(append([]string{annotationsDir, SavingFolder}, sub...), name)...)

	return Resolved{
		Identifier:     cleaned,
		WorkingPath:    working,
		SavedPath:      saved,
		AnnotationsDir: annotationsDir,
	}, nil
}

// AnnotationsDir returns "<annotations root>/<dataset>_CSV_Annotations".
func (r *Resolver) AnnotationsDir(dataset string) string {
	return filepath.Join(r.AnnotationsRoot, dataset+annotationsSuffix)
}

// RawPath returns the on-disk location of the data file itself.
func (r *Resolver) RawPath(identifier string) (string, error) {
	cleaned, err := Clean(identifier)
	if err != nil {
		return "", err
	}
	return filepath.Join(r.DataRoot, filepath.FromSlash(cleaned)), nil
}

// ledgerName forces the ".csv" extension onto a data file name.
func ledgerName(base string) string {
	ext := path.Ext(base)
	if ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return base + ".csv"
}
