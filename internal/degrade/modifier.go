package degrade

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/leapstack-labs/dsablate/internal/dataset"
)

// MarkerSuffix is appended to ".<name>" to form the completion marker that
// sits next to a materialized destination directory.
const MarkerSuffix = ".dsablate-complete"

// Spec identifies a quality modifier.
type Spec struct {
	Name    string `json:"name" yaml:"name"`
	Quality int    `json:"quality" yaml:"quality"`
}

// NewJPEGSpec returns the spec of a JPEG round-trip modifier at quality.
func NewJPEGSpec(quality int) Spec {
	return Spec{
		Name:    fmt.Sprintf("jpg%d_modifier", quality),
		Quality: quality,
	}
}

// Modifier applies a Pipeline to every image of a directory.
type Modifier struct {
	spec     Spec
	pipeline Pipeline
	logger   *slog.Logger
}

// New creates a modifier running pipeline under spec.
func New(spec Spec, pipeline Pipeline, logger *slog.Logger) *Modifier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Modifier{
		spec:     spec,
		pipeline: slices.Clone(pipeline),
		logger:   logger,
	}
}

// NewJPEG creates a JPEG round-trip modifier at quality followed by any
// extra stages.
func NewJPEG(quality int, logger *slog.Logger, extra ...Stage) *Modifier {
	pipeline := append(Pipeline{JPEG(quality)}, extra...)
	return New(NewJPEGSpec(quality), pipeline, logger)
}

// Name returns the modifier name used for destination naming.
func (m *Modifier) Name() string { return m.spec.Name }

// Spec returns the modifier spec.
func (m *Modifier) Spec() Spec { return m.spec }

// Pipeline returns a copy of the stages run by Degrade.
func (m *Modifier) Pipeline() Pipeline { return slices.Clone(m.pipeline) }

// Degrade runs the pipeline over a single image.
func (m *Modifier) Degrade(img image.Image) (image.Image, error) {
	return m.pipeline.Run(img)
}

// MarkerPath returns the completion marker path for a destination named
// name under modifiedRoot.
func MarkerPath(modifiedRoot, name string) string {
	return filepath.Join(modifiedRoot, "."+name+MarkerSuffix)
}

// marker is the content of a completion marker.
type marker struct {
	Modifier string   `json:"modifier"`
	Quality  int      `json:"quality"`
	Stages   []string `json:"stages"`
	Files    int      `json:"files"`
	Digest   string   `json:"digest"`
}

// Apply degrades every regular file of sourceDir into
// <modifiedRoot>/<base of sourceDir> and returns that base name.
//
// A destination is skipped when its completion marker records the same
// digest as the current source and modifier. A destination that exists as
// a regular file is also treated as already materialized. Otherwise the
// marker is removed first and entries of the destination that are not in
// the source are deleted. On failure the files written so far are left in
// place and no marker is written.
func (m *Modifier) Apply(ctx context.Context, sourceDir, modifiedRoot string) (string, error) {
	name := filepath.Base(filepath.Clean(sourceDir))
	dest := filepath.Join(modifiedRoot, name)

	if info, err := os.Stat(dest); err == nil && info.Mode().IsRegular() {
		m.logger.Debug("destination is a file, skipping", "modifier", m.spec.Name, "dest", dest)
		return name, nil
	}

	files, err := listFiles(sourceDir)
	if err != nil {
		return "", err
	}

	digest, err := m.digest(sourceDir, files)
	if err != nil {
		return "", err
	}

	markerPath := MarkerPath(modifiedRoot, name)
	if existing, ok := readMarker(markerPath); ok && existing.Digest == digest {
		if info, err := os.Stat(dest); err == nil && info.IsDir() {
			m.logger.Debug("destination up to date", "modifier", m.spec.Name, "dest", dest)
			return name, nil
		}
	}

	if err := os.Remove(markerPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", &dataset.FilesystemError{Op: "remove", Path: markerPath, Err: err}
	}
	if err := os.MkdirAll(dest, 0o750); err != nil {
		return "", &dataset.FilesystemError{Op: "create directory", Path: dest, Err: err}
	}
	if err := pruneStale(dest, files); err != nil {
		return "", err
	}

	m.logger.Info("degrading directory",
		"modifier", m.spec.Name,
		"source", sourceDir,
		"dest", dest,
		"files", len(files))

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("degrade %s cancelled: %w", name, err)
		}
		if err := m.applyFile(filepath.Join(sourceDir, f), filepath.Join(dest, f)); err != nil {
			return "", err
		}
	}

	mk := marker{
		Modifier: m.spec.Name,
		Quality:  m.spec.Quality,
		Stages:   m.pipeline.Names(),
		Files:    len(files),
		Digest:   digest,
	}
	if err := writeMarker(markerPath, mk); err != nil {
		return "", err
	}
	return name, nil
}

func (m *Modifier) applyFile(src, dst string) error {
	if _, ok := FormatForPath(dst); !ok {
		return &dataset.InvalidImageError{Path: src, Reason: "unsupported output extension"}
	}

	img, err := DecodeFile(src)
	if err != nil {
		return err
	}

	out, err := m.Degrade(img)
	if err != nil {
		return &dataset.InvalidImageError{Path: src, Reason: "degrade failed", Err: err}
	}

	if err := EncodeFile(dst, out); err != nil {
		return err
	}
	m.logger.Debug("degraded image", "file", filepath.Base(src), "modifier", m.spec.Name)
	return nil
}

// digest covers the modifier identity and the name, size and content of
// every source file.
func (m *Modifier) digest(dir string, files []string) (string, error) {
	h := sha256.New()
	writeField := func(s string) {
		_, _ = io.WriteString(h, s)
		_, _ = h.Write([]byte{0})
	}

	writeField(m.spec.Name)
	writeField(strconv.Itoa(m.spec.Quality))
	for _, s := range m.pipeline.Names() {
		writeField(s)
	}

	for _, name := range files {
		path := filepath.Join(dir, name)
		sum, size, err := hashFile(path)
		if err != nil {
			return "", err
		}
		writeField(name)
		writeField(strconv.FormatInt(size, 10))
		writeField(sum)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, &dataset.FilesystemError{Op: "open", Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, &dataset.FilesystemError{Op: "read", Path: path, Err: err}
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// listFiles returns the sorted names of the regular files directly in dir.
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &dataset.FilesystemError{Op: "read directory", Path: dir, Err: err}
	}

	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, e.Name())
		}
	}
	slices.Sort(files)
	return files, nil
}

// pruneStale deletes every entry of dest whose name is not in keep.
func pruneStale(dest string, keep []string) error {
	entries, err := os.ReadDir(dest)
	if err != nil {
		return &dataset.FilesystemError{Op: "read directory", Path: dest, Err: err}
	}
	for _, e := range entries {
		if _, found := slices.BinarySearch(keep, e.Name()); found {
			continue
		}
		path := filepath.Join(dest, e.Name())
		if err := os.RemoveAll(path); err != nil {
			return &dataset.FilesystemError{Op: "remove", Path: path, Err: err}
		}
	}
	return nil
}

func readMarker(path string) (marker, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return marker{}, false
	}
	var mk marker
	if err := json.Unmarshal(data, &mk); err != nil {
		return marker{}, false
	}
	return mk, true
}

func writeMarker(path string, mk marker) error {
	data, err := json.MarshalIndent(mk, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode completion marker: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return &dataset.FilesystemError{Op: "write", Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return &dataset.FilesystemError{Op: "rename", Path: path, Err: err}
	}
	return nil
}
