package experiment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/dsablate/internal/dataset"
	"github.com/leapstack-labs/dsablate/internal/degrade"
)

// ModifiedPath returns where the degraded copy of desc lives for a modifier.
func ModifiedPath(desc dataset.Descriptor, modifierName string) string {
	return desc.DataPath + "#" + modifierName
}

// Materialize writes the degraded copy of desc for m: degraded images,
// the original labels and an empty annotations file.
func Materialize(ctx context.Context, m *degrade.Modifier, desc dataset.Descriptor) (dataset.Descriptor, error) {
	root := ModifiedPath(desc, m.Name())
	if err := os.MkdirAll(root, 0o750); err != nil {
		return dataset.Descriptor{}, &dataset.FilesystemError{Op: "create directory", Path: root, Err: err}
	}

	name, err := m.Apply(ctx, desc.ImagesPath(), root)
	if err != nil {
		return dataset.Descriptor{}, fmt.Errorf("failed to degrade %s: %w", desc.DataPath, err)
	}
	if name != dataset.ImagesDir {
		return dataset.Descriptor{}, fmt.Errorf("unexpected degraded directory %q for %s", name, desc.DataPath)
	}

	labels := filepath.Join(root, dataset.LabelsDir)
	if err := os.RemoveAll(labels); err != nil {
		return dataset.Descriptor{}, &dataset.FilesystemError{Op: "remove", Path: labels, Err: err}
	}
	if err := dataset.CopyDir(desc.MaskAnnotationsDir, labels); err != nil {
		return dataset.Descriptor{}, err
	}
	if err := dataset.Touch(filepath.Join(root, dataset.AnnotationsFile)); err != nil {
		return dataset.Descriptor{}, err
	}

	return dataset.NewDescriptor(root), nil
}
