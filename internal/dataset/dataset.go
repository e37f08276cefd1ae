package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Layout names shared with the external training task.
const (
	ImagesDir       = "images"
	LabelsDir       = "labels"
	AnnotationsFile = "annotations.json"

	DefaultImageExt = ".tif"
)

// Partition identifies one side of a train/validation split.
type Partition string

// Partition values.
const (
	Train Partition = "train"
	Val   Partition = "val"
)

// Partitions lists partitions in the order they are materialized.
var Partitions = []Partition{Train, Val}

// DirName returns the directory name of this partition for a seed, e.g. "val47625".
func (p Partition) DirName(seed int64) string {
	return fmt.Sprintf("%s%d", p, seed)
}

// Descriptor locates a corpus for the external training task.
// Descriptors are value types and never mutated after creation.
type Descriptor struct {
	DataPath           string `json:"data_path" yaml:"data_path"`
	MaskAnnotationsDir string `json:"mask_annotations_dir" yaml:"mask_annotations_dir"`
}

// NewDescriptor returns the descriptor for a corpus rooted at dataPath.
func NewDescriptor(dataPath string) Descriptor {
	return Descriptor{
		DataPath:           dataPath,
		MaskAnnotationsDir: filepath.Join(dataPath, LabelsDir),
	}
}

// ImagesPath returns the images directory of the described corpus.
func (d Descriptor) ImagesPath() string {
	return filepath.Join(d.DataPath, ImagesDir)
}

// Corpus is a labeled image directory pair.
type Corpus struct {
	Root     string
	ImageExt string
	// LabelExt optionally restricts which files in labels/ count as labels.
	// Empty means every regular file.
	LabelExt string
}

// NewCorpus returns a corpus rooted at root with the default image extension.
func NewCorpus(root string) Corpus {
	return Corpus{Root: root, ImageExt: DefaultImageExt}
}

// ImagesPath returns <root>/images.
func (c Corpus) ImagesPath() string {
	return filepath.Join(c.Root, ImagesDir)
}

// LabelsPath returns <root>/labels.
func (c Corpus) LabelsPath() string {
	return filepath.Join(c.Root, LabelsDir)
}

// Labels returns the sorted names of all regular files in labels/.
// Sorting makes the listing independent of filesystem order.
func (c Corpus) Labels() ([]string, error) {
	entries, err := os.ReadDir(c.LabelsPath())
	if err != nil {
		return nil, &FilesystemError{Op: "list labels", Path: c.LabelsPath(), Err: err}
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if c.LabelExt != "" && !strings.EqualFold(filepath.Ext(entry.Name()), c.LabelExt) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// ImageNameFor maps a label filename to its paired image filename by
// replacing the label's extension with the corpus image extension.
func (c Corpus) ImageNameFor(label string) string {
	ext := c.ImageExt
	if ext == "" {
		ext = DefaultImageExt
	}
	return strings.TrimSuffix(label, filepath.Ext(label)) + ext
}

// Pair is a resolved label/image couple inside a corpus.
type Pair struct {
	Label string
	Image string
}

// Resolve pairs every label with its image. It fails on the first label
// whose image is missing, before anything is read or written.
func (c Corpus) Resolve(labels []string) ([]Pair, error) {
	pairs := make([]Pair, 0, len(labels))
	for _, label := range labels {
		image := c.ImageNameFor(label)
		info, err := os.Stat(filepath.Join(c.ImagesPath(), image))
		if err != nil || !info.Mode().IsRegular() {
			return nil, &MissingPairError{
				Label: filepath.Join(c.LabelsPath(), label),
				Image: filepath.Join(c.ImagesPath(), image),
			}
		}
		pairs = append(pairs, Pair{Label: label, Image: image})
	}
	return pairs, nil
}
