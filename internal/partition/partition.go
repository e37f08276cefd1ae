package partition

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/leapstack-labs/dsablate/internal/dataset"
)

// Config holds generator configuration.
type Config struct {
	// ImageExt is the fixed image extension paired with each label (default ".tif").
	ImageExt string
	// LabelExt optionally restricts which files in labels/ are labels.
	LabelExt string
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// Generator materializes seeded train/validation partitions.
// A Generator holds no random state and is safe for concurrent use as long
// as callers target distinct (destination, seed) pairs.
type Generator struct {
	imageExt string
	labelExt string
	logger   *slog.Logger
}

// New creates a new Generator.
func New(cfg Config) *Generator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	imageExt := cfg.ImageExt
	if imageExt == "" {
		imageExt = dataset.DefaultImageExt
	}
	return &Generator{imageExt: imageExt, labelExt: cfg.LabelExt, logger: logger}
}

// Result describes one materialized partition pair.
type Result struct {
	Seed  int64
	Train dataset.Descriptor
	Val   dataset.Descriptor
	// TrainLabels and ValLabels list members in shuffled order.
	TrainLabels []string
	ValLabels   []string
}

// Descriptor returns the descriptor for p.
func (r *Result) Descriptor(p dataset.Partition) dataset.Descriptor {
	if p == dataset.Val {
		return r.Val
	}
	return r.Train
}

// Partition copies the corpus at corpusDir into
// destParentDir/{train,val}<seed>/{images,labels} and returns their descriptors.
//
// Every label is paired with its image before anything is written, so a
// *dataset.MissingPairError leaves the destination untouched. Both
// partitions are staged next to their final location and renamed into place
// once fully copied; an existing partition directory for the same seed is
// replaced.
func (g *Generator) Partition(ctx context.Context, seed int64, corpusDir, destParentDir string, valRatio float64) (*Result, error) {
	start := time.Now()
	corpus := dataset.Corpus{Root: corpusDir, ImageExt: g.imageExt, LabelExt: g.labelExt}

	labels, err := corpus.Labels()
	if err != nil {
		return nil, err
	}

	val, train, err := Split(labels, seed, valRatio)
	if err != nil {
		return nil, fmt.Errorf("%w: got %v", err, valRatio)
	}

	g.logger.Debug("partition split computed",
		slog.Int64("seed", seed),
		slog.Int("total", len(labels)),
		slog.Int("val", len(val)),
		slog.Int("train", len(train)))

	split := map[dataset.Partition][]string{dataset.Val: val, dataset.Train: train}
	members := make(map[dataset.Partition][]dataset.Pair, len(split))
	for _, p := range dataset.Partitions {
		pairs, err := corpus.Resolve(split[p])
		if err != nil {
			return nil, err
		}
		members[p] = pairs
	}

	if err := os.MkdirAll(destParentDir, 0o750); err != nil {
		return nil, &dataset.FilesystemError{Op: "create directory", Path: destParentDir, Err: err}
	}

	staged := make(map[dataset.Partition]string, len(dataset.Partitions))
	defer func() {
		for _, dir := range staged {
			_ = os.RemoveAll(dir)
		}
	}()

	for _, p := range dataset.Partitions {
		dir, err := g.stage(ctx, corpus, destParentDir, p.DirName(seed), members[p])
		if dir != "" {
			staged[p] = dir
		}
		if err != nil {
			return nil, err
		}
	}

	result := &Result{Seed: seed, TrainLabels: train, ValLabels: val}
	for _, p := range dataset.Partitions {
		final := filepath.Join(destParentDir, p.DirName(seed))
		if err := os.RemoveAll(final); err != nil {
			return nil, &dataset.FilesystemError{Op: "replace partition", Path: final, Err: err}
		}
		if err := os.Rename(staged[p], final); err != nil {
			return nil, &dataset.FilesystemError{Op: "commit partition", Path: final, Err: err}
		}
		delete(staged, p)

		if p == dataset.Val {
			result.Val = dataset.NewDescriptor(final)
		} else {
			result.Train = dataset.NewDescriptor(final)
		}
	}

	g.logger.Info("partition complete",
		slog.Int64("seed", seed),
		slog.String("train", result.Train.DataPath),
		slog.String("val", result.Val.DataPath),
		slog.Duration("elapsed", time.Since(start)))

	return result, nil
}

// stage copies pairs into a fresh staging directory under parent and
// creates the empty annotations placeholder. The staging path is returned
// even on failure so the caller can remove it.
func (g *Generator) stage(ctx context.Context, corpus dataset.Corpus, parent, name string, pairs []dataset.Pair) (string, error) {
	dir, err := os.MkdirTemp(parent, ".staging-"+name+"-")
	if err != nil {
		return "", &dataset.FilesystemError{Op: "create staging directory", Path: parent, Err: err}
	}
	if err := os.Chmod(dir, 0o750); err != nil {
		return dir, &dataset.FilesystemError{Op: "chmod", Path: dir, Err: err}
	}

	imagesDir := filepath.Join(dir, dataset.ImagesDir)
	labelsDir := filepath.Join(dir, dataset.LabelsDir)
	for _, sub := range []string{imagesDir, labelsDir} {
		if err := os.MkdirAll(sub, 0o750); err != nil {
			return dir, &dataset.FilesystemError{Op: "create directory", Path: sub, Err: err}
		}
	}

	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return dir, fmt.Errorf("partition %s cancelled: %w", name, err)
		}
		if err := dataset.CopyFile(filepath.Join(corpus.ImagesPath(), pair.Image), filepath.Join(imagesDir, pair.Image)); err != nil {
			return dir, err
		}
		if err := dataset.CopyFile(filepath.Join(corpus.LabelsPath(), pair.Label), filepath.Join(labelsDir, pair.Label)); err != nil {
			return dir, err
		}
	}

	if err := dataset.Touch(filepath.Join(dir, dataset.AnnotationsFile)); err != nil {
		return dir, err
	}

	g.logger.Debug("partition staged", slog.String("partition", name), slog.Int("pairs", len(pairs)))
	return dir, nil
}
