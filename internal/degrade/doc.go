// Package degrade re-encodes image directories through lossy transforms to
// simulate sensor and compression degradation.
//
// A Modifier is a named, stateless Pipeline of Stages. Apply runs the
// pipeline over every regular file of a source directory and writes the
// results under <modified_root>/<source basename> with identical filenames,
// encoded in the format implied by each file's extension.
//
// Channel convention: grayscale inputs (8 or 16 bit) are normalized to
// 8-bit *image.Gray and stay single channel through JPEG; every other
// color model is normalized to opaque *image.RGBA, flattening alpha onto
// black. Pixel dimensions are preserved.
package degrade
