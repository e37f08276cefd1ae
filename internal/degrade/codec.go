package degrade

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/leapstack-labs/dsablate/internal/dataset"
)

// outputJPEGQuality is used when a degraded image is written back to a
// .jpg file, on top of whatever the pipeline already did.
const outputJPEGQuality = 95

// Format names the container an image is written back as.
type Format string

// Supported formats.
const (
	FormatTIFF Format = "tiff"
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatBMP  Format = "bmp"
)

// FormatForPath returns the output format implied by path's extension.
func FormatForPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		return FormatTIFF, true
	case ".png":
		return FormatPNG, true
	case ".jpg", ".jpeg":
		return FormatJPEG, true
	case ".bmp":
		return FormatBMP, true
	default:
		return "", false
	}
}

// DecodeFile decodes the image at path. Files that are not decodable, or
// decode to an empty raster, yield a *dataset.InvalidImageError.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &dataset.FilesystemError{Op: "open", Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	img, err := decode(f)
	if err != nil {
		return nil, &dataset.InvalidImageError{Path: path, Reason: "decode failed", Err: err}
	}
	if img.Bounds().Empty() {
		return nil, &dataset.InvalidImageError{Path: path, Reason: "image has no pixels"}
	}
	return img, nil
}

var errUnknownFormat = errors.New("unrecognized image format")

func decode(r io.Reader) (image.Image, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(4)
	switch {
	case len(head) >= 4 && (string(head) == "II*\x00" || string(head) == "MM\x00*"):
		return tiff.Decode(br)
	case len(head) >= 4 && string(head) == "\x89PNG":
		return png.Decode(br)
	case len(head) >= 2 && head[0] == 0xff && head[1] == 0xd8:
		return jpeg.Decode(br)
	case len(head) >= 2 && string(head[:2]) == "BM":
		return bmp.Decode(br)
	default:
		return nil, errUnknownFormat
	}
}

// Encode writes img to w in format f.
func Encode(w io.Writer, img image.Image, f Format) error {
	switch f {
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Uncompressed})
	case FormatPNG:
		return png.Encode(w, img)
	case FormatJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: outputJPEGQuality})
	case FormatBMP:
		return bmp.Encode(w, img)
	default:
		return fmt.Errorf("unsupported format %q", f)
	}
}

// EncodeFile writes img to path in the format implied by its extension.
func EncodeFile(path string, img image.Image) (err error) {
	format, ok := FormatForPath(path)
	if !ok {
		return &dataset.InvalidImageError{Path: path, Reason: "unsupported output extension"}
	}

	f, err := os.Create(path)
	if err != nil {
		return &dataset.FilesystemError{Op: "create", Path: path, Err: err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = &dataset.FilesystemError{Op: "close", Path: path, Err: cerr}
		}
	}()

	bw := bufio.NewWriter(f)
	if err := Encode(bw, img, format); err != nil {
		return &dataset.InvalidImageError{Path: path, Reason: "encode failed", Err: err}
	}
	if err := bw.Flush(); err != nil {
		return &dataset.FilesystemError{Op: "write", Path: path, Err: err}
	}
	return nil
}
