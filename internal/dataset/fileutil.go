package dataset

import (
	"io"
	"os"
	"path/filepath"
)

// CopyFile copies the regular file src to dst, replacing dst.
func CopyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return &FilesystemError{Op: "open", Path: src, Err: err}
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return &FilesystemError{Op: "create", Path: dst, Err: err}
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = &FilesystemError{Op: "close", Path: dst, Err: cerr}
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return &FilesystemError{Op: "copy", Path: dst, Err: err}
	}
	return nil
}

// CopyDir copies the regular files at the top level of src into dst.
// Subdirectories are skipped.
func CopyDir(src, dst string) error {
	if err := os.MkdirAll(dst, 0o750); err != nil {
		return &FilesystemError{Op: "create directory", Path: dst, Err: err}
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return &FilesystemError{Op: "read directory", Path: src, Err: err}
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if err := CopyFile(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// Touch creates an empty file at path if it does not exist.
// Existing files are left untouched.
func Touch(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return &FilesystemError{Op: "create", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &FilesystemError{Op: "close", Path: path, Err: err}
	}
	return nil
}
