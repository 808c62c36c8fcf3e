package apiclient

import (
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/kirillkom/praxis-intake/internal/core/domain"
)

const zipMimeType = "application/zip"

// PackDirectory writes every regular file under dir into a zip archive on w.
// Entry names are relative to dir and use forward slashes.
func PackDirectory(dir string, w io.Writer) error {
	zw := zip.NewWriter(w)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		header.Method = zip.Deflate

		entry, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(entry, src)
		_ = src.Close()
		return err
	})
	if err != nil {
		_ = zw.Close()
		return fmt.Errorf("pack %s: %w", dir, err)
	}
	return zw.Close()
}

// OpenLocal turns a path into a batch member. Directories are packed into a
// temporary archive under tmpDir. The returned closer releases the file.
func OpenLocal(path, tmpDir string) (domain.BatchFile, io.Closer, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.BatchFile{}, nil, err
	}

	if info.IsDir() {
		return packToTemp(path, tmpDir)
	}

	f, err := os.Open(path)
	if err != nil {
		return domain.BatchFile{}, nil, err
	}
	return domain.BatchFile{
		Filename: filepath.Base(path),
		MimeType: detectMimeType(path),
		Size:     info.Size(),
		Body:     f,
	}, f, nil
}

func packToTemp(dir, tmpDir string) (domain.BatchFile, io.Closer, error) {
	name := filepath.Base(filepath.Clean(dir)) + ".zip"
	tmp, err := os.CreateTemp(tmpDir, "praxis-*.zip")
	if err != nil {
		return domain.BatchFile{}, nil, err
	}
	cleanup := &tempFile{File: tmp}

	if err := PackDirectory(dir, tmp); err != nil {
		_ = cleanup.Close()
		return domain.BatchFile{}, nil, err
	}
	size, err := tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		_ = cleanup.Close()
		return domain.BatchFile{}, nil, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		_ = cleanup.Close()
		return domain.BatchFile{}, nil, err
	}
	return domain.BatchFile{
		Filename: name,
		MimeType: zipMimeType,
		Size:     size,
		Body:     tmp,
	}, cleanup, nil
}

type tempFile struct {
	*os.File
}

func (t *tempFile) Close() error {
	err := t.File.Close()
	if rmErr := os.Remove(t.Name()); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}

func detectMimeType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".zip" {
		return zipMimeType
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
