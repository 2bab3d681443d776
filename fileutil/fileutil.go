package fileutil

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// SaveUpload streams src to dst, creating parent directories as needed.
// Returns the number of bytes written.
func SaveUpload(src io.Reader, dst string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("create upload dir: %w", err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("create upload file: %w", err)
	}
	defer out.Close()

	written, err := io.Copy(out, src)
	if err != nil {
		return written, fmt.Errorf("write upload file: %w", err)
	}
	return written, nil
}

// HashFile returns the hex SHA-256 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DirSize returns the total size in bytes of all regular files under dir,
// recursively.
func DirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}

// CreateZipArchive writes every regular file under sourceDir into outputZip,
// rooted at arcname inside the archive. Returns the archive size in bytes.
func CreateZipArchive(sourceDir, outputZip, arcname string) (int64, error) {
	if _, err := os.Stat(sourceDir); err != nil {
		return 0, fmt.Errorf("source directory not found: %s", sourceDir)
	}
	if arcname == "" {
		arcname = filepath.Base(sourceDir)
	}
	if err := os.MkdirAll(filepath.Dir(outputZip), 0o755); err != nil {
		return 0, err
	}

	out, err := os.Create(outputZip)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	err = filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(filepath.Join(arcname, rel)))
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	if err != nil {
		zw.Close()
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}

	info, err := out.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Task path layout: uploads land in <uploadRoot>/<taskID>/<filename>, the
// worker exports into <exportRoot>/<taskID>, and the payload to serve back
// is the Assets subdirectory the worker produces inside it.

func TaskUploadDir(uploadRoot, taskID string) string {
	return filepath.Join(uploadRoot, taskID)
}

func TaskUploadPath(uploadRoot, taskID, filename string) string {
	return filepath.Join(uploadRoot, taskID, filepath.Base(filename))
}

func TaskExportDir(exportRoot, taskID string) string {
	return filepath.Join(exportRoot, taskID)
}

func TaskAssetsDir(exportRoot, taskID string) string {
	return filepath.Join(exportRoot, taskID, "Assets")
}

// CleanupTaskFiles removes the upload and export directories of a task.
func CleanupTaskFiles(uploadRoot, exportRoot, taskID string) error {
	if err := os.RemoveAll(TaskUploadDir(uploadRoot, taskID)); err != nil {
		return err
	}
	return os.RemoveAll(TaskExportDir(exportRoot, taskID))
}
