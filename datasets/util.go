package datasets

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// payloadPaths resolves a record's FilePath against the source dataset
// directory and returns where it lives and where its copy goes in dstDir.
// Relative paths keep their layout below dstDir. Absolute paths inside srcDir
// are treated the same way; other absolute paths are copied by base name.
func payloadPaths(srcDir, dstDir, filePath string) (src, dst string, err error) {
	if filepath.IsAbs(filePath) {
		rel, err := filepath.Rel(srcDir, filePath)
		if err != nil || !isLocal(rel) {
			rel = filepath.Base(filePath)
		}
		return filePath, filepath.Join(dstDir, rel), nil
	}
	rel := filepath.Clean(filepath.FromSlash(filePath))
	if !isLocal(rel) {
		return "", "", fmt.Errorf("file path %q escapes the dataset directory", filePath)
	}
	return filepath.Join(srcDir, rel), filepath.Join(dstDir, rel), nil
}

func isLocal(rel string) bool {
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// localPath resolves a record's FilePath for reading from dir.
func localPath(dir, filePath string) string {
	if filepath.IsAbs(filePath) {
		return filePath
	}
	return filepath.Join(dir, filepath.FromSlash(filePath))
}

// copyFile copies src to dst through a temp file so dst is never left
// half-written. Parent directories of dst are created.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	_, err = io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, dst)
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return nil
}

// samePath reports whether a and b name the same directory after cleaning.
func samePath(a, b string) bool {
	aa, errA := filepath.Abs(a)
	bb, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return aa == bb
}
