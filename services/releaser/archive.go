package releaser

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// writeArchive compresses src into a single-member gzip file at dst using the highest
// compression level. It returns the size of the archive.
func writeArchive(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open %q: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %q: %w", src, err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("create archive: %w", err)
	}

	zw, err := gzip.NewWriterLevel(out, gzip.BestCompression)
	if err != nil {
		out.Close()
		return 0, fmt.Errorf("gzip writer: %w", err)
	}
	zw.Name = filepath.Base(src)
	zw.ModTime = info.ModTime()

	if _, err := io.Copy(zw, in); err != nil {
		zw.Close()
		out.Close()
		return 0, fmt.Errorf("compress %q: %w", src, err)
	}
	if err := errors.Join(zw.Close(), out.Sync()); err != nil {
		out.Close()
		return 0, fmt.Errorf("finish archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("close archive: %w", err)
	}

	stat, err := os.Stat(dst)
	if err != nil {
		return 0, err
	}
	return stat.Size(), nil
}
