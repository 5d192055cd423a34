package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// ErrUnsafePath is returned for entries that would land outside the target directory.
var ErrUnsafePath = errors.New("archive entry escapes target directory")

const (
	dirPermissions  = 0o755
	filePermissions = 0o644
)

// Extract unpacks the zip at archivePath into dir.
func Extract(ctx context.Context, archivePath, dir string) error {
	reader, err := zip.OpenReader(filepath.Clean(archivePath))
	if err != nil {
		return fmt.Errorf("open archive %s: %w", archivePath, err)
	}

	defer func() {
		_ = reader.Close()
	}()

	reader.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())

	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(root, dirPermissions); err != nil {
		return fmt.Errorf("create %s: %w", root, err)
	}

	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", root, err)
	}

	for _, file := range reader.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := extractEntry(root, realRoot, file); err != nil {
			return fmt.Errorf("extract %s: %w", file.Name, err)
		}
	}

	return nil
}

// Create zips the tree rooted at dir into archivePath.
// The archive is written next to archivePath and renamed into place when complete.
func Create(ctx context.Context, dir, archivePath string) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	paths, err := collect(root)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(archivePath), "."+filepath.Base(archivePath)+".*")
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	tmpPath := tmp.Name()

	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	writer := zip.NewWriter(tmp)
	writer.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := addEntry(writer, root, path); err != nil {
			return fmt.Errorf("add %s: %w", path, err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}

	if err := os.Rename(tmpPath, archivePath); err != nil {
		return fmt.Errorf("move archive into place: %w", err)
	}

	return nil
}

// extractEntry writes one entry below root.
// Parents are checked after resolving symlinks already extracted, so chained links cannot escape realRoot.
func extractEntry(root, realRoot string, file *zip.File) error {
	target, err := safeJoin(root, file.Name)
	if err != nil {
		return err
	}

	realDir, err := resolveDir(filepath.Dir(target))
	if err != nil {
		return err
	}

	if !within(realRoot, realDir) {
		return fmt.Errorf("%q resolves outside the target: %w", file.Name, ErrUnsafePath)
	}

	if info, err := os.Lstat(target); err == nil && info.Mode()&fs.ModeSymlink != 0 {
		return fmt.Errorf("%q overwrites a symlink: %w", file.Name, ErrUnsafePath)
	}

	mode := file.Mode()

	switch {
	case mode.IsDir():
		return os.MkdirAll(target, dirPermissions)
	case mode&fs.ModeSymlink != 0:
		return extractSymlink(realRoot, realDir, target, file)
	default:
		return extractFile(target, file, mode.Perm())
	}
}

func extractSymlink(realRoot, realDir, target string, file *zip.File) error {
	contents, err := readAll(file)
	if err != nil {
		return err
	}

	link := string(contents)
	if filepath.IsAbs(link) {
		return fmt.Errorf("absolute symlink %q: %w", link, ErrUnsafePath)
	}

	resolved := filepath.Join(realDir, filepath.FromSlash(link))
	if !within(realRoot, resolved) {
		return fmt.Errorf("symlink %q: %w", link, ErrUnsafePath)
	}

	if err := os.MkdirAll(filepath.Dir(target), dirPermissions); err != nil {
		return err
	}

	return os.Symlink(filepath.FromSlash(link), target)
}

// resolveDir resolves symlinks in the existing part of dir and appends the missing rest.
func resolveDir(dir string) (string, error) {
	resolved, err := filepath.EvalSymlinks(dir)
	if err == nil {
		return resolved, nil
	}

	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	parent := filepath.Dir(dir)
	if parent == dir {
		return dir, nil
	}

	resolvedParent, err := resolveDir(parent)
	if err != nil {
		return "", err
	}

	return filepath.Join(resolvedParent, filepath.Base(dir)), nil
}

func extractFile(target string, file *zip.File, perm fs.FileMode) error {
	if perm == 0 {
		perm = filePermissions
	}

	if err := os.MkdirAll(filepath.Dir(target), dirPermissions); err != nil {
		return err
	}

	source, err := file.Open()
	if err != nil {
		return err
	}

	defer func() {
		_ = source.Close()
	}()

	destination, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}

	if _, err := io.Copy(destination, source); err != nil { //nolint:gosec // Archives come from verified artifacts.
		_ = destination.Close()
		return err
	}

	return destination.Close()
}

func readAll(file *zip.File) ([]byte, error) {
	source, err := file.Open()
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = source.Close()
	}()

	return io.ReadAll(source)
}

func collect(root string) ([]string, error) {
	var paths []string

	err := filepath.WalkDir(root, func(path string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if path != root {
			paths = append(paths, path)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	slices.Sort(paths)

	return paths, nil
}

func addEntry(writer *zip.Writer, root, path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}

	relative, err := filepath.Rel(root, path)
	if err != nil {
		return err
	}

	header.Name = filepath.ToSlash(relative)

	switch {
	case info.IsDir():
		header.Name += "/"
		header.Method = zip.Store

		_, err = writer.CreateHeader(header)

		return err
	case info.Mode()&fs.ModeSymlink != 0:
		link, err := os.Readlink(path)
		if err != nil {
			return err
		}

		header.Method = zip.Store

		entry, err := writer.CreateHeader(header)
		if err != nil {
			return err
		}

		_, err = io.WriteString(entry, filepath.ToSlash(link))

		return err
	default:
		header.Method = zip.Deflate

		entry, err := writer.CreateHeader(header)
		if err != nil {
			return err
		}

		source, err := os.Open(path)
		if err != nil {
			return err
		}

		defer func() {
			_ = source.Close()
		}()

		_, err = io.Copy(entry, source)

		return err
	}
}

func safeJoin(root, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%q: %w", name, ErrUnsafePath)
	}

	target := filepath.Join(root, filepath.FromSlash(name))
	if !within(root, target) {
		return "", fmt.Errorf("%q: %w", name, ErrUnsafePath)
	}

	return target, nil
}

func within(root, path string) bool {
	relative, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}

	return relative == "." || (relative != ".." && !strings.HasPrefix(relative, ".."+string(filepath.Separator)))
}
