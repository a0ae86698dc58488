package deb

import (
	"archive/tar"
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/blakesmith/ar"
	"github.com/etnz/app-packager/layout"
)

// BuildOptions tunes Build.
type BuildOptions struct {
	// Compression of control.tar and data.tar. Defaults to gzip.
	Compression Compression
	// ModTime stamped on every member. Zero means the time of the build.
	ModTime time.Time
}

// Build assembles the .deb for a staging tree and writes it to w.
// stagingDir must contain DEBIAN/control (layout.DebControlDir). Every other file is payload,
// stored with owner and group root.
// It returns the number of bytes written.
func Build(w io.Writer, stagingDir string, opts BuildOptions) (int64, error) {
	cw := &countingWriter{w: w}
	modTime := opts.ModTime
	if modTime.IsZero() {
		modTime = time.Now()
	}
	comp := opts.Compression
	if comp == "" {
		comp = CompressionGzip
	}

	// 1. Data archive first: the control archive needs its md5sums.
	dataBuf := new(bytes.Buffer)
	md5Map, err := buildDataArchive(dataBuf, stagingDir, comp, modTime)
	if err != nil {
		return cw.n, fmt.Errorf("building data archive: %w", err)
	}

	// 2. Control archive.
	controlBuf := new(bytes.Buffer)
	if err := buildControlArchive(controlBuf, filepath.Join(stagingDir, layout.DebControlDir), md5Map, comp, modTime); err != nil {
		return cw.n, fmt.Errorf("building control archive: %w", err)
	}

	// 3. The outer AR container. Member order is mandated by deb(5).
	arW := ar.NewWriter(cw)
	if err := arW.WriteGlobalHeader(); err != nil {
		return cw.n, fmt.Errorf("writing ar global header: %w", err)
	}
	if err := addBufferToAr(arW, string(PkgDebianBinary), []byte("2.0\n"), modTime); err != nil {
		return cw.n, fmt.Errorf("writing %s: %w", PkgDebianBinary, err)
	}
	controlName := string(PkgControlTar) + comp.Suffix()
	if err := addBufferToAr(arW, controlName, controlBuf.Bytes(), modTime); err != nil {
		return cw.n, fmt.Errorf("writing %s: %w", controlName, err)
	}
	dataName := string(PkgDataTar) + comp.Suffix()
	if err := addBufferToAr(arW, dataName, dataBuf.Bytes(), modTime); err != nil {
		return cw.n, fmt.Errorf("writing %s: %w", dataName, err)
	}

	return cw.n, nil
}

// rootHeader returns a tar header owned by root:root, as dpkg-deb --root-owner-group does.
func rootHeader(name string, mode int64, modTime time.Time) *tar.Header {
	return &tar.Header{
		Name:    name,
		Mode:    mode,
		ModTime: modTime,
		Uid:     0,
		Gid:     0,
		Uname:   "root",
		Gname:   "root",
		Format:  tar.FormatGNU,
	}
}

// buildDataArchive writes the payload of stagingDir (DEBIAN excluded) and
// returns the md5 of every regular file keyed by its path relative to the root.
func buildDataArchive(w io.Writer, stagingDir string, comp Compression, modTime time.Time) (map[string]string, error) {
	cw, err := compress(w, comp)
	if err != nil {
		return nil, err
	}
	tw := tar.NewWriter(cw)

	md5Map := make(map[string]string)
	// WalkDir visits entries in lexical order, which keeps the archive reproducible.
	walkErr := filepath.WalkDir(stagingDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(stagingDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == layout.DebControlDir && d.IsDir() {
			return filepath.SkipDir
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		mode := int64(info.Mode().Perm())

		switch {
		case d.IsDir():
			name := "./"
			if rel != "." {
				name = "./" + rel + "/"
			}
			hdr := rootHeader(name, mode, modTime)
			hdr.Typeflag = tar.TypeDir
			return tw.WriteHeader(hdr)

		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(p)
			if err != nil {
				return err
			}
			hdr := rootHeader("./"+rel, 0777, modTime)
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = target
			return tw.WriteHeader(hdr)

		case info.Mode().IsRegular():
			content, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			hash := md5.Sum(content)
			md5Map[rel] = hex.EncodeToString(hash[:])

			hdr := rootHeader("./"+rel, mode, modTime)
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(content))
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			_, err = tw.Write(content)
			return err
		}
		return fmt.Errorf("unsupported file type %s: %s", info.Mode().Type(), p)
	})
	if walkErr != nil {
		return nil, walkErr
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := cw.Close(); err != nil {
		return nil, err
	}
	return md5Map, nil
}

// buildControlArchive writes control, md5sums and any other file found in controlDir.
func buildControlArchive(w io.Writer, controlDir string, md5Map map[string]string, comp Compression, modTime time.Time) error {
	entries, err := os.ReadDir(controlDir)
	if err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(controlDir, string(FileControl))); err != nil {
		return fmt.Errorf("missing %s/%s: %w", layout.DebControlDir, FileControl, err)
	}

	cw, err := compress(w, comp)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(cw)

	writeEntry := func(name string, content []byte, mode int64) error {
		hdr := rootHeader("./"+name, mode, modTime)
		hdr.Typeflag = tar.TypeReg
		hdr.Size = int64(len(content))
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		_, err := tw.Write(content)
		return err
	}

	dir := rootHeader("./", 0755, modTime)
	dir.Typeflag = tar.TypeDir
	if err := tw.WriteHeader(dir); err != nil {
		return err
	}

	// Maintainer-provided files, control first, then in name order; md5sums is always generated.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Name() == string(FileControl) && entries[j].Name() != string(FileControl)
	})
	for _, e := range entries {
		if !e.Type().IsRegular() || e.Name() == string(FileMd5sums) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return err
		}
		content, err := os.ReadFile(filepath.Join(controlDir, e.Name()))
		if err != nil {
			return err
		}
		if err := writeEntry(e.Name(), content, int64(info.Mode().Perm())); err != nil {
			return fmt.Errorf("writing %s: %w", e.Name(), err)
		}
	}

	if err := writeEntry(string(FileMd5sums), []byte(generateMd5sums(md5Map)), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", FileMd5sums, err)
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return cw.Close()
}

// generateMd5sums renders the md5sums control file, sorted by path.
func generateMd5sums(md5Map map[string]string) string {
	var paths []string
	for p := range md5Map {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	for _, p := range paths {
		fmt.Fprintf(&b, "%s  %s\n", md5Map[p], strings.TrimPrefix(path.Clean("/"+p), "/"))
	}
	return b.String()
}
