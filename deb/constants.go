package deb

// ControlField represents a standard field in a Debian control file.
type ControlField string

const (
	FieldPackage      ControlField = "Package"
	FieldVersion      ControlField = "Version"
	FieldArchitecture ControlField = "Architecture"
	FieldMaintainer   ControlField = "Maintainer"
	FieldDescription  ControlField = "Description"
)

// ControlFile represents a standard file found in the control archive.
type ControlFile string

const (
	FileControl ControlFile = "control"
	FileMd5sums ControlFile = "md5sums"
)

// PackageFile represents a standard member of the .deb archive (ar format).
type PackageFile string

const (
	PkgDebianBinary PackageFile = "debian-binary"
	PkgControlTar   PackageFile = "control.tar"
	PkgDataTar      PackageFile = "data.tar"
)

// Compression selects how the control and data members are compressed.
type Compression string

const (
	CompressionGzip Compression = "gzip"
	CompressionXz   Compression = "xz"
	CompressionZstd Compression = "zstd"
)

// Suffix is the member name extension of the compression.
func (c Compression) Suffix() string {
	switch c {
	case CompressionXz:
		return ".xz"
	case CompressionZstd:
		return ".zst"
	default:
		return ".gz"
	}
}

// ParseCompression validates a user supplied compression name. Empty means gzip.
func ParseCompression(s string) (Compression, bool) {
	switch Compression(s) {
	case "", CompressionGzip:
		return CompressionGzip, true
	case CompressionXz, CompressionZstd:
		return Compression(s), true
	}
	return "", false
}
