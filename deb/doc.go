// Package deb renders Debian control stanzas and assembles .deb archives from a staging tree.
//
// # Control stanza
//
// RenderControl is a pure function producing the five-field binary control
// stanza written to DEBIAN/control. Field order is fixed so that two builds of
// the same version produce byte-identical control files.
//
// # Archives
//
// The default build path hands the staging tree to dpkg-deb. When dpkg-deb is
// not available, Build assembles the same archive in Go: an ar container with
// debian-binary, control.tar.* and data.tar.*, every member owned by root.
// Members can be compressed with gzip, xz or zstd.
//
// ReadInfo reads back the control fields and payload listing of any .deb,
// whichever compression it uses.
package deb
