package loader

import "github.com/cwbudde/floe-core/sample"

// DescriptorReader supplies an already-decoded library descriptor: name,
// author, version, and every region's key/velocity/loop mapping plus its
// audio-file relative path. This package never parses a descriptor
// format itself (Lua tables, JSON, whatever a library ships) -- a caller
// decodes it and hands back the resulting sample.Library.
type DescriptorReader interface {
	ReadLibrary() (*sample.Library, error)
}

// LoadLibraryFromDescriptor reads a library through reader and adds it,
// so a host's descriptor format stays entirely outside this package.
func (l *Loader) LoadLibraryFromDescriptor(reader DescriptorReader) error {
	lib, err := reader.ReadLibrary()
	if err != nil {
		return err
	}
	l.AddLibrary(lib)
	return nil
}
