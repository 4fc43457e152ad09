package bar

// NewSimulated builds an Aperture backed by a plain in-memory buffer
// instead of a real PCIe mmap, for use by tests in this module's other
// packages that exercise the bus stack end-to-end.
func NewSimulated(size uint64) *Aperture {
	return &Aperture{
		MapType: Fixed,
		Size:    size,
		mmap:    make([]byte, size),
	}
}
