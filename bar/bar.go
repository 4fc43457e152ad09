// Package bar implements the expansion-BAR manager and translator
// (spec components C2/C3): allocating a host-wide exclusive logical
// sub-aperture of the debug physical BAR, mmapping it, and encoding CPP
// transaction parameters into the aperture's translation-config words.
package bar

import (
	"fmt"
	"math/bits"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"
)

// MapType selects how much of the 48-bit CPP address and command fields
// are baked into the translation versus substituted dynamically.
type MapType int

const (
	Fixed MapType = iota
	Bulk
	Target
	General
	Explicit
)

// baseAddrWidth is the number of base-address bits each map type encodes
// directly; the rest are supplied at access time.
func (m MapType) baseAddrWidth() int {
	switch m {
	case Fixed:
		return 32
	case Bulk:
		return 38
	case Target:
		return 40
	case General:
		return 44
	default:
		return 32
	}
}

const (
	// barConfigBaseConfigSnoop is the BAR-config expansion block's offset
	// in PCIe config space, as seen through the config-snoop interface.
	barConfigBaseConfigSnoop = 0xA00
	expansionBarPhysOffset   = 0x40
	expansionBarCSROffset    = 0x8

	// cppExpansionBarPhysicalBar is the only physical BAR this toolkit
	// will program; BARs 0 and 1 belong to the NSP and application firmware.
	cppExpansionBarPhysicalBar = 2
	// cppMaxNumExpansionBars is the number of logical sub-apertures per
	// physical BAR.
	cppMaxNumExpansionBars = 8
)

// Aperture is a single logical sub-aperture of the debug physical BAR:
// an mmapped window plus the cached translation-config words that were
// last written for it.
type Aperture struct {
	pciBdf      string
	physBar     uint8
	physBarPath string
	expBar      uint8

	MapType       MapType
	cachedCfg     [2]uint32
	BaseAddr      uint64
	Size          uint64

	lock *flock.Flock
	file *os.File
	mmap []byte
}

// New acquires a logical sub-aperture of the debug physical BAR for
// pciBdf and mmaps it. If barMapping is non-nil, that specific
// (physBar, expBarIndex) pair is claimed instead of searching for a free
// one; New fails if it is already locked.
func New(pciBdf string, barMapping *[2]uint8) (*Aperture, error) {
	var physBar, expBar uint8
	var lock *flock.Flock
	var err error

	if barMapping != nil {
		physBar, expBar = barMapping[0], barMapping[1]
		path := lockFilePath(pciBdf, physBar, expBar)
		lock, err = acquireLockFile(path)
		if err != nil {
			return nil, fmt.Errorf("exp_bar%d-%d should not be locked: %w", physBar, expBar, err)
		}
	} else {
		physBar, expBar, lock, err = allocateExpBar(pciBdf)
		if err != nil {
			return nil, err
		}
	}

	physBarPath := fmt.Sprintf("/sys/bus/pci/devices/%s/resource%d", pciBdf, 2*physBar)

	info, err := os.Stat(physBarPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("error getting file metadata: %w", err)
	}
	physBarSize := uint64(info.Size())
	expBarSize := physBarSize / 8
	expBarOffset := uint64(expBar) * expBarSize

	file, err := os.OpenFile(physBarPath, os.O_RDWR, 0)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("failed to open mmap file in read-write mode: %w", err)
	}

	region, err := unix.Mmap(int(file.Fd()), int64(expBarOffset), int(expBarSize),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("failed to map expansion BAR region: %w", err)
	}

	return &Aperture{
		pciBdf:      pciBdf,
		physBar:     physBar,
		physBarPath: physBarPath,
		expBar:      expBar,
		MapType:     Fixed,
		BaseAddr:    0,
		Size:        expBarSize,
		lock:        lock,
		file:        file,
		mmap:        region,
	}, nil
}

func lockFilePath(pciBdf string, physBar, expBar uint8) string {
	dir := fmt.Sprintf("/var/run/nfp_tools/%s", pciBdf)
	return filepath.Join(dir, fmt.Sprintf("exp_bar%d-%d_lock", physBar, expBar))
}

func acquireLockFile(path string) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("lock already held: %s", path)
	}
	return lock, nil
}

func allocateExpBar(pciBdf string) (physBar, expBar uint8, lock *flock.Flock, err error) {
	dir := fmt.Sprintf("/var/run/nfp_tools/%s", pciBdf)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, 0, nil, fmt.Errorf("failed to create dir %s: %w", dir, err)
	}

	for idx := 0; idx < cppMaxNumExpansionBars; idx++ {
		path := lockFilePath(pciBdf, cppExpansionBarPhysicalBar, uint8(idx))
		l, lockErr := acquireLockFile(path)
		if lockErr == nil {
			return cppExpansionBarPhysicalBar, uint8(idx), l, nil
		}
	}

	return 0, 0, nil, fmt.Errorf("no expansion BARs available")
}

func (a *Aperture) expBarConfigWrite(cfg0, cfg1 uint32) error {
	if a.pciBdf == "" {
		// No backing device (simulated aperture, or a bare Aperture{}
		// literal built directly for unit tests): there is no config
		// space to program, so just accept the new cached words.
		return nil
	}
	path := fmt.Sprintf("/sys/bus/pci/devices/%s/config", a.pciBdf)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()

	addr := int64(barConfigBaseConfigSnoop) +
		int64(a.physBar)*expansionBarPhysOffset +
		int64(a.expBar)*expansionBarCSROffset

	var buf [8]byte
	putLE32(buf[0:4], cfg0)
	putLE32(buf[4:8], cfg1)
	if _, err := f.WriteAt(buf[:], addr); err != nil {
		return fmt.Errorf("file %s write failed: %w", path, err)
	}
	return nil
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// Configure programs this aperture's translation config for the given
// CPP transaction parameters, skipping the PCIe config-space write when
// the computed words match the cached ones.
func (a *Aperture) Configure(tgtIslandID, target, action, token uint8, baseAddr uint64, cppLen uint8) error {
	var cfg0, cfg1 uint32

	cfg0 |= 1 << 31
	cfg0 |= (uint32(a.MapType) & 0x7) << 20

	if a.MapType == Explicit {
		if cfg0 != a.cachedCfg[0] || cfg1 != a.cachedCfg[1] {
			if err := a.expBarConfigWrite(cfg0, cfg1); err != nil {
				return err
			}
			a.cachedCfg[0], a.cachedCfg[1] = cfg0, cfg1
		}
		return nil
	}

	if bits.Len64(baseAddr) > 48 {
		return fmt.Errorf("provided base_addr is too long for a CPP address")
	}

	width := a.MapType.baseAddrWidth()

	if baseAddr != 0 {
		lowestBit := baseAddr & -baseAddr
		bitLength := bits.Len64(lowestBit)
		if bitLength-1 < 48-width {
			return fmt.Errorf("expansion BAR uses a %d-bit base address: the lower %d bits of address %#010x would be truncated", width, 48-width, baseAddr)
		}
	}

	addrIdx := 48

	cfg0 |= (uint32(cppLen) & 0x3) << 16
	cfg0 |= (uint32(tgtIslandID) & 0x7F) << 24

	switch a.MapType {
	case General:
		cfg0 |= uint32((baseAddr>>(addrIdx-4))&0xF) << 12
		addrIdx -= 4
	default:
		cfg0 |= (uint32(target) & 0xF) << 12
	}

	switch a.MapType {
	case Fixed, Bulk:
		cfg0 |= (uint32(token) & 0x3) << 8
	default:
		cfg0 |= uint32((baseAddr>>(addrIdx-2))&0x3) << 8
		addrIdx -= 2
	}

	switch a.MapType {
	case Fixed:
		cfg0 |= uint32(action) & 0x3F
	default:
		cfg0 |= uint32((baseAddr >> (addrIdx - 6)) & 0x3F)
		addrIdx -= 6
	}

	cfg1 = uint32(baseAddr >> (addrIdx - 32))

	if cfg0 != a.cachedCfg[0] || cfg1 != a.cachedCfg[1] {
		if err := a.expBarConfigWrite(cfg0, cfg1); err != nil {
			return err
		}
		a.cachedCfg[0], a.cachedCfg[1] = cfg0, cfg1
	}
	return nil
}

// Read returns a bounds-checked copy of length bytes at offset within
// this aperture's mmapped region.
func (a *Aperture) Read(offset, length uint64) ([]byte, error) {
	if offset+length > uint64(len(a.mmap)) {
		return nil, fmt.Errorf("requested region exceeds mapped region")
	}
	out := make([]byte, length)
	copy(out, a.mmap[offset:offset+length])
	return out, nil
}

// Write copies data into this aperture's mmapped region at offset.
func (a *Aperture) Write(data []byte, offset uint64) error {
	if offset+uint64(len(data)) > uint64(len(a.mmap)) {
		return fmt.Errorf("requested region exceeds mapped region")
	}
	copy(a.mmap[offset:offset+uint64(len(data))], data)
	return nil
}

// Close unmaps the region, closes the BAR resource file, and releases
// the host-wide exclusive lock. Best-effort: the first error encountered
// is returned, but all steps are attempted.
func (a *Aperture) Close() error {
	var firstErr error
	if a.mmap != nil {
		if err := unix.Munmap(a.mmap); err != nil && firstErr == nil {
			firstErr = err
		}
		a.mmap = nil
	}
	if a.file != nil {
		if err := a.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		a.file = nil
	}
	if a.lock != nil {
		if err := a.lock.Unlock(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// String identifies the aperture as "physBar.expBar".
func (a *Aperture) String() string {
	return fmt.Sprintf("%d.%d", a.physBar, a.expBar)
}

// ApertureSize returns the size, in bytes, of this aperture's mmapped window.
func (a *Aperture) ApertureSize() uint64 {
	return a.Size
}

// TranslatedAperture is the subset of Aperture's behavior the bus-stack
// layers (cppbus, explicitbar) depend on. Tests substitute a simulator
// implementing this interface for real PCIe/mmap hardware.
type TranslatedAperture interface {
	Configure(tgtIslandID, target, action, token uint8, baseAddr uint64, cppLen uint8) error
	Read(offset, length uint64) ([]byte, error)
	Write(data []byte, offset uint64) error
	ApertureSize() uint64
}
