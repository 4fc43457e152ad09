// Package pcie implements the host-side gateway onto a single PCIe NFP
// device: BDF validation and the one config-space write needed to turn
// on memory-space and bus-master before any BAR can be used.
package pcie

import (
	"fmt"
	"os"

	"github.com/nfp-tools/cpp-tools/nfpcommon"
)

const (
	commandRegisterOffset = 4
	commandMemBusMaster   = 0x06
)

// ConfigPath returns the sysfs config-space path for a validated BDF.
func ConfigPath(bdf string) string {
	return fmt.Sprintf("/sys/bus/pci/devices/%s/config", bdf)
}

// ResourcePath returns the sysfs resource file path for physical BAR n.
func ResourcePath(bdf string, n int) string {
	return fmt.Sprintf("/sys/bus/pci/devices/%s/resource%d", bdf, n)
}

// Open validates bdf against the Merlin NFP vendor/device IDs and enables
// memory-space and bus-master in its PCI command register.
func Open(bdf string) (string, error) {
	normalized, err := nfpcommon.ValidateNfpBdf(bdf)
	if err != nil {
		return "", err
	}
	if err := initDeviceBars(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

func initDeviceBars(bdf string) error {
	path := ConfigPath(bdf)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()

	var buf [1]byte
	if _, err := f.ReadAt(buf[:], commandRegisterOffset); err != nil {
		return fmt.Errorf("file %s read failed: %w", path, err)
	}

	cfgVal := buf[0] | commandMemBusMaster
	if _, err := f.WriteAt([]byte{cfgVal}, commandRegisterOffset); err != nil {
		return fmt.Errorf("file %s write failed: %w", path, err)
	}
	return nil
}
