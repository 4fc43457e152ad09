// Package nfpcommon holds small numeric helpers shared across the bus
// stack: BDF validation, 48-bit address splitting, hex parsing, and
// 64-bit transaction alignment.
package nfpcommon

import (
	"fmt"
	"math/bits"
	"os"
	"strconv"
	"strings"
)

const (
	merlinVendorID = "0x1da8"
	merlinDeviceID = "0x7000"
)

// ValidateNfpBdf checks that pciBdf names a PCIe device in sysfs and that
// its vendor/device IDs match a Merlin NFP. A bare "bus:device.function"
// BDF is prefixed with the "0000:" domain. Returns the normalized BDF.
func ValidateNfpBdf(pciBdf string) (string, error) {
	bdf := pciBdf
	if strings.Count(bdf, ":") < 2 {
		bdf = "0000:" + bdf
	}

	basePath := fmt.Sprintf("/sys/bus/pci/devices/%s", bdf)
	if _, err := os.Stat(basePath); err != nil {
		return "", fmt.Errorf("no such PCIe device: %s", bdf)
	}

	vendor, err := os.ReadFile(basePath + "/vendor")
	if err != nil {
		return "", fmt.Errorf("failed to read vendor ID for device %s: %w", bdf, err)
	}

	device, err := os.ReadFile(basePath + "/device")
	if err != nil {
		return "", fmt.Errorf("failed to read device ID for device %s: %w", bdf, err)
	}

	if strings.TrimSpace(string(vendor)) != merlinVendorID || strings.TrimSpace(string(device)) != merlinDeviceID {
		return "", fmt.Errorf("PCIe BDF %s does not belong to a Merlin NFP", bdf)
	}

	return bdf, nil
}

// SplitAddr48 splits a 48-bit CPP address into an aperture-aligned base
// and the remaining offset. aperture need not be an exact power of two;
// it is rounded down to one, matching the source's leading-zero-count
// derivation.
func SplitAddr48(address uint64, aperture uint64) (base uint64, offset uint64) {
	if aperture == 0 {
		return 0, address
	}
	ap := uint64(1) << (63 - bits.LeadingZeros64(aperture))
	base = address &^ (ap - 1) & 0xFFFFFFFFFFFF
	offset = address - base
	return base, offset
}

// HexParser parses a decimal integer, or a hexadecimal one when prefixed
// with "0x"/"0X".
func HexParser(s string) (uint32, error) {
	if hex, ok := strings.CutPrefix(s, "0x"); ok {
		v, err := strconv.ParseUint(hex, 16, 32)
		return uint32(v), err
	}
	if hex, ok := strings.CutPrefix(s, "0X"); ok {
		v, err := strconv.ParseUint(hex, 16, 32)
		return uint32(v), err
	}
	v, err := strconv.ParseUint(s, 10, 32)
	return uint32(v), err
}

// AlignTransaction64 rounds a byte-addressed, word-length transaction
// down/up to the surrounding 8-byte (64-bit) boundary, returning the new
// address and the new length in 32-bit words.
func AlignTransaction64(address uint64, lengthInWords uint64) (alignedAddress uint64, alignedLengthInWords uint64) {
	lengthInBytes := lengthInWords * 4
	alignedAddress = address &^ 7
	unalignedEnd := address + lengthInBytes
	alignedEnd := (unalignedEnd + 7) &^ 7
	alignedLengthInBytes := alignedEnd - alignedAddress
	alignedLengthInWords = alignedLengthInBytes / 4
	return alignedAddress, alignedLengthInWords
}
