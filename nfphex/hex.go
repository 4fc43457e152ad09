/*
 * NFP CPP tools - Convert values to hex strings.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package nfphex formats words and byte slices as hex, used by the trace
// formatter and the raw-transaction dump tools.
package nfphex

import "strings"

var hexMap = "0123456789abcdef"

// FormatWord32 renders a single 32-bit word as "0x" followed by 8 hex digits.
func FormatWord32(str *strings.Builder, word uint32) {
	str.WriteString("0x")
	shift := 28
	for range 8 {
		str.WriteByte(hexMap[(word>>shift)&0xf])
		shift -= 4
	}
}

// FormatWord64 renders a single 64-bit word as "0x" followed by 16 hex digits.
func FormatWord64(str *strings.Builder, word uint64) {
	str.WriteString("0x")
	shift := 60
	for range 16 {
		str.WriteByte(hexMap[(word>>shift)&0xf])
		shift -= 4
	}
}

// FormatWords renders a slice of 32-bit words, each "0x"-prefixed and
// space-separated.
func FormatWords(str *strings.Builder, words []uint32) {
	for i, w := range words {
		if i > 0 {
			str.WriteByte(' ')
		}
		FormatWord32(str, w)
	}
}

// FormatBytes renders a byte slice as lowercase hex pairs, optionally
// space-separated.
func FormatBytes(str *strings.Builder, space bool, data []byte) {
	for _, by := range data {
		str.WriteByte(hexMap[(by>>4)&0xf])
		str.WriteByte(hexMap[by&0xf])
		if space {
			str.WriteByte(' ')
		}
	}
}
