// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package imgcodec

// faxCode is one modified Huffman code: the low bits of code, MSB first.
type faxCode struct {
	code uint16
	bits uint8
	run  uint16
}

// White run lengths, terminating codes followed by makeup codes up to 1728.
var faxWhiteCodes = []faxCode{
	{0x35, 8, 0},     // 00110101
	{0x7, 6, 1},      // 000111
	{0x7, 4, 2},      // 0111
	{0x8, 4, 3},      // 1000
	{0xB, 4, 4},      // 1011
	{0xC, 4, 5},      // 1100
	{0xE, 4, 6},      // 1110
	{0xF, 4, 7},      // 1111
	{0x13, 5, 8},     // 10011
	{0x14, 5, 9},     // 10100
	{0x7, 5, 10},     // 00111
	{0x8, 5, 11},     // 01000
	{0x8, 6, 12},     // 001000
	{0x3, 6, 13},     // 000011
	{0x34, 6, 14},    // 110100
	{0x35, 6, 15},    // 110101
	{0x2A, 6, 16},    // 101010
	{0x2B, 6, 17},    // 101011
	{0x27, 7, 18},    // 0100111
	{0xC, 7, 19},     // 0001100
	{0x8, 7, 20},     // 0001000
	{0x17, 7, 21},    // 0010111
	{0x3, 7, 22},     // 0000011
	{0x4, 7, 23},     // 0000100
	{0x28, 7, 24},    // 0101000
	{0x2B, 7, 25},    // 0101011
	{0x13, 7, 26},    // 0010011
	{0x24, 7, 27},    // 0100100
	{0x18, 7, 28},    // 0011000
	{0x2, 8, 29},     // 00000010
	{0x3, 8, 30},     // 00000011
	{0x1A, 8, 31},    // 00011010
	{0x1B, 8, 32},    // 00011011
	{0x12, 8, 33},    // 00010010
	{0x13, 8, 34},    // 00010011
	{0x14, 8, 35},    // 00010100
	{0x15, 8, 36},    // 00010101
	{0x16, 8, 37},    // 00010110
	{0x17, 8, 38},    // 00010111
	{0x28, 8, 39},    // 00101000
	{0x29, 8, 40},    // 00101001
	{0x2A, 8, 41},    // 00101010
	{0x2B, 8, 42},    // 00101011
	{0x2C, 8, 43},    // 00101100
	{0x2D, 8, 44},    // 00101101
	{0x4, 8, 45},     // 00000100
	{0x5, 8, 46},     // 00000101
	{0xA, 8, 47},     // 00001010
	{0xB, 8, 48},     // 00001011
	{0x52, 8, 49},    // 01010010
	{0x53, 8, 50},    // 01010011
	{0x54, 8, 51},    // 01010100
	{0x55, 8, 52},    // 01010101
	{0x24, 8, 53},    // 00100100
	{0x25, 8, 54},    // 00100101
	{0x58, 8, 55},    // 01011000
	{0x59, 8, 56},    // 01011001
	{0x5A, 8, 57},    // 01011010
	{0x5B, 8, 58},    // 01011011
	{0x4A, 8, 59},    // 01001010
	{0x4B, 8, 60},    // 01001011
	{0x32, 8, 61},    // 00110010
	{0x33, 8, 62},    // 00110011
	{0x34, 8, 63},    // 00110100
	{0x1B, 5, 64},    // 11011
	{0x12, 5, 128},   // 10010
	{0x17, 6, 192},   // 010111
	{0x37, 7, 256},   // 0110111
	{0x36, 8, 320},   // 00110110
	{0x37, 8, 384},   // 00110111
	{0x64, 8, 448},   // 01100100
	{0x65, 8, 512},   // 01100101
	{0x68, 8, 576},   // 01101000
	{0x67, 8, 640},   // 01100111
	{0xCC, 9, 704},   // 011001100
	{0xCD, 9, 768},   // 011001101
	{0xD2, 9, 832},   // 011010010
	{0xD3, 9, 896},   // 011010011
	{0xD4, 9, 960},   // 011010100
	{0xD5, 9, 1024},  // 011010101
	{0xD6, 9, 1088},  // 011010110
	{0xD7, 9, 1152},  // 011010111
	{0xD8, 9, 1216},  // 011011000
	{0xD9, 9, 1280},  // 011011001
	{0xDA, 9, 1344},  // 011011010
	{0xDB, 9, 1408},  // 011011011
	{0x98, 9, 1472},  // 010011000
	{0x99, 9, 1536},  // 010011001
	{0x9A, 9, 1600},  // 010011010
	{0x18, 6, 1664},  // 011000
	{0x9B, 9, 1728},  // 010011011
}

// Black run lengths, terminating codes followed by makeup codes up to 1728.
var faxBlackCodes = []faxCode{
	{0x37, 10, 0},    // 0000110111
	{0x2, 3, 1},      // 010
	{0x3, 2, 2},      // 11
	{0x2, 2, 3},      // 10
	{0x3, 3, 4},      // 011
	{0x3, 4, 5},      // 0011
	{0x2, 4, 6},      // 0010
	{0x3, 5, 7},      // 00011
	{0x5, 6, 8},      // 000101
	{0x4, 6, 9},      // 000100
	{0x4, 7, 10},     // 0000100
	{0x5, 7, 11},     // 0000101
	{0x7, 7, 12},     // 0000111
	{0x4, 8, 13},     // 00000100
	{0x7, 8, 14},     // 00000111
	{0x18, 9, 15},    // 000011000
	{0x17, 10, 16},   // 0000010111
	{0x18, 10, 17},   // 0000011000
	{0x8, 10, 18},    // 0000001000
	{0x67, 11, 19},   // 00001100111
	{0x68, 11, 20},   // 00001101000
	{0x6C, 11, 21},   // 00001101100
	{0x37, 11, 22},   // 00000110111
	{0x28, 11, 23},   // 00000101000
	{0x17, 11, 24},   // 00000010111
	{0x18, 11, 25},   // 00000011000
	{0xCA, 12, 26},   // 000011001010
	{0xCB, 12, 27},   // 000011001011
	{0xCC, 12, 28},   // 000011001100
	{0xCD, 12, 29},   // 000011001101
	{0x68, 12, 30},   // 000001101000
	{0x69, 12, 31},   // 000001101001
	{0x6A, 12, 32},   // 000001101010
	{0x6B, 12, 33},   // 000001101011
	{0xD2, 12, 34},   // 000011010010
	{0xD3, 12, 35},   // 000011010011
	{0xD4, 12, 36},   // 000011010100
	{0xD5, 12, 37},   // 000011010101
	{0xD6, 12, 38},   // 000011010110
	{0xD7, 12, 39},   // 000011010111
	{0x6C, 12, 40},   // 000001101100
	{0x6D, 12, 41},   // 000001101101
	{0xDA, 12, 42},   // 000011011010
	{0xDB, 12, 43},   // 000011011011
	{0x54, 12, 44},   // 000001010100
	{0x55, 12, 45},   // 000001010101
	{0x56, 12, 46},   // 000001010110
	{0x57, 12, 47},   // 000001010111
	{0x64, 12, 48},   // 000001100100
	{0x65, 12, 49},   // 000001100101
	{0x52, 12, 50},   // 000001010010
	{0x53, 12, 51},   // 000001010011
	{0x24, 12, 52},   // 000000100100
	{0x37, 12, 53},   // 000000110111
	{0x38, 12, 54},   // 000000111000
	{0x27, 12, 55},   // 000000100111
	{0x28, 12, 56},   // 000000101000
	{0x58, 12, 57},   // 000001011000
	{0x59, 12, 58},   // 000001011001
	{0x2B, 12, 59},   // 000000101011
	{0x2C, 12, 60},   // 000000101100
	{0x5A, 12, 61},   // 000001011010
	{0x66, 12, 62},   // 000001100110
	{0x67, 12, 63},   // 000001100111
	{0xF, 10, 64},    // 0000001111
	{0xC8, 12, 128},  // 000011001000
	{0xC9, 12, 192},  // 000011001001
	{0x5B, 12, 256},  // 000001011011
	{0x33, 12, 320},  // 000000110011
	{0x34, 12, 384},  // 000000110100
	{0x35, 12, 448},  // 000000110101
	{0x6C, 13, 512},  // 0000001101100
	{0x6D, 13, 576},  // 0000001101101
	{0x4A, 13, 640},  // 0000001001010
	{0x4B, 13, 704},  // 0000001001011
	{0x4C, 13, 768},  // 0000001001100
	{0x4D, 13, 832},  // 0000001001101
	{0x72, 13, 896},  // 0000001110010
	{0x73, 13, 960},  // 0000001110011
	{0x74, 13, 1024}, // 0000001110100
	{0x75, 13, 1088}, // 0000001110101
	{0x76, 13, 1152}, // 0000001110110
	{0x77, 13, 1216}, // 0000001110111
	{0x52, 13, 1280}, // 0000001010010
	{0x53, 13, 1344}, // 0000001010011
	{0x54, 13, 1408}, // 0000001010100
	{0x55, 13, 1472}, // 0000001010101
	{0x5A, 13, 1536}, // 0000001011010
	{0x5B, 13, 1600}, // 0000001011011
	{0x64, 13, 1664}, // 0000001100100
	{0x65, 13, 1728}, // 0000001100101
}

// Makeup codes above 1728, shared by both colours.
var faxExtendedCodes = []faxCode{
	{0x8, 11, 1792},  // 00000001000
	{0xC, 11, 1856},  // 00000001100
	{0xD, 11, 1920},  // 00000001101
	{0x12, 12, 1984}, // 000000010010
	{0x13, 12, 2048}, // 000000010011
	{0x14, 12, 2112}, // 000000010100
	{0x15, 12, 2176}, // 000000010101
	{0x16, 12, 2240}, // 000000010110
	{0x17, 12, 2304}, // 000000010111
	{0x1C, 12, 2368}, // 000000011100
	{0x1D, 12, 2432}, // 000000011101
	{0x1E, 12, 2496}, // 000000011110
	{0x1F, 12, 2560}, // 000000011111
}

// faxLookupBits is the longest code length. Every code is found by peeking
// that many bits and indexing a lookup table.
const faxLookupBits = 13

type faxEntry struct {
	run  uint16
	bits uint8 // zero marks an invalid prefix
}

var (
	faxWhiteLookup, faxBlackLookup [1 << faxLookupBits]faxEntry

	// Terminating codes by run, makeup codes by run/64.
	faxWhiteTerm, faxBlackTerm     [64]faxCode
	faxWhiteMakeup, faxBlackMakeup [2560/64 + 1]faxCode
)

func init() {
	fillFaxLookup(&faxWhiteLookup, faxWhiteCodes, faxExtendedCodes)
	fillFaxLookup(&faxBlackLookup, faxBlackCodes, faxExtendedCodes)
	indexFaxCodes(&faxWhiteTerm, &faxWhiteMakeup, faxWhiteCodes, faxExtendedCodes)
	indexFaxCodes(&faxBlackTerm, &faxBlackMakeup, faxBlackCodes, faxExtendedCodes)
}

func fillFaxLookup(t *[1 << faxLookupBits]faxEntry, sets ...[]faxCode) {
	for _, set := range sets {
		for _, c := range set {
			shift := faxLookupBits - int(c.bits)
			base := int(c.code) << shift
			for i := 0; i < 1<<shift; i++ {
				t[base+i] = faxEntry{run: c.run, bits: c.bits}
			}
		}
	}
}

func indexFaxCodes(term *[64]faxCode, makeup *[2560/64 + 1]faxCode, sets ...[]faxCode) {
	for _, set := range sets {
		for _, c := range set {
			if c.run < 64 {
				term[c.run] = c
			} else {
				makeup[c.run/64] = c
			}
		}
	}
}
