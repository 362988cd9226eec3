package memory

import (
	"hash/crc32"
	"strings"
)

// Offsets of the fixed cartridge header fields.
const (
	logoAddress           = 0x0104
	titleAddress          = 0x0134
	titleLength           = 16
	cgbFlagAddress        = 0x0143
	cartridgeTypeAddress  = 0x0147
	romSizeAddress        = 0x0148
	ramSizeAddress        = 0x0149
	headerMinLength       = 0x0150
	multicartLogoInterval = 0x40000
)

// MBCKind identifies which memory bank controller (if any) a cartridge
// uses. It is a sum type over the controller variants;
// Memory dispatches writes to 0x0000-0x7FFF by switching on this.
type MBCKind uint8

const (
	MBCNone MBCKind = iota
	MBC1
	MBC1Multicart
	MBC2
	MBC3
	MBC5
	MBCUnknown
)

// Header holds everything the core derives from the fixed byte layout at
// 0x0134-0x014F.
type Header struct {
	Kind         MBCKind
	ROMBanks     int
	RAMBanks     int
	HasBattery   bool
	HasRTC       bool
	HasRumble    bool
	Title        string
	SupportsCGB  bool
}

// ParseHeader reads the cartridge header out of rom. It never fails:
// ROMs too short to contain a header return a degraded Header (MBCNone,
// two banks), an unknown cartridge type yields MBCUnknown and an
// unsupported ROM size code yields two banks; the
// caller (facade) is responsible for surfacing ErrInvalidROM when rom
// itself is too short to be usable at all.
func ParseHeader(rom []byte) Header {
	if len(rom) < headerMinLength {
		return Header{Kind: MBCNone, ROMBanks: 2}
	}

	h := Header{}
	cartType := rom[cartridgeTypeAddress]
	h.Kind, h.HasBattery, h.HasRTC, h.HasRumble = decodeCartType(cartType)

	h.ROMBanks = romBankCount(rom[romSizeAddress])
	h.RAMBanks = ramBankCount(rom[ramSizeAddress])

	cgbFlag := rom[cgbFlagAddress]
	h.SupportsCGB = cgbFlag&0x80 != 0

	end := titleAddress + titleLength
	if end > len(rom) {
		end = len(rom)
	}
	h.Title = cleanTitle(rom[titleAddress:end])

	if h.Kind == MBC1 && detectMBC1Multicart(rom, h.ROMBanks) {
		h.Kind = MBC1Multicart
	}

	return h
}

func decodeCartType(b byte) (kind MBCKind, battery, rtc, rumble bool) {
	switch b {
	case 0x00:
		return MBCNone, false, false, false
	case 0x01:
		return MBC1, false, false, false
	case 0x02:
		return MBC1, false, false, false
	case 0x03:
		return MBC1, true, false, false
	case 0x05:
		return MBC2, false, false, false
	case 0x06:
		return MBC2, true, false, false
	case 0x0F:
		return MBC3, true, true, false
	case 0x10:
		return MBC3, true, true, false
	case 0x11:
		return MBC3, false, false, false
	case 0x12:
		return MBC3, false, false, false
	case 0x13:
		return MBC3, true, false, false
	case 0x19:
		return MBC5, false, false, false
	case 0x1A:
		return MBC5, false, false, false
	case 0x1B:
		return MBC5, true, false, false
	case 0x1C:
		return MBC5, false, false, true
	case 0x1D:
		return MBC5, false, false, true
	case 0x1E:
		return MBC5, true, false, true
	default:
		return MBCUnknown, false, false, false
	}
}

func romBankCount(b byte) int {
	if b > 8 {
		return 2
	}
	return 2 << b
}

func ramBankCount(b byte) int {
	switch b {
	case 0x00, 0x01:
		return 0
	case 0x02:
		return 1
	case 0x03:
		return 4
	case 0x04:
		return 16
	case 0x05:
		return 8
	default:
		return 0
	}
}

func cleanTitle(raw []byte) string {
	buf := make([]byte, 0, len(raw))
	for _, b := range raw {
		if b == 0 {
			break
		}
		if b >= 0x20 && b < 0x7F {
			buf = append(buf, b)
		}
	}
	return strings.TrimSpace(string(buf))
}

// nintendoLogoCRC is the CRC32 of the 48-byte Nintendo logo bitmap stored
// at 0x0104 in every valid Game Boy header.
var nintendoLogo = []byte{
	0xCE, 0xED, 0x66, 0x66, 0xCC, 0x0D, 0x00, 0x0B, 0x03, 0x73, 0x00, 0x83,
	0x00, 0x0C, 0x00, 0x0D, 0x00, 0x08, 0x11, 0x1F, 0x88, 0x89, 0x00, 0x0E,
	0xDC, 0xCC, 0x6E, 0xE6, 0xDD, 0xDD, 0xD9, 0x99, 0xBB, 0xBB, 0x67, 0x63,
	0x6E, 0x0E, 0xEC, 0xCC, 0xDD, 0xDC, 0x99, 0x9F, 0xBB, 0xB9, 0x33, 0x3E,
}

var nintendoLogoCRC = crc32.ChecksumIEEE(nintendoLogo)

// detectMBC1Multicart implements the 1 MiB multicart
// heuristic: 1 MiB MBC1 ROMs that repeat the Nintendo logo (and therefore
// a full header) at three or more of the four 0x40000-aligned quarters
// are "MBC1M" cartridges, whose bank2 field shifts ROM bank numbers by 4
// bits instead of 5.
func detectMBC1Multicart(rom []byte, romBanks int) bool {
	if romBanks*0x4000 != 0x100000 {
		return false
	}

	matches := 0
	for slot := 0; slot < 4; slot++ {
		base := slot * multicartLogoInterval
		start := base + logoAddress
		end := start + len(nintendoLogo)
		if end > len(rom) {
			continue
		}
		if crc32.ChecksumIEEE(rom[start:end]) == nintendoLogoCRC {
			matches++
		}
	}
	return matches >= 3
}
