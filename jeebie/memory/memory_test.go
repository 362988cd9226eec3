package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/rook-valley/gbcore/jeebie/device"
)

func dmgProfile() device.Profile {
	return device.Resolve(device.ForceDMG, false)
}

func romOfSize(banks int, kindByte byte) []byte {
	rom := make([]byte, banks*romBankSize)
	if len(rom) < headerMinLength+1 {
		rom = make([]byte, headerMinLength+1)
	}
	rom[cartridgeTypeAddress] = kindByte
	switch {
	case banks <= 2:
		rom[romSizeAddress] = 0x00
	case banks <= 4:
		rom[romSizeAddress] = 0x01
	case banks <= 8:
		rom[romSizeAddress] = 0x02
	case banks <= 32:
		rom[romSizeAddress] = 0x04
	default:
		rom[romSizeAddress] = 0x05
	}
	return rom
}

func TestMemoryReadsInitialROMBank0(t *testing.T) {
	rom := romOfSize(4, 0x01) // MBC1, 4 banks
	rom[0x0000] = 0xAB
	rom[0x4000] = 0xCD

	h := ParseHeader(rom)
	m := New(rom, h, dmgProfile())

	assert.Equal(t, byte(0xAB), m.Read(0x0000))
	assert.Equal(t, byte(0xCD), m.Read(0x4000))
}

func TestMBC1ROMBankSwitch(t *testing.T) {
	rom := romOfSize(8, 0x01)
	for bank := 1; bank < 8; bank++ {
		rom[bank*romBankSize] = byte(0x10 + bank)
	}

	h := ParseHeader(rom)
	m := New(rom, h, dmgProfile())

	m.Write(0x2000, 0x03)
	assert.Equal(t, byte(0x13), m.Read(0x4000))

	m.Write(0x2000, 0x00) // bank 0 requested, must alias to 1
	assert.Equal(t, byte(0x11), m.Read(0x4000))
}

func TestMBC1RAMBankingRequiresMode1(t *testing.T) {
	rom := romOfSize(32, 0x03) // MBC1+RAM+BATTERY
	rom[ramSizeAddress] = 0x03 // 4 banks
	h := ParseHeader(rom)
	m := New(rom, h, dmgProfile())

	m.Write(0x0000, 0x0A) // enable RAM
	m.Write(0x6000, 0x01) // mode 1: bank2 selects RAM bank
	m.Write(0x4000, 0x02) // RAM bank 2

	m.Write(0xA000, 0x77)
	assert.Equal(t, byte(0x77), m.Read(0xA000))

	m.Write(0x4000, 0x01) // switch to RAM bank 1
	assert.Equal(t, byte(0x00), m.Read(0xA000))
}

func TestMBC1MulticartUsesFourBitBankField(t *testing.T) {
	banks := 64 // 1 MiB
	rom := romOfSize(banks, 0x01)
	for slot := 0; slot < 4; slot++ {
		base := slot * multicartLogoInterval
		copy(rom[base+logoAddress:], nintendoLogo)
	}

	rom[0x11*romBankSize] = 0x99 // bank 0x11 under 4-bit encoding: bank2=1,bank1=1

	h := ParseHeader(rom)
	assert.Equal(t, MBC1Multicart, h.Kind)

	m := New(rom, h, dmgProfile())

	m.Write(0x2000, 0x01) // bank1 = 1
	m.Write(0x4000, 0x01) // bank2 = 1 (shifted by 4, not 5, in multicart mode)
	assert.Equal(t, byte(0x99), m.Read(0x4000))
}

func TestMBC2BuiltinRAMIsNibbleWide(t *testing.T) {
	rom := romOfSize(4, 0x06) // MBC2+BATTERY
	h := ParseHeader(rom)
	m := New(rom, h, dmgProfile())

	m.Write(0x0000, 0x0A) // enable (bit8 of addr clear)
	m.Write(0xA000, 0xFF)
	assert.Equal(t, byte(0xFF), m.Read(0xA000))

	m.Write(0xA000, 0x03)
	assert.Equal(t, byte(0xF3), m.Read(0xA000))
}

func TestMBC3RTCRegistersAreAddressableViaRAMBank(t *testing.T) {
	rom := romOfSize(4, 0x10) // MBC3+TIMER+RAM+BATTERY
	rom[ramSizeAddress] = 0x03
	h := ParseHeader(rom)
	m := New(rom, h, dmgProfile())

	m.Write(0x0000, 0x0A)
	m.Write(0x4000, 0x08) // select RTC seconds register
	m.Write(0xA000, 42)
	assert.Equal(t, byte(42), m.Read(0xA000))

	m.Write(0x4000, 0x00) // back to RAM bank 0
	assert.Equal(t, byte(0x00), m.Read(0xA000))
}

func TestMBC5AllowsROMBankZero(t *testing.T) {
	rom := romOfSize(4, 0x19)
	rom[0] = 0x01
	h := ParseHeader(rom)
	m := New(rom, h, dmgProfile())

	m.Write(0x2000, 0x00)
	m.Write(0x3000, 0x00)
	assert.Equal(t, byte(0x01), m.Read(0x4000))
}

func TestEchoRAMMirrorsWorkRAM(t *testing.T) {
	rom := romOfSize(2, 0x00)
	h := ParseHeader(rom)
	m := New(rom, h, dmgProfile())

	m.Write(0xC010, 0x55)
	assert.Equal(t, byte(0x55), m.Read(0xE010))

	m.Write(0xF050, 0x66)
	assert.Equal(t, byte(0x66), m.Read(0xD050))
}

func TestRAMSnapshotRoundTripsOnlyWithBattery(t *testing.T) {
	rom := romOfSize(2, 0x03) // MBC1+RAM+BATTERY
	rom[ramSizeAddress] = 0x02 // 1 bank
	h := ParseHeader(rom)
	m := New(rom, h, dmgProfile())

	m.Write(0x0000, 0x0A)
	m.Write(0xA123, 0x42)

	snap := m.RAMSnapshot()
	assert.Len(t, snap, ramBankSize)
	assert.Equal(t, byte(0x42), snap[0x123])

	m2 := New(rom, h, dmgProfile())
	m2.LoadRAM(snap)
	m2.Write(0x0000, 0x0A)
	assert.Equal(t, byte(0x42), m2.Read(0xA123))
}

func TestParseHeaderDegradesOnShortROM(t *testing.T) {
	h := ParseHeader([]byte{0x00, 0x01, 0x02})
	assert.Equal(t, MBCNone, h.Kind)
	assert.Equal(t, 2, h.ROMBanks)
}
