package video

// sparseVRAMDump is the post-boot-ROM content of VRAM, captured from
// gambatte's initstate dumps: the boot ROM leaves the decompressed
// Nintendo logo tiles (and the (R) tile as the final 8 bytes) behind in
// tile data. Each byte lands at every second VRAM offset starting at
// 0x0010, with a zero byte in between.
var sparseVRAMDump = [200]byte{
	0xF0, 0xF0, 0xFC, 0xFC, 0xFC, 0xFC, 0xF3, 0xF3,
	0x3C, 0x3C, 0x3C, 0x3C, 0x3C, 0x3C, 0x3C, 0x3C,
	0xF0, 0xF0, 0xF0, 0xF0, 0x00, 0x00, 0xF3, 0xF3,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xCF, 0xCF,
	0x00, 0x00, 0x0F, 0x0F, 0x3F, 0x3F, 0x0F, 0x0F,
	0x00, 0x00, 0x00, 0x00, 0xC0, 0xC0, 0x0F, 0x0F,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xF0, 0xF0,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xF3, 0xF3,

	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xC0, 0xC0,
	0x03, 0x03, 0x03, 0x03, 0x03, 0x03, 0xFF, 0xFF,
	0xC0, 0xC0, 0xC0, 0xC0, 0xC0, 0xC0, 0xC3, 0xC3,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xFC, 0xFC,
	0xF3, 0xF3, 0xF0, 0xF0, 0xF0, 0xF0, 0xF0, 0xF0,
	0x3C, 0x3C, 0xFC, 0xFC, 0xFC, 0xFC, 0x3C, 0x3C,
	0xF3, 0xF3, 0xF3, 0xF3, 0xF3, 0xF3, 0xF3, 0xF3,
	0xF3, 0xF3, 0xC3, 0xC3, 0xC3, 0xC3, 0xC3, 0xC3,

	0xCF, 0xCF, 0xCF, 0xCF, 0xCF, 0xCF, 0xCF, 0xCF,
	0x3C, 0x3C, 0x3F, 0x3F, 0x3C, 0x3C, 0x0F, 0x0F,
	0x3C, 0x3C, 0xFC, 0xFC, 0x00, 0x00, 0xFC, 0xFC,
	0xFC, 0xFC, 0xF0, 0xF0, 0xF0, 0xF0, 0xF0, 0xF0,
	0xF3, 0xF3, 0xF3, 0xF3, 0xF3, 0xF3, 0xF0, 0xF0,
	0xC3, 0xC3, 0xC3, 0xC3, 0xC3, 0xC3, 0xFF, 0xFF,
	0xCF, 0xCF, 0xCF, 0xCF, 0xCF, 0xCF, 0xC3, 0xC3,
	0x0F, 0x0F, 0x0F, 0x0F, 0x0F, 0x0F, 0xFC, 0xFC,

	0x3C, 0x42, 0xB9, 0xA5, 0xB9, 0xA5, 0x42, 0x3C,
}

// seedBootVRAM writes the dump into VRAM bank 0 the way the boot ROM
// leaves it: the 200 signature bytes land from offset 0x0010 at every
// second byte, with a zero byte after each, and on DMG the tilemap
// additionally holds the logo's tile indices at 0x1903/0x1923 plus the
// (R) tile at 0x1910. The CGB boot ROM clears its tilemap before handing
// over, so those indices only survive on DMG.
func seedBootVRAM(vram []byte, forCGB bool) {
	if len(vram) < 0x2000 {
		return
	}

	for i, b := range sparseVRAMDump {
		vram[0x10+i*2] = b
	}

	if forCGB {
		return
	}

	vram[0x1910] = 0x19
	for i := byte(1); i <= 0x0C; i++ {
		vram[0x1903+uint16(i)] = i
		vram[0x1923+uint16(i)] = i + 0x0C
	}
}
