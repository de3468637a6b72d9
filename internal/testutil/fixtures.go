package testutil

// PNGBytes returns the smallest payload content sniffing recognizes as image/png.
func PNGBytes() []byte {
	return append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)
}

// JPEGBytes returns a JFIF header padded to sniffable length.
func JPEGBytes() []byte {
	return append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, make([]byte, 32)...)
}
