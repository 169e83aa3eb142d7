package rfb

// Framebuffer is the external pixel store collaborator. The session never
// owns pixel memory itself; every decoder writes through this interface, so
// a consumer can back it with an image.RGBA, a GPU texture upload, or
// anything else that can blit/fill/copy rectangles.
type Framebuffer interface {
	// Width and Height report the current framebuffer dimensions in pixels.
	Width() int
	Height() int

	// Resize is called when a DesktopResize pseudo-encoding changes the
	// server's screen size. Implementations should reallocate backing
	// storage as needed.
	Resize(width, height int)

	// RemoteFormat reports the PixelFormat the framebuffer wants the
	// session to request from the server (via SetPixelFormat). The
	// session also calls SetRemoteFormat after any format change the
	// server itself initiates, e.g. WMVi.
	RemoteFormat() PixelFormat
	SetRemoteFormat(PixelFormat)

	// PerfectFormatMatch reports whether the framebuffer's native pixel
	// layout exactly matches f, including byte order, permitting the Raw
	// decoder to read directly into the backing buffer instead of
	// converting pixel-by-pixel.
	PerfectFormatMatch(f PixelFormat) bool

	// RowStride returns the backing buffer's stride in bytes, and Bytes
	// returns the raw backing buffer, for the perfect-match Raw fast path.
	RowStride() int
	Bytes() []byte

	// Blit converts src (encoded in srcFormat, srcStride bytes per row)
	// into the framebuffer's native format at (x, y, w, h).
	Blit(src []byte, srcFormat PixelFormat, srcStride, x, y, w, h int)

	// Fill paints a solid rectangle with pixel (already in the
	// framebuffer's native encoding).
	Fill(pixel uint32, x, y, w, h int)

	// CopyRect moves a rectangle already present in the framebuffer.
	CopyRect(srcX, srcY, dstX, dstY, w, h int)

	// SetPixelAt writes one pixel (native encoding).
	SetPixelAt(pixel uint32, x, y int)

	// SetColorMapEntry installs one palette slot for indexed (bpp=8,
	// !TrueColor) pixel formats.
	SetColorMapEntry(index int, r, g, b uint16)
}

// AudioSink receives decoded QEMU audio sample buffers. Push-only: the
// session never reads back from it.
type AudioSink interface {
	PushSamples(data []byte)
}
