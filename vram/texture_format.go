package vram

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/nitroengine/vramkit/memutils"
)

// TextureFormat is the GPU texel format. The values are the ones written into the format field of a
// texture descriptor, except RGB5, which is stored as A1RGB5.
type TextureFormat uint32

const (
	TextureFormatA3PAL32 TextureFormat = iota + 1
	TextureFormatPAL4
	TextureFormatPAL16
	TextureFormatPAL256
	TextureFormatTEX4X4
	TextureFormatA5PAL8
	TextureFormatA1RGB5
	TextureFormatRGB5
)

var textureFormatNames = map[TextureFormat]string{
	TextureFormatA3PAL32: "A3PAL32",
	TextureFormatPAL4:    "PAL4",
	TextureFormatPAL16:   "PAL16",
	TextureFormatPAL256:  "PAL256",
	TextureFormatTEX4X4:  "TEX4X4",
	TextureFormatA5PAL8:  "A5PAL8",
	TextureFormatA1RGB5:  "A1RGB5",
	TextureFormatRGB5:    "RGB5",
}

func (f TextureFormat) String() string {
	name, ok := textureFormatNames[f]
	if !ok {
		return fmt.Sprintf("TextureFormat(%d)", uint32(f))
	}
	return name
}

// sizeShift is how far 2 bytes per texel is shifted right to get the real texel density
var sizeShift = map[TextureFormat]uint{
	TextureFormatA3PAL32: 1,
	TextureFormatPAL4:    3,
	TextureFormatPAL16:   2,
	TextureFormatPAL256:  1,
	TextureFormatA5PAL8:  1,
	TextureFormatA1RGB5:  0,
	TextureFormatRGB5:    0,
}

// Paletted reports whether textures of this format need a palette
func (f TextureFormat) Paletted() bool {
	return f != TextureFormatA1RGB5 && f != TextureFormatRGB5 && f >= TextureFormatA3PAL32 && f <= TextureFormatRGB5
}

// descriptorFormat is the format written to the descriptor
func (f TextureFormat) descriptorFormat() TextureFormat {
	if f == TextureFormatRGB5 {
		return TextureFormatA1RGB5
	}
	return f
}

// TextureSize returns the number of bytes a width x height texture of format f occupies. For
// TEX4X4 it is the size of the texel block; the palette index block is half as large.
func TextureSize(f TextureFormat, width, height int) (int, error) {
	if width <= 0 || height <= 0 {
		return 0, errors.Wrapf(memutils.ErrInvalidArgument, "texture size %dx%d", width, height)
	}

	if f == TextureFormatTEX4X4 {
		return width * height / 4, nil
	}

	shift, ok := sizeShift[f]
	if !ok {
		return 0, errors.Wrapf(memutils.ErrInvalidArgument, "unknown texture format %s", f)
	}
	return (width * height * 2) >> shift, nil
}

// TextureFlags are the parameter bits of a texture descriptor
type TextureFlags uint32

const (
	TextureWrapS             TextureFlags = 1 << 16
	TextureWrapT             TextureFlags = 1 << 17
	TextureFlipS             TextureFlags = 1 << 18
	TextureFlipT             TextureFlags = 1 << 19
	TextureColor0Transparent TextureFlags = 1 << 29
	TextureGenTexcoord       TextureFlags = 1 << 30

	textureFlagsMask = TextureWrapS | TextureWrapT | TextureFlipS | TextureFlipT | TextureColor0Transparent | TextureGenTexcoord
)

const (
	maxTextureSizeCode = 7
	maxTextureHeight   = 1024
)

// widthCode returns i such that width == 8<<i
func widthCode(width int) (uint32, error) {
	for i := 0; i <= maxTextureSizeCode; i++ {
		if 8<<i == width {
			return uint32(i), nil
		}
	}
	return 0, errors.Wrapf(memutils.ErrInvalidArgument, "texture width %d is not one of 8, 16, ... 1024", width)
}

// heightCode returns the smallest i such that height <= 8<<i. Heights that are not a valid texture
// size are allowed; the GPU simply never samples the rows past the real height.
func heightCode(height int) (uint32, error) {
	if height <= 0 || height > maxTextureHeight {
		return 0, errors.Wrapf(memutils.ErrInvalidArgument, "texture height %d must be between 1 and %d", height, maxTextureHeight)
	}

	for i := 0; i < maxTextureSizeCode; i++ {
		if height <= 8<<i {
			return uint32(i), nil
		}
	}
	return maxTextureSizeCode, nil
}

// encodeTexture builds the descriptor word of a texture placed at address
func encodeTexture(address uint32, format TextureFormat, widthCode, heightCode uint32, flags TextureFlags) uint32 {
	return widthCode<<20 |
		heightCode<<23 |
		((address-VRAMA)>>3)&0xFFFF |
		uint32(format.descriptorFormat())<<26 |
		uint32(flags&textureFlagsMask)
}
