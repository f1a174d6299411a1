package resource

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strconv"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/go-drift/effects/pkg/engine"
)

// TextScheme prefixes locators for blank text layer backgrounds.
const TextScheme = "text://"

const maxTextSide = 8192

// Payload is a resolved dependency. Exactly one field is set.
type Payload struct {
	// Bytes holds a compressed texture (KTX or ASTC) passed to the engine as is.
	Bytes []byte
	// Image holds a decoded bitmap.
	Image image.Image
	// Video holds a prepared native video.
	Video engine.VideoHandle
}

// IsVideo reports whether p carries a video handle.
func (p Payload) IsVideo() bool { return p.Video.Valid() }

// Bundle is the merged outcome of a successful batch.
type Bundle struct {
	// Images maps engine keys to payloads. A renamed peer appears under its
	// alias key only.
	Images map[string]Payload
	// Fonts maps font locators to local file paths.
	Fonts map[string]string
}

// Len returns the number of image entries.
func (b *Bundle) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Images)
}

// ReleaseVideos frees every video handle in b that was not handed to a
// scene. Each handle is released once.
func (b *Bundle) ReleaseVideos(eng engine.Engine) {
	if b == nil || eng == nil {
		return
	}
	seen := make(map[engine.VideoHandle]bool)
	for key, p := range b.Images {
		if p.IsVideo() && !seen[p.Video] {
			seen[p.Video] = true
			eng.ReleaseVideo(p.Video)
		}
		delete(b.Images, key)
	}
}

var (
	errTextForm = errors.New("url is wrong, text://xx_xx_xx expected.")
	errTextSize = errors.New("url is text://xx_xx_xx, but failed to get width, height or bitmap.")
)

var (
	ktx1Magic = []byte{0xAB, 'K', 'T', 'X', ' ', '1', '1', 0xBB, '\r', '\n', 0x1A, '\n'}
	ktx2Magic = []byte{0xAB, 'K', 'T', 'X', ' ', '2', '0', 0xBB, '\r', '\n', 0x1A, '\n'}
	astcMagic = []byte{0x13, 0xAB, 0xA1, 0x5C}
)

// IsCompressedTexture reports whether data starts with a KTX or ASTC header.
func IsCompressedTexture(data []byte) bool {
	return bytes.HasPrefix(data, ktx1Magic) ||
		bytes.HasPrefix(data, ktx2Magic) ||
		bytes.HasPrefix(data, astcMagic)
}

// Decode turns file contents into a payload. Compressed textures are kept as
// bytes; anything else must decode as an image.
func Decode(data []byte) (Payload, error) {
	if len(data) == 0 {
		return Payload{}, fmt.Errorf("empty image data")
	}
	if IsCompressedTexture(data) {
		return Payload{Bytes: data}, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Payload{}, fmt.Errorf("decode image: %w", err)
	}
	return Payload{Image: img}, nil
}

// SynthesizeText builds the transparent background for a text:// locator.
// Accepted forms are text://<name>_<W>_<H> and text://<W>_<H>.
func SynthesizeText(locator string) (image.Image, error) {
	parts := strings.Split(strings.TrimPrefix(locator, TextScheme), "_")
	if len(parts) != 2 && len(parts) != 3 {
		return nil, errTextForm
	}
	w, errW := strconv.ParseFloat(parts[len(parts)-2], 64)
	h, errH := strconv.ParseFloat(parts[len(parts)-1], 64)
	if errW != nil || errH != nil || w < 1 || h < 1 || w > maxTextSide || h > maxTextSide {
		return nil, errTextSize
	}
	return image.NewNRGBA(image.Rect(0, 0, int(w), int(h))), nil
}
