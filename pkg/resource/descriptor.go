package resource

import (
	"log/slog"

	"github.com/go-drift/effects/pkg/scene"
)

// Kind classifies a dependency.
type Kind int

const (
	KindImage Kind = iota
	KindVideo
	KindFont
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	case KindFont:
		return "font"
	default:
		return "unknown"
	}
}

// Descriptor declares one dependency of a scene.
type Descriptor struct {
	// Key is the name the engine knows the resource by.
	Key string
	// Locator is where the payload comes from.
	Locator string
	Kind    Kind
	// Transparent marks videos with an alpha channel.
	Transparent bool
	// HWDecode selects hardware video decoding.
	HWDecode bool
	// TemplateIdx is the index of the peer this descriptor renames, or -1.
	TemplateIdx int
}

// IsAlias reports whether d renames a peer instead of fetching.
func (d Descriptor) IsAlias() bool { return d.TemplateIdx >= 0 }

// Plan turns the declared images of a scene into descriptors.
//
// The compressed-texture locator is preferred when declared. Once a template
// entry has been seen, every later entry is expected to be a template as well;
// a plain entry after that point is dropped. Plain descriptors therefore
// occupy the leading indices, which is what template indices refer to.
func Plan(images []scene.ImageInfo, hwDecode bool) []Descriptor {
	var out []Descriptor
	seenTemplate := false
	for _, info := range images {
		locator := info.URL
		if info.ASTC != "" {
			locator = info.ASTC
		}
		kind := KindImage
		if info.Video {
			kind = KindVideo
		}

		if info.IsTemplate() {
			seenTemplate = true
			out = append(out, Descriptor{
				Key:         info.URL,
				Locator:     locator,
				Kind:        kind,
				Transparent: info.TransparentVideo,
				TemplateIdx: info.TemplateIdx,
			})
			continue
		}
		if seenTemplate {
			slog.Debug("plain image after template ignored",
				slog.String("component", "resource"), slog.String("url", info.URL))
			continue
		}
		out = append(out, Descriptor{
			Key:         locator,
			Locator:     locator,
			Kind:        kind,
			Transparent: info.TransparentVideo,
			HWDecode:    info.Video && hwDecode,
			TemplateIdx: -1,
		})
	}
	return out
}
