// Package scene reads the manifest of an extracted scene package.
//
// The manifest lists what the engine needs before a scene can be bound: the
// image, video and font dependencies, the text layers, and where the binary
// scene graph lives. The scene graph itself is opaque and is handed to the
// engine unparsed.
package scene

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
)

// ManifestName is the manifest file name inside a scene directory.
const ManifestName = "scene.json"

// FrameRate is the nominal engine frame rate used to convert durations.
const FrameRate = 30

// ImageInfo declares one image or video dependency.
type ImageInfo struct {
	// URL is the logical key and the default locator.
	URL string
	// ASTC is a compressed-texture locator preferred over URL when present.
	ASTC string
	// TemplateIdx is the index of the peer whose payload this entry reuses,
	// or -1 for an independent image.
	TemplateIdx      int
	Video            bool
	TransparentVideo bool
}

// IsTemplate reports whether the entry aliases an earlier image.
func (i ImageInfo) IsTemplate() bool { return i.TemplateIdx >= 0 }

// FontInfo declares a font family and an optional file to load it from.
type FontInfo struct {
	Family string
	URL    string
}

// TextInfo declares a text layer rendered with a font family.
type TextInfo struct {
	Key  string
	Text string
	Font string
}

// Data is the parsed manifest of one scene.
type Data struct {
	Aspect float64
	// Duration is in seconds.
	Duration    float64
	PreviewSize [2]int
	Images      []ImageInfo
	Fonts       []FontInfo
	Texts       []TextInfo
	// Bin holds the binary scene graph when the caller already has it in
	// memory. It takes precedence over BinPath.
	Bin []byte
	// BinPath is the binary scene graph file when stored on disk.
	BinPath string
	// Dir is the directory that relative locators resolve against.
	Dir string
}

// FrameCount converts the duration into engine frames.
func (d *Data) FrameCount() int {
	return int(d.Duration * FrameRate)
}

// HasBinary reports whether the manifest names a scene graph.
func (d *Data) HasBinary() bool {
	return len(d.Bin) > 0 || d.BinPath != ""
}

// Parse reads a manifest. Relative locators resolve against dir.
func Parse(data []byte, dir string) (*Data, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("scene: invalid manifest json")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("scene: manifest must be an object")
	}

	d := &Data{
		Aspect:   root.Get("aspect").Float(),
		Duration: root.Get("duration").Float(),
		Dir:      dir,
	}
	if d.Duration < 0 {
		return nil, fmt.Errorf("scene: negative duration %v", d.Duration)
	}
	if ps := root.Get("previewSize"); ps.IsArray() {
		arr := ps.Array()
		if len(arr) == 2 {
			d.PreviewSize = [2]int{int(arr[0].Int()), int(arr[1].Int())}
		}
	}

	var err error
	root.Get("images").ForEach(func(_, v gjson.Result) bool {
		info := ImageInfo{
			URL:              v.Get("url").String(),
			ASTC:             v.Get("astc").String(),
			TemplateIdx:      -1,
			Video:            v.Get("video").Bool(),
			TransparentVideo: v.Get("transparent").Bool(),
		}
		if t := v.Get("templateIdx"); t.Exists() {
			info.TemplateIdx = int(t.Int())
		}
		if info.URL == "" && info.ASTC == "" {
			err = fmt.Errorf("scene: image %d has no url", len(d.Images))
			return false
		}
		d.Images = append(d.Images, info)
		return true
	})
	if err != nil {
		return nil, err
	}

	root.Get("fonts").ForEach(func(_, v gjson.Result) bool {
		d.Fonts = append(d.Fonts, FontInfo{
			Family: v.Get("family").String(),
			URL:    v.Get("url").String(),
		})
		return true
	})
	root.Get("texts").ForEach(func(_, v gjson.Result) bool {
		d.Texts = append(d.Texts, TextInfo{
			Key:  v.Get("key").String(),
			Text: v.Get("text").String(),
			Font: v.Get("font").String(),
		})
		return true
	})

	if bin := root.Get("bin").String(); bin != "" {
		if filepath.IsAbs(bin) || dir == "" {
			d.BinPath = bin
		} else {
			d.BinPath = filepath.Join(dir, bin)
		}
	}
	return d, nil
}

// LoadDir parses dir/scene.json.
func LoadDir(dir string) (*Data, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, fmt.Errorf("scene: read manifest: %w", err)
	}
	return Parse(data, dir)
}

// FontURLs returns the non-empty font file locators in declared order.
func (d *Data) FontURLs() []string {
	var urls []string
	for _, f := range d.Fonts {
		if f.URL != "" {
			urls = append(urls, f.URL)
		}
	}
	return urls
}

// TemplateIndex returns the template index declared for key, or -1.
func (d *Data) TemplateIndex(key string) int {
	for _, img := range d.Images {
		if img.URL == key {
			return img.TemplateIdx
		}
	}
	return -1
}
