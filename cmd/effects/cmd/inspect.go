package cmd

import (
	"encoding/json"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/go-drift/effects/pkg/downgrade"
	"github.com/go-drift/effects/pkg/resource"
	"github.com/go-drift/effects/pkg/scene"
)

// InspectOutput is the JSON document printed by inspect.
type InspectOutput struct {
	Aspect   float64            `json:"aspect"`
	Duration float64            `json:"duration"`
	Frames   int                `json:"frames"`
	Bin      string             `json:"bin,omitempty"`
	Images   []DescriptorOutput `json:"images"`
	Fonts    []FontOutput       `json:"fonts,omitempty"`
}

// DescriptorOutput is one planned image or video.
type DescriptorOutput struct {
	Key         string `json:"key"`
	Locator     string `json:"locator"`
	Kind        string `json:"kind"`
	Transparent bool   `json:"transparent,omitempty"`
	HWDecode    bool   `json:"hwDecode,omitempty"`
	TemplateIdx int    `json:"templateIdx"`
}

// FontOutput is one declared font.
type FontOutput struct {
	Family string `json:"family"`
	URL    string `json:"url,omitempty"`
}

func newInspectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <scene-dir>",
		Short: "Print the resource plan of a scene",
		Long: `Parse the scene.json manifest in a scene directory and print the
resource plan as JSON: the images and videos the player would resolve,
which of them alias an earlier entry, and the fonts to load.

Nothing is read besides the manifest.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, args[0], cmd.OutOrStdout())
		},
	}
}

func runInspect(opts *RootOptions, dir string, w io.Writer) error {
	store, err := opts.store()
	if err != nil {
		return err
	}
	data, err := scene.LoadDir(dir)
	if err != nil {
		return err
	}

	hwDecode := store.VideoHardDecode(downgrade.SourceID(dir))
	out := InspectOutput{
		Aspect:   data.Aspect,
		Duration: data.Duration,
		Frames:   data.FrameCount(),
		Images:   []DescriptorOutput{},
	}
	if data.BinPath != "" {
		out.Bin = data.BinPath
		if rel, err := filepath.Rel(dir, data.BinPath); err == nil {
			out.Bin = filepath.ToSlash(rel)
		}
	}
	for _, d := range resource.Plan(data.Images, hwDecode) {
		out.Images = append(out.Images, DescriptorOutput{
			Key:         d.Key,
			Locator:     d.Locator,
			Kind:        d.Kind.String(),
			Transparent: d.Transparent,
			HWDecode:    d.HWDecode,
			TemplateIdx: d.TemplateIdx,
		})
	}
	for _, f := range data.Fonts {
		out.Fonts = append(out.Fonts, FontOutput{Family: f.Family, URL: f.URL})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
