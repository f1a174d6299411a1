package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-drift/effects/cmd/effects/internal/cache"
	"github.com/go-drift/effects/pkg/effects"
	"github.com/go-drift/effects/pkg/engine/enginetest"
	"github.com/go-drift/effects/pkg/fetch"
	"github.com/go-drift/effects/pkg/resource"
	"github.com/go-drift/effects/pkg/scene"
)

// PrefetchOptions holds flags for the prefetch command.
type PrefetchOptions struct {
	MD5        string
	ValidUntil int64
	Timeout    time.Duration
}

func newPrefetchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PrefetchOptions{}

	cmd := &cobra.Command{
		Use:   "prefetch <url>",
		Short: "Download a scene package and its resources",
		Long: `Download and extract a scene package into the cache, then resolve
every image and font it declares so later loads are served locally.

Videos are only checked for existence; no decoder is started.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrefetch(cmd.Context(), rootOpts, opts, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.MD5, "md5", "", "expected MD5 of the package")
	cmd.Flags().Int64Var(&opts.ValidUntil, "valid-until", 0, "package validity timestamp in unix milliseconds")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 2*time.Minute, "overall time limit")

	return cmd
}

func runPrefetch(ctx context.Context, rootOpts *RootOptions, opts *PrefetchOptions, url string, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	store, err := rootOpts.store()
	if err != nil {
		return err
	}
	cfg := store.Current()
	root, err := rootOpts.cacheRoot(cfg)
	if err != nil {
		return err
	}
	fileCache, err := fetch.NewCache(cache.FilesDir(root))
	if err != nil {
		return err
	}
	files := fetch.NewFiles(fileCache, fetch.NewDownloader(cfg.Fetch.Timeout))

	var validUntil time.Time
	if opts.ValidUntil > 0 {
		validUntil = time.UnixMilli(opts.ValidUntil)
	}
	dir, err := fetch.NewPackages(files).Load(ctx, url, effects.Biz, validUntil, opts.MD5)
	if err != nil {
		return err
	}
	data, err := scene.LoadDir(dir)
	if err != nil {
		return err
	}

	eng := enginetest.New()
	loader := &resource.Loader{Engine: eng, Downloader: files, Biz: effects.Biz}
	descriptors := resource.Plan(data.Images, false)

	type result struct {
		bundle *resource.Bundle
		err    error
	}
	done := make(chan result, 1)
	batch := loader.LoadAll(ctx, resource.Request{Descriptors: descriptors, BaseDir: dir}, data.FontURLs(),
		func(b *resource.Bundle, err error) { done <- result{b, err} })

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		batch.Abandon()
		return fmt.Errorf("prefetch %s: %w", url, ctx.Err())
	}
	if res.err != nil {
		return res.err
	}
	defer res.bundle.ReleaseVideos(eng)

	videos := 0
	for _, d := range descriptors {
		if d.Kind == resource.KindVideo && !d.IsAlias() {
			videos++
		}
	}
	fmt.Fprintf(w, "scene   %s\n", dir)
	fmt.Fprintf(w, "images  %d (%d video)\n", res.bundle.Len(), videos)
	fmt.Fprintf(w, "fonts   %d\n", len(res.bundle.Fonts))
	return nil
}
