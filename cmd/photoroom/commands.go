package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/Sternrassler/photoroom-client/pkg/batch"
	"github.com/Sternrassler/photoroom-client/pkg/client"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// runWithApp loads config, builds the app and cancels on interrupt.
func runWithApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func addBatchFlags(cmd *cobra.Command, f *batchFlags) {
	cmd.Flags().StringVarP(&f.outputDir, "output-dir", "o", "", "directory for processed images (default from config, storage or ./"+defaultOutputDir+")")
	cmd.Flags().IntVarP(&f.concurrency, "concurrency", "j", 0, "number of images processed in parallel (default from config)")
	cmd.Flags().BoolVar(&f.failFast, "fail-fast", false, "abort the batch on the first failed image")
}

func newRemoveBgCmd(root *rootOptions) *cobra.Command {
	var (
		bf   batchFlags
		opts = client.DefaultRemoveBackgroundOptions()
	)

	cmd := &cobra.Command{
		Use:   "remove-bg FILE...",
		Short: "Remove the background from one or more images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, root, func(ctx context.Context, a *app) error {
				result, err := a.client.BatchRemoveBackground(ctx, batch.FromPaths(args...), opts, a.batchOptions(bf))
				if err != nil {
					return err
				}
				printSummary(cmd.OutOrStdout(), result)
				return result.Err()
			})
		},
	}

	cmd.Flags().StringVar(&opts.Format, "format", opts.Format, "output format (png, jpg, webp)")
	cmd.Flags().StringVar(&opts.Channels, "channels", opts.Channels, "output channels (rgba, alpha)")
	cmd.Flags().StringVar(&opts.BgColor, "bg-color", "", "background color as hex or name; transparent when empty")
	cmd.Flags().StringVar(&opts.Size, "size", opts.Size, "output size (preview, medium, hd, full)")
	cmd.Flags().BoolVar(&opts.Crop, "crop", false, "crop to the cutout borders")
	cmd.Flags().BoolVar(&opts.Despill, "despill", false, "remove green screen reflections")
	addBatchFlags(cmd, &bf)

	return cmd
}

func newEditCmd(root *rootOptions) *cobra.Command {
	var (
		bf              batchFlags
		imageURL        string
		output          string
		pairs           []string
		backgroundImage string
		guidanceImage   string
	)

	cmd := &cobra.Command{
		Use:   "edit [FILE...]",
		Short: "Apply AI edits (backgrounds, shadows, relighting, upscaling) via /v2/edit",
		Example: `  photoroom edit shoe.jpg --param background.prompt="on a marble table" --param shadow.mode=ai.soft
  photoroom edit --image-url https://example.com/shoe.jpg --param upscale.mode=ai.fast -O shoe.png`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if imageURL == "" && len(args) == 0 {
				return fmt.Errorf("either FILE arguments or --image-url is required")
			}
			if imageURL != "" && len(args) > 0 {
				return fmt.Errorf("--image-url cannot be combined with FILE arguments")
			}

			params, err := parseParams(pairs)
			if err != nil {
				return err
			}
			req := client.EditRequest{Params: params}
			if backgroundImage != "" {
				req.BackgroundImage = &batch.Input{Path: backgroundImage}
			}
			if guidanceImage != "" {
				req.BackgroundGuidanceImage = &batch.Input{Path: guidanceImage}
			}

			return runWithApp(cmd, root, func(ctx context.Context, a *app) error {
				if imageURL != "" {
					req.ImageURL = imageURL
					resp, err := a.client.EditImage(ctx, req)
					if err != nil {
						return err
					}
					if err := resp.Persist(output); err != nil {
						return err
					}
					printImage(cmd.OutOrStdout(), output, resp)
					return nil
				}

				result, err := a.client.BatchEditImage(ctx, batch.FromPaths(args...), req, a.batchOptions(bf))
				if err != nil {
					return err
				}
				printSummary(cmd.OutOrStdout(), result)
				return result.Err()
			})
		},
	}

	cmd.Flags().StringVar(&imageURL, "image-url", "", "edit a remote image instead of local files")
	cmd.Flags().StringVarP(&output, "output", "O", "edited.png", "output file for --image-url")
	cmd.Flags().StringArrayVarP(&pairs, "param", "p", nil, "edit parameter as name=value, repeatable (e.g. shadow.mode=ai.soft)")
	cmd.Flags().StringVar(&backgroundImage, "background-image", "", "image file used as the new background")
	cmd.Flags().StringVar(&guidanceImage, "guidance-image", "", "image file guiding background generation")
	addBatchFlags(cmd, &bf)

	return cmd
}

func newAccountCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "account",
		Short: "Show plan and remaining image credits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithApp(cmd, root, func(ctx context.Context, a *app) error {
				info, err := a.client.GetAccount(ctx)
				if err != nil {
					return err
				}
				printAccount(cmd.OutOrStdout(), info, a.client.IsSandbox())
				return nil
			})
		},
	}
}

// parseParams turns name=value flags into EditParams. An empty value drops a default.
func parseParams(pairs []string) (client.EditParams, error) {
	params := client.EditParams{}
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --param %q (want name=value)", pair)
		}
		params.Set(name, value)
	}
	return params, nil
}

func printSummary(w io.Writer, result *batch.Result) {
	stats := result.Statistics()

	fmt.Fprintf(w, "Processed %d images in %s: %d succeeded, %d failed (%.1f%%)\n",
		stats.Total, stats.TotalTime.Round(time.Millisecond), stats.Successful, stats.Failed, stats.SuccessRate*100)
	if stats.Successful > 0 {
		fmt.Fprintf(w, "Output: %s, %s per image\n",
			humanize.IBytes(uint64(stats.TotalBytes)), stats.AverageTimePerItem.Round(time.Millisecond))
	}

	for _, o := range result.Outcomes() {
		if o.Success {
			dest := o.OutputPath
			if dest == "" {
				dest = "(not saved)"
			}
			fmt.Fprintf(w, "  ok    %s -> %s\n", o.Input, dest)
			continue
		}
		fmt.Fprintf(w, "  FAIL  %s: %v\n", o.Input, o.Err)
	}
}

func printImage(w io.Writer, path string, resp *client.ImageResponse) {
	fmt.Fprintf(w, "Saved %s (%s)\n", path, humanize.IBytes(uint64(resp.Size())))
	if seed, ok := resp.BackgroundSeed(); ok {
		fmt.Fprintf(w, "Background seed: %d\n", seed)
	}
	if u := resp.EditFurtherURL(); u != "" {
		fmt.Fprintf(w, "Edit further: %s\n", u)
	}
}

func printAccount(w io.Writer, info *client.AccountInfo, sandbox bool) {
	fmt.Fprintf(w, "Plan:      %s\n", info.Plan)
	if sandbox {
		fmt.Fprintln(w, "Mode:      sandbox")
	}
	fmt.Fprintf(w, "Available: %s of %s images\n",
		humanize.Comma(int64(info.Images.Available)), humanize.Comma(int64(info.Images.Subscription)))
	fmt.Fprintf(w, "Used:      %s\n", humanize.Comma(int64(info.Used())))
}
