package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/gallery"
	"github.com/kozaktomas/attendance/internal/vision"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Manage the reference face gallery",
}

var galleryIndexCmd = &cobra.Command{
	Use:   "index",
	Short: "Embed every gallery image and save the search index",
	Long: `Walk the gallery directory (one sub-directory per student), embed every
reference image through the embedding server and save the HNSW index file
that serve and capture load at startup.

With DATABASE_URL set, embeddings are cached in PostgreSQL by image hash so
re-indexing only embeds new or changed photos.`,
	RunE: runGalleryIndex,
}

var galleryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the identities in the saved gallery index",
	RunE:  runGalleryList,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryIndexCmd)
	galleryCmd.AddCommand(galleryListCmd)

	galleryCmd.PersistentFlags().String("dir", "", "Gallery directory (overrides GALLERY_DIR)")
	galleryCmd.PersistentFlags().String("index", "", "Index file (overrides GALLERY_INDEX_PATH)")
}

func galleryPaths(cmd *cobra.Command, cfg *config.Config) (dir, index string) {
	dir, index = cfg.Gallery.Dir, cfg.Gallery.IndexPath
	if d, _ := cmd.Flags().GetString("dir"); d != "" {
		dir = d
	}
	if i, _ := cmd.Flags().GetString("index"); i != "" {
		index = i
	}
	return dir, index
}

func runGalleryIndex(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	dir, indexPath := galleryPaths(cmd, cfg)
	if indexPath == "" {
		return errors.New("an index path is required (--index or GALLERY_INDEX_PATH)")
	}

	ctx := context.Background()
	if cfg.Database.URL != "" {
		if _, err := initStorage(ctx, cfg); err != nil {
			return err
		}
		defer closeStorage()
	}

	client := vision.NewClient(cfg.Vision.EmbeddingURL, cfg.Vision.Timeout)
	loader := gallery.NewLoader(client, galleryCache(ctx), slog.Default())

	var bar *progressbar.ProgressBar
	loader.OnProgress = func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionSetDescription("Embedding gallery"),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("images"),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionSetPredictTime(true),
				progressbar.OptionFullWidth(),
			)
		}
		_ = bar.Set(done)
	}

	g, stats, err := loader.Build(ctx, dir)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return fmt.Errorf("building gallery: %w", err)
	}

	if err := g.Index().Save(indexPath, dir); err != nil {
		return fmt.Errorf("saving index: %w", err)
	}

	fmt.Printf("Indexed %d images of %d identities\n", stats.Images-stats.Skipped, stats.Identities)
	fmt.Printf("  Embedded: %d\n", stats.Embedded)
	fmt.Printf("  Cached:   %d\n", stats.Cached)
	if stats.Skipped > 0 {
		fmt.Printf("  Skipped:  %d (no usable face, see log)\n", stats.Skipped)
	}
	fmt.Printf("Index saved to %s\n", indexPath)
	return nil
}

func runGalleryList(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	_, indexPath := galleryPaths(cmd, cfg)
	if indexPath == "" {
		return errors.New("an index path is required (--index or GALLERY_INDEX_PATH)")
	}

	idx, meta, err := gallery.LoadIndex(indexPath)
	if err != nil {
		return err
	}

	g := gallery.New(idx)
	fmt.Printf("Index %s built %s from %s\n", indexPath, meta.BuildTime.Format("2006-01-02 15:04"), meta.SourceDir)
	for _, id := range g.Identities() {
		fmt.Println(id)
	}
	fmt.Printf("%d identities, %d reference images\n", len(g.Identities()), g.Len())
	return nil
}
