package gallery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Embedder computes the face embedding of an encoded image.
type Embedder interface {
	EmbedFace(ctx context.Context, imageData []byte) ([]float32, error)
}

// EmbeddingCache stores embeddings by image content hash.
type EmbeddingCache interface {
	LookupEmbedding(ctx context.Context, hash string) ([]float32, bool, error)
	StoreEmbedding(ctx context.Context, hash, identity, path string, embedding []float32) error
}

// LoadStats summarizes a gallery build.
type LoadStats struct {
	Images     int
	Identities int
	Embedded   int
	Cached     int
	Skipped    int
}

// Loader builds galleries from a directory laid out as <dir>/<identity>/<image>.
type Loader struct {
	embedder Embedder
	cache    EmbeddingCache
	logger   *slog.Logger

	// OnProgress, when set, is called after each image with the number done and the total.
	OnProgress func(done, total int)
}

// NewLoader creates a loader. cache may be nil.
func NewLoader(embedder Embedder, cache EmbeddingCache, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{embedder: embedder, cache: cache, logger: logger}
}

type galleryImage struct {
	identity string
	path     string
}

// scan lists gallery images, sorted by path.
func scan(dir string) ([]galleryImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading gallery directory: %w", err)
	}

	var images []galleryImage
	keys := make(map[string]string)
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		identity := NormalizeIdentity(e.Name())
		if identity == "" {
			continue
		}
		key := IdentityKey(identity)
		if prev, ok := keys[key]; ok && prev != identity {
			return nil, fmt.Errorf("gallery folders %q and %q name the same identity", prev, identity)
		}
		keys[key] = identity

		files, err := os.ReadDir(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading gallery folder %s: %w", e.Name(), err)
		}
		for _, f := range files {
			if f.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(f.Name()))] {
				continue
			}
			images = append(images, galleryImage{
				identity: identity,
				path:     filepath.Join(dir, e.Name(), f.Name()),
			})
		}
	}

	sort.Slice(images, func(i, j int) bool { return images[i].path < images[j].path })
	return images, nil
}

// Build embeds every gallery image in dir and indexes the results. Images without a
// detectable face are skipped with a warning.
func (l *Loader) Build(ctx context.Context, dir string) (*Gallery, LoadStats, error) {
	var stats LoadStats

	images, err := scan(dir)
	if err != nil {
		return nil, stats, err
	}
	stats.Images = len(images)

	refs := make([]Reference, 0, len(images))
	identities := make(map[string]struct{})
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		ref, cached, err := l.reference(ctx, int64(i+1), img)
		switch {
		case err != nil:
			stats.Skipped++
			l.logger.Warn("skipping gallery image", "path", img.path, "error", err)
		case cached:
			stats.Cached++
		default:
			stats.Embedded++
		}
		if err == nil {
			refs = append(refs, ref)
			identities[ref.Identity] = struct{}{}
		}

		if l.OnProgress != nil {
			l.OnProgress(i+1, len(images))
		}
	}
	stats.Identities = len(identities)

	if len(refs) == 0 {
		return nil, stats, errors.New("gallery has no usable reference images")
	}

	l.logger.Info("gallery built",
		"images", stats.Images, "identities", stats.Identities,
		"embedded", stats.Embedded, "cached", stats.Cached, "skipped", stats.Skipped)
	return New(NewIndex(refs)), stats, nil
}

func (l *Loader) reference(ctx context.Context, id int64, img galleryImage) (Reference, bool, error) {
	data, err := os.ReadFile(img.path)
	if err != nil {
		return Reference{}, false, fmt.Errorf("reading image: %w", err)
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	ref := Reference{ID: id, Identity: img.identity, Path: img.path, Hash: hash}

	if l.cache != nil {
		embedding, ok, err := l.cache.LookupEmbedding(ctx, hash)
		if err != nil {
			l.logger.Warn("embedding cache lookup failed", "path", img.path, "error", err)
		} else if ok {
			ref.Embedding = embedding
			return ref, true, nil
		}
	}

	embedding, err := l.embedder.EmbedFace(ctx, data)
	if err != nil {
		return Reference{}, false, fmt.Errorf("embedding image: %w", err)
	}
	ref.Embedding = embedding

	if l.cache != nil {
		if err := l.cache.StoreEmbedding(ctx, hash, img.identity, img.path, embedding); err != nil {
			l.logger.Warn("embedding cache store failed", "path", img.path, "error", err)
		}
	}
	return ref, false, nil
}

// Open loads the saved index at indexPath when it was built from dir, and otherwise
// builds the gallery and saves it there. An empty indexPath always builds.
func (l *Loader) Open(ctx context.Context, dir, indexPath string) (*Gallery, error) {
	if indexPath != "" {
		idx, meta, err := LoadIndex(indexPath)
		switch {
		case err == nil && meta.SourceDir == dir:
			l.logger.Info("gallery index loaded", "path", indexPath, "references", idx.Len(), "built", meta.BuildTime)
			return New(idx), nil
		case err == nil:
			l.logger.Info("gallery index was built from another directory, rebuilding", "path", indexPath, "source", meta.SourceDir)
		case errors.Is(err, ErrIndexNotFound):
		default:
			l.logger.Warn("gallery index unreadable, rebuilding", "path", indexPath, "error", err)
		}
	}

	g, _, err := l.Build(ctx, dir)
	if err != nil {
		return nil, err
	}
	if indexPath != "" {
		if err := g.Index().Save(indexPath, dir); err != nil {
			return nil, err
		}
	}
	return g, nil
}
