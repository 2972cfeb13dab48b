package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/classifier"
	"github.com/hyperjump/kura/internal/fileid"
	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/internal/storage"
)

// IngestFile registers the file at path, found under the drop-folder root,
// and stores a thumbnail for images. The album path is the file's directory
// relative to root. Unchanged files are skipped.
func (idx *Indexer) IngestFile(ctx context.Context, root, path string) (*RegisterResult, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}

	sourceID := fileid.SourceID(absPath)
	sum, size, err := fileid.FileChecksum(absPath)
	if err != nil {
		return nil, err
	}
	if existing, err := idx.storage.GetAssetBySourceID(ctx, sourceID); err == nil &&
		models.Deref(existing.MD5Checksum) == sum && models.Deref(existing.FileSize) == size {
		idx.logger.Debug("skipping unchanged file", zap.String("path", absPath))
		return &RegisterResult{
			ID:        existing.ID,
			Status:    existing.ProcessingStatus,
			AssetType: models.Deref(existing.AssetType),
			MediaType: models.Deref(existing.MediaType),
			Message:   "unchanged",
		}, nil
	}

	filename := filepath.Base(absPath)
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	req := &RegisterRequest{
		SourceID:    sourceID,
		SourceType:  fileid.SourceType,
		Filename:    filename,
		ContentType: contentType,
		FileSize:    &size,
		MD5Checksum: sum,
		AlbumPath:   albumPath(root, absPath),
	}

	var thumb *Thumbnail
	if classifier.InferMediaType(contentType, filename) == classifier.MediaImage {
		thumb, err = idx.thumbnailFromFile(absPath)
		if err != nil {
			idx.logger.Warn("thumbnail generation failed", zap.String("path", absPath), zap.Error(err))
		} else {
			req.Width, req.Height = &thumb.SourceWidth, &thumb.SourceHeight
		}
	}

	res, err := idx.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	if thumb != nil && idx.objects != nil {
		a, err := idx.storage.GetAsset(ctx, res.ID)
		if err != nil {
			return nil, err
		}
		if _, err := idx.storeThumbnail(ctx, a, thumb); err != nil {
			return nil, err
		}
	}
	idx.logger.Debug("file ingested", zap.String("path", absPath), zap.String("id", res.ID))
	return res, nil
}

func (idx *Indexer) thumbnailFromFile(path string) (*Thumbnail, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return idx.thumbs.Make(f)
}

// albumPath returns dir(path) relative to root with "/" separators, or ""
// for files directly under root.
func albumPath(root, path string) string {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return ""
	}
	rel, err := filepath.Rel(absRoot, filepath.Dir(path))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	return filepath.ToSlash(rel)
}

// RemoveFile deletes the asset ingested from path, if any.
func (idx *Indexer) RemoveFile(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	a, err := idx.storage.GetAssetBySourceID(ctx, fileid.SourceID(absPath))
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := idx.storage.DeleteAsset(ctx, a.ID); err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	idx.logger.Debug("file removed", zap.String("path", absPath), zap.String("id", a.ID))
	return nil
}

// IngestDirectory ingests every regular file under root whose extension is
// in allowedExts (all files when empty) on the worker pool. It returns the
// number of files ingested and the first error.
func (idx *Indexer) IngestDirectory(ctx context.Context, root string, allowedExts []string) (int, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absRoot)
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		n        int
		firstErr error
	)
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		n++
	}
	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !extensionAllowed(filepath.Ext(path), allowedExts) || isHidden(path) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		wg.Add(1)
		if err := idx.pool.Submit(func() {
			defer wg.Done()
			_, err := idx.IngestFile(ctx, absRoot, path)
			record(err)
		}); err != nil {
			wg.Done()
			return fmt.Errorf("failed to submit %s: %w", path, err)
		}
		return nil
	})
	wg.Wait()
	if walkErr != nil {
		return n, walkErr
	}
	return n, firstErr
}

func extensionAllowed(ext string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

// isHidden reports dotfiles, which include in-progress uploads.
func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
