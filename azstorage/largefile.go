package azstorage

import (
	"context"
	"io"

	"github.com/azstorex/azstorage/internal/copypipeline"
)

// WriteLargeFile implements spec.md §4.7's local->blob pipeline: src is
// read in double-buffered batches overlapped with block uploads, then
// committed once at end-of-file. size must equal the number of bytes src
// will yield.
func (b *Blob) WriteLargeFile(ctx context.Context, src io.Reader, size int64, contentType string, onProgress func(copypipeline.Progress)) error {
	cfg := copypipeline.Config{
		Account:        b.c.cfg.StorageAccount,
		Container:      b.c.cfg.ContainerName,
		Blob:           b.fullName,
		ContentType:    contentType,
		NThreads:       b.c.cfg.NThreads,
		NRetries:       b.c.cfg.NRetries,
		ConnectTimeout: b.c.cfg.ConnectTimeout,
		ReadTimeout:    b.c.cfg.ReadTimeout,
		OnProgress:     onProgress,
	}
	return b.c.Pipeline.UploadFile(ctx, cfg, src, size)
}

// ReadLargeFile implements spec.md §4.7's symmetric blob->local pipeline:
// double-buffered range reads overlapped with filesystem writes into dst.
func (b *Blob) ReadLargeFile(ctx context.Context, dst io.Writer, size int64, onProgress func(copypipeline.Progress)) error {
	cfg := copypipeline.Config{
		Account:        b.c.cfg.StorageAccount,
		Container:      b.c.cfg.ContainerName,
		Blob:           b.fullName,
		NThreads:       b.c.cfg.NThreads,
		NRetries:       b.c.cfg.NRetries,
		ConnectTimeout: b.c.cfg.ConnectTimeout,
		ReadTimeout:    b.c.cfg.ReadTimeout,
		OnProgress:     onProgress,
	}
	return b.c.Pipeline.DownloadFile(ctx, cfg, dst, size)
}
