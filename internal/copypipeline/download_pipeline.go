package copypipeline

import (
	"context"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/azstorex/azstorage/internal/blockplan"
	"github.com/azstorex/azstorage/internal/download"
	"github.com/azstorex/azstorage/internal/xerrors"
)

// DownloadFile copies size bytes of the blob named by cfg into dst,
// symmetric to UploadFile: double-buffered range reads overlapped with
// filesystem writes (spec.md §4.7's "symmetric pipeline for blob->local").
// Each batch's network read blocks the main loop; the previous batch's
// local write runs concurrently with the next batch's read, the same
// swap-then-dispatch-then-read-ahead shape UploadFile uses in reverse.
func (p *Pipeline) DownloadFile(ctx context.Context, cfg Config, dst io.Writer, size int64) error {
	halfBuf := cfg.halfBufferSize()
	plan, err := blockplan.Compute(size, cfg.NThreads, halfBuf)
	if err != nil {
		return err
	}
	downloadCfg := cfg.downloadConfig()

	batches, err := buildBatches(plan, halfBuf)
	if err != nil {
		return err
	}
	buffers := [2][]byte{make([]byte, halfBuf), make([]byte, halfBuf)}

	var prevErrCh chan error
	for i, b := range batches {
		buf := buffers[i%2][:b.length]

		t0 := time.Now()
		if err := p.downloadBatch(ctx, downloadCfg, b, buf); err != nil {
			return err
		}
		readDur := time.Since(t0)

		if prevErrCh != nil {
			if err := <-prevErrCh; err != nil {
				return err
			}
		}

		bufCopy := buf
		idx := i
		errCh := make(chan error, 1)
		writeStart := time.Now()
		go func() {
			_, err := dst.Write(bufCopy)
			if err == nil && cfg.OnProgress != nil {
				cfg.OnProgress(Progress{
					BatchIndex: idx,
					ReadMBps:   mbps(int64(len(bufCopy)), readDur),
					WriteMBps:  mbps(int64(len(bufCopy)), time.Since(writeStart)),
				})
			}
			if err != nil {
				err = xerrors.Wrapf(err, "copypipeline.DownloadFile: write batch %d", idx)
			}
			errCh <- err
		}()
		prevErrCh = errCh
	}
	if prevErrCh != nil {
		if err := <-prevErrCh; err != nil {
			return err
		}
	}
	return nil
}

// downloadBatch fans the batch's blocks out across up to cfg.NThreads
// concurrent Range-GETs, writing each block directly into its slice of
// buf (disjoint ranges, no synchronization needed beyond errgroup.Wait).
func (p *Pipeline) downloadBatch(ctx context.Context, cfg download.Config, b batch, buf []byte) error {
	nThreads := cfg.NThreads
	if nThreads < 1 {
		nThreads = 1
	}
	sem := make(chan struct{}, nThreads)
	var g errgroup.Group
	for _, blk := range b.blocks {
		blk := blk
		local := buf[blk.Offset-b.offset : blk.Offset-b.offset+blk.Length]
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			return p.Downloader.ReadRangeInto(ctx, cfg, local, blk.Offset, blk.Offset+blk.Length-1)
		})
	}
	return g.Wait()
}
