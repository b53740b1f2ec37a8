package copypipeline

import (
	"context"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/azstorex/azstorage/internal/blockplan"
	"github.com/azstorex/azstorage/internal/upload"
	"github.com/azstorex/azstorage/internal/xerrors"
)

// UploadFile copies size bytes from src (positioned at its start) to the
// blob named by cfg, planning the whole-file block list once up front
// (PLAN) and then overlapping filesystem reads with block uploads
// (spec.md §4.7): read the next batch into the fill buffer, swap buffers,
// asynchronously dispatch the filled batch's blocks while the next batch
// is read, and COMMIT once the last upload completes.
func (p *Pipeline) UploadFile(ctx context.Context, cfg Config, src io.Reader, size int64) error {
	halfBuf := cfg.halfBufferSize()
	plan, err := blockplan.Compute(size, cfg.NThreads, halfBuf)
	if err != nil {
		return err
	}
	uploadCfg := cfg.uploadConfig()

	batches, err := buildBatches(plan, halfBuf)
	if err != nil {
		return err
	}
	buffers := [2][]byte{make([]byte, halfBuf), make([]byte, halfBuf)}

	var prevErrCh chan error
	for i, b := range batches {
		buf := buffers[i%2][:b.length]

		t0 := time.Now()
		if _, err := io.ReadFull(src, buf); err != nil {
			return xerrors.Wrapf(err, "copypipeline.UploadFile: read batch %d", i)
		}
		readDur := time.Since(t0)

		if prevErrCh != nil {
			if err := <-prevErrCh; err != nil {
				return err
			}
		}

		batchCopy := b
		bufCopy := buf
		idx := i
		errCh := make(chan error, 1)
		writeStart := time.Now()
		go func() {
			err := p.uploadBatch(ctx, uploadCfg, batchCopy, bufCopy)
			if err == nil && cfg.OnProgress != nil {
				cfg.OnProgress(Progress{
					BatchIndex: idx,
					ReadMBps:   mbps(int64(len(bufCopy)), readDur),
					WriteMBps:  mbps(int64(len(bufCopy)), time.Since(writeStart)),
				})
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

	return p.Uploader.Commit(ctx, uploadCfg, plan)
}

// uploadBatch fans the batch's blocks out across up to cfg.NThreads
// concurrent PUTs, mirroring internal/upload's own worker-pool shape.
func (p *Pipeline) uploadBatch(ctx context.Context, cfg upload.Config, b batch, buf []byte) error {
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
			return p.Uploader.PutBlock(ctx, cfg, blk, local)
		})
	}
	return g.Wait()
}

func mbps(n int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return (float64(n) / (1024 * 1024)) / d.Seconds()
}
