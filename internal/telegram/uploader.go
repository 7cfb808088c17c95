package telegram

import (
	"context"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"github.com/gotd/td/tg"
	"golang.org/x/sync/errgroup"

	"github.com/pavelc4/aether-fetch/pkg/buffer"
	"github.com/pavelc4/aether-fetch/pkg/logger"
)

const (
	bigFileThreshold = 10 * 1024 * 1024
	uploadWorkers    = 4
	partRetries      = 3
)

// PartSaver is the subset of the MTProto API used for uploads.
type PartSaver interface {
	UploadSaveFilePart(ctx context.Context, request *tg.UploadSaveFilePartRequest) (bool, error)
	UploadSaveBigFilePart(ctx context.Context, request *tg.UploadSaveBigFilePartRequest) (bool, error)
}

// Uploader sends a local file to Telegram in fixed-size parts, several
// parts at a time.
type Uploader struct {
	api          PartSaver
	pool         *buffer.Pool
	workers      int
	bigThreshold int64
	retryDelay   time.Duration
}

func NewUploader(api PartSaver) *Uploader {
	return &Uploader{
		api:          api,
		pool:         buffer.Default,
		workers:      uploadWorkers,
		bigThreshold: bigFileThreshold,
		retryDelay:   500 * time.Millisecond,
	}
}

// Upload returns the handle to pass to a send-media request. progress is
// called from several goroutines with the cumulative byte count.
func (u *Uploader) Upload(ctx context.Context, path string, progress func(uploaded, total int64)) (tg.InputFileClass, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open upload")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat upload")
	}
	size := info.Size()
	if size == 0 {
		return nil, errors.New("refusing to upload an empty file")
	}

	partSize := int64(u.pool.Size())
	parts := int((size + partSize - 1) / partSize)
	big := size > u.bigThreshold
	fileID := rand.Int64()

	start := time.Now()
	var uploaded atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.workers)
	for part := 0; part < parts; part++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			buf := u.pool.Get()
			defer u.pool.Put(buf)

			n, err := f.ReadAt(buf, int64(part)*partSize)
			if err != nil && !errors.Is(err, io.EOF) {
				return errors.Wrapf(err, "read part %d", part)
			}
			if err := u.savePart(gctx, fileID, part, parts, big, buf[:n]); err != nil {
				return err
			}
			if progress != nil {
				progress(uploaded.Add(int64(n)), size)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger.InfoWithDuration("Upload finished", start, "file", filepath.Base(path), "parts", parts, "big", big)

	name := filepath.Base(path)
	if big {
		return &tg.InputFileBig{ID: fileID, Parts: parts, Name: name}, nil
	}
	return &tg.InputFile{ID: fileID, Parts: parts, Name: name}, nil
}

func (u *Uploader) savePart(ctx context.Context, fileID int64, part, total int, big bool, data []byte) error {
	op := func() error {
		var err error
		if big {
			_, err = u.api.UploadSaveBigFilePart(ctx, &tg.UploadSaveBigFilePartRequest{
				FileID:         fileID,
				FilePart:       part,
				FileTotalParts: total,
				Bytes:          data,
			})
		} else {
			_, err = u.api.UploadSaveFilePart(ctx, &tg.UploadSaveFilePartRequest{
				FileID:   fileID,
				FilePart: part,
				Bytes:    data,
			})
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = u.retryDelay
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, partRetries), ctx)); err != nil {
		return errors.Wrapf(err, "upload part %d/%d", part+1, total)
	}
	return nil
}
