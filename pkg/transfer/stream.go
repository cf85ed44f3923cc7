package transfer

import (
	"context"
	"io"
	"os"
)

const defaultChunkSize int64 = 256 * 1024

// copyChunks streams src to dst in fixed-size chunks, reporting each
// chunk that lands on disk and checking for cancellation between
// chunks. It returns the bytes written and the first error hit; a
// cancelled copy returns ctx.Err.
func copyChunks(ctx context.Context, dst *os.File, src io.Reader, chunkSize int64, total int64, progress func(written, total int64)) (int64, error) {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	buf := make([]byte, chunkSize)
	var written int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, err
			}
			written += int64(n)
			if progress != nil {
				progress(written, total)
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}
	}
}

// percent converts a byte count to a percentage, clamped to [0, 100].
// An unknown total yields 0.
func percent(written, total int64) int {
	if total <= 0 {
		return 0
	}
	p := int(written * 100 / total)
	if p > 100 {
		p = 100
	}
	return p
}
