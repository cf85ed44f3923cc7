package transfer

import (
	"sync"
	"sync/atomic"
)

// DownloadInfo is the byte-level state of one file's download.
type DownloadInfo struct {
	Path            string
	DownloadedBytes int64
	TotalBytes      int64
}

// TransferStats tracks aggregate byte counts across all downloads, for
// status displays. Updates replace the previous entry for a path, so
// repeated reports for one file do not inflate the totals.
type TransferStats interface {
	UpdateDownloadStats(info DownloadInfo)
	DownloadedBytes() int64
	TotalBytes() int64
}

type transferStats struct {
	sync.Mutex

	statsByPath map[string]DownloadInfo

	downloadedBytes *atomic.Int64
	totalBytes      *atomic.Int64
}

func NewTransferStats() TransferStats {
	return &transferStats{
		statsByPath:     make(map[string]DownloadInfo),
		downloadedBytes: &atomic.Int64{},
		totalBytes:      &atomic.Int64{},
	}
}

func (ts *transferStats) UpdateDownloadStats(info DownloadInfo) {
	ts.Lock()
	defer ts.Unlock()
	if old, ok := ts.statsByPath[info.Path]; ok {
		ts.downloadedBytes.Add(-old.DownloadedBytes)
		ts.totalBytes.Add(-old.TotalBytes)
	}
	ts.statsByPath[info.Path] = info
	ts.downloadedBytes.Add(info.DownloadedBytes)
	ts.totalBytes.Add(info.TotalBytes)
}

func (ts *transferStats) DownloadedBytes() int64 {
	return ts.downloadedBytes.Load()
}

func (ts *transferStats) TotalBytes() int64 {
	return ts.totalBytes.Load()
}
