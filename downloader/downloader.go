package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ytget/pahedl/internal/logger"
	"github.com/ytget/pahedl/internal/metrics"
)

const (
	defaultChunkSizeBytes         = 1 << 20 // 1MB
	defaultMaxRetries             = 3       // chunk retries
	temporaryFileSuffix           = ".tmp"  // suffix for temp download
	initialBackoffDuration        = 200 * time.Millisecond
	maxBackoffDuration            = 3 * time.Second
	copyBufferSizeBytes           = 32 * 1024 // 32KB
	headerRange                   = "Range"
	headerContentRange            = "Content-Range"
	headerContentLength           = "Content-Length"
	headerUserAgent               = "User-Agent"
	headerAccept                  = "Accept"
	headerAcceptLanguage          = "Accept-Language"
	headerAcceptEncoding          = "Accept-Encoding"
	headerReferer                 = "Referer"
	headerConnection              = "Connection"
	headerCacheControl            = "Cache-Control"
	successMinHTTPStatusCode      = 200
	successMaxHTTPStatusExclusive = 400

	userAgentValue = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

	// DefaultReferer is sent with every request; the kwik CDN rejects
	// requests without a kwik referer.
	DefaultReferer = "https://kwik.si/"
)

// Progress holds information about download progress.
type Progress struct {
	TotalSize      int64
	DownloadedSize int64
	Percent        float64
}

// Downloader is responsible for downloading media files with chunked HTTP
// requests, simple retry/backoff, and optional rate limiting.
type Downloader struct {
	Client       *http.Client
	ProgressFunc func(Progress)

	chunkSize  int64
	maxRetries int
	limiter    *rate.Limiter
	referer    string
	metrics    *metrics.Metrics
}

// New creates a new downloader instance with sane defaults.
// If client is nil, a default http.Client is used. rateLimitBps=0 disables limiting.
func New(client *http.Client, progressFunc func(Progress), rateLimitBps int64) *Downloader {
	if client == nil {
		client = &http.Client{}
	}
	return &Downloader{
		Client:       client,
		ProgressFunc: progressFunc,
		chunkSize:    defaultChunkSizeBytes,
		maxRetries:   defaultMaxRetries,
		limiter:      newLimiter(rateLimitBps),
		referer:      DefaultReferer,
	}
}

// newLimiter returns a byte rate limiter, or nil when bps is not positive.
func newLimiter(bps int64) *rate.Limiter {
	if bps <= 0 {
		return nil
	}
	burst := copyBufferSizeBytes
	if bps < int64(burst) {
		burst = int(bps)
	}
	return rate.NewLimiter(rate.Limit(bps), burst)
}

// WithReferer overrides the Referer header. Empty disables it.
func (d *Downloader) WithReferer(referer string) *Downloader {
	d.referer = referer
	return d
}

// WithChunkSize sets the size of ranged requests. Non-positive values are ignored.
func (d *Downloader) WithChunkSize(n int64) *Downloader {
	if n > 0 {
		d.chunkSize = n
	}
	return d
}

// WithMetrics counts written bytes on m.
func (d *Downloader) WithMetrics(m *metrics.Metrics) *Downloader {
	d.metrics = m
	return d
}

func (d *Downloader) newRequest(ctx context.Context, method, urlStr string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, urlStr, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(headerUserAgent, userAgentValue)
	req.Header.Set(headerAccept, "*/*")
	req.Header.Set(headerAcceptLanguage, "en-US,en;q=0.9")
	req.Header.Set(headerAcceptEncoding, "identity")
	req.Header.Set(headerConnection, "keep-alive")
	req.Header.Set(headerCacheControl, "no-cache")
	if d.referer != "" {
		req.Header.Set(headerReferer, d.referer)
	}
	return req, nil
}

// sizeFromHeaders reads the total size from Content-Range, then Content-Length.
func sizeFromHeaders(h http.Header) (int64, bool) {
	if cr := h.Get(headerContentRange); cr != "" {
		parts := strings.Split(cr, "/")
		if len(parts) == 2 {
			if v, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
				return v, true
			}
		}
	}
	if cl := h.Get(headerContentLength); cl != "" {
		if v, err := strconv.ParseInt(cl, 10, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

// detectTotalSize tries HEAD first, then GET range 0-1 to infer total size.
func (d *Downloader) detectTotalSize(ctx context.Context, urlStr string) (int64, error) {
	log := logger.WithComponent(logger.ComponentDownloader)

	headReq, err := d.newRequest(ctx, http.MethodHead, urlStr)
	if err != nil {
		return 0, err
	}
	headReq.Header.Set(headerRange, "bytes=0-1")
	headResp, err := d.Client.Do(headReq)
	if err == nil && headResp != nil {
		_ = headResp.Body.Close()
		log.Trace("HEAD response", logger.Fields{"status": headResp.StatusCode})
		if v, ok := sizeFromHeaders(headResp.Header); ok {
			return v, nil
		}
	}

	getReq, err := d.newRequest(ctx, http.MethodGet, urlStr)
	if err != nil {
		return 0, err
	}
	getReq.Header.Set(headerRange, "bytes=0-1")
	getResp, err := d.Client.Do(getReq)
	if err != nil {
		return 0, err
	}
	defer func() { _ = getResp.Body.Close() }()
	log.Trace("GET range response", logger.Fields{"status": getResp.StatusCode})
	if v, ok := sizeFromHeaders(getResp.Header); ok {
		return v, nil
	}
	return 0, errors.New("cannot determine total size")
}

// waitForRate blocks until written bytes fit the bandwidth limit.
func (d *Downloader) waitForRate(ctx context.Context, written int) error {
	if d.limiter == nil || written <= 0 {
		return nil
	}
	burst := d.limiter.Burst()
	for written > 0 {
		n := written
		if n > burst {
			n = burst
		}
		if err := d.limiter.WaitN(ctx, n); err != nil {
			return err
		}
		written -= n
	}
	return nil
}

// fetch sends a GET for the byte range start-end with retry and backoff.
// end < 0 requests the whole remainder.
func (d *Downloader) fetch(ctx context.Context, urlStr string, start, end int64) (*http.Response, error) {
	log := logger.WithComponent(logger.ComponentDownloader)
	var lastErr error
	backoff := initialBackoffDuration
	for attempt := 0; attempt < d.maxRetries; attempt++ {
		req, err := d.newRequest(ctx, http.MethodGet, urlStr)
		if err != nil {
			return nil, err
		}
		if end >= 0 {
			req.Header.Set(headerRange, fmt.Sprintf("bytes=%d-%d", start, end))
		} else if start > 0 {
			req.Header.Set(headerRange, fmt.Sprintf("bytes=%d-", start))
		}

		resp, err := d.Client.Do(req)
		if err == nil && resp.StatusCode >= successMinHTTPStatusCode && resp.StatusCode < successMaxHTTPStatusExclusive {
			return resp, nil
		}
		if err == nil {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
			err = fmt.Errorf("HTTP status %d", resp.StatusCode)
		}
		lastErr = err
		log.Debug("chunk request failed", logger.Fields{"attempt": attempt + 1, "start": start, "error": err.Error()})
		if attempt == d.maxRetries-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoffDuration {
			backoff = maxBackoffDuration
		}
	}
	return nil, lastErr
}

// copyBody streams resp into out, reporting progress and honoring the rate limit.
func (d *Downloader) copyBody(ctx context.Context, resp *http.Response, out io.Writer, downloaded *int64, totalSize int64) error {
	defer func() { _ = resp.Body.Close() }()
	buf := make([]byte, copyBufferSizeBytes)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return fmt.Errorf("failed to write chunk: %w", werr)
			}
			*downloaded += int64(n)
			d.metrics.Downloaded(int64(n))
			if d.ProgressFunc != nil {
				p := Progress{TotalSize: totalSize, DownloadedSize: *downloaded}
				if totalSize > 0 {
					p.Percent = float64(*downloaded) / float64(totalSize) * 100
				}
				d.ProgressFunc(p)
			}
			if err := d.waitForRate(ctx, n); err != nil {
				return err
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("failed to read response body: %w", rerr)
		}
	}
}

// Download downloads a file by URL and saves it to outputPath. It supports
// resuming from an existing temporary file and reports progress periodically.
func (d *Downloader) Download(ctx context.Context, urlStr string, outputPath string) error {
	log := logger.WithComponent(logger.ComponentDownloader).With(logger.Fields{"output": outputPath})

	tmpPath := outputPath + temporaryFileSuffix
	var outFile *os.File
	var err error
	if _, statErr := os.Stat(tmpPath); statErr == nil {
		outFile, err = os.OpenFile(tmpPath, os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open tmp for append: %w", err)
		}
	} else {
		outFile, err = os.Create(tmpPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
	}
	defer func() { _ = outFile.Close() }()

	currentInfo, err := outFile.Stat()
	if err != nil {
		return err
	}
	downloaded := currentInfo.Size()

	totalSize, err := d.detectTotalSize(ctx, urlStr)
	if err != nil {
		log.Warn("total size unknown", logger.Fields{"error": err.Error()})
		totalSize = 0
	}
	log.Info("download started", logger.Fields{"resume_from": downloaded, "total": totalSize})

	if totalSize == 0 {
		// unknown size: stream the remainder in one request
		resp, err := d.fetch(ctx, urlStr, downloaded, -1)
		if err != nil {
			return fmt.Errorf("download failed: %w", err)
		}
		if err := d.copyBody(ctx, resp, outFile, &downloaded, 0); err != nil {
			return err
		}
	}

	for totalSize > 0 && downloaded < totalSize {
		start := downloaded
		end := start + d.chunkSize - 1
		if end >= totalSize {
			end = totalSize - 1
		}

		resp, err := d.fetch(ctx, urlStr, start, end)
		if err != nil {
			return fmt.Errorf("download chunk failed: %w", err)
		}
		if err := d.copyBody(ctx, resp, outFile, &downloaded, totalSize); err != nil {
			return err
		}
		if downloaded == start {
			return fmt.Errorf("download stalled at %d of %d bytes", downloaded, totalSize)
		}
	}

	if downloaded == 0 {
		_ = outFile.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("empty download: 0 bytes written")
	}
	if err := outFile.Close(); err != nil {
		return err
	}
	log.Info("download finished", logger.Fields{"bytes": downloaded})
	return os.Rename(tmpPath, outputPath)
}
