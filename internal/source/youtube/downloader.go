// Package youtube downloads the audio track of a YouTube video.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	yt "github.com/kkdai/youtube/v2"
	"go.uber.org/zap"

	"ragchat/internal/source"
)

// MaxAudioBytes caps a download so it stays within transcription upload limits.
const MaxAudioBytes = 25 << 20

// Downloader implements source.AudioDownloader.
type Downloader struct {
	client *yt.Client
	logger *zap.Logger
}

var _ source.AudioDownloader = (*Downloader)(nil)

func NewDownloader(timeout time.Duration, logger *zap.Logger) *Downloader {
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		client: &yt.Client{HTTPClient: &http.Client{Timeout: timeout}},
		logger: logger,
	}
}

func (d *Downloader) Download(ctx context.Context, url, dir string) (source.Audio, error) {
	video, err := d.client.GetVideoContext(ctx, url)
	if err != nil {
		return source.Audio{}, fmt.Errorf("video metadata: %w", err)
	}
	format, ok := PickAudioFormat(video.Formats)
	if !ok {
		return source.Audio{}, errors.New("no audio-only stream available")
	}
	stream, size, err := d.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return source.Audio{}, fmt.Errorf("open stream: %w", err)
	}
	defer stream.Close()
	if size > MaxAudioBytes {
		return source.Audio{}, fmt.Errorf("audio stream is %d bytes, limit is %d", size, MaxAudioBytes)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return source.Audio{}, err
	}
	path := filepath.Join(dir, video.ID+extensionFor(format.MimeType))
	f, err := os.Create(path)
	if err != nil {
		return source.Audio{}, err
	}
	n, err := io.Copy(f, io.LimitReader(stream, MaxAudioBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > MaxAudioBytes {
		err = fmt.Errorf("audio exceeds %d bytes", MaxAudioBytes)
	}
	if err != nil {
		_ = os.Remove(path)
		return source.Audio{}, fmt.Errorf("download audio: %w", err)
	}
	d.logger.Info("audio downloaded",
		zap.String("video", video.ID),
		zap.String("mime", format.MimeType),
		zap.Int64("bytes", n))
	return source.Audio{Path: path, Title: video.Title, MimeType: baseMime(format.MimeType)}, nil
}

// PickAudioFormat prefers audio-only mp4 streams, then webm, choosing the
// lowest bitrate to keep uploads small.
func PickAudioFormat(formats yt.FormatList) (*yt.Format, bool) {
	var candidates []*yt.Format
	for i := range formats {
		f := &formats[i]
		if f.AudioChannels > 0 && strings.HasPrefix(f.MimeType, "audio/") {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	rank := func(f *yt.Format) int {
		if strings.HasPrefix(f.MimeType, "audio/mp4") {
			return 0
		}
		return 1
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if ri, rj := rank(candidates[i]), rank(candidates[j]); ri != rj {
			return ri < rj
		}
		return candidates[i].Bitrate < candidates[j].Bitrate
	})
	return candidates[0], true
}

func baseMime(mime string) string {
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	return strings.TrimSpace(mime)
}

func extensionFor(mime string) string {
	switch baseMime(mime) {
	case "audio/mp4":
		return ".m4a"
	case "audio/webm":
		return ".webm"
	case "audio/mpeg":
		return ".mp3"
	}
	return ".audio"
}
