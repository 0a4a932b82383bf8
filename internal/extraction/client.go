// Package extraction adapts the media engine to the handful of operations
// Siphon exposes: listing the formats of a URL, and downloading one of them
// in to storage. Engine output is converted here so that the rest of Siphon
// only sees typed, validated data.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/hbomb79/Siphon/internal/storage"
	"github.com/hbomb79/Siphon/internal/ytdlp"
	"github.com/hbomb79/Siphon/pkg/logger"
)

const (
	DefaultThumbnailURL = "https://via.placeholder.com/150"
	DefaultTitle        = "Unknown Title"
	DefaultExt          = "mp4"
	UnknownQuality      = "Unknown"

	// OutputTemplate is handed to the engine, relative to the storage directory.
	OutputTemplate = "%(title)s.%(ext)s"
)

type FormatType string

const (
	Audio FormatType = "Audio"
	Video FormatType = "Video"
)

var log = logger.Get("Extraction")

type (
	Engine interface {
		Probe(ctx context.Context, url string) (*ytdlp.Info, error)
		Fetch(ctx context.Context, url string, formatID string, outputTemplate string) (*ytdlp.Info, error)
	}

	Store interface {
		Dir() string
		Adopt(writtenPath string, name string) (string, fs.FileInfo, error)
	}

	// Format is a single encoding of a media item, as offered by the source.
	Format struct {
		FormatID  string
		Quality   string
		Type      FormatType
		Ext       string
		SourceURL string
	}

	// Result is the outcome of probing a URL. FormatIDs are unique within a Result.
	Result struct {
		Formats      []Format
		ThumbnailURL string
		Title        string
	}

	// DownloadedFile describes a file which was persisted to storage.
	DownloadedFile struct {
		Name         string
		Ext          string
		Path         string
		Size         *int64
		ThumbnailURL string
	}

	Client struct {
		engine Engine
		store  Store
	}
)

func New(engine Engine, store Store) *Client {
	return &Client{engine: engine, store: store}
}

// Probe retrieves the available encodings for the URL without downloading any media.
// Entries the engine could not fully describe are skipped.
func (client *Client) Probe(ctx context.Context, url string) (*Result, error) {
	if strings.TrimSpace(url) == "" {
		return nil, newError(KindValidation, nil, "url must not be empty")
	}

	log.Emit(logger.INFO, "Extracting formats from URL: %s\n", url)
	info, err := client.engine.Probe(ctx, url)
	if err != nil {
		return nil, engineFailure(err)
	}

	seen := make(map[string]struct{}, len(info.Formats))
	formats := make([]Format, 0, len(info.Formats))
	for _, f := range info.Formats {
		if f.FormatID == "" {
			continue
		}
		if _, ok := seen[f.FormatID]; ok {
			log.Emit(logger.DEBUG, "Dropping duplicate format %s for %s\n", f.FormatID, url)
			continue
		}

		seen[f.FormatID] = struct{}{}
		formats = append(formats, newFormat(f))
	}

	if len(formats) == 0 {
		return nil, newError(KindNoFormats, nil, "No formats found")
	}

	log.Emit(logger.DEBUG, "Available formats for %s:\n", url)
	for _, f := range formats {
		log.Emit(logger.DEBUG, "ID: %s, Quality: %s, Type: %s, Extension: %s\n", f.FormatID, f.Quality, f.Type, f.Ext)
	}

	return &Result{
		Formats:      formats,
		ThumbnailURL: orDefault(info.Thumbnail, DefaultThumbnailURL),
		Title:        orDefault(info.Title, DefaultTitle),
	}, nil
}

// FetchFormat downloads the single encoding identified by formatID in to the store. The
// file is named after the title and extension of the item, after sanitization.
func (client *Client) FetchFormat(ctx context.Context, url string, formatID string) (*DownloadedFile, error) {
	if strings.TrimSpace(url) == "" {
		return nil, newError(KindValidation, nil, "url must not be empty")
	}
	if strings.TrimSpace(formatID) == "" {
		return nil, newError(KindValidation, nil, "format_id must not be empty")
	}

	log.Emit(logger.INFO, "Downloading format %s from URL: %s\n", formatID, url)
	template := filepath.Join(client.store.Dir(), OutputTemplate)
	info, err := client.engine.Fetch(ctx, url, formatID, template)
	if err != nil {
		return nil, engineFailure(err)
	}

	ext := orDefault(info.Ext, DefaultExt)
	written := info.OutputPath()
	base := filepath.Base(written)
	if written == "" {
		base = fmt.Sprintf("%s.%s", orDefault(info.Title, DefaultTitle), ext)
	}

	name := storage.SanitizeFilename(base)
	path, stat, err := client.store.Adopt(written, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Emit(logger.WARNING, "Engine reported success for %s but %s is missing from storage\n", url, name)
			return nil, newError(KindFileMissing, err, "Failed to download video")
		}
		return nil, newError(KindUnexpected, err, "%s", err.Error())
	}

	var size *int64
	if reported, ok := info.Size(); ok {
		size = &reported
	} else if stat != nil {
		onDisk := stat.Size()
		size = &onDisk
	}

	log.Emit(logger.SUCCESS, "Downloaded %s (format %s) to %s\n", url, formatID, path)
	return &DownloadedFile{
		Name:         name,
		Ext:          ext,
		Path:         path,
		Size:         size,
		ThumbnailURL: orDefault(info.Thumbnail, DefaultThumbnailURL),
	}, nil
}

func newFormat(f ytdlp.Format) Format {
	return Format{
		FormatID:  f.FormatID,
		Quality:   qualityOf(f),
		Type:      typeOf(f),
		Ext:       orDefault(f.Ext, DefaultExt),
		SourceURL: f.URL,
	}
}

// typeOf classifies a format as Audio only when it carries an audio
// codec and no video codec. Everything else is considered Video.
func typeOf(f ytdlp.Format) FormatType {
	if codecPresent(f.ACodec) && !codecPresent(f.VCodec) {
		return Audio
	}
	return Video
}

// yt-dlp reports 'none' for absent streams, and leaves
// the field empty when it could not be determined.
func codecPresent(codec string) bool {
	c := strings.ToLower(strings.TrimSpace(codec))
	return c != "" && c != "none"
}

func qualityOf(f ytdlp.Format) string {
	if f.FormatNote != "" {
		return f.FormatNote
	}
	if f.Height != nil && *f.Height > 0 {
		return fmt.Sprintf("%dp", *f.Height)
	}
	return UnknownQuality
}

func engineFailure(err error) *Error {
	var engineErr *ytdlp.EngineError
	if errors.As(err, &engineErr) {
		return newError(KindExtraction, err, "%s", engineErr.Message)
	}
	return newError(KindUnexpected, err, "%s", err.Error())
}

func orDefault(value string, dflt string) string {
	if value == "" {
		return dflt
	}
	return value
}
