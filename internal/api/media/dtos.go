package media

import (
	"encoding/json"
	"net/url"

	"github.com/hbomb79/Siphon/internal/api/util"
	"github.com/hbomb79/Siphon/internal/extraction"
)

const DownloadRoutePrefix = "/download/"

type (
	ExtractRequest struct {
		URL string `json:"url" validate:"required"`
	}

	SelectRequest struct {
		URL      string `json:"url" validate:"required"`
		FormatID string `json:"format_id" validate:"required"`
	}

	FormatDto struct {
		FormatID string `json:"format_id"`
		Quality  string `json:"quality"`
		Type     string `json:"type"`
		Ext      string `json:"ext"`
		URL      string `json:"url"`
	}

	ExtractResponse struct {
		Formats      []FormatDto `json:"formats"`
		ThumbnailURL string      `json:"thumbnail_url"`
		Title        string      `json:"title"`
	}

	SelectResponse struct {
		DownloadURL  string  `json:"download_url"`
		ThumbnailURL string  `json:"thumbnail_url"`
		Size         SizeDto `json:"size"`
		Name         string  `json:"name"`
		Ext          string  `json:"ext"`
	}

	// SizeDto is rendered as a number of bytes, or the string
	// "Unknown" if the size could not be determined.
	SizeDto struct{ Bytes *int64 }
)

func (size SizeDto) MarshalJSON() ([]byte, error) {
	if size.Bytes == nil {
		return json.Marshal("Unknown")
	}
	return json.Marshal(*size.Bytes)
}

func NewFormatDto(model extraction.Format) FormatDto {
	return FormatDto{
		FormatID: model.FormatID,
		Quality:  model.Quality,
		Type:     string(model.Type),
		Ext:      model.Ext,
		URL:      model.SourceURL,
	}
}

func NewExtractResponse(model *extraction.Result) ExtractResponse {
	return ExtractResponse{
		Formats:      util.ApplyConversion(model.Formats, NewFormatDto),
		ThumbnailURL: model.ThumbnailURL,
		Title:        model.Title,
	}
}

func NewSelectResponse(model *extraction.DownloadedFile) SelectResponse {
	return SelectResponse{
		DownloadURL:  DownloadRoutePrefix + url.PathEscape(model.Name),
		ThumbnailURL: model.ThumbnailURL,
		Size:         SizeDto{Bytes: model.Size},
		Name:         model.Name,
		Ext:          model.Ext,
	}
}
