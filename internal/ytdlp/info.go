package ytdlp

// Info is the subset of the yt-dlp info dictionary that Siphon consumes. Any
// other keys in the engine output are ignored during decoding.
type Info struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Thumbnail      string   `json:"thumbnail"`
	Ext            string   `json:"ext"`
	Filesize       *int64   `json:"filesize"`
	FilesizeApprox *float64 `json:"filesize_approx"`
	Formats        []Format `json:"formats"`

	// RequestedDownloads holds one entry per format yt-dlp actually
	// downloaded, carrying the final on-disk path of each.
	RequestedDownloads []Download `json:"requested_downloads"`

	// Top-level filename keys are only present in some yt-dlp versions.
	Filename    string `json:"filename"`
	LegacyFname string `json:"_filename"`
}

// Download is an entry of the requested_downloads list. Filepath is the
// location after any post-processing, Filename the prepared output path.
type Download struct {
	Filepath    string `json:"filepath"`
	Filename    string `json:"filename"`
	LegacyFname string `json:"_filename"`
}

// Format describes a single encoding offered by the source.
type Format struct {
	FormatID   string `json:"format_id"`
	FormatNote string `json:"format_note"`
	Ext        string `json:"ext"`
	URL        string `json:"url"`
	Height     *int   `json:"height"`
	ACodec     string `json:"acodec"`
	VCodec     string `json:"vcodec"`
}

// OutputPath returns the path yt-dlp reported for the downloaded file,
// preferring the first requested download over the top-level keys. An
// empty string is returned if yt-dlp reported no path at all.
func (info *Info) OutputPath() string {
	for _, dl := range info.RequestedDownloads {
		if path := firstNonEmpty(dl.Filepath, dl.Filename, dl.LegacyFname); path != "" {
			return path
		}
	}
	return firstNonEmpty(info.Filename, info.LegacyFname)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Size returns the exact size reported by the engine, falling back to
// the approximate size. The boolean is false if neither is known.
func (info *Info) Size() (int64, bool) {
	if info.Filesize != nil && *info.Filesize > 0 {
		return *info.Filesize, true
	}
	if info.FilesizeApprox != nil && *info.FilesizeApprox > 0 {
		return int64(*info.FilesizeApprox), true
	}
	return 0, false
}
