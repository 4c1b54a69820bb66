package tools

import (
	"net/url"
	"path"
	"strings"
)

const (
	MEDIA_IMAGE    = "image"
	MEDIA_VIDEO    = "video"
	MEDIA_AUDIO    = "audio"
	MEDIA_DOCUMENT = "document"
)

var mediaByExt = map[string]string{
	".jpg": MEDIA_IMAGE, ".jpeg": MEDIA_IMAGE, ".png": MEDIA_IMAGE, ".gif": MEDIA_IMAGE, ".webp": MEDIA_IMAGE,
	".mp4": MEDIA_VIDEO, ".3gp": MEDIA_VIDEO, ".mov": MEDIA_VIDEO, ".avi": MEDIA_VIDEO, ".webm": MEDIA_VIDEO,
	".mp3": MEDIA_AUDIO, ".ogg": MEDIA_AUDIO, ".opus": MEDIA_AUDIO, ".wav": MEDIA_AUDIO, ".aac": MEDIA_AUDIO,
	".m4a": MEDIA_AUDIO, ".amr": MEDIA_AUDIO,
}

// MediaTypeFromURL classifies a media link by its file extension. Query
// strings and fragments are ignored; unknown extensions are sent as documents.
func MediaTypeFromURL(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))
	if t, ok := mediaByExt[ext]; ok {
		return t
	}
	return MEDIA_DOCUMENT
}
