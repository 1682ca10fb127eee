package protocol

import (
	"net/url"
	"path"
	"strings"

	"github.com/thereayou/marketchat/internal/domain"
)

var imageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".svg":  "image/svg+xml",
}

var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".ogv":  "video/ogg",
}

// IsAbsoluteHTTPURL true, если весь текст это один абсолютный http(s) URL
func IsAbsoluteHTTPURL(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || strings.ContainsAny(text, " \t\n\r") {
		return false
	}

	u, err := url.Parse(text)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// MimeFromExtension MIME по расширению файла в URL; пустая строка означает нетипизированную ссылка
func MimeFromExtension(rawURL string) string {
	ext := strings.ToLower(path.Ext(urlPath(rawURL)))
	if mime, ok := imageTypes[ext]; ok {
		return mime
	}
	if mime, ok := videoTypes[ext]; ok {
		return mime
	}
	return ""
}

// InferAttachment строит вложение по URL
func InferAttachment(rawURL, fileName string) *domain.Attachment {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil
	}

	if fileName == "" {
		base := path.Base(urlPath(rawURL))
		if base != "." && base != "/" {
			fileName = base
		}
	}

	return &domain.Attachment{
		URL:      rawURL,
		MimeType: MimeFromExtension(rawURL),
		FileName: fileName,
	}
}

func urlPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Path
}
