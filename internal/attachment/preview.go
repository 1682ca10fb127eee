package attachment

import (
	"bytes"
	"encoding/base64"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	previewWidth   = 320
	previewHeight  = 320
	previewQuality = 80
)

// buildPreview data URL для изображений и видео; для остальных типов пусто
func buildPreview(f File, mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		if thumb, ok := thumbnail(f.Data); ok {
			return dataURL("image/jpeg", thumb)
		}
		return dataURL(mimeType, f.Data)
	case strings.HasPrefix(mimeType, "video/"):
		return dataURL(mimeType, f.Data)
	default:
		return ""
	}
}

func thumbnail(data []byte) ([]byte, bool) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, false
	}

	small := imaging.Fit(img, previewWidth, previewHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, small, imaging.JPEG, imaging.JPEGQuality(previewQuality)); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}

func dataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
