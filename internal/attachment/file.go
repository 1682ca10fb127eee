package attachment

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/thereayou/marketchat/internal/protocol"
)

const octetStream = "application/octet-stream"

// File локальный файл, выбранный пользователем
type File struct {
	Name string
	Data []byte
}

func NewFile(name string, data []byte) File {
	return File{Name: filepath.Base(name), Data: data}
}

// OpenFile читает файл с диска целиком.
// Размер проверяется до чтения; maxSize <= 0 снимает ограничение.
func OpenFile(path string, maxSize int64) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("open attachment: %w", err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("open attachment: %s is a directory", path)
	}
	if maxSize > 0 && info.Size() > maxSize {
		return File{}, fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, info.Size(), maxSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("open attachment: %w", err)
	}
	return NewFile(path, data), nil
}

func (f File) Size() int64 {
	return int64(len(f.Data))
}

// DetectMime определяет тип по содержимому, а если это не удалось, по расширению имени
func DetectMime(f File) string {
	detected := mimetype.Detect(f.Data).String()
	if i := strings.IndexByte(detected, ';'); i >= 0 {
		detected = detected[:i]
	}
	if detected != "" && detected != octetStream {
		return detected
	}
	if byExt := protocol.MimeFromExtension(f.Name); byExt != "" {
		return byExt
	}
	return octetStream
}
