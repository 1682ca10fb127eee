package attachment

import (
	"fmt"
	"strings"
)

const (
	DefaultMaxSize = 15 << 20
	PosterMaxSize  = 10 << 20
)

// Policy ограничения на выбираемый файл
type Policy struct {
	MaxSize   int64
	ImageOnly bool
}

// MessagePolicy вложения в чате: любой тип
func MessagePolicy(maxSize int64) Policy {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return Policy{MaxSize: maxSize}
}

// PosterPolicy постеры объявлений принимают только изображения
var PosterPolicy = Policy{MaxSize: PosterMaxSize, ImageOnly: true}

// Check выполняется до любых сетевых вызовов
func (p Policy) Check(f File, mimeType string) error {
	if p.MaxSize > 0 && f.Size() > p.MaxSize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, f.Size(), p.MaxSize)
	}
	if p.ImageOnly && !strings.HasPrefix(mimeType, "image/") {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}
	return nil
}
