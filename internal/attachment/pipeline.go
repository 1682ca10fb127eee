package attachment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"github.com/thereayou/marketchat/internal/domain"
	"github.com/thereayou/marketchat/internal/logging"
)

// UploadState этап загрузки выбранного файла
type UploadState int

const (
	StateIdle UploadState = iota
	StateUploading
	StateDone
	StateFailed
)

func (s UploadState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateUploading:
		return "uploading"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("upload_state(%d)", int(s))
	}
}

// UploadResult ответ хранилища
type UploadResult struct {
	URL      string
	FileName string
}

// Uploader внешнее хранилище файлов
type Uploader interface {
	Upload(ctx context.Context, name, contentType string, r io.Reader, size int64) (UploadResult, error)
}

// Pending выбранный, но ещё не отправленный файл
type Pending struct {
	File           File
	MimeType       string
	PreviewDataURL string
	State          UploadState
	Result         *domain.Attachment
}

// Pipeline превращает выбранный файл в вложение, готовое к отправке
type Pipeline struct {
	policy   Policy
	uploader Uploader
	logger   zerolog.Logger

	mu      sync.Mutex
	pending *Pending
}

func NewPipeline(policy Policy, uploader Uploader, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		policy:   policy,
		uploader: uploader,
		logger:   logging.Component(logger, "attachment"),
	}
}

func (p *Pipeline) Policy() Policy {
	return p.policy
}

// Select проверяет файл и делает его текущим. Отклонённый файл не меняет текущий выбор.
func (p *Pipeline) Select(f File) (Pending, error) {
	mimeType := DetectMime(f)
	if err := p.policy.Check(f, mimeType); err != nil {
		p.logger.Debug().Err(err).Str("file_name", f.Name).Msg("attachment rejected")
		return Pending{}, err
	}

	pending := &Pending{
		File:           f,
		MimeType:       mimeType,
		PreviewDataURL: buildPreview(f, mimeType),
		State:          StateIdle,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending != nil && p.pending.State == StateUploading {
		return Pending{}, ErrUploading
	}
	p.pending = pending
	return *pending, nil
}

// Preview data URL текущего файла; пусто, если файла нет или тип без превью
func (p *Pipeline) Preview() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return ""
	}
	return p.pending.PreviewDataURL
}

// Pending текущий выбранный файл
func (p *Pipeline) Pending() (Pending, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return Pending{}, false
	}
	return *p.pending, true
}

// Upload загружает текущий файл. При ошибке файл остаётся выбранным для повтора.
// Повторный вызов после успеха возвращает уже полученное вложение.
func (p *Pipeline) Upload(ctx context.Context) (domain.Attachment, error) {
	p.mu.Lock()
	cur := p.pending
	if cur == nil {
		p.mu.Unlock()
		return domain.Attachment{}, ErrNothingSelected
	}
	switch cur.State {
	case StateUploading:
		p.mu.Unlock()
		return domain.Attachment{}, ErrUploading
	case StateDone:
		att := *cur.Result
		p.mu.Unlock()
		return att, nil
	}
	cur.State = StateUploading
	f, mimeType := cur.File, cur.MimeType
	p.mu.Unlock()

	logger := p.logger.With().Str("file_name", f.Name).Int64("size", f.Size()).Logger()

	res, err := p.uploader.Upload(ctx, f.Name, mimeType, bytes.NewReader(f.Data), f.Size())
	if err == nil && res.URL == "" {
		err = fmt.Errorf("empty url in upload response")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		cur.State = StateFailed
		logger.Warn().Err(err).Msg("attachment upload failed")
		return domain.Attachment{}, fmt.Errorf("%w: %w", ErrUpload, err)
	}

	name := res.FileName
	if name == "" {
		name = f.Name
	}
	att := domain.Attachment{URL: res.URL, MimeType: mimeType, FileName: name}
	cur.State = StateDone
	cur.Result = &att

	logger.Debug().Str("url", res.URL).Msg("attachment uploaded")
	return att, nil
}

// Clear сбрасывает выбор после отправки или отмены
func (p *Pipeline) Clear() {
	p.mu.Lock()
	p.pending = nil
	p.mu.Unlock()
}
