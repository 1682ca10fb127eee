package attachment

import "errors"

var (
	ErrFileTooLarge    = errors.New("file is too large")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrUpload          = errors.New("attachment upload failed")
	ErrNothingSelected = errors.New("no file selected")
	ErrUploading       = errors.New("upload already in progress")
)
