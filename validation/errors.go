package validation

import "errors"

var (
	ErrInvalidFileType = errors.New("file is not a zip container")
	ErrFileTooLarge    = errors.New("file size exceeds the upload limit")
	ErrNoFilename      = errors.New("no filename provided")
	ErrUnsupportedExt  = errors.New("unsupported file extension")
)
