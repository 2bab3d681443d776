package validation

import (
	"bytes"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
)

// Accepted uploads are all zip containers: apk/xapk/ipa bundles or a plain
// zip of a game build.
var allowedExtensions = map[string]bool{
	".apk":  true,
	".xapk": true,
	".ipa":  true,
	".zip":  true,
}

var zipMagic = [][]byte{
	{0x50, 0x4B, 0x03, 0x04},
	{0x50, 0x4B, 0x05, 0x06}, // empty archive
	{0x50, 0x4B, 0x07, 0x08}, // spanned archive
}

func IsAllowedExtension(filename string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// CheckZipContent reads the leading bytes of file and verifies a zip
// container signature, rewinding the reader afterwards.
func CheckZipContent(file multipart.File) error {
	buffer := make([]byte, 4)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return err
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	for _, signature := range zipMagic {
		if bytes.HasPrefix(buffer[:n], signature) {
			return nil
		}
	}
	return ErrInvalidFileType
}
