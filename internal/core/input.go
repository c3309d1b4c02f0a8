package core

// input.go reads an uploaded file into text the column resolver can split.
// Files come from Excel and LibreOffice on Windows as often as not:
//   - a UTF-8 BOM is dropped
//   - invalid UTF-8 (Latin-1 exports) is replaced with '?'

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// DefaultMaxFileSize is the default upload limit (10MB).
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// ErrFileTooLarge is returned when an upload exceeds the size limit.
var ErrFileTooLarge = errors.New("file too large")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadImportFile reads at most maxSize bytes from r and returns the
// sanitized text.
func ReadImportFile(r io.Reader, maxSize int64) (string, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	if int64(len(data)) > maxSize {
		return "", fmt.Errorf("%w: limit is %d MB", ErrFileTooLarge, maxSize/(1024*1024))
	}
	return DecodeText(data), nil
}

// DecodeText strips a leading BOM and replaces invalid UTF-8 sequences.
func DecodeText(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		data = bytes.ToValidUTF8(data, []byte("?"))
	}
	return string(data)
}
