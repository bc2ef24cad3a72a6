package chat

import (
	"fmt"
	"path/filepath"
	"strings"
)

const DefaultMaxAttachmentBytes = 10 << 20 // 10 MiB

// Images, common office/document formats and common archives. Upload and
// content validation happen in the file service; this list only gates what
// may be referenced from a chat message.
var defaultAllowedExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp",
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	".txt", ".md", ".csv", ".hwp",
	".zip", ".rar", ".7z", ".tar", ".gz",
}

type FilePolicy struct {
	MaxBytes   int64
	extensions map[string]struct{}
}

func NewFilePolicy(maxBytes int64, extensions []string) FilePolicy {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxAttachmentBytes
	}
	if len(extensions) == 0 {
		extensions = defaultAllowedExtensions
	}

	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = struct{}{}
	}

	return FilePolicy{
		MaxBytes:   maxBytes,
		extensions: allowed,
	}
}

func DefaultFilePolicy() FilePolicy {
	return NewFilePolicy(DefaultMaxAttachmentBytes, nil)
}

// CheckAttachment validates an attachment's name and size against the
// policy. The returned error wraps ErrFileTooLarge or ErrFileType with a
// human-readable reason.
func (p FilePolicy) CheckAttachment(fileName string, size int64) error {
	if size > p.MaxBytes {
		return fmt.Errorf("%w: %q is %d bytes, limit is %d", ErrFileTooLarge, fileName, size, p.MaxBytes)
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	if _, ok := p.extensions[ext]; !ok {
		return fmt.Errorf("%w: %q", ErrFileType, ext)
	}

	return nil
}
