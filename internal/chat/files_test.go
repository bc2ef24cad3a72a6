package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckAttachment(t *testing.T) {
	policy := NewFilePolicy(1024, nil)

	t.Run("allowed file", func(t *testing.T) {
		assert.NoError(t, policy.CheckAttachment("report.pdf", 512))
	})

	t.Run("uppercase extension", func(t *testing.T) {
		assert.NoError(t, policy.CheckAttachment("PHOTO.JPG", 512))
	})

	t.Run("too large", func(t *testing.T) {
		err := policy.CheckAttachment("report.pdf", 2048)
		assert.ErrorIs(t, err, ErrFileTooLarge)
	})

	t.Run("disallowed extension", func(t *testing.T) {
		err := policy.CheckAttachment("malware.exe", 512)
		assert.ErrorIs(t, err, ErrFileType)
	})

	t.Run("no extension", func(t *testing.T) {
		err := policy.CheckAttachment("README", 512)
		assert.ErrorIs(t, err, ErrFileType)
	})
}

func TestNewFilePolicyDefaults(t *testing.T) {
	policy := NewFilePolicy(0, nil)
	assert.Equal(t, int64(DefaultMaxAttachmentBytes), policy.MaxBytes)
	assert.NoError(t, policy.CheckAttachment("notes.txt", 1))
}

func TestNewFilePolicyCustomExtensions(t *testing.T) {
	policy := NewFilePolicy(100, []string{".log"})
	assert.NoError(t, policy.CheckAttachment("server.log", 10))
	assert.ErrorIs(t, policy.CheckAttachment("photo.jpg", 10), ErrFileType)
}
