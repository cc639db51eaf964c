package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageServiceDisabledWithoutEndpoint(t *testing.T) {
	svc, err := NewStorageService(StorageConfig{})
	require.NoError(t, err)
	assert.False(t, svc.Enabled())

	ctx := context.Background()
	_, err = svc.PresignUpload(ctx, "class-1", "notes.pdf")
	assert.ErrorIs(t, err, ErrStorageDisabled)

	_, err = svc.PresignDownload(ctx, "classes/class-1/notes.pdf")
	assert.ErrorIs(t, err, ErrStorageDisabled)

	assert.ErrorIs(t, svc.Remove(ctx, "anything"), ErrStorageDisabled)
	assert.NoError(t, svc.EnsureBucket(ctx))
}

func TestStorageServiceRequiresBucket(t *testing.T) {
	_, err := NewStorageService(StorageConfig{Endpoint: "localhost:9000"})
	assert.Error(t, err)
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"notes.pdf":             "notes.pdf",
		"../../etc/passwd":      "passwd",
		"my report (final).doc": "my_report__final_.doc",
		"übung 1.pdf":           "_bung_1.pdf",
		"  spaced.txt":          "spaced.txt",
		"":                      "",
		".":                     "",
	}
	for input, want := range cases {
		assert.Equal(t, want, sanitizeFilename(input), "input %q", input)
	}
}
