package handler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatUploadLimit(t *testing.T) {
	require.Equal(t, "0KB", formatUploadLimit(0))
	require.Equal(t, "1KB", formatUploadLimit(10))
	require.Equal(t, "1KB", formatUploadLimit(1024))
	require.Equal(t, "512KB", formatUploadLimit(512*1024))
	require.Equal(t, "20MB", formatUploadLimit(20*1024*1024))
}
