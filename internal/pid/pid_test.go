package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/welterm/udsd/internal/errors"
)

func TestWriteAndRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), pidFile)

	require.NoError(t, writeAt(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	require.NoError(t, removeAt(path))
	assert.NoFileExists(t, path)
}

func TestWriteRefusesLiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), pidFile)
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600))

	err := writeAt(path)
	require.Error(t, err)

	var domainErr errors.Error
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, errors.ErrAlreadyRunning, domainErr.Code())
	assert.Equal(t, os.Getpid(), domainErr.GetData())
}

func TestWriteOverwritesStalePID(t *testing.T) {
	path := filepath.Join(t.TempDir(), pidFile)
	// Far above any real pid_max, so nothing alive can own it.
	require.NoError(t, os.WriteFile(path, []byte("2147483646"), 0o600))

	require.NoError(t, writeAt(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))
}

func TestWriteOverwritesMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), pidFile)
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0o600))

	require.NoError(t, writeAt(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))
}

func TestRemoveMissingFile(t *testing.T) {
	require.NoError(t, removeAt(filepath.Join(t.TempDir(), pidFile)))
}
