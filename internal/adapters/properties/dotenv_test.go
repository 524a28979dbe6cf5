package properties

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDotenvSinkWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "ports.env")
	sink := NewDotenvSink(path)

	require.NoError(t, sink.Write(map[string]string{"DB_PORT": "32768", "WEB_PORT": "32769"}))
	got, err := godotenv.Read(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"DB_PORT": "32768", "WEB_PORT": "32769"}, got)
}

func TestDotenvSinkMergesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ports.env")
	require.NoError(t, os.WriteFile(path, []byte("KEEP=me\nDB_PORT=1\n"), 0o644))

	require.NoError(t, NewDotenvSink(path).Write(map[string]string{"DB_PORT": "32768"}))
	got, err := godotenv.Read(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"KEEP": "me", "DB_PORT": "32768"}, got)
}
