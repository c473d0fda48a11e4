package infra

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyFile(t *testing.T) {
	tests := []struct {
		name   string
		testFn func(t *testing.T, kf *KeyFile)
	}{
		{
			name: "Exists is false before Save",
			testFn: func(t *testing.T, kf *KeyFile) {
				assert.False(t, kf.Exists())
			},
		},
		{
			name: "Save writes owner-only file",
			testFn: func(t *testing.T, kf *KeyFile) {
				key, err := GenerateKey()
				require.NoError(t, err)
				require.NoError(t, kf.Save(key))

				info, err := os.Stat(kf.Path())
				require.NoError(t, err)
				assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
			},
		},
		{
			name: "Load returns saved key",
			testFn: func(t *testing.T, kf *KeyFile) {
				key, err := GenerateKey()
				require.NoError(t, err)
				require.NoError(t, kf.Save(key))

				got, err := kf.Load()
				require.NoError(t, err)
				assert.Equal(t, key, got)
			},
		},
		{
			name: "Load fails without file",
			testFn: func(t *testing.T, kf *KeyFile) {
				_, err := kf.Load()
				assert.Error(t, err)
			},
		},
		{
			name: "Load rejects truncated key",
			testFn: func(t *testing.T, kf *KeyFile) {
				short := base64.StdEncoding.EncodeToString([]byte("short"))
				require.NoError(t, os.WriteFile(kf.Path(), []byte(short), 0600))

				_, err := kf.Load()
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid key size")
			},
		},
		{
			name: "Save rejects wrong size",
			testFn: func(t *testing.T, kf *KeyFile) {
				err := kf.Save([]byte("tooshort"))
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid key size")
			},
		},
		{
			name: "LoadOrCreate is stable across calls",
			testFn: func(t *testing.T, kf *KeyFile) {
				first, err := kf.LoadOrCreate()
				require.NoError(t, err)
				second, err := kf.LoadOrCreate()
				require.NoError(t, err)

				assert.Len(t, first, keySize)
				assert.Equal(t, first, second)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.testFn(t, NewKeyFile(t.TempDir()))
		})
	}
}

func TestKeyFile_SaveCreatesDirectory(t *testing.T) {
	kf := NewKeyFile(filepath.Join(t.TempDir(), "nested", "dir"))
	key, err := GenerateKey()
	require.NoError(t, err)

	require.NoError(t, kf.Save(key))
	assert.True(t, kf.Exists())
}

func TestGenerateKey_Unique(t *testing.T) {
	a, err := GenerateKey()
	require.NoError(t, err)
	b, err := GenerateKey()
	require.NoError(t, err)

	assert.Len(t, a, keySize)
	assert.NotEqual(t, a, b)
}
