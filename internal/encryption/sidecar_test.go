package encryption

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewSidecarDefaults(t *testing.T) {
	sc, err := NewSidecar()
	require.NoError(t, err)

	assert.True(t, sc.Encrypted)
	assert.Equal(t, "argon2id", sc.Algorithm)
	assert.Equal(t, 1, sc.Version)
	assert.Equal(t, uint32(3), sc.Params.TimeCost)
	assert.Equal(t, uint32(64*1024), sc.Params.MemoryCost)
	assert.Equal(t, uint8(4), sc.Params.Parallelism)
	assert.Equal(t, uint32(32), sc.Params.HashLen)

	salt, err := base64.StdEncoding.DecodeString(sc.Salt)
	require.NoError(t, err)
	assert.Len(t, salt, saltLen)
}

func TestSidecarRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "encryption.json")
	sc, err := NewSidecar()
	require.NoError(t, err)
	require.NoError(t, sc.Save(path))

	loaded, err := LoadSidecar(path)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, sc, loaded)
}

func TestLoadSidecarMissing(t *testing.T) {
	sc, err := LoadSidecar(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Nil(t, sc)
}

func TestSidecarFieldNames(t *testing.T) {
	sc, err := NewSidecar()
	require.NoError(t, err)
	data, err := json.Marshal(sc)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"encrypted", "salt", "algorithm", "version", "argon2_params"} {
		assert.Contains(t, raw, key)
	}

	var params map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw["argon2_params"], &params))
	for _, key := range []string{"time_cost", "memory_cost", "parallelism", "hash_len"} {
		assert.Contains(t, params, key)
	}
}

func TestHexKeyDeterministic(t *testing.T) {
	sc, err := NewSidecar()
	require.NoError(t, err)

	first, err := sc.HexKey("hunter2")
	require.NoError(t, err)
	second, err := sc.HexKey("hunter2")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64) // 32 bytes hex encoded

	other, err := sc.HexKey("different")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestHexKeyDependsOnSalt(t *testing.T) {
	a, err := NewSidecar()
	require.NoError(t, err)
	b, err := NewSidecar()
	require.NoError(t, err)

	keyA, err := a.HexKey("hunter2")
	require.NoError(t, err)
	keyB, err := b.HexKey("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, keyA, keyB)
}

func TestHexKeyBadSalt(t *testing.T) {
	sc := &Sidecar{Salt: "!!!", Params: DefaultParams()}
	_, err := sc.HexKey("hunter2")
	assert.Error(t, err)
}

func TestServiceKeyPlaintext(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(filepath.Join(dir, "treeline.duckdb"), filepath.Join(dir, "encryption.json"), testLogger())

	key, err := svc.Key("")
	require.NoError(t, err)
	assert.Empty(t, key)
}

func TestServiceKeyRequiresPassword(t *testing.T) {
	dir := t.TempDir()
	sidecarPath := filepath.Join(dir, "encryption.json")
	sc, err := NewSidecar()
	require.NoError(t, err)
	require.NoError(t, sc.Save(sidecarPath))

	svc := NewService(filepath.Join(dir, "treeline.duckdb"), sidecarPath, testLogger())
	_, err = svc.Key("")
	assert.Error(t, err)

	key, err := svc.Key("hunter2")
	require.NoError(t, err)
	assert.Len(t, key, 64)
}

func TestEncryptRejectsEmptyPassword(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(filepath.Join(dir, "treeline.duckdb"), filepath.Join(dir, "encryption.json"), testLogger())
	assert.Error(t, svc.Encrypt("", nil))
}

func TestDecryptWithoutSidecar(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(filepath.Join(dir, "treeline.duckdb"), filepath.Join(dir, "encryption.json"), testLogger())
	assert.Error(t, svc.Decrypt("hunter2", nil))
}

func TestReplaceFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0o644))

	require.NoError(t, replaceFile(src, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}
