package fsx

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertNoTemp(t *testing.T, dir, name string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "."+name+".tmp-"), "临时文件未清理：%q", e.Name())
	}
}

func readString(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestWriteFileAtomic_SuccessAndNoTempLeft(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, WriteFileAtomic(dir, "a.csv", []byte("hello")))
	assert.Equal(t, "hello", readString(t, filepath.Join(dir, "a.csv")))
	assertNoTemp(t, dir, "a.csv")
}

func TestWriteFileAtomic_Replaces(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteFileAtomic(dir, "a.csv", []byte("old")))
	require.NoError(t, WriteFileAtomic(dir, "a.csv", []byte("new")))
	assert.Equal(t, "new", readString(t, filepath.Join(dir, "a.csv")))
}

func TestWriteFileAtomic_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out", "nested")
	require.NoError(t, WriteFileAtomic(dir, "a.csv", []byte("x")))
	assert.FileExists(t, filepath.Join(dir, "a.csv"))
}

func TestWriteFileAtomic_RenameFail_CleanupTemp(t *testing.T) {
	dir := t.TempDir()

	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		return os.ErrPermission
	}
	defer func() { renameFunc = old }()

	assert.Error(t, WriteFileAtomic(dir, "a.csv", []byte("hello")))
	assertNoTemp(t, dir, "a.csv")
	assert.NoFileExists(t, filepath.Join(dir, "a.csv"), "不应写出最终文件")
}

func TestWriteAtomicFunc_FillErrorKeepsOld(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteFileAtomic(dir, "a.csv", []byte("old")))

	boom := errors.New("boom")
	err := WriteAtomicFunc(dir, "a.csv", func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "old", readString(t, filepath.Join(dir, "a.csv")), "失败时不应改动目标文件")
	assertNoTemp(t, dir, "a.csv")
}

func TestWriteFileAtomic_TargetConflictDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "a.csv"), 0o755))

	err := WriteFileAtomic(dir, "a.csv", []byte("hello"))
	assert.True(t, IsPathTypeConflict(err), "期望 PathTypeConflictError，实际：%T %v", err, err)
}
