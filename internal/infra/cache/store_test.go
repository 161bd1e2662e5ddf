package cache

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/ordersheet/internal/domain"
	"github.com/John-Robertt/ordersheet/internal/provider"
)

type fakeProvider struct{ name string }

func (p fakeProvider) Name() string { return p.name }
func (p fakeProvider) Fetch(context.Context, string, *http.Client) ([]byte, string, error) {
	return nil, "", errors.New("not used")
}
func (p fakeProvider) Parse(string, []byte, string) ([]domain.Candidate, error) { return nil, nil }

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{"": ModeOff, "off": ModeOff, " Record ": ModeRecord, "REPLAY": ModeReplay}
	for in, want := range cases {
		got, err := ParseMode(in)
		require.NoError(t, err, "ParseMode(%q)", in)
		assert.Equal(t, want, got, "ParseMode(%q)", in)
	}
	_, err := ParseMode("sometimes")
	assert.Error(t, err)
}

func TestStore_ReadWriteSnapshot(t *testing.T) {
	s := New(t.TempDir(), ModeRecord)
	require.NoError(t, s.Write("golomax", "Yerba  Mate", []byte("<html/>")))

	// 大小写/空白不同的 term 命中同一份快照。
	b, ok, err := s.Read("GOLOMAX", " yerba mate ")
	require.NoError(t, err)
	require.True(t, ok, "期望命中快照")
	assert.Equal(t, "<html/>", string(b))

	path, err := s.SnapshotPath("golomax", "yerba mate")
	require.NoError(t, err)
	assert.Regexp(t, `^yerba-mate-[0-9a-f]{8}\.html$`, filepath.Base(path), "快照文件名应带可读前缀")
	assert.FileExists(t, path)
}

func TestStore_RejectsBadNames(t *testing.T) {
	s := New(t.TempDir(), ModeRecord)
	_, err := s.SnapshotPath("../etc", "x")
	assert.Error(t, err, "非法 provider 应报错")
	_, err = s.SnapshotPath("golomax", "   ")
	assert.Error(t, err, "空 term 应报错")
	// 非 ASCII term 仍可生成 key（仅哈希部分）。
	_, err = s.SnapshotPath("golomax", "ñ")
	assert.NoError(t, err)
}

func TestFetcher_RecordThenReplay(t *testing.T) {
	root := t.TempDir()
	p := fakeProvider{name: "golomax"}

	calls := 0
	direct := func(ctx context.Context, _ provider.Provider, term string) ([]byte, string, error) {
		calls++
		return []byte("<html>" + term + "</html>"), "https://example.test/?q=" + term, nil
	}

	rec := New(root, ModeRecord).Fetcher(direct)
	b, pageURL, err := rec(context.Background(), p, "alfajor")
	require.NoError(t, err)
	assert.Equal(t, "<html>alfajor</html>", string(b), "record 应透传 direct 的结果")
	assert.Equal(t, "https://example.test/?q=alfajor", pageURL)

	rep := New(root, ModeReplay).Fetcher(direct)
	b, pageURL, err = rep(context.Background(), p, "Alfajor")
	require.NoError(t, err)
	assert.Equal(t, "<html>alfajor</html>", string(b))
	assert.Contains(t, pageURL, "file://")
	assert.Equal(t, 1, calls, "replay 不应联网")

	_, _, err = rep(context.Background(), p, "galletitas")
	var miss *MissError
	require.ErrorAs(t, err, &miss)
	assert.Equal(t, "galletitas", miss.Term)
}

func TestFetcher_OffReturnsDirect(t *testing.T) {
	direct := func(context.Context, provider.Provider, string) ([]byte, string, error) {
		return []byte("x"), "u", nil
	}
	f := New(t.TempDir(), ModeOff).Fetcher(direct)
	b, _, err := f(context.Background(), fakeProvider{name: "golomax"}, "t")
	require.NoError(t, err)
	assert.Equal(t, "x", string(b), "off 模式应直接调用 direct")
}
