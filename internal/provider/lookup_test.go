package provider

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/ordersheet/internal/domain"
)

type stubProvider struct {
	name string

	fetchErr error
	parseErr error

	html  []byte
	url   string
	cands []domain.Candidate

	fetchCalls int
	parseCalls int
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Fetch(ctx context.Context, term string, c *http.Client) ([]byte, string, error) {
	p.fetchCalls++
	if p.fetchErr != nil {
		return nil, "", p.fetchErr
	}
	return p.html, p.url, nil
}

func (p *stubProvider) Parse(term string, html []byte, pageURL string) ([]domain.Candidate, error) {
	p.parseCalls++
	if p.parseErr != nil {
		return nil, p.parseErr
	}
	return p.cands, nil
}

func oneCandidate(name string) []domain.Candidate {
	return []domain.Candidate{{DisplayName: name, UnitPriceValue: decimal.NewFromInt(1), MinOrderQuantity: 1}}
}

func TestLookup_FallbackOnFetchFail(t *testing.T) {
	primary := &stubProvider{name: "golomax", fetchErr: errors.New("nope")}
	backup := &stubProvider{name: "mirror", html: []byte("<html/>"), url: "https://example.test/s?q=x", cands: oneCandidate("Arroz")}

	reg, err := NewRegistry(primary, backup)
	require.NoError(t, err)

	res, attempts, err := LookupTrace(context.Background(), reg, "golomax", "arroz", Direct(nil))
	require.NoError(t, err)
	assert.Equal(t, "mirror", res.Provider)
	assert.Equal(t, backup.url, res.PageURL)
	require.Len(t, attempts, 2)
	assert.Equal(t, "fetch", attempts[0].Stage)
	assert.Equal(t, "ok", attempts[1].Stage)
}

func TestLookup_EmptyResultFallsBackAsNotFound(t *testing.T) {
	primary := &stubProvider{name: "golomax", html: []byte("<html/>"), url: "u1"}
	backup := &stubProvider{name: "mirror", html: []byte("<html/>"), url: "u2", cands: oneCandidate("Sal")}

	reg, err := NewRegistry(primary, backup)
	require.NoError(t, err)
	res, attempts, err := LookupTrace(context.Background(), reg, "golomax", "sal", Direct(nil))
	require.NoError(t, err)
	assert.Equal(t, "u2", res.PageURL)
	assert.Equal(t, "parse", attempts[0].Stage)
	assert.True(t, domain.IsNotFound(attempts[0].Err), "attempt[0] 应为 parse/not_found：%+v", attempts[0])
}

func TestLookup_AllFailIsLookupError(t *testing.T) {
	primary := &stubProvider{name: "golomax", html: []byte("<html/>"), parseErr: errors.New("layout changed")}

	reg, err := NewRegistry(primary)
	require.NoError(t, err)
	_, err = Lookup(context.Background(), reg, "golomax", "sal", Direct(nil))

	var le *domain.LookupError
	assert.ErrorAs(t, err, &le)
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "parse", pe.Stage)
}

func TestLookup_UnknownProvider(t *testing.T) {
	reg, err := NewRegistry(&stubProvider{name: "golomax"})
	require.NoError(t, err)

	_, err = Lookup(context.Background(), reg, "nope", "sal", Direct(nil))
	assert.Error(t, err)
}

func TestLookup_EmptyTerm(t *testing.T) {
	reg, err := NewRegistry(&stubProvider{name: "golomax"})
	require.NoError(t, err)

	_, err = Lookup(context.Background(), reg, "golomax", "   ", Direct(nil))
	assert.True(t, domain.IsInvalidInput(err), "期望 InvalidInputError，实际：%v", err)
}

func TestLookup_CanceledContextStopsChain(t *testing.T) {
	p := &stubProvider{name: "golomax", cands: oneCandidate("x")}
	reg, err := NewRegistry(p)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Lookup(ctx, reg, "golomax", "x", Direct(nil))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, p.fetchCalls, "取消后不应再抓取")
}

func TestRegistry_OrderAndDuplicates(t *testing.T) {
	reg, err := NewRegistry(&stubProvider{name: "b"}, &stubProvider{name: "A"}, &stubProvider{name: "c"})
	require.NoError(t, err)
	order, err := reg.Order("c")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, order)

	_, err = NewRegistry(&stubProvider{name: "x"}, &stubProvider{name: "X"})
	assert.Error(t, err, "重复 provider 应报错")
}
