package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ati-tools/manualfinder/internal/manual"
)

type stubResolver struct {
	name   string
	res    manual.Resolution
	err    error
	called bool
}

func (s *stubResolver) Name() string { return s.name }

func (s *stubResolver) Resolve(_ context.Context, _ manual.ProductIdentity) (manual.Resolution, error) {
	s.called = true
	return s.res, s.err
}

func TestOrchestrator_FirstFoundWins(t *testing.T) {
	first := &stubResolver{name: "ai_search", res: manual.Found("https://a.example.com/m.pdf", []byte("%PDF-1.4 a"))}
	second := &stubResolver{name: "web_search", res: manual.Found("https://b.example.com/m.pdf", []byte("%PDF-1.4 b"))}
	o := NewOrchestrator([]manual.Resolver{first, second}, nil, zap.NewNop())

	result, err := o.Resolve(context.Background(), manual.NewIdentity("Acme", "X100", ""))
	require.NoError(t, err)
	require.True(t, result.Found())
	require.Equal(t, "https://a.example.com/m.pdf", result.Document.URL)
	require.False(t, second.called)
}

func TestOrchestrator_FallsThroughOnError(t *testing.T) {
	first := &stubResolver{name: "ai_search", err: errors.New("quota exceeded")}
	second := &stubResolver{name: "web_search", res: manual.Found("https://b.example.com/m.pdf", []byte("%PDF-1.4 b"))}
	o := NewOrchestrator([]manual.Resolver{first, second}, nil, zap.NewNop())

	result, err := o.Resolve(context.Background(), manual.NewIdentity("Acme", "X100", ""))
	require.NoError(t, err)
	require.True(t, result.Found())
	require.Equal(t, "https://b.example.com/m.pdf", result.Document.URL)
}

func TestOrchestrator_URLOnlyCarriesAcrossSources(t *testing.T) {
	first := &stubResolver{name: "ai_search", res: manual.URLOnly("https://vendor.example.com/docs")}
	second := &stubResolver{name: "web_search", res: manual.NotFound()}
	o := NewOrchestrator([]manual.Resolver{first, second}, nil, zap.NewNop())

	result, err := o.Resolve(context.Background(), manual.NewIdentity("Acme", "X100", ""))
	require.NoError(t, err)
	require.False(t, result.Found())
	require.Equal(t, manual.ResolutionURLOnly, result.Document.Kind)
	require.Equal(t, "https://vendor.example.com/docs", result.Document.URL)
	// later sources still get a chance to produce bytes
	require.True(t, second.called)
}

func TestOrchestrator_LaterBytesBeatEarlierURL(t *testing.T) {
	first := &stubResolver{name: "ai_search", res: manual.URLOnly("https://vendor.example.com/docs")}
	second := &stubResolver{name: "web_search", res: manual.Found("https://b.example.com/m.pdf", []byte("%PDF-1.4 b"))}
	o := NewOrchestrator([]manual.Resolver{first, second}, nil, zap.NewNop())

	result, err := o.Resolve(context.Background(), manual.NewIdentity("Acme", "X100", ""))
	require.NoError(t, err)
	require.True(t, result.Found())
	require.Equal(t, "https://b.example.com/m.pdf", result.Document.URL)
}

func TestOrchestrator_AllNotFound(t *testing.T) {
	first := &stubResolver{name: "ai_search", res: manual.NotFound()}
	second := &stubResolver{name: "web_search", res: manual.NotFound()}
	o := NewOrchestrator([]manual.Resolver{first, second}, nil, zap.NewNop())

	result, err := o.Resolve(context.Background(), manual.NewIdentity("Acme", "X100", ""))
	require.NoError(t, err)
	require.False(t, result.Found())
	require.Equal(t, manual.ResolutionNotFound, result.Document.Kind)
}

func TestOrchestrator_RunsWarranty(t *testing.T) {
	found := &stubResolver{name: "ai_search", res: manual.Found("https://a.example.com/m.pdf", []byte("%PDF-1.4 a"))}
	identity := manual.NewIdentity("Acme", "X100", "")

	engine := &fakeEngine{results: map[string][]string{}}
	extractor := &fakeExtractor{phraseFor: func(string) string { return "" }}
	warranty := NewWarrantyFinder(engine, testFetcher(), extractor, 5, 8000, zap.NewNop())

	o := NewOrchestrator([]manual.Resolver{found}, warranty, zap.NewNop())
	result, err := o.Resolve(context.Background(), identity)
	require.NoError(t, err)
	require.True(t, result.Found())
	// warranty lookup ran even though the document was already resolved
	require.NotEmpty(t, engine.queries)
}
