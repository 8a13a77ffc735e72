package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ati-tools/manualfinder/internal/manual"
)

type fakeExtractor struct {
	phraseFor func(pageText string) string
	calls     int
}

func (f *fakeExtractor) ExtractWarranty(_ context.Context, pageText string, _ manual.ProductIdentity) (string, error) {
	f.calls++
	return f.phraseFor(pageText), nil
}

func TestWarrantyFinder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/press", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><p>New product launched.</p></body></html>"))
	})
	mux.HandleFunc("/warranty", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><p>Covered by a 3 year limited warranty.</p></body></html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	identity := manual.NewIdentity("Acme", "X100", "")
	engine := &fakeEngine{results: map[string][]string{
		warrantyQueries(identity)[0]: {
			srv.URL + "/terms.pdf", // skipped, documents are not scanned for warranty text
			srv.URL + "/press",
			srv.URL + "/warranty",
		},
	}}
	extractor := &fakeExtractor{phraseFor: func(text string) string {
		if strings.Contains(text, "3 year") {
			return "3 year limited warranty"
		}
		return ""
	}}
	f := NewWarrantyFinder(engine, testFetcher(), extractor, 5, 8000, zap.NewNop())

	phrase, err := f.Find(context.Background(), identity)
	require.NoError(t, err)
	require.Equal(t, "3 year limited warranty", phrase)
	require.Equal(t, 2, extractor.calls)
	// the first phrase stops the search, the brand-level query never runs
	require.Len(t, engine.queries, 1)
}

func TestWarrantyFinder_NothingFound(t *testing.T) {
	identity := manual.NewIdentity("Acme", "X100", "")
	engine := &fakeEngine{results: map[string][]string{}}
	extractor := &fakeExtractor{phraseFor: func(string) string { return "" }}
	f := NewWarrantyFinder(engine, testFetcher(), extractor, 5, 8000, zap.NewNop())

	phrase, err := f.Find(context.Background(), identity)
	require.NoError(t, err)
	require.Empty(t, phrase)
	require.Len(t, engine.queries, 2)
}
