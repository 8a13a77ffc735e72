package resolver

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// pdfMagic is the signature every PDF begins with.
var pdfMagic = []byte("%PDF-")

// ValidPDF reports whether a fetched payload is a usable PDF document. The
// declared content type is checked first, then the magic signature. Either
// suffices: servers frequently mislabel content type on redirects and
// proxies, so magic bytes rescue mislabeled PDFs, while the content-type
// check keeps payloads we cannot sniff from being rejected outright.
func ValidPDF(body []byte, contentType string) bool {
	if strings.Contains(strings.ToLower(contentType), "pdf") {
		return true
	}
	return bytes.HasPrefix(body, pdfMagic)
}

// InspectPDF parses the payload with pdfcpu and returns its page count. It is
// a diagnostic helper for logging and archive bookkeeping; it never overrides
// a ValidPDF acceptance.
func InspectPDF(body []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadContext(bytes.NewReader(body), conf)
	if err != nil {
		return 0, fmt.Errorf("read pdf context: %w", err)
	}
	return pdfCtx.PageCount, nil
}
