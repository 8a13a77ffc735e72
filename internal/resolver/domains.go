package resolver

import "strings"

// manufacturerDomains maps known brand names (lower-cased) to the domain most
// likely to host their documentation. Used to bias both the AI-assisted
// prompt and the site-restricted search query.
var manufacturerDomains = map[string]string{
	"crestron":          "crestron.com",
	"savant":            "savant.com",
	"control4":          "control4.com",
	"lutron":            "lutron.com",
	"sonance":           "sonance.com",
	"samsung":           "samsung.com",
	"lg":                "lg.com",
	"sony":              "sony.com",
	"ubiquiti":          "ui.com",
	"unifi":             "ui.com",
	"wattbox":           "snapone.com",
	"snap one":          "snapone.com",
	"episode":           "snapone.com",
	"binary":            "snapone.com",
	"apple":             "support.apple.com",
	"sonos":             "sonos.com",
	"denon":             "denon.com",
	"marantz":           "marantz.com",
	"yamaha":            "yamaha.com",
	"epson":             "epson.com",
	"origin acoustics":  "originacoustics.com",
	"atlona":            "atlona.com",
	"qsc":               "qsc.com",
	"shure":             "shure.com",
	"middle atlantic":   "middleatlantic.com",
	"araknis":           "araknisnetworks.com",
	"parasound":         "parasound.com",
	"innovolt":          "innovolt.com",
	"surgex":            "surgex.com",
	"bose":              "bose.com",
	"klipsch":           "klipsch.com",
	"jbl":               "jbl.com",
	"harman":            "harmanpro.com",
	"russound":          "russound.com",
	"autonomic":         "autonomic.com",
	"seura":             "seura.com",
	"leon":              "leonspeakers.com",
	"triad":             "triadspeakers.com",
	"james loudspeaker": "jamesloudspeaker.com",
	"just add power":    "justaddpower.com",
	"access networks":   "accessnetworks.com",
	"pakedge":           "pakedge.com",
	"ruckus":            "ruckuswireless.com",
}

// manufacturerDomain returns the documentation domain for a brand, or "" when
// the brand is unknown.
func manufacturerDomain(brand string) string {
	return manufacturerDomains[strings.ToLower(strings.TrimSpace(brand))]
}

// documentationKeywords mark URLs and link texts that likely point at product
// documentation.
var documentationKeywords = []string{
	"manual", "guide", "instruction", "documentation", "user-guide",
}

// containsDocumentationKeyword reports whether s mentions any documentation
// keyword. s is matched case-insensitively.
func containsDocumentationKeyword(s string) bool {
	lower := strings.ToLower(s)
	for _, kw := range documentationKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// isPDFLink reports whether the URL path ends in the document extension.
func isPDFLink(rawURL string) bool {
	trimmed := rawURL
	if idx := strings.IndexAny(trimmed, "?#"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.HasSuffix(strings.ToLower(trimmed), ".pdf")
}
