package domains

import (
	"net"
	"regexp"
	"strings"

	mdns "github.com/miekg/dns"
)

// Text normalization for the three list shapes we consume: remote blocklists
// (hosts-file or plain-domain format), the local source-list file (one URL per
// line) and the local allow/denied files (one domain per line).

var (
	reComment  = regexp.MustCompile(`#[^\n]*`)
	reTabs     = regexp.MustCompile(`\t+`)
	reIndent   = regexp.MustCompile(`(?m)^[ \t]+`)
	reNewlines = regexp.MustCompile(`\n+`)
	reHostsIP  = regexp.MustCompile(`(?m)^[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}[ \t]+`)
	reSpaces   = regexp.MustCompile(` +`)
)

// Clean strips comments, carriage returns and whitespace noise from raw list
// text, leaving one record per line with no blank lines. Idempotent:
// Clean(Clean(x)) == Clean(x).
//
// Carriage returns go first; stripping them last would let CRLF blank lines
// survive a single pass and break idempotency.
func Clean(raw string) string {
	s := strings.ReplaceAll(raw, "\r", "")
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	s = reComment.ReplaceAllString(s, "")
	// tab-separated columns become separate records
	s = reTabs.ReplaceAllString(s, "\n")
	s = reIndent.ReplaceAllString(s, "")
	s = reNewlines.ReplaceAllString(s, "\n")
	s = strings.TrimPrefix(s, "\n")
	s = strings.TrimSuffix(s, "\n")
	return s
}

// CleanHosts applies Clean plus the hosts-file pass: a leading dotted-quad
// IPv4 address and the whitespace after it are dropped from each line, and
// runs of spaces become line breaks, so "0.0.0.0 ads.example.com" ends up as
// just "ads.example.com".
func CleanHosts(raw string) string {
	s := Clean(raw)
	s = reHostsIP.ReplaceAllString(s, "")
	s = reSpaces.ReplaceAllString(s, "\n")
	s = reNewlines.ReplaceAllString(s, "\n")
	s = strings.TrimPrefix(s, "\n")
	s = strings.TrimSuffix(s, "\n")
	return s
}

// Lines cleans raw text and splits it into records, preserving order. Used for
// the source-list file, where entries are URLs and order matters.
func Lines(raw string) []string {
	s := Clean(raw)
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// ParseList parses plain one-domain-per-line text into a Set. Empty input
// yields an empty set.
func ParseList(raw string) Set {
	return tokensToSet(Lines(raw))
}

// ParseHosts parses blocklist text in either hosts-file or plain-domain
// format into a Set. Empty input yields an empty set.
func ParseHosts(raw string) Set {
	s := CleanHosts(raw)
	if s == "" {
		return Set{}
	}
	return tokensToSet(strings.Split(s, "\n"))
}

func tokensToSet(tokens []string) Set {
	out := Set{}
	for _, tok := range tokens {
		if d, ok := Normalize(tok); ok {
			out[d] = struct{}{}
		}
	}
	return out
}

// Normalize canonicalizes a single domain token for set matching: lowercase,
// surrounding whitespace trimmed, nothing else. Trailing dots are kept as-is
// so entries compare exactly against what the gateway reports. Hosts-file
// localhost entries and tokens that are not plausible domain names are
// rejected.
func Normalize(tok string) (string, bool) {
	d := strings.ToLower(strings.TrimSpace(tok))
	if d == "" || d == "localhost" || d == "localhost.localdomain" {
		return "", false
	}
	if _, ok := mdns.IsDomainName(d); !ok {
		return "", false
	}
	// bare addresses left over from tab-separated hosts lines
	if net.ParseIP(d) != nil {
		return "", false
	}
	return d, true
}
