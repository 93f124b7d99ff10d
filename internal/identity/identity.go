// Package identity derives stable identities for job-board source URLs.
// It classifies a raw operator-entered URL into a provider family, extracts
// the provider-specific board slug, resolves the endpoint scrape workers
// should actually fetch, and computes a canonical key that is invariant
// under cosmetic differences in how the URL was typed.
//
// Every function in this package is total: malformed input degrades to a
// best-effort fallback value instead of returning an error.
package identity

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Provider identifies the applicant-tracking-system family a URL belongs to.
type Provider string

// Known provider families. Anything unrecognized is ProviderGeneric.
const (
	ProviderGreenhouse    Provider = "greenhouse"
	ProviderAshby         Provider = "ashby"
	ProviderGitHubCareers Provider = "github_careers"
	ProviderGeneric       Provider = "generic"
)

// DeclaredTypeGeneral is the default declared source type when the operator
// did not pick one.
const DeclaredTypeGeneral = "general"

// Identity is the full derived identity for a source URL.
type Identity struct {
	Provider     Provider `json:"provider"`
	Slug         string   `json:"slug,omitempty"`
	ScrapeURL    string   `json:"scrape_url"`
	CanonicalKey string   `json:"canonical_key"`
	DisplayName  string   `json:"display_name"`
}

// CanonicalIdentity is the normalization result used for source dedup.
type CanonicalIdentity struct {
	CanonicalKey  string `json:"canonical_key"`
	NormalizedURL string `json:"normalized_url"`
}

var versionMarker = regexp.MustCompile(`^v\d+$`)

// platformSubdomains are hostname labels that never name a company; they are
// stripped from the front of a hostname before guessing a display name.
var platformSubdomains = map[string]struct{}{
	"www":     {},
	"jobs":    {},
	"careers": {},
	"boards":  {},
	"app":     {},
	"apply":   {},
}

// hostedATSLabels are brand labels of hosted job-board platforms. A display
// name candidate matching one of these is platform noise, not an employer.
var hostedATSLabels = map[string]struct{}{
	"lever":           {},
	"greenhouse":      {},
	"ashbyhq":         {},
	"workable":        {},
	"bamboohr":        {},
	"icims":           {},
	"recruitee":       {},
	"smartrecruiters": {},
	"myworkdayjobs":   {},
}

// Resolve computes the complete identity for a raw URL in one pass. It is
// the single implementation shared by source registration and the admin
// resolve preview; the two call sites must never diverge again.
func Resolve(rawURL, declaredType string) Identity {
	provider := ResolveProvider(rawURL, declaredType)
	var slug string
	if provider == ProviderGreenhouse {
		slug = SlugFromGreenhouseURL(rawURL)
	}
	canon := Canonicalize(rawURL, declaredType)
	return Identity{
		Provider:     provider,
		Slug:         slug,
		ScrapeURL:    ResolveScrapeURL(rawURL, provider, slug),
		CanonicalKey: canon.CanonicalKey,
		DisplayName:  DeriveDisplayName(rawURL),
	}
}

// ResolveProvider classifies a raw URL into a provider family. The declared
// type wins for greenhouse; after that, hostname and URL-shape heuristics
// apply in a fixed precedence order.
func ResolveProvider(rawURL, declaredType string) Provider {
	if strings.EqualFold(strings.TrimSpace(declaredType), string(ProviderGreenhouse)) {
		return ProviderGreenhouse
	}
	u, ok := parseLenient(rawURL)
	if !ok {
		return ProviderGeneric
	}
	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, "greenhouse") {
		return ProviderGreenhouse
	}
	if u.Query().Has("board") {
		return ProviderGreenhouse
	}
	if hasBoardsSegment(u) {
		return ProviderGreenhouse
	}
	if strings.HasSuffix(host, "ashbyhq.com") {
		return ProviderAshby
	}
	if strings.HasSuffix(host, "github.careers") {
		return ProviderGitHubCareers
	}
	return ProviderGeneric
}

// SlugFromGreenhouseURL extracts the greenhouse board slug from a URL.
// The extraction ladder, in order: explicit board query parameter, the path
// segment following a literal "boards" segment, the first path segment
// (unless it is a bare API version marker like "v1"), and finally the
// third-from-last hostname label for board-style hostnames. Returns ""
// when nothing qualifies.
func SlugFromGreenhouseURL(rawURL string) string {
	u, ok := parseLenient(rawURL)
	if !ok {
		return ""
	}
	if board := u.Query().Get("board"); board != "" {
		return strings.ToLower(board)
	}
	segs := pathSegments(u)
	for i, seg := range segs {
		if seg == "boards" && i+1 < len(segs) {
			return strings.ToLower(segs[i+1])
		}
	}
	if len(segs) > 0 && !versionMarker.MatchString(segs[0]) {
		return strings.ToLower(segs[0])
	}
	labels := strings.Split(strings.ToLower(u.Hostname()), ".")
	if len(labels) >= 3 && labels[len(labels)-2] != "greenhouse" {
		return labels[len(labels)-3]
	}
	return ""
}

// GreenhouseBoardEndpoint is the jobs-listing endpoint scrape workers fetch
// for a greenhouse board. Historically two hostnames were in use for this
// endpoint; boards-api.greenhouse.io is the one the live integration accepts.
func GreenhouseBoardEndpoint(slug string) string {
	return fmt.Sprintf("https://boards-api.greenhouse.io/v1/boards/%s/jobs", slug)
}

// ResolveScrapeURL maps a raw URL to the literal address scrape workers
// should fetch for the given provider.
func ResolveScrapeURL(rawURL string, provider Provider, slug string) string {
	switch provider {
	case ProviderGreenhouse:
		if slug != "" {
			return GreenhouseBoardEndpoint(slug)
		}
	case ProviderAshby:
		if u, ok := parseLenient(rawURL); ok {
			if segs := pathSegments(u); len(segs) > 0 {
				return "https://api.ashbyhq.com/posting-api/job-board/" + segs[0]
			}
		}
	case ProviderGitHubCareers:
		if u, ok := parseLenient(rawURL); ok {
			rewritten := *u
			rewritten.Path = "/api/jobs"
			rewritten.RawPath = ""
			rewritten.Fragment = ""
			q := rewritten.Query()
			q.Del("page")
			rewritten.RawQuery = q.Encode()
			return rewritten.String()
		}
	}
	return genericScrapeURL(rawURL)
}

// genericScrapeURL strips the fragment and defaults the scheme to https,
// leaving everything else exactly as the operator typed it.
func genericScrapeURL(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	if s != "" && !strings.Contains(s, "://") {
		s = "https://" + s
	}
	return s
}

// Canonicalize computes the stable key that decides whether two raw URLs
// name the same source. Greenhouse boards short-circuit to the board
// endpoint; everything else gets a cosmetic normalization (lower-cased
// host, stripped fragment, collapsed trailing slashes, preserved query).
// Unparseable input degrades to the raw string lower-cased.
func Canonicalize(rawURL, declaredType string) CanonicalIdentity {
	if ResolveProvider(rawURL, declaredType) == ProviderGreenhouse {
		if slug := SlugFromGreenhouseURL(rawURL); slug != "" {
			endpoint := GreenhouseBoardEndpoint(slug)
			return CanonicalIdentity{
				CanonicalKey:  string(ProviderGreenhouse) + ":" + endpoint,
				NormalizedURL: endpoint,
			}
		}
	}

	keyType := strings.ToLower(strings.TrimSpace(declaredType))
	if keyType == "" {
		keyType = DeclaredTypeGeneral
	}

	u, ok := parseLenient(rawURL)
	if !ok {
		normalized := strings.ToLower(strings.TrimSpace(rawURL))
		return CanonicalIdentity{
			CanonicalKey:  keyType + ":" + normalized,
			NormalizedURL: normalized,
		}
	}

	// Re-encode the path from its decoded form so that percent-encoding
	// case differences cannot produce distinct keys.
	clean := url.URL{Path: u.Path}
	path := strings.TrimRight(clean.EscapedPath(), "/")
	if path == "" {
		path = "/"
	}
	search := ""
	if u.RawQuery != "" {
		search = "?" + u.RawQuery
	}
	normalized := u.Scheme + "://" + strings.ToLower(u.Host) + path + search
	return CanonicalIdentity{
		CanonicalKey:  keyType + ":" + normalized,
		NormalizedURL: normalized,
	}
}

// DeriveDisplayName guesses a human-readable name for a source URL. For
// greenhouse boards the slug is the name. Otherwise the hostname is used
// after stripping platform subdomains; hosted-ATS hostnames fall back to
// the first path segment, then to the registrable domain, then to "Site".
func DeriveDisplayName(rawURL string) string {
	if ResolveProvider(rawURL, "") == ProviderGreenhouse {
		if slug := SlugFromGreenhouseURL(rawURL); slug != "" {
			return slug
		}
	}

	u, ok := parseLenient(rawURL)
	if ok {
		host := strings.ToLower(u.Hostname())
		if host != "" {
			labels := strings.Split(host, ".")
			trimmed := labels
			for len(trimmed) > 1 {
				if _, noise := platformSubdomains[trimmed[0]]; !noise {
					break
				}
				trimmed = trimmed[1:]
			}
			candidate := trimmed[0]
			if len(trimmed) >= 2 {
				candidate = trimmed[len(trimmed)-2]
			}
			if candidate != "" && !isPlatformLabel(candidate) {
				return candidate
			}
			if segs := pathSegments(u); len(segs) > 0 {
				return segs[0]
			}
			if base := registrableDomain(labels); base != "" {
				return base
			}
		}
	}
	return "Site"
}

func isPlatformLabel(label string) bool {
	if _, ok := platformSubdomains[label]; ok {
		return true
	}
	_, ok := hostedATSLabels[label]
	return ok
}

// registrableDomain approximates the base registrable domain: two-character
// labels near the end suggest a country-code suffix, in which case the last
// three labels are kept instead of two.
func registrableDomain(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	keep := 2
	if len(labels) >= 3 && (len(labels[len(labels)-1]) == 2 || len(labels[len(labels)-2]) == 2) {
		keep = 3
	}
	if len(labels) < keep {
		keep = len(labels)
	}
	return strings.Join(labels[len(labels)-keep:], ".")
}

func hasBoardsSegment(u *url.URL) bool {
	segs := pathSegments(u)
	for i, seg := range segs {
		if seg == "boards" && i+1 < len(segs) {
			return true
		}
	}
	return false
}

// parseLenient parses a raw URL, retrying with an https scheme prepended
// when the input was typed without one. Returns ok=false only when no host
// can be recovered at all.
func parseLenient(rawURL string) (*url.URL, bool) {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return nil, false
	}
	u, err := url.Parse(s)
	if err == nil && u.Host != "" {
		return u, true
	}
	if !strings.Contains(s, "://") {
		u, err = url.Parse("https://" + s)
		if err == nil && u.Host != "" {
			return u, true
		}
	}
	return nil, false
}

func pathSegments(u *url.URL) []string {
	raw := strings.Trim(u.Path, "/")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, "/")
	segs := parts[:0]
	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}
	return segs
}
