// apcore is a server framework for implementing an ActivityPub application.
// Copyright (C) 2019 Cory Slep
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package urls implements the two identifier worlds this federation core
// speaks: ordinary HTTP(S) URIs and the portable ap://<did>/<path> scheme
// of FEP-ef61. Everything that crosses a package boundary as an object or
// actor identifier is a Url, never a bare string or *url.URL.
package urls

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// Kind distinguishes the two identifier worlds a Url can belong to.
type Kind int

const (
	HTTP Kind = iota
	AP
)

func (k Kind) String() string {
	if k == AP {
		return "ap"
	}
	return "http"
}

// HttpURL is a parsed, validated RFC-3986 http(s) URI. Construction is only
// possible through Parse, so a live HttpURL value is always well-formed.
type HttpURL struct {
	Scheme   string // "http" or "https"
	Host     string // ASCII host or IP literal, no port
	Port     string // empty, or decimal in [0, 65535]
	Path     string
	Query    string
	Fragment string
}

var ErrInvalidScheme = fmt.Errorf("url: scheme must be http or https")
var ErrEmptyAuthority = fmt.Errorf("url: authority must not be empty")
var ErrInvalidPort = fmt.Errorf("url: port out of range")
var ErrWhitespace = fmt.Errorf("url: whitespace not allowed")

// ParseHttpURL parses s as an RFC-3986 URI with scheme http or https. No IDN
// conversion is performed here; call Normalize for that.
func ParseHttpURL(s string) (*HttpURL, error) {
	if strings.ContainsAny(s, " \t\r\n") {
		return nil, ErrWhitespace
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, ErrInvalidScheme
	}
	if u.Host == "" {
		return nil, ErrEmptyAuthority
	}
	host := u.Hostname()
	port := u.Port()
	if port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n < 0 || n > 65535 {
			return nil, ErrInvalidPort
		}
	}
	return &HttpURL{
		Scheme:   u.Scheme,
		Host:     host,
		Port:     port,
		Path:     u.EscapedPath(),
		Query:    u.RawQuery,
		Fragment: u.EscapedFragment(),
	}, nil
}

// String renders the URL back to its canonical textual form. Parsing that
// string again yields an equal value (round-trip invariant).
func (h *HttpURL) String() string {
	var b strings.Builder
	b.WriteString(h.Scheme)
	b.WriteString("://")
	b.WriteString(h.Host)
	if h.Port != "" {
		b.WriteRune(':')
		b.WriteString(h.Port)
	}
	b.WriteString(h.Path)
	if h.Query != "" {
		b.WriteRune('?')
		b.WriteString(h.Query)
	}
	if h.Fragment != "" {
		b.WriteRune('#')
		b.WriteString(h.Fragment)
	}
	return b.String()
}

func (h *HttpURL) defaultPort() string {
	if h.Port != "" {
		return h.Port
	}
	if h.Scheme == "https" {
		return "443"
	}
	return "80"
}

// Origin returns the (scheme, host, port) tuple used for same-origin checks.
func (h *HttpURL) Origin() Origin {
	return Origin{Scheme: h.Scheme, Host: h.Host, Port: h.defaultPort()}
}

// NormalizeHttpURL converts an IDN host to its ASCII (punycode) form,
// percent-encodes whitespace and non-ASCII path bytes, and ensures a
// non-empty path (adding a trailing "/" when absent).
func NormalizeHttpURL(h *HttpURL) (*HttpURL, error) {
	c := *h
	if requiresIDNA(c.Host) {
		ascii, err := idna.ToASCII(c.Host)
		if err != nil {
			return nil, fmt.Errorf("url: idn conversion: %w", err)
		}
		c.Host = ascii
	}
	c.Path = escapeNonASCII(c.Path)
	if c.Path == "" {
		c.Path = "/"
	}
	return &c, nil
}

func requiresIDNA(host string) bool {
	if net.ParseIP(host) != nil {
		return false
	}
	for _, r := range host {
		if r > 127 {
			return true
		}
	}
	return false
}

func escapeNonASCII(path string) string {
	var b strings.Builder
	for _, r := range path {
		if r == ' ' || r == '\t' || r > 127 {
			b.WriteString(url.PathEscape(string(r)))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DidKind distinguishes the two supported DID methods.
type DidKind int

const (
	DidKey DidKind = iota
	DidPkh
)

// Did is a decentralized identifier: either did:key (an Ed25519 public key,
// multibase-encoded) or did:pkh (a CAIP-10 chain + address pair).
type Did struct {
	Kind DidKind
	// Key holds the multibase-encoded key material for DidKey.
	Key string
	// Chain and Address hold the CAIP-2/CAIP-10 parts for DidPkh, e.g.
	// Chain = "eip155:1", Address = "0xabc...".
	Chain   string
	Address string
}

var ErrUnsupportedDidMethod = fmt.Errorf("did: unsupported method")
var ErrMalformedDid = fmt.Errorf("did: malformed")

// ParseDid parses "did:key:<multibase>" or "did:pkh:<chain>:<address>".
// Only Ed25519 did:key identifiers are accepted (enforced by callers via
// keys.DecodeDidKey, since validating the multicodec prefix requires
// decoding the multibase payload).
func ParseDid(s string) (Did, error) {
	if !strings.HasPrefix(s, "did:") {
		return Did{}, ErrMalformedDid
	}
	parts := strings.SplitN(s[len("did:"):], ":", 2)
	if len(parts) != 2 {
		return Did{}, ErrMalformedDid
	}
	switch parts[0] {
	case "key":
		if parts[1] == "" {
			return Did{}, ErrMalformedDid
		}
		return Did{Kind: DidKey, Key: parts[1]}, nil
	case "pkh":
		rest := strings.SplitN(parts[1], ":", 3)
		if len(rest) != 3 {
			return Did{}, ErrMalformedDid
		}
		return Did{
			Kind:    DidPkh,
			Chain:   rest[0] + ":" + rest[1],
			Address: rest[2],
		}, nil
	default:
		return Did{}, ErrUnsupportedDidMethod
	}
}

func (d Did) String() string {
	switch d.Kind {
	case DidKey:
		return "did:key:" + d.Key
	case DidPkh:
		return "did:pkh:" + d.Chain + ":" + d.Address
	default:
		return ""
	}
}

func (d Did) Equal(o Did) bool {
	return d.String() == o.String()
}

// apURLPattern matches ap://<did>/<path>, requiring the path to start with
// "/", not be exactly "/", and not contain "//". The did group is greedy up
// to the first unescaped "/".
var apURLPattern = regexp.MustCompile(`^ap://(did(?:%3A|:)[a-z]+(?:%3A|:)[A-Za-z0-9._:%-]+)(/.+)$`)

// ApURL is a parsed, validated portable object identifier.
type ApURL struct {
	Authority Did
	Path      string
}

var ErrBadApURL = fmt.Errorf("ap url: does not match ap://<did>/<path>")
var ErrApRootPath = fmt.Errorf("ap url: path must not be exactly \"/\"")
var ErrApDoubleSlash = fmt.Errorf("ap url: path must not contain \"//\"")

// ParseApURL parses s as ap://<did>/<path>.
func ParseApURL(s string) (*ApURL, error) {
	m := apURLPattern.FindStringSubmatch(s)
	if m == nil {
		return nil, ErrBadApURL
	}
	didStr, err := url.PathUnescape(m[1])
	if err != nil {
		return nil, fmt.Errorf("ap url: %w", err)
	}
	path := m[2]
	if path == "/" {
		return nil, ErrApRootPath
	}
	if strings.Contains(path, "//") {
		return nil, ErrApDoubleSlash
	}
	did, err := ParseDid(didStr)
	if err != nil {
		return nil, err
	}
	return &ApURL{Authority: did, Path: path}, nil
}

func (a *ApURL) String() string {
	return "ap://" + a.Authority.String() + a.Path
}

// Origin for an ap:// URL uses port 0, per spec §4.1.
func (a *ApURL) Origin() Origin {
	return Origin{Scheme: "ap", Host: a.Authority.String(), Port: "0"}
}

// Origin is the comparison tuple used by same-origin / same-authority
// checks. AP origins carry Port "0".
type Origin struct {
	Scheme string
	Host   string
	Port   string
}

func (o Origin) Equal(p Origin) bool {
	return o.Scheme == p.Scheme && o.Host == p.Host && o.Port == p.Port
}

// Url is the tagged union Url = Http(HttpURL) | Ap(ApURL) used everywhere an
// identifier appears internally.
type Url struct {
	Kind Kind
	Http *HttpURL
	Ap   *ApURL
}

func FromHttp(h *HttpURL) Url { return Url{Kind: HTTP, Http: h} }
func FromAp(a *ApURL) Url     { return Url{Kind: AP, Ap: a} }

func (u Url) String() string {
	if u.Kind == AP {
		return u.Ap.String()
	}
	return u.Http.String()
}

func (u Url) Origin() Origin {
	if u.Kind == AP {
		return u.Ap.Origin()
	}
	return u.Http.Origin()
}

// SameOrigin compares (scheme, host, port) for two HTTP urls (default ports
// applied) or two DIDs byte-for-byte for AP urls. Cross-kind is always
// false.
func SameOrigin(a, b Url) bool {
	if a.Kind != b.Kind {
		return false
	}
	return a.Origin().Equal(b.Origin())
}

// SameAuthority is an alias for SameOrigin kept for readability at AP call
// sites, where "authority" (the DID) is the more natural term than
// "origin".
func SameAuthority(a, b Url) bool {
	return SameOrigin(a, b)
}

const gatewayPathMarker = "/.well-known/apgateway/"

// Gateway is the HTTPS front (origin only, e.g. "https://social.example")
// that a gateway-form URL was served from.
type Gateway struct {
	Origin string
}

// CanonicalUrl pairs a canonical Url with an optional Gateway hint recorded
// when the value arrived as a gateway-rewritten HTTP form.
type CanonicalUrl struct {
	Url     Url
	Gateway *Gateway
}

// String returns the canonical textual form: the ap:// form when available,
// otherwise the HTTP form.
func (c CanonicalUrl) String() string {
	return c.Url.String()
}

// CanonicalizeID parses s, recognizing the gateway rewrite rule: an HTTPS
// URL of the form https://H/.well-known/apgateway/<did-url> canonicalizes
// to ap://<did-url>, remembering H as the gateway origin.
func CanonicalizeID(s string) (CanonicalUrl, error) {
	if idx := strings.Index(s, gatewayPathMarker); idx >= 0 && strings.HasPrefix(s, "http") {
		h, err := ParseHttpURL(s[:idx] + "/placeholder")
		if err != nil {
			return CanonicalUrl{}, fmt.Errorf("url: bad gateway origin: %w", err)
		}
		didURL := s[idx+len(gatewayPathMarker):]
		ap, err := ParseApURL("ap://" + didURL)
		if err != nil {
			return CanonicalUrl{}, err
		}
		origin := h.Scheme + "://" + h.Host
		if h.Port != "" {
			origin += ":" + h.Port
		}
		return CanonicalUrl{Url: FromAp(ap), Gateway: &Gateway{Origin: origin}}, nil
	}
	if ap, err := ParseApURL(s); err == nil {
		return CanonicalUrl{Url: FromAp(ap)}, nil
	}
	h, err := ParseHttpURL(s)
	if err != nil {
		return CanonicalUrl{}, err
	}
	return CanonicalUrl{Url: FromHttp(h)}, nil
}

// GatewayForm renders u as an HTTPS gateway URL fronted by the given
// gateway origin (e.g. "https://social.example"). It is the left inverse of
// CanonicalizeID: CanonicalizeID(GatewayForm(u, g)) == u for every valid g.
func GatewayForm(a *ApURL, gatewayOrigin string) string {
	return strings.TrimSuffix(gatewayOrigin, "/") + gatewayPathMarker + a.Authority.String() + a.Path
}

// WebfingerAddress is a parsed @username@hostname (or user@hostname) handle.
type WebfingerAddress struct {
	Username string
	Hostname string
}

var unreservedPlusPercent = regexp.MustCompile(`^[A-Za-z0-9._~%-]+$`)

var ErrBadWebfingerAddress = fmt.Errorf("webfinger: malformed address")

// ParseWebfingerAddress parses "@user@host" or "user@host".
func ParseWebfingerAddress(s string) (WebfingerAddress, error) {
	s = strings.TrimPrefix(s, "@")
	parts := strings.SplitN(s, "@", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return WebfingerAddress{}, ErrBadWebfingerAddress
	}
	if !unreservedPlusPercent.MatchString(parts[0]) {
		return WebfingerAddress{}, ErrBadWebfingerAddress
	}
	host := parts[1]
	if net.ParseIP(host) == nil {
		ascii, err := idna.ToASCII(host)
		if err != nil {
			return WebfingerAddress{}, fmt.Errorf("webfinger: %w", err)
		}
		host = ascii
	}
	return WebfingerAddress{Username: parts[0], Hostname: host}, nil
}

// Handle renders the address back as "@user@host".
func (w WebfingerAddress) Handle() string {
	return "@" + w.Username + "@" + w.Hostname
}

// Endpoint returns the WebFinger discovery endpoint for this address's host.
func (w WebfingerAddress) Endpoint() string {
	return "https://" + w.Hostname + "/.well-known/webfinger"
}

// Resource returns the "acct:user@host" resource identifier used as the
// WebFinger "resource" query parameter.
func (w WebfingerAddress) Resource() string {
	return "acct:" + w.Username + "@" + w.Hostname
}
