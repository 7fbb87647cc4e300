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

// Package fetcher dereferences remote objects, media files, and plain
// JSON documents: it guards against SSRF, bounds response size and
// redirect count, gates on content type, and re-signs a GET after every
// redirect hop rather than trusting a signature across an origin
// change. FetchFile and FetchJSON are unsigned and follow redirects
// automatically, matching spec §4.3's public contract.
package fetcher

import (
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/relaysocial/apcore/jsonsig"
	"github.com/relaysocial/apcore/sig"
	"github.com/relaysocial/apcore/urls"
)

// Error is the fetcher's own taxonomy, one member per spec §4.3 failure
// kind. Url carries the offending address where one is meaningful.
type Error struct {
	Kind string
	Url  string
	Err  error
}

func (e *Error) Error() string {
	if e.Url != "" {
		return fmt.Sprintf("fetcher: %s: %s: %v", e.Kind, e.Url, e.Err)
	}
	return fmt.Sprintf("fetcher: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind, u string, err error) *Error { return &Error{Kind: kind, Url: u, Err: err} }

const (
	KindUrlError              = "UrlError"
	KindUnsafeUrl             = "UnsafeUrl"
	KindRequest               = "Request"
	KindForbidden             = "Forbidden"
	KindNotFound              = "NotFound"
	KindRedirectionError      = "RedirectionError"
	KindResponseTooLarge      = "ResponseTooLarge"
	KindJsonParse             = "JsonParse"
	KindUnexpectedContentType = "UnexpectedContentType"
	KindNoObjectId            = "NoObjectId"
	KindUnexpectedObjectId    = "UnexpectedObjectId"
	KindInvalidProof          = "InvalidProof"
	KindRecursionError        = "RecursionError"
	KindNoGateway             = "NoGateway"
)

const (
	activityStreamsContentType = "application/ld+json; profile=\"https://www.w3.org/ns/activitystreams\""
	activityJSONContentType    = "application/activity+json"

	// MaxResponseBytes bounds every object and JSON response body this
	// package reads; FetchFile is bounded by its sizeLimit argument instead.
	MaxResponseBytes = 10 << 20 // 10 MiB

	// MaxRedirects bounds the hops FetchObject will follow, re-signing
	// the GET at each hop; FetchFile and FetchJSON follow redirects
	// unsigned, under the same cap.
	MaxRedirects = 5

	// MaxRecursionDepth is an outer bound for inReplyTo/replies/context
	// thread walks. fetcher does not walk threads itself, and importer
	// bounds its walks with its own Options (DefaultMaxReplyDepth).
	MaxRecursionDepth = 100
)

// Signer produces the per-request GET signature; KeyID names the actor
// key used, matching sig.SignRequest's expectations.
type Signer struct {
	Priv  crypto.Signer
	KeyID string
}

// Fetcher dereferences remote ActivityPub objects and media files over
// an *http.Client configured to never auto-follow redirects, so every
// hop can be inspected and re-signed explicitly.
type Fetcher struct {
	Client    *http.Client
	UserAgent string
	// IsBlockedHost reports whether host is administratively blocked
	// (the federation filter's RejectIncoming/Reject actions); nil
	// means nothing is blocked at this layer.
	IsBlockedHost func(host string) bool
	// AllowPrivateNetworks disables the loopback/link-local/private-range
	// SSRF guard. Production leaves this false; it exists for tests and
	// for single-host development deployments that federate with a
	// container on the same private network.
	AllowPrivateNetworks bool
}

// New builds a Fetcher whose client never follows redirects automatically.
func New(userAgent string, isBlockedHost func(host string) bool) *Fetcher {
	return &Fetcher{
		Client: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		UserAgent:     userAgent,
		IsBlockedHost: isBlockedHost,
	}
}

// guardURL rejects loopback, link-local, and private-range addresses
// (SSRF) and administratively blocked hosts, resolving the hostname to
// catch DNS rebinding to an internal address.
func (f *Fetcher) guardURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, newErr(KindUrlError, raw, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, newErr(KindUrlError, raw, fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
	host := u.Hostname()
	if f.IsBlockedHost != nil && f.IsBlockedHost(host) {
		return nil, newErr(KindForbidden, raw, fmt.Errorf("host is administratively blocked"))
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		if ip := net.ParseIP(host); ip != nil {
			ips = []net.IP{ip}
		} else {
			return nil, newErr(KindUrlError, raw, err)
		}
	}
	if !f.AllowPrivateNetworks {
		for _, ip := range ips {
			if isUnsafeIP(ip) {
				return nil, newErr(KindUnsafeUrl, raw, fmt.Errorf("resolves to a disallowed address: %s", ip))
			}
		}
	}
	return u, nil
}

func isUnsafeIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	private4 := []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "100.64.0.0/10"}
	private6 := []string{"fc00::/7"}
	ranges := private4
	if ip.To4() == nil {
		ranges = private6
	}
	for _, cidr := range ranges {
		_, n, err := net.ParseCIDR(cidr)
		if err == nil && n.Contains(ip) {
			return true
		}
	}
	return false
}

// FetchObject dereferences target as an ActivityPub object: signed GET
// with the AS2 Accept header, content-type gated, size-bounded, decoded
// as JSON, and checked to self-report an "id" matching target's
// canonical form. Redirects are followed up to MaxRedirects, each
// re-signed rather than reusing the first hop's signature.
func (f *Fetcher) FetchObject(ctx context.Context, target string, signer *Signer) (map[string]interface{}, error) {
	body, _, err := f.fetchBytes(ctx, target, signer, activityStreamsContentType, isJSONContentType)
	if err != nil {
		return nil, err
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, newErr(KindJsonParse, target, err)
	}
	id, ok := obj["id"].(string)
	if !ok || id == "" {
		return nil, newErr(KindNoObjectId, target, fmt.Errorf("object has no string \"id\""))
	}
	canonTarget, err := urls.CanonicalizeID(target)
	if err == nil {
		canonID, err2 := urls.CanonicalizeID(id)
		if err2 == nil && canonID.String() != canonTarget.String() {
			return nil, newErr(KindUnexpectedObjectId, target, fmt.Errorf("fetched id %q does not match requested %q", id, target))
		}
	}
	return obj, nil
}

// VerifyEmbeddedProof extracts a fetched object's JSON integrity proof
// (if present) and passes it to verify, which checks it against the
// signer's Ed25519 or RSA public key; callers needing portable-actor verification
// (importer) use this after FetchObject.
func (f *Fetcher) VerifyEmbeddedProof(obj map[string]interface{}, verify func(jsonsig.Signature) error) error {
	sgn, err := jsonsig.Extract(obj)
	if err == jsonsig.ErrNoProof {
		return nil
	}
	if err != nil {
		return newErr(KindInvalidProof, "", err)
	}
	if err := verify(sgn); err != nil {
		return newErr(KindInvalidProof, "", err)
	}
	return nil
}

// FetchFile dereferences target as a media file: size-bounded to
// sizeLimit bytes, redirects followed automatically (no re-signing; file
// fetches are unsigned per spec §4.3), and media type resolved per the
// "File sniffing" rule: the Content-Type header wins unless it is
// application/octet-stream, else expectedType (pass "" when the caller
// has none), else a magic-byte sniff. The resolved type is rejected if
// it is not in allowedTypes.
func (f *Fetcher) FetchFile(ctx context.Context, target, expectedType string, allowedTypes []string, sizeLimit int64) (data []byte, mediaType string, err error) {
	if _, err := f.guardURL(target); err != nil {
		return nil, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", newErr(KindRequest, target, err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	resp, err := f.redirectingClient().Do(req)
	if err != nil {
		return nil, "", newErr(KindRequest, target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, "", newErr(KindNotFound, target, fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		return nil, "", newErr(KindForbidden, target, fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", newErr(KindRequest, target, fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.ContentLength > sizeLimit {
		return nil, "", newErr(KindResponseTooLarge, target, fmt.Errorf("exceeded %d bytes", sizeLimit))
	}
	limited := io.LimitReader(resp.Body, sizeLimit+1)
	data, err = ioutil.ReadAll(limited)
	if err != nil {
		return nil, "", newErr(KindRequest, target, err)
	}
	if int64(len(data)) > sizeLimit {
		return nil, "", newErr(KindResponseTooLarge, target, fmt.Errorf("exceeded %d bytes", sizeLimit))
	}

	headerType := extractMediaType(resp.Header.Get("Content-Type"))
	mediaType = sniffMediaType(data, headerType, expectedType)
	if !typeAllowed(mediaType, allowedTypes) {
		return nil, "", newErr(KindUnexpectedContentType, target, fmt.Errorf("got %q", mediaType))
	}
	return data, mediaType, nil
}

// FetchJSON performs an unsigned GET, appending query as URL parameters,
// and decodes the (redirect-followed, size-bounded) response as JSON.
// Unlike FetchObject it makes no claim about the document's id or
// authorship; it exists for auxiliary endpoints (webfinger, nodeinfo,
// gateways) that return plain JSON rather than an AS2 object.
func (f *Fetcher) FetchJSON(ctx context.Context, target string, query url.Values) (map[string]interface{}, error) {
	if _, err := f.guardURL(target); err != nil {
		return nil, err
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, newErr(KindUrlError, target, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, newErr(KindRequest, target, err)
	}
	req.Header.Set("Accept", "application/json")
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	resp, err := f.redirectingClient().Do(req)
	if err != nil {
		return nil, newErr(KindRequest, target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, newErr(KindNotFound, target, fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		return nil, newErr(KindForbidden, target, fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newErr(KindRequest, target, fmt.Errorf("status %d", resp.StatusCode))
	}
	limited := io.LimitReader(resp.Body, MaxResponseBytes+1)
	body, err := ioutil.ReadAll(limited)
	if err != nil {
		return nil, newErr(KindRequest, target, err)
	}
	if len(body) > MaxResponseBytes {
		return nil, newErr(KindResponseTooLarge, target, fmt.Errorf("exceeded %d bytes", MaxResponseBytes))
	}
	var out map[string]interface{}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, newErr(KindJsonParse, target, err)
	}
	return out, nil
}

// redirectingClient shares the transport f.Client was built with but lets
// FetchFile/FetchJSON follow redirects automatically instead of
// re-signing each hop, matching spec §4.3's unsigned-fetch operations.
func (f *Fetcher) redirectingClient() *http.Client {
	return &http.Client{
		Transport: f.Client.Transport,
		Timeout:   f.Client.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= MaxRedirects {
				return fmt.Errorf("fetcher: exceeded %d redirects", MaxRedirects)
			}
			return nil
		},
	}
}

func isJSONContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "json")
}

// extractMediaType returns the bare type/subtype of a Content-Type
// header, dropping parameters such as charset or the AS2 profile.
func extractMediaType(header string) string {
	header = strings.SplitN(header, ",", 2)[0]
	header = strings.SplitN(header, ";", 2)[0]
	return strings.ToLower(strings.TrimSpace(header))
}

// sniffMediaType implements spec §4.3's "File sniffing" rule: the
// Content-Type header wins unless it is application/octet-stream, else
// the caller's expected type, else a magic-byte sniff.
func sniffMediaType(data []byte, headerType, expectedType string) string {
	const octetStream = "application/octet-stream"
	if headerType != "" && headerType != octetStream {
		return headerType
	}
	if expectedType != "" && expectedType != octetStream {
		return expectedType
	}
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP" {
		return "image/webp"
	}
	if len(data) >= 12 && string(data[4:8]) == "ftyp" && (string(data[8:12]) == "avif" || string(data[8:12]) == "avis") {
		return "image/avif"
	}
	if sniffed := http.DetectContentType(data); sniffed != "" {
		return extractMediaType(sniffed)
	}
	return octetStream
}

func typeAllowed(mediaType string, allowedTypes []string) bool {
	if len(allowedTypes) == 0 {
		return true
	}
	for _, t := range allowedTypes {
		if strings.EqualFold(t, mediaType) {
			return true
		}
	}
	return false
}

func (f *Fetcher) fetchBytes(ctx context.Context, target string, signer *Signer, accept string, gate func(string) bool) ([]byte, string, error) {
	current := target
	for hop := 0; ; hop++ {
		if hop > MaxRedirects {
			return nil, "", newErr(KindRedirectionError, target, fmt.Errorf("exceeded %d redirects", MaxRedirects))
		}
		u, err := f.guardURL(current)
		if err != nil {
			return nil, "", err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, "", newErr(KindRequest, current, err)
		}
		req.Header.Set("Accept", accept)
		req.Header.Set("Accept-Charset", "utf-8")
		now := time.Now()
		req.Header.Set("Date", sig.HTTPDate(now))
		req.Header.Set("Host", u.Host)
		if f.UserAgent != "" {
			req.Header.Set("User-Agent", f.UserAgent)
		}
		if signer != nil {
			path := u.EscapedPath()
			if u.RawQuery != "" {
				path += "?" + u.RawQuery
			}
			signReq := sig.SignRequest{
				KeyID:  signer.KeyID,
				Method: req.Method,
				Path:   path,
				Host:   u.Host,
				Date:   now,
			}
			name, value, err := sig.Sign(signer.Priv, signReq)
			if err != nil {
				return nil, "", newErr(KindRequest, current, err)
			}
			req.Header.Set(name, value)
		}
		resp, err := f.Client.Do(req)
		if err != nil {
			return nil, "", newErr(KindRequest, current, err)
		}
		if loc := resp.Header.Get("Location"); resp.StatusCode >= 300 && resp.StatusCode < 400 && loc != "" {
			resp.Body.Close()
			next, err := resolveRedirect(current, loc)
			if err != nil {
				return nil, "", newErr(KindRedirectionError, current, err)
			}
			current = next
			continue
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			return nil, "", newErr(KindNotFound, current, fmt.Errorf("status %d", resp.StatusCode))
		}
		if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
			return nil, "", newErr(KindForbidden, current, fmt.Errorf("status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return nil, "", newErr(KindRequest, current, fmt.Errorf("status %d", resp.StatusCode))
		}
		if gate != nil && !gate(resp.Header.Get("Content-Type")) {
			return nil, "", newErr(KindUnexpectedContentType, current, fmt.Errorf("got %q", resp.Header.Get("Content-Type")))
		}
		limited := io.LimitReader(resp.Body, MaxResponseBytes+1)
		body, err := ioutil.ReadAll(limited)
		if err != nil {
			return nil, "", newErr(KindRequest, current, err)
		}
		if len(body) > MaxResponseBytes {
			return nil, "", newErr(KindResponseTooLarge, current, fmt.Errorf("exceeded %d bytes", MaxResponseBytes))
		}
		ct := resp.Header.Get("Content-Type")
		if ct == "" {
			ct = http.DetectContentType(body)
		}
		return body, ct, nil
	}
}

func resolveRedirect(base, loc string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	l, err := url.Parse(loc)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(l).String(), nil
}
