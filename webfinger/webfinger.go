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

// Package webfinger implements spec §4.10's WebFinger resolution step:
// turn "acct:user@host" into the actor URL a remote instance publishes
// for that handle, by fetching its JRD and picking the "self" link
// whose type is the ActivityStreams media type.
package webfinger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/relaysocial/apcore/urls"
)

// ActivityStreamsMediaType is the link "type" WebFinger's self link
// must carry for Resolve to accept it.
const ActivityStreamsMediaType = `application/activity+json`

// legacyActivityStreamsMediaType is the older content-type some
// instances still publish on their WebFinger self link.
const legacyActivityStreamsMediaType = `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`

// ErrNoSelfLink is returned when a JRD has no "self" link with an
// ActivityPub-compatible media type.
var ErrNoSelfLink = errors.New("webfinger: no self link with an ActivityStreams media type")

// jrd is the JSON Resource Descriptor shape RFC 7033 defines.
type jrd struct {
	Subject string `json:"subject"`
	Links   []struct {
		Rel  string `json:"rel"`
		Type string `json:"type"`
		Href string `json:"href"`
	} `json:"links"`
}

// Resolver fetches and parses WebFinger documents.
type Resolver struct {
	Client    *http.Client
	UserAgent string
}

// New returns a Resolver that uses http.DefaultClient, which sets no
// timeout.
func New(userAgent string) *Resolver {
	return &Resolver{Client: http.DefaultClient, UserAgent: userAgent}
}

// Resolve turns address into the actor URL its host's WebFinger
// endpoint publishes for it.
func (r *Resolver) Resolve(address urls.WebfingerAddress) (string, error) {
	return r.resolveAt(address.Endpoint() + "?resource=" + address.Resource())
}

// resolveAt fetches and parses the JRD at a fully-formed WebFinger query
// URL, split out from Resolve so tests can point it at an httptest
// server without needing Endpoint()'s hardcoded https:// scheme.
func (r *Resolver) resolveAt(endpoint string) (string, error) {
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/jrd+json, application/json")
	if r.UserAgent != "" {
		req.Header.Set("User-Agent", r.UserAgent)
	}

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("webfinger: requesting %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("webfinger: %s returned status %d", endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("webfinger: reading response: %w", err)
	}
	return ParseJRD(body)
}

// ParseJRD extracts the actor URL from a raw JRD document, split out
// from Resolve so callers with an already-fetched document (tests, or
// an embedded WebFinger response) don't need an HTTP round trip.
func ParseJRD(body []byte) (string, error) {
	var doc jrd
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("webfinger: parsing JRD: %w", err)
	}
	for _, link := range doc.Links {
		if link.Rel != "self" {
			continue
		}
		if link.Type == ActivityStreamsMediaType || link.Type == legacyActivityStreamsMediaType {
			if link.Href != "" {
				return link.Href, nil
			}
		}
	}
	return "", ErrNoSelfLink
}
