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

package webfinger

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/relaysocial/apcore/urls"
)

func TestParseJRDPicksActivityStreamsSelfLink(t *testing.T) {
	doc := `{
		"subject": "acct:alice@remote.example",
		"links": [
			{"rel": "self", "type": "text/html", "href": "https://remote.example/@alice"},
			{"rel": "self", "type": "application/activity+json", "href": "https://remote.example/users/alice"}
		]
	}`
	actorURL, err := ParseJRD([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if actorURL != "https://remote.example/users/alice" {
		t.Fatalf("unexpected actor URL: %s", actorURL)
	}
}

func TestParseJRDAcceptsLegacyMediaType(t *testing.T) {
	doc := `{"subject": "acct:alice@remote.example", "links": [
		{"rel": "self", "type": "application/ld+json; profile=\"https://www.w3.org/ns/activitystreams\"", "href": "https://remote.example/users/alice"}
	]}`
	actorURL, err := ParseJRD([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if actorURL != "https://remote.example/users/alice" {
		t.Fatalf("unexpected actor URL: %s", actorURL)
	}
}

func TestParseJRDWithoutSelfLinkFails(t *testing.T) {
	doc := `{"subject": "acct:alice@remote.example", "links": [{"rel": "self", "type": "text/html", "href": "https://remote.example/@alice"}]}`
	_, err := ParseJRD([]byte(doc))
	if err != ErrNoSelfLink {
		t.Fatalf("expected ErrNoSelfLink, got %v", err)
	}
}

func TestResolveQueriesTheExpectedEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/webfinger" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if !strings.Contains(r.URL.RawQuery, "resource=acct%3Aalice%40") {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/jrd+json")
		w.Write([]byte(`{"subject":"acct:alice@x","links":[{"rel":"self","type":"application/activity+json","href":"https://x/users/alice"}]}`))
	}))
	defer srv.Close()

	addr := urls.WebfingerAddress{Username: "alice", Hostname: strings.TrimPrefix(srv.URL, "http://")}
	r := New("test-instance/1.0")
	// Endpoint() always produces an https:// URL; rewrite it to the
	// httptest server's http:// scheme for this test only.
	actorURL, err := r.resolveAt(strings.Replace(addr.Endpoint(), "https://", "http://", 1) + "?resource=" + addr.Resource())
	if err != nil {
		t.Fatal(err)
	}
	if actorURL != "https://x/users/alice" {
		t.Fatalf("unexpected actor URL: %s", actorURL)
	}
}
