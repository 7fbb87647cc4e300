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

package nodeinfo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeStats struct {
	stats Stats
	prefs Preferences
}

func (f fakeStats) AnonymizedStats(ctx context.Context) (Stats, error) {
	return f.stats, nil
}

func (f fakeStats) Preferences(ctx context.Context) (Preferences, error) {
	return f.prefs, nil
}

func TestGetNodeInfoHandlersDisabledReturnsNone(t *testing.T) {
	ph := GetNodeInfoHandlers(Config{EnableNodeInfo: false}, "https", "example.com", fakeStats{}, Software{Name: "test"})
	if ph != nil {
		t.Fatalf("expected no handlers when disabled, got %+v", ph)
	}
}

func TestGetNodeInfoHandlersServesWellKnownAndBothVersions(t *testing.T) {
	ph := GetNodeInfoHandlers(Config{EnableNodeInfo: true}, "https", "example.com", fakeStats{}, Software{Name: "test"})
	paths := map[string]bool{}
	for _, p := range ph {
		paths[p.Path] = true
	}
	for _, want := range []string{"/.well-known/nodeinfo", "/nodeinfo/2.0", "/nodeinfo/2.1"} {
		if !paths[want] {
			t.Fatalf("missing path %s in %+v", want, paths)
		}
	}
}

func TestWellKnownHandlerLinksBothVersions(t *testing.T) {
	ph := GetNodeInfoHandlers(Config{EnableNodeInfo: true}, "https", "example.com", fakeStats{}, Software{Name: "test"})
	var wellKnown http.HandlerFunc
	for _, p := range ph {
		if p.Path == "/.well-known/nodeinfo" {
			wellKnown = p.Handler
		}
	}
	if wellKnown == nil {
		t.Fatal("well-known handler not found")
	}
	rr := httptest.NewRecorder()
	wellKnown(rr, httptest.NewRequest(http.MethodGet, "/.well-known/nodeinfo", nil))
	body := rr.Body.String()
	if !strings.Contains(body, "/nodeinfo/2.0") || !strings.Contains(body, "/nodeinfo/2.1") {
		t.Fatalf("expected links to both schema versions, got %s", body)
	}
}

func TestNodeInfoHandlerZeroesUsageWhenStatsDisabled(t *testing.T) {
	ph := GetNodeInfoHandlers(Config{EnableNodeInfo: true, EnableAnonymousStatsSharing: false}, "https", "example.com",
		fakeStats{stats: Stats{TotalUsers: 42}, prefs: Preferences{OpenRegistrations: true}}, Software{Name: "test", Version: "1.0"})
	var v21 http.HandlerFunc
	for _, p := range ph {
		if p.Path == "/nodeinfo/2.1" {
			v21 = p.Handler
		}
	}
	rr := httptest.NewRecorder()
	v21(rr, httptest.NewRequest(http.MethodGet, "/nodeinfo/2.1", nil))
	var doc nodeInfo
	if err := json.Unmarshal(rr.Body.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Usage.Users.Total != 0 {
		t.Fatalf("expected zero usage counts (stats sharing disabled), got %+v", doc.Usage)
	}
	if !doc.OpenRegistrations {
		t.Fatal("expected openRegistrations to reflect Preferences")
	}
}

func TestNodeInfoHandlerIncludesUsageWhenStatsEnabled(t *testing.T) {
	ph := GetNodeInfoHandlers(Config{EnableNodeInfo: true, EnableAnonymousStatsSharing: true}, "https", "example.com",
		fakeStats{stats: Stats{TotalUsers: 7, NLocalPosts: 3}}, Software{Name: "Test-Software!"})
	var v20 http.HandlerFunc
	for _, p := range ph {
		if p.Path == "/nodeinfo/2.0" {
			v20 = p.Handler
		}
	}
	rr := httptest.NewRecorder()
	v20(rr, httptest.NewRequest(http.MethodGet, "/nodeinfo/2.0", nil))
	var doc nodeInfo
	if err := json.Unmarshal(rr.Body.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Usage.Users.Total != 7 || doc.Usage.LocalPosts != 3 {
		t.Fatalf("expected populated usage section, got %+v", doc.Usage)
	}
	if doc.Software.Name != "test-software" {
		t.Fatalf("expected sanitized software name, got %q", doc.Software.Name)
	}
}
