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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/relaysocial/apcore/util"
)

// This file contains the NodeInfo implementation, serving both the 2.0
// and 2.1 schema versions at their own well-known paths.

const (
	nodeInfoWellKnownPath  = "/.well-known/nodeinfo"
	validSoftwareNameChars = "abcdefghijklmnopqrstuvwxyz0123456789-"
)

// Software describes the running instance for NodeInfo's "software" and
// "metadata" fields.
type Software struct {
	Name       string
	Version    string
	Repository string
}

// Stats carries the anonymized usage counts NodeInfo exposes. When
// anonymous stats sharing is disabled no Stats are fetched, and the
// usage section is still served with every count at zero.
type Stats struct {
	TotalUsers      int
	ActiveHalfYear  int
	ActiveMonth     int
	NLocalPosts     int
	NLocalComments  int
}

// Preferences carries the instance-operator-controlled fields NodeInfo
// exposes, namely whether registrations are open.
type Preferences struct {
	OpenRegistrations bool
}

// StatsProvider decouples the NodeInfo handlers from however the caller
// stores usage counters and instance preferences.
type StatsProvider interface {
	AnonymizedStats(ctx context.Context) (Stats, error)
	Preferences(ctx context.Context) (Preferences, error)
}

type nodeInfo struct {
	Version           string                 `json:"version"`
	Software          software               `json:"software"`
	Protocols         []string               `json:"protocols"`
	Services          services               `json:"services"`
	OpenRegistrations bool                   `json:"openRegistrations"`
	Usage             usage                  `json:"usage"`
	Metadata          map[string]interface{} `json:"metadata"`
}

type software struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	Repository string `json:"repository"`
}

type services struct {
	Inbound  []string `json:"inbound"`
	Outbound []string `json:"outbound"`
}

type usage struct {
	Users         users `json:"users"`
	LocalPosts    int   `json:"localPosts"`
	LocalComments int   `json:"localComments"`
}

type users struct {
	Total          int `json:"total"`
	ActiveHalfYear int `json:"activeHalfyear"`
	ActiveMonth    int `json:"activeMonth"`
}

func sanitizeSoftwareName(name string) string {
	name = strings.ToLower(name)
	var b strings.Builder
	for _, r := range name {
		if !strings.ContainsAny(string(r), validSoftwareNameChars) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func toNodeInfo(version string, s Software, t *Stats, p Preferences) nodeInfo {
	n := nodeInfo{
		Version: version,
		Software: software{
			Name:       sanitizeSoftwareName(s.Name),
			Version:    s.Version,
			Repository: s.Repository,
		},
		Protocols: []string{"activitypub"},
		Services: services{
			Inbound:  []string{},
			Outbound: []string{},
		},
		OpenRegistrations: p.OpenRegistrations,
		Metadata:          map[string]interface{}{},
	}
	if t != nil {
		n.Usage = usage{
			Users: users{
				Total:          t.TotalUsers,
				ActiveHalfYear: t.ActiveHalfYear,
				ActiveMonth:    t.ActiveMonth,
			},
			LocalPosts:    t.NLocalPosts,
			LocalComments: t.NLocalComments,
		}
	}
	return n
}

func nodeInfoWellKnownHandler(scheme, host string, versions []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/jrd+json")
		var links []string
		for _, v := range versions {
			links = append(links, fmt.Sprintf(
				`{"rel": "http://nodeinfo.diaspora.software/ns/schema/%s","href": "%s://%s/nodeinfo/%s"}`,
				v, scheme, host, v))
		}
		var b bytes.Buffer
		b.WriteString(`{"links":[`)
		b.WriteString(strings.Join(links, ","))
		b.WriteString(`]}`)
		bt := b.Bytes()
		n, err := w.Write(bt)
		if err != nil {
			util.ErrorLogger.Errorf("error writing well-known nodeinfo response: %s", err)
		} else if n != len(bt) {
			util.ErrorLogger.Errorf("error writing well-known nodeinfo response: wrote %d of %d bytes", n, len(bt))
		}
	}
}

func nodeInfoHandler(version string, sp StatsProvider, s Software, useStats bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", fmt.Sprintf(`application/json; profile="http://nodeinfo.diaspora.software/ns/schema/%s#"`, version))

		var t *Stats
		if useStats {
			st, err := sp.AnonymizedStats(r.Context())
			if err != nil {
				http.Error(w, "error serving nodeinfo response", http.StatusInternalServerError)
				util.ErrorLogger.Errorf("error in getting anonymized stats for nodeinfo response: %s", err)
				return
			}
			t = &st
		}

		p, err := sp.Preferences(r.Context())
		if err != nil {
			http.Error(w, "error serving nodeinfo response", http.StatusInternalServerError)
			util.ErrorLogger.Errorf("error in getting server preferences for nodeinfo response: %s", err)
			return
		}

		ni := toNodeInfo(version, s, t, p)
		b, err := json.Marshal(ni)
		if err != nil {
			http.Error(w, "error serving nodeinfo response", http.StatusInternalServerError)
			util.ErrorLogger.Errorf("error marshalling nodeinfo response to JSON: %s", err)
			return
		}

		n, err := w.Write(b)
		if err != nil {
			util.ErrorLogger.Errorf("error writing nodeinfo response: %s", err)
		} else if n != len(b) {
			util.ErrorLogger.Errorf("error writing nodeinfo response: wrote %d of %d bytes", n, len(b))
		}
	}
}
