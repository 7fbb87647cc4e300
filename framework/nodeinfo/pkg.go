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

// There are two competing standards: NodeInfo and NodeInfo2. Confusingly,
// NodeInfo is at version 2, so it is NodeInfo 2 vs NodeInfo2.
//
// I have no idea about the background of either. But it is late, and I find
// myself tired and, having thought this would be a quick serialize-to-JSON
// implementation, massively disappointed at what I've found instead.
//
// So, support both, I guess. Thank God, I was worried I would one day find
// myself upon my deathbed and staring into the eyes of my loved ones and
// quietly whisper in the soft exhale of my last breath "if only I could have
// implemented another NodeInfo standard, I would have had a fulfilling life".
// So my survivors would all turn to each other teary-eyed and put on my
// gravestone "NodeInfo 2" with an ambiguously-sized space in-between.
//
// If at least this means one other person doesn't have to deal with this
// dual headache, then I guess it was indeed worth it.
//
// I guess this is what happens when people can't get along and at least one
// person is being uncompromising. A lesson for me to avoid this at all costs.
//
// (Only plain NodeInfo made the cut here; x-nodeinfo2 isn't one of the
// routes this server exposes.)
package nodeinfo

import (
	"net/http"
)

type PathHandler struct {
	Path    string
	Handler http.HandlerFunc
}

// Config controls whether NodeInfo is served at all (both schema
// versions together) and whether the usage section is populated from
// live stats or served with zero counts.
type Config struct {
	EnableNodeInfo             bool
	EnableAnonymousStatsSharing bool
}

// GetNodeInfoHandlers returns the well-known discovery handler plus one
// handler per schema version this server speaks (2.0 and 2.1 both share
// the same document shape).
func GetNodeInfoHandlers(c Config, scheme, host string, sp StatsProvider, s Software) []PathHandler {
	if !c.EnableNodeInfo {
		return nil
	}
	versions := []string{"2.0", "2.1"}
	ph := []PathHandler{
		{
			Path:    nodeInfoWellKnownPath,
			Handler: nodeInfoWellKnownHandler(scheme, host, versions),
		},
	}
	for _, v := range versions {
		ph = append(ph, PathHandler{
			Path:    "/nodeinfo/" + v,
			Handler: nodeInfoHandler(v, sp, s, c.EnableAnonymousStatsSharing),
		})
	}
	return ph
}
