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

// Package filter implements the host-pattern allow/deny matcher: rules
// loaded from the database, matched against an activity's origin
// hostname, most-recently-added rule wins.
package filter

import (
	"fmt"
	"path"
	"strings"
)

// Action is one of the filter dispositions a matching rule applies.
type Action int

const (
	RejectIncoming Action = iota
	Reject
	RejectMediaAttachments
	RejectProfileImages
	RejectCustomEmojis
	MarkSensitive
	RejectKeywords
	ProxyMedia
)

func (a Action) String() string {
	switch a {
	case RejectIncoming:
		return "reject-incoming"
	case Reject:
		return "reject"
	case RejectMediaAttachments:
		return "reject-media-attachments"
	case RejectProfileImages:
		return "reject-profile-images"
	case RejectCustomEmojis:
		return "reject-custom-emojis"
	case MarkSensitive:
		return "mark-sensitive"
	case RejectKeywords:
		return "reject-keywords"
	case ProxyMedia:
		return "proxy-media"
	default:
		return "unknown"
	}
}

// ParseAction parses a rule's stored action string. "reject-media" is
// accepted as a deprecated alias of "reject-media-attachments".
func ParseAction(s string) (Action, error) {
	switch s {
	case "reject-incoming":
		return RejectIncoming, nil
	case "reject":
		return Reject, nil
	case "reject-media-attachments", "reject-media":
		return RejectMediaAttachments, nil
	case "reject-profile-images":
		return RejectProfileImages, nil
	case "reject-custom-emojis":
		return RejectCustomEmojis, nil
	case "mark-sensitive":
		return MarkSensitive, nil
	case "reject-keywords":
		return RejectKeywords, nil
	case "proxy-media":
		return ProxyMedia, nil
	default:
		return 0, fmt.Errorf("filter: unknown action %q", s)
	}
}

// Rule is one federation filter row: a hostname glob pattern ("*" and
// "?" wildcards), the action it applies, and whether that action is
// inverted (an explicit allow carve-out).
type Rule struct {
	ID       int64
	Pattern  string
	Action   Action
	Reversed bool
	// AddedOrder is a monotonically increasing insertion sequence (row
	// id or created_at ordinal); higher means more recently added.
	AddedOrder int64
}

// Filter holds a snapshot of rules, ready to be matched against
// hostnames. It is immutable; callers reload it from storage to pick up
// changes.
type Filter struct {
	rules []Rule // sorted most-recently-added first
}

// New builds a Filter from rules in any order, sorting them
// most-recently-added first internally.
func New(rules []Rule) *Filter {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1].AddedOrder < sorted[j].AddedOrder; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	return &Filter{rules: sorted}
}

// Decision is the outcome of matching a hostname against the loaded
// rules: whether any rule matched, and if so, its action and the
// effective (post-reversed) verdict.
type Decision struct {
	Matched bool
	Rule    Rule
	// Blocked is true when the matching rule's action should be
	// enforced (Reversed flips a match into an explicit allow).
	Blocked bool
}

// Match finds the highest-precedence rule whose pattern matches host
// for the given action, iterating most-recent-first and returning on
// the first match.
func (f *Filter) Match(host string, action Action) Decision {
	host = strings.ToLower(host)
	for _, r := range f.rules {
		if r.Action != action {
			continue
		}
		ok, err := path.Match(strings.ToLower(r.Pattern), host)
		if err != nil || !ok {
			continue
		}
		return Decision{Matched: true, Rule: r, Blocked: !r.Reversed}
	}
	return Decision{}
}

// Blocked is a convenience wrapper: true if host is blocked for action
// (a matching, non-reversed rule), false otherwise (no match, or a
// reversed match carving out an allow).
func (f *Filter) Blocked(host string, action Action) bool {
	return f.Match(host, action).Blocked
}
