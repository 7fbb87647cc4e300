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

package importer

import "github.com/microcosm-cc/bluemonday"

// richTextFields holds the body HTML, which may keep a conservative set
// of formatting tags. plainTextFields are short display strings (name,
// summary) that are stripped down to bare text; a remote actor's
// "display name" has no business carrying a <script> or an <img>.
var (
	richTextFields  = []string{"content"}
	plainTextFields = []string{"summary", "name", "preferredUsername"}
)

// Sanitizer strips unsafe markup from imported object fields before they
// are persisted. A nil *Sanitizer leaves bodies untouched, matching the
// zero value of Objects.
type Sanitizer struct {
	rich  *bluemonday.Policy
	plain *bluemonday.Policy
}

// NewSanitizer builds a Sanitizer with a UGC-level policy for rich text
// and a fully stripping policy for plain text. Surviving links get
// rel="nofollow noreferrer"; fully qualified ones also get
// target="_blank" and rel "noopener".
func NewSanitizer() *Sanitizer {
	rich := bluemonday.UGCPolicy()
	rich.RequireNoFollowOnLinks(true)
	rich.RequireNoReferrerOnLinks(true)
	rich.AddTargetBlankToFullyQualifiedLinks(true)

	plain := bluemonday.StrictPolicy()

	return &Sanitizer{rich: rich, plain: plain}
}

// Clean sanitizes the known text fields of an imported object body in
// place, returning the same map for convenience.
func (s *Sanitizer) Clean(body map[string]interface{}) map[string]interface{} {
	if s == nil {
		return body
	}
	for _, f := range richTextFields {
		if v, ok := body[f].(string); ok {
			body[f] = s.rich.Sanitize(v)
		}
	}
	for _, f := range plainTextFields {
		if v, ok := body[f].(string); ok {
			body[f] = s.plain.Sanitize(v)
		}
	}
	return body
}
