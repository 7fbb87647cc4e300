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

import "fmt"

// Objects resolves object ids into upserted copies, walking inReplyTo
// and replies/context collections up to Options' bounds, per spec
// §4.10's "same pattern as actors" note.
type Objects struct {
	Store  Store
	Fetch  Fetcher
	Verify ProofVerifier
	// Sanitize, if set, strips unsafe markup from content/summary/name
	// fields before an imported object is upserted.
	Sanitize *Sanitizer
}

// ImportObject fetches id (unless already known), verifies its proof
// when portable, upserts it, and resolves its inReplyTo ancestor chain
// up to opts.MaxReplyDepth; exceeding the depth returns *RecursionError
// and leaves whatever was already imported in place (those ancestors
// remain independently valid local copies).
func (o Objects) ImportObject(id string, opts Options) (map[string]interface{}, error) {
	return o.importObject(id, opts.withDefaults(), 0)
}

func (o Objects) importObject(id string, opts Options, depth int) (map[string]interface{}, error) {
	if existing, found, err := o.Store.GetObject(id); err != nil {
		return nil, err
	} else if found {
		return existing, nil
	}
	if depth >= opts.MaxReplyDepth {
		return nil, &RecursionError{Id: id, Depth: depth}
	}

	body, err := o.Fetch.FetchObject(id)
	if err != nil {
		return nil, fmt.Errorf("importer: fetching object %s: %w", id, err)
	}
	actualID, ok := idFromBody(body)
	if !ok {
		return nil, fmt.Errorf("importer: object document for %s has no id", id)
	}
	if isPortable(actualID) && o.Verify != nil {
		if err := o.Verify.VerifyPortableProof(body); err != nil {
			return nil, fmt.Errorf("importer: object %s failed proof verification: %w", actualID, err)
		}
	}

	if replyTo, ok := body["inReplyTo"].(string); ok && replyTo != "" {
		if _, err := o.importObject(replyTo, opts, depth+1); err != nil {
			return nil, err
		}
	}

	body = o.Sanitize.Clean(body)

	if err := o.Store.UpsertObject(actualID, body); err != nil {
		return nil, err
	}
	return body, nil
}

// ImportReplies walks the replies collection (or, identically, the
// context collection) of a known object up to opts.MaxCollectionItems,
// importing each item as an independent object (depth reset to 0: a
// reply one hop away in the collection is not a recursive ancestor).
func (o Objects) ImportReplies(collectionID string, opts Options) (int, error) {
	opts = opts.withDefaults()
	imported := 0
	page := collectionID
	for page != "" && imported < opts.MaxCollectionItems {
		items, next, err := o.Fetch.FetchCollectionPage(page)
		if err != nil {
			return imported, fmt.Errorf("importer: fetching collection page %s: %w", page, err)
		}
		for _, itemID := range items {
			if imported >= opts.MaxCollectionItems {
				break
			}
			if _, err := o.importObject(itemID, opts, 0); err != nil {
				return imported, err
			}
			imported++
		}
		page = next
	}
	return imported, nil
}
