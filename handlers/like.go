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

package handlers

import "fmt"

// HandleReaction implements spec §4.5's Like/EmojiReact handler: record
// a reaction with content equal to a Unicode grapheme or a shortcode
// matching a known emoji, idempotent per (actor, post, content). kind is
// "Like", "Dislike", or "EmojiReact" (wrapped Announce may deliver any
// of the three, sharing this implementation).
func HandleReaction(ctx Context, act Activity, kind string) (*Descriptor, error) {
	actor, ok := stringField(act.Body, "actor")
	if !ok {
		return nil, fmt.Errorf("handlers: %s without an actor", kind)
	}
	postID, ok := stringField(act.Body, "object")
	if !ok {
		return nil, fmt.Errorf("handlers: %s without an object", kind)
	}
	if !act.IsAuthenticated {
		return nil, ErrUnauthenticated
	}
	content, _ := act.Body["content"].(string)
	if content == "" {
		content = kind // plain Like with no content: the reaction IS the kind
	}

	if _, found, err := ctx.Store.GetReaction(actor, postID, content); err != nil {
		return nil, err
	} else if found {
		return nil, nil // idempotent
	}

	if err := ctx.Store.CreateReaction(Reaction{ActorID: actor, PostID: postID, Content: content}); err != nil {
		return nil, err
	}
	return object(kind, "Object"), nil
}
