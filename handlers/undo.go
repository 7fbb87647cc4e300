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

// HandleUndo implements spec §4.5's Undo handler: dispatch by the inner
// activity's kind (Follow, Like, Announce) and reverse its effect.
func HandleUndo(ctx Context, act Activity) (*Descriptor, error) {
	inner, ok := objectBody(act.Body, "object")
	if !ok {
		return nil, fmt.Errorf("handlers: Undo without an embedded inner activity")
	}
	if !act.IsAuthenticated {
		return nil, ErrUnauthenticated
	}
	actor, _ := stringField(act.Body, "actor")
	innerActor, _ := stringField(inner, "actor")
	if innerActor != "" && innerActor != actor {
		return nil, ErrUnauthenticated
	}

	innerType, _ := inner["type"].(string)
	switch innerType {
	case "Follow":
		target, _ := stringField(inner, "object")
		if err := ctx.Store.DeleteFollow(actor, target); err != nil {
			return nil, err
		}
		return object("Undo", "Follow"), nil
	case "Like", "EmojiReact":
		postID, _ := stringField(inner, "object")
		if err := ctx.Store.DeleteReaction(actor, postID); err != nil {
			return nil, err
		}
		return object("Undo", innerType), nil
	case "Announce":
		activityID, _ := stringField(inner, "id")
		repost, found, err := ctx.Store.GetRemoteRepostByActivityID(activityID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		if err := ctx.Store.DeleteRepost(repost.ID); err != nil {
			return nil, err
		}
		return object("Undo", "Announce"), nil
	default:
		return nil, nil // unsupported inner kind: silently ignored
	}
}
