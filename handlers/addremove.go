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

import (
	"fmt"
	"strings"
)

// HandleAdd implements spec §4.5's Add handler: targets the followers,
// subscribers, featured, or a conversation collection. A conversation
// collection can be amended by participants other than its owner, so
// ownership is not checked for it; the Add must still authenticate, and
// an embedded item must name an actor. The embedded item's own
// signature is not verified.
func HandleAdd(ctx Context, act Activity) (*Descriptor, error) {
	return handleCollectionMutation(ctx, act, ctx.Store.AddToCollection)
}

// HandleRemove implements spec §4.5's Remove handler, the inverse of Add.
func HandleRemove(ctx Context, act Activity) (*Descriptor, error) {
	return handleCollectionMutation(ctx, act, ctx.Store.RemoveFromCollection)
}

func handleCollectionMutation(ctx Context, act Activity, mutate func(collection, owner, item string) error) (*Descriptor, error) {
	itemID, ok := stringField(act.Body, "object")
	if !ok {
		return nil, fmt.Errorf("handlers: Add/Remove without an object")
	}
	targetID, ok := stringField(act.Body, "target")
	if !ok {
		return nil, fmt.Errorf("handlers: Add/Remove without a target collection")
	}
	actor, _ := stringField(act.Body, "actor")

	collection, owner := classifyCollection(targetID)
	if collection == "" {
		return nil, nil // unrecognized target collection: ignored
	}

	if collection == "conversation" {
		// FEP-171b: a participant, not only the owner, may add to a
		// conversation, so ownership is not checked. The outer Add must
		// authenticate; an embedded item must also name an actor, but
		// its own signature is not verified here.
		if item, ok := objectBody(act.Body, "object"); ok {
			innerActor, _ := stringField(item, "actor")
			if innerActor == "" || !act.IsAuthenticated {
				return nil, ErrUnauthenticated
			}
		} else if !act.IsAuthenticated {
			return nil, ErrUnauthenticated
		}
	} else if !act.IsAuthenticated || actor != owner {
		return nil, ErrUnauthenticated
	}

	if err := mutate(collection, owner, itemID); err != nil {
		return nil, err
	}
	activityType, _ := act.Body["type"].(string)
	return object(activityType, "Collection"), nil
}

// classifyCollection recognizes the well-known per-actor collection
// suffixes this instance publishes, returning the collection kind and
// the owning actor id (the target URL with the suffix stripped).
func classifyCollection(target string) (collection, owner string) {
	for _, suffix := range []string{"/followers", "/subscribers", "/featured"} {
		if strings.HasSuffix(target, suffix) {
			return strings.TrimPrefix(suffix, "/"), strings.TrimSuffix(target, suffix)
		}
	}
	if strings.Contains(target, "/conversations/") {
		return "conversation", target
	}
	return "", ""
}
