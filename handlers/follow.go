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

// HandleFollow implements spec §4.5's Follow handler: create a
// FollowRequest from signer to target; if the target auto-accepts,
// transition straight to Follow state (the caller is responsible for
// enqueueing the resulting Accept activity for delivery).
func HandleFollow(ctx Context, act Activity) (*Descriptor, error) {
	source, ok := stringField(act.Body, "actor")
	if !ok {
		return nil, fmt.Errorf("handlers: Follow without an actor")
	}
	target, ok := stringField(act.Body, "object")
	if !ok {
		return nil, fmt.Errorf("handlers: Follow without an object")
	}
	if !act.IsAuthenticated {
		return nil, ErrUnauthenticated
	}

	if existing, found, err := ctx.Store.GetFollowRequest(source, target); err != nil {
		return nil, err
	} else if found {
		_ = existing
		return nil, nil // idempotent: already requested
	}

	activityID, _ := stringField(act.Body, "id")
	fr, err := ctx.Store.CreateFollowRequest(FollowRequest{
		ID:          activityID,
		SourceActor: source,
		TargetActor: target,
		State:       "pending",
	})
	if err != nil {
		return nil, err
	}

	auto, err := ctx.Store.AutoAccepts(target)
	if err != nil {
		return nil, err
	}
	if auto {
		if err := ctx.Store.SetFollowRequestState(fr.ID, "accepted"); err != nil {
			return nil, err
		}
	}
	return object("Follow", "Actor"), nil
}

// HandleAccept implements spec §4.5's Accept handler: look up the
// FollowRequest by activity id and transition it to Follow state.
func HandleAccept(ctx Context, act Activity) (*Descriptor, error) {
	return transitionFollowRequest(ctx, act, "accepted")
}

// HandleReject implements spec §4.5's Reject handler: record a Reject
// edge so future follow attempts from the same source are suppressed.
func HandleReject(ctx Context, act Activity) (*Descriptor, error) {
	return transitionFollowRequest(ctx, act, "rejected")
}

func transitionFollowRequest(ctx Context, act Activity, state string) (*Descriptor, error) {
	objID, ok := stringField(act.Body, "object")
	if !ok {
		return nil, fmt.Errorf("handlers: %s without an object", act.Body["type"])
	}
	fr, found, err := ctx.Store.GetFollowRequestByActivityID(objID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil // no-op: nothing to transition
	}
	actor, _ := stringField(act.Body, "actor")
	if !act.IsAuthenticated || actor != fr.TargetActor {
		return nil, ErrUnauthenticated
	}
	if err := ctx.Store.SetFollowRequestState(fr.ID, state); err != nil {
		return nil, err
	}
	activityType, _ := act.Body["type"].(string)
	return object(activityType, "FollowRequest"), nil
}
