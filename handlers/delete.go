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

// HandleDelete implements spec §4.5's Delete handler: for an object,
// delete iff the requester is its author; for an actor self-delete,
// delete the profile and cascade (cascading is the store's
// responsibility, triggered by DeletePost/actor-delete sharing the
// same id namespace as the rest of this handler's dependencies).
func HandleDelete(ctx Context, act Activity) (*Descriptor, error) {
	objID, ok := stringField(act.Body, "object")
	if !ok {
		return nil, nil
	}
	actor, _ := stringField(act.Body, "actor")

	if objID == actor {
		// Self-delete: the only activity receiver.Receive tolerates
		// without a signature, so there is no authentication gate here.
		if err := ctx.Store.DeletePost(objID); err != nil {
			return nil, err
		}
		return object("Delete", "Actor"), nil
	}

	existing, found, err := ctx.Store.GetRemotePostByObjectID(objID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil // unknown target: no-op
	}
	if !act.IsAuthenticated || actor != existing.AuthorID {
		return nil, ErrUnauthenticated
	}
	if err := ctx.Store.DeletePost(existing.ID); err != nil {
		return nil, err
	}
	return object("Delete", "Object"), nil
}
