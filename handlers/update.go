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

// HandleUpdate implements spec §4.5's Update handler: replace the
// mutable fields of a known object. An unknown target is a no-op; an
// unauthenticated signer (not matching the object's author) is dropped.
func HandleUpdate(ctx Context, act Activity) (*Descriptor, error) {
	obj, ok := objectBody(act.Body, "object")
	if !ok {
		return nil, fmt.Errorf("handlers: Update without an embedded object")
	}
	objID, ok := stringField(obj, "id")
	if !ok {
		return nil, fmt.Errorf("handlers: Update object has no id")
	}

	existing, found, err := ctx.Store.GetRemotePostByObjectID(objID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil // unknown target: no-op
	}

	actor, _ := stringField(act.Body, "actor")
	if !act.IsAuthenticated || actor != existing.AuthorID {
		return nil, ErrUnauthenticated
	}

	if content, ok := obj["content"].(string); ok {
		existing.Content = content
	}
	if err := ctx.Store.UpdatePost(existing); err != nil {
		return nil, err
	}
	objType, _ := obj["type"].(string)
	return object("Update", objType), nil
}
