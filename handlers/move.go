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

// HandleMove implements spec §4.5's Move handler: given
// Move(fromActor -> toActor) where toActor aliases fromActor
// bidirectionally, migrate local followers (Undo(Follow) toward the old
// actor, Follow toward the new one is the caller's delivery-side
// responsibility once this returns) and record a user-visible
// notification. An alias that isn't mutual is refused: a unilateral
// Move claim would let any actor hijack another's followers.
func HandleMove(ctx Context, act Activity) (*Descriptor, error) {
	fromActor, ok := stringField(act.Body, "actor")
	if !ok {
		return nil, fmt.Errorf("handlers: Move without an actor")
	}
	toActor, ok := stringField(act.Body, "object")
	if !ok {
		return nil, fmt.Errorf("handlers: Move without a target object")
	}
	if !act.IsAuthenticated {
		return nil, ErrUnauthenticated
	}

	mutual, err := ctx.Store.ActorAliasesBidirectionally(fromActor, toActor)
	if err != nil {
		return nil, err
	}
	if !mutual {
		return nil, ErrUnauthenticated
	}

	if _, err := ctx.Store.MigrateFollowers(fromActor, toActor); err != nil {
		return nil, err
	}
	if err := ctx.Store.RecordMoveNotification(fromActor, toActor); err != nil {
		return nil, err
	}
	return object("Move", "Actor"), nil
}
