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

// Package handlers implements the per-kind activity handlers that run in
// the incoming executor once receiver.Receive has turned a POST into an
// IncomingActivity job. Every handler shares the same shape: it is handed
// the decoded activity plus whether the job's signer was authenticated,
// and it returns a Descriptor naming what it did (or nil when it chose to
// ignore the activity) so that idempotent no-ops are distinguishable from
// real errors in logs and metrics.
package handlers

import (
	"errors"
	"fmt"
)

// Descriptor names the kind of object a handler acted on, so callers can
// log "Create(Note)" or "Undo(Follow)" without reaching back into the
// activity body.
type Descriptor struct {
	Activity string
	Object   string
}

func (d *Descriptor) String() string {
	if d == nil {
		return ""
	}
	return fmt.Sprintf("%s(%s)", d.Activity, d.Object)
}

func object(activity, object string) *Descriptor {
	return &Descriptor{Activity: activity, Object: object}
}

// RecursionError is returned when resolving an activity's dependencies
// (inReplyTo, wrapped Announce targets, ...) exceeds MaxRecursionDepth.
// It does not wrap queue.ErrRecursion, so the IncomingActivity queue
// policy, which skips retries only for errors wrapping that value, does
// not recognise it.
type RecursionError struct {
	Id    string
	Depth int
}

func (e *RecursionError) Error() string {
	return fmt.Sprintf("handlers: recursion depth %d exceeded resolving %s", e.Depth, e.Id)
}

// MaxRecursionDepth bounds how many hops a handler will follow to resolve
// an unknown dependency (inReplyTo chain, wrapped Announce object, ...).
const MaxRecursionDepth = 20

var (
	// ErrNotFound is returned when a handler's target (object, activity,
	// follow request) does not exist locally and cannot be resolved.
	// Per queue policy this is non-retriable.
	ErrNotFound = errors.New("handlers: target not found")
	// ErrUnauthenticated is returned when a handler requires the signer
	// to match an object's author (or an activity's stated owner) and it
	// does not.
	ErrUnauthenticated = errors.New("handlers: signer does not match the required author")
	// ErrUnsupportedActivity is returned by Dispatch when asked to run a
	// kind it has no handler for.
	ErrUnsupportedActivity = errors.New("handlers: unsupported activity type")
	// ErrReplyExpandsAudience is returned when a reply's visibility is
	// wider than its parent's, per spec §3's narrowing invariant.
	ErrReplyExpandsAudience = errors.New("handlers: reply must have narrower visibility")
	// ErrReplyAddsRecipients is returned when a reply to a non-public
	// post mentions an actor outside the parent's audience.
	ErrReplyAddsRecipients = errors.New("handlers: can't add more recipients")
)

// Activity is the decoded JSON body handlers operate on, plus the
// is_authenticated verdict receiver.Receive already computed.
type Activity struct {
	Body            map[string]interface{}
	IsAuthenticated bool
}

// Context bundles the collaborators every handler may need. Individual
// handlers use only the members relevant to them; Store and Fetch are
// the two seams that make handlers unit-testable without a database or
// network.
type Context struct {
	Store Store
	Fetch Fetcher
	// IsLocalOrigin reports whether an id string names this instance.
	IsLocalOrigin func(id string) bool
	// LocalObjectID extracts the local numeric/opaque object id from a
	// local id string, or false if id does not belong to this instance.
	LocalObjectID func(id string) (string, bool)
	// Now returns the current time; overridable in tests.
	Now func() int64
}

// Dispatch runs the handler matching kind, per spec §4.5. A nil
// Descriptor with a nil error means the activity was recognized but
// intentionally ignored (duplicate, already-processed, unsupported
// inner kind of a wrapped Announce, ...).
func Dispatch(ctx Context, kind string, act Activity) (*Descriptor, error) {
	switch kind {
	case "Create":
		return HandleCreate(ctx, act, false)
	case "Update":
		return HandleUpdate(ctx, act)
	case "Delete":
		return HandleDelete(ctx, act)
	case "Follow":
		return HandleFollow(ctx, act)
	case "Accept":
		return HandleAccept(ctx, act)
	case "Reject":
		return HandleReject(ctx, act)
	case "Undo":
		return HandleUndo(ctx, act)
	case "Announce":
		return HandleAnnounce(ctx, act)
	case "Like":
		return HandleReaction(ctx, act, "Like")
	case "EmojiReact":
		return HandleReaction(ctx, act, "EmojiReact")
	case "Add":
		return HandleAdd(ctx, act)
	case "Remove":
		return HandleRemove(ctx, act)
	case "Move":
		return HandleMove(ctx, act)
	case "Offer":
		return HandleOffer(ctx, act)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedActivity, kind)
	}
}

// stringField reads a string key, also accepting an embedded object's id.
func stringField(body map[string]interface{}, key string) (string, bool) {
	switch v := body[key].(type) {
	case string:
		return v, v != ""
	case map[string]interface{}:
		id, ok := v["id"].(string)
		return id, ok && id != ""
	}
	return "", false
}

// objectBody returns the raw value of key as a map, dereferencing
// through a bare id string only insofar as reporting it isn't embedded.
func objectBody(body map[string]interface{}, key string) (map[string]interface{}, bool) {
	m, ok := body[key].(map[string]interface{})
	return m, ok
}

func isActivity(body map[string]interface{}) bool {
	t, _ := body["type"].(string)
	switch t {
	case "Create", "Update", "Delete", "Follow", "Accept", "Reject", "Undo",
		"Announce", "Like", "Dislike", "EmojiReact", "Add", "Remove", "Move", "Offer":
		return true
	}
	return false
}
