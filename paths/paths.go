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

// Package paths derives the local identifier shapes of spec §4.1: for
// every local resource kind (actor, object, collection, key), it can
// produce both the conventional HTTP form and the portable ap://<did>/...
// mirror rooted at the instance's own DID.
package paths

import (
	"fmt"
	"strings"

	"github.com/relaysocial/apcore/urls"
)

// Kind enumerates the known local resource shapes.
type Kind int

const (
	ActorKind Kind = iota
	InstanceActorKind
	InboxKind
	OutboxKind
	FollowersKind
	FollowingKind
	SubscribersKind
	FeaturedKind
	ObjectKind
	ObjectRepliesKind
	RsaKeyFragmentKind
	Ed25519KeyFragmentKind
)

const (
	RsaKeyFragment     = "main-key"
	Ed25519KeyFragment = "ed25519-key"
)

// Base identifies the instance this set of paths is rooted at: its HTTP
// origin (scheme+host) and, when the instance has a portable identity, its
// instance DID.
type Base struct {
	Scheme      string
	Host        string
	InstanceDid *urls.Did
}

func (b Base) httpBase() string {
	return b.Scheme + "://" + b.Host
}

// UserHTTPPath returns the conventional /users/<username> path.
func UserHTTPPath(username string) string {
	return "/users/" + username
}

// ActorHTTPURL builds the HTTP identifier of a local user actor.
func (b Base) ActorHTTPURL(username string) *urls.HttpURL {
	u, _ := urls.ParseHttpURL(b.httpBase() + UserHTTPPath(username))
	return u
}

// InstanceActorHTTPURL builds the HTTP identifier of the instance actor.
func (b Base) InstanceActorHTTPURL() *urls.HttpURL {
	u, _ := urls.ParseHttpURL(b.httpBase() + "/actor")
	return u
}

func collectionPath(username, sub string) string {
	return UserHTTPPath(username) + "/" + sub
}

// CollectionHTTPURL builds the HTTP identifier for one of a user's
// well-known collections (inbox, outbox, followers, following,
// subscribers, collections/featured).
func (b Base) CollectionHTTPURL(username string, k Kind) *urls.HttpURL {
	var sub string
	switch k {
	case InboxKind:
		sub = "inbox"
	case OutboxKind:
		sub = "outbox"
	case FollowersKind:
		sub = "followers"
	case FollowingKind:
		sub = "following"
	case SubscribersKind:
		sub = "subscribers"
	case FeaturedKind:
		sub = "collections/featured"
	default:
		panic(fmt.Sprintf("paths: not a collection kind: %v", k))
	}
	u, _ := urls.ParseHttpURL(b.httpBase() + collectionPath(username, sub))
	return u
}

// ObjectHTTPURL builds the HTTP identifier of a local object by its UUID.
func (b Base) ObjectHTTPURL(uuid string) *urls.HttpURL {
	u, _ := urls.ParseHttpURL(b.httpBase() + "/objects/" + uuid)
	return u
}

// ObjectRepliesHTTPURL builds the HTTP identifier of an object's replies
// collection.
func (b Base) ObjectRepliesHTTPURL(uuid string) *urls.HttpURL {
	u, _ := urls.ParseHttpURL(b.httpBase() + "/objects/" + uuid + "/replies")
	return u
}

// KeyFragmentURL appends the given key fragment ("main-key" or
// "ed25519-key") to an actor's HTTP identifier, e.g.
// https://host/users/alice#main-key.
func KeyFragmentURL(actor *urls.HttpURL, fragment string) *urls.HttpURL {
	c := *actor
	c.Fragment = fragment
	return &c
}

// ApMirror builds the ap://<instance-did>/<path> mirror of an HTTP path,
// adding a leading "/" when httpPath lacks one (ap:// paths must start
// with a single "/", never "//").
func (b Base) ApMirror(httpPath string) (*urls.ApURL, error) {
	if b.InstanceDid == nil {
		return nil, fmt.Errorf("paths: instance has no portable identity configured")
	}
	if !strings.HasPrefix(httpPath, "/") {
		httpPath = "/" + httpPath
	}
	return &urls.ApURL{Authority: *b.InstanceDid, Path: httpPath}, nil
}

// ActorApURL is the portable variant of ActorHTTPURL.
func (b Base) ActorApURL(username string) (*urls.ApURL, error) {
	return b.ApMirror(UserHTTPPath(username))
}

// IsUserPath reports whether path is exactly "/users/<name>" (2 segments
// once surrounding slashes are trimmed).
func IsUserPath(path string) bool {
	s := strings.Split(strings.Trim(path, "/"), "/")
	return len(s) == 2 && s[0] == "users"
}

// UsernameFromUserPath extracts <name> from "/users/<name>[...]".
func UsernameFromUserPath(path string) (string, error) {
	s := strings.Split(strings.Trim(path, "/"), "/")
	if len(s) < 2 || s[0] != "users" {
		return "", fmt.Errorf("paths: not a user path: %s", path)
	}
	return s[1], nil
}

// IsSubPath reports whether path is "/users/<name>/<sub>...".
func IsSubPath(path, sub string) bool {
	s := strings.Split(strings.Trim(path, "/"), "/")
	return len(s) > 2 && s[0] == "users" && s[2] == sub
}
