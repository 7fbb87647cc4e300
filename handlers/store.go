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

// Visibility is spec §3's Object.visibility enum, widest audience first.
type Visibility string

const (
	VisibilityPublic       Visibility = "public"
	VisibilityFollowers    Visibility = "followers"
	VisibilitySubscribers  Visibility = "subscribers"
	VisibilityDirect       Visibility = "direct"
	VisibilityConversation Visibility = "conversation"
)

// visibilityRank orders Visibility from widest audience to narrowest; ties
// (Direct and Conversation are both bounded to an explicit mention list)
// share a rank. Used by validateReply's narrowing check.
var visibilityRank = map[Visibility]int{
	VisibilityPublic:       4,
	VisibilityFollowers:    3,
	VisibilitySubscribers:  2,
	VisibilityDirect:       1,
	VisibilityConversation: 1,
}

// Post is the subset of a stored object handlers read and write.
type Post struct {
	ID          string
	AuthorID    string
	Visibility  Visibility
	Mentions    []string // actor ids individually addressed in to/cc
	InReplyToID string
	Content     string
}

// IsPublic reports whether p is addressed to the Public collection.
func (p Post) IsPublic() bool {
	return p.Visibility == VisibilityPublic
}

// FollowRequest mirrors spec §4.5's Follow/Accept/Reject state.
type FollowRequest struct {
	ID           string
	SourceActor  string
	TargetActor  string
	State        string // "pending", "accepted" ("Follow"), "rejected"
}

// Reaction is a Like/EmojiReact record, unique per (actor, post, content).
type Reaction struct {
	ActorID string
	PostID  string
	Content string
}

// Store is the persistence seam every handler operates through. A real
// implementation backs this with the same SqlDialect-driven prepared
// statements the rest of this module uses; tests use an in-memory fake.
type Store interface {
	// Posts
	GetPostByID(id string) (Post, bool, error)
	GetRemotePostByObjectID(objectID string) (Post, bool, error)
	CreatePost(p Post) (Post, error)
	UpdatePost(p Post) error
	DeletePost(id string) error

	// Reposts (Announce)
	GetRemoteRepostByActivityID(activityID string) (Post, bool, error)
	GetRepostByAuthor(postID, authorID string) (Post, bool, error)
	CreateRepost(authorID, postID, activityID string) (Post, error)
	DeleteRepost(id string) error

	// Reactions
	GetReaction(actorID, postID, content string) (Reaction, bool, error)
	CreateReaction(r Reaction) error
	DeleteReaction(actorID, postID string) error

	// Follows
	GetFollowRequestByActivityID(activityID string) (FollowRequest, bool, error)
	GetFollowRequest(sourceActor, targetActor string) (FollowRequest, bool, error)
	CreateFollowRequest(f FollowRequest) (FollowRequest, error)
	SetFollowRequestState(id, state string) error
	DeleteFollow(sourceActor, targetActor string) error
	AutoAccepts(targetActor string) (bool, error)

	// Actors
	ResolveActor(id string) (actorExists bool, err error)
	ActorAliasesBidirectionally(fromActor, toActor string) (bool, error)
	MigrateFollowers(fromActor, toActor string) (migrated int, err error)
	RecordMoveNotification(fromActor, toActor string) error

	// Collections (followers/subscribers/featured/conversation)
	AddToCollection(collection, actorOrOwner, itemID string) error
	RemoveFromCollection(collection, actorOrOwner, itemID string) error

	// Payment proposals (FEP-0837)
	CreateInvoice(proposalID, payerActor, receiverActor string, proposalIntents map[string]string) error
}

// Fetcher is the subset of fetcher.Fetcher handlers need: resolving an
// id they don't have a local copy of yet.
type Fetcher interface {
	FetchObject(id string) (map[string]interface{}, error)
	FetchActivity(id string) (map[string]interface{}, error)
}
