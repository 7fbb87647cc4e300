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

// HandleCreate implements spec §4.5's Create handler: validate the
// embedded object, resolve inReplyTo (fetching it, bounded, if unknown),
// and insert deduplicated by canonical id. The boolean argument (true
// from HandleAnnounce's FEP-1b12 path) is not used: the dedup check
// runs on every call.
func HandleCreate(ctx Context, act Activity, _ bool) (*Descriptor, error) {
	obj, ok := objectBody(act.Body, "object")
	if !ok {
		return nil, fmt.Errorf("handlers: Create without an embedded object")
	}
	objType, _ := obj["type"].(string)
	objID, _ := stringField(obj, "id")
	if objID == "" {
		return nil, fmt.Errorf("handlers: Create object has no id")
	}

	if existing, found, err := ctx.Store.GetRemotePostByObjectID(objID); err != nil {
		return nil, err
	} else if found {
		_ = existing
		return nil, nil // already known: idempotent no-op
	}

	authorID, _ := stringField(act.Body, "actor")
	if authorID == "" {
		authorID, _ = stringField(obj, "attributedTo")
	}

	visibility, mentions := inferVisibility(act.Body)
	if objVisibility, objMentions := inferVisibility(obj); visibilityRank[objVisibility] > visibilityRank[visibility] {
		visibility, mentions = objVisibility, objMentions
	} else if len(objMentions) > 0 {
		mentions = append(mentions, objMentions...)
	}

	var inReplyToID string
	if replyTo, ok := stringField(obj, "inReplyTo"); ok {
		resolved, err := resolveDependency(ctx, replyTo, 0)
		if err != nil {
			return nil, err
		}
		inReplyToID = resolved

		parent, found, err := ctx.Store.GetRemotePostByObjectID(inReplyToID)
		if err != nil {
			return nil, err
		}
		if found {
			if err := validateReply(parent, authorID, visibility, mentions); err != nil {
				return nil, err
			}
		}
	}

	content, _ := obj["content"].(string)
	_, err := ctx.Store.CreatePost(Post{
		ID:          objID,
		AuthorID:    authorID,
		Visibility:  visibility,
		Mentions:    mentions,
		InReplyToID: inReplyToID,
		Content:     content,
	})
	if err != nil {
		return nil, err
	}
	return object("Create", objType), nil
}

// validateReply enforces spec §3's narrowing invariant: a reply may not
// widen its parent's audience, and a reply to a non-public post may only
// mention actors already in the parent's audience (its author or one of
// its own mentions). sameAuthor relaxes the narrowing check, mirroring
// validate_reply's is_same_author parameter: an author replying to their
// own post is not "expanding" an audience they already control.
func validateReply(parent Post, authorID string, visibility Visibility, mentions []string) error {
	sameAuthor := authorID != "" && authorID == parent.AuthorID
	if !sameAuthor && visibilityRank[visibility] > visibilityRank[parent.Visibility] {
		return ErrReplyExpandsAudience
	}
	if parent.Visibility != VisibilityPublic && visibility != VisibilityPublic {
		allowed := map[string]bool{parent.AuthorID: true}
		for _, m := range parent.Mentions {
			allowed[m] = true
		}
		for _, m := range mentions {
			if !allowed[m] {
				return ErrReplyAddsRecipients
			}
		}
	}
	return nil
}

// resolveDependency ensures id is known locally, fetching it through
// ctx.Fetch when it is not, bounded by MaxRecursionDepth per spec §4.5's
// "Ordering & tie-breaks" rule.
func resolveDependency(ctx Context, id string, depth int) (string, error) {
	if depth >= MaxRecursionDepth {
		return "", &RecursionError{Id: id, Depth: depth}
	}
	if _, found, err := ctx.Store.GetRemotePostByObjectID(id); err != nil {
		return "", err
	} else if found {
		return id, nil
	}
	if ctx.Fetch == nil {
		return "", ErrNotFound
	}
	obj, err := ctx.Fetch.FetchObject(id)
	if err != nil {
		return "", fmt.Errorf("handlers: fetching dependency %s: %w", id, err)
	}
	var parentID string
	if replyTo, ok := stringField(obj, "inReplyTo"); ok {
		parentID, err = resolveDependency(ctx, replyTo, depth+1)
		if err != nil {
			return "", err
		}
	}
	content, _ := obj["content"].(string)
	authorID, _ := stringField(obj, "attributedTo")
	visibility, mentions := inferVisibility(obj)
	if _, err := ctx.Store.CreatePost(Post{
		ID:          id,
		AuthorID:    authorID,
		Visibility:  visibility,
		Mentions:    mentions,
		InReplyToID: parentID,
		Content:     content,
	}); err != nil {
		return "", err
	}
	return id, nil
}

// inferVisibility reads a body's to/cc addressing and reports its spec §3
// visibility plus the individually-mentioned actor ids (everyone addressed
// who isn't the Public collection or a followers/subscribers collection).
// The "context" field, used by Conversation-scoped replies, distinguishes
// Conversation from the otherwise-identical Direct case.
func inferVisibility(body map[string]interface{}) (Visibility, []string) {
	const publicURI = "https://www.w3.org/ns/activitystreams#Public"
	vis := VisibilityDirect
	if ctxID, ok := stringField(body, "context"); ok && ctxID != "" {
		vis = VisibilityConversation
	}
	var mentions []string
	for _, a := range addressees(body) {
		switch {
		case a == publicURI:
			vis = VisibilityPublic
		case strings.HasSuffix(a, "/followers"):
			if visibilityRank[VisibilityFollowers] > visibilityRank[vis] {
				vis = VisibilityFollowers
			}
		case strings.HasSuffix(a, "/subscribers"):
			if visibilityRank[VisibilitySubscribers] > visibilityRank[vis] {
				vis = VisibilitySubscribers
			}
		default:
			mentions = append(mentions, a)
		}
	}
	return vis, mentions
}

// addressees flattens a body's to and cc fields, each of which may be a
// bare string or a list of strings, into one slice.
func addressees(body map[string]interface{}) []string {
	var out []string
	collect := func(v interface{}) {
		switch t := v.(type) {
		case string:
			if t != "" {
				out = append(out, t)
			}
		case []interface{}:
			for _, e := range t {
				if s, ok := e.(string); ok && s != "" {
					out = append(out, s)
				}
			}
		}
	}
	collect(body["to"])
	collect(body["cc"])
	return out
}
