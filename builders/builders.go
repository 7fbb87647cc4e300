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

// Package builders constructs outgoing JSON-LD activity documents as
// plain map[string]interface{} values, the way a dynamically-typed
// serializer would, rather than through go-fed/activity's generated
// vocabulary types: every builder here sets exactly the fields spec
// §4.5/§6 name and nothing more.
package builders

// Document is an outgoing JSON-LD activity or object, always carrying
// the standard @context as its first key.
type Document map[string]interface{}

// StandardContext is spec §6's "ActivityStreams document shape": the
// three well-known context documents plus the extension term map
// (ValueFlows, units-of-measure, Hashtag/sensitive/Emoji/EmojiReact,
// Multikey).
func StandardContext() []interface{} {
	return []interface{}{
		"https://www.w3.org/ns/activitystreams",
		"https://w3id.org/security/v1",
		"https://w3id.org/security/data-integrity/v1",
		map[string]interface{}{
			"Hashtag":              "as:Hashtag",
			"sensitive":            "as:sensitive",
			"toot":                 "http://joinmastodon.org/ns#",
			"Emoji":                "toot:Emoji",
			"litepub":              "http://litepub.social/ns#",
			"EmojiReact":           "litepub:EmojiReact",
			"Multikey":             "https://w3id.org/security#Multikey",
			"vf":                   "https://w3id.org/valueflows/ont/vf#",
			"om2":                  "http://www.ontology-of-units-of-measure.org/resource/om-2/",
			"Proposal":             "vf:Proposal",
			"Intent":               "vf:Intent",
			"purpose":              "vf:purpose",
			"publishes":            "vf:publishes",
			"reciprocal":           "vf:reciprocal",
			"unitBased":            "vf:unitBased",
			"action":               "vf:action",
			"Agreement":            "vf:Agreement",
			"stipulates":           "vf:stipulates",
			"stipulatesReciprocal": "vf:stipulatesReciprocal",
			"Commitment":           "vf:Commitment",
			"satisfies":            "vf:satisfies",
			"resourceConformsTo":   "vf:resourceConformsTo",
			"resourceQuantity":     "vf:resourceQuantity",
			"minimumQuantity":      "vf:minimumQuantity",
			"hasUnit":              "om2:hasUnit",
			"hasNumericalValue":    "om2:hasNumericalValue",
		},
	}
}

func base(activityType, id, actor string) Document {
	return Document{
		"@context": StandardContext(),
		"type":     activityType,
		"id":       id,
		"actor":    actor,
	}
}

// Create wraps object in a Create activity addressed to to/cc.
func Create(id, actor string, object Document, to, cc []string) Document {
	d := base("Create", id, actor)
	d["object"] = object
	addAudience(d, to, cc)
	return d
}

// Update wraps object (already containing its full replacement fields)
// in an Update activity.
func Update(id, actor string, object Document, to, cc []string) Document {
	d := base("Update", id, actor)
	d["object"] = object
	addAudience(d, to, cc)
	return d
}

// Delete targets objectID for deletion. A Tombstone is used when the
// caller wants to advertise the former type, matching the conventional
// ActivityPub shape for deletions of known objects.
func Delete(id, actor, objectID string, formerType string) Document {
	d := base("Delete", id, actor)
	if formerType != "" {
		d["object"] = Document{
			"id":   objectID,
			"type": "Tombstone",
			"formerType": formerType,
		}
	} else {
		d["object"] = objectID
	}
	return d
}

// Follow requests actor follow targetActorID.
func Follow(id, actor, targetActorID string) Document {
	d := base("Follow", id, actor)
	d["object"] = targetActorID
	d["to"] = []string{targetActorID}
	return d
}

// Accept accepts the Follow (or other) activity identified by
// followActivityID, sent by actor (the original follow target).
func Accept(id, actor, followActivityID, to string) Document {
	d := base("Accept", id, actor)
	d["object"] = followActivityID
	d["to"] = []string{to}
	return d
}

// Reject rejects the Follow (or other) activity identified by
// followActivityID.
func Reject(id, actor, followActivityID, to string) Document {
	d := base("Reject", id, actor)
	d["object"] = followActivityID
	d["to"] = []string{to}
	return d
}

// Undo wraps a previously-sent activity (referenced by its id) to
// retract it: Undo(Follow), Undo(Like), Undo(Announce).
func Undo(id, actor, undoneActivityID string, to []string) Document {
	d := base("Undo", id, actor)
	d["object"] = undoneActivityID
	if len(to) > 0 {
		d["to"] = to
	}
	return d
}

// Announce reposts objectID to the public timeline (plain form, not the
// FEP-1b12 wrapped/group-forwarding shape, which handlers builds ad hoc
// by embedding the inner activity document directly as "object").
func Announce(id, actor, objectID string, to, cc []string) Document {
	d := base("Announce", id, actor)
	d["object"] = objectID
	addAudience(d, to, cc)
	return d
}

// Like records a reaction to objectID. content is empty for a plain
// Like and the grapheme/shortcode for an EmojiReact (activityType
// "Like" or "EmojiReact").
func Like(activityType, id, actor, objectID, content string) Document {
	d := base(activityType, id, actor)
	d["object"] = objectID
	if content != "" {
		d["content"] = content
	}
	return d
}

// Add adds objectID to targetCollectionID (followers/subscribers/
// featured/a conversation collection).
func Add(id, actor, objectID, targetCollectionID string) Document {
	d := base("Add", id, actor)
	d["object"] = objectID
	d["target"] = targetCollectionID
	return d
}

// Remove removes objectID from targetCollectionID.
func Remove(id, actor, objectID, targetCollectionID string) Document {
	d := base("Remove", id, actor)
	d["object"] = objectID
	d["target"] = targetCollectionID
	return d
}

// Move announces that fromActorID's followers should now follow actor
// (the new, toActorID identity), with fromActorID as "object" and
// toActorID as "target". This is the outgoing activity a moving actor
// sends; handlers.HandleMove reads a different shape (the moving actor
// from "actor", the new identity from "object") and ignores "target".
func Move(id, actor, fromActorID, toActorID string) Document {
	d := base("Move", id, actor)
	d["object"] = fromActorID
	d["target"] = toActorID
	d["to"] = []string{"https://www.w3.org/ns/activitystreams#Public"}
	return d
}

func addAudience(d Document, to, cc []string) {
	if len(to) > 0 {
		d["to"] = to
	}
	if len(cc) > 0 {
		d["cc"] = cc
	}
}
