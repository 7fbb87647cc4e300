package handlers

import "testing"

func testContext(store *fakeStore, fetch *fakeFetcher) Context {
	var f Fetcher
	if fetch != nil {
		f = fetch
	}
	return Context{
		Store:         store,
		Fetch:         f,
		IsLocalOrigin: func(id string) bool { return false },
	}
}

func TestHandleCreateInsertsPost(t *testing.T) {
	store := newFakeStore()
	ctx := testContext(store, nil)
	body := map[string]interface{}{
		"type":  "Create",
		"actor": "https://remote.example/users/alice",
		"object": map[string]interface{}{
			"type":    "Note",
			"id":      "https://remote.example/objects/1",
			"content": "hello",
			"to":      []interface{}{"https://www.w3.org/ns/activitystreams#Public"},
		},
	}
	desc, err := HandleCreate(ctx, Activity{Body: body}, false)
	if err != nil {
		t.Fatal(err)
	}
	if desc == nil || desc.Object != "Note" {
		t.Fatalf("expected Create(Note), got %v", desc)
	}
	p, found, _ := store.GetRemotePostByObjectID("https://remote.example/objects/1")
	if !found || !p.IsPublic() {
		t.Fatalf("expected post to be stored as public, got %+v found=%v", p, found)
	}
}

func TestHandleCreateIsIdempotent(t *testing.T) {
	store := newFakeStore()
	store.posts["https://remote.example/objects/1"] = Post{ID: "https://remote.example/objects/1"}
	ctx := testContext(store, nil)
	body := map[string]interface{}{
		"type":   "Create",
		"actor":  "https://remote.example/users/alice",
		"object": map[string]interface{}{"type": "Note", "id": "https://remote.example/objects/1"},
	}
	desc, err := HandleCreate(ctx, Activity{Body: body}, false)
	if err != nil || desc != nil {
		t.Fatalf("expected a silent no-op, got desc=%v err=%v", desc, err)
	}
}

func TestHandleCreateFetchesUnknownInReplyTo(t *testing.T) {
	store := newFakeStore()
	fetch := &fakeFetcher{objects: map[string]map[string]interface{}{
		"https://remote.example/objects/parent": {
			"type": "Note", "id": "https://remote.example/objects/parent", "content": "parent",
		},
	}}
	ctx := testContext(store, fetch)
	body := map[string]interface{}{
		"type":  "Create",
		"actor": "https://remote.example/users/alice",
		"object": map[string]interface{}{
			"type":      "Note",
			"id":        "https://remote.example/objects/reply",
			"content":   "reply",
			"inReplyTo": "https://remote.example/objects/parent",
		},
	}
	_, err := HandleCreate(ctx, Activity{Body: body}, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, found, _ := store.GetRemotePostByObjectID("https://remote.example/objects/parent"); !found {
		t.Fatal("expected the parent to have been fetched and stored")
	}
	reply, found, _ := store.GetRemotePostByObjectID("https://remote.example/objects/reply")
	if !found || reply.InReplyToID != "https://remote.example/objects/parent" {
		t.Fatalf("expected reply to reference its parent, got %+v", reply)
	}
}

func TestHandleCreateRejectsReplyThatAddsRecipients(t *testing.T) {
	store := newFakeStore()
	parentID := "https://remote.example/objects/parent"
	store.posts[parentID] = Post{
		ID:         parentID,
		AuthorID:   "https://remote.example/users/p",
		Visibility: VisibilityDirect,
		Mentions:   []string{"https://remote.example/users/x", "https://remote.example/users/y"},
	}
	ctx := testContext(store, nil)

	rejected := map[string]interface{}{
		"type":  "Create",
		"actor": "https://remote.example/users/y",
		"object": map[string]interface{}{
			"type":      "Note",
			"id":        "https://remote.example/objects/reply-reject",
			"content":   "reply",
			"inReplyTo": parentID,
			"to": []interface{}{
				"https://remote.example/users/x", "https://remote.example/users/z",
			},
		},
	}
	if _, err := HandleCreate(ctx, Activity{Body: rejected}, false); err != ErrReplyAddsRecipients {
		t.Fatalf("expected ErrReplyAddsRecipients, got %v", err)
	}

	accepted := map[string]interface{}{
		"type":  "Create",
		"actor": "https://remote.example/users/y",
		"object": map[string]interface{}{
			"type":      "Note",
			"id":        "https://remote.example/objects/reply-accept",
			"content":   "reply",
			"inReplyTo": parentID,
			"to": []interface{}{
				"https://remote.example/users/x", "https://remote.example/users/p",
			},
		},
	}
	desc, err := HandleCreate(ctx, Activity{Body: accepted}, false)
	if err != nil || desc == nil {
		t.Fatalf("expected the narrower reply to be accepted, got desc=%v err=%v", desc, err)
	}
}

func TestHandleFollowAutoAccepts(t *testing.T) {
	store := newFakeStore()
	store.autoAccept["https://local.example/users/bob"] = true
	ctx := testContext(store, nil)
	body := map[string]interface{}{
		"id":     "https://remote.example/activities/1",
		"type":   "Follow",
		"actor":  "https://remote.example/users/alice",
		"object": "https://local.example/users/bob",
	}
	desc, err := HandleFollow(ctx, Activity{Body: body, IsAuthenticated: true})
	if err != nil || desc == nil {
		t.Fatalf("expected Follow to succeed, got desc=%v err=%v", desc, err)
	}
	fr, found, _ := store.GetFollowRequest("https://remote.example/users/alice", "https://local.example/users/bob")
	if !found || fr.State != "accepted" {
		t.Fatalf("expected auto-accepted follow, got %+v", fr)
	}
}

func TestHandleFollowRejectsUnauthenticated(t *testing.T) {
	ctx := testContext(newFakeStore(), nil)
	body := map[string]interface{}{
		"id":     "https://remote.example/activities/1",
		"type":   "Follow",
		"actor":  "https://remote.example/users/alice",
		"object": "https://local.example/users/bob",
	}
	_, err := HandleFollow(ctx, Activity{Body: body, IsAuthenticated: false})
	if err != ErrUnauthenticated {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestHandleUndoRemovesFollow(t *testing.T) {
	store := newFakeStore()
	store.follows["https://remote.example/activities/1"] = FollowRequest{
		ID: "https://remote.example/activities/1", SourceActor: "https://remote.example/users/alice",
		TargetActor: "https://local.example/users/bob", State: "accepted",
	}
	store.followByPair["https://remote.example/users/alice|https://local.example/users/bob"] = "https://remote.example/activities/1"
	ctx := testContext(store, nil)
	body := map[string]interface{}{
		"type":  "Undo",
		"actor": "https://remote.example/users/alice",
		"object": map[string]interface{}{
			"type": "Follow", "actor": "https://remote.example/users/alice", "object": "https://local.example/users/bob",
		},
	}
	desc, err := HandleUndo(ctx, Activity{Body: body, IsAuthenticated: true})
	if err != nil || desc == nil {
		t.Fatalf("expected Undo(Follow), got desc=%v err=%v", desc, err)
	}
	if _, found, _ := store.GetFollowRequest("https://remote.example/users/alice", "https://local.example/users/bob"); found {
		t.Fatal("expected the follow to be removed")
	}
}

func TestHandlePlainAnnounceCreatesRepost(t *testing.T) {
	store := newFakeStore()
	store.posts["https://remote.example/objects/1"] = Post{ID: "https://remote.example/objects/1", Visibility: VisibilityPublic}
	ctx := testContext(store, nil)
	body := map[string]interface{}{
		"id":     "https://remote.example/activities/announce/1",
		"type":   "Announce",
		"actor":  "https://remote.example/users/carol",
		"object": "https://remote.example/objects/1",
	}
	desc, err := HandleAnnounce(ctx, Activity{Body: body, IsAuthenticated: true})
	if err != nil || desc == nil {
		t.Fatalf("expected Announce(Object), got desc=%v err=%v", desc, err)
	}
	if _, found, _ := store.GetRemoteRepostByActivityID("https://remote.example/activities/announce/1"); !found {
		t.Fatal("expected a repost row to be created")
	}
}

func TestHandlePlainAnnounceRejectsPrivatePost(t *testing.T) {
	store := newFakeStore()
	store.posts["https://remote.example/objects/1"] = Post{ID: "https://remote.example/objects/1", Visibility: VisibilityDirect}
	ctx := testContext(store, nil)
	body := map[string]interface{}{
		"id":     "https://remote.example/activities/announce/2",
		"type":   "Announce",
		"actor":  "https://remote.example/users/carol",
		"object": "https://remote.example/objects/1",
	}
	_, err := HandleAnnounce(ctx, Activity{Body: body, IsAuthenticated: true})
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for a private post, got %v", err)
	}
}

func TestHandleWrappedAnnounceToleratesUnfetchableCrossOrigin(t *testing.T) {
	store := newFakeStore()
	store.actors["https://group.example/group"] = true
	ctx := testContext(store, nil)
	body := map[string]interface{}{
		"id":    "https://group.example/activities/announce/1",
		"type":  "Announce",
		"actor": "https://group.example/group",
		"object": map[string]interface{}{
			"id":    "https://remote.example/activities/create/1",
			"type":  "Create",
			"actor": "https://remote.example/users/dave",
			"object": map[string]interface{}{
				"type": "Note", "id": "https://remote.example/objects/2", "content": "hi",
				"to": []interface{}{"https://www.w3.org/ns/activitystreams#Public"},
			},
		},
	}
	// The inner activity's origin (remote.example) differs from the
	// Announce's own origin (group.example), so this exercises the
	// fetch path; without a Fetcher configured, that path tolerates the
	// failure and returns a nil Descriptor rather than an error.
	desc, err := HandleAnnounce(ctx, Activity{Body: body, IsAuthenticated: true})
	if err != nil {
		t.Fatal(err)
	}
	if desc != nil {
		t.Fatalf("expected a tolerated no-op without a fetcher, got %v", desc)
	}
}

func TestHandleWrappedAnnounceCreateViaEmbedding(t *testing.T) {
	store := newFakeStore()
	store.actors["https://group.example/group"] = true
	ctx := testContext(store, nil)
	body := map[string]interface{}{
		"id":    "https://group.example/activities/announce/2",
		"type":  "Announce",
		"actor": "https://group.example/group",
		"object": map[string]interface{}{
			"id":    "https://group.example/activities/create/1",
			"type":  "Create",
			"actor": "https://remote.example/users/dave",
			"object": map[string]interface{}{
				"type": "Note", "id": "https://remote.example/objects/3", "content": "hi",
				"to": []interface{}{"https://www.w3.org/ns/activitystreams#Public"},
			},
		},
	}
	desc, err := HandleAnnounce(ctx, Activity{Body: body, IsAuthenticated: true})
	if err != nil || desc == nil || desc.Object != "Create" {
		t.Fatalf("expected Announce(Create), got desc=%v err=%v", desc, err)
	}
	if _, found, _ := store.GetRemotePostByObjectID("https://remote.example/objects/3"); !found {
		t.Fatal("expected the embedded Note to have been stored")
	}
	if _, found, _ := store.GetRepostByAuthor("https://remote.example/objects/3", "https://group.example/group"); !found {
		t.Fatal("expected a group repost to have been created for the top-level embedded Note")
	}
}

func TestHandleWrappedAnnounceIgnoresUnsupportedInnerKind(t *testing.T) {
	store := newFakeStore()
	ctx := testContext(store, nil)
	body := map[string]interface{}{
		"id":    "https://group.example/activities/announce/3",
		"type":  "Announce",
		"actor": "https://group.example/group",
		"object": map[string]interface{}{
			"id": "https://group.example/activities/follow/1", "type": "Follow",
			"actor": "https://remote.example/users/dave", "object": "https://group.example/group",
		},
	}
	desc, err := HandleAnnounce(ctx, Activity{Body: body, IsAuthenticated: true})
	if err != nil || desc != nil {
		t.Fatalf("expected a silent ignore for an unsupported inner kind, got desc=%v err=%v", desc, err)
	}
}

func TestHandleMoveRequiresMutualAlias(t *testing.T) {
	store := newFakeStore()
	store.aliases["https://remote.example/users/old|https://remote.example/users/new"] = true
	ctx := testContext(store, nil)
	body := map[string]interface{}{
		"type": "Move", "actor": "https://remote.example/users/old", "object": "https://remote.example/users/new",
	}
	_, err := HandleMove(ctx, Activity{Body: body, IsAuthenticated: true})
	if err != ErrUnauthenticated {
		t.Fatalf("expected ErrUnauthenticated for a one-directional alias, got %v", err)
	}

	store.aliases["https://remote.example/users/new|https://remote.example/users/old"] = true
	desc, err := HandleMove(ctx, Activity{Body: body, IsAuthenticated: true})
	if err != nil || desc == nil {
		t.Fatalf("expected Move to succeed once the alias is mutual, got desc=%v err=%v", desc, err)
	}
	if store.moveNotices != 1 {
		t.Fatalf("expected one move notification, got %d", store.moveNotices)
	}
}

func TestHandleOfferCreatesInvoice(t *testing.T) {
	store := newFakeStore()
	ctx := testContext(store, nil)
	body := map[string]interface{}{
		"type":  "Offer",
		"actor": "https://local.example/users/payer",
		"to":    "https://remote.example/users/seller",
		"object": map[string]interface{}{
			"type": "Agreement",
			"stipulates": map[string]interface{}{
				"type": "Commitment", "satisfies": "https://remote.example/proposals/1#primary",
			},
			"stipulatesReciprocal": map[string]interface{}{
				"type": "Commitment", "satisfies": "https://remote.example/proposals/1#reciprocal",
			},
		},
	}
	desc, err := HandleOffer(ctx, Activity{Body: body, IsAuthenticated: true})
	if err != nil || desc == nil {
		t.Fatalf("expected Offer(Agreement), got desc=%v err=%v", desc, err)
	}
	if !store.invoices["https://remote.example/proposals/1"] {
		t.Fatal("expected an invoice linked to the proposal id")
	}
}
