package handlers

import "fmt"

type fakeStore struct {
	posts          map[string]Post
	reposts        map[string]Post // keyed by activity id
	repostsByOwner map[string]string // postID+"|"+authorID -> repost activity id
	reactions      map[string]Reaction
	follows        map[string]FollowRequest // keyed by activity id
	followByPair   map[string]string        // source+"|"+target -> activity id
	autoAccept     map[string]bool
	actors         map[string]bool
	aliases        map[string]bool // "from|to" mutual alias set
	collections    map[string]bool // collection+"|"+owner+"|"+item
	invoices       map[string]bool
	moveNotices    int
	migratedCount  int
}

var _ Store = (*fakeStore)(nil)
var _ Fetcher = (*fakeFetcher)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		posts:          map[string]Post{},
		reposts:        map[string]Post{},
		repostsByOwner: map[string]string{},
		reactions:      map[string]Reaction{},
		follows:        map[string]FollowRequest{},
		followByPair:   map[string]string{},
		autoAccept:     map[string]bool{},
		actors:         map[string]bool{},
		aliases:        map[string]bool{},
		collections:    map[string]bool{},
		invoices:       map[string]bool{},
	}
}

func (s *fakeStore) GetPostByID(id string) (Post, bool, error) {
	p, ok := s.posts[id]
	return p, ok, nil
}
func (s *fakeStore) GetRemotePostByObjectID(id string) (Post, bool, error) {
	p, ok := s.posts[id]
	return p, ok, nil
}
func (s *fakeStore) CreatePost(p Post) (Post, error) {
	if _, exists := s.posts[p.ID]; exists {
		return Post{}, fmt.Errorf("post already exists")
	}
	s.posts[p.ID] = p
	return p, nil
}
func (s *fakeStore) UpdatePost(p Post) error {
	s.posts[p.ID] = p
	return nil
}
func (s *fakeStore) DeletePost(id string) error {
	delete(s.posts, id)
	return nil
}

func (s *fakeStore) GetRemoteRepostByActivityID(activityID string) (Post, bool, error) {
	p, ok := s.reposts[activityID]
	return p, ok, nil
}
func (s *fakeStore) GetRepostByAuthor(postID, authorID string) (Post, bool, error) {
	actID, ok := s.repostsByOwner[postID+"|"+authorID]
	if !ok {
		return Post{}, false, nil
	}
	p, ok := s.reposts[actID]
	return p, ok, nil
}
func (s *fakeStore) CreateRepost(authorID, postID, activityID string) (Post, error) {
	key := postID + "|" + authorID
	if _, exists := s.repostsByOwner[key]; exists {
		return Post{}, fmt.Errorf("repost already exists")
	}
	p := Post{ID: activityID, AuthorID: authorID, Visibility: VisibilityPublic}
	s.reposts[activityID] = p
	s.repostsByOwner[key] = activityID
	return p, nil
}
func (s *fakeStore) DeleteRepost(id string) error {
	delete(s.reposts, id)
	return nil
}

func (s *fakeStore) GetReaction(actorID, postID, content string) (Reaction, bool, error) {
	r, ok := s.reactions[actorID+"|"+postID+"|"+content]
	return r, ok, nil
}
func (s *fakeStore) CreateReaction(r Reaction) error {
	s.reactions[r.ActorID+"|"+r.PostID+"|"+r.Content] = r
	return nil
}
func (s *fakeStore) DeleteReaction(actorID, postID string) error {
	for k, r := range s.reactions {
		if r.ActorID == actorID && r.PostID == postID {
			delete(s.reactions, k)
		}
	}
	return nil
}

func (s *fakeStore) GetFollowRequestByActivityID(activityID string) (FollowRequest, bool, error) {
	f, ok := s.follows[activityID]
	return f, ok, nil
}
func (s *fakeStore) GetFollowRequest(sourceActor, targetActor string) (FollowRequest, bool, error) {
	id, ok := s.followByPair[sourceActor+"|"+targetActor]
	if !ok {
		return FollowRequest{}, false, nil
	}
	f, ok := s.follows[id]
	return f, ok, nil
}
func (s *fakeStore) CreateFollowRequest(f FollowRequest) (FollowRequest, error) {
	s.follows[f.ID] = f
	s.followByPair[f.SourceActor+"|"+f.TargetActor] = f.ID
	return f, nil
}
func (s *fakeStore) SetFollowRequestState(id, state string) error {
	f := s.follows[id]
	f.State = state
	s.follows[id] = f
	return nil
}
func (s *fakeStore) DeleteFollow(sourceActor, targetActor string) error {
	id, ok := s.followByPair[sourceActor+"|"+targetActor]
	if ok {
		delete(s.follows, id)
		delete(s.followByPair, sourceActor+"|"+targetActor)
	}
	return nil
}
func (s *fakeStore) AutoAccepts(targetActor string) (bool, error) {
	return s.autoAccept[targetActor], nil
}

func (s *fakeStore) ResolveActor(id string) (bool, error) {
	return s.actors[id], nil
}
func (s *fakeStore) ActorAliasesBidirectionally(fromActor, toActor string) (bool, error) {
	return s.aliases[fromActor+"|"+toActor] && s.aliases[toActor+"|"+fromActor], nil
}
func (s *fakeStore) MigrateFollowers(fromActor, toActor string) (int, error) {
	s.migratedCount++
	return s.migratedCount, nil
}
func (s *fakeStore) RecordMoveNotification(fromActor, toActor string) error {
	s.moveNotices++
	return nil
}

func (s *fakeStore) AddToCollection(collection, owner, item string) error {
	s.collections[collection+"|"+owner+"|"+item] = true
	return nil
}
func (s *fakeStore) RemoveFromCollection(collection, owner, item string) error {
	delete(s.collections, collection+"|"+owner+"|"+item)
	return nil
}

func (s *fakeStore) CreateInvoice(proposalID, payer, receiver string, intents map[string]string) error {
	s.invoices[proposalID] = true
	return nil
}

type fakeFetcher struct {
	objects    map[string]map[string]interface{}
	activities map[string]map[string]interface{}
}

func (f *fakeFetcher) FetchObject(id string) (map[string]interface{}, error) {
	o, ok := f.objects[id]
	if !ok {
		return nil, fmt.Errorf("not found: %s", id)
	}
	return o, nil
}
func (f *fakeFetcher) FetchActivity(id string) (map[string]interface{}, error) {
	a, ok := f.activities[id]
	if !ok {
		return nil, fmt.Errorf("not found: %s", id)
	}
	return a, nil
}
