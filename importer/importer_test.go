package importer

import (
	"errors"
	"testing"
)

type fakeStore struct {
	actors  map[string]Actor
	objects map[string]map[string]interface{}
	keyCalls map[string][]Key
	propagated []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		actors:   map[string]Actor{},
		objects:  map[string]map[string]interface{}{},
		keyCalls: map[string][]Key{},
	}
}

func (s *fakeStore) GetActor(id string) (Actor, bool, error) {
	a, ok := s.actors[id]
	return a, ok, nil
}
func (s *fakeStore) UpsertActor(a Actor) error {
	s.actors[a.ID] = a
	return nil
}
func (s *fakeStore) ReplaceActorKeys(actorID string, keys []Key) error {
	s.keyCalls[actorID] = keys
	return nil
}
func (s *fakeStore) PropagateRelationships(actorID string) error {
	s.propagated = append(s.propagated, actorID)
	return nil
}
func (s *fakeStore) GetObject(id string) (map[string]interface{}, bool, error) {
	o, ok := s.objects[id]
	return o, ok, nil
}
func (s *fakeStore) UpsertObject(id string, obj map[string]interface{}) error {
	s.objects[id] = obj
	return nil
}

type fakeFetch struct {
	actors      map[string]map[string]interface{}
	objects     map[string]map[string]interface{}
	collections map[string][]string
}

func (f *fakeFetch) FetchActor(id string) (map[string]interface{}, error) {
	a, ok := f.actors[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return a, nil
}
func (f *fakeFetch) FetchObject(id string) (map[string]interface{}, error) {
	o, ok := f.objects[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return o, nil
}
func (f *fakeFetch) FetchCollectionPage(id string) ([]string, string, error) {
	items, ok := f.collections[id]
	if !ok {
		return nil, "", errors.New("not found")
	}
	return items, "", nil
}

var _ Store = (*fakeStore)(nil)
var _ Fetcher = (*fakeFetch)(nil)

func TestImportActorUpsertsProfileAndKeys(t *testing.T) {
	store := newFakeStore()
	fetch := &fakeFetch{actors: map[string]map[string]interface{}{
		"https://remote.example/users/alice": {
			"id":    "https://remote.example/users/alice",
			"inbox": "https://remote.example/users/alice/inbox",
			"endpoints": map[string]interface{}{
				"sharedInbox": "https://remote.example/inbox",
			},
			"publicKey": map[string]interface{}{
				"id": "https://remote.example/users/alice#main-key", "type": "Key",
				"publicKeyPem": "-----BEGIN PUBLIC KEY-----\n...",
			},
		},
	}}
	a := Actors{Store: store, Fetch: fetch}
	actor, err := a.ImportActor("https://remote.example/users/alice")
	if err != nil {
		t.Fatal(err)
	}
	if actor.SharedInbox != "https://remote.example/inbox" {
		t.Fatalf("expected shared inbox to be extracted, got %q", actor.SharedInbox)
	}
	if len(store.keyCalls["https://remote.example/users/alice"]) != 1 {
		t.Fatalf("expected one key replaced, got %+v", store.keyCalls)
	}
	if len(store.propagated) != 1 {
		t.Fatal("expected relationship propagation to have run")
	}
}

func TestGetOrImportActorReusesLocalCopy(t *testing.T) {
	store := newFakeStore()
	store.actors["https://remote.example/users/bob"] = Actor{ID: "https://remote.example/users/bob"}
	fetch := &fakeFetch{} // no actors registered: a fetch would fail
	a := Actors{Store: store, Fetch: fetch}
	actor, err := a.GetOrImportActor("https://remote.example/users/bob")
	if err != nil {
		t.Fatal(err)
	}
	if actor.ID != "https://remote.example/users/bob" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestImportObjectResolvesInReplyToChain(t *testing.T) {
	store := newFakeStore()
	fetch := &fakeFetch{objects: map[string]map[string]interface{}{
		"https://remote.example/objects/3": {"id": "https://remote.example/objects/3", "inReplyTo": "https://remote.example/objects/2"},
		"https://remote.example/objects/2": {"id": "https://remote.example/objects/2", "inReplyTo": "https://remote.example/objects/1"},
		"https://remote.example/objects/1": {"id": "https://remote.example/objects/1"},
	}}
	o := Objects{Store: store, Fetch: fetch}
	_, err := o.ImportObject("https://remote.example/objects/3", Options{})
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"1", "2", "3"} {
		if _, found, _ := store.GetObject("https://remote.example/objects/" + id); !found {
			t.Fatalf("expected objects/%s to be imported", id)
		}
	}
}

func TestImportObjectExceedsDepthReturnsRecursionError(t *testing.T) {
	store := newFakeStore()
	objects := map[string]map[string]interface{}{}
	// A chain of 5 objects, each replying to the previous.
	for i := 5; i >= 1; i-- {
		body := map[string]interface{}{"id": idFor(i)}
		if i > 1 {
			body["inReplyTo"] = idFor(i - 1)
		}
		objects[idFor(i)] = body
	}
	fetch := &fakeFetch{objects: objects}
	o := Objects{Store: store, Fetch: fetch}
	_, err := o.ImportObject(idFor(5), Options{MaxReplyDepth: 2})
	var recErr *RecursionError
	if !errors.As(err, &recErr) {
		t.Fatalf("expected a RecursionError, got %v", err)
	}
}

func idFor(i int) string {
	return "https://remote.example/objects/chain-" + string(rune('0'+i))
}

func TestImportRepliesBoundsItemCount(t *testing.T) {
	store := newFakeStore()
	objects := map[string]map[string]interface{}{}
	items := []string{}
	for i := 0; i < 10; i++ {
		id := idFor(i)
		objects[id] = map[string]interface{}{"id": id}
		items = append(items, id)
	}
	fetch := &fakeFetch{
		objects:     objects,
		collections: map[string][]string{"https://remote.example/objects/1/replies": items},
	}
	o := Objects{Store: store, Fetch: fetch}
	imported, err := o.ImportReplies("https://remote.example/objects/1/replies", Options{MaxCollectionItems: 3})
	if err != nil {
		t.Fatal(err)
	}
	if imported != 3 {
		t.Fatalf("expected exactly 3 imported items, got %d", imported)
	}
}
