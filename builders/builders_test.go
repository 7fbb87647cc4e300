package builders

import "testing"

func TestCreateCarriesStandardContext(t *testing.T) {
	d := Create("https://local.example/activities/1", "https://local.example/users/alice",
		Document{"type": "Note", "id": "https://local.example/objects/1", "content": "hi"},
		[]string{"https://www.w3.org/ns/activitystreams#Public"}, nil)
	ctx, ok := d["@context"].([]interface{})
	if !ok || len(ctx) != 4 {
		t.Fatalf("expected a 4-element @context array, got %v", d["@context"])
	}
	if d["type"] != "Create" {
		t.Fatalf("expected type Create, got %v", d["type"])
	}
	obj, ok := d["object"].(Document)
	if !ok || obj["type"] != "Note" {
		t.Fatalf("expected embedded Note object, got %v", d["object"])
	}
}

func TestDeleteWithFormerTypeProducesTombstone(t *testing.T) {
	d := Delete("https://local.example/activities/2", "https://local.example/users/alice",
		"https://local.example/objects/1", "Note")
	obj, ok := d["object"].(Document)
	if !ok || obj["type"] != "Tombstone" || obj["formerType"] != "Note" {
		t.Fatalf("expected Tombstone with formerType Note, got %v", d["object"])
	}
}

func TestDeleteWithoutFormerTypeIsBareID(t *testing.T) {
	d := Delete("https://local.example/activities/3", "https://local.example/users/alice",
		"https://local.example/objects/1", "")
	if d["object"] != "https://local.example/objects/1" {
		t.Fatalf("expected bare object id, got %v", d["object"])
	}
}

func TestFollowAddressesTarget(t *testing.T) {
	d := Follow("https://local.example/activities/4", "https://local.example/users/alice",
		"https://remote.example/users/bob")
	if d["object"] != "https://remote.example/users/bob" {
		t.Fatalf("unexpected object: %v", d["object"])
	}
	to, ok := d["to"].([]string)
	if !ok || len(to) != 1 || to[0] != "https://remote.example/users/bob" {
		t.Fatalf("expected to=[target], got %v", d["to"])
	}
}

func TestOfferAgreementShape(t *testing.T) {
	d := OfferAgreement(
		"https://local.example/activities/offer/1",
		"https://local.example/users/payer",
		"https://remote.example/proposals/1",
		"https://remote.example/users/test",
		10, 200000,
	)
	if d["type"] != "Offer" {
		t.Fatalf("expected type Offer, got %v", d["type"])
	}
	obj := d["object"].(Document)
	if obj["type"] != "Agreement" {
		t.Fatalf("expected Agreement object, got %v", obj["type"])
	}
	primary := obj["stipulates"].(Document)
	if primary["satisfies"] != "https://remote.example/proposals/1#primary" {
		t.Fatalf("unexpected primary commitment satisfies: %v", primary["satisfies"])
	}
	qty := primary["resourceQuantity"].(Document)
	if qty["hasUnit"] != "second" || qty["hasNumericalValue"] != "10" {
		t.Fatalf("unexpected primary quantity: %v", qty)
	}
	reciprocal := obj["stipulatesReciprocal"].(Document)
	rqty := reciprocal["resourceQuantity"].(Document)
	if rqty["hasUnit"] != "one" || rqty["hasNumericalValue"] != "200000" {
		t.Fatalf("unexpected reciprocal quantity: %v", rqty)
	}
}
