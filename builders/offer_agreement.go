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

package builders

import "fmt"

// Quantity is a ValueFlows om2 resource quantity: a unit label plus a
// numerical value carried as a string, matching FEP-0837's JSON shape.
type Quantity struct {
	Unit  string
	Value string
}

// DurationQuantity expresses n seconds as an om2 "second" quantity.
func DurationQuantity(seconds uint64) Quantity {
	return Quantity{Unit: "second", Value: fmt.Sprintf("%d", seconds)}
}

// CurrencyAmountQuantity expresses amount as a dimensionless "one"
// quantity, the convention FEP-0837 uses for a raw currency amount.
func CurrencyAmountQuantity(amount uint64) Quantity {
	return Quantity{Unit: "one", Value: fmt.Sprintf("%d", amount)}
}

func (q Quantity) toDocument() Document {
	return Document{
		"hasUnit":           q.Unit,
		"hasNumericalValue": q.Value,
	}
}

// PrimaryIntentFragmentID and ReciprocalIntentFragmentID name the two
// fragment IDs FEP-0837 attaches to a Proposal's two Intents.
func PrimaryIntentFragmentID(proposalID string) string    { return proposalID + "#primary" }
func ReciprocalIntentFragmentID(proposalID string) string  { return proposalID + "#reciprocal" }

// OfferAgreement builds the Offer(Agreement) activity of spec §4.5's
// "Offer(Agreement)" handler: a payment proposal response pairing a
// primary commitment (what the proposer offers, e.g. a subscription
// duration) with a reciprocal commitment (the payment amount), neither
// of which carries an id or url yet since this is a pre-agreement offer.
func OfferAgreement(id, actorID, proposalID, proposerActorID string, duration, amount uint64) Document {
	primaryCommitment := Document{
		"type":             "Commitment",
		"satisfies":        PrimaryIntentFragmentID(proposalID),
		"resourceQuantity": DurationQuantity(duration).toDocument(),
	}
	reciprocalCommitment := Document{
		"type":             "Commitment",
		"satisfies":        ReciprocalIntentFragmentID(proposalID),
		"resourceQuantity": CurrencyAmountQuantity(amount).toDocument(),
	}
	agreement := Document{
		"type":                 "Agreement",
		"stipulates":           primaryCommitment,
		"stipulatesReciprocal": reciprocalCommitment,
	}
	d := base("Offer", id, actorID)
	d["object"] = agreement
	d["to"] = proposerActorID
	return d
}
