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

import "fmt"

// HandleOffer implements spec §4.5's Offer(Agreement) handler: starts a
// FEP-0837 payment proposal exchange by creating an invoice record
// linked to the proposal's two intents, matching the shape
// builders.OfferAgreement produces on the sending side.
func HandleOffer(ctx Context, act Activity) (*Descriptor, error) {
	agreement, ok := objectBody(act.Body, "object")
	if !ok || agreement["type"] != "Agreement" {
		return nil, fmt.Errorf("handlers: Offer without an embedded Agreement")
	}
	if !act.IsAuthenticated {
		return nil, ErrUnauthenticated
	}

	primary, ok := objectBody(agreement, "stipulates")
	if !ok {
		return nil, fmt.Errorf("handlers: Offer(Agreement) without a primary commitment")
	}
	reciprocal, ok := objectBody(agreement, "stipulatesReciprocal")
	if !ok {
		return nil, fmt.Errorf("handlers: Offer(Agreement) without a reciprocal commitment")
	}
	primarySatisfies, _ := stringField(primary, "satisfies")
	reciprocalSatisfies, _ := stringField(reciprocal, "satisfies")
	proposalID := proposalIDFromIntent(primarySatisfies)
	if proposalID == "" {
		proposalID = proposalIDFromIntent(reciprocalSatisfies)
	}
	if proposalID == "" {
		return nil, fmt.Errorf("handlers: Offer(Agreement) commitments do not reference a proposal")
	}

	payer, _ := stringField(act.Body, "actor")
	receiver, _ := stringField(act.Body, "to")

	intents := map[string]string{
		"primary":    primarySatisfies,
		"reciprocal": reciprocalSatisfies,
	}
	if err := ctx.Store.CreateInvoice(proposalID, payer, receiver, intents); err != nil {
		return nil, err
	}
	return object("Offer", "Agreement"), nil
}

// proposalIDFromIntent strips the "#primary"/"#reciprocal" fragment a
// commitment's satisfies field carries, per builders.PrimaryIntentFragmentID.
func proposalIDFromIntent(satisfies string) string {
	for i := 0; i < len(satisfies); i++ {
		if satisfies[i] == '#' {
			return satisfies[:i]
		}
	}
	return ""
}
