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

package jsonsig

import (
	"fmt"

	"github.com/multiformats/go-multibase"
)

// decodeMultibaseBase58btc decodes a multibase string, requiring the
// base58btc ('z') encoding every proofValue/signatureValue in this scheme
// uses.
func decodeMultibaseBase58btc(s string) ([]byte, error) {
	enc, data, err := multibase.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("jsonsig: multibase decode: %w", err)
	}
	if enc != multibase.Base58BTC {
		return nil, fmt.Errorf("jsonsig: expected base58btc multibase, got %v", enc)
	}
	return data, nil
}

func encodeMultibaseBase58btc(data []byte) (string, error) {
	return multibase.Encode(multibase.Base58BTC, data)
}
