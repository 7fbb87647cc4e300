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

package apcore

import (
	"os"
	"path/filepath"

	"github.com/relaysocial/apcore/keys"
)

const (
	rsaKeyFileName     = "instance_rsa_private.pem"
	ed25519KeyFileName = "instance_ed25519_private.pem"
	rsaKeyBits         = 2048
)

// generateInstanceActorKeys creates the RSA and Ed25519 key pairs this
// instance's actor signs outgoing activities and Data-Integrity proofs
// with, writing the private halves as PEM files under dir. When either
// file already exists it asks before overwriting, and writes nothing if
// the operator declines, since replacing the keys orphans an instance's
// existing federation identity.
func generateInstanceActorKeys(dir string) error {
	rsaPath := filepath.Join(dir, rsaKeyFileName)
	edPath := filepath.Join(dir, ed25519KeyFileName)
	for _, p := range []string{rsaPath, edPath} {
		if _, err := os.Stat(p); err == nil {
			cont, err := promptOverwriteExistingFile(p)
			if err != nil {
				return err
			}
			if !cont {
				InfoLogger.Infof("Skipped key generation; %s already exists", p)
				return nil
			}
		}
	}

	rsaKey, err := keys.NewRSAPrivateKey(rsaKeyBits)
	if err != nil {
		return err
	}
	rsaPEM, err := keys.MarshalRSAPrivateKeyPEM(rsaKey)
	if err != nil {
		return err
	}
	if err := os.WriteFile(rsaPath, []byte(rsaPEM), 0600); err != nil {
		return err
	}

	_, edPriv, err := keys.NewEd25519Key()
	if err != nil {
		return err
	}
	edPEM, err := keys.MarshalEd25519PrivateKeyPEM(edPriv)
	if err != nil {
		return err
	}
	if err := os.WriteFile(edPath, []byte(edPEM), 0600); err != nil {
		return err
	}

	InfoLogger.Infof("Wrote instance actor keys to %s and %s", rsaPath, edPath)
	return nil
}
