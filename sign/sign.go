// Package sign produces detached OpenPGP signatures for built packages.
//
// Keys are ASCII-armored private keys, typically passed through the
// GPG_PRIVATE_KEY environment variable. Passphrase protected keys are not supported.
package sign

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
)

// KeyEnv is the environment variable holding the signing key.
const KeyEnv = "GPG_PRIVATE_KEY"

// SignatureExt is appended to an artifact path to name its signature.
const SignatureExt = ".asc"

// signer returns the first entity of the armored key ring that carries a usable private key.
func signer(key string) (*openpgp.Entity, error) {
	entities, err := openpgp.ReadArmoredKeyRing(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("reading key ring: %w", err)
	}
	for _, e := range entities {
		if e.PrivateKey == nil {
			continue
		}
		if e.PrivateKey.Encrypted {
			return nil, fmt.Errorf("private key %X is passphrase protected", e.PrimaryKey.KeyId)
		}
		return e, nil
	}
	return nil, fmt.Errorf("no private key found")
}

// DetachSign writes an armored detached signature of the file at path to path.asc
// and returns the signature path.
func DetachSign(path, key string) (string, error) {
	s, err := signer(key)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sig bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&sig, s, f, nil); err != nil {
		return "", fmt.Errorf("signing %s: %w", path, err)
	}
	sigPath := path + SignatureExt
	if err := os.WriteFile(sigPath, sig.Bytes(), 0644); err != nil {
		return "", err
	}
	return sigPath, nil
}

// Verify checks the detached signature path.asc of path against an armored key ring.
// It returns the signer's primary key id.
func Verify(path, keyring string) (uint64, error) {
	entities, err := openpgp.ReadArmoredKeyRing(strings.NewReader(keyring))
	if err != nil {
		return 0, fmt.Errorf("reading key ring: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	sig, err := os.Open(path + SignatureExt)
	if err != nil {
		return 0, err
	}
	defer sig.Close()

	e, err := openpgp.CheckArmoredDetachedSignature(entities, f, sig, nil)
	if err != nil {
		return 0, fmt.Errorf("verifying %s: %w", path, err)
	}
	return e.PrimaryKey.KeyId, nil
}

// PublicKey extracts the public part of an armored private key.
// If armored is true, it returns the public key in ASCII-armored format.
// Otherwise, it returns the binary serialized public key.
func PublicKey(key string, armored bool) ([]byte, error) {
	s, err := signer(key)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if !armored {
		if err := s.Serialize(&buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		return nil, err
	}
	if err := s.Serialize(w); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
