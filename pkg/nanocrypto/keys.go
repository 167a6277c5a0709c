// Package nanocrypto wraps the cryptographic operations the ledger
// requires: deterministic keypair derivation from a master seed, the
// blake2b flavour of ed25519 signing used by Nano, account address
// encoding, and state block hashing. The primitives themselves come
// from x/crypto (blake2b) and filippo.io/edwards25519 (curve ops);
// this package only composes them.
package nanocrypto

import (
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/blake2b"
)

// ZeroHash is the frontier sentinel for an account with no blocks yet.
const ZeroHash = "0000000000000000000000000000000000000000000000000000000000000000"

// DeriveSecretKey derives the secret key for one account index from the
// 32-byte master seed. The derivation is blake2b-256(seed || index_be32),
// matching the ledger's reference wallets, so the same (seed, index)
// always yields the same key and nothing needs to be persisted.
func DeriveSecretKey(seed string, index uint32) (string, error) {
	seedBytes, err := hex.DecodeString(seed)
	if err != nil || len(seedBytes) != 32 {
		return "", fmt.Errorf("seed must be 64 hex characters")
	}

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", fmt.Errorf("init blake2b: %w", err)
	}
	h.Write(seedBytes)

	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], index)
	h.Write(idx[:])

	return strings.ToUpper(hex.EncodeToString(h.Sum(nil))), nil
}

// DerivePublicKey computes the ed25519-blake2b public key for a secret key.
func DerivePublicKey(secretKey string) (string, error) {
	sk, err := hex.DecodeString(secretKey)
	if err != nil || len(sk) != 32 {
		return "", fmt.Errorf("secret key must be 64 hex characters")
	}

	digest := blake2b.Sum512(sk)
	s, err := new(edwards25519.Scalar).SetBytesWithClamping(digest[:32])
	if err != nil {
		return "", fmt.Errorf("clamp scalar: %w", err)
	}

	pub := new(edwards25519.Point).ScalarBaseMult(s)
	return strings.ToUpper(hex.EncodeToString(pub.Bytes())), nil
}

// SignHash signs a 32-byte hash with the ed25519-blake2b variant the
// ledger verifies. The stdlib ed25519 cannot be used here: it hard-codes
// SHA-512 where Nano substitutes blake2b-512.
func SignHash(secretKey, hash string) (string, error) {
	sk, err := hex.DecodeString(secretKey)
	if err != nil || len(sk) != 32 {
		return "", fmt.Errorf("secret key must be 64 hex characters")
	}
	msg, err := hex.DecodeString(hash)
	if err != nil || len(msg) != 32 {
		return "", fmt.Errorf("hash must be 64 hex characters")
	}

	digest := blake2b.Sum512(sk)
	s, err := new(edwards25519.Scalar).SetBytesWithClamping(digest[:32])
	if err != nil {
		return "", fmt.Errorf("clamp scalar: %w", err)
	}
	prefix := digest[32:]
	pub := new(edwards25519.Point).ScalarBaseMult(s).Bytes()

	rh, err := blake2b.New512(nil)
	if err != nil {
		return "", fmt.Errorf("init blake2b: %w", err)
	}
	rh.Write(prefix)
	rh.Write(msg)
	r, err := new(edwards25519.Scalar).SetUniformBytes(rh.Sum(nil))
	if err != nil {
		return "", fmt.Errorf("reduce nonce: %w", err)
	}
	R := new(edwards25519.Point).ScalarBaseMult(r)

	kh, err := blake2b.New512(nil)
	if err != nil {
		return "", fmt.Errorf("init blake2b: %w", err)
	}
	kh.Write(R.Bytes())
	kh.Write(pub)
	kh.Write(msg)
	k, err := new(edwards25519.Scalar).SetUniformBytes(kh.Sum(nil))
	if err != nil {
		return "", fmt.Errorf("reduce challenge: %w", err)
	}

	S := new(edwards25519.Scalar).MultiplyAdd(k, s, r)

	sig := make([]byte, 0, 64)
	sig = append(sig, R.Bytes()...)
	sig = append(sig, S.Bytes()...)
	return strings.ToUpper(hex.EncodeToString(sig)), nil
}

// VerifyHash reports whether signature is a valid ed25519-blake2b
// signature of the 32-byte hash under publicKey.
func VerifyHash(publicKey, hash, signature string) bool {
	pub, err := hex.DecodeString(publicKey)
	if err != nil || len(pub) != 32 {
		return false
	}
	msg, err := hex.DecodeString(hash)
	if err != nil || len(msg) != 32 {
		return false
	}
	sig, err := hex.DecodeString(signature)
	if err != nil || len(sig) != 64 {
		return false
	}

	A, err := new(edwards25519.Point).SetBytes(pub)
	if err != nil {
		return false
	}
	S, err := new(edwards25519.Scalar).SetCanonicalBytes(sig[32:])
	if err != nil {
		return false
	}

	kh, err := blake2b.New512(nil)
	if err != nil {
		return false
	}
	kh.Write(sig[:32])
	kh.Write(pub)
	kh.Write(msg)
	k, err := new(edwards25519.Scalar).SetUniformBytes(kh.Sum(nil))
	if err != nil {
		return false
	}

	// Check [S]B - [k]A == R.
	minusK := new(edwards25519.Scalar).Negate(k)
	R := new(edwards25519.Point).VarTimeDoubleScalarBaseMult(minusK, A, S)
	return subtle.ConstantTimeCompare(R.Bytes(), sig[:32]) == 1
}

// CheckSignature reports whether s is a well-formed signature token
// (128 hex characters). It does not verify the signature against
// anything; use VerifyHash for that.
func CheckSignature(s string) bool {
	if len(s) != 128 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
