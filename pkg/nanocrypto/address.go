package nanocrypto

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// The ledger's base32 alphabet. It omits 0, 2, l and v to avoid
// transcription mistakes, so encoding/base32 cannot be used directly.
const addressAlphabet = "13456789abcdefghijkmnopqrstuwxyz"

const (
	addressPrefix       = "nano_"
	legacyAddressPrefix = "xrb_"
	uriScheme           = "nano:"
)

var addressCharIndex = func() map[byte]int {
	m := make(map[byte]int, len(addressAlphabet))
	for i := 0; i < len(addressAlphabet); i++ {
		m[addressAlphabet[i]] = i
	}
	return m
}()

// EncodeAddress renders a public key as a nano_ account address: 52
// base32 characters covering the 256-bit key (left-padded to 260 bits)
// followed by an 8 character blake2b-40 checksum.
func EncodeAddress(publicKey string) (string, error) {
	pub, err := hex.DecodeString(publicKey)
	if err != nil || len(pub) != 32 {
		return "", fmt.Errorf("public key must be 64 hex characters")
	}

	body := encodeBase32(new(big.Int).SetBytes(pub), 52)
	check := encodeBase32(new(big.Int).SetBytes(checksum(pub)), 8)
	return addressPrefix + body + check, nil
}

// DecodeAddress extracts the public key from an account address,
// verifying the checksum. Both nano_ and the legacy xrb_ prefix are
// accepted, as is an optional nano: URI scheme in front of either.
func DecodeAddress(address string) (string, error) {
	addr := StripURIScheme(address)
	switch {
	case strings.HasPrefix(addr, addressPrefix):
		addr = addr[len(addressPrefix):]
	case strings.HasPrefix(addr, legacyAddressPrefix):
		addr = addr[len(legacyAddressPrefix):]
	default:
		return "", fmt.Errorf("address missing nano_ or xrb_ prefix")
	}
	if len(addr) != 60 {
		return "", fmt.Errorf("address body must be 60 characters, got %d", len(addr))
	}

	keyPart, err := decodeBase32(addr[:52])
	if err != nil {
		return "", err
	}
	if keyPart.BitLen() > 256 {
		return "", fmt.Errorf("address encodes more than 256 key bits")
	}
	pub := make([]byte, 32)
	keyPart.FillBytes(pub)

	checkPart, err := decodeBase32(addr[52:])
	if err != nil {
		return "", err
	}
	check := make([]byte, 5)
	checkPart.FillBytes(check)

	want := checksum(pub)
	for i := range want {
		if want[i] != check[i] {
			return "", fmt.Errorf("address checksum mismatch")
		}
	}

	return strings.ToUpper(hex.EncodeToString(pub)), nil
}

// CheckAddress reports whether s is a valid account address.
func CheckAddress(s string) bool {
	_, err := DecodeAddress(s)
	return err == nil
}

// StripURIScheme removes an optional nano: scheme prefix from an
// address, as found in payment URIs pasted into profile fields.
func StripURIScheme(address string) string {
	trimmed := strings.TrimSpace(address)
	if strings.HasPrefix(strings.ToLower(trimmed), uriScheme) {
		return trimmed[len(uriScheme):]
	}
	return trimmed
}

// checksum is the 5-byte blake2b digest of the public key, reversed.
func checksum(pub []byte) []byte {
	h, _ := blake2b.New(5, nil)
	h.Write(pub)
	sum := h.Sum(nil)
	for i, j := 0, len(sum)-1; i < j; i, j = i+1, j-1 {
		sum[i], sum[j] = sum[j], sum[i]
	}
	return sum
}

func encodeBase32(n *big.Int, length int) string {
	out := make([]byte, length)
	mask := big.NewInt(31)
	v := new(big.Int).Set(n)
	digit := new(big.Int)
	for i := length - 1; i >= 0; i-- {
		digit.And(v, mask)
		out[i] = addressAlphabet[digit.Int64()]
		v.Rsh(v, 5)
	}
	return string(out)
}

func decodeBase32(s string) (*big.Int, error) {
	v := new(big.Int)
	for i := 0; i < len(s); i++ {
		idx, ok := addressCharIndex[s[i]]
		if !ok {
			return nil, fmt.Errorf("invalid address character %q", s[i])
		}
		v.Lsh(v, 5)
		v.Or(v, big.NewInt(int64(idx)))
	}
	return v, nil
}
