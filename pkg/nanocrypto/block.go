package nanocrypto

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// statePreamble is the 32-byte domain separator for state blocks: 31
// zero bytes followed by 0x06.
var statePreamble = func() []byte {
	p := make([]byte, 32)
	p[31] = 0x06
	return p
}()

// HashBlock computes the content hash of a state block. The link field
// is an account address for sends and a source block hash for receives;
// both forms are accepted.
func HashBlock(account, previous, representative, balanceRaw, link string) (string, error) {
	accountPub, err := DecodeAddress(account)
	if err != nil {
		return "", fmt.Errorf("block account: %w", err)
	}
	repPub, err := DecodeAddress(representative)
	if err != nil {
		return "", fmt.Errorf("block representative: %w", err)
	}

	prev, err := hex.DecodeString(previous)
	if err != nil || len(prev) != 32 {
		return "", fmt.Errorf("block previous must be 64 hex characters")
	}

	linkBytes, err := decodeLink(link)
	if err != nil {
		return "", err
	}

	balance, ok := new(big.Int).SetString(balanceRaw, 10)
	if !ok || balance.Sign() < 0 || balance.BitLen() > 128 {
		return "", fmt.Errorf("block balance %q is not a 128-bit unsigned integer", balanceRaw)
	}
	balanceBytes := make([]byte, 16)
	balance.FillBytes(balanceBytes)

	accountBytes, _ := hex.DecodeString(accountPub)
	repBytes, _ := hex.DecodeString(repPub)

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", fmt.Errorf("init blake2b: %w", err)
	}
	h.Write(statePreamble)
	h.Write(accountBytes)
	h.Write(prev)
	h.Write(repBytes)
	h.Write(balanceBytes)
	h.Write(linkBytes)

	return strings.ToUpper(hex.EncodeToString(h.Sum(nil))), nil
}

func decodeLink(link string) ([]byte, error) {
	if CheckAddress(link) {
		pub, err := DecodeAddress(link)
		if err != nil {
			return nil, fmt.Errorf("block link: %w", err)
		}
		return hex.DecodeString(pub)
	}
	raw, err := hex.DecodeString(link)
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("block link must be an address or 64 hex characters")
	}
	return raw, nil
}
