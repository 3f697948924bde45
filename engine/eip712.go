// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package engine

import (
	"math/big"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
)

// EIP-712 type strings for the user-decrypt authorization.
var (
	domainTypeHash = crypto.Keccak256([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
	))
	authorizationTypeHash = crypto.Keccak256([]byte(
		"UserDecryptRequestVerification(bytes32 publicKey,address[] contractAddresses,uint256 startTimestamp,uint256 durationDays)",
	))
)

const (
	domainName    = "Decryption"
	domainVersion = "1"
)

// TypedAuthorization is the EIP-712 message a caller signs to authorize a
// time-boxed user-decrypt session bound to an ephemeral public key.
type TypedAuthorization struct {
	// PublicKey is the ephemeral box public key results are sealed to.
	PublicKey [32]byte `json:"publicKey"`
	// Contracts lists the addresses whose ciphertexts the session may touch.
	Contracts []common.Address `json:"contracts"`
	// StartTimestamp is the unix second the window opens.
	StartTimestamp int64 `json:"startTimestamp"`
	// DurationDays is the window length in days.
	DurationDays uint64 `json:"durationDays"`
}

// ValidAt reports whether the authorization window covers the given unix time.
func (a TypedAuthorization) ValidAt(now int64) bool {
	if now < a.StartTimestamp {
		return false
	}
	end := a.StartTimestamp + int64(a.DurationDays)*86400
	return now < end
}

// Covers reports whether contract is within the authorized set.
func (a TypedAuthorization) Covers(contract common.Address) bool {
	for _, c := range a.Contracts {
		if c == contract {
			return true
		}
	}
	return false
}

// Domain is the EIP-712 signing domain of the decryption engine.
type Domain struct {
	ChainID           uint64
	VerifyingContract common.Address
}

func (d Domain) separator() []byte {
	return crypto.Keccak256(
		domainTypeHash,
		crypto.Keccak256([]byte(domainName)),
		crypto.Keccak256([]byte(domainVersion)),
		uint256Word(new(big.Int).SetUint64(d.ChainID)),
		addressWord(d.VerifyingContract),
	)
}

// Digest computes the EIP-712 signing hash: keccak256(0x1901 ‖ domainSeparator
// ‖ structHash).
func (a TypedAuthorization) Digest(domain Domain) common.Hash {
	contractWords := make([]byte, 0, len(a.Contracts)*32)
	for _, c := range a.Contracts {
		contractWords = append(contractWords, addressWord(c)...)
	}

	structHash := crypto.Keccak256(
		authorizationTypeHash,
		a.PublicKey[:],
		crypto.Keccak256(contractWords),
		uint256Word(big.NewInt(a.StartTimestamp)),
		uint256Word(new(big.Int).SetUint64(a.DurationDays)),
	)

	return common.BytesToHash(crypto.Keccak256(
		[]byte{0x19, 0x01},
		domain.separator(),
		structHash,
	))
}

// RecoverSigner returns the address that produced sig over the authorization
// digest. sig is a 65-byte [R ‖ S ‖ V] secp256k1 signature with V in {0, 1}.
func (a TypedAuthorization) RecoverSigner(domain Domain, sig []byte) (common.Address, error) {
	digest := a.Digest(domain)
	pub, err := crypto.SigToPub(digest[:], sig)
	if err != nil {
		return common.Address{}, err
	}
	return common.Address(crypto.PubkeyToAddress(*pub)), nil
}

func uint256Word(v *big.Int) []byte {
	word := make([]byte, 32)
	v.FillBytes(word)
	return word
}

func addressWord(addr common.Address) []byte {
	word := make([]byte, 32)
	copy(word[12:], addr.Bytes())
	return word
}
