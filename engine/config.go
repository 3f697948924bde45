// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package engine

import (
	"time"

	"github.com/luxfi/geth/common"
)

// Config holds FHE engine configuration
type Config struct {
	// LogN is the ring degree (log2). Higher = more security but slower.
	LogN int `json:"logN"`

	// LogQ is the ciphertext modulus chain (bits per level)
	LogQ []int `json:"logQ"`

	// LogP is the special modulus for key-switching
	LogP []int `json:"logP"`

	// LogDefaultScale is the default encoding scale
	LogDefaultScale int `json:"logDefaultScale"`

	// ChainID identifies the host chain in EIP-712 domains
	ChainID uint64 `json:"chainID"`

	// Contract is the registry address; EIP-712 authorizations verify
	// against it and input proofs bind to it
	Contract common.Address `json:"contract"`

	// SigningKey is the hex-encoded secp256k1 key used for input and
	// decryption proofs. A fresh key is generated when empty.
	SigningKey string `json:"signingKey,omitempty"`

	// LoadTimeout bounds engine initialization
	LoadTimeout time.Duration `json:"loadTimeout"`
}

// DefaultConfig returns a configuration suitable for identity workloads:
// 128-bit security with a shallow modulus chain, since profile fields are
// encrypted and decrypted but never computed on homomorphically.
func DefaultConfig() Config {
	return Config{
		LogN:            13,                    // 2^13 ring, 4096 slots
		LogQ:            []int{55, 45, 45, 45}, // shallow chain, no evaluation depth needed
		LogP:            []int{61},
		LogDefaultScale: 45,
		ChainID:         1,
		LoadTimeout:     30 * time.Second,
	}
}
