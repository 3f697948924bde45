// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package client implements the off-chain side of the confidential identity
// protocol: profile encryption, user decryption sessions, and the public
// decryption publish flow.
package client

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/identity/engine"
)

var (
	ErrWalletNotConnected = errors.New("wallet not connected")
	ErrSignatureRejected  = errors.New("signature request rejected")
)

// Wallet abstracts the user's signing identity. SignTypedData returns the
// 65-byte secp256k1 signature over the EIP-712 digest, or an error when the
// user declines.
type Wallet interface {
	Address() common.Address
	SignTypedData(domain engine.Domain, auth engine.TypedAuthorization) ([]byte, error)
}

// LocalWallet signs with an in-process secp256k1 key. Used by tests and
// tooling; production callers wrap a browser or hardware signer.
type LocalWallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewLocalWallet generates a fresh key.
func NewLocalWallet() (*LocalWallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate wallet key: %w", err)
	}
	return &LocalWallet{
		key:     key,
		address: common.Address(crypto.PubkeyToAddress(key.PublicKey)),
	}, nil
}

// NewLocalWalletFromKey builds a wallet over a hex-encoded private key.
func NewLocalWalletFromKey(hexKey string) (*LocalWallet, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet key: %w", err)
	}
	return &LocalWallet{
		key:     key,
		address: common.Address(crypto.PubkeyToAddress(key.PublicKey)),
	}, nil
}

func (w *LocalWallet) Address() common.Address {
	return w.address
}

func (w *LocalWallet) SignTypedData(domain engine.Domain, auth engine.TypedAuthorization) ([]byte, error) {
	digest := auth.Digest(domain)
	sig, err := crypto.Sign(digest[:], w.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureRejected, err)
	}
	return sig, nil
}
