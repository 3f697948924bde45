// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package client

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/sync/singleflight"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/identity/engine"
	"github.com/luxfi/identity/registry"
)

// defaultWindowDays is the reference authorization window length.
const defaultWindowDays = 10

// UserDecryptor runs authorized private reads of encrypted fields. Each call
// uses a fresh ephemeral keypair and a wallet-signed, time-boxed EIP-712
// authorization; concurrent calls for the same handle collapse into one
// engine round trip.
type UserDecryptor struct {
	loader     *engine.Loader
	registry   *registry.Registry
	wallet     Wallet
	contract   common.Address
	windowDays uint64
	logger     log.Logger

	group singleflight.Group
}

// NewUserDecryptor wires the user-decrypt client for one wallet.
func NewUserDecryptor(
	loader *engine.Loader,
	reg *registry.Registry,
	wallet Wallet,
	contract common.Address,
	logger log.Logger,
) *UserDecryptor {
	return &UserDecryptor{
		loader:     loader,
		registry:   reg,
		wallet:     wallet,
		contract:   contract,
		windowDays: defaultWindowDays,
		logger:     logger,
	}
}

// Decrypt privately reads one of owner's fields and returns its display
// string. The caller must hold a field grant (or be the owner).
func (c *UserDecryptor) Decrypt(ctx context.Context, owner common.Address, field registry.Field) (string, error) {
	value, err := c.DecryptValue(ctx, owner, field)
	if err != nil {
		return "", err
	}
	return field.DecodeValue(value), nil
}

// DecryptMine reads a field of the wallet's own profile.
func (c *UserDecryptor) DecryptMine(ctx context.Context, field registry.Field) (string, error) {
	if c.wallet == nil {
		return "", ErrWalletNotConnected
	}
	return c.Decrypt(ctx, c.wallet.Address(), field)
}

// DecryptValue is Decrypt without the display decoding.
func (c *UserDecryptor) DecryptValue(ctx context.Context, owner common.Address, field registry.Field) (uint64, error) {
	if c.wallet == nil {
		return 0, ErrWalletNotConnected
	}

	handle, err := c.registry.EncryptedField(owner, field)
	if err != nil {
		return 0, err
	}

	// One outstanding session per handle; duplicate callers share the result.
	v, err, _ := c.group.Do(handle.Hex(), func() (interface{}, error) {
		return c.decryptHandle(ctx, handle)
	})
	if err != nil {
		return 0, err
	}
	return v.(uint64), nil
}

// decryptHandle runs the five-step session: ephemeral keypair, EIP-712
// authorization, wallet signature, engine call, unseal.
func (c *UserDecryptor) decryptHandle(ctx context.Context, handle common.Hash) (uint64, error) {
	eng, err := c.loader.Load(ctx)
	if err != nil {
		return 0, err
	}

	sessionPub, sessionPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return 0, fmt.Errorf("failed to generate session keypair: %w", err)
	}

	auth := eng.CreateEIP712(
		*sessionPub,
		[]common.Address{c.contract},
		time.Now().Unix(),
		c.windowDays,
	)

	sig, err := c.wallet.SignTypedData(eng.Domain(), auth)
	if err != nil {
		// User cancellation is terminal; no retry.
		return 0, fmt.Errorf("%w: %v", ErrSignatureRejected, err)
	}

	result, err := eng.UserDecrypt(ctx, &engine.UserDecryptRequest{
		Caller:        c.wallet.Address(),
		Handles:       []common.Hash{handle},
		PublicKey:     *sessionPub,
		Authorization: auth,
		Signature:     sig,
	})
	if err != nil {
		return 0, err
	}
	if len(result.Values) != 1 {
		return 0, fmt.Errorf("expected 1 sealed value, got %d", len(result.Values))
	}

	value, err := engine.OpenSealedValue(result.Values[0], result.SenderKey, sessionPriv)
	if err != nil {
		return 0, err
	}

	c.logger.Debug("User decryption completed",
		"caller", c.wallet.Address().Hex(),
		"handle", handle.Hex())
	return value, nil
}
