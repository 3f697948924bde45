// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package client

import (
	"context"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/identity/engine"
	"github.com/luxfi/identity/registry"
)

// PublicDecryptor runs the irreversible publish flow: mark a field for
// decryption on the ledger, have the engine open it with a proof, and submit
// the cleartext back. Anyone can resolve a marked field; only the owner can
// mark one.
type PublicDecryptor struct {
	loader   *engine.Loader
	registry *registry.Registry
	wallet   Wallet
	logger   log.Logger
}

// NewPublicDecryptor wires the public-decrypt client for one wallet.
func NewPublicDecryptor(loader *engine.Loader, reg *registry.Registry, wallet Wallet, logger log.Logger) *PublicDecryptor {
	return &PublicDecryptor{
		loader:   loader,
		registry: reg,
		wallet:   wallet,
		logger:   logger,
	}
}

// Mark flags one of the wallet's own fields for public decryption.
func (c *PublicDecryptor) Mark(ctx context.Context, field registry.Field) error {
	if c.wallet == nil {
		return ErrWalletNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.registry.RequestFieldDecryption(c.wallet.Address(), field)
}

// Resolve completes a pending decryption for any owner: it reads the pending
// handle, asks the engine for the cleartext and proof, and submits both. The
// published value is returned.
func (c *PublicDecryptor) Resolve(ctx context.Context, owner common.Address, field registry.Field) (uint64, error) {
	if c.wallet == nil {
		return 0, ErrWalletNotConnected
	}

	handle, err := c.registry.PendingFieldHandle(owner, field)
	if err != nil {
		return 0, err
	}

	eng, err := c.loader.Load(ctx)
	if err != nil {
		return 0, err
	}

	results, err := eng.PublicDecrypt(ctx, []common.Hash{handle})
	if err != nil {
		return 0, err
	}
	res := results[0]

	if err := c.registry.SubmitFieldDecryption(
		c.wallet.Address(), owner, field, res.Value, res.Encoded, res.Proof,
	); err != nil {
		return 0, err
	}

	c.logger.Info("Field published",
		"owner", owner.Hex(),
		"field", field.String())
	return res.Value, nil
}

// Publish marks one of the wallet's own fields and resolves it in one call.
func (c *PublicDecryptor) Publish(ctx context.Context, field registry.Field) (uint64, error) {
	if err := c.Mark(ctx, field); err != nil {
		return 0, err
	}
	return c.Resolve(ctx, c.wallet.Address(), field)
}

// ViewShared reads a published value and renders its display string.
func (c *PublicDecryptor) ViewShared(owner common.Address, field registry.Field) (string, error) {
	value, err := c.registry.SharedField(owner, field)
	if err != nil {
		return "", err
	}
	return field.DecodeValue(value), nil
}
