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

// ProfileData is the cleartext form of a profile. Empty strings encode to
// zero; dates use "2006-01-02" and experience is a decimal year count.
type ProfileData struct {
	Email      string `json:"email"`
	DOB        string `json:"dob"`
	Name       string `json:"name"`
	IDNumber   string `json:"id_number"`
	Location   string `json:"location"`
	Experience string `json:"experience"`
	Country    string `json:"country"`
}

// Value returns the cleartext for one field.
func (d ProfileData) Value(f registry.Field) string {
	switch f {
	case registry.FieldEmail:
		return d.Email
	case registry.FieldDOB:
		return d.DOB
	case registry.FieldName:
		return d.Name
	case registry.FieldIDNumber:
		return d.IDNumber
	case registry.FieldLocation:
		return d.Location
	case registry.FieldExperience:
		return d.Experience
	case registry.FieldCountry:
		return d.Country
	default:
		return ""
	}
}

// EncodeProfile converts all seven cleartext fields into their uint64
// encodings, in ledger field order.
func EncodeProfile(d ProfileData) ([registry.NumFields]uint64, error) {
	var values [registry.NumFields]uint64
	for _, f := range registry.AllFields() {
		v, err := f.EncodeValue(d.Value(f))
		if err != nil {
			return values, err
		}
		values[f] = v
	}
	return values, nil
}

// Encryptor submits encrypted profiles: it encodes the seven fields,
// encrypts them as one combined input, and sends the handles plus input
// proof to the ledger.
type Encryptor struct {
	loader   *engine.Loader
	registry *registry.Registry
	contract common.Address
	logger   log.Logger
}

// NewEncryptor wires the encryption client.
func NewEncryptor(loader *engine.Loader, reg *registry.Registry, contract common.Address, logger log.Logger) *Encryptor {
	return &Encryptor{
		loader:   loader,
		registry: reg,
		contract: contract,
		logger:   logger,
	}
}

// CreateProfile encrypts data and registers it as wallet's profile.
func (c *Encryptor) CreateProfile(ctx context.Context, wallet Wallet, data ProfileData) ([registry.NumFields]common.Hash, error) {
	handles, proof, err := c.encrypt(ctx, wallet, data)
	if err != nil {
		return handles, err
	}
	if err := c.registry.CreateProfile(wallet.Address(), handles, proof); err != nil {
		return handles, err
	}
	c.logger.Info("Profile submitted", "owner", wallet.Address().Hex())
	return handles, nil
}

// UpdateProfile encrypts data and atomically replaces wallet's handle set.
func (c *Encryptor) UpdateProfile(ctx context.Context, wallet Wallet, data ProfileData) ([registry.NumFields]common.Hash, error) {
	handles, proof, err := c.encrypt(ctx, wallet, data)
	if err != nil {
		return handles, err
	}
	if err := c.registry.UpdateProfile(wallet.Address(), handles, proof); err != nil {
		return handles, err
	}
	c.logger.Info("Profile update submitted", "owner", wallet.Address().Hex())
	return handles, nil
}

func (c *Encryptor) encrypt(ctx context.Context, wallet Wallet, data ProfileData) ([registry.NumFields]common.Hash, []byte, error) {
	var handles [registry.NumFields]common.Hash

	if wallet == nil {
		return handles, nil, ErrWalletNotConnected
	}

	values, err := EncodeProfile(data)
	if err != nil {
		return handles, nil, err
	}

	eng, err := c.loader.Load(ctx)
	if err != nil {
		return handles, nil, err
	}

	input := eng.CreateEncryptedInput(c.contract, wallet.Address())
	for _, v := range values {
		input.Add64(v)
	}
	result, err := input.Encrypt()
	if err != nil {
		return handles, nil, err
	}

	copy(handles[:], result.Handles)
	return handles, result.InputProof, nil
}
