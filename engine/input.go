// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package engine

import (
	"errors"
	"fmt"

	"github.com/luxfi/geth/common"
)

// EncryptedInput accumulates values destined for one contract call and
// encrypts them under a single input proof. Handles come back in Add64 order.
type EncryptedInput struct {
	engine   *Engine
	contract common.Address
	user     common.Address
	values   []uint64
}

// EncryptedInputResult is the output of EncryptedInput.Encrypt: one handle
// per added value plus the combined input proof binding all of them to
// (contract, user).
type EncryptedInputResult struct {
	Handles    []common.Hash
	InputProof []byte
}

// CreateEncryptedInput starts a builder for values submitted by user to
// contract.
func (e *Engine) CreateEncryptedInput(contract, user common.Address) *EncryptedInput {
	return &EncryptedInput{
		engine:   e,
		contract: contract,
		user:     user,
	}
}

// Add64 appends one uint64 value to the input.
func (in *EncryptedInput) Add64(value uint64) *EncryptedInput {
	in.values = append(in.values, value)
	return in
}

// Encrypt encrypts every added value and signs the combined input proof.
func (in *EncryptedInput) Encrypt() (*EncryptedInputResult, error) {
	if len(in.values) == 0 {
		return nil, errors.New("encrypted input is empty")
	}
	if len(in.values) > maxInputValues {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyValues, len(in.values), maxInputValues)
	}

	handles := make([]common.Hash, 0, len(in.values))
	for _, v := range in.values {
		h, err := in.engine.encryptValue(v)
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}

	proof, err := in.engine.signInputProof(in.contract, in.user, handles)
	if err != nil {
		return nil, fmt.Errorf("failed to sign input proof: %w", err)
	}

	in.engine.logger.Debug("Encrypted input created",
		"user", in.user.Hex(),
		"values", len(in.values))

	return &EncryptedInputResult{
		Handles:    handles,
		InputProof: proof,
	}, nil
}
