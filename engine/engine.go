// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package engine implements the FHE decryption engine collaborator: a CKKS
// ciphertext store addressed by 32-byte handles, an access list driven by the
// ledger, engine-signed input and decryption proofs, and the user-decrypt and
// public-decrypt protocols.
package engine

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/nacl/box"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/lattice/v7/core/rlwe"
	"github.com/luxfi/lattice/v7/schemes/ckks"
	"github.com/luxfi/log"
)

var (
	ErrUnknownHandle         = errors.New("unknown ciphertext handle")
	ErrAccessDenied          = errors.New("account not allowed to decrypt handle")
	ErrInvalidAuthorization  = errors.New("authorization signature mismatch")
	ErrAuthorizationExpired  = errors.New("authorization window not valid")
	ErrContractNotAuthorized = errors.New("contract not in authorized set")
	ErrInvalidProof          = errors.New("proof verification failed")
	ErrTooManyValues         = errors.New("too many values in encrypted input")
)

// maxInputValues bounds one combined encrypted input.
const maxInputValues = 8

// numLimbs splits a uint64 across CKKS slots in 16-bit limbs so decryption
// round-trips exactly. Full 64-bit values exceed the float64 mantissa CKKS
// encodes through; four 16-bit limbs stay well inside it.
const (
	numLimbs  = 4
	limbBits  = 16
	limbMask  = (1 << limbBits) - 1
	limbRange = 1 << limbBits
)

// Engine encrypts, stores, and conditionally decrypts profile field values.
type Engine struct {
	config Config
	logger log.Logger

	params    ckks.Parameters
	encoder   *ckks.Encoder
	encryptor *rlwe.Encryptor
	decryptor *rlwe.Decryptor
	publicKey *rlwe.PublicKey
	secretKey *rlwe.SecretKey

	// signKey signs input and decryption proofs; its address is the
	// engine's public verification identity.
	signKey *ecdsa.PrivateKey

	acl *ACL

	storeMu sync.RWMutex
	store   map[common.Hash]*rlwe.Ciphertext
}

// newEngine performs the full (expensive) initialization: CKKS parameter and
// key generation plus the proof signing key. Callers go through Loader.Load.
func newEngine(config Config, logger log.Logger) (*Engine, error) {
	paramsLit := ckks.ParametersLiteral{
		LogN:            config.LogN,
		LogQ:            config.LogQ,
		LogP:            config.LogP,
		LogDefaultScale: config.LogDefaultScale,
	}

	params, err := ckks.NewParametersFromLiteral(paramsLit)
	if err != nil {
		return nil, fmt.Errorf("failed to create CKKS parameters: %w", err)
	}

	kgen := rlwe.NewKeyGenerator(params.Parameters)
	sk, pk := kgen.GenKeyPairNew()

	var signKey *ecdsa.PrivateKey
	if config.SigningKey != "" {
		signKey, err = crypto.HexToECDSA(config.SigningKey)
		if err != nil {
			return nil, fmt.Errorf("invalid signing key: %w", err)
		}
	} else {
		signKey, err = crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
	}

	e := &Engine{
		config:    config,
		logger:    logger,
		params:    params,
		encoder:   ckks.NewEncoder(params),
		encryptor: rlwe.NewEncryptor(params.Parameters, pk),
		decryptor: rlwe.NewDecryptor(params.Parameters, sk),
		publicKey: pk,
		secretKey: sk,
		signKey:   signKey,
		acl:       NewACL(),
		store:     make(map[common.Hash]*rlwe.Ciphertext),
	}

	logger.Info("FHE engine initialized",
		"logN", config.LogN,
		"levels", len(config.LogQ),
		"signer", e.SignerAddress().Hex())

	return e, nil
}

// ACL returns the engine's access list; the ledger registry drives it.
func (e *Engine) ACL() *ACL {
	return e.acl
}

// SignerAddress is the address whose signatures authenticate engine proofs.
func (e *Engine) SignerAddress() common.Address {
	return common.Address(crypto.PubkeyToAddress(e.signKey.PublicKey))
}

// Domain returns the EIP-712 domain user-decrypt authorizations sign over.
func (e *Engine) Domain() Domain {
	return Domain{
		ChainID:           e.config.ChainID,
		VerifyingContract: e.config.Contract,
	}
}

// CreateEIP712 builds the typed authorization for a user-decrypt session.
func (e *Engine) CreateEIP712(
	publicKey [32]byte,
	contracts []common.Address,
	startTimestamp int64,
	durationDays uint64,
) TypedAuthorization {
	return TypedAuthorization{
		PublicKey:      publicKey,
		Contracts:      contracts,
		StartTimestamp: startTimestamp,
		DurationDays:   durationDays,
	}
}

// ========================
// Encryption
// ========================

// encryptValue encrypts one uint64 and stores the ciphertext under a fresh
// handle.
func (e *Engine) encryptValue(value uint64) (common.Hash, error) {
	values := make([]float64, e.params.MaxSlots())
	for i, limb := range toLimbs(value) {
		values[i] = float64(limb)
	}

	pt := ckks.NewPlaintext(e.params, e.params.MaxLevel())
	if err := e.encoder.Encode(values, pt); err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode: %w", err)
	}

	ct := rlwe.NewCiphertext(e.params.Parameters, 1, e.params.MaxLevel())
	if err := e.encryptor.Encrypt(pt, ct); err != nil {
		return common.Hash{}, fmt.Errorf("failed to encrypt: %w", err)
	}

	handle, err := generateHandle(ct)
	if err != nil {
		return common.Hash{}, err
	}

	e.storeMu.Lock()
	e.store[handle] = ct
	e.storeMu.Unlock()

	return handle, nil
}

// decryptHandle opens one ciphertext. Callers enforce authorization.
func (e *Engine) decryptHandle(handle common.Hash) (uint64, error) {
	e.storeMu.RLock()
	ct, ok := e.store[handle]
	e.storeMu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownHandle, handle.Hex())
	}

	pt := ckks.NewPlaintext(e.params, ct.Level())
	e.decryptor.Decrypt(ct, pt)

	values := make([]float64, e.params.MaxSlots())
	if err := e.encoder.Decode(pt, values); err != nil {
		return 0, fmt.Errorf("failed to decode: %w", err)
	}

	return fromLimbs(values)
}

// HasCiphertext reports whether the engine stores a ciphertext for handle.
func (e *Engine) HasCiphertext(handle common.Hash) bool {
	e.storeMu.RLock()
	defer e.storeMu.RUnlock()
	_, ok := e.store[handle]
	return ok
}

// ========================
// Input proofs
// ========================

// signInputProof binds a handle set to (contract, user) with an engine
// signature.
func (e *Engine) signInputProof(contract, user common.Address, handles []common.Hash) ([]byte, error) {
	digest := inputDigest(contract, user, handles)
	return crypto.Sign(digest[:], e.signKey)
}

// VerifyInputProof checks that proof is the engine's signature over the
// handle set bound to (contract, user).
func (e *Engine) VerifyInputProof(contract, user common.Address, handles []common.Hash, proof []byte) error {
	digest := inputDigest(contract, user, handles)
	pub, err := crypto.SigToPub(digest[:], proof)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if common.Address(crypto.PubkeyToAddress(*pub)) != e.SignerAddress() {
		return fmt.Errorf("%w: signer mismatch", ErrInvalidProof)
	}
	return nil
}

func inputDigest(contract, user common.Address, handles []common.Hash) common.Hash {
	data := make([]byte, 0, 40+len(handles)*32)
	data = append(data, contract.Bytes()...)
	data = append(data, user.Bytes()...)
	for _, h := range handles {
		data = append(data, h.Bytes()...)
	}
	return common.BytesToHash(crypto.Keccak256([]byte("fhe.input.v1"), data))
}

// ========================
// User decryption
// ========================

// UserDecryptRequest carries one user-decrypt call: the caller's identity,
// the handles to open, the ephemeral box public key results are sealed to,
// and the signed EIP-712 authorization.
type UserDecryptRequest struct {
	Caller        common.Address
	Handles       []common.Hash
	PublicKey     [32]byte
	Authorization TypedAuthorization
	Signature     []byte
}

// SealedValue is one decrypted value sealed to the session's ephemeral key.
type SealedValue struct {
	Handle common.Hash
	Nonce  [24]byte
	Sealed []byte
}

// UserDecryptResult returns the sealed values plus the engine's one-shot
// sender public key needed to open them.
type UserDecryptResult struct {
	SenderKey [32]byte
	Values    []SealedValue
}

// UserDecrypt opens the requested handles for an authorized caller. The
// checks run in order: signature recovery must yield the caller, the window
// must cover now, the engine's contract must be in the authorized set, and
// every handle must pass the access list. Cleartext leaves the engine only
// inside a box sealed to the session's ephemeral public key.
func (e *Engine) UserDecrypt(ctx context.Context, req *UserDecryptRequest) (*UserDecryptResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if req.Authorization.PublicKey != req.PublicKey {
		return nil, fmt.Errorf("%w: public key not covered", ErrInvalidAuthorization)
	}

	signer, err := req.Authorization.RecoverSigner(e.Domain(), req.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAuthorization, err)
	}
	if signer != req.Caller {
		return nil, ErrInvalidAuthorization
	}

	if !req.Authorization.ValidAt(time.Now().Unix()) {
		return nil, ErrAuthorizationExpired
	}
	if !req.Authorization.Covers(e.config.Contract) {
		return nil, ErrContractNotAuthorized
	}

	for _, h := range req.Handles {
		if !e.acl.IsAllowed(h, req.Caller) {
			return nil, fmt.Errorf("%w: %s", ErrAccessDenied, h.Hex())
		}
	}

	senderPub, senderPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate sender key: %w", err)
	}

	result := &UserDecryptResult{
		SenderKey: *senderPub,
		Values:    make([]SealedValue, 0, len(req.Handles)),
	}

	for _, h := range req.Handles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		value, err := e.decryptHandle(h)
		if err != nil {
			return nil, err
		}

		var nonce [24]byte
		if _, err := rand.Read(nonce[:]); err != nil {
			return nil, fmt.Errorf("failed to generate nonce: %w", err)
		}

		clear := make([]byte, 8)
		binary.BigEndian.PutUint64(clear, value)
		recipient := req.PublicKey

		result.Values = append(result.Values, SealedValue{
			Handle: h,
			Nonce:  nonce,
			Sealed: box.Seal(nil, clear, &nonce, &recipient, senderPriv),
		})
	}

	e.logger.Info("User decryption served",
		"caller", req.Caller.Hex(),
		"handles", len(req.Handles))

	return result, nil
}

// OpenSealedValue recovers the cleartext from a sealed value using the
// session's ephemeral private key.
func OpenSealedValue(v SealedValue, senderKey [32]byte, privateKey *[32]byte) (uint64, error) {
	clear, ok := box.Open(nil, v.Sealed, &v.Nonce, &senderKey, privateKey)
	if !ok || len(clear) != 8 {
		return 0, errors.New("failed to open sealed value")
	}
	return binary.BigEndian.Uint64(clear), nil
}

// ========================
// Public decryption
// ========================

// PublicDecryption is one publicly opened value with its engine proof.
type PublicDecryption struct {
	Handle  common.Hash
	Value   uint64
	Encoded []byte
	Proof   []byte
}

// PublicDecrypt opens the handles in the clear and returns, per handle, the
// value, its 32-byte ABI encoding, and the engine's decryption proof. The
// caller is responsible for only requesting handles whose owners asked for
// publication; the ledger re-verifies the proof on submission.
func (e *Engine) PublicDecrypt(ctx context.Context, handles []common.Hash) ([]PublicDecryption, error) {
	results := make([]PublicDecryption, 0, len(handles))
	for _, h := range handles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		value, err := e.decryptHandle(h)
		if err != nil {
			return nil, err
		}

		encoded := EncodeClearValue(value)
		digest := decryptionDigest(h, encoded)
		proof, err := crypto.Sign(digest[:], e.signKey)
		if err != nil {
			return nil, fmt.Errorf("failed to sign decryption proof: %w", err)
		}

		results = append(results, PublicDecryption{
			Handle:  h,
			Value:   value,
			Encoded: encoded,
			Proof:   proof,
		})
	}

	e.logger.Info("Public decryption served", "handles", len(handles))
	return results, nil
}

// VerifyDecryptionProof checks that proof is the engine's signature over the
// handle and its ABI-encoded cleartext.
func (e *Engine) VerifyDecryptionProof(handle common.Hash, encoded []byte, proof []byte) error {
	digest := decryptionDigest(handle, encoded)
	pub, err := crypto.SigToPub(digest[:], proof)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if common.Address(crypto.PubkeyToAddress(*pub)) != e.SignerAddress() {
		return fmt.Errorf("%w: signer mismatch", ErrInvalidProof)
	}
	return nil
}

// EncodeClearValue returns the 32-byte ABI encoding of a uint64.
func EncodeClearValue(value uint64) []byte {
	encoded := make([]byte, 32)
	binary.BigEndian.PutUint64(encoded[24:], value)
	return encoded
}

func decryptionDigest(handle common.Hash, encoded []byte) common.Hash {
	return common.BytesToHash(crypto.Keccak256(
		[]byte("fhe.publicdecrypt.v1"),
		handle.Bytes(),
		encoded,
	))
}

// ========================
// Helpers
// ========================

func toLimbs(value uint64) [numLimbs]uint64 {
	var limbs [numLimbs]uint64
	for i := range limbs {
		limbs[i] = (value >> (i * limbBits)) & limbMask
	}
	return limbs
}

func fromLimbs(values []float64) (uint64, error) {
	if len(values) < numLimbs {
		return 0, errors.New("not enough slots decoded")
	}
	var value uint64
	for i := 0; i < numLimbs; i++ {
		limb := int64(values[i] + 0.5)
		if limb < 0 || limb >= limbRange {
			return 0, fmt.Errorf("limb %d out of range after rounding: %d", i, limb)
		}
		value |= uint64(limb) << (i * limbBits)
	}
	return value, nil
}

func generateHandle(ct *rlwe.Ciphertext) (common.Hash, error) {
	randomBytes := make([]byte, 16)
	if _, err := rand.Read(randomBytes); err != nil {
		return common.Hash{}, fmt.Errorf("failed to generate handle: %w", err)
	}

	ctBytes, err := ct.MarshalBinary()
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to marshal ciphertext: %w", err)
	}
	if len(ctBytes) > 32 {
		ctBytes = ctBytes[:32]
	}

	return common.Hash(sha256.Sum256(append(randomBytes, ctBytes...))), nil
}
