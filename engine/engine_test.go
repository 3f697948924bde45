// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package engine

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/nacl/box"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
)

var testRegistryAddr = common.HexToAddress("0x00000000000000000000000000000000c0ffee00")

func testConfig() Config {
	cfg := DefaultConfig()
	// Smaller ring keeps key generation fast in tests.
	cfg.LogN = 12
	cfg.LogQ = []int{50, 40}
	cfg.LogP = []int{51}
	cfg.LogDefaultScale = 40
	cfg.Contract = testRegistryAddr
	return cfg
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := newEngine(testConfig(), log.NewNoOpLogger())
	require.NoError(t, err)
	return e
}

func TestLimbRoundTrip(t *testing.T) {
	require := require.New(t)

	values := []uint64{
		0,
		1,
		0xffff,
		0x10000,
		0x4652,             // "FR"
		0x4142434445464748, // 8-byte text
		^uint64(0),         // max
		uint64(time.Now().Unix()),
	}

	for _, v := range values {
		limbs := toLimbs(v)
		floats := make([]float64, numLimbs)
		for i, l := range limbs {
			// Simulate CKKS approximation noise.
			floats[i] = float64(l) + 0.2
		}
		got, err := fromLimbs(floats)
		require.NoError(err)
		require.Equal(v, got)
	}

	_, err := fromLimbs([]float64{1, 2})
	require.Error(err)

	_, err = fromLimbs([]float64{float64(limbRange) + 10, 0, 0, 0})
	require.Error(err)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	require := require.New(t)
	e := newTestEngine(t)

	for _, v := range []uint64{0, 7, 0x4142434445464748, ^uint64(0)} {
		handle, err := e.encryptValue(v)
		require.NoError(err)
		require.True(e.HasCiphertext(handle))

		got, err := e.decryptHandle(handle)
		require.NoError(err)
		require.Equal(v, got)
	}

	_, err := e.decryptHandle(common.HexToHash("0xdead"))
	require.ErrorIs(err, ErrUnknownHandle)
}

func TestEncryptedInputAndProof(t *testing.T) {
	require := require.New(t)
	e := newTestEngine(t)

	user := common.HexToAddress("0x1111111111111111111111111111111111111111")

	input := e.CreateEncryptedInput(testRegistryAddr, user)
	for i := uint64(1); i <= 7; i++ {
		input.Add64(i * 1000)
	}
	result, err := input.Encrypt()
	require.NoError(err)
	require.Len(result.Handles, 7)

	// Handles are distinct even for equal plaintexts.
	seen := make(map[common.Hash]bool)
	for _, h := range result.Handles {
		require.False(seen[h])
		seen[h] = true
	}

	require.NoError(e.VerifyInputProof(testRegistryAddr, user, result.Handles, result.InputProof))

	// Binding: wrong user, wrong contract, or a swapped handle all fail.
	other := common.HexToAddress("0x2222222222222222222222222222222222222222")
	require.ErrorIs(e.VerifyInputProof(testRegistryAddr, other, result.Handles, result.InputProof), ErrInvalidProof)
	require.ErrorIs(e.VerifyInputProof(other, user, result.Handles, result.InputProof), ErrInvalidProof)

	swapped := make([]common.Hash, len(result.Handles))
	copy(swapped, result.Handles)
	swapped[0], swapped[1] = swapped[1], swapped[0]
	require.ErrorIs(e.VerifyInputProof(testRegistryAddr, user, swapped, result.InputProof), ErrInvalidProof)

	// A proof from a different engine key is rejected.
	e2 := newTestEngine(t)
	require.ErrorIs(e2.VerifyInputProof(testRegistryAddr, user, result.Handles, result.InputProof), ErrInvalidProof)

	// Input size limits.
	_, err = e.CreateEncryptedInput(testRegistryAddr, user).Encrypt()
	require.Error(err)

	overfull := e.CreateEncryptedInput(testRegistryAddr, user)
	for i := 0; i < maxInputValues+1; i++ {
		overfull.Add64(uint64(i))
	}
	_, err = overfull.Encrypt()
	require.ErrorIs(err, ErrTooManyValues)
}

func TestUserDecrypt(t *testing.T) {
	require := require.New(t)
	e := newTestEngine(t)
	ctx := context.Background()

	callerKey, err := crypto.GenerateKey()
	require.NoError(err)
	caller := common.Address(crypto.PubkeyToAddress(callerKey.PublicKey))

	handle, err := e.encryptValue(0x4142434445464748)
	require.NoError(err)
	e.ACL().Allow(handle, caller)

	// Fresh ephemeral session keypair.
	sessionPub, sessionPriv, err := box.GenerateKey(rand.Reader)
	require.NoError(err)

	auth := e.CreateEIP712(*sessionPub, []common.Address{testRegistryAddr}, time.Now().Unix(), 10)
	digest := auth.Digest(e.Domain())
	sig, err := crypto.Sign(digest[:], callerKey)
	require.NoError(err)

	req := &UserDecryptRequest{
		Caller:        caller,
		Handles:       []common.Hash{handle},
		PublicKey:     *sessionPub,
		Authorization: auth,
		Signature:     sig,
	}

	result, err := e.UserDecrypt(ctx, req)
	require.NoError(err)
	require.Len(result.Values, 1)
	require.Equal(handle, result.Values[0].Handle)

	value, err := OpenSealedValue(result.Values[0], result.SenderKey, sessionPriv)
	require.NoError(err)
	require.Equal(uint64(0x4142434445464748), value)

	// The sealed bytes are useless without the session private key.
	_, otherPriv, err := box.GenerateKey(rand.Reader)
	require.NoError(err)
	_, err = OpenSealedValue(result.Values[0], result.SenderKey, otherPriv)
	require.Error(err)
}

func TestUserDecryptAuthorizationChecks(t *testing.T) {
	require := require.New(t)
	e := newTestEngine(t)
	ctx := context.Background()

	callerKey, err := crypto.GenerateKey()
	require.NoError(err)
	caller := common.Address(crypto.PubkeyToAddress(callerKey.PublicKey))

	handle, err := e.encryptValue(42)
	require.NoError(err)
	e.ACL().Allow(handle, caller)

	sessionPub, _, err := box.GenerateKey(rand.Reader)
	require.NoError(err)

	makeReq := func(auth TypedAuthorization) *UserDecryptRequest {
		digest := auth.Digest(e.Domain())
		sig, err := crypto.Sign(digest[:], callerKey)
		require.NoError(err)
		return &UserDecryptRequest{
			Caller:        caller,
			Handles:       []common.Hash{handle},
			PublicKey:     auth.PublicKey,
			Authorization: auth,
			Signature:     sig,
		}
	}

	now := time.Now().Unix()

	// Signature by someone other than the claimed caller.
	auth := e.CreateEIP712(*sessionPub, []common.Address{testRegistryAddr}, now, 10)
	req := makeReq(auth)
	otherKey, err := crypto.GenerateKey()
	require.NoError(err)
	digest := auth.Digest(e.Domain())
	req.Signature, err = crypto.Sign(digest[:], otherKey)
	require.NoError(err)
	_, err = e.UserDecrypt(ctx, req)
	require.ErrorIs(err, ErrInvalidAuthorization)

	// Expired window.
	expired := e.CreateEIP712(*sessionPub, []common.Address{testRegistryAddr}, now-20*86400, 10)
	_, err = e.UserDecrypt(ctx, makeReq(expired))
	require.ErrorIs(err, ErrAuthorizationExpired)

	// Not yet valid.
	future := e.CreateEIP712(*sessionPub, []common.Address{testRegistryAddr}, now+86400, 10)
	_, err = e.UserDecrypt(ctx, makeReq(future))
	require.ErrorIs(err, ErrAuthorizationExpired)

	// Wrong contract set.
	wrongContract := e.CreateEIP712(*sessionPub, []common.Address{{0x99}}, now, 10)
	_, err = e.UserDecrypt(ctx, makeReq(wrongContract))
	require.ErrorIs(err, ErrContractNotAuthorized)

	// ACL denial.
	denied, err := e.encryptValue(7)
	require.NoError(err)
	okAuth := e.CreateEIP712(*sessionPub, []common.Address{testRegistryAddr}, now, 10)
	okReq := makeReq(okAuth)
	okReq.Handles = []common.Hash{denied}
	_, err = e.UserDecrypt(ctx, okReq)
	require.ErrorIs(err, ErrAccessDenied)

	// Revocation takes effect immediately.
	e.ACL().Revoke(handle, caller)
	_, err = e.UserDecrypt(ctx, makeReq(okAuth))
	require.ErrorIs(err, ErrAccessDenied)
}

func TestPublicDecrypt(t *testing.T) {
	require := require.New(t)
	e := newTestEngine(t)
	ctx := context.Background()

	handle, err := e.encryptValue(0x4652)
	require.NoError(err)

	results, err := e.PublicDecrypt(ctx, []common.Hash{handle})
	require.NoError(err)
	require.Len(results, 1)

	res := results[0]
	require.Equal(uint64(0x4652), res.Value)
	require.Equal(EncodeClearValue(0x4652), res.Encoded)
	require.NoError(e.VerifyDecryptionProof(handle, res.Encoded, res.Proof))

	// Proof is bound to handle and encoding.
	otherHandle, err := e.encryptValue(1)
	require.NoError(err)
	require.ErrorIs(e.VerifyDecryptionProof(otherHandle, res.Encoded, res.Proof), ErrInvalidProof)
	require.ErrorIs(e.VerifyDecryptionProof(handle, EncodeClearValue(9), res.Proof), ErrInvalidProof)

	_, err = e.PublicDecrypt(ctx, []common.Hash{common.HexToHash("0xbeef")})
	require.ErrorIs(err, ErrUnknownHandle)
}

func TestACL(t *testing.T) {
	require := require.New(t)
	acl := NewACL()

	h := common.HexToHash("0x01")
	a := common.HexToAddress("0xaa")
	b := common.HexToAddress("0xbb")

	require.False(acl.IsAllowed(h, a))
	acl.Allow(h, a)
	require.True(acl.IsAllowed(h, a))
	require.False(acl.IsAllowed(h, b))

	acl.Revoke(h, a)
	require.False(acl.IsAllowed(h, a))

	// Revoking an absent entry is a no-op.
	acl.Revoke(h, b)
}

func TestTypedAuthorizationWindow(t *testing.T) {
	require := require.New(t)

	auth := TypedAuthorization{
		StartTimestamp: 1000,
		DurationDays:   10,
	}

	require.False(auth.ValidAt(999))
	require.True(auth.ValidAt(1000))
	require.True(auth.ValidAt(1000 + 10*86400 - 1))
	require.False(auth.ValidAt(1000 + 10*86400))
}

func TestEIP712DigestDependsOnDomain(t *testing.T) {
	require := require.New(t)

	var pub [32]byte
	pub[0] = 1
	auth := TypedAuthorization{
		PublicKey:      pub,
		Contracts:      []common.Address{testRegistryAddr},
		StartTimestamp: 1000,
		DurationDays:   10,
	}

	d1 := auth.Digest(Domain{ChainID: 1, VerifyingContract: testRegistryAddr})
	d2 := auth.Digest(Domain{ChainID: 2, VerifyingContract: testRegistryAddr})
	d3 := auth.Digest(Domain{ChainID: 1, VerifyingContract: common.Address{0x99}})
	require.NotEqual(d1, d2)
	require.NotEqual(d1, d3)

	// Any message field change moves the digest.
	changed := auth
	changed.DurationDays = 11
	require.NotEqual(d1, changed.Digest(Domain{ChainID: 1, VerifyingContract: testRegistryAddr}))
}
