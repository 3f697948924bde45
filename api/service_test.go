// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/identity/engine"
	"github.com/luxfi/identity/registry"
)

var (
	testContract = common.HexToAddress("0x00000000000000000000000000000000c0ffee00")
	alice        = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob          = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type callerKey struct{}

// ctxAuth reads the caller address injected into the context by tests.
type ctxAuth struct{}

func (ctxAuth) GetCallerAddress(ctx context.Context) ([20]byte, error) {
	addr, ok := ctx.Value(callerKey{}).(common.Address)
	if !ok {
		return [20]byte{}, errors.New("no caller in context")
	}
	return addr, nil
}

func as(addr common.Address) context.Context {
	return context.WithValue(context.Background(), callerKey{}, addr)
}

func newTestService(t *testing.T) (*Service, *engine.Engine) {
	t.Helper()
	require := require.New(t)

	cfg := engine.DefaultConfig()
	cfg.LogN = 12
	cfg.LogQ = []int{50, 40}
	cfg.LogP = []int{51}
	cfg.LogDefaultScale = 40
	cfg.Contract = testContract

	loader := engine.NewLoader(cfg, log.NewNoOpLogger())
	eng, err := loader.Load(context.Background())
	require.NoError(err)

	reg, err := registry.New(memdb.New(), testContract, eng.ACL(), eng, log.NewNoOpLogger())
	require.NoError(err)

	svc := NewService(reg, loader, log.NewNoOpLogger(), ids.GenerateTestID(),
		WithAuthenticator(ctxAuth{}),
		WithMetrics(NewMetrics()),
	)
	return svc, eng
}

// encryptProfileArgs builds a valid seven-handle input for owner.
func encryptProfileArgs(t *testing.T, eng *engine.Engine, owner common.Address) *CreateProfileArgs {
	t.Helper()
	input := eng.CreateEncryptedInput(testContract, owner)
	for i := 0; i < registry.NumFields; i++ {
		input.Add64(uint64(i + 1))
	}
	result, err := input.Encrypt()
	require.NoError(t, err)

	handles := make([]string, len(result.Handles))
	for i, h := range result.Handles {
		handles[i] = h.Hex()
	}
	return &CreateProfileArgs{
		Handles:    handles,
		InputProof: common.Bytes2Hex(result.InputProof),
	}
}

func TestServiceProfileFlow(t *testing.T) {
	require := require.New(t)
	svc, eng := newTestService(t)

	args := encryptProfileArgs(t, eng, alice)

	// Unauthenticated mutating calls are rejected.
	err := svc.CreateProfile(context.Background(), args, &CreateProfileReply{})
	require.ErrorIs(err, ErrAuthRequired)

	var createReply CreateProfileReply
	require.NoError(svc.CreateProfile(as(alice), args, &createReply))
	require.Equal(alice.Hex(), createReply.Owner)

	var hasReply HasProfileReply
	require.NoError(svc.HasProfile(context.Background(), &HasProfileArgs{Owner: alice.Hex()}, &hasReply))
	require.True(hasReply.HasProfile)

	var profileReply GetProfileReply
	require.NoError(svc.GetProfile(as(alice), &GetProfileArgs{}, &profileReply))
	require.Len(profileReply.Handles, registry.NumFields)
	require.Equal(args.Handles, profileReply.Handles)

	err = svc.GetProfile(as(bob), &GetProfileArgs{}, &GetProfileReply{})
	require.ErrorIs(err, registry.ErrProfileNotFound)

	var ownersReply GetProfileOwnersReply
	require.NoError(svc.GetProfileOwners(context.Background(), &GetProfileOwnersArgs{}, &ownersReply))
	require.Equal([]string{alice.Hex()}, ownersReply.Owners)

	var fieldReply GetEncryptedFieldReply
	require.NoError(svc.GetEncryptedField(context.Background(), &GetEncryptedFieldArgs{
		Owner: alice.Hex(),
		Field: uint8(registry.FieldEmail),
	}, &fieldReply))
	require.Equal(args.Handles[registry.FieldEmail], fieldReply.Handle)

	// Bad handle count.
	err = svc.CreateProfile(as(bob), &CreateProfileArgs{Handles: args.Handles[:3]}, &CreateProfileReply{})
	require.ErrorIs(err, ErrBadHandleCount)
}

func TestServiceAccessFlow(t *testing.T) {
	require := require.New(t)
	svc, eng := newTestService(t)

	require.NoError(svc.CreateProfile(as(alice), encryptProfileArgs(t, eng, alice), &CreateProfileReply{}))

	require.NoError(svc.RequestAccess(as(bob), &RequestAccessArgs{
		Owner:   alice.Hex(),
		Message: "kyc",
	}, &RequestAccessReply{}))

	var status GetAccessRequestStatusReply
	require.NoError(svc.GetAccessRequestStatus(context.Background(), &GetAccessRequestStatusArgs{
		Owner:     alice.Hex(),
		Requester: bob.Hex(),
	}, &status))
	require.True(status.Exists)
	require.True(status.Pending)
	require.Equal("kyc", status.Message)

	require.NoError(svc.GrantAccess(as(alice), &GrantAccessArgs{
		Requester: bob.Hex(),
		Fields:    []uint8{uint8(registry.FieldEmail), uint8(registry.FieldCountry)},
	}, &GrantAccessReply{}))

	var granted GetGrantedFieldsReply
	require.NoError(svc.GetGrantedFields(context.Background(), &GetGrantedFieldsArgs{
		Owner:     alice.Hex(),
		Requester: bob.Hex(),
	}, &granted))
	require.Equal([]uint8{uint8(registry.FieldEmail), uint8(registry.FieldCountry)}, granted.Fields)

	var incoming GetRequestsReply
	require.NoError(svc.GetIncomingRequests(context.Background(), &GetRequestsArgs{Address: alice.Hex()}, &incoming))
	require.Equal([]string{bob.Hex()}, incoming.Addresses)

	var outgoing GetRequestsReply
	require.NoError(svc.GetOutgoingRequests(context.Background(), &GetRequestsArgs{Address: bob.Hex()}, &outgoing))
	require.Equal([]string{alice.Hex()}, outgoing.Addresses)

	require.NoError(svc.RevokeAccess(as(alice), &RevokeAccessArgs{Requester: bob.Hex()}, &RevokeAccessReply{}))

	require.NoError(svc.GetAccessRequestStatus(context.Background(), &GetAccessRequestStatusArgs{
		Owner:     alice.Hex(),
		Requester: bob.Hex(),
	}, &status))
	require.False(status.Exists)

	// Field index validation surfaces the registry error.
	err := svc.GrantAccess(as(alice), &GrantAccessArgs{
		Requester: bob.Hex(),
		Fields:    []uint8{42},
	}, &GrantAccessReply{})
	require.ErrorIs(err, registry.ErrInvalidField)
}

func TestServicePublicDecryption(t *testing.T) {
	require := require.New(t)
	svc, eng := newTestService(t)
	ctx := context.Background()

	require.NoError(svc.CreateProfile(as(alice), encryptProfileArgs(t, eng, alice), &CreateProfileReply{}))

	require.NoError(svc.RequestFieldDecryption(as(alice), &RequestFieldDecryptionArgs{
		Field: uint8(registry.FieldCountry),
	}, &RequestFieldDecryptionReply{}))

	var pending GetPendingFieldHandleReply
	require.NoError(svc.GetPendingFieldHandle(ctx, &GetPendingFieldHandleArgs{
		Owner: alice.Hex(),
		Field: uint8(registry.FieldCountry),
	}, &pending))

	results, err := eng.PublicDecrypt(ctx, []common.Hash{common.HexToHash(pending.Handle)})
	require.NoError(err)
	res := results[0]

	require.NoError(svc.SubmitFieldDecryption(as(bob), &SubmitFieldDecryptionArgs{
		Owner:   alice.Hex(),
		Field:   uint8(registry.FieldCountry),
		Value:   res.Value,
		Encoded: common.Bytes2Hex(res.Encoded),
		Proof:   common.Bytes2Hex(res.Proof),
	}, &SubmitFieldDecryptionReply{}))

	var shared ViewSharedFieldReply
	require.NoError(svc.ViewSharedField(ctx, &ViewSharedFieldArgs{
		Owner: alice.Hex(),
		Field: uint8(registry.FieldCountry),
	}, &shared))
	require.Equal(res.Value, shared.Value)
}

func TestServiceEventsAndStatus(t *testing.T) {
	require := require.New(t)
	svc, eng := newTestService(t)
	ctx := context.Background()

	require.NoError(svc.CreateProfile(as(alice), encryptProfileArgs(t, eng, alice), &CreateProfileReply{}))
	require.NoError(svc.RequestAccess(as(bob), &RequestAccessArgs{Owner: alice.Hex()}, &RequestAccessReply{}))

	var events GetEventsReply
	require.NoError(svc.GetEvents(ctx, &GetEventsArgs{From: 1, Limit: 10}, &events))
	require.Equal(uint64(2), events.Head)
	require.Len(events.Events, 2)
	require.Equal("ProfileCreated", events.Events[0].Type)
	require.Equal("AccessRequested", events.Events[1].Type)
	require.Equal(bob.Hex(), events.Events[1].Requester)

	var status GetStatusReply
	require.NoError(svc.GetStatus(ctx, &GetStatusArgs{}, &status))
	require.Equal("ready", status.EngineStatus)
	require.Equal(eng.SignerAddress().Hex(), status.EngineSigner)
	require.Equal(uint64(2), status.EventHead)
	require.NotEmpty(status.ChainID)
}
