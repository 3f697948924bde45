// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api exposes the identity registry over an args/reply RPC surface.
// Mutating methods authenticate the caller through an Authenticator; handles,
// addresses, and proofs travel hex-encoded.
package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/identity/engine"
	"github.com/luxfi/identity/registry"
)

var (
	ErrNotInitialized = errors.New("identity service not initialized")
	ErrAuthRequired   = errors.New("authentication required")
	ErrBadHandleCount = errors.New("expected exactly 7 field handles")
)

// Authenticator verifies RPC caller identity
type Authenticator interface {
	// GetCallerAddress extracts the authenticated caller address from context
	GetCallerAddress(ctx context.Context) ([20]byte, error)
}

// Service provides the RPC interface over the identity registry.
type Service struct {
	registry *registry.Registry
	loader   *engine.Loader
	logger   log.Logger
	chainID  ids.ID
	auth     Authenticator
	metrics  Metrics
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithAuthenticator sets the authenticator for RPC caller verification
func WithAuthenticator(auth Authenticator) ServiceOption {
	return func(s *Service) {
		s.auth = auth
	}
}

// WithMetrics sets the operation counters
func WithMetrics(m Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates the identity RPC service
func NewService(reg *registry.Registry, loader *engine.Loader, logger log.Logger, chainID ids.ID, opts ...ServiceOption) *Service {
	s := &Service{
		registry: reg,
		loader:   loader,
		logger:   logger,
		chainID:  chainID,
		metrics:  noopMetrics{},
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.auth == nil {
		logger.Warn("Service created without authenticator - mutating methods will be rejected")
	}

	return s
}

func (s *Service) caller(ctx context.Context) (common.Address, error) {
	if s.auth == nil {
		return common.Address{}, ErrAuthRequired
	}
	raw, err := s.auth.GetCallerAddress(ctx)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrAuthRequired, err)
	}
	return common.Address(raw), nil
}

func parseHandles(hexHandles []string) ([registry.NumFields]common.Hash, error) {
	var handles [registry.NumFields]common.Hash
	if len(hexHandles) != registry.NumFields {
		return handles, fmt.Errorf("%w: got %d", ErrBadHandleCount, len(hexHandles))
	}
	for i, h := range hexHandles {
		handles[i] = common.HexToHash(h)
	}
	return handles, nil
}

// ========================
// Profile RPCs
// ========================

// CreateProfileArgs carries the seven handles plus the combined input proof,
// all hex-encoded.
type CreateProfileArgs struct {
	Handles    []string `json:"handles"`
	InputProof string   `json:"inputProof"`
}

type CreateProfileReply struct {
	Owner string `json:"owner"`
}

func (s *Service) CreateProfile(ctx context.Context, args *CreateProfileArgs, reply *CreateProfileReply) error {
	if s.registry == nil {
		return ErrNotInitialized
	}
	caller, err := s.caller(ctx)
	if err != nil {
		return err
	}
	handles, err := parseHandles(args.Handles)
	if err != nil {
		return err
	}
	if err := s.registry.CreateProfile(caller, handles, common.FromHex(args.InputProof)); err != nil {
		return err
	}
	s.metrics.IncProfileWrites()
	reply.Owner = caller.Hex()
	return nil
}

type UpdateProfileArgs struct {
	Handles    []string `json:"handles"`
	InputProof string   `json:"inputProof"`
}

type UpdateProfileReply struct {
	Owner string `json:"owner"`
}

func (s *Service) UpdateProfile(ctx context.Context, args *UpdateProfileArgs, reply *UpdateProfileReply) error {
	if s.registry == nil {
		return ErrNotInitialized
	}
	caller, err := s.caller(ctx)
	if err != nil {
		return err
	}
	handles, err := parseHandles(args.Handles)
	if err != nil {
		return err
	}
	if err := s.registry.UpdateProfile(caller, handles, common.FromHex(args.InputProof)); err != nil {
		return err
	}
	s.metrics.IncProfileWrites()
	reply.Owner = caller.Hex()
	return nil
}

type GetProfileArgs struct{}

type GetProfileReply struct {
	Handles []string `json:"handles"`
}

// GetProfile returns the caller's own handle set.
func (s *Service) GetProfile(ctx context.Context, _ *GetProfileArgs, reply *GetProfileReply) error {
	if s.registry == nil {
		return ErrNotInitialized
	}
	caller, err := s.caller(ctx)
	if err != nil {
		return err
	}
	handles, err := s.registry.Profile(caller)
	if err != nil {
		return err
	}
	reply.Handles = make([]string, registry.NumFields)
	for i, h := range handles {
		reply.Handles[i] = h.Hex()
	}
	return nil
}

type HasProfileArgs struct {
	Owner string `json:"owner"`
}

type HasProfileReply struct {
	HasProfile bool `json:"hasProfile"`
}

func (s *Service) HasProfile(_ context.Context, args *HasProfileArgs, reply *HasProfileReply) error {
	if s.registry == nil {
		return ErrNotInitialized
	}
	reply.HasProfile = s.registry.HasProfile(common.HexToAddress(args.Owner))
	return nil
}

type GetProfileOwnersArgs struct{}

type GetProfileOwnersReply struct {
	Owners []string `json:"owners"`
}

func (s *Service) GetProfileOwners(_ context.Context, _ *GetProfileOwnersArgs, reply *GetProfileOwnersReply) error {
	if s.registry == nil {
		return ErrNotInitialized
	}
	owners, err := s.registry.ProfileOwners()
	if err != nil {
		return err
	}
	reply.Owners = make([]string, len(owners))
	for i, o := range owners {
		reply.Owners[i] = o.Hex()
	}
	return nil
}

type GetEncryptedFieldArgs struct {
	Owner string `json:"owner"`
	Field uint8  `json:"field"`
}

type GetEncryptedFieldReply struct {
	Handle string `json:"handle"`
}

func (s *Service) GetEncryptedField(_ context.Context, args *GetEncryptedFieldArgs, reply *GetEncryptedFieldReply) error {
	if s.registry == nil {
		return ErrNotInitialized
	}
	field, err := registry.ParseField(args.Field)
	if err != nil {
		return err
	}
	handle, err := s.registry.EncryptedField(common.HexToAddress(args.Owner), field)
	if err != nil {
		return err
	}
	s.metrics.IncUserDecryptReads()
	reply.Handle = handle.Hex()
	return nil
}

// ========================
// Access request RPCs
// ========================

type RequestAccessArgs struct {
	Owner   string `json:"owner"`
	Message string `json:"message"`
}

type RequestAccessReply struct{}

func (s *Service) RequestAccess(ctx context.Context, args *RequestAccessArgs, _ *RequestAccessReply) error {
	if s.registry == nil {
		return ErrNotInitialized
	}
	caller, err := s.caller(ctx)
	if err != nil {
		return err
	}
	if err := s.registry.RequestAccess(caller, common.HexToAddress(args.Owner), args.Message); err != nil {
		return err
	}
	s.metrics.IncAccessOps()
	return nil
}

type GrantAccessArgs struct {
	Requester string  `json:"requester"`
	Fields    []uint8 `json:"fields"`
}

type GrantAccessReply struct{}

func (s *Service) GrantAccess(ctx context.Context, args *GrantAccessArgs, _ *GrantAccessReply) error {
	if s.registry == nil {
		return ErrNotInitialized
	}
	caller, err := s.caller(ctx)
	if err != nil {
		return err
	}
	fields := make([]registry.Field, 0, len(args.Fields))
	for _, raw := range args.Fields {
		f, err := registry.ParseField(raw)
		if err != nil {
			return err
		}
		fields = append(fields, f)
	}
	if err := s.registry.GrantAccess(caller, common.HexToAddress(args.Requester), fields); err != nil {
		return err
	}
	s.metrics.IncAccessOps()
	return nil
}

type RevokeAccessArgs struct {
	Requester string `json:"requester"`
}

type RevokeAccessReply struct{}

func (s *Service) RevokeAccess(ctx context.Context, args *RevokeAccessArgs, _ *RevokeAccessReply) error {
	if s.registry == nil {
		return ErrNotInitialized
	}
	caller, err := s.caller(ctx)
	if err != nil {
		return err
	}
	if err := s.registry.RevokeAccess(caller, common.HexToAddress(args.Requester)); err != nil {
		return err
	}
	s.metrics.IncAccessOps()
	return nil
}

type GetAccessRequestStatusArgs struct {
	Owner     string `json:"owner"`
	Requester string `json:"requester"`
}

type GetAccessRequestStatusReply struct {
	Exists    bool   `json:"exists"`
	Pending   bool   `json:"pending"`
	Granted   bool   `json:"granted"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

func (s *Service) GetAccessRequestStatus(_ context.Context, args *GetAccessRequestStatusArgs, reply *GetAccessRequestStatusReply) error {
	if s.registry == nil {
		return ErrNotInitialized
	}
	status, err := s.registry.AccessRequestStatus(
		common.HexToAddress(args.Owner),
		common.HexToAddress(args.Requester),
	)
	if err != nil {
		return err
	}
	reply.Exists = status.Exists
	reply.Pending = status.Pending
	reply.Granted = status.Granted
	reply.Message = status.Message
	reply.Timestamp = status.Timestamp
	return nil
}

type GetGrantedFieldsArgs struct {
	Owner     string `json:"owner"`
	Requester string `json:"requester"`
}

type GetGrantedFieldsReply struct {
	Fields []uint8 `json:"fields"`
}

func (s *Service) GetGrantedFields(_ context.Context, args *GetGrantedFieldsArgs, reply *GetGrantedFieldsReply) error {
	if s.registry == nil {
		return ErrNotInitialized
	}
	granted, err := s.registry.GrantedFields(
		common.HexToAddress(args.Owner),
		common.HexToAddress(args.Requester),
	)
	if err != nil {
		return err
	}
	reply.Fields = make([]uint8, 0, registry.NumFields)
	for f, g := range granted {
		if g {
			reply.Fields = append(reply.Fields, uint8(f))
		}
	}
	return nil
}

type GetRequestsArgs struct {
	Address string `json:"address"`
}

type GetRequestsReply struct {
	Addresses []string `json:"addresses"`
}

// GetIncomingRequests lists requesters against the given owner.
func (s *Service) GetIncomingRequests(_ context.Context, args *GetRequestsArgs, reply *GetRequestsReply) error {
	if s.registry == nil {
		return ErrNotInitialized
	}
	addrs, err := s.registry.IncomingRequests(common.HexToAddress(args.Address))
	if err != nil {
		return err
	}
	reply.Addresses = hexAddresses(addrs)
	return nil
}

// GetOutgoingRequests lists owners the given requester has approached.
func (s *Service) GetOutgoingRequests(_ context.Context, args *GetRequestsArgs, reply *GetRequestsReply) error {
	if s.registry == nil {
		return ErrNotInitialized
	}
	addrs, err := s.registry.OutgoingRequests(common.HexToAddress(args.Address))
	if err != nil {
		return err
	}
	reply.Addresses = hexAddresses(addrs)
	return nil
}

// ========================
// Public decryption RPCs
// ========================

type RequestFieldDecryptionArgs struct {
	Field uint8 `json:"field"`
}

type RequestFieldDecryptionReply struct{}

func (s *Service) RequestFieldDecryption(ctx context.Context, args *RequestFieldDecryptionArgs, _ *RequestFieldDecryptionReply) error {
	if s.registry == nil {
		return ErrNotInitialized
	}
	caller, err := s.caller(ctx)
	if err != nil {
		return err
	}
	field, err := registry.ParseField(args.Field)
	if err != nil {
		return err
	}
	if err := s.registry.RequestFieldDecryption(caller, field); err != nil {
		return err
	}
	s.metrics.IncPublications()
	return nil
}

type GetPendingFieldHandleArgs struct {
	Owner string `json:"owner"`
	Field uint8  `json:"field"`
}

type GetPendingFieldHandleReply struct {
	Handle string `json:"handle"`
}

func (s *Service) GetPendingFieldHandle(_ context.Context, args *GetPendingFieldHandleArgs, reply *GetPendingFieldHandleReply) error {
	if s.registry == nil {
		return ErrNotInitialized
	}
	field, err := registry.ParseField(args.Field)
	if err != nil {
		return err
	}
	handle, err := s.registry.PendingFieldHandle(common.HexToAddress(args.Owner), field)
	if err != nil {
		return err
	}
	reply.Handle = handle.Hex()
	return nil
}

type SubmitFieldDecryptionArgs struct {
	Owner   string `json:"owner"`
	Field   uint8  `json:"field"`
	Value   uint64 `json:"value"`
	Encoded string `json:"encoded"`
	Proof   string `json:"proof"`
}

type SubmitFieldDecryptionReply struct{}

func (s *Service) SubmitFieldDecryption(ctx context.Context, args *SubmitFieldDecryptionArgs, _ *SubmitFieldDecryptionReply) error {
	if s.registry == nil {
		return ErrNotInitialized
	}
	caller, err := s.caller(ctx)
	if err != nil {
		return err
	}
	field, err := registry.ParseField(args.Field)
	if err != nil {
		return err
	}
	if err := s.registry.SubmitFieldDecryption(
		caller,
		common.HexToAddress(args.Owner),
		field,
		args.Value,
		common.FromHex(args.Encoded),
		common.FromHex(args.Proof),
	); err != nil {
		return err
	}
	s.metrics.IncPublications()
	return nil
}

type ViewSharedFieldArgs struct {
	Owner string `json:"owner"`
	Field uint8  `json:"field"`
}

type ViewSharedFieldReply struct {
	Value   uint64 `json:"value"`
	Display string `json:"display"`
}

func (s *Service) ViewSharedField(_ context.Context, args *ViewSharedFieldArgs, reply *ViewSharedFieldReply) error {
	if s.registry == nil {
		return ErrNotInitialized
	}
	field, err := registry.ParseField(args.Field)
	if err != nil {
		return err
	}
	value, err := s.registry.SharedField(common.HexToAddress(args.Owner), field)
	if err != nil {
		return err
	}
	reply.Value = value
	reply.Display = field.DecodeValue(value)
	return nil
}

// ========================
// Introspection RPCs
// ========================

type GetEventsArgs struct {
	From  uint64 `json:"from"`
	Limit int    `json:"limit"`
}

type EventInfo struct {
	Sequence  uint64  `json:"sequence"`
	Type      string  `json:"type"`
	Owner     string  `json:"owner"`
	Requester string  `json:"requester,omitempty"`
	Fields    []uint8 `json:"fields,omitempty"`
	Message   string  `json:"message,omitempty"`
	Value     uint64  `json:"value,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

type GetEventsReply struct {
	Events []EventInfo `json:"events"`
	Head   uint64      `json:"head"`
}

func (s *Service) GetEvents(_ context.Context, args *GetEventsArgs, reply *GetEventsReply) error {
	if s.registry == nil {
		return ErrNotInitialized
	}
	limit := args.Limit
	if limit <= 0 || limit > 1024 {
		limit = 1024
	}
	events, err := s.registry.Events(args.From, limit)
	if err != nil {
		return err
	}
	reply.Head = s.registry.EventHead()
	reply.Events = make([]EventInfo, len(events))
	for i, ev := range events {
		info := EventInfo{
			Sequence:  ev.Sequence,
			Type:      ev.Type.String(),
			Owner:     ev.Owner.Hex(),
			Fields:    ev.Fields,
			Message:   ev.Message,
			Value:     ev.Value,
			Timestamp: ev.Timestamp,
		}
		if (ev.Requester != common.Address{}) {
			info.Requester = ev.Requester.Hex()
		}
		reply.Events[i] = info
	}
	return nil
}

type GetStatusArgs struct{}

type GetStatusReply struct {
	ChainID      string `json:"chainId"`
	EngineStatus string `json:"engineStatus"`
	EngineSigner string `json:"engineSigner,omitempty"`
	EventHead    uint64 `json:"eventHead"`
}

// GetStatus reports chain identity, engine lifecycle state, and event head.
func (s *Service) GetStatus(_ context.Context, _ *GetStatusArgs, reply *GetStatusReply) error {
	if s.registry == nil {
		return ErrNotInitialized
	}
	reply.ChainID = s.chainID.String()
	reply.EventHead = s.registry.EventHead()
	reply.EngineStatus = s.loader.Status().String()
	if eng, err := s.loader.Engine(); err == nil {
		reply.EngineSigner = eng.SignerAddress().Hex()
	}
	return nil
}

func hexAddresses(addrs []common.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.Hex()
	}
	return out
}
