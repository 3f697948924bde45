// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package registry implements the ledger-resident state machine of the
// confidential identity system: encrypted profile storage, the access-request
// ledger, per-field grant bookkeeping, and the public-decryption pipeline.
//
// Every mutating operation is serialized under one lock and committed through
// a single database batch, mirroring the transaction ordering and atomicity
// the hosting ledger provides. Plaintext never enters this package except
// through SubmitFieldDecryption, whose value is public by construction.
package registry

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
)

var (
	ErrProfileAlreadyExists  = errors.New("profile already exists")
	ErrProfileNotFound       = errors.New("profile not found")
	ErrCannotRequestOwnData  = errors.New("cannot request access to own data")
	ErrRequestAlreadyPending = errors.New("access request already pending")
	ErrNoAccessRequest       = errors.New("no access request")
	ErrNoPendingDecryption   = errors.New("no pending field decryption")
	ErrFieldNotPublished     = errors.New("field not publicly decrypted")
	ErrInvalidInputProof     = errors.New("input proof verification failed")
	ErrInvalidDecryptProof   = errors.New("decryption proof verification failed")
)

var (
	// Database prefixes for the individual registries
	profilePrefix  = []byte("pf:")
	requestPrefix  = []byte("ar:")
	incomingPrefix = []byte("in:")
	outgoingPrefix = []byte("out:")
	pendingPrefix  = []byte("pd:")
	sharedPrefix   = []byte("sh:")
	eventPrefix    = []byte("ev:")

	ownersKey    = []byte("owners")
	eventHeadKey = []byte("ev:head")
)

// AccessList is the engine-enforced permission table the registry drives.
// Allowing an account for a handle is what ultimately lets the engine hand
// that account the cleartext during user decryption.
type AccessList interface {
	Allow(handle common.Hash, account common.Address)
	Revoke(handle common.Hash, account common.Address)
}

// ProofVerifier checks engine-issued proofs carried in transactions.
type ProofVerifier interface {
	// VerifyInputProof checks that the handle set was produced by the engine
	// for this contract and user.
	VerifyInputProof(contract, user common.Address, handles []common.Hash, proof []byte) error
	// VerifyDecryptionProof checks that encoded is the correct public opening
	// of the given handle.
	VerifyDecryptionProof(handle common.Hash, encoded []byte, proof []byte) error
}

// RequestStatus is the read model of one (owner, requester) access request.
type RequestStatus struct {
	Exists    bool   `json:"exists"`
	Pending   bool   `json:"pending"`
	Granted   bool   `json:"granted"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type profileRecord struct {
	Owner     common.Address         `json:"owner"`
	Handles   [NumFields]common.Hash `json:"handles"`
	CreatedAt int64                  `json:"created_at"`
	UpdatedAt int64                  `json:"updated_at"`
	Version   uint64                 `json:"version"`
}

type accessRecord struct {
	Owner     common.Address  `json:"owner"`
	Requester common.Address  `json:"requester"`
	Message   string          `json:"message"`
	Timestamp int64           `json:"timestamp"`
	Pending   bool            `json:"pending"`
	Granted   bool            `json:"granted"`
	Fields    [NumFields]bool `json:"fields"`
}

type pendingDecryption struct {
	Owner       common.Address `json:"owner"`
	Field       Field          `json:"field"`
	Handle      common.Hash    `json:"handle"`
	RequestedAt int64          `json:"requested_at"`
}

type sharedField struct {
	Owner       common.Address `json:"owner"`
	Field       Field          `json:"field"`
	Value       uint64         `json:"value"`
	Encoded     []byte         `json:"encoded"`
	DecryptedAt int64          `json:"decrypted_at"`
}

// Registry provides persistent storage and the transition rules for
// confidential identity state.
type Registry struct {
	db       database.Database
	contract common.Address
	acl      AccessList
	verifier ProofVerifier
	logger   log.Logger

	mu       sync.RWMutex
	eventSeq uint64
	sink     EventSink
}

// New creates a registry over the given database. The contract address is the
// registry's own ledger identity; input proofs are verified against it.
func New(
	db database.Database,
	contract common.Address,
	acl AccessList,
	verifier ProofVerifier,
	logger log.Logger,
) (*Registry, error) {
	r := &Registry{
		db:       db,
		contract: contract,
		acl:      acl,
		verifier: verifier,
		logger:   logger,
	}

	headBytes, err := db.Get(eventHeadKey)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("failed to load event head: %w", err)
	}
	if headBytes != nil {
		r.eventSeq = binary.BigEndian.Uint64(headBytes)
	}

	return r, nil
}

// SetEventSink installs a callback invoked for every committed event.
func (r *Registry) SetEventSink(sink EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = sink
}

// ========================
// Encrypted Field Store
// ========================

// CreateProfile stores the caller's seven field handles after checking the
// combined input proof. Fails if the caller already has a profile.
func (r *Registry) CreateProfile(owner common.Address, handles [NumFields]common.Hash, proof []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.getProfile(owner); err == nil {
		return ErrProfileAlreadyExists
	}

	if err := r.verifier.VerifyInputProof(r.contract, owner, handles[:], proof); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInputProof, err)
	}

	now := time.Now().Unix()
	record := &profileRecord{
		Owner:     owner,
		Handles:   handles,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}

	batch := r.db.NewBatch()
	if err := putJSON(batch, profileKey(owner), record); err != nil {
		return err
	}

	owners, err := r.loadAddrList(ownersKey)
	if err != nil {
		return err
	}
	owners = appendAddr(owners, owner)
	if err := putJSON(batch, ownersKey, owners); err != nil {
		return err
	}

	ev, err := r.appendEvent(batch, Event{
		Type:      EventProfileCreated,
		Owner:     owner,
		Timestamp: now,
	})
	if err != nil {
		return err
	}
	if err := r.commit(batch, ev); err != nil {
		return err
	}

	for _, h := range handles {
		r.acl.Allow(h, owner)
	}

	r.logger.Info("Created profile", "owner", owner.Hex())
	return nil
}

// UpdateProfile atomically replaces all seven handles and clears every grant
// issued against the previous handle set. The grant reset happens in the same
// batch as the handle swap so no requester can observe new handles under a
// stale grant or vice versa.
func (r *Registry) UpdateProfile(owner common.Address, handles [NumFields]common.Hash, proof []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, err := r.getProfile(owner)
	if err != nil {
		return err
	}

	if err := r.verifier.VerifyInputProof(r.contract, owner, handles[:], proof); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInputProof, err)
	}

	now := time.Now().Unix()
	record := &profileRecord{
		Owner:     owner,
		Handles:   handles,
		CreatedAt: old.CreatedAt,
		UpdatedAt: now,
		Version:   old.Version + 1,
	}

	batch := r.db.NewBatch()
	if err := putJSON(batch, profileKey(owner), record); err != nil {
		return err
	}

	requesters, err := r.loadAddrList(incomingKey(owner))
	if err != nil {
		return err
	}

	type revocation struct {
		handle  common.Hash
		account common.Address
	}
	var revoked []revocation
	clearedRequesters := 0

	for _, requester := range requesters {
		rec, err := r.getRequest(owner, requester)
		if err != nil {
			if errors.Is(err, ErrNoAccessRequest) {
				continue
			}
			return err
		}
		for f, granted := range rec.Fields {
			if granted {
				revoked = append(revoked, revocation{handle: old.Handles[f], account: requester})
			}
		}
		if rec.Granted || anyGranted(rec.Fields) {
			clearedRequesters++
		}
		rec.Granted = false
		rec.Pending = false
		rec.Fields = [NumFields]bool{}
		if err := putJSON(batch, requestKey(owner, requester), rec); err != nil {
			return err
		}
	}

	ev, err := r.appendEvent(batch, Event{
		Type:      EventProfileUpdated,
		Owner:     owner,
		Timestamp: now,
	})
	if err != nil {
		return err
	}
	if err := r.commit(batch, ev); err != nil {
		return err
	}

	for _, rv := range revoked {
		r.acl.Revoke(rv.handle, rv.account)
	}
	for _, h := range handles {
		r.acl.Allow(h, owner)
	}

	r.logger.Info("Updated profile",
		"owner", owner.Hex(),
		"version", record.Version,
		"clearedRequesters", clearedRequesters)
	return nil
}

// Profile returns the caller's own handle set.
func (r *Registry) Profile(owner common.Address) ([NumFields]common.Hash, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, err := r.getProfile(owner)
	if err != nil {
		return [NumFields]common.Hash{}, err
	}
	return record.Handles, nil
}

// EncryptedField returns the handle of one field. The handle itself is not
// secret; the engine's access list gates decryption, not this read.
func (r *Registry) EncryptedField(owner common.Address, field Field) (common.Hash, error) {
	if !field.Valid() {
		return common.Hash{}, ErrInvalidField
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	record, err := r.getProfile(owner)
	if err != nil {
		return common.Hash{}, err
	}
	return record.Handles[field], nil
}

// HasProfile reports whether the address owns a profile.
func (r *Registry) HasProfile(owner common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, err := r.getProfile(owner)
	return err == nil
}

// ProfileOwners returns every address that has created a profile.
func (r *Registry) ProfileOwners() ([]common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadAddrList(ownersKey)
}

// ========================
// Access Request Ledger
// ========================

// RequestAccess opens a pending access request from requester to owner.
func (r *Registry) RequestAccess(requester, owner common.Address, message string) error {
	if requester == owner {
		return ErrCannotRequestOwnData
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.getProfile(owner); err != nil {
		return err
	}

	if existing, err := r.getRequest(owner, requester); err == nil {
		if existing.Pending || existing.Granted {
			return ErrRequestAlreadyPending
		}
	} else if !errors.Is(err, ErrNoAccessRequest) {
		return err
	}

	now := time.Now().Unix()
	rec := &accessRecord{
		Owner:     owner,
		Requester: requester,
		Message:   message,
		Timestamp: now,
		Pending:   true,
	}

	batch := r.db.NewBatch()
	if err := putJSON(batch, requestKey(owner, requester), rec); err != nil {
		return err
	}
	if err := r.addToIndex(batch, incomingKey(owner), requester); err != nil {
		return err
	}
	if err := r.addToIndex(batch, outgoingKey(requester), owner); err != nil {
		return err
	}
	ev, err := r.appendEvent(batch, Event{
		Type:      EventAccessRequested,
		Owner:     owner,
		Requester: requester,
		Message:   message,
		Timestamp: now,
	})
	if err != nil {
		return err
	}
	if err := r.commit(batch, ev); err != nil {
		return err
	}

	r.logger.Info("Access requested",
		"owner", owner.Hex(),
		"requester", requester.Hex())
	return nil
}

// GrantAccess marks the request granted and sets the per-field permission set
// to exactly the named fields. Re-calling adjusts the set: fields newly named
// gain engine access, fields no longer named lose it.
func (r *Registry) GrantAccess(owner, requester common.Address, fields []Field) error {
	var want [NumFields]bool
	for _, f := range fields {
		if !f.Valid() {
			return fmt.Errorf("%w: index %d", ErrInvalidField, uint8(f))
		}
		want[f] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.getRequest(owner, requester)
	if err != nil {
		return err
	}

	profile, err := r.getProfile(owner)
	if err != nil {
		return err
	}

	prev := rec.Fields
	rec.Granted = true
	rec.Pending = false
	rec.Fields = want

	now := time.Now().Unix()
	granted := make([]uint8, 0, len(fields))
	for f, g := range want {
		if g {
			granted = append(granted, uint8(f))
		}
	}

	batch := r.db.NewBatch()
	if err := putJSON(batch, requestKey(owner, requester), rec); err != nil {
		return err
	}
	ev, err := r.appendEvent(batch, Event{
		Type:      EventAccessGranted,
		Owner:     owner,
		Requester: requester,
		Fields:    granted,
		Timestamp: now,
	})
	if err != nil {
		return err
	}
	if err := r.commit(batch, ev); err != nil {
		return err
	}

	for f := 0; f < NumFields; f++ {
		switch {
		case want[f] && !prev[f]:
			r.acl.Allow(profile.Handles[f], requester)
		case !want[f] && prev[f]:
			r.acl.Revoke(profile.Handles[f], requester)
		}
	}

	r.logger.Info("Access granted",
		"owner", owner.Hex(),
		"requester", requester.Hex(),
		"fields", len(granted))
	return nil
}

// RevokeAccess removes the request entirely, clearing all field grants. The
// requester may issue a fresh request afterwards.
func (r *Registry) RevokeAccess(owner, requester common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.getRequest(owner, requester)
	if err != nil {
		return err
	}

	profile, profileErr := r.getProfile(owner)

	now := time.Now().Unix()
	batch := r.db.NewBatch()
	if err := batch.Delete(requestKey(owner, requester)); err != nil {
		return err
	}
	if err := r.removeFromIndex(batch, incomingKey(owner), requester); err != nil {
		return err
	}
	if err := r.removeFromIndex(batch, outgoingKey(requester), owner); err != nil {
		return err
	}
	ev, err := r.appendEvent(batch, Event{
		Type:      EventAccessRevoked,
		Owner:     owner,
		Requester: requester,
		Timestamp: now,
	})
	if err != nil {
		return err
	}
	if err := r.commit(batch, ev); err != nil {
		return err
	}

	if profileErr == nil {
		for f, granted := range rec.Fields {
			if granted {
				r.acl.Revoke(profile.Handles[f], requester)
			}
		}
	}

	r.logger.Info("Access revoked",
		"owner", owner.Hex(),
		"requester", requester.Hex())
	return nil
}

// AccessRequestStatus returns the read model for one (owner, requester) pair.
// A missing request is reported via Exists=false, not an error.
func (r *Registry) AccessRequestStatus(owner, requester common.Address) (RequestStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, err := r.getRequest(owner, requester)
	if err != nil {
		if errors.Is(err, ErrNoAccessRequest) {
			return RequestStatus{}, nil
		}
		return RequestStatus{}, err
	}
	return RequestStatus{
		Exists:    true,
		Pending:   rec.Pending,
		Granted:   rec.Granted,
		Message:   rec.Message,
		Timestamp: rec.Timestamp,
	}, nil
}

// GrantedFields returns the seven per-field grant booleans.
func (r *Registry) GrantedFields(owner, requester common.Address) ([NumFields]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, err := r.getRequest(owner, requester)
	if err != nil {
		if errors.Is(err, ErrNoAccessRequest) {
			return [NumFields]bool{}, nil
		}
		return [NumFields]bool{}, err
	}
	return rec.Fields, nil
}

// IncomingRequests lists requesters with a live request against owner.
func (r *Registry) IncomingRequests(owner common.Address) ([]common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadAddrList(incomingKey(owner))
}

// OutgoingRequests lists owners the requester has a live request against.
func (r *Registry) OutgoingRequests(requester common.Address) ([]common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadAddrList(outgoingKey(requester))
}

// ========================
// Public decryption pipeline
// ========================

// RequestFieldDecryption marks one of the owner's fields for public
// decryption, capturing the current handle. Re-marking after a profile update
// re-captures the fresh handle.
func (r *Registry) RequestFieldDecryption(owner common.Address, field Field) error {
	if !field.Valid() {
		return ErrInvalidField
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	profile, err := r.getProfile(owner)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	rec := &pendingDecryption{
		Owner:       owner,
		Field:       field,
		Handle:      profile.Handles[field],
		RequestedAt: now,
	}

	batch := r.db.NewBatch()
	if err := putJSON(batch, pendingKey(owner, field), rec); err != nil {
		return err
	}
	ev, err := r.appendEvent(batch, Event{
		Type:      EventFieldMarkedForDecryption,
		Owner:     owner,
		Fields:    []uint8{uint8(field)},
		Timestamp: now,
	})
	if err != nil {
		return err
	}
	if err := r.commit(batch, ev); err != nil {
		return err
	}

	r.logger.Info("Field marked for public decryption",
		"owner", owner.Hex(),
		"field", field.String())
	return nil
}

// PendingFieldHandle returns the handle captured by RequestFieldDecryption.
func (r *Registry) PendingFieldHandle(owner common.Address, field Field) (common.Hash, error) {
	if !field.Valid() {
		return common.Hash{}, ErrInvalidField
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var rec pendingDecryption
	if err := r.getJSON(pendingKey(owner, field), &rec); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return common.Hash{}, ErrNoPendingDecryption
		}
		return common.Hash{}, err
	}
	return rec.Handle, nil
}

// SubmitFieldDecryption verifies the decryption proof against the pending
// handle and, on success, permanently publishes the cleartext. The pending
// record is consumed in the same batch, so a second submission for the same
// pending decryption fails with ErrNoPendingDecryption: first valid proof
// wins and the published value can never change.
func (r *Registry) SubmitFieldDecryption(
	submitter, owner common.Address,
	field Field,
	value uint64,
	encoded []byte,
	proof []byte,
) error {
	if !field.Valid() {
		return ErrInvalidField
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var pending pendingDecryption
	if err := r.getJSON(pendingKey(owner, field), &pending); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrNoPendingDecryption
		}
		return err
	}

	if len(encoded) != 32 || binary.BigEndian.Uint64(encoded[24:]) != value {
		return ErrInvalidDecryptProof
	}
	if err := r.verifier.VerifyDecryptionProof(pending.Handle, encoded, proof); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDecryptProof, err)
	}

	now := time.Now().Unix()
	rec := &sharedField{
		Owner:       owner,
		Field:       field,
		Value:       value,
		Encoded:     encoded,
		DecryptedAt: now,
	}

	batch := r.db.NewBatch()
	if err := putJSON(batch, sharedKey(owner, field), rec); err != nil {
		return err
	}
	if err := batch.Delete(pendingKey(owner, field)); err != nil {
		return err
	}
	ev, err := r.appendEvent(batch, Event{
		Type:      EventFieldDecrypted,
		Owner:     owner,
		Fields:    []uint8{uint8(field)},
		Value:     value,
		Timestamp: now,
	})
	if err != nil {
		return err
	}
	if err := r.commit(batch, ev); err != nil {
		return err
	}

	r.logger.Info("Field publicly decrypted",
		"owner", owner.Hex(),
		"field", field.String(),
		"submitter", submitter.Hex())
	return nil
}

// SharedField returns a publicly decrypted field value. Published values
// require no authorization by construction.
func (r *Registry) SharedField(owner common.Address, field Field) (uint64, error) {
	if !field.Valid() {
		return 0, ErrInvalidField
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var rec sharedField
	if err := r.getJSON(sharedKey(owner, field), &rec); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return 0, ErrFieldNotPublished
		}
		return 0, err
	}
	return rec.Value, nil
}

// ========================
// Event log
// ========================

// Events returns up to limit events starting at sequence from (1-based).
func (r *Registry) Events(from uint64, limit int) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if from == 0 {
		from = 1
	}

	events := make([]Event, 0, limit)
	for seq := from; seq <= r.eventSeq && len(events) < limit; seq++ {
		data, err := r.db.Get(eventKey(seq))
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				continue
			}
			return nil, err
		}
		var ev Event
		if _, err := Codec.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event %d: %w", seq, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// EventHead returns the sequence of the latest committed event.
func (r *Registry) EventHead() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.eventSeq
}

// appendEvent stages the event in the batch; nothing becomes visible until
// commit succeeds.
func (r *Registry) appendEvent(batch database.Batch, ev Event) (Event, error) {
	ev.Sequence = r.eventSeq + 1

	data, err := Codec.Marshal(codecVersion, &ev)
	if err != nil {
		return ev, fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := batch.Put(eventKey(ev.Sequence), data); err != nil {
		return ev, err
	}

	head := make([]byte, 8)
	binary.BigEndian.PutUint64(head, ev.Sequence)
	if err := batch.Put(eventHeadKey, head); err != nil {
		return ev, err
	}
	return ev, nil
}

// commit writes the batch, then advances the event head and notifies the sink.
func (r *Registry) commit(batch database.Batch, ev Event) error {
	if err := batch.Write(); err != nil {
		return err
	}
	r.eventSeq = ev.Sequence
	if r.sink != nil {
		r.sink(ev)
	}
	return nil
}

// ========================
// Internal helpers
// ========================

func (r *Registry) getProfile(owner common.Address) (*profileRecord, error) {
	var record profileRecord
	if err := r.getJSON(profileKey(owner), &record); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *Registry) getRequest(owner, requester common.Address) (*accessRecord, error) {
	var rec accessRecord
	if err := r.getJSON(requestKey(owner, requester), &rec); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrNoAccessRequest
		}
		return nil, err
	}
	return &rec, nil
}

func (r *Registry) getJSON(key []byte, v interface{}) error {
	data, err := r.db.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return nil
}

func putJSON(batch database.Batch, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return batch.Put(key, data)
}

func (r *Registry) loadAddrList(key []byte) ([]common.Address, error) {
	data, err := r.db.Get(key)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var list []common.Address
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to unmarshal address list: %w", err)
	}
	return list, nil
}

func (r *Registry) addToIndex(batch database.Batch, key []byte, addr common.Address) error {
	list, err := r.loadAddrList(key)
	if err != nil {
		return err
	}
	return putJSON(batch, key, appendAddr(list, addr))
}

func (r *Registry) removeFromIndex(batch database.Batch, key []byte, addr common.Address) error {
	list, err := r.loadAddrList(key)
	if err != nil {
		return err
	}
	filtered := make([]common.Address, 0, len(list))
	for _, a := range list {
		if a != addr {
			filtered = append(filtered, a)
		}
	}
	return putJSON(batch, key, filtered)
}

func appendAddr(list []common.Address, addr common.Address) []common.Address {
	for _, a := range list {
		if a == addr {
			return list
		}
	}
	return append(list, addr)
}

func anyGranted(fields [NumFields]bool) bool {
	for _, g := range fields {
		if g {
			return true
		}
	}
	return false
}

func profileKey(owner common.Address) []byte {
	return append(profilePrefix, owner.Bytes()...)
}

func requestKey(owner, requester common.Address) []byte {
	key := append(requestPrefix, owner.Bytes()...)
	return append(key, requester.Bytes()...)
}

func incomingKey(owner common.Address) []byte {
	return append(incomingPrefix, owner.Bytes()...)
}

func outgoingKey(requester common.Address) []byte {
	return append(outgoingPrefix, requester.Bytes()...)
}

func pendingKey(owner common.Address, field Field) []byte {
	key := append(pendingPrefix, owner.Bytes()...)
	return append(key, byte(field))
}

func sharedKey(owner common.Address, field Field) []byte {
	key := append(sharedPrefix, owner.Bytes()...)
	return append(key, byte(field))
}

func eventKey(seq uint64) []byte {
	key := make([]byte, len(eventPrefix)+8)
	copy(key, eventPrefix)
	binary.BigEndian.PutUint64(key[len(eventPrefix):], seq)
	return key
}
