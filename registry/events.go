// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"github.com/luxfi/geth/common"
)

// EventType enumerates the ledger events emitted by the registry.
type EventType uint8

const (
	EventProfileCreated EventType = iota
	EventProfileUpdated
	EventAccessRequested
	EventAccessGranted
	EventAccessRevoked
	EventFieldMarkedForDecryption
	EventFieldDecrypted
)

func (t EventType) String() string {
	switch t {
	case EventProfileCreated:
		return "ProfileCreated"
	case EventProfileUpdated:
		return "ProfileUpdated"
	case EventAccessRequested:
		return "AccessRequested"
	case EventAccessGranted:
		return "AccessGranted"
	case EventAccessRevoked:
		return "AccessRevoked"
	case EventFieldMarkedForDecryption:
		return "FieldMarkedForDecryption"
	case EventFieldDecrypted:
		return "FieldDecrypted"
	default:
		return "unknown"
	}
}

// Event is one entry of the registry's append-only event log. Only the
// attributes relevant to the event type are populated; FieldDecrypted is the
// single event carrying a plaintext value.
type Event struct {
	Sequence  uint64
	Type      EventType
	Owner     common.Address
	Requester common.Address
	Fields    []uint8
	Message   string
	Value     uint64
	Timestamp int64
}

// EventSink receives events as they are committed. Sinks run synchronously
// inside the registry's ledger lock and must not call back into the registry.
type EventSink func(Event)
