// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package engine

import (
	"sync"

	"github.com/luxfi/geth/common"
)

// ACL is the engine-side permission table mapping ciphertext handles to the
// accounts allowed to user-decrypt them. The ledger drives Allow/Revoke;
// UserDecrypt enforces IsAllowed.
type ACL struct {
	mu      sync.RWMutex
	allowed map[common.Hash]map[common.Address]bool
}

// NewACL creates an empty access list.
func NewACL() *ACL {
	return &ACL{allowed: make(map[common.Hash]map[common.Address]bool)}
}

// Allow permits account to decrypt the ciphertext behind handle.
func (a *ACL) Allow(handle common.Hash, account common.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()

	accounts, ok := a.allowed[handle]
	if !ok {
		accounts = make(map[common.Address]bool)
		a.allowed[handle] = accounts
	}
	accounts[account] = true
}

// Revoke removes account's permission for handle.
func (a *ACL) Revoke(handle common.Hash, account common.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if accounts, ok := a.allowed[handle]; ok {
		delete(accounts, account)
		if len(accounts) == 0 {
			delete(a.allowed, handle)
		}
	}
}

// IsAllowed reports whether account may decrypt handle.
func (a *ACL) IsAllowed(handle common.Hash, account common.Address) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.allowed[handle][account]
}
