// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ledger

import (
	"math/big"

	"github.com/blinklabs-io/kennel/asset"
	"github.com/blinklabs-io/kennel/event"
)

const (
	PlanCreatedEventType     event.EventType = "plan.created"
	PlanRedeemedEventType    event.EventType = "plan.redeemed"
	PlanRevokedEventType     event.EventType = "plan.revoked"
	PlanSegmentedEventType   event.EventType = "plan.segmented"
	PlansCombinedEventType   event.EventType = "plan.combined"
	PlanTransferredEventType event.EventType = "plan.transferred"
	AdminChangedEventType    event.EventType = "plan.admin_changed"
	VaultCreatedEventType    event.EventType = "vault.created"
	VaultDelegatedEventType  event.EventType = "vault.delegated"
)

// EventTypes lists every event type the ledger publishes, in a stable
// order. Consumers that want the full stream (e.g. the event journal)
// subscribe to each.
func EventTypes() []event.EventType {
	return []event.EventType{
		PlanCreatedEventType,
		PlanRedeemedEventType,
		PlanRevokedEventType,
		PlanSegmentedEventType,
		PlansCombinedEventType,
		PlanTransferredEventType,
		AdminChangedEventType,
		VaultCreatedEventType,
		VaultDelegatedEventType,
	}
}

type PlanCreatedEvent struct {
	Plan Plan
}

type PlanRedeemedEvent struct {
	Balance      *big.Int
	Remainder    *big.Int
	Plan         Plan
	LatestUnlock int64
}

type PlanRevokedEvent struct {
	Balance   *big.Int
	Remainder *big.Int
	Plan      Plan
}

type PlanSegmentedEvent struct {
	Original Plan
	Segment  Plan
}

type PlansCombinedEvent struct {
	Surviving  Plan
	AbsorbedId PlanId
}

type PlanTransferredEvent struct {
	Plan Plan
	From asset.Address
	To   asset.Address
}

type AdminChangedEvent struct {
	Plan     Plan
	OldAdmin asset.Address
	NewAdmin asset.Address
}

type VaultCreatedEvent struct {
	PlanId  PlanId
	Account asset.Address
}

type VaultDelegatedEvent struct {
	PlanId   PlanId
	Account  asset.Address
	Delegate asset.Address
}
