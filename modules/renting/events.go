package renting

import (
	"github.com/Meeds-io/deeds-dapp-sub003/modules/renting/entity"
	"github.com/Meeds-io/deeds-dapp-sub003/pkg/event"
)

// Bus event types published by the renting services. Pending events fire when
// a mutation is recorded off-chain; confirmed events fire once the matching
// blockchain transaction is mined and reconciled.
const (
	EventOfferCreated               event.Type = "deed.event.offerCreated"
	EventOfferUpdated               event.Type = "deed.event.offerUpdated"
	EventOfferDeleted               event.Type = "deed.event.offerDeleted"
	EventOfferAcquisitionInProgress event.Type = "deed.event.offerAcquisitionInProgress"
	EventOfferCreationConfirmed     event.Type = "deed.event.offerCreationConfirmed"
	EventOfferUpdateConfirmed       event.Type = "deed.event.offerUpdateConfirmed"
	EventOfferDeleteConfirmed       event.Type = "deed.event.offerDeleteConfirmed"
	EventOfferAcquisitionConfirmed  event.Type = "deed.event.offerAcquisitionConfirmed"
	EventOfferCanceled              event.Type = "deed.event.offerCanceled"
	EventLeaseAcquired              event.Type = "deed.event.leaseAcquired"
	EventLeaseAcquisitionConfirmed  event.Type = "deed.event.leaseAcquisitionConfirmed"
	EventLeaseRentPaid              event.Type = "deed.event.leaseRentPaid"
	EventLeaseRentPaymentConfirmed  event.Type = "deed.event.leaseRentPaymentConfirmed"
	EventLeaseEnded                 event.Type = "deed.event.leaseEnded"
	EventLeaseEndConfirmed          event.Type = "deed.event.leaseEndConfirmed"
	EventLeaseOwnershipTransferred  event.Type = "deed.event.leaseOwnershipTransferred"
	EventOfferTransactionFailed     event.Type = "deed.event.offerTransactionFailed"
	EventLeaseTransactionFailed     event.Type = "deed.event.leaseTransactionFailed"
)

// OfferCreatedEvent fires when a new offer is stored, pending confirmation.
type OfferCreatedEvent struct{ Offer entity.Offer }

func (OfferCreatedEvent) EventType() event.Type { return EventOfferCreated }

// OfferUpdatedEvent fires when an update change-log row is recorded.
type OfferUpdatedEvent struct {
	Offer     entity.Offer
	ChangeLog entity.Offer
}

func (OfferUpdatedEvent) EventType() event.Type { return EventOfferUpdated }

// OfferDeletedEvent fires when a delete change-log row is recorded.
type OfferDeletedEvent struct {
	Offer     entity.Offer
	ChangeLog entity.Offer
}

func (OfferDeletedEvent) EventType() event.Type { return EventOfferDeleted }

// OfferAcquisitionInProgressEvent fires when an acquisition change-log row is
// recorded for a tenant candidate.
type OfferAcquisitionInProgressEvent struct {
	Offer     entity.Offer
	ChangeLog entity.Offer
}

func (OfferAcquisitionInProgressEvent) EventType() event.Type {
	return EventOfferAcquisitionInProgress
}

// OfferCreationConfirmedEvent fires when the creation transaction is mined and
// the offer carries its on-chain id.
type OfferCreationConfirmedEvent struct{ Offer entity.Offer }

func (OfferCreationConfirmedEvent) EventType() event.Type { return EventOfferCreationConfirmed }

// OfferUpdateConfirmedEvent fires when a pending update is folded into the
// canonical offer.
type OfferUpdateConfirmedEvent struct{ Offer entity.Offer }

func (OfferUpdateConfirmedEvent) EventType() event.Type { return EventOfferUpdateConfirmed }

// OfferDeleteConfirmedEvent fires when a pending delete disables the offer.
type OfferDeleteConfirmedEvent struct{ Offer entity.Offer }

func (OfferDeleteConfirmedEvent) EventType() event.Type { return EventOfferDeleteConfirmed }

// OfferAcquisitionConfirmedEvent fires when an acquisition is mined and the
// offer leaves the marketplace.
type OfferAcquisitionConfirmedEvent struct{ Offer entity.Offer }

func (OfferAcquisitionConfirmedEvent) EventType() event.Type { return EventOfferAcquisitionConfirmed }

// OfferCanceledEvent fires when offers are disabled in bulk after their owner
// loses the Deed.
type OfferCanceledEvent struct{ Offer entity.Offer }

func (OfferCanceledEvent) EventType() event.Type { return EventOfferCanceled }

// OfferTransactionFailedEvent fires when a pending offer mutation's
// transaction is mined without the expected contract event.
type OfferTransactionFailedEvent struct{ Offer entity.Offer }

func (OfferTransactionFailedEvent) EventType() event.Type { return EventOfferTransactionFailed }

// LeaseAcquiredEvent fires when a lease is stored, pending confirmation.
type LeaseAcquiredEvent struct{ Lease entity.Lease }

func (LeaseAcquiredEvent) EventType() event.Type { return EventLeaseAcquired }

// LeaseAcquisitionConfirmedEvent fires when the acquisition transaction is
// mined and the lease becomes effective.
type LeaseAcquisitionConfirmedEvent struct{ Lease entity.Lease }

func (LeaseAcquisitionConfirmedEvent) EventType() event.Type { return EventLeaseAcquisitionConfirmed }

// LeaseRentPaidEvent fires when a rent payment is recorded, pending
// confirmation.
type LeaseRentPaidEvent struct {
	Lease  entity.Lease
	Months int
}

func (LeaseRentPaidEvent) EventType() event.Type { return EventLeaseRentPaid }

// LeaseRentPaymentConfirmedEvent fires when a rent payment transaction is
// mined and paid months are settled.
type LeaseRentPaymentConfirmedEvent struct{ Lease entity.Lease }

func (LeaseRentPaymentConfirmedEvent) EventType() event.Type { return EventLeaseRentPaymentConfirmed }

// LeaseEndedEvent fires when an end-lease request is recorded, pending
// confirmation.
type LeaseEndedEvent struct{ Lease entity.Lease }

func (LeaseEndedEvent) EventType() event.Type { return EventLeaseEnded }

// LeaseEndConfirmedEvent fires when the end-lease transaction is mined and the
// lease is closed.
type LeaseEndConfirmedEvent struct{ Lease entity.Lease }

func (LeaseEndConfirmedEvent) EventType() event.Type { return EventLeaseEndConfirmed }

// LeaseTransactionFailedEvent fires when a pending lease transaction is mined
// without the expected contract event.
type LeaseTransactionFailedEvent struct {
	Lease  entity.Lease
	TxHash string
}

func (LeaseTransactionFailedEvent) EventType() event.Type { return EventLeaseTransactionFailed }

// LeaseOwnershipTransferredEvent fires when a Deed Transfer event moves the
// landlord side of active leases to a new owner.
type LeaseOwnershipTransferredEvent struct {
	Lease entity.Lease
	From  string
	To    string
}

func (LeaseOwnershipTransferredEvent) EventType() event.Type { return EventLeaseOwnershipTransferred }
