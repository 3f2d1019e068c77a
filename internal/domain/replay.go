package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Replay errors
var (
	ErrEmptyStream      = errors.New("event stream is empty")
	ErrVersionGap       = errors.New("event stream has a version gap")
	ErrUnexpectedEvent  = errors.New("unexpected event type for stream")
	ErrMalformedPayload = errors.New("malformed event payload")
)

// checkStream verifies the events belong to one stream with contiguous
// versions starting at 1.
func checkStream(events []Event) error {
	if len(events) == 0 {
		return ErrEmptyStream
	}
	streamID := events[0].StreamID
	for i, ev := range events {
		if ev.StreamID != streamID {
			return fmt.Errorf("%w: mixed stream ids %q and %q", ErrUnexpectedEvent, streamID, ev.StreamID)
		}
		if ev.Version != int64(i+1) {
			return fmt.Errorf("%w: expected version %d, got %d", ErrVersionGap, i+1, ev.Version)
		}
	}
	return nil
}

func decode(ev Event, out interface{}) error {
	if err := json.Unmarshal(ev.Data, out); err != nil {
		return fmt.Errorf("%w: %s v%d: %v", ErrMalformedPayload, ev.Type, ev.Version, err)
	}
	return nil
}

// ReplayRegistration rebuilds a registration's state by folding its event
// stream oldest-first. Used to verify that current rows match the audit log.
func ReplayRegistration(events []Event) (*Registration, error) {
	if err := checkStream(events); err != nil {
		return nil, err
	}

	var reg *Registration
	for _, ev := range events {
		switch ev.Type {
		case EventRegistrationCreated:
			var d RegistrationCreatedData
			if err := decode(ev, &d); err != nil {
				return nil, err
			}
			reg = &Registration{
				ID:        d.RegistrationID,
				SessionID: d.SessionID,
				ChildID:   d.ChildID,
				UserID:    d.UserID,
				Status:    RegistrationStatusPending,
				CreatedAt: d.CreatedAt,
				UpdatedAt: d.CreatedAt,
			}
		case EventRegistrationConfirmed:
			var d RegistrationConfirmedData
			if err := decode(ev, &d); err != nil {
				return nil, err
			}
			if reg == nil {
				return nil, fmt.Errorf("%w: %s before %s", ErrUnexpectedEvent, ev.Type, EventRegistrationCreated)
			}
			reg.Status = RegistrationStatusConfirmed
			confirmedAt := d.ConfirmedAt
			reg.ConfirmedAt = &confirmedAt
			reg.UpdatedAt = d.ConfirmedAt
		case EventPaymentCompleted:
			var d PaymentCompletedData
			if err := decode(ev, &d); err != nil {
				return nil, err
			}
			if reg == nil {
				return nil, fmt.Errorf("%w: %s before %s", ErrUnexpectedEvent, ev.Type, EventRegistrationCreated)
			}
			// Payment does not move the state machine; it records the amount
			amount := d.Amount
			reg.AmountPaid = &amount
		case EventRegistrationCanceled:
			var d RegistrationCanceledData
			if err := decode(ev, &d); err != nil {
				return nil, err
			}
			if reg == nil {
				return nil, fmt.Errorf("%w: %s before %s", ErrUnexpectedEvent, ev.Type, EventRegistrationCreated)
			}
			reg.Status = RegistrationStatusCanceled
			canceledAt := d.CanceledAt
			reg.CanceledAt = &canceledAt
			reg.UpdatedAt = d.CanceledAt
		case EventRegistrationRefunded:
			var d RegistrationRefundedData
			if err := decode(ev, &d); err != nil {
				return nil, err
			}
			if reg == nil {
				return nil, fmt.Errorf("%w: %s before %s", ErrUnexpectedEvent, ev.Type, EventRegistrationCreated)
			}
			reg.Status = RegistrationStatusRefunded
			refundedAt := d.RefundedAt
			reg.RefundedAt = &refundedAt
			reg.UpdatedAt = d.RefundedAt
		default:
			return nil, fmt.Errorf("%w: %s on registration stream", ErrUnexpectedEvent, ev.Type)
		}
	}
	return reg, nil
}

// ReplayWaitlistEntry rebuilds a waitlist entry's state by folding its event
// stream oldest-first.
func ReplayWaitlistEntry(events []Event) (*WaitlistEntry, error) {
	if err := checkStream(events); err != nil {
		return nil, err
	}

	var entry *WaitlistEntry
	for _, ev := range events {
		switch ev.Type {
		case EventWaitlistJoined:
			var d WaitlistJoinedData
			if err := decode(ev, &d); err != nil {
				return nil, err
			}
			entry = &WaitlistEntry{
				ID:        d.EntryID,
				SessionID: d.SessionID,
				ChildID:   d.ChildID,
				UserID:    d.UserID,
				Status:    WaitlistStatusWaiting,
				Position:  d.Position,
				CreatedAt: d.JoinedAt,
				UpdatedAt: d.JoinedAt,
			}
		case EventWaitlistOffered:
			var d WaitlistOfferedData
			if err := decode(ev, &d); err != nil {
				return nil, err
			}
			if entry == nil {
				return nil, fmt.Errorf("%w: %s before %s", ErrUnexpectedEvent, ev.Type, EventWaitlistJoined)
			}
			entry.Status = WaitlistStatusOffered
			offeredAt := d.OfferedAt
			expiresAt := d.OfferExpiresAt
			entry.OfferedAt = &offeredAt
			entry.OfferExpiresAt = &expiresAt
			entry.UpdatedAt = d.OfferedAt
		case EventWaitlistConverted:
			var d WaitlistConvertedData
			if err := decode(ev, &d); err != nil {
				return nil, err
			}
			if entry == nil {
				return nil, fmt.Errorf("%w: %s before %s", ErrUnexpectedEvent, ev.Type, EventWaitlistJoined)
			}
			entry.Status = WaitlistStatusConverted
			entry.UpdatedAt = d.ConvertedAt
		case EventWaitlistExpired:
			var d WaitlistExpiredData
			if err := decode(ev, &d); err != nil {
				return nil, err
			}
			if entry == nil {
				return nil, fmt.Errorf("%w: %s before %s", ErrUnexpectedEvent, ev.Type, EventWaitlistJoined)
			}
			entry.Status = WaitlistStatusExpired
			entry.UpdatedAt = d.ExpiredAt
		case EventWaitlistLeft:
			var d WaitlistLeftData
			if err := decode(ev, &d); err != nil {
				return nil, err
			}
			if entry == nil {
				return nil, fmt.Errorf("%w: %s before %s", ErrUnexpectedEvent, ev.Type, EventWaitlistJoined)
			}
			entry.Status = WaitlistStatusWithdrawn
			entry.UpdatedAt = d.LeftAt
		case EventWaitlistReordered:
			var d WaitlistReorderedData
			if err := decode(ev, &d); err != nil {
				return nil, err
			}
			if entry == nil {
				return nil, fmt.Errorf("%w: %s before %s", ErrUnexpectedEvent, ev.Type, EventWaitlistJoined)
			}
			entry.Position = d.NewPosition
			entry.UpdatedAt = d.ReorderedAt
		default:
			return nil, fmt.Errorf("%w: %s on waitlist stream", ErrUnexpectedEvent, ev.Type)
		}
	}
	return entry, nil
}
