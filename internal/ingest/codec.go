package ingest

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Vote event decoding errors.
var (
	ErrInvalidCBOR   = errors.New("invalid CBOR data")
	ErrMissingItem   = errors.New("missing item id in vote event")
	ErrMissingVoter  = errors.New("missing voter id in vote event")
	ErrUnknownKind   = errors.New("unknown vote event kind")
	ErrBadEventValue = errors.New("vote event value must be +1 or -1")
)

// Event kinds carried on the stream.
const (
	KindVote    = "vote"
	KindRetract = "retract"
)

// VoteEvent is one CBOR-encoded mutation frame from the stream.
type VoteEvent struct {
	// EventID uniquely identifies the frame for log correlation.
	EventID string `cbor:"event_id"`

	// Kind is "vote" for a cast or change, "retract" for a removal.
	Kind string `cbor:"kind"`

	// ItemID is the post or comment being voted on.
	ItemID string `cbor:"item_id"`

	// VoterID identifies the user casting the vote.
	VoterID string `cbor:"voter_id"`

	// Value is +1 or -1 for kind "vote"; ignored for retractions.
	Value int `cbor:"value,omitempty"`

	// TimeUS is the event timestamp in microseconds.
	TimeUS int64 `cbor:"time_us"`
}

// DecodeEvent decodes and validates one vote event frame.
func DecodeEvent(data []byte) (*VoteEvent, error) {
	if len(data) == 0 {
		return nil, ErrInvalidCBOR
	}

	var ev VoteEvent
	dec := cbor.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCBOR, err)
	}

	if ev.ItemID == "" {
		return nil, ErrMissingItem
	}
	if ev.VoterID == "" {
		return nil, ErrMissingVoter
	}
	switch ev.Kind {
	case KindVote:
		if ev.Value != 1 && ev.Value != -1 {
			return nil, ErrBadEventValue
		}
	case KindRetract:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, ev.Kind)
	}

	return &ev, nil
}

// EncodeEvent encodes a vote event to CBOR bytes.
func EncodeEvent(ev *VoteEvent) ([]byte, error) {
	var buf bytes.Buffer
	enc := cbor.NewEncoder(&buf)
	if err := enc.Encode(ev); err != nil {
		return nil, fmt.Errorf("failed to encode vote event: %w", err)
	}
	return buf.Bytes(), nil
}
