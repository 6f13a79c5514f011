package types

import (
	"encoding/binary"
	"fmt"
)

// Binary record layout, little-endian, mirroring the on-disk account format:
// kind tag (1) | symbol length (4) + symbol (≤32) | seller key (32) |
// initiation (8) | expiry (8) | status tag (1) | premium (8) | strike (8) |
// owner key (32) | test flag (1) | initial margin (8) | seller margin (8) |
// buyer margin (8) | last settlement date (8) | last settlement ratio (8).

const recordMaxSize = 1 + 4 + MaxUnderlyingLength + 32 + 8 + 8 + 1 + 8 + 8 + 32 + 1 + 8 + 8 + 8 + 8 + 8

var statusTags = map[string]byte{
	StatusListed:       0,
	StatusOwned:        1,
	StatusExpired:      2,
	StatusDelisted:     3,
	StatusMarginCalled: 4,
}

var tagStatuses = map[byte]string{
	0: StatusListed,
	1: StatusOwned,
	2: StatusExpired,
	3: StatusDelisted,
	4: StatusMarginCalled,
}

// MarshalRecord encodes the contract into the fixed binary layout. Identity
// fields are stored as 32-byte digests, so the encoding is a one-way
// snapshot used for audit trails, not a storage format for live records.
func MarshalRecord(c *OptionContract) ([]byte, error) {
	if len(c.Underlying) > MaxUnderlyingLength {
		return nil, ErrUnderlyingTooLong
	}
	tag, ok := statusTags[c.Status]
	if !ok {
		return nil, fmt.Errorf("unknown contract status %q", c.Status)
	}

	buf := make([]byte, 0, recordMaxSize)
	buf = append(buf, c.Kind)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(c.Underlying)))
	buf = append(buf, c.Underlying...)
	seller := IdentityDigest(c.Seller)
	buf = append(buf, seller[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(c.InitiationDate))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(c.ExpiryDate))
	buf = append(buf, tag)
	buf = binary.LittleEndian.AppendUint64(buf, c.Premium)
	buf = binary.LittleEndian.AppendUint64(buf, c.Strike)
	owner := IdentityDigest(c.Owner)
	buf = append(buf, owner[:]...)
	if c.IsTest {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.LittleEndian.AppendUint64(buf, c.InitialMargin)
	buf = binary.LittleEndian.AppendUint64(buf, c.SellerMargin)
	buf = binary.LittleEndian.AppendUint64(buf, c.BuyerMargin)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(c.LastSettlementDate))
	buf = binary.LittleEndian.AppendUint64(buf, c.LastSettlementRatio)

	return buf, nil
}

// RecordSnapshot is the decoded form of a binary record. Identities are
// digests, not recoverable client IDs.
type RecordSnapshot struct {
	Kind                uint8
	Underlying          string
	SellerKey           [32]byte
	OwnerKey            [32]byte
	InitiationDate      int64
	ExpiryDate          int64
	Status              string
	Premium             uint64
	Strike              uint64
	IsTest              bool
	InitialMargin       uint64
	SellerMargin        uint64
	BuyerMargin         uint64
	LastSettlementDate  int64
	LastSettlementRatio uint64
}

// UnmarshalRecord decodes a binary record snapshot.
func UnmarshalRecord(data []byte) (*RecordSnapshot, error) {
	r := &reader{buf: data}
	snap := &RecordSnapshot{}

	snap.Kind = r.byte()
	symLen := r.uint32()
	if symLen > MaxUnderlyingLength {
		return nil, ErrUnderlyingTooLong
	}
	snap.Underlying = string(r.bytes(int(symLen)))
	copy(snap.SellerKey[:], r.bytes(32))
	snap.InitiationDate = int64(r.uint64())
	snap.ExpiryDate = int64(r.uint64())
	statusTag := r.byte()
	snap.Premium = r.uint64()
	snap.Strike = r.uint64()
	copy(snap.OwnerKey[:], r.bytes(32))
	snap.IsTest = r.byte() == 1
	snap.InitialMargin = r.uint64()
	snap.SellerMargin = r.uint64()
	snap.BuyerMargin = r.uint64()
	snap.LastSettlementDate = int64(r.uint64())
	snap.LastSettlementRatio = r.uint64()

	if r.failed {
		return nil, fmt.Errorf("record truncated at offset %d", r.off)
	}
	status, ok := tagStatuses[statusTag]
	if !ok {
		return nil, fmt.Errorf("unknown status tag %d", statusTag)
	}
	snap.Status = status

	return snap, nil
}

// reader is a cursor over the binary layout that records the first
// out-of-bounds read instead of panicking.
type reader struct {
	buf    []byte
	off    int
	failed bool
}

func (r *reader) bytes(n int) []byte {
	if r.failed || r.off+n > len(r.buf) {
		r.failed = true
		return make([]byte, n)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) byte() byte {
	return r.bytes(1)[0]
}

func (r *reader) uint32() uint32 {
	return binary.LittleEndian.Uint32(r.bytes(4))
}

func (r *reader) uint64() uint64 {
	return binary.LittleEndian.Uint64(r.bytes(8))
}
