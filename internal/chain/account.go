// Package chain encodes and decodes the on-chain shield account that mirrors
// each agent's circuit-breaker state. The byte layout is shared with an
// external ledger program; field order and width must not change.
package chain

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// PubkeySize is the width of an on-chain public key.
	PubkeySize = 32
	// MaxPrograms caps each program key list.
	MaxPrograms = 10
	// DiscriminatorSize is the width of the account type tag.
	DiscriminatorSize = 8

	// LamportsPerSOL converts native display units to on-chain integer units.
	LamportsPerSOL = 1_000_000_000
)

var (
	// ErrShortBuffer means the account data ended before the full layout.
	ErrShortBuffer = errors.New("account data truncated")
	// ErrBadDiscriminator means the data is not a shield account.
	ErrBadDiscriminator = errors.New("account discriminator mismatch")
	// ErrTooManyPrograms means a key list exceeds MaxPrograms.
	ErrTooManyPrograms = fmt.Errorf("program list exceeds %d keys", MaxPrograms)
	// ErrBadState means the state byte is outside the known enum.
	ErrBadState = errors.New("unknown circuit state byte")
)

// discriminator tags shield accounts: first 8 bytes of sha256("account:Shield"),
// matching the ledger program's account tagging convention.
var discriminator = func() [DiscriminatorSize]byte {
	sum := sha256.Sum256([]byte("account:Shield"))
	var d [DiscriminatorSize]byte
	copy(d[:], sum[:DiscriminatorSize])
	return d
}()

// Discriminator returns the shield account type tag.
func Discriminator() [DiscriminatorSize]byte {
	return discriminator
}

// State is the on-chain circuit state enum.
type State uint8

const (
	StateClosed   State = 0
	StateOpen     State = 1
	StateHalfOpen State = 2
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Config is the shield configuration block. Monetary fields are in lamports.
type Config struct {
	MaxTransactionValue uint64
	DailySpendLimit     uint64
	ApprovalThreshold   uint64
	AnomalyThreshold    uint8
	TimeWindowSeconds   int64
	CooldownSeconds     int64
}

// ShieldAccount is the full decoded account.
type ShieldAccount struct {
	Authority   [PubkeySize]byte
	AgentWallet [PubkeySize]byte
	Config      Config

	AllowedPrograms [][PubkeySize]byte
	BlockedPrograms [][PubkeySize]byte

	State               State
	AnomalyCount        uint8
	LastTriggeredAt     int64
	CooldownEndsAt      int64
	CreatedAt           int64
	TotalTransactions   uint64
	BlockedTransactions uint64
}

// EncodedLen returns the exact byte length Encode will produce.
func (a *ShieldAccount) EncodedLen() int {
	return DiscriminatorSize + 2*PubkeySize +
		8 + 8 + 8 + 1 + 8 + 8 + // config block
		4 + len(a.AllowedPrograms)*PubkeySize +
		4 + len(a.BlockedPrograms)*PubkeySize +
		1 + 1 + 8 + 8 + 8 + 8 + 8 // state block
}

// Encode serializes the account into the shared little-endian layout.
func (a *ShieldAccount) Encode() ([]byte, error) {
	if len(a.AllowedPrograms) > MaxPrograms || len(a.BlockedPrograms) > MaxPrograms {
		return nil, ErrTooManyPrograms
	}
	if a.State > StateHalfOpen {
		return nil, ErrBadState
	}

	buf := make([]byte, 0, a.EncodedLen())
	buf = append(buf, discriminator[:]...)
	buf = append(buf, a.Authority[:]...)
	buf = append(buf, a.AgentWallet[:]...)

	buf = binary.LittleEndian.AppendUint64(buf, a.Config.MaxTransactionValue)
	buf = binary.LittleEndian.AppendUint64(buf, a.Config.DailySpendLimit)
	buf = binary.LittleEndian.AppendUint64(buf, a.Config.ApprovalThreshold)
	buf = append(buf, a.Config.AnomalyThreshold)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(a.Config.TimeWindowSeconds))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(a.Config.CooldownSeconds))

	buf = appendKeyList(buf, a.AllowedPrograms)
	buf = appendKeyList(buf, a.BlockedPrograms)

	buf = append(buf, byte(a.State), a.AnomalyCount)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(a.LastTriggeredAt))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(a.CooldownEndsAt))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(a.CreatedAt))
	buf = binary.LittleEndian.AppendUint64(buf, a.TotalTransactions)
	buf = binary.LittleEndian.AppendUint64(buf, a.BlockedTransactions)

	return buf, nil
}

// Decode parses account data, validating the discriminator and every length.
func Decode(data []byte) (*ShieldAccount, error) {
	r := reader{data: data}

	disc, err := r.bytes(DiscriminatorSize)
	if err != nil {
		return nil, err
	}
	if [DiscriminatorSize]byte(disc) != discriminator {
		return nil, ErrBadDiscriminator
	}

	a := &ShieldAccount{}
	if err := r.pubkey(&a.Authority); err != nil {
		return nil, err
	}
	if err := r.pubkey(&a.AgentWallet); err != nil {
		return nil, err
	}

	var cfgErr error
	a.Config.MaxTransactionValue, cfgErr = r.u64()
	if cfgErr == nil {
		a.Config.DailySpendLimit, cfgErr = r.u64()
	}
	if cfgErr == nil {
		a.Config.ApprovalThreshold, cfgErr = r.u64()
	}
	if cfgErr == nil {
		a.Config.AnomalyThreshold, cfgErr = r.u8()
	}
	if cfgErr == nil {
		a.Config.TimeWindowSeconds, cfgErr = r.i64()
	}
	if cfgErr == nil {
		a.Config.CooldownSeconds, cfgErr = r.i64()
	}
	if cfgErr != nil {
		return nil, cfgErr
	}

	if a.AllowedPrograms, err = r.keyList(); err != nil {
		return nil, err
	}
	if a.BlockedPrograms, err = r.keyList(); err != nil {
		return nil, err
	}

	stateByte, err := r.u8()
	if err != nil {
		return nil, err
	}
	if stateByte > uint8(StateHalfOpen) {
		return nil, ErrBadState
	}
	a.State = State(stateByte)

	if a.AnomalyCount, err = r.u8(); err != nil {
		return nil, err
	}
	if a.LastTriggeredAt, err = r.i64(); err != nil {
		return nil, err
	}
	if a.CooldownEndsAt, err = r.i64(); err != nil {
		return nil, err
	}
	if a.CreatedAt, err = r.i64(); err != nil {
		return nil, err
	}
	if a.TotalTransactions, err = r.u64(); err != nil {
		return nil, err
	}
	if a.BlockedTransactions, err = r.u64(); err != nil {
		return nil, err
	}

	return a, nil
}

func appendKeyList(buf []byte, keys [][PubkeySize]byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(keys)))
	for _, k := range keys {
		buf = append(buf, k[:]...)
	}
	return buf
}

// reader is a bounds-checked cursor over account data.
type reader struct {
	data []byte
	off  int
}

func (r *reader) bytes(n int) ([]byte, error) {
	if r.off+n > len(r.data) {
		return nil, ErrShortBuffer
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) pubkey(dst *[PubkeySize]byte) error {
	b, err := r.bytes(PubkeySize)
	if err != nil {
		return err
	}
	copy(dst[:], b)
	return nil
}

func (r *reader) u8() (uint8, error) {
	b, err := r.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u64() (uint64, error) {
	b, err := r.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) i64() (int64, error) {
	v, err := r.u64()
	return int64(v), err
}

func (r *reader) keyList() ([][PubkeySize]byte, error) {
	b, err := r.bytes(4)
	if err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(b)
	if n > MaxPrograms {
		return nil, ErrTooManyPrograms
	}
	keys := make([][PubkeySize]byte, 0, n)
	for i := uint32(0); i < n; i++ {
		var k [PubkeySize]byte
		if err := r.pubkey(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// SOLToLamports converts a display amount to integer lamports, truncating
// sub-lamport precision.
func SOLToLamports(sol float64) uint64 {
	if sol <= 0 {
		return 0
	}
	return uint64(sol * LamportsPerSOL)
}

// LamportsToSOL converts integer lamports to a display amount.
func LamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / LamportsPerSOL
}
