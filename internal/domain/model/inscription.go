package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// CalldataPrefix precedes the JSON body of every inscription carried in
// transaction calldata.
const CalldataPrefix = "data:,"

// Operation names as they appear in the "op" field.
const (
	OpMint     = "mint"
	OpDeploy   = "deploy"
	OpTransfer = "transfer"
)

// Inscription is a protocol message that can be embedded in transaction
// calldata. Implementations control their own wire shape: the "op" field is
// injected on encode and checked on decode, and unsigned token amounts are
// rendered as decimal strings the way the protocols write them.
type Inscription interface {
	json.Marshaler

	// Op returns the operation name carried in the "op" field.
	Op() string
	// Validate checks the fields the protocols require.
	Validate() error
}

// Calldata renders the full calldata payload for a message: the data:,
// prefix followed by the message's canonical JSON. Encoding is pure; the
// same message always yields the same bytes.
func Calldata(ins Inscription) ([]byte, error) {
	body, err := json.Marshal(ins)
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", ins.Op(), err)
	}
	out := make([]byte, 0, len(CalldataPrefix)+len(body))
	out = append(out, CalldataPrefix...)
	out = append(out, body...)
	return out, nil
}

// DecodeInscription parses a raw message, tolerating a leading data:,
// prefix, and returns the typed message named by its "op" field.
func DecodeInscription(raw string) (Inscription, error) {
	body := []byte(strings.TrimPrefix(strings.TrimSpace(raw), CalldataPrefix))

	var probe struct {
		Op string `json:"op"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("parse inscription json: %w", err)
	}

	switch probe.Op {
	case OpMint:
		var m Mint
		if err := json.Unmarshal(body, &m); err != nil {
			return nil, fmt.Errorf("parse mint: %w", err)
		}
		return &m, nil
	case OpDeploy:
		var d Deploy
		if err := json.Unmarshal(body, &d); err != nil {
			return nil, fmt.Errorf("parse deploy: %w", err)
		}
		return &d, nil
	case OpTransfer:
		var t Transfer
		if err := json.Unmarshal(body, &t); err != nil {
			return nil, fmt.Errorf("parse transfer: %w", err)
		}
		return &t, nil
	default:
		return nil, fmt.Errorf("unknown inscription op %q", probe.Op)
	}
}

// Mint is a token mint. ID is optional; a few protocols thread a
// caller-chosen identifier through it.
type Mint struct {
	Protocol Protocol
	Tick     string
	ID       *string
	Amt      uint64
}

func (m Mint) Op() string { return OpMint }

func (m Mint) Validate() error {
	if m.Protocol == "" {
		return fmt.Errorf("mint: protocol is required")
	}
	if m.Tick == "" {
		return fmt.Errorf("mint: tick is required")
	}
	if m.Amt == 0 {
		return fmt.Errorf("mint: amt must be positive")
	}
	return nil
}

type mintWire struct {
	P    Protocol `json:"p"`
	Op   string   `json:"op"`
	Tick string   `json:"tick"`
	ID   *string  `json:"id,omitempty"`
	Amt  string   `json:"amt"`
}

func (m Mint) MarshalJSON() ([]byte, error) {
	return json.Marshal(mintWire{
		P:    m.Protocol,
		Op:   OpMint,
		Tick: m.Tick,
		ID:   m.ID,
		Amt:  strconv.FormatUint(m.Amt, 10),
	})
}

func (m *Mint) UnmarshalJSON(data []byte) error {
	var w struct {
		P    Protocol   `json:"p"`
		Op   string     `json:"op"`
		Tick string     `json:"tick"`
		ID   *string    `json:"id"`
		Amt  flexUint64 `json:"amt"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Op != OpMint {
		return fmt.Errorf("unexpected op %q, want %q", w.Op, OpMint)
	}
	*m = Mint{Protocol: w.P, Tick: w.Tick, ID: w.ID, Amt: uint64(w.Amt)}
	return nil
}

// Deploy announces a new token: its total supply cap and per-mint limit.
type Deploy struct {
	Protocol Protocol
	Tick     string
	Max      uint64
	Lim      uint64
}

func (d Deploy) Op() string { return OpDeploy }

func (d Deploy) Validate() error {
	if d.Protocol == "" {
		return fmt.Errorf("deploy: protocol is required")
	}
	if d.Tick == "" {
		return fmt.Errorf("deploy: tick is required")
	}
	if d.Max == 0 {
		return fmt.Errorf("deploy: max must be positive")
	}
	if d.Lim == 0 {
		return fmt.Errorf("deploy: lim must be positive")
	}
	return nil
}

type deployWire struct {
	P    Protocol `json:"p"`
	Op   string   `json:"op"`
	Tick string   `json:"tick"`
	Max  string   `json:"max"`
	Lim  string   `json:"lim"`
}

func (d Deploy) MarshalJSON() ([]byte, error) {
	return json.Marshal(deployWire{
		P:    d.Protocol,
		Op:   OpDeploy,
		Tick: d.Tick,
		Max:  strconv.FormatUint(d.Max, 10),
		Lim:  strconv.FormatUint(d.Lim, 10),
	})
}

func (d *Deploy) UnmarshalJSON(data []byte) error {
	var w struct {
		P    Protocol   `json:"p"`
		Op   string     `json:"op"`
		Tick string     `json:"tick"`
		Max  flexUint64 `json:"max"`
		Lim  flexUint64 `json:"lim"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Op != OpDeploy {
		return fmt.Errorf("unexpected op %q, want %q", w.Op, OpDeploy)
	}
	*d = Deploy{Protocol: w.P, Tick: w.Tick, Max: uint64(w.Max), Lim: uint64(w.Lim)}
	return nil
}

// TransferItem is one recipient entry in a transfer. Amt is signed and
// written as a bare JSON number; some protocols use negative amounts for
// burn-style bookkeeping.
type TransferItem struct {
	Recv common.Address `json:"recv"`
	Amt  int64          `json:"amt"`
}

// Transfer moves balances to one or more recipients.
type Transfer struct {
	Protocol Protocol
	Tick     string
	To       []TransferItem
}

func (t Transfer) Op() string { return OpTransfer }

func (t Transfer) Validate() error {
	if t.Protocol == "" {
		return fmt.Errorf("transfer: protocol is required")
	}
	if t.Tick == "" {
		return fmt.Errorf("transfer: tick is required")
	}
	if len(t.To) == 0 {
		return fmt.Errorf("transfer: at least one recipient is required")
	}
	return nil
}

type transferWire struct {
	P    Protocol       `json:"p"`
	Op   string         `json:"op"`
	Tick string         `json:"tick"`
	To   []TransferItem `json:"to"`
}

func (t Transfer) MarshalJSON() ([]byte, error) {
	return json.Marshal(transferWire{
		P:    t.Protocol,
		Op:   OpTransfer,
		Tick: t.Tick,
		To:   t.To,
	})
}

func (t *Transfer) UnmarshalJSON(data []byte) error {
	var w transferWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Op != OpTransfer {
		return fmt.Errorf("unexpected op %q, want %q", w.Op, OpTransfer)
	}
	*t = Transfer{Protocol: w.P, Tick: w.Tick, To: w.To}
	return nil
}

// flexUint64 decodes from either a decimal string or a bare JSON number.
// The protocols write strings; hand-written inputs often don't.
type flexUint64 uint64

func (v *flexUint64) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return fmt.Errorf("parse amount %q: %w", s, err)
		}
		*v = flexUint64(n)
		return nil
	}
	var n uint64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = flexUint64(n)
	return nil
}
