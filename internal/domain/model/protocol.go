package model

import "strings"

// Protocol identifies the inscription standard named in the "p" field of a
// message. The named constants cover the standards observed across EVM
// networks; anything else is carried verbatim so that unrecognized messages
// still encode and round-trip unchanged.
type Protocol string

const (
	ProtocolBsc20   Protocol = "bsc-20"
	ProtocolAsc20   Protocol = "asc-20"
	ProtocolPrc20   Protocol = "prc-20"
	ProtocolZrc20   Protocol = "zrc-20"
	ProtocolErc20   Protocol = "erc-20"
	ProtocolGrc20   Protocol = "grc-20"
	ProtocolFair20  Protocol = "fair-20"
	ProtocolOprc20  Protocol = "oprc-20"
	ProtocolOsc20   Protocol = "osc-20"
	ProtocolBrc20   Protocol = "brc-20"
	ProtocolFrc20   Protocol = "frc-20"
	ProtocolNirc20  Protocol = "nirc-20"
	ProtocolZsc20   Protocol = "zsc-20"
	ProtocolVims20  Protocol = "vims-20"
	ProtocolEra20   Protocol = "era-20"
	ProtocolBnb48   Protocol = "bnb-48"
	ProtocolGno20   Protocol = "gno-20"
	ProtocolTerc20  Protocol = "terc-20"
	ProtocolNrc20   Protocol = "nrc-20"
	ProtocolBep20   Protocol = "bep-20"
	ProtocolBnb20   Protocol = "bnb-20"
	ProtocolCls20   Protocol = "cls-20"
	ProtocolBase20  Protocol = "base-20"
	ProtocolErcCash Protocol = "erc-cash"
	ProtocolBnbs20  Protocol = "bnbs-20"
	ProtocolFtm20   Protocol = "ftm-20"
)

// namedProtocols holds every protocol this package knows by name, in the
// order they are listed above.
var namedProtocols = []Protocol{
	ProtocolBsc20, ProtocolAsc20, ProtocolPrc20, ProtocolZrc20,
	ProtocolErc20, ProtocolGrc20, ProtocolFair20, ProtocolOprc20,
	ProtocolOsc20, ProtocolBrc20, ProtocolFrc20, ProtocolNirc20,
	ProtocolZsc20, ProtocolVims20, ProtocolEra20, ProtocolBnb48,
	ProtocolGno20, ProtocolTerc20, ProtocolNrc20, ProtocolBep20,
	ProtocolBnb20, ProtocolCls20, ProtocolBase20, ProtocolErcCash,
	ProtocolBnbs20, ProtocolFtm20,
}

var namedProtocolSet = func() map[Protocol]struct{} {
	set := make(map[Protocol]struct{}, len(namedProtocols))
	for _, p := range namedProtocols {
		set[p] = struct{}{}
	}
	return set
}()

// ParseProtocol converts an identifier into a Protocol. Unknown identifiers
// are kept as-is rather than rejected; the protocol field is open-ended by
// construction and new standards appear without notice.
func ParseProtocol(s string) Protocol {
	return Protocol(strings.TrimSpace(s))
}

// Known reports whether the protocol is one of the named constants.
func (p Protocol) Known() bool {
	_, ok := namedProtocolSet[p]
	return ok
}

func (p Protocol) String() string {
	return string(p)
}

// KnownProtocols returns the named protocols in declaration order. The
// returned slice is a copy.
func KnownProtocols() []Protocol {
	out := make([]Protocol, len(namedProtocols))
	copy(out, namedProtocols)
	return out
}
