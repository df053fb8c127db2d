package instruments

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Transport is a line oriented connection to an instrument. Replies are
// returned without the trailing terminator.
type Transport interface {
	Send(cmd string) error
	Query(cmd string) (string, error)
	Close() error
}

// Dialer opens a Transport to the instrument at addr.
type Dialer interface {
	Dial(addr Address) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(addr Address) (Transport, error)

func (f DialerFunc) Dial(addr Address) (Transport, error) { return f(addr) }

// NoSecondaryAddress marks an Address without a GPIB secondary address.
const NoSecondaryAddress = -1

const (
	gpibScheme    = "GPIB"
	instrSuffix   = "INSTR"
	maxGPIBAddr   = 30
	maxGPIBBoards = 31
)

// Address is a GPIB connection string split into board, primary and
// secondary address, e.g. GPIB0::18::INSTR.
type Address struct {
	Board     int
	Primary   int
	Secondary int
}

// ParseAddress parses a VISA style GPIB resource string
//
//	GPIB[board]::primary[::secondary][::INSTR]
//
// Any other interface type (TCPIP, USB, ASRL, ...) is rejected with
// ErrUnsupportedInterface. LAN access is documented for the 4051 but is not
// supported here.
func ParseAddress(s string) (Address, error) {
	addr := Address{Secondary: NoSecondaryAddress}
	fields := strings.Split(strings.TrimSpace(s), "::")

	head := strings.ToUpper(fields[0])
	if !strings.HasPrefix(head, gpibScheme) {
		return addr, errors.Wrapf(ErrUnsupportedInterface, "address \"%s\"", s)
	}
	if board := head[len(gpibScheme):]; board != "" {
		n, err := strconv.Atoi(board)
		if err != nil || n < 0 || n >= maxGPIBBoards {
			return addr, &ValidationError{Setting: "GPIB board", Value: board}
		}
		addr.Board = n
	}

	fields = fields[1:]
	if len(fields) > 0 && strings.EqualFold(fields[len(fields)-1], instrSuffix) {
		fields = fields[:len(fields)-1]
	}
	if len(fields) == 0 || len(fields) > 2 {
		return addr, &ValidationError{Setting: "GPIB address", Value: s}
	}

	var err error
	if addr.Primary, err = parseBusAddress("GPIB primary address", fields[0]); err != nil {
		return addr, err
	}
	if len(fields) == 2 {
		if addr.Secondary, err = parseBusAddress("GPIB secondary address", fields[1]); err != nil {
			return addr, err
		}
	}
	return addr, nil
}

func parseBusAddress(name, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &ValidationError{Setting: name, Value: s}
	}
	if err := checkRange(name, n, 0, maxGPIBAddr); err != nil {
		return 0, err
	}
	return n, nil
}

// String renders the canonical VISA resource name.
func (a Address) String() string {
	if a.Secondary == NoSecondaryAddress {
		return fmt.Sprintf("GPIB%d::%d::INSTR", a.Board, a.Primary)
	}
	return fmt.Sprintf("GPIB%d::%d::%d::INSTR", a.Board, a.Primary, a.Secondary)
}
