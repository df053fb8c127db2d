// Package visa connects instruments through an NI-VISA resource manager.
package visa

import (
	"fmt"
	"strings"

	vi "github.com/jpoirier/visa"
	"github.com/pkg/errors"

	"github.com/dex-sp/instruments"
)

// Trace data of a 1001 point sweep in ASCII is about 16 KiB.
const bufferSize = 64 * 1024

// GetResourceManager opens the default VISA resource manager. Close it after
// every transport opened through it is closed.
func GetResourceManager() (vi.Session, error) {
	rm, status := vi.OpenDefaultRM()
	if status != vi.SUCCESS {
		return rm, fmt.Errorf("%d, could not open the default VISA resource manager", status)
	}
	return rm, nil
}

// Dialer opens GPIB resources through ResourceManager.
type Dialer struct {
	ResourceManager *vi.Session
}

func (d Dialer) Dial(addr instruments.Address) (instruments.Transport, error) {
	return Open(d.ResourceManager, addr.String())
}

// Transport is an open VISA instrument session.
type Transport struct {
	resource string
	instr    vi.Object
}

// Open opens the VISA resource, e.g. "GPIB0::18::INSTR".
func Open(rm *vi.Session, resource string) (*Transport, error) {
	if rm == nil {
		return nil, errors.New("no VISA resource manager")
	}
	instr, status := rm.Open(resource, uint32(vi.NULL), uint32(vi.NULL))
	if status != vi.SUCCESS {
		t := &Transport{resource: resource, instr: instr}
		context := fmt.Sprintf("an VISA error occurred while connect to \"%s\"", resource)
		return nil, errors.Wrap(t.statusError(status), context)
	}
	return &Transport{resource: resource, instr: instr}, nil
}

// Write command to instr
func (t *Transport) Send(cmd string) error {
	_, status := t.instr.Write([]byte(cmd), uint32(len(cmd)))
	if status != vi.SUCCESS {
		context := fmt.Sprintf("an VISA error occurred while writing \"%s\" command", cmd)
		return errors.Wrap(t.statusError(status), context)
	}
	return nil
}

// Write command to instr and read response
func (t *Transport) Query(cmd string) (string, error) {
	if err := t.Send(cmd); err != nil {
		return "", err
	}

	bytes, _, status := t.instr.Read(bufferSize)
	if status != vi.SUCCESS {
		context := fmt.Sprintf("an VISA error occurred while reading response after \"%s\" command", cmd)
		return "", errors.Wrap(t.statusError(status), context)
	}
	response := string(bytes)
	if len(response) == 0 {
		return response, fmt.Errorf("get empty response from instr after \"%s\" command", cmd)
	}
	if i := strings.Index(response, "\n"); i >= 0 {
		response = response[:i]
	}
	return response, nil
}

func (t *Transport) Close() error {
	if status := t.instr.Close(); status != vi.SUCCESS {
		context := fmt.Sprintf("an VISA error occurred while closing \"%s\"", t.resource)
		return errors.Wrap(t.statusError(status), context)
	}
	return nil
}

func (t *Transport) statusError(status vi.Status) error {
	statusDesc, _ := t.instr.StatusDesc(status)
	if i := strings.Index(statusDesc, "."); i >= 0 {
		statusDesc = statusDesc[:i]
	}
	return fmt.Errorf("%d, %s", status, statusDesc)
}
