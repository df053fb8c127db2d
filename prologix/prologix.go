// Package prologix reaches GPIB instruments through a Prologix (or AR488)
// USB-GPIB controller on a virtual serial port.
package prologix

import (
	"fmt"
	"strings"

	px "github.com/gotmc/prologix"
	"github.com/gotmc/prologix/driver/vcp"
	"github.com/pkg/errors"

	"github.com/dex-sp/instruments"
)

// Dialer opens the controller on SerialPort and addresses the instrument by
// its primary GPIB address. The board number of the address is ignored.
type Dialer struct {
	SerialPort string
}

func (d Dialer) Dial(addr instruments.Address) (instruments.Transport, error) {
	if addr.Secondary != instruments.NoSecondaryAddress {
		return nil, fmt.Errorf("prologix: secondary address %d not supported", addr.Secondary)
	}

	port, err := vcp.NewVCP(d.SerialPort)
	if err != nil {
		return nil, errors.Wrapf(err, "serial port \"%s\" open fail", d.SerialPort)
	}
	gpib, err := px.NewController(port, addr.Primary, false)
	if err != nil {
		port.Close()
		return nil, errors.Wrapf(err, "prologix controller init fail for GPIB address %d", addr.Primary)
	}
	return &Transport{port: port, gpib: gpib}, nil
}

// Transport talks to one instrument through the controller.
type Transport struct {
	port *vcp.VCP
	gpib *px.Controller
}

func (t *Transport) Send(cmd string) error {
	if err := t.gpib.Command(cmd); err != nil {
		return errors.Wrapf(err, "error writing \"%s\" command", cmd)
	}
	return nil
}

func (t *Transport) Query(cmd string) (string, error) {
	response, err := t.gpib.Query(cmd)
	if err != nil {
		return "", errors.Wrapf(err, "error reading response after \"%s\" command", cmd)
	}
	return strings.TrimRight(response, "\r\n"), nil
}

func (t *Transport) Close() error {
	return t.port.Close()
}
