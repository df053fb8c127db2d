package instruments

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	defaultErrorQuery = "SYST:ERR?"
	noErrorPrefix     = "+0"
)

// Instrument is a SCPI session over a Transport. Drivers for concrete
// instruments embed or hold one.
type Instrument struct {
	addr       Address
	transport  Transport
	errorQuery string
	info       map[string]string
	log        logrus.FieldLogger
	closed     bool
}

// NewInstrument takes ownership of t. A nil log uses the logrus standard logger.
func NewInstrument(addr Address, t Transport, log logrus.FieldLogger) *Instrument {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Instrument{
		addr:       addr,
		transport:  t,
		errorQuery: defaultErrorQuery,
		info:       make(map[string]string, 4),
		log:        log.WithField("address", addr.String()),
	}
}

// Write command to instr and read response
func (in *Instrument) Query(cmd string) (string, error) {
	if in.closed {
		return "", ErrSessionClosed
	}
	response, err := in.transport.Query(cmd)
	if err != nil {
		return "", &ConnectionError{Op: "query", Cmd: cmd, Err: err}
	}
	response = strings.TrimRight(response, "\r\n")
	in.log.Debugf("%s -> %s", cmd, response)
	return response, nil
}

// Query a single numeric value
func (in *Instrument) QueryFloat(cmd string) (float64, error) {
	response, err := in.Query(cmd)
	if err != nil {
		return 0, err
	}
	return parseFloat(cmd, response)
}

// Write command to instr
func (in *Instrument) Write(cmd string) error {
	if in.closed {
		return ErrSessionClosed
	}
	if err := in.transport.Send(cmd); err != nil {
		return &ConnectionError{Op: "send", Cmd: cmd, Err: err}
	}
	in.log.Debugf("%s", cmd)
	return nil
}

// Write commands one by one, stop at the first failure
func (in *Instrument) WriteAll(cmds ...string) error {
	for _, cmd := range cmds {
		if err := in.Write(cmd); err != nil {
			return err
		}
	}
	return nil
}

// Check instrument errors. The queue is cleared when it holds an error.
// Only transport failures are returned as err.
func (in *Instrument) CheckErrors() (string, bool, error) {
	res, hadError, err := in.PollErrors()
	if err != nil || !hadError {
		return res, false, err
	}

	in.log.Warnf("instrument error: %s", res)
	if err := in.Write("*CLS"); err != nil {
		return res, true, errors.Wrap(err, "error queue clear fail")
	}
	return res, true, nil
}

// Read one entry of the error queue. Nothing is sent to clear it.
func (in *Instrument) PollErrors() (string, bool, error) {
	res, err := in.Query(in.errorQuery)
	if err != nil {
		return "", false, errors.Wrap(err, "error queue check fail")
	}
	return res, !strings.HasPrefix(res, noErrorPrefix), nil
}

// Identify queries *IDN? and stores the identification fields. A manufacturer
// other than expected is logged, not returned as an error.
func (in *Instrument) Identify(expected string) (string, error) {
	response, err := in.Query("*IDN?")
	if err != nil {
		return "", errors.Wrap(err, "identification fail")
	}
	response = strings.TrimSpace(response)

	splitResponse := strings.Split(response, ",")
	for i, key := range []string{"Manufacturer", "Model", "Serial", "Version"} {
		if i < len(splitResponse) {
			in.info[key] = strings.TrimSpace(splitResponse[i])
		} else {
			in.info[key] = ""
		}
	}
	if expected != "" && !strings.EqualFold(in.info["Manufacturer"], expected) {
		in.log.Warnf("unexpected manufacturer \"%s\", expected \"%s\"", in.info["Manufacturer"], expected)
	}
	return response, nil
}

func (in *Instrument) SetErrorQuery(query string) {
	in.errorQuery = query
}

func (in *Instrument) Address() Address {
	return in.addr
}

func (in *Instrument) Info() map[string]string {
	info := make(map[string]string, len(in.info))
	for k, v := range in.info {
		info[k] = v
	}
	return info
}

// Close releases the transport. A second call fails with ErrSessionClosed.
func (in *Instrument) Close() error {
	if in.closed {
		return ErrSessionClosed
	}
	in.closed = true
	if err := in.transport.Close(); err != nil {
		return &ConnectionError{Op: "close", Err: err}
	}
	return nil
}

// Cast instrument info to string
func (in *Instrument) String() string {
	infoStr := fmt.Sprintf(
		"Manufacturer:\t%s\n"+
			"Model:\t\t%s\n"+
			"Serial:\t\t%s\n"+
			"Version:\t%s\n",
		in.info["Manufacturer"], in.info["Model"], in.info["Serial"], in.info["Version"])
	return infoStr
}

func parseFloat(cmd, token string) (float64, error) {
	// U+2212 minus sign shows up in replies copied from the front panel
	token = strings.ReplaceAll(strings.TrimSpace(token), "−", "-")
	value, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, &ParseError{Cmd: cmd, Token: token, Err: err}
	}
	return value, nil
}

// Split a comma separated reply into floats. An empty reply yields no values.
func parseFloatList(cmd, response string) ([]float64, error) {
	response = strings.TrimSpace(response)
	if response == "" {
		return []float64{}, nil
	}
	tokens := strings.Split(response, ",")
	values := make([]float64, 0, len(tokens))
	for _, token := range tokens {
		value, err := parseFloat(cmd, token)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}
