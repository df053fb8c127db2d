// Управление анализатором спектра Ceyear 4051 по GPIB
// Ceyear 4051 Series Signal/Spectrum Analyzer Programming Manual

package instruments

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	ceyearManufacturer = "Ceyear"
	defaultSettleDelay = 500 * time.Millisecond
	maxTraceNum        = 6
	maxMarkerNum       = 12
)

const (
	DefaultSpanMHz   = 500.0
	DefaultSweepType = "sweep"
	DefaultPoints    = 1001
)

// Settings mirrors the values last requested through the session. They are
// not read back from the analyzer, except for bandwidths set to auto.
type Settings struct {
	CenterGHz     float64
	SpanMHz       float64
	Points        int
	RefLevelDBm   float64
	AttenuationDB int
	RBWHz         float64
	VBWHz         float64
	Detector      Detector
	TraceMode     TraceMode
}

// Ceyear4051 drives a Ceyear 4051 spectrum analyzer. It is not safe for
// concurrent use.
type Ceyear4051 struct {
	instr       *Instrument
	settings    Settings
	log         logrus.FieldLogger
	settleDelay time.Duration
	strict      bool
	now         func() time.Time
}

type Option func(*Ceyear4051)

func WithLogger(log logrus.FieldLogger) Option {
	return func(sa *Ceyear4051) { sa.log = log }
}

// WithSettleDelay sets the pause after *RST (500ms by default).
func WithSettleDelay(d time.Duration) Option {
	return func(sa *Ceyear4051) { sa.settleDelay = d }
}

// WithStrictErrors makes every setter fail with InstrumentError when the
// error queue reports a fault after the setter's commands. By default such
// faults are only logged and the setter succeeds.
func WithStrictErrors() Option {
	return func(sa *Ceyear4051) { sa.strict = true }
}

// WithClock replaces time.Now for trace export headers.
func WithClock(now func() time.Time) Option {
	return func(sa *Ceyear4051) { sa.now = now }
}

// OpenCeyear4051 dials address, identifies, resets and clears the analyzer.
// On any failure the transport is closed and no session is returned.
func OpenCeyear4051(d Dialer, address string, opts ...Option) (*Ceyear4051, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}

	sa := &Ceyear4051{
		log:         logrus.StandardLogger(),
		settleDelay: defaultSettleDelay,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(sa)
	}
	if sa.log == nil {
		sa.log = logrus.StandardLogger()
	}

	t, err := d.Dial(addr)
	if err != nil {
		return nil, &ConnectionError{Op: "open", Cmd: addr.String(), Err: err}
	}
	if err := sa.Init(NewInstrument(addr, t, sa.log)); err != nil {
		sa.instr.Close()
		return nil, err
	}
	return sa, nil
}

// Инициализация анализатора.
func (sa *Ceyear4051) Init(instr *Instrument) error {
	sa.instr = instr
	sa.instr.SetErrorQuery(":SYST:ERR?")
	if _, err := sa.Identify(); err != nil {
		return err
	}
	if err := sa.Reset(); err != nil {
		return err
	}
	return sa.Clear()
}

// Identify returns the full *IDN? reply. A non-Ceyear manufacturer is logged.
func (sa *Ceyear4051) Identify() (string, error) {
	if err := sa.ensureOpen(); err != nil {
		return "", err
	}
	return sa.instr.Identify(ceyearManufacturer)
}

// Reset sends *RST and waits for the analyzer to settle.
func (sa *Ceyear4051) Reset() error {
	if err := sa.instr.Write("*RST"); err != nil {
		return errors.Wrap(err, "reset fail")
	}
	if sa.settleDelay > 0 {
		time.Sleep(sa.settleDelay)
	}
	return nil
}

// Clear empties the status and error queues.
func (sa *Ceyear4051) Clear() error {
	return errors.Wrap(sa.instr.Write("*CLS"), "status clear fail")
}

// CheckError polls the error queue. hadError is true for any reply not
// starting with +0; the fault is logged and the queue cleared. err is only
// set for transport failures or a closed session.
func (sa *Ceyear4051) CheckError() (hadError bool, err error) {
	if err := sa.ensureOpen(); err != nil {
		return false, err
	}
	_, hadError, err = sa.instr.CheckErrors()
	return hadError, err
}

// Close releases the transport. The session must not be used afterwards.
func (sa *Ceyear4051) Close() error {
	return sa.instr.Close()
}

func (sa *Ceyear4051) Address() Address { return sa.instr.Address() }

func (sa *Ceyear4051) Info() map[string]string { return sa.instr.Info() }

func (sa *Ceyear4051) Settings() Settings { return sa.settings }

func (sa *Ceyear4051) String() string { return sa.instr.String() }

// Установить центральную частоту (ГГц) и полосу обзора (МГц).
func (sa *Ceyear4051) SetFrequency(centerGHz, spanMHz float64) error {
	errContext := "frequency setting fail"
	if err := sa.ensureOpen(); err != nil {
		return err
	}
	if err := sa.instr.Write(fmt.Sprintf(":SENS:FREQ:CENT %s GHz", formatFloat(centerGHz))); err != nil {
		return errors.Wrap(err, errContext)
	}
	sa.settings.CenterGHz = centerGHz
	if err := sa.instr.Write(fmt.Sprintf(":SENS:FREQ:SPAN %s MHz", formatFloat(spanMHz))); err != nil {
		return errors.Wrap(err, errContext)
	}
	sa.settings.SpanMHz = spanMHz
	return sa.finish(nil, errContext)
}

// Установить тип развертки и число точек. Пустой тип означает DefaultSweepType.
func (sa *Ceyear4051) SetSweep(sweepType string, points int) error {
	errContext := "sweep setting fail"
	if err := sa.ensureOpen(); err != nil {
		return err
	}
	if err := checkRange("sweep points", points, 1, math.MaxInt); err != nil {
		return sa.reject(err, errContext)
	}
	if sweepType == "" {
		sweepType = DefaultSweepType
	}
	err := sa.instr.WriteAll(
		fmt.Sprintf(":SENS:SWE:TYPE %s", sweepType),
		fmt.Sprintf(":SENS:SWE:POIN %d", points),
	)
	if err == nil {
		sa.settings.Points = points
	}
	return sa.finish(err, errContext)
}

func (sa *Ceyear4051) SetUnit(unit Unit) error {
	errContext := "unit setting fail"
	if err := sa.ensureOpen(); err != nil {
		return err
	}
	if !unit.Valid() {
		return sa.reject(invalidOption("unit", unit, units), errContext)
	}
	return sa.finish(sa.instr.Write(fmt.Sprintf(":UNIT:POW %s", unit)), errContext)
}

func (sa *Ceyear4051) SetFormat(format TraceFormat) error {
	errContext := "trace format setting fail"
	if err := sa.ensureOpen(); err != nil {
		return err
	}
	if !format.Valid() {
		return sa.reject(invalidOption("trace format", format, traceFormats), errContext)
	}
	return sa.finish(sa.instr.Write(fmt.Sprintf(":FORM:TRAC:DATA %s", format)), errContext)
}

func (sa *Ceyear4051) SetTrigger(source TriggerSource) error {
	errContext := "trigger setting fail"
	if err := sa.ensureOpen(); err != nil {
		return err
	}
	if !source.Valid() {
		return sa.reject(invalidOption("trigger source", source, triggerSources), errContext)
	}
	return sa.finish(sa.instr.Write(fmt.Sprintf(":TRIG:SEQ:SOUR %s", source)), errContext)
}

// Сбросить все трассы.
func (sa *Ceyear4051) ResetTrace() error {
	if err := sa.ensureOpen(); err != nil {
		return err
	}
	return sa.finish(sa.instr.Write(":TRAC:PRES:ALL"), "trace preset fail")
}

func (sa *Ceyear4051) SetReferenceLevel(levelDBm float64) error {
	errContext := "reference level setting fail"
	if err := sa.ensureOpen(); err != nil {
		return err
	}
	err := sa.instr.Write(fmt.Sprintf(":DISP:WIND:TRAC:Y:SCAL:RLEV %s dBm", formatFloat(levelDBm)))
	if err == nil {
		sa.settings.RefLevelDBm = levelDBm
	}
	return sa.finish(err, errContext)
}

// Установить ослабление аттенюатора. При auto значение attenuationDB не передается.
func (sa *Ceyear4051) SetAttenuation(attenuationDB int, auto bool) error {
	errContext := "attenuation setting fail"
	if err := sa.ensureOpen(); err != nil {
		return err
	}
	if auto {
		return sa.finish(sa.instr.Write(":SENS:POW:RF:ATT:AUTO ON"), errContext)
	}
	err := sa.instr.WriteAll(
		fmt.Sprintf(":SENS:POW:RF:ATT %d dB", attenuationDB),
		":SENS:POW:RF:ATT:AUTO OFF",
	)
	if err == nil {
		sa.settings.AttenuationDB = attenuationDB
	}
	return sa.finish(err, errContext)
}

// Установить тип детектора трассы 1.
func (sa *Ceyear4051) SetDetector(detector Detector) error {
	errContext := "detector setting fail"
	if err := sa.ensureOpen(); err != nil {
		return err
	}
	if !detector.Valid() {
		return sa.reject(invalidOption("detector", detector, detectors), errContext)
	}
	err := sa.instr.Write(fmt.Sprintf(":SENS:DET:TRAC1 %s", detector))
	if err == nil {
		sa.settings.Detector = detector
	}
	return sa.finish(err, errContext)
}

// Установить режим трассы. В кэше хранится только режим трассы 1.
func (sa *Ceyear4051) SetTraceMode(mode TraceMode, traceNum int) error {
	errContext := "trace mode setting fail"
	if err := sa.ensureOpen(); err != nil {
		return err
	}
	if !mode.Valid() {
		return sa.reject(invalidOption("trace mode", mode, traceModes), errContext)
	}
	if err := checkRange("trace", traceNum, 1, maxTraceNum); err != nil {
		return sa.reject(err, errContext)
	}
	err := sa.instr.Write(fmt.Sprintf(":TRAC%d:MODE %s", traceNum, mode))
	if err == nil && traceNum == 1 {
		sa.settings.TraceMode = mode
	}
	return sa.finish(err, errContext)
}

// Установить полосы RBW и VBW (Гц). При auto анализатор выбирает их сам,
// выбранные значения считываются обратно в кэш. Иначе передаются только
// положительные значения.
func (sa *Ceyear4051) SetBandwidth(rbwHz, vbwHz float64, auto bool) error {
	errContext := "bandwidth setting fail"
	if err := sa.ensureOpen(); err != nil {
		return err
	}

	if auto {
		err := sa.instr.WriteAll(":SENS:BAND:RES:AUTO ON", ":SENS:BAND:VID:AUTO ON")
		if err != nil {
			return errors.Wrap(err, errContext)
		}
		rbw, err := sa.instr.QueryFloat(":SENS:BAND:RES?")
		if err != nil {
			return errors.Wrap(err, errContext)
		}
		sa.settings.RBWHz = rbw
		vbw, err := sa.instr.QueryFloat(":SENS:BAND:VID?")
		if err != nil {
			return errors.Wrap(err, errContext)
		}
		sa.settings.VBWHz = vbw
		return sa.finish(nil, errContext)
	}

	if rbwHz > 0 {
		err := sa.instr.WriteAll(
			fmt.Sprintf(":SENS:BAND:RES %s Hz", formatFloat(rbwHz)),
			":SENS:BAND:RES:AUTO OFF",
		)
		if err != nil {
			return errors.Wrap(err, errContext)
		}
		sa.settings.RBWHz = rbwHz
	}
	if vbwHz > 0 {
		err := sa.instr.WriteAll(
			fmt.Sprintf(":SENS:BAND:VID %s Hz", formatFloat(vbwHz)),
			":SENS:BAND:VID:AUTO OFF",
		)
		if err != nil {
			return errors.Wrap(err, errContext)
		}
		sa.settings.VBWHz = vbwHz
	}
	return sa.finish(nil, errContext)
}

func (sa *Ceyear4051) ensureOpen() error {
	if sa.instr == nil || sa.instr.closed {
		return ErrSessionClosed
	}
	return nil
}

// finish ends a setter: a send failure is returned as is, otherwise the
// error queue is polled.
func (sa *Ceyear4051) finish(err error, errContext string) error {
	if err != nil {
		return errors.Wrap(err, errContext)
	}
	msg, hadError, err := sa.instr.CheckErrors()
	if err != nil {
		return errors.Wrap(err, errContext)
	}
	if hadError && sa.strict {
		return errors.Wrap(&InstrumentError{Message: msg}, errContext)
	}
	return nil
}

// reject returns an argument error without sending anything. The error queue
// is still read, a pending fault is logged but not cleared.
func (sa *Ceyear4051) reject(argErr error, errContext string) error {
	msg, hadError, err := sa.instr.PollErrors()
	if err != nil {
		sa.log.WithError(err).Warn("error queue check after rejected argument fail")
	} else if hadError {
		sa.log.Warnf("instrument error: %s", msg)
	}
	return errors.Wrap(argErr, errContext)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
