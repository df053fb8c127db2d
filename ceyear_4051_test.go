package instruments

import (
	"fmt"
	"math"
	"testing"

	"github.com/pkg/errors"
)

func TestOpenCeyear4051(t *testing.T) {
	stub := newStubTransport()
	sa, err := OpenCeyear4051(stub.dialer(), "GPIB0::18::INSTR", WithSettleDelay(0))
	if err != nil {
		t.Fatal(err)
	}

	idn, err := sa.Identify()
	if err != nil {
		t.Fatal(err)
	}
	if idn != testIDN {
		t.Errorf("Identify() = %q, want %q", idn, testIDN)
	}
	if sa.Info()["Model"] != "4051B" {
		t.Errorf("model = %q", sa.Info()["Model"])
	}
	if sa.Address().Primary != 18 {
		t.Errorf("address = %v", sa.Address())
	}

	wantEvents := []stubEvent{
		{"query", "*IDN?"},
		{"send", "*RST"},
		{"send", "*CLS"},
		{"query", "*IDN?"},
	}
	if fmt.Sprint(stub.events) != fmt.Sprint(wantEvents) {
		t.Errorf("events = %v, want %v", stub.events, wantEvents)
	}
}

func TestOpenCeyear4051Failures(t *testing.T) {
	t.Run("unsupported interface", func(t *testing.T) {
		dialed := false
		d := DialerFunc(func(Address) (Transport, error) {
			dialed = true
			return newStubTransport(), nil
		})
		_, err := OpenCeyear4051(d, "TCPIP0::10.0.0.5::inst0::INSTR")
		if !errors.Is(err, ErrUnsupportedInterface) {
			t.Errorf("err = %v, want ErrUnsupportedInterface", err)
		}
		if dialed {
			t.Error("transport dialed for unsupported address")
		}
	})

	t.Run("dial failure", func(t *testing.T) {
		d := DialerFunc(func(Address) (Transport, error) {
			return nil, fmt.Errorf("no listener")
		})
		sa, err := OpenCeyear4051(d, "GPIB0::18::INSTR")
		var connErr *ConnectionError
		if sa != nil || !errors.As(err, &connErr) || connErr.Op != "open" {
			t.Errorf("sa = %v, err = %v, want open ConnectionError", sa, err)
		}
	})

	t.Run("identification failure", func(t *testing.T) {
		stub := newStubTransport()
		stub.failOn["*IDN?"] = fmt.Errorf("timeout")
		sa, err := OpenCeyear4051(stub.dialer(), "GPIB0::18::INSTR", WithSettleDelay(0))
		if sa != nil || err == nil {
			t.Fatalf("sa = %v, err = %v", sa, err)
		}
		if stub.closed != 1 {
			t.Errorf("transport closed %d times, want 1", stub.closed)
		}
	})

	t.Run("reset failure", func(t *testing.T) {
		stub := newStubTransport()
		stub.failOn["*RST"] = fmt.Errorf("nack")
		sa, err := OpenCeyear4051(stub.dialer(), "GPIB0::18::INSTR", WithSettleDelay(0))
		if sa != nil || err == nil || stub.closed != 1 {
			t.Errorf("sa = %v, err = %v, closed = %d", sa, err, stub.closed)
		}
	})
}

func TestEnumeratedSetters(t *testing.T) {
	setters := []struct {
		name    string
		set     func(sa *Ceyear4051, v string) error
		allowed []string
		command string
	}{
		{"unit", func(sa *Ceyear4051, v string) error { return sa.SetUnit(Unit(v)) },
			[]string{"DBM", "dbmv", "DbmA", "V", "w", "A", "DBUV", "DBUA", "DBUVM", "DBUAM", "DBPT", "DBG"},
			":UNIT:POW %s"},
		{"format", func(sa *Ceyear4051, v string) error { return sa.SetFormat(TraceFormat(v)) },
			[]string{"ASCII", "integer32", "Real32", "REAL64"},
			":FORM:TRAC:DATA %s"},
		{"trigger", func(sa *Ceyear4051, v string) error { return sa.SetTrigger(TriggerSource(v)) },
			[]string{"IMMEDIATE", "external1", "EXTERNAL2", "LINE", "FRAME", "RFBURST", "VIDEO", "IF",
				"ALARM", "LAN", "IQMAG", "IDEMOD", "QDEMOD", "IINPUT", "QINPUT", "aiqmag"},
			":TRIG:SEQ:SOUR %s"},
		{"detector", func(sa *Ceyear4051, v string) error { return sa.SetDetector(Detector(v)) },
			[]string{"NORMAL", "positive", "NEGATIVE", "Sample", "AVERAGE", "rms"},
			":SENS:DET:TRAC1 %s"},
		{"trace mode", func(sa *Ceyear4051, v string) error { return sa.SetTraceMode(TraceMode(v), 1) },
			[]string{"WRITE", "maxhold", "MINHOLD", "View", "BLANK", "AVERAGE"},
			":TRAC1:MODE %s"},
	}
	rejected := []string{"", "DBM ", "dB m", "ASCII;*RST", "PEAK", "EXTERNAL3", "hold"}

	for _, tt := range setters {
		t.Run(tt.name, func(t *testing.T) {
			stub := newStubTransport()
			sa, _ := openStub(t, stub)

			for _, v := range tt.allowed {
				stub.clearEvents()
				if err := tt.set(sa, v); err != nil {
					t.Errorf("%q rejected: %v", v, err)
					continue
				}
				want := []string{fmt.Sprintf(tt.command, v)}
				if !equalStrings(stub.sends(), want) {
					t.Errorf("%q sends %v, want %v", v, stub.sends(), want)
				}
				if !equalStrings(stub.queries(), []string{":SYST:ERR?"}) {
					t.Errorf("%q queries %v, want error check", v, stub.queries())
				}
			}

			for _, v := range rejected {
				stub.clearEvents()
				err := tt.set(sa, v)
				var verr *ValidationError
				if !errors.As(err, &verr) || !errors.Is(err, ErrValidation) {
					t.Errorf("%q: err = %v, want ValidationError", v, err)
				}
				if len(stub.sends()) != 0 {
					t.Errorf("%q sent %v", v, stub.sends())
				}
				if !equalStrings(stub.queries(), []string{":SYST:ERR?"}) {
					t.Errorf("%q queries %v, want error check", v, stub.queries())
				}
			}
		})
	}
}

func TestSetUnitKeepsCallerCasing(t *testing.T) {
	stub := newStubTransport()
	sa, _ := openStub(t, stub)

	if err := sa.SetUnit("dbm"); err != nil {
		t.Fatal(err)
	}
	if !equalStrings(stub.sends(), []string{":UNIT:POW dbm"}) {
		t.Errorf("sends = %v", stub.sends())
	}
}

func TestParseOptions(t *testing.T) {
	if u, err := ParseUnit("dbuvm"); err != nil || u != UnitDBUVM {
		t.Errorf("ParseUnit = %q, %v", u, err)
	}
	if f, err := ParseTraceFormat("real32"); err != nil || f != FormatReal32 {
		t.Errorf("ParseTraceFormat = %q, %v", f, err)
	}
	if s, err := ParseTriggerSource("Video"); err != nil || s != TriggerVideo {
		t.Errorf("ParseTriggerSource = %q, %v", s, err)
	}
	if d, err := ParseDetector("RmS"); err != nil || d != DetectorRMS {
		t.Errorf("ParseDetector = %q, %v", d, err)
	}
	if m, err := ParseTraceMode("minhold"); err != nil || m != TraceMinHold {
		t.Errorf("ParseTraceMode = %q, %v", m, err)
	}
	if _, err := ParseDetector("peak"); !errors.Is(err, ErrValidation) {
		t.Errorf("ParseDetector(peak) = %v", err)
	}
}

func TestSetFrequencyCache(t *testing.T) {
	stub := newStubTransport()
	sa, _ := openStub(t, stub)

	for _, tt := range []struct{ center, span float64 }{
		{2.4, 500},
		{0, 0},
		{-1.5, -20},
		{26.5, 0.001},
		{1e-9, 1e6},
	} {
		stub.clearEvents()
		if err := sa.SetFrequency(tt.center, tt.span); err != nil {
			t.Fatal(err)
		}
		s := sa.Settings()
		if s.CenterGHz != tt.center || s.SpanMHz != tt.span {
			t.Errorf("cache = (%v, %v), want (%v, %v)", s.CenterGHz, s.SpanMHz, tt.center, tt.span)
		}
		want := []string{
			fmt.Sprintf(":SENS:FREQ:CENT %s GHz", formatFloat(tt.center)),
			fmt.Sprintf(":SENS:FREQ:SPAN %s MHz", formatFloat(tt.span)),
		}
		if !equalStrings(stub.sends(), want) {
			t.Errorf("sends = %v, want %v", stub.sends(), want)
		}
	}
}

func TestSetSweep(t *testing.T) {
	stub := newStubTransport()
	sa, _ := openStub(t, stub)

	if err := sa.SetSweep("", DefaultPoints); err != nil {
		t.Fatal(err)
	}
	want := []string{":SENS:SWE:TYPE sweep", ":SENS:SWE:POIN 1001"}
	if !equalStrings(stub.sends(), want) {
		t.Errorf("sends = %v, want %v", stub.sends(), want)
	}
	if sa.Settings().Points != 1001 {
		t.Errorf("points = %d", sa.Settings().Points)
	}

	stub.clearEvents()
	err := sa.SetSweep("fft", 0)
	var rangeErr *RangeError
	if !errors.As(err, &rangeErr) {
		t.Errorf("err = %v, want RangeError", err)
	}
	if len(stub.sends()) != 0 || sa.Settings().Points != 1001 {
		t.Errorf("sends = %v, points = %d", stub.sends(), sa.Settings().Points)
	}
}

func TestSetReferenceLevelAndResetTrace(t *testing.T) {
	stub := newStubTransport()
	sa, _ := openStub(t, stub)

	if err := sa.SetReferenceLevel(-10.5); err != nil {
		t.Fatal(err)
	}
	if err := sa.ResetTrace(); err != nil {
		t.Fatal(err)
	}
	want := []string{":DISP:WIND:TRAC:Y:SCAL:RLEV -10.5 dBm", ":TRAC:PRES:ALL"}
	if !equalStrings(stub.sends(), want) {
		t.Errorf("sends = %v, want %v", stub.sends(), want)
	}
	if sa.Settings().RefLevelDBm != -10.5 {
		t.Errorf("reference level = %v", sa.Settings().RefLevelDBm)
	}
}

func TestSetAttenuation(t *testing.T) {
	stub := newStubTransport()
	sa, _ := openStub(t, stub)

	if err := sa.SetAttenuation(20, false); err != nil {
		t.Fatal(err)
	}
	want := []string{":SENS:POW:RF:ATT 20 dB", ":SENS:POW:RF:ATT:AUTO OFF"}
	if !equalStrings(stub.sends(), want) {
		t.Errorf("sends = %v, want %v", stub.sends(), want)
	}

	stub.clearEvents()
	if err := sa.SetAttenuation(40, true); err != nil {
		t.Fatal(err)
	}
	if !equalStrings(stub.sends(), []string{":SENS:POW:RF:ATT:AUTO ON"}) {
		t.Errorf("sends = %v", stub.sends())
	}
	if sa.Settings().AttenuationDB != 20 {
		t.Errorf("attenuation = %d, want 20 kept from the fixed setting", sa.Settings().AttenuationDB)
	}
}

func TestSetTraceMode(t *testing.T) {
	stub := newStubTransport()
	sa, _ := openStub(t, stub)

	if err := sa.SetTraceMode(TraceMaxHold, 1); err != nil {
		t.Fatal(err)
	}
	if err := sa.SetTraceMode(TraceView, 3); err != nil {
		t.Fatal(err)
	}
	if sa.Settings().TraceMode != TraceMaxHold {
		t.Errorf("trace mode = %q, want only trace 1 cached", sa.Settings().TraceMode)
	}

	for _, trace := range []int{0, 7, -1} {
		stub.clearEvents()
		err := sa.SetTraceMode(TraceWrite, trace)
		var rangeErr *RangeError
		if !errors.As(err, &rangeErr) || rangeErr.Value != trace {
			t.Errorf("trace %d: err = %v, want RangeError", trace, err)
		}
		if len(stub.sends()) != 0 {
			t.Errorf("trace %d sent %v", trace, stub.sends())
		}
	}
}

func TestSetDetectorCache(t *testing.T) {
	stub := newStubTransport()
	sa, _ := openStub(t, stub)

	if err := sa.SetDetector("rms"); err != nil {
		t.Fatal(err)
	}
	if sa.Settings().Detector != "rms" {
		t.Errorf("detector = %q", sa.Settings().Detector)
	}
	if err := sa.SetDetector("quasi-peak"); err == nil {
		t.Fatal("expected error")
	}
	if sa.Settings().Detector != "rms" {
		t.Errorf("detector changed by rejected value: %q", sa.Settings().Detector)
	}
}

func TestSetBandwidthAuto(t *testing.T) {
	stub := newStubTransport().
		reply(":SENS:BAND:RES?", "1.0E5").
		reply(":SENS:BAND:VID?", "1.0E4")
	sa, _ := openStub(t, stub)

	if err := sa.SetBandwidth(0, 0, true); err != nil {
		t.Fatal(err)
	}
	s := sa.Settings()
	if s.RBWHz != 100000.0 || s.VBWHz != 10000.0 {
		t.Errorf("cache rbw = %v, vbw = %v", s.RBWHz, s.VBWHz)
	}
	if !equalStrings(stub.sends(), []string{":SENS:BAND:RES:AUTO ON", ":SENS:BAND:VID:AUTO ON"}) {
		t.Errorf("sends = %v", stub.sends())
	}
	if !equalStrings(stub.queries(), []string{":SENS:BAND:RES?", ":SENS:BAND:VID?", ":SYST:ERR?"}) {
		t.Errorf("queries = %v", stub.queries())
	}
}

func TestSetBandwidthAutoParseError(t *testing.T) {
	stub := newStubTransport().
		reply(":SENS:BAND:RES?", "3.0E6").
		reply(":SENS:BAND:VID?", "auto")
	sa, _ := openStub(t, stub)

	err := sa.SetBandwidth(0, 0, true)
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("err = %v, want ParseError", err)
	}
	if sa.Settings().RBWHz != 3e6 {
		t.Errorf("rbw = %v, want the value read before the failure", sa.Settings().RBWHz)
	}
}

func TestSetBandwidthManual(t *testing.T) {
	stub := newStubTransport()
	sa, _ := openStub(t, stub)

	if err := sa.SetBandwidth(1000, 0, false); err != nil {
		t.Fatal(err)
	}
	if !equalStrings(stub.sends(), []string{":SENS:BAND:RES 1000 Hz", ":SENS:BAND:RES:AUTO OFF"}) {
		t.Errorf("sends = %v", stub.sends())
	}

	stub.clearEvents()
	if err := sa.SetBandwidth(30000, 300, false); err != nil {
		t.Fatal(err)
	}
	want := []string{
		":SENS:BAND:RES 30000 Hz", ":SENS:BAND:RES:AUTO OFF",
		":SENS:BAND:VID 300 Hz", ":SENS:BAND:VID:AUTO OFF",
	}
	if !equalStrings(stub.sends(), want) {
		t.Errorf("sends = %v, want %v", stub.sends(), want)
	}
	if s := sa.Settings(); s.RBWHz != 30000 || s.VBWHz != 300 {
		t.Errorf("cache = %+v", s)
	}
}

func TestInstrumentErrorIsObservational(t *testing.T) {
	stub := newStubTransport().reply(":SYST:ERR?", "-113,\"Undefined header\"")
	sa, hook := openStub(t, stub)

	if err := sa.SetTrigger(TriggerExternal1); err != nil {
		t.Fatalf("setter failed on instrument error: %v", err)
	}
	if len(warnings(hook)) != 1 {
		t.Errorf("warnings = %v", warnings(hook))
	}
	if !equalStrings(stub.sends(), []string{":TRIG:SEQ:SOUR EXTERNAL1", "*CLS"}) {
		t.Errorf("sends = %v", stub.sends())
	}
}

func TestRejectedArgumentSendsNothing(t *testing.T) {
	stub := newStubTransport().reply(":SYST:ERR?", "-113,\"Undefined header\"")
	sa, hook := openStub(t, stub, WithStrictErrors())

	err := sa.SetUnit("bogus")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if len(stub.sends()) != 0 {
		t.Errorf("sends = %v, want none", stub.sends())
	}
	if !equalStrings(stub.queries(), []string{":SYST:ERR?"}) {
		t.Errorf("queries = %v", stub.queries())
	}
	if w := warnings(hook); len(w) != 1 || w[0] != "instrument error: -113,\"Undefined header\"" {
		t.Errorf("warnings = %v", w)
	}
}

func TestStrictErrors(t *testing.T) {
	stub := newStubTransport().reply(":SYST:ERR?", "-222,\"Data out of range\"")
	sa, _ := openStub(t, stub, WithStrictErrors())

	err := sa.SetReferenceLevel(math.Inf(1))
	var instrErr *InstrumentError
	if !errors.As(err, &instrErr) {
		t.Fatalf("err = %v, want InstrumentError", err)
	}
	if instrErr.Message != "-222,\"Data out of range\"" {
		t.Errorf("message = %q", instrErr.Message)
	}
	if err := sa.SetReferenceLevel(0); err != nil {
		t.Errorf("clean error queue: %v", err)
	}
}

func TestCheckError(t *testing.T) {
	stub := newStubTransport().reply(":SYST:ERR?", "+0,\"No error\"", "-100,\"Command error\"")
	sa, _ := openStub(t, stub)

	if hadError, err := sa.CheckError(); hadError || err != nil {
		t.Errorf("CheckError = %v, %v", hadError, err)
	}
	if hadError, err := sa.CheckError(); !hadError || err != nil {
		t.Errorf("CheckError = %v, %v", hadError, err)
	}
}

func TestSessionClosed(t *testing.T) {
	stub := newStubTransport()
	sa, _ := openStub(t, stub)

	if err := sa.Close(); err != nil {
		t.Fatal(err)
	}
	if err := sa.Close(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("second Close = %v", err)
	}

	calls := map[string]error{
		"SetFrequency": sa.SetFrequency(1, 1),
		"SetUnit":      sa.SetUnit(UnitDBM),
		"SetUnit bad":  sa.SetUnit("bogus"),
		"SetBandwidth": sa.SetBandwidth(0, 0, true),
		"SetMarker":    sa.SetMarker(1, 1, 1),
		"Reset":        sa.Reset(),
	}
	_, calls["Identify"] = sa.Identify()
	_, calls["CheckError"] = sa.CheckError()
	_, calls["Measure"] = sa.Measure()
	_, calls["Shot"] = sa.Shot(3, 0)
	_, calls["GetMarkerData"] = sa.GetMarkerData(1)
	_, calls["SaveTraceData"] = sa.SaveTraceData(t.TempDir()+"/trace.csv", 1, true)

	for name, err := range calls {
		if !errors.Is(err, ErrSessionClosed) {
			t.Errorf("%s after Close = %v, want ErrSessionClosed", name, err)
		}
	}
	if len(stub.events) != 0 {
		t.Errorf("transport used after close: %v", stub.events)
	}
}
