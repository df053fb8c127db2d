package instruments

import "strings"

// Unit is the amplitude unit of the 4051.
type Unit string

const (
	UnitDBM   Unit = "DBM"
	UnitDBMV  Unit = "DBMV"
	UnitDBMA  Unit = "DBMA"
	UnitV     Unit = "V"
	UnitW     Unit = "W"
	UnitA     Unit = "A"
	UnitDBUV  Unit = "DBUV"
	UnitDBUA  Unit = "DBUA"
	UnitDBUVM Unit = "DBUVM"
	UnitDBUAM Unit = "DBUAM"
	UnitDBPT  Unit = "DBPT"
	UnitDBG   Unit = "DBG"
)

var units = []Unit{
	UnitDBM, UnitDBMV, UnitDBMA, UnitV, UnitW, UnitA,
	UnitDBUV, UnitDBUA, UnitDBUVM, UnitDBUAM, UnitDBPT, UnitDBG,
}

// TraceFormat is the encoding of trace data replies.
type TraceFormat string

const (
	FormatASCII     TraceFormat = "ASCII"
	FormatInteger32 TraceFormat = "INTEGER32"
	FormatReal32    TraceFormat = "REAL32"
	FormatReal64    TraceFormat = "REAL64"
)

var traceFormats = []TraceFormat{FormatASCII, FormatInteger32, FormatReal32, FormatReal64}

// TriggerSource selects what starts a sweep.
type TriggerSource string

const (
	TriggerImmediate TriggerSource = "IMMEDIATE"
	TriggerExternal1 TriggerSource = "EXTERNAL1"
	TriggerExternal2 TriggerSource = "EXTERNAL2"
	TriggerLine      TriggerSource = "LINE"
	TriggerFrame     TriggerSource = "FRAME"
	TriggerRFBurst   TriggerSource = "RFBURST"
	TriggerVideo     TriggerSource = "VIDEO"
	TriggerIF        TriggerSource = "IF"
	TriggerAlarm     TriggerSource = "ALARM"
	TriggerLAN       TriggerSource = "LAN"
	TriggerIQMag     TriggerSource = "IQMAG"
	TriggerIDemod    TriggerSource = "IDEMOD"
	TriggerQDemod    TriggerSource = "QDEMOD"
	TriggerIInput    TriggerSource = "IINPUT"
	TriggerQInput    TriggerSource = "QINPUT"
	TriggerAIQMag    TriggerSource = "AIQMAG"
)

var triggerSources = []TriggerSource{
	TriggerImmediate, TriggerExternal1, TriggerExternal2, TriggerLine,
	TriggerFrame, TriggerRFBurst, TriggerVideo, TriggerIF, TriggerAlarm,
	TriggerLAN, TriggerIQMag, TriggerIDemod, TriggerQDemod, TriggerIInput,
	TriggerQInput, TriggerAIQMag,
}

// Detector is the detector type of trace 1.
type Detector string

const (
	DetectorNormal   Detector = "NORMAL"
	DetectorPositive Detector = "POSITIVE"
	DetectorNegative Detector = "NEGATIVE"
	DetectorSample   Detector = "SAMPLE"
	DetectorAverage  Detector = "AVERAGE"
	DetectorRMS      Detector = "RMS"
)

var detectors = []Detector{
	DetectorNormal, DetectorPositive, DetectorNegative,
	DetectorSample, DetectorAverage, DetectorRMS,
}

// TraceMode is the update mode of a trace.
type TraceMode string

const (
	TraceWrite   TraceMode = "WRITE"
	TraceMaxHold TraceMode = "MAXHOLD"
	TraceMinHold TraceMode = "MINHOLD"
	TraceView    TraceMode = "VIEW"
	TraceBlank   TraceMode = "BLANK"
	TraceAverage TraceMode = "AVERAGE"
)

var traceModes = []TraceMode{TraceWrite, TraceMaxHold, TraceMinHold, TraceView, TraceBlank, TraceAverage}

func (u Unit) Valid() bool          { return matchOption(u, units) }
func (f TraceFormat) Valid() bool   { return matchOption(f, traceFormats) }
func (s TriggerSource) Valid() bool { return matchOption(s, triggerSources) }
func (d Detector) Valid() bool      { return matchOption(d, detectors) }
func (m TraceMode) Valid() bool     { return matchOption(m, traceModes) }

func ParseUnit(s string) (Unit, error) { return parseOption("unit", s, units) }

func ParseTraceFormat(s string) (TraceFormat, error) {
	return parseOption("trace format", s, traceFormats)
}

func ParseTriggerSource(s string) (TriggerSource, error) {
	return parseOption("trigger source", s, triggerSources)
}

func ParseDetector(s string) (Detector, error) { return parseOption("detector", s, detectors) }

func ParseTraceMode(s string) (TraceMode, error) { return parseOption("trace mode", s, traceModes) }

func matchOption[T ~string](value T, allowed []T) bool {
	for _, option := range allowed {
		if strings.EqualFold(string(value), string(option)) {
			return true
		}
	}
	return false
}

// parseOption returns the canonical spelling of s.
func parseOption[T ~string](setting, s string, allowed []T) (T, error) {
	for _, option := range allowed {
		if strings.EqualFold(s, string(option)) {
			return option, nil
		}
	}
	return "", invalidOption(setting, T(s), allowed)
}

func invalidOption[T ~string](setting string, value T, allowed []T) error {
	names := make([]string, len(allowed))
	for i, option := range allowed {
		names[i] = string(option)
	}
	return &ValidationError{Setting: setting, Value: string(value), Allowed: names}
}
