package instruments

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

const (
	shotMarker = 1
	maxShots   = math.MaxInt32
)

// MarkerReading is one marker readout.
type MarkerReading struct {
	Marker       int
	FrequencyGHz float64
	AmplitudeDBm float64
}

// Выполнить однократную развертку и считать трассу 1.
//
// The analyzer is polled with *OPC? until the sweep is complete. The reply is
// read in the configured trace format and parsed as comma separated numbers.
func (sa *Ceyear4051) Measure() ([]float64, error) {
	errContext := "measurement fail"
	if err := sa.ensureOpen(); err != nil {
		return nil, err
	}
	if err := sa.instr.WriteAll("*ESE 1", ":INIT:IMM"); err != nil {
		return nil, errors.Wrap(err, errContext)
	}
	if _, err := sa.instr.Query("*OPC?"); err != nil {
		return nil, errors.Wrap(err, errContext)
	}
	trace, err := sa.readTrace(1)
	if err != nil {
		return nil, errors.Wrap(err, errContext)
	}
	return trace, nil
}

// Выполнить n измерений амплитуды маркером 1 на частоте freqGHz.
//
// freqGHz == 0 selects the cached center frequency. Readings are taken one
// round trip at a time; a single unparsable reading fails the whole call and
// no partial result is returned. The error queue is polled once at the end.
func (sa *Ceyear4051) Shot(n int, freqGHz float64) ([]float64, error) {
	errContext := "shot measurement fail"
	if err := sa.ensureOpen(); err != nil {
		return nil, err
	}
	if err := checkRange("shot count", n, 0, maxShots); err != nil {
		return nil, errors.Wrap(err, errContext)
	}
	if freqGHz == 0 {
		freqGHz = sa.settings.CenterGHz
	}

	err := sa.instr.Write(fmt.Sprintf(":CALC:MARK%d:X %s GHz", shotMarker, formatFloat(freqGHz)))
	if err != nil {
		return nil, errors.Wrap(err, errContext)
	}

	readQuery := fmt.Sprintf(":CALC:MARK%d:Y?", shotMarker)
	values := make([]float64, 0, min(n, DefaultPoints))
	for i := 0; i < n; i++ {
		if err := sa.instr.Write(":INIT:IMM;*WAI"); err != nil {
			return nil, errors.Wrapf(err, "%s at reading %d", errContext, i+1)
		}
		value, err := sa.instr.QueryFloat(readQuery)
		if err != nil {
			return nil, errors.Wrapf(err, "%s at reading %d", errContext, i+1)
		}
		values = append(values, value)
	}

	if err := sa.finish(nil, errContext); err != nil {
		return nil, err
	}
	return values, nil
}

// Включить маркер, привязать его к трассе и установить на частоту freqGHz.
// При freqGHz <= 0 маркер ставится на текущую центральную частоту анализатора.
func (sa *Ceyear4051) SetMarker(marker int, freqGHz float64, traceNum int) error {
	errContext := "marker setting fail"
	if err := sa.ensureOpen(); err != nil {
		return err
	}
	if err := checkRange("marker", marker, 1, maxMarkerNum); err != nil {
		return errors.Wrap(err, errContext)
	}
	if err := checkRange("trace", traceNum, 1, maxTraceNum); err != nil {
		return errors.Wrap(err, errContext)
	}

	err := sa.instr.WriteAll(
		fmt.Sprintf(":CALC:MARK%d:STAT ON", marker),
		fmt.Sprintf(":CALC:MARK%d:MODE POS", marker),
		fmt.Sprintf(":CALC:MARK%d:TRAC %d", marker, traceNum),
	)
	if err != nil {
		return errors.Wrap(err, errContext)
	}

	var position string
	if freqGHz > 0 {
		position = fmt.Sprintf(":CALC:MARK%d:X %s GHz", marker, formatFloat(freqGHz))
	} else {
		centerHz, err := sa.instr.QueryFloat(":SENS:FREQ:CENT?")
		if err != nil {
			return errors.Wrap(err, errContext)
		}
		position = fmt.Sprintf(":CALC:MARK%d:X %s Hz", marker, formatFloat(centerHz))
	}
	return sa.finish(sa.instr.Write(position), errContext)
}

// Считать частоту и амплитуду маркера. X и Y читаются двумя отдельными
// запросами, поэтому между ними возможна новая развертка.
func (sa *Ceyear4051) GetMarkerData(marker int) (MarkerReading, error) {
	errContext := "marker read fail"
	reading := MarkerReading{Marker: marker}
	if err := sa.ensureOpen(); err != nil {
		return reading, err
	}
	if err := checkRange("marker", marker, 1, maxMarkerNum); err != nil {
		return reading, errors.Wrap(err, errContext)
	}

	if err := sa.instr.Write(fmt.Sprintf(":CALC:MARK%d:STAT ON", marker)); err != nil {
		return reading, errors.Wrap(err, errContext)
	}
	freqHz, err := sa.instr.QueryFloat(fmt.Sprintf(":CALC:MARK%d:X?", marker))
	if err != nil {
		return reading, errors.Wrap(err, errContext)
	}
	amplitude, err := sa.instr.QueryFloat(fmt.Sprintf(":CALC:MARK%d:Y?", marker))
	if err != nil {
		return reading, errors.Wrap(err, errContext)
	}

	reading.FrequencyGHz = freqHz / 1e9
	reading.AmplitudeDBm = amplitude
	return reading, nil
}

// ReadMarkers reads the given markers in order. It stops at the first failure.
func (sa *Ceyear4051) ReadMarkers(markers ...int) ([]MarkerReading, error) {
	readings := make([]MarkerReading, 0, len(markers))
	for _, marker := range markers {
		reading, err := sa.GetMarkerData(marker)
		if err != nil {
			return nil, err
		}
		readings = append(readings, reading)
	}
	return readings, nil
}

func (sa *Ceyear4051) readTrace(traceNum int) ([]float64, error) {
	cmd := fmt.Sprintf(":TRAC:DATA? TRACE%d", traceNum)
	response, err := sa.instr.Query(cmd)
	if err != nil {
		return nil, err
	}
	return parseFloatList(cmd, response)
}
