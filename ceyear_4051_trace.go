package instruments

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// TraceData is one trace read in ASCII format together with the cached
// settings it was taken with.
type TraceData struct {
	Trace          int
	Timestamp      time.Time
	Settings       Settings
	FrequenciesGHz []float64
	PowersDBm      []float64
}

// ReadTrace switches the trace format to ASCII and reads traceNum. The
// frequency axis is rebuilt from the cached center and span, not queried.
func (sa *Ceyear4051) ReadTrace(traceNum int) (TraceData, error) {
	errContext := "trace read fail"
	data := TraceData{Trace: traceNum}
	if err := sa.ensureOpen(); err != nil {
		return data, err
	}
	if err := checkRange("trace", traceNum, 1, maxTraceNum); err != nil {
		return data, errors.Wrap(err, errContext)
	}

	if err := sa.instr.Write(fmt.Sprintf(":FORM:TRAC:DATA %s", FormatASCII)); err != nil {
		return data, errors.Wrap(err, errContext)
	}
	powers, err := sa.readTrace(traceNum)
	if err != nil {
		return data, errors.Wrap(err, errContext)
	}

	return sa.traceData(traceNum, powers), nil
}

// MeasureTrace runs a single sweep like Measure and returns trace 1 with its
// frequency axis.
func (sa *Ceyear4051) MeasureTrace() (TraceData, error) {
	powers, err := sa.Measure()
	if err != nil {
		return TraceData{Trace: 1}, err
	}
	return sa.traceData(1, powers), nil
}

func (sa *Ceyear4051) traceData(traceNum int, powers []float64) TraceData {
	return TraceData{
		Trace:          traceNum,
		Timestamp:      sa.now(),
		Settings:       sa.settings,
		FrequenciesGHz: frequencyAxis(sa.settings.CenterGHz, sa.settings.SpanMHz, len(powers)),
		PowersDBm:      powers,
	}
}

// Сохранить трассу в CSV файл destination. Возвращает destination.
func (sa *Ceyear4051) SaveTraceData(destination string, traceNum int, includeHeader bool) (string, error) {
	data, err := sa.ReadTrace(traceNum)
	if err != nil {
		return "", err
	}

	f, err := createTraceFile(destination)
	if err != nil {
		return "", errors.Wrapf(err, "trace file \"%s\" create fail", destination)
	}
	if err := WriteTrace(f, data, includeHeader); err != nil {
		f.Close()
		os.Remove(destination)
		return "", errors.Wrapf(err, "trace file \"%s\" write fail", destination)
	}
	if err := f.Close(); err != nil {
		os.Remove(destination)
		return "", errors.Wrapf(err, "trace file \"%s\" close fail", destination)
	}
	return destination, nil
}

var createTraceFile = func(name string) (io.WriteCloser, error) { return os.Create(name) }

// WriteTrace renders data as CSV: an optional #-prefixed metadata block, the
// column header and one frequency/power row per sample.
func WriteTrace(w io.Writer, data TraceData, includeHeader bool) error {
	if includeHeader {
		s := data.Settings
		header := []struct {
			name, value string
		}{
			{"Timestamp", data.Timestamp.Format(time.RFC3339)},
			{"Center Frequency", formatDecimal(s.CenterGHz) + " GHz"},
			{"Span", formatDecimal(s.SpanMHz) + " MHz"},
			{"RBW", formatDecimal(s.RBWHz) + " Hz"},
			{"VBW", formatDecimal(s.VBWHz) + " Hz"},
			{"Reference Level", formatDecimal(s.RefLevelDBm) + " dBm"},
			{"Detector", string(s.Detector)},
			{"Trace Mode", string(s.TraceMode)},
			{"Points", strconv.Itoa(len(data.PowersDBm))},
		}
		for _, line := range header {
			if _, err := fmt.Fprintf(w, "# %s: %s\n", line.name, line.value); err != nil {
				return err
			}
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Frequency (GHz)", "Power (dBm)"}); err != nil {
		return err
	}
	for i, power := range data.PowersDBm {
		var freq float64
		if i < len(data.FrequenciesGHz) {
			freq = data.FrequenciesGHz[i]
		}
		row := []string{
			formatDecimal(freq),
			formatDecimal(power),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// frequencyAxis spreads n points linearly over center ± span/2000 GHz
// (span is in MHz).
func frequencyAxis(centerGHz, spanMHz float64, n int) []float64 {
	axis := make([]float64, n)
	if n == 0 {
		return axis
	}
	start := centerGHz - spanMHz/2000
	stop := centerGHz + spanMHz/2000
	if n == 1 {
		axis[0] = start
		return axis
	}
	step := (stop - start) / float64(n-1)
	for i := range axis {
		axis[i] = start + float64(i)*step
	}
	axis[n-1] = stop
	return axis
}

func formatDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
