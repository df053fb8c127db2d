package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/bndr/gotabulate"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/dex-sp/instruments"
	"github.com/dex-sp/instruments/internal/storage"
)

var sweepOptions = map[string]string{
	"--center":     "Center frequency in GHz.",
	"--span":       "Span in MHz.",
	"--points":     "Sweep points.",
	"--ref":        "Reference level in dBm.",
	"--atten":      "Input attenuation in dB.",
	"--rbw":        "Resolution bandwidth in Hz.",
	"--vbw":        "Video bandwidth in Hz.",
	"--auto-bw":    "Let the analyzer choose RBW and VBW.",
	"--detector":   "Detector (NORMAL, POSITIVE, NEGATIVE, SAMPLE, AVERAGE, RMS).",
	"--trace-mode": "Mode of trace 1 (WRITE, MAXHOLD, MINHOLD, VIEW, BLANK, AVERAGE).",
	"--unit":       "Amplitude unit (DBM, DBMV, DBUV, V, W...).",
	"--trigger":    "Trigger source (IMMEDIATE, VIDEO, EXTERNAL1...).",
}

func mergeOptions(maps ...map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			merged[k] = v
		}
	}
	return merged
}

type sweepFlags struct {
	set *pflag.FlagSet

	center, span, ref, rbw, vbw float64
	points, atten               int
	autoBW                      bool
	detector, traceMode         string
	unit, trigger               string
}

func addSweepFlags(set *pflag.FlagSet) *sweepFlags {
	f := &sweepFlags{set: set}
	set.Float64Var(&f.center, "center", 0, "")
	set.Float64Var(&f.span, "span", instruments.DefaultSpanMHz, "")
	set.IntVar(&f.points, "points", instruments.DefaultPoints, "")
	set.Float64Var(&f.ref, "ref", 0, "")
	set.IntVar(&f.atten, "atten", 0, "")
	set.Float64Var(&f.rbw, "rbw", 0, "")
	set.Float64Var(&f.vbw, "vbw", 0, "")
	set.BoolVar(&f.autoBW, "auto-bw", false, "")
	set.StringVar(&f.detector, "detector", "", "")
	set.StringVar(&f.traceMode, "trace-mode", "", "")
	set.StringVar(&f.unit, "unit", "", "")
	set.StringVar(&f.trigger, "trigger", "", "")
	return f
}

// apply sends only the settings given on the command line.
func (f *sweepFlags) apply(sa *instruments.Ceyear4051) error {
	changed := f.set.Changed
	current := sa.Settings()

	if changed("center") || changed("span") {
		center, span := current.CenterGHz, current.SpanMHz
		if changed("center") {
			center = f.center
		}
		if changed("span") || span == 0 {
			span = f.span
		}
		if err := sa.SetFrequency(center, span); err != nil {
			return err
		}
	}
	if changed("points") {
		if err := sa.SetSweep(instruments.DefaultSweepType, f.points); err != nil {
			return err
		}
	}
	if changed("ref") {
		if err := sa.SetReferenceLevel(f.ref); err != nil {
			return err
		}
	}
	if changed("atten") {
		if err := sa.SetAttenuation(f.atten, false); err != nil {
			return err
		}
	}
	if f.autoBW || changed("rbw") || changed("vbw") {
		if err := sa.SetBandwidth(f.rbw, f.vbw, f.autoBW); err != nil {
			return err
		}
	}
	if changed("detector") {
		detector, err := instruments.ParseDetector(f.detector)
		if err != nil {
			return err
		}
		if err := sa.SetDetector(detector); err != nil {
			return err
		}
	}
	if changed("trace-mode") {
		mode, err := instruments.ParseTraceMode(f.traceMode)
		if err != nil {
			return err
		}
		if err := sa.SetTraceMode(mode, 1); err != nil {
			return err
		}
	}
	if changed("unit") {
		unit, err := instruments.ParseUnit(f.unit)
		if err != nil {
			return err
		}
		if err := sa.SetUnit(unit); err != nil {
			return err
		}
	}
	if changed("trigger") {
		source, err := instruments.ParseTriggerSource(f.trigger)
		if err != nil {
			return err
		}
		if err := sa.SetTrigger(source); err != nil {
			return err
		}
	}
	return nil
}

func idnHandle(args []string) error {
	writeInfo(out, analyzer.Address(), analyzer.Info())
	return nil
}

func measureHandle(args []string) error {
	set := pflag.NewFlagSet("measure", pflag.ExitOnError)
	sweep := addSweepFlags(set)
	format := set.String("format", "table", "")
	repeat := set.Int("repeat", 1, "")
	interval := set.Duration("interval", time.Second, "")
	set.Parse(args)

	if *format != "table" && *format != "csv" {
		return fmt.Errorf("unknown output format \"%s\"", *format)
	}
	if err := sweep.apply(analyzer); err != nil {
		return err
	}

	ctx, cancel := interruptContext()
	defer cancel()

	for i := 0; *repeat == 0 || i < *repeat; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(*interval):
			}
		}

		data, err := analyzer.MeasureTrace()
		if err != nil {
			return err
		}
		if *format == "csv" {
			err = instruments.WriteTrace(out, data, true)
		} else {
			writeTraceTable(out, data)
		}
		if err != nil {
			return err
		}
		publish(ctx, storage.TraceRecord(analyzer.Address(), data))
	}
	return nil
}

func shotHandle(args []string) error {
	set := pflag.NewFlagSet("shot", pflag.ExitOnError)
	sweep := addSweepFlags(set)
	count := set.Int("count", 1, "")
	freq := set.Float64("freq", 0, "")
	set.Parse(args)

	if err := sweep.apply(analyzer); err != nil {
		return err
	}
	readings, err := analyzer.Shot(*count, *freq)
	if err != nil {
		return err
	}

	at := *freq
	if at == 0 {
		at = analyzer.Settings().CenterGHz
	}
	writeShots(out, at, readings)
	publish(context.Background(), storage.ShotRecord(analyzer.Address(), time.Now(), at, readings))
	return nil
}

func markerHandle(args []string) error {
	set := pflag.NewFlagSet("marker", pflag.ExitOnError)
	freq := set.Float64("freq", 0, "")
	trace := set.Int("trace", 1, "")
	set.Parse(args)

	if set.NArg() != 1 {
		return errors.New("marker: exactly one marker number expected")
	}
	marker, err := strconv.Atoi(set.Arg(0))
	if err != nil {
		return fmt.Errorf("marker: %w", err)
	}

	if err := analyzer.SetMarker(marker, *freq, *trace); err != nil {
		return err
	}
	reading, err := analyzer.GetMarkerData(marker)
	if err != nil {
		return err
	}
	readings := []instruments.MarkerReading{reading}
	writeMarkers(out, readings)
	publish(context.Background(), storage.MarkerRecord(analyzer.Address(), time.Now(), readings))
	return nil
}

func markersHandle(args []string) error {
	if len(args) == 0 {
		return errors.New("markers: no marker numbers given")
	}
	markers := make([]int, 0, len(args))
	for _, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("markers: %w", err)
		}
		markers = append(markers, n)
	}

	readings, err := analyzer.ReadMarkers(markers...)
	if err != nil {
		return err
	}
	writeMarkers(out, readings)
	publish(context.Background(), storage.MarkerRecord(analyzer.Address(), time.Now(), readings))
	return nil
}

func saveHandle(args []string) error {
	set := pflag.NewFlagSet("save", pflag.ExitOnError)
	trace := set.Int("trace", 1, "")
	noHeader := set.Bool("no-header", false, "")
	set.Parse(args)

	if set.NArg() != 1 {
		return errors.New("save: destination file expected")
	}
	dest, err := analyzer.SaveTraceData(set.Arg(0), *trace, !*noHeader)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Trace %d saved to %s\n", *trace, dest)
	return nil
}

func errorsHandle(args []string) error {
	hadError, err := analyzer.CheckError()
	if err != nil {
		return err
	}
	if hadError {
		return errors.New("instrument reported an error, see log")
	}
	fmt.Fprintln(out, "No error")
	return nil
}

func configHandle(args []string) error {
	enc := yaml.NewEncoder(out)
	defer enc.Close()
	return enc.Encode(cfg)
}

func versionHandle(args []string) error {
	fmt.Fprintf(out, "ceyear4051 v%s (Build: %s)\n", Version, BuildTime)
	return nil
}

func helpHandle(args []string) {
	var arg string
	if len(args) > 0 {
		arg = args[0]
	}
	var cmd *Command
	for _, c := range commands {
		if c.Str == arg {
			cmd = &c
			break
		}
	}
	if arg == "" || cmd == nil {
		pflag.Usage()
		return
	}
	cmd.PrintUsage()
}

func publish(ctx context.Context, record *storage.Record) {
	if queue == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := queue.Publish(ctx, record); err != nil {
		log.Warnf("Publish %s: %s", record.Kind, err)
	}
}

func writeInfo(w io.Writer, addr instruments.Address, info map[string]string) {
	rows := [][]string{{"Address", addr.String()}}
	for _, key := range []string{"Manufacturer", "Model", "Serial", "Version"} {
		rows = append(rows, []string{key, info[key]})
	}
	t := gotabulate.Create(rows)
	t.SetHeaders([]string{"Field", "Value"})
	t.SetAlign("left")
	fmt.Fprintln(w, t.Render("simple"))
}

func writeTraceTable(w io.Writer, data instruments.TraceData) {
	rows := make([][]string, len(data.PowersDBm))
	for i, power := range data.PowersDBm {
		rows[i] = []string{
			fmt.Sprintf("%4d", i),
			strconv.FormatFloat(data.FrequenciesGHz[i], 'f', 6, 64),
			strconv.FormatFloat(power, 'f', 2, 64),
		}
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, "Empty trace")
		return
	}
	t := gotabulate.Create(rows)
	t.SetHeaders([]string{"i", "Frequency (GHz)", "Power (dBm)"})
	t.SetAlign("right")
	fmt.Fprintln(w, t.Render("simple"))
}

func writeShots(w io.Writer, freqGHz float64, readings []float64) {
	if len(readings) == 0 {
		fmt.Fprintln(w, "No readings")
		return
	}
	rows := make([][]string, len(readings))
	for i, r := range readings {
		rows[i] = []string{
			strconv.Itoa(i + 1),
			strconv.FormatFloat(freqGHz, 'f', -1, 64),
			strconv.FormatFloat(r, 'f', 2, 64),
		}
	}
	t := gotabulate.Create(rows)
	t.SetHeaders([]string{"#", "Frequency (GHz)", "Power (dBm)"})
	t.SetAlign("right")
	fmt.Fprintln(w, t.Render("simple"))
}

func writeMarkers(w io.Writer, readings []instruments.MarkerReading) {
	rows := make([][]string, len(readings))
	for i, m := range readings {
		rows[i] = []string{
			strconv.Itoa(m.Marker),
			strconv.FormatFloat(m.FrequencyGHz, 'f', -1, 64),
			strconv.FormatFloat(m.AmplitudeDBm, 'f', 2, 64),
		}
	}
	t := gotabulate.Create(rows)
	t.SetHeaders([]string{"Marker", "Frequency (GHz)", "Power (dBm)"})
	t.SetAlign("right")
	fmt.Fprintln(w, t.Render("simple"))
}
