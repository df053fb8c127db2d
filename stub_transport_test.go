package instruments

import (
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

const testIDN = "Ceyear,4051B,SN123,1.0"

type stubEvent struct {
	kind string // "send" or "query"
	cmd  string
}

// stubTransport answers queries from per-command reply queues, falling back
// to fixed defaults, and records everything it is asked to do.
type stubTransport struct {
	replies  map[string][]string
	defaults map[string]string
	failOn   map[string]error
	events   []stubEvent
	closed   int
}

func newStubTransport() *stubTransport {
	return &stubTransport{
		replies: make(map[string][]string),
		defaults: map[string]string{
			"*IDN?":      testIDN,
			":SYST:ERR?": "+0,\"No error\"",
			"*OPC?":      "1",
		},
		failOn: make(map[string]error),
	}
}

func (s *stubTransport) reply(cmd string, replies ...string) *stubTransport {
	s.replies[cmd] = append(s.replies[cmd], replies...)
	return s
}

func (s *stubTransport) Send(cmd string) error {
	s.events = append(s.events, stubEvent{"send", cmd})
	return s.failOn[cmd]
}

func (s *stubTransport) Query(cmd string) (string, error) {
	s.events = append(s.events, stubEvent{"query", cmd})
	if err := s.failOn[cmd]; err != nil {
		return "", err
	}
	if queue := s.replies[cmd]; len(queue) > 0 {
		s.replies[cmd] = queue[1:]
		return queue[0] + "\n", nil
	}
	if reply, ok := s.defaults[cmd]; ok {
		return reply + "\n", nil
	}
	return "", fmt.Errorf("no reply scripted for \"%s\"", cmd)
}

func (s *stubTransport) Close() error {
	s.closed++
	return nil
}

func (s *stubTransport) filter(kind string) []string {
	var cmds []string
	for _, e := range s.events {
		if e.kind == kind {
			cmds = append(cmds, e.cmd)
		}
	}
	return cmds
}

func (s *stubTransport) sends() []string   { return s.filter("send") }
func (s *stubTransport) queries() []string { return s.filter("query") }
func (s *stubTransport) clearEvents()      { s.events = nil }

func (s *stubTransport) dialer() Dialer {
	return DialerFunc(func(Address) (Transport, error) { return s, nil })
}

// openStub opens a session on stub and forgets the construction traffic.
func openStub(t *testing.T, stub *stubTransport, opts ...Option) (*Ceyear4051, *test.Hook) {
	t.Helper()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	opts = append([]Option{WithSettleDelay(0), WithLogger(log)}, opts...)

	sa, err := OpenCeyear4051(stub.dialer(), "GPIB0::18::INSTR", opts...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	stub.clearEvents()
	hook.Reset()
	return sa, hook
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func warnings(hook *test.Hook) []string {
	var msgs []string
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			msgs = append(msgs, e.Message)
		}
	}
	return msgs
}
