package gramsock

import (
	"fmt"
	"testing"
	"time"

	"github.com/webee/gramsock/message"
	"github.com/webee/gramsock/options"
	_ "github.com/webee/gramsock/transport/inproc"
)

// test message types
const (
	typeHello message.TypeId = iota + 1
	typeText
	typePing
)

type (
	helloMsg struct {
		Name string
	}

	textMsg struct {
		Body string
	}

	pingMsg struct {
		N int
	}
)

func newTestOracle(t *testing.T) *message.Registry {
	t.Helper()
	r := message.NewRegistry()
	for _, reg := range []struct {
		id      message.TypeId
		factory func() message.Message
	}{
		{typeHello, func() message.Message { return new(helloMsg) }},
		{typeText, func() message.Message { return new(textMsg) }},
		{typePing, func() message.Message { return new(pingMsg) }},
	} {
		if err := r.RegisterJSON(reg.id, reg.factory); err != nil {
			t.Fatalf("register type %d: %s", reg.id, err)
		}
	}
	return r
}

// fastOptions shrink the retry timers so reliability scenarios settle in
// milliseconds.
func fastOptions() options.OptionValues {
	return options.OptionValues{
		Options.MinRetryInterval: 20 * time.Millisecond,
		Options.MaxRetryInterval: 60 * time.Millisecond,
		Options.RetryStep:        20 * time.Millisecond,
	}
}

var addrSeq int

// testAddr yields a unique inproc address per call.
func testAddr(name string) string {
	addrSeq++
	return fmt.Sprintf("inproc://%s.%d", name, addrSeq)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}
