//go:build integration

package mqtt

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// Broker-dependent behaviour that needs real message delivery. Requires
// Mosquitto at 127.0.0.1:1883:
//
//	go test -tags=integration -count=1 -v ./internal/infrastructure/mqtt/...

// A panicking handler must not kill message delivery for the client, and
// the panic must reach the logger.
func TestIntegration_HandlerPanicIsolated(t *testing.T) {
	client := connectTest(t, "hearth-int-panic")

	logger := &captureLogger{}
	client.SetLogger(logger)

	panicTopic := "hearth/int/panics"
	goodTopic := "hearth/int/survives"
	delivered := make(chan struct{}, 1)

	err := client.Subscribe(panicTopic, 1, func(string, []byte) error {
		panic("handler blew up")
	})
	if err != nil {
		t.Fatalf("Subscribe(panic) error = %v", err)
	}
	err = client.Subscribe(goodTopic, 1, func(string, []byte) error {
		delivered <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe(good) error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := client.PublishString(panicTopic, "boom", 1, false); err != nil {
		t.Fatalf("Publish(panic) error = %v", err)
	}
	if err := client.PublishString(goodTopic, "still here", 1, false); err != nil {
		t.Fatalf("Publish(good) error = %v", err)
	}

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery stopped after handler panic")
	}

	deadline := time.After(2 * time.Second)
	for logger.errorCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("recovered panic never reached the logger")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// Handler errors are warnings, not failures; delivery continues.
func TestIntegration_HandlerErrorLogged(t *testing.T) {
	client := connectTest(t, "hearth-int-handler-warn")

	logger := &captureLogger{}
	client.SetLogger(logger)

	topic := "hearth/int/errors"
	if err := client.Subscribe(topic, 1, func(string, []byte) error {
		return errTestHandler
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := client.PublishString(topic, "x", 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	deadline := time.After(2 * time.Second)
	for logger.warnCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("handler error never reached the logger")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestIntegration_SetLoggerRoundTrip(t *testing.T) {
	client := connectTest(t, "hearth-int-logger")

	logger := &captureLogger{}
	client.SetLogger(logger)
	if client.getLogger() == nil {
		t.Error("getLogger() = nil after SetLogger()")
	}

	client.SetLogger(nil)
	if client.getLogger() != nil {
		t.Error("getLogger() != nil after SetLogger(nil)")
	}
}

var errTestHandler = errors.New("handler rejected message")

// captureLogger counts Error and Warn calls.
type captureLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *captureLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *captureLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *captureLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

func (l *captureLogger) warnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warns)
}
