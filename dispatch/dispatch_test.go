package dispatch

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/unixfreak0037/freeciv-agent/schema"
)

func newTestDispatcher() *Dispatcher {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel) // keep test output quiet
	return New(logger)
}

func TestDispatchInvokesRegisteredHandler(t *testing.T) {
	d := newTestDispatcher()
	var got schema.DecodedRecord
	d.Register(29, func(rec schema.DecodedRecord) error {
		got = rec
		return nil
	})

	rec := schema.DecodedRecord{"message": "hi"}
	if failed := d.Dispatch(29, rec); failed {
		t.Fatalf("Dispatch reported failure for a succeeding handler")
	}
	if got["message"] != "hi" {
		t.Fatalf("handler did not receive the record")
	}
}

func TestDispatchUnregisteredTypeIsNonFatal(t *testing.T) {
	d := newTestDispatcher()
	if failed := d.Dispatch(999, schema.DecodedRecord{}); failed {
		t.Fatalf("Dispatch on unregistered type reported failure")
	}
}

func TestDispatchHandlerErrorIsReportedNotPropagated(t *testing.T) {
	d := newTestDispatcher()
	d.Register(1, func(rec schema.DecodedRecord) error {
		return errors.New("boom")
	})

	failed := d.Dispatch(1, schema.DecodedRecord{})
	if !failed {
		t.Fatalf("expected Dispatch to report the handler's failure")
	}
}

func TestDispatchRecoversHandlerPanic(t *testing.T) {
	d := newTestDispatcher()
	d.Register(1, func(rec schema.DecodedRecord) error {
		panic("handler exploded")
	})

	failed := d.Dispatch(1, schema.DecodedRecord{})
	if !failed {
		t.Fatalf("expected Dispatch to report the handler's panic as a failure")
	}

	// The dispatcher itself must still be usable afterwards.
	var ranAgain bool
	d.Register(2, func(rec schema.DecodedRecord) error {
		ranAgain = true
		return nil
	})
	d.Dispatch(2, schema.DecodedRecord{})
	if !ranAgain {
		t.Fatalf("dispatcher did not survive a prior handler panic")
	}
}

func TestRegisterReplacesPriorHandler(t *testing.T) {
	d := newTestDispatcher()
	calls := 0
	d.Register(1, func(rec schema.DecodedRecord) error {
		calls = 1
		return nil
	})
	d.Register(1, func(rec schema.DecodedRecord) error {
		calls = 2
		return nil
	})
	d.Dispatch(1, schema.DecodedRecord{})
	if calls != 2 {
		t.Fatalf("calls = %d, want 2 (second registration should win)", calls)
	}
}
