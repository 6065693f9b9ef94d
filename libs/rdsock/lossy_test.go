package rdsock

import (
	"bytes"
	"testing"
	"time"

	"github.com/xtaci/lossyconn"
)

// TestReliableOverLossyLink runs the handshake and a fragmented reliable
// transfer over an in-memory link that drops and delays packets. The
// resend-until-acked loop must hide the loss completely.
func TestReliableOverLossyLink(t *testing.T) {
	left, err := lossyconn.NewLossyConn(0.1, 5)
	if err != nil {
		t.Fatal(err)
	}
	right, err := lossyconn.NewLossyConn(0.1, 5)
	if err != nil {
		t.Fatal(err)
	}

	a := NewSocketWithRemote(left, right.LocalAddr())
	b := NewSocketWithRemote(right, left.LocalAddr())
	defer a.Close()
	defer b.Close()

	ca := make(chan error, 1)
	cb := make(chan error, 1)
	a.Connect(func(err error) { ca <- err })
	b.Connect(func(err error) { cb <- err })
	if err := <-ca; err != nil {
		t.Fatal(err)
	}
	if err := <-cb; err != nil {
		t.Fatal(err)
	}

	payload := make([]byte, 3000)
	for i := range payload {
		payload[i] = byte(i * 13)
	}

	got := make(chan []byte, 1)
	errs := make(chan error, 1)
	b.ReceiveReliable(func(err error, p []byte) {
		if err != nil {
			errs <- err
			return
		}
		got <- append([]byte(nil), p...)
	})
	if err := a.SendReliable(payload); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-got:
		if !bytes.Equal(p, payload) {
			t.Fatal("payload corrupted crossing the lossy link")
		}
	case err := <-errs:
		t.Fatal("session died:", err)
	case <-time.After(60 * time.Second):
		t.Fatal("message never made it across the lossy link")
	}
}
