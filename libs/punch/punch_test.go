package punch

import (
	"net"
	"testing"
	"time"
)

func udpSock(t *testing.T) net.PacketConn {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	return pc
}

func TestPunchBothSides(t *testing.T) {
	pc1 := udpSock(t)
	defer pc1.Close()
	pc2 := udpSock(t)
	defer pc2.Close()

	type result struct {
		from net.Addr
		err  error
	}
	r1 := make(chan result, 1)
	r2 := make(chan result, 1)
	go func() {
		from, err := Punch(pc1, pc2.LocalAddr(), []byte("probe-1"), Config{Timeout: 5 * time.Second})
		r1 <- result{from, err}
	}()
	go func() {
		from, err := Punch(pc2, pc1.LocalAddr(), []byte("probe-2"), Config{Timeout: 5 * time.Second})
		r2 <- result{from, err}
	}()

	a := <-r1
	b := <-r2
	if a.err != nil || b.err != nil {
		t.Fatalf("punch failed: %v / %v", a.err, b.err)
	}
	if a.from.String() != pc2.LocalAddr().String() {
		t.Fatalf("side 1 saw %v, want %v", a.from, pc2.LocalAddr())
	}
	if b.from.String() != pc1.LocalAddr().String() {
		t.Fatalf("side 2 saw %v, want %v", b.from, pc1.LocalAddr())
	}
}

func TestPunchTimeout(t *testing.T) {
	pc := udpSock(t)
	defer pc.Close()
	// A live socket that never probes back.
	silent := udpSock(t)
	defer silent.Close()

	start := time.Now()
	_, err := Punch(pc, silent.LocalAddr(), []byte("probe"), Config{
		Timeout:       300 * time.Millisecond,
		ProbeInterval: 50 * time.Millisecond,
	})
	if err != ErrTimeout {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("timeout fired far too late")
	}
}

func TestPunchIgnoresStrangers(t *testing.T) {
	pc := udpSock(t)
	defer pc.Close()
	peer := udpSock(t)
	defer peer.Close()
	stranger := udpSock(t)
	defer stranger.Close()

	done := make(chan net.Addr, 1)
	go func() {
		from, err := Punch(pc, peer.LocalAddr(), []byte("probe"), Config{Timeout: 5 * time.Second})
		if err != nil {
			t.Error(err)
			done <- nil
			return
		}
		done <- from
	}()

	// Noise from the wrong source first, then the real peer.
	stranger.WriteTo([]byte("noise"), pc.LocalAddr())
	time.Sleep(100 * time.Millisecond)
	peer.WriteTo([]byte("probe"), pc.LocalAddr())

	from := <-done
	if from == nil {
		return
	}
	if from.String() != peer.LocalAddr().String() {
		t.Fatalf("punch accepted %v, want %v", from, peer.LocalAddr())
	}
}
