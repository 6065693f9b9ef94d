// Package punch implements UDP hole punching for a single endpoint pair.
// Both sides repeatedly fire a probe datagram at the other's advertised
// address; as soon as a packet from the remote makes it through both NATs,
// the hole is open and the socket can be handed to a real protocol.
package punch

import (
	"context"
	"log"
	"net"
	"os"
	"time"

	pool "github.com/libp2p/go-buffer-pool"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
	tomb "gopkg.in/tomb.v1"
)

var doLogging = false

func init() {
	doLogging = os.Getenv("PUNCHLOG") != ""
}

// ErrTimeout means no packet arrived from the remote before the deadline.
var ErrTimeout = errors.New("punch: no packet from remote before deadline")

// Config tunes a punch attempt. The zero value uses the defaults.
type Config struct {
	// Timeout bounds the whole attempt. Default 20s.
	Timeout time.Duration
	// ProbeInterval is the pace of outgoing probes. Default 200ms.
	ProbeInterval time.Duration
}

// Punch sends probe to remote over pc until a datagram arrives from the
// remote, and returns the observed source address of that datagram. The
// datagram itself is consumed; protocols layered on top must tolerate losing
// it (a probe that doubles as a handshake message has to be retransmitted
// anyway). Packets from other sources are ignored.
func Punch(pc net.PacketConn, remote net.Addr, probe []byte, cfg Config) (net.Addr, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.ProbeInterval == 0 {
		cfg.ProbeInterval = 200 * time.Millisecond
	}

	death := new(tomb.Tomb)
	defer death.Kill(nil)
	lim := rate.NewLimiter(rate.Every(cfg.ProbeInterval), 1)
	// The prober keeps firing for up to one interval after we return, so it
	// works on its own copy of the probe.
	probeCopy := pool.Get(len(probe))
	copy(probeCopy, probe)
	go func() {
		defer pool.Put(probeCopy)
		for {
			if err := lim.Wait(context.Background()); err != nil {
				return
			}
			if _, err := pc.WriteTo(probeCopy, remote); err != nil {
				if doLogging {
					log.Println("punch: probe send failed:", err)
				}
				return
			}
			select {
			case <-death.Dying():
				return
			default:
			}
		}
	}()

	pc.SetReadDeadline(time.Now().Add(cfg.Timeout))
	defer pc.SetReadDeadline(time.Time{})

	buf := pool.Get(2048)
	defer pool.Put(buf)
	for {
		_, from, err := pc.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil, ErrTimeout
			}
			return nil, errors.Wrap(err, "punch: read")
		}
		if from.String() == remote.String() {
			if doLogging {
				log.Println("punch: hole open, remote is", from)
			}
			return from, nil
		}
		if doLogging {
			log.Println("punch: ignoring packet from", from)
		}
	}
}
