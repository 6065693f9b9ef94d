package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/vharitonsky/iniflags"

	"github.com/halfmoon-net/rondo/libs/rdsock"

	log "github.com/sirupsen/logrus"
)

var (
	flagListen     string
	flagPeer       string
	flagUnreliable bool
)

func main() {
	flag.StringVar(&flagListen, "listen", ":0", "local UDP address")
	flag.StringVar(&flagPeer, "peer", "", "peer UDP address to rendezvous with")
	flag.BoolVar(&flagUnreliable, "unreliable", false, "send lines on the unreliable stream")
	iniflags.Parse()
	if flagPeer == "" {
		log.Fatal("must give -peer")
	}

	pc, err := net.ListenPacket("udp", flagListen)
	if err != nil {
		log.Fatal(err)
	}
	remote, err := net.ResolveUDPAddr("udp", flagPeer)
	if err != nil {
		log.Fatal(err)
	}

	sock := rdsock.NewSocket(pc)
	connected := make(chan error, 1)
	sock.RendezvousConnect(remote, func(err error) { connected <- err })
	log.Infoln("punching toward", remote, "from", sock.LocalEndpoint())
	if err := <-connected; err != nil {
		log.Fatalln("rendezvous failed:", err)
	}
	log.Infoln("connected to", sock.RemoteEndpoint())

	// Receivers are single-shot; each delivery re-registers.
	var onReliable, onUnreliable rdsock.OnReceive
	onReliable = func(err error, p []byte) {
		if err != nil {
			log.Fatalln("session died:", err)
		}
		fmt.Printf("< %s\n", p)
		sock.ReceiveReliable(onReliable)
	}
	onUnreliable = func(err error, p []byte) {
		if err != nil {
			log.Fatalln("session died:", err)
		}
		fmt.Printf("<? %s\n", p)
		sock.ReceiveUnreliable(onUnreliable)
	}
	sock.ReceiveReliable(onReliable)
	sock.ReceiveUnreliable(onUnreliable)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		if flagUnreliable {
			err = sock.SendUnreliable(line)
		} else {
			err = sock.SendReliable(line)
		}
		if err != nil {
			log.Fatalln("send failed:", err)
		}
	}

	done := make(chan struct{})
	sock.Flush(func() { close(done) })
	<-done
	sock.Close()
}
