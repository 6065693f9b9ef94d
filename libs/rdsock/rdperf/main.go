package main

import (
	"flag"
	"log"
	"net"
	"time"

	"github.com/google/gops/agent"

	"github.com/halfmoon-net/rondo/libs/rdsock"
)

func main() {
	if err := agent.Listen(agent.Options{}); err != nil {
		log.Fatal(err)
	}

	var flagListen string
	var flagPeer string
	var flagSend bool
	var flagSize int
	var flagCount int
	flag.StringVar(&flagListen, "listen", ":0", "local UDP address")
	flag.StringVar(&flagPeer, "peer", "", "peer UDP address")
	flag.BoolVar(&flagSend, "send", false, "act as the sender")
	flag.IntVar(&flagSize, "size", 4000, "reliable message size")
	flag.IntVar(&flagCount, "count", 100, "number of messages to send")
	flag.Parse()
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
	if err := <-connected; err != nil {
		log.Fatalln("rendezvous failed:", err)
	}
	log.Println("connected to", sock.RemoteEndpoint())

	if flagSend {
		mainSender(sock, flagSize, flagCount)
	} else {
		mainReceiver(sock)
	}
}

func mainSender(sock *rdsock.Socket, size, count int) {
	payload := make([]byte, size)
	start := time.Now()
	for i := 0; i < count; i++ {
		if err := sock.SendReliable(payload); err != nil {
			log.Fatalln("send failed:", err)
		}
	}
	done := make(chan struct{})
	sock.Flush(func() { close(done) })
	<-done
	elapsed := time.Since(start)
	total := size * count
	log.Printf("sent %v bytes in %v (%v KB/s)", total, elapsed,
		int(float64(total)/1000/elapsed.Seconds()))
	sock.Close()
}

func mainReceiver(sock *rdsock.Socket) {
	var total int
	start := time.Now()
	var onReliable rdsock.OnReceive
	onReliable = func(err error, p []byte) {
		if err != nil {
			log.Fatalln("session died:", err)
		}
		total += len(p)
		log.Printf("received %v bytes so far (%v KB/s)", total,
			int(float64(total)/1000/time.Since(start).Seconds()))
		sock.ReceiveReliable(onReliable)
	}
	sock.ReceiveReliable(onReliable)
	for {
		time.Sleep(time.Hour)
	}
}
