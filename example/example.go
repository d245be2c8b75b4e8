// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Command example is a minimal external-collaborator demo: it dials an
// AMF over SCTP and brings up a kernel-backed GTP-U tunnel via go-gtp,
// exercising the same transport dependencies cmd/gnbdu does, independent
// of any NGAP/NAS message encoding (spec.md §1 puts that signalling
// layer out of this repository's scope).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/ishidawataru/sctp"
	"github.com/vishvananda/netlink"
	"github.com/wmnsk/go-gtp/gtpv1"
)

type testSession struct {
	conn *sctp.SCTPConn
	info *sctp.SndRcvInfo
	gtpu *gtpv1.UPlaneConn
}

func setupSCTP() (conn *sctp.SCTPConn, info *sctp.SndRcvInfo) {
	var ip = flag.String("ip", "localhost", "destination ip address")
	var port = flag.Int("port", 38412, "destination port")
	var lport = flag.Int("lport", 38412, "local port")

	flag.Parse()

	ips := []net.IPAddr{}
	for _, i := range strings.Split(*ip, ",") {
		a, _ := net.ResolveIPAddr("ip", i)
		ips = append(ips, *a)
	}

	addr := &sctp.SCTPAddr{
		IPAddrs: ips,
		Port:    *port,
	}

	var laddr *sctp.SCTPAddr
	if *lport != 0 {
		laddr = &sctp.SCTPAddr{Port: *lport}
	}

	conn, err := sctp.DialSCTP("sctp", laddr, addr)
	if err != nil {
		log.Fatalf("failed to dial: %v", err)
	}
	log.Printf("dial localAddr: %s; remoteAddr: %s", conn.LocalAddr(), conn.RemoteAddr())

	info = &sctp.SndRcvInfo{
		Stream: 0,
		PPID:   0x3c000000, // NGAP
	}
	conn.SubscribeEvents(sctp.SCTP_EVENT_DATA_IO)
	return
}

func (t *testSession) sendtoAMF(pdu []byte) {
	n, err := t.conn.SCTPWrite(pdu, t.info)
	if err != nil {
		log.Fatalf("failed to write: %v", err)
	}
	log.Printf("write: len %d, info: %+v", n, t.info)
}

func (t *testSession) recvfromAMF(timeout time.Duration) {
	const defaultTimer = 10 // sec
	if timeout == 0 {
		timeout = defaultTimer
	}

	c := make(chan bool, 1)
	go func() {
		buf := make([]byte, 1500)
		n, info, err := t.conn.SCTPRead(buf)
		t.info = info
		if err != nil {
			log.Fatalf("failed to read: %v", err)
		}
		log.Printf("read: len %d, info: %+v, dump: %x", n, t.info, buf[:n])
		c <- true
	}()
	select {
	case <-c:
	case <-time.After(timeout * time.Second):
		log.Printf("read: timeout")
	}
}

func initRAN() (t *testSession) {
	t = new(testSession)
	t.conn, t.info = setupSCTP()

	// a real NG Setup Request would be NGAP/PER-encoded here; this demo
	// only exercises the SCTP association, not the signalling layer.
	t.sendtoAMF([]byte("example-ng-setup-stub"))
	t.recvfromAMF(0)
	return
}

// setupN3Tunnel brings up a kernel-backed GTP-U tunnel toward a peer
// UPF/gNB for a single demo UE PDU session, using go-gtp's UPlaneConn
// rather than a hand-rolled encap/decap loop.
func (t *testSession) setupN3Tunnel(ctx context.Context, ifName string, localAddr, peerAddr, ueAddr net.IP, peerTEID, localTEID uint32) error {
	laddr := &net.UDPAddr{IP: localAddr}
	fmt.Printf("gtp-u local address: %v\n", laddr)

	uConn := gtpv1.NewUPlaneConn(laddr)
	t.gtpu = uConn

	if err := uConn.EnableKernelGTP(ifName, gtpv1.RoleSGSN); err != nil {
		return fmt.Errorf("failed to EnableKernelGTP: %w", err)
	}

	go func() {
		if err := uConn.ListenAndServe(ctx); err != nil {
			log.Println(err)
		}
	}()

	if err := uConn.AddTunnelOverride(peerAddr, ueAddr, peerTEID, localTEID); err != nil {
		return err
	}

	if err := addRoute2(uConn); err != nil {
		return fmt.Errorf("failed to addRoute2: %w", err)
	}
	if err := addIP(ifName, ueAddr, 28); err != nil {
		return fmt.Errorf("failed to addIP: %w", err)
	}
	if err := addRuleLocal(ueAddr); err != nil {
		return fmt.Errorf("failed to addRuleLocal: %w", err)
	}
	return nil
}

func addIP(ifname string, ip net.IP, masklen int) (err error) {
	link, err := netlink.LinkByName(ifname)
	if err != nil {
		return err
	}

	addrs, err := netlink.AddrList(link, netlink.FAMILY_ALL)
	if err != nil {
		return err
	}

	netToAdd := &net.IPNet{
		IP:   ip,
		Mask: net.CIDRMask(masklen, 32),
	}

	var addr netlink.Addr
	var found bool
	for _, a := range addrs {
		if a.Label != ifname {
			continue
		}
		found = true
		if a.IPNet.String() == netToAdd.String() {
			return nil
		}
		addr = a
	}
	if !found {
		return fmt.Errorf("cannot find the interface to add address: %s", ifname)
	}

	addr.IPNet = netToAdd
	return netlink.AddrAdd(link, &addr)
}

const routeTableID = 1001

func addRoute2(uConn *gtpv1.UPlaneConn) error {
	route := &netlink.Route{
		Dst: &net.IPNet{
			IP:   net.IPv4zero,
			Mask: net.CIDRMask(0, 32),
		},
		LinkIndex: uConn.KernelGTP.Link.Attrs().Index,
		Scope:     netlink.SCOPE_LINK,
		Protocol:  4,
		Priority:  1,
		Table:     routeTableID,
	}
	return netlink.RouteReplace(route)
}

func addRuleLocal(ip net.IP) error {
	// 0: NETLINK_ROUTE, no definition found.
	rules, err := netlink.RuleList(0)
	if err != nil {
		return err
	}

	mask32 := &net.IPNet{IP: ip, Mask: net.CIDRMask(32, 32)}
	for _, r := range rules {
		if r.Src.String() == mask32.String() && r.Table == routeTableID {
			return nil
		}
	}

	rule := netlink.NewRule()
	rule.Src = mask32
	rule.Table = routeTableID
	return netlink.RuleAdd(rule)
}

func main() {
	log.SetPrefix("[example]")
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)

	t := initRAN()
	time.Sleep(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	localAddr := net.ParseIP("10.60.0.1")
	peerAddr := net.ParseIP("192.168.1.18")
	ueAddr := net.ParseIP("60.60.60.1")
	if err := t.setupN3Tunnel(ctx, "gtp-example", localAddr, peerAddr, ueAddr, 0x12345678, 1); err != nil {
		log.Fatalf("failed to setupN3Tunnel: %v", err)
	}

	time.Sleep(3 * time.Second)
}
