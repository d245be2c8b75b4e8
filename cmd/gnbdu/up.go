// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package main

import (
	"context"
	"log"
	"net"

	"github.com/wmnsk/go-gtp/gtpv1"
)

// bringUpTun brings up the kernel GTP-U tunnel device a real DU would use
// to carry user-plane traffic to the UPF, using go-gtp's kernel-backed
// UPlaneConn rather than a hand-rolled encap/decap loop. peerTEID/localTEID
// and ueAddr stand in for what a real PDU Session Resource Setup response
// would supply; here they are demo-fixed since NGAP signalling is out of
// scope (spec.md §1). Requires CAP_NET_ADMIN; callers gate it behind an
// explicit flag.
func (s *duSession) bringUpTun(ctx context.Context, name string, localIP net.IP, masklen int, peerAddr, ueAddr net.IP, peerTEID, localTEID uint32) error {
	if _, err := addTunnel(name); err != nil {
		return err
	}
	if err := addIPv4Address(name, localIP, masklen); err != nil {
		return err
	}

	laddr := &net.UDPAddr{IP: localIP}
	uConn := gtpv1.NewUPlaneConn(laddr)
	if err := uConn.EnableKernelGTP(name, gtpv1.RoleSGSN); err != nil {
		return err
	}

	go func() {
		if err := uConn.ListenAndServe(ctx); err != nil {
			log.Printf("gnbdu: gtp-u ListenAndServe exited: %v", err)
		}
	}()

	if err := uConn.AddTunnelOverride(peerAddr, ueAddr, peerTEID, localTEID); err != nil {
		return err
	}

	s.gtpu = uConn
	log.Printf("gnbdu: tun device %s up at %s/%d, gtp-u tunnel peer=%s ue=%s", name, localIP, masklen, peerAddr, ueAddr)
	return nil
}
