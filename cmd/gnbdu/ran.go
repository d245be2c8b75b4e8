// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package main

import (
	"log"
	"net"
)

// ngSetupStub is the payload InitRAN sends in place of a real NG Setup
// Request PDU. Encoding the actual NGAP/PER message is out of scope here
// (spec.md §1 puts that signalling layer outside this core); this stub
// only exercises the SCTP association itself.
var ngSetupStub = []byte("gnbdu-ng-setup-stub")

// InitRAN dials the configured AMF over SCTP and exchanges a stand-in for
// the initial NG Setup procedure. A blank NGAPPeerAddr means no AMF was
// configured for this run, in which case RAN bring-up is skipped rather
// than treated as an error.
func (s *duSession) InitRAN() (err error) {
	if s.cfg.NGAPPeerAddr == "" {
		log.Printf("gnbdu: no AMF peer configured, skipping RAN bring-up")
		return nil
	}

	const amfPort = 38412
	amfAddr, err := net.ResolveIPAddr("ip", s.cfg.NGAPPeerAddr)
	if err != nil {
		return
	}

	s.n1conn, s.n1info, err = newN2Conn(*amfAddr, amfPort)
	if err != nil {
		return
	}

	s.send(ngSetupStub)
	return s.recv(0)
}
