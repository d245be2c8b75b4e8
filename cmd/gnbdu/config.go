// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package main

import (
	"encoding/json"
	"log"
	"os"
)

// gnbConfig is the minimal set of addressing/identity parameters this
// demo harness needs to dial an AMF and bring up a GTP-U tunnel; the
// NGAP/NAS/F1AP signalling those real procedures require is explicitly
// out of scope (spec.md §1 treats it as an external collaborator), so
// this config carries only what the transport stubs in ran.go/sctp.go/
// up.go actually consume.
type gnbConfig struct {
	NGAPPeerAddr string   `json:"ngapPeerAddr"`
	GTPuAddr     string   `json:"gtpuAddr"`
	GTPuIFname   string   `json:"gtpuIfName"`
	UE           ueConfig `json:"ue"`
}

type ueConfig struct {
	IMSI   string `json:"imsi"`
	Number int    `json:"number"`
}

// simUE is a stand-in for a powered-on UE: just enough state for the
// demo harness to log and count, not a NAS state machine.
type simUE struct {
	IMSI      string
	poweredOn bool
}

func (u *simUE) PowerON() {
	u.poweredOn = true
}

// loadConfig reads jsonFile if present; a missing file is not fatal for
// this demo harness, it just leaves the config at its zero value (no AMF
// peer, no UEs), matching the teacher's own permissive "best effort"
// config loading idiom.
func loadConfig(jsonFile string) gnbConfig {
	var cfg gnbConfig
	f, err := os.Open(jsonFile)
	if err != nil {
		log.Printf("gnbdu: no config file at %s, running with defaults: %v", jsonFile, err)
		return cfg
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		log.Printf("gnbdu: failed to parse config file %s: %v", jsonFile, err)
	}
	return cfg
}
