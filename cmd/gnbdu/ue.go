// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package main

import (
	"log"
)

// InitUEs powers on every UE configured by initConfig.
func (s *duSession) InitUEs() (err error) {
	for _, ue := range s.ue {
		ue.PowerON()
		log.Printf("gnbdu: ue imsi=%s powered on", ue.IMSI)
	}
	log.Printf("gnbdu: powered on %d ues", len(s.ue))
	return
}
