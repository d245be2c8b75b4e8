// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package main

import (
	"fmt"
	"log"
	"net"

	"github.com/vishvananda/netlink"
)

// addTunnel creates and brings up a TUN device for the GTP-U tunnel
// bringUpTun drives; unlike a gtp-gnbsim device this one is always
// handed off to go-gtp's kernel GTP driver, never read/written directly.
func addTunnel(name string) (tun *netlink.Tuntap, err error) {
	tun = &netlink.Tuntap{
		LinkAttrs: netlink.LinkAttrs{Name: name},
		Mode:      netlink.TUNTAP_MODE_TUN,
		Flags:     netlink.TUNTAP_DEFAULTS | netlink.TUNTAP_NO_PI,
		Queues:    1,
	}

	if err = netlink.LinkAdd(tun); err != nil {
		return nil, fmt.Errorf("gnbdu: add tun device %s: %w", name, err)
	}
	if err = netlink.LinkSetUp(tun); err != nil {
		return nil, fmt.Errorf("gnbdu: bring up tun device %s: %w", name, err)
	}
	log.Printf("gnbdu: tun device %s created", name)
	return tun, nil
}

// addIPv4Address assigns ip/masklen to ifName, leaving an already-correct
// address in place rather than reapplying it.
func addIPv4Address(ifName string, ip net.IP, masklen int) error {
	link, err := netlink.LinkByName(ifName)
	if err != nil {
		return err
	}

	addrs, err := netlink.AddrList(link, netlink.FAMILY_ALL)
	if err != nil {
		return err
	}

	want := &net.IPNet{
		IP:   ip,
		Mask: net.CIDRMask(masklen, 32),
	}

	var existing netlink.Addr
	found := false
	for _, a := range addrs {
		if a.Label != ifName {
			continue
		}
		found = true
		if a.IPNet.String() == want.String() {
			return nil
		}
		existing = a
	}
	if !found {
		return netlink.AddrAdd(link, &netlink.Addr{IPNet: want})
	}

	existing.IPNet = want
	return netlink.AddrAdd(link, &existing)
}
