// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Command gnbdu is a runnable demo harness: it plays the role of the
// "surrounding components" spec.md §1 puts out of scope (NGAP/F1AP
// signalling, RAN bring-up, GTP-U tunnels), and wires them to the
// in-scope core (slotclock, metricsagg, upresource) the way a real DU
// process would, without the core ever importing a transport package.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"time"

	"github.com/hhorai/gnbdu/exec"
	"github.com/hhorai/gnbdu/metricsagg"
	"github.com/hhorai/gnbdu/slotclock"
	"github.com/hhorai/gnbdu/upresource"
	"github.com/ishidawataru/sctp"
	"github.com/wmnsk/go-gtp/gtpv1"
)

const aggregationPeriodSubframes = 20

// duSession is the process-wide state of one DU instance: the
// SCTP/GTP-U transport handles on one side, the core's wired-up
// components on the other. It deliberately has no NGAP/NAS codec state:
// that signalling layer is an external collaborator (spec.md §1), not
// part of this harness.
type duSession struct {
	cfg    gnbConfig
	n1conn *sctp.SCTPConn
	n1info *sctp.SndRcvInfo
	ue     []*simUE
	gtpu   *gtpv1.UPlaneConn

	timers       *exec.WallClockTimerManager
	tickExecutor *exec.BoundedExecutor
	ctrlExecutor *exec.BoundedExecutor
	clock        *slotclock.Controller
	agg          *metricsagg.Aggregator
	cells        []*slotclock.CellHandle
	metrics      []*cellMetricState
	upManagers   []*upresource.Manager
}

// cellMetricState is the per-cell producer-side bookkeeping runSlotLoop
// needs to drive metricsagg's two-step scheduler/MAC report protocol: the
// notifiers AddCell returned, and where the cell's current reporting
// window started.
type cellMetricState struct {
	sched         metricsagg.SchedNotifier
	mac           metricsagg.MACNotifier
	windowStart   slotclock.ExtendedSlotPoint
	slotsInWindow int
}

type metricsLogSink struct{}

func (metricsLogSink) OnNewMetricsReport(report metricsagg.AggregatedMetricReport) {
	log.Printf("gnbdu: aggregate window start=%d period=%d mac_cells=%d sched_cells=%d",
		report.WindowStart, report.Period, len(report.MACCells), len(report.SchedCells))
}

func main() {
	configFile := flag.String("config", "gnbdu.json", "AMF/GTP-U/UE addressing configuration file")
	nofCells := flag.Int("cells", 1, "number of simulated DU cells")
	tunName := flag.String("tun", "", "bring up a GTP-U tunnel device with this name (requires CAP_NET_ADMIN)")
	flag.Parse()

	s := initConfig(*configFile)
	s.initCore(*nofCells)
	defer s.closeCore()

	if *tunName != "" {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		localIP := net.IPv4(10, 45, 0, 1)
		peerAddr := net.ParseIP(s.cfg.GTPuAddr)
		if peerAddr == nil {
			peerAddr = net.IPv4(10, 45, 0, 2)
		}
		ueAddr := net.IPv4(10, 45, 0, 10)
		if err := s.bringUpTun(ctx, *tunName, localIP, 24, peerAddr, ueAddr, 1, 1); err != nil {
			log.Printf("gnbdu: bringUpTun failed: %v", err)
		}
	}

	if err := s.InitRAN(); err != nil {
		log.Fatalf("gnbdu: InitRAN failed: %v", err)
	}
	if err := s.InitUEs(); err != nil {
		log.Fatalf("gnbdu: InitUEs failed: %v", err)
	}

	s.demoUPSetup()
	s.runSlotLoop(2 * time.Second)
}

func initConfig(jsonFile string) (s *duSession) {
	s = &duSession{cfg: loadConfig(jsonFile)}

	for i := 0; i < s.cfg.UE.Number; i++ {
		s.ue = append(s.ue, &simUE{IMSI: s.cfg.UE.IMSI})
	}
	return
}

// initCore wires the slotclock controller and metric aggregator to a
// real timer manager and bounded executors, and activates nofCells
// simulated DU cells plus one upresource.Manager per configured UE.
func (s *duSession) initCore(nofCells int) {
	s.timers = exec.NewWallClockTimerManager()
	s.tickExecutor = exec.NewBoundedExecutor(64)
	s.ctrlExecutor = exec.NewBoundedExecutor(64)

	go s.timers.Run()
	go s.tickExecutor.Run()
	go s.ctrlExecutor.Run()

	s.clock = slotclock.NewController(s.tickExecutor, s.timers)
	s.agg = metricsagg.NewAggregator(s.ctrlExecutor, s.timers, metricsLogSink{}, aggregationPeriodSubframes)

	for i := 0; i < nofCells; i++ {
		h, err := s.clock.AddCell(i)
		if err != nil {
			log.Printf("gnbdu: add cell %d: %v", i, err)
			continue
		}
		s.cells = append(s.cells, h)

		zero := slotclock.ExtendedSlotPoint{SlotPoint: slotclock.NewSlotPoint(slotclock.SCS30, 0, 0)}
		_, sched, mac, err := s.agg.AddCell(i, zero)
		if err != nil {
			log.Printf("gnbdu: metricsagg add cell %d: %v", i, err)
			continue
		}
		mac.OnCellActivation()
		s.metrics = append(s.metrics, &cellMetricState{sched: sched, mac: mac, windowStart: zero})
	}

	catalog := upresource.QoSCatalog{
		Templates: map[upresource.FiveQI]upresource.QoSTemplate{
			5: {AMMode: false, DiscardTime: 0},
			9: {AMMode: true, DiscardTime: 100},
		},
		MaxNofDRBsPerUE: 8,
	}
	for range s.ue {
		s.upManagers = append(s.upManagers, upresource.NewManager(catalog))
	}
}

func (s *duSession) closeCore() {
	s.timers.Close()
	s.tickExecutor.Close()
	s.ctrlExecutor.Close()
}

// demoUPSetup exercises the UP resource manager end-to-end for the first
// configured UE, the way an F1AP/E1AP bearer-context-setup procedure
// would drive it.
func (s *duSession) demoUPSetup() {
	if len(s.upManagers) == 0 {
		return
	}
	m := s.upManagers[0]
	req := upresource.SetupRequest{Items: []upresource.PDUSessionSetupItem{
		{
			PDUSessionID: 1,
			QoSFlows: []upresource.QoSFlowSetupItem{
				{QoSFlowID: 1, QoSParams: upresource.QoSParams{FiveQI: 9}},
			},
		},
	}}
	if !m.ValidateSetupRequest(req) {
		log.Printf("gnbdu: demo UP setup request failed validation")
		return
	}
	update := m.CalculateSetupUpdate(req)
	m.ApplyConfigUpdate(upresource.ConfigUpdateResult{PDUSessionsAdded: update.PDUSessionsToSetup})
	log.Printf("gnbdu: demo UE now has %d pdu sessions, %d drbs", m.GetNofPDUSessions(), m.GetNofDRBs())
}

// runSlotLoop feeds synthetic slot indications to every active cell for
// d wall-clock time, at the cadence the clock's SCS implies, and drives
// each cell's metricsagg producer protocol off the same slot ticks.
func (s *duSession) runSlotLoop(d time.Duration) {
	scs := slotclock.SCS30
	slotPeriod := time.Millisecond / time.Duration(scs.SlotsPerSubframe())
	deadline := time.Now().Add(d)

	sfn, slot := 0, 0
	for time.Now().Before(deadline) {
		sl := slotclock.NewSlotPoint(scs, sfn, slot)
		for i, h := range s.cells {
			ext, err := h.OnSlotIndication(sl)
			if err != nil {
				log.Printf("gnbdu: slot indication: %v", err)
				continue
			}
			s.reportMetrics(i, ext)
		}
		slot++
		if slot >= scs.SlotsPerSubframe()*slotclock.SubframesPerFrame {
			slot = 0
			sfn = (sfn + 1) % slotclock.FramesPerHyperFrame
		}
		time.Sleep(slotPeriod)
	}
}

// reportMetrics plays the role of the MAC-DL and scheduler layers for
// simulated cell i: it counts slots into the cell's current window and,
// once metricsagg says a report is due, posts the scheduler half first
// (GetBuilder/Commit) and then the MAC half, per the producer protocol
// spec.md §4.2 describes.
func (s *duSession) reportMetrics(i int, ext slotclock.ExtendedSlotPoint) {
	if i >= len(s.metrics) {
		return
	}
	cm := s.metrics[i]
	cm.slotsInWindow++
	if !cm.mac.IsReportRequired(ext) {
		return
	}

	if cm.sched.IsSchedReportRequired(ext) {
		b, err := cm.sched.GetBuilder()
		if err != nil {
			log.Printf("gnbdu: cell %d: scheduler report dropped: %v", i, err)
		} else {
			b.Slot = cm.windowStart
			b.NofSlots = cm.slotsInWindow
			cm.sched.Commit(b)
		}
	}
	cm.mac.OnCellMetricReport(metricsagg.CellMetricReportMAC{
		StartSlot: cm.windowStart,
		NofSlots:  cm.slotsInWindow,
	})

	cm.windowStart = ext
	cm.slotsInWindow = 0
}
