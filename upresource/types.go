// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package upresource implements the UE user-plane resource manager: the
// single source of truth for a UE's PDU-session / QoS-flow / DRB
// configuration, validating incoming setup/modify/release requests,
// producing immutable config diffs against the live state, and applying
// accepted diffs back into that state.
package upresource

// FiveQI is the 5G QoS Identifier, an index into the static QoS catalog.
type FiveQI uint8

// PDUSessionID identifies a PDU session within a UE.
type PDUSessionID uint8

// DRBID identifies a Data Radio Bearer within a UE, drawn from
// {1..MaxNofDRBsPerUE}.
type DRBID uint8

// QoSFlowID identifies a QoS flow within a PDU session.
type QoSFlowID uint8

// RLCMode selects the RLC entity mode a DRB is configured with.
type RLCMode int

const (
	RLCModeUM RLCMode = iota
	RLCModeAM
)

func (m RLCMode) String() string {
	if m == RLCModeAM {
		return "AM"
	}
	return "UM-bidir"
}

// PDCPConfig is the PDCP entity configuration derived from a 5QI's
// template.
type PDCPConfig struct {
	FiveQI      FiveQI
	AMMode      bool // true iff the 5QI template specifies acknowledged mode
	DiscardTime int  // ms, 0 = infinite
}

// SDAPConfig is the SDAP entity configuration derived from the owning
// DRB.
type SDAPConfig struct {
	DefaultDRB bool
	DRBID      DRBID
}

// QoSParams carries the QoS characteristics a QoS flow requests or is
// configured with.
type QoSParams struct {
	FiveQI          FiveQI
	PriorityLevel   uint8
	GBR             bool
	DynamicFiveQI   bool
	FallbackFiveQI  FiveQI
	HasFallback     bool
}

// QoSFlowContext is one configured QoS flow, always owned by exactly one
// DRBContext.
type QoSFlowContext struct {
	QoSFlowID QoSFlowID
	QoSParams QoSParams
}

// ULTransportLayerInfo is an opaque transport-layer address/TEID pair
// handed in by E1AP/F1AP signalling; the resource manager never
// interprets its contents.
type ULTransportLayerInfo struct {
	TransportLayerAddress string
	GTPTEID               uint32
}

// DRBContext is one configured Data Radio Bearer.
type DRBContext struct {
	DRBID        DRBID
	PDUSessionID PDUSessionID
	SNSSAI       SNSSAI
	DefaultDRB   bool
	RLCMode      RLCMode
	QoSParams    QoSParams
	QoSFlows     map[QoSFlowID]QoSFlowContext
	ULTransport  []ULTransportLayerInfo
	PDCP         PDCPConfig
	SDAP         SDAPConfig
}

// SNSSAI is the Single Network Slice Selection Assistance Information
// carried opaquely by a PDU session.
type SNSSAI struct {
	SST uint8
	SD  uint32
}

// PDUSessionContext is one configured PDU session.
type PDUSessionContext struct {
	PDUSessionID PDUSessionID
	SNSSAI       SNSSAI
	DRBs         map[DRBID]DRBContext
}

// UEContext is the full authoritative UE user-plane state of spec.md §3:
// a map of PDU sessions keyed by ID plus two derived indices. The map
// keeps no order; iterating PDUSessions yields sessions in no defined
// order.
type UEContext struct {
	PDUSessions map[PDUSessionID]PDUSessionContext
	drbMap      map[DRBID]PDUSessionID
	qosFlowMap  map[QoSFlowID]DRBID
}

// NewUEContext returns an empty UE context, ready for its first setup
// request.
func NewUEContext() UEContext {
	return UEContext{
		PDUSessions: make(map[PDUSessionID]PDUSessionContext),
		drbMap:      make(map[DRBID]PDUSessionID),
		qosFlowMap:  make(map[QoSFlowID]DRBID),
	}
}

// QoSTemplate is the static per-5QI PDCP/SDAP template spec.md §3 requires
// every configured 5QI to have an entry for.
type QoSTemplate struct {
	AMMode      bool
	DiscardTime int
}

// QoSCatalog is the static config every 5QI must resolve against; it
// never changes once the resource manager is constructed.
type QoSCatalog struct {
	Templates       map[FiveQI]QoSTemplate
	MaxNofDRBsPerUE uint8
}
