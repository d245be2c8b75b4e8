// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package upresource

import (
	"log"
)

// Manager is the single source of truth for one UE's user-plane
// configuration (spec.md §4.3). It is not safe for concurrent use by
// more than one goroutine; callers serialize access behind whichever
// executor runs their CU-CP control-plane procedures.
type Manager struct {
	ctx     UEContext
	catalog QoSCatalog
}

// NewManager constructs a Manager with an empty UE context against the
// given static QoS catalog.
func NewManager(catalog QoSCatalog) *Manager {
	return &Manager{ctx: NewUEContext(), catalog: catalog}
}

func (m *Manager) fiveQIValid(q QoSParams) bool {
	if _, ok := m.catalog.Templates[q.FiveQI]; !ok {
		return false
	}
	if q.DynamicFiveQI && !q.HasFallback {
		return false
	}
	return true
}

// ValidateSetupRequest rejects an empty request, any duplicate PDU
// session ID, and any QoS flow whose 5QI is absent from the static
// catalog or is a dynamic 5QI without a fallback.
func (m *Manager) ValidateSetupRequest(req SetupRequest) bool {
	if len(req.Items) == 0 {
		log.Printf("upresource: setup request rejected: empty item list")
		return false
	}
	for _, item := range req.Items {
		if _, exists := m.ctx.PDUSessions[item.PDUSessionID]; exists {
			log.Printf("upresource: setup request rejected: pdu session %d already exists", item.PDUSessionID)
			return false
		}
		for _, flow := range item.QoSFlows {
			if !m.fiveQIValid(flow.QoSParams) {
				log.Printf("upresource: setup request rejected: session %d flow %d has invalid 5qi %d",
					item.PDUSessionID, flow.QoSFlowID, flow.QoSParams.FiveQI)
				return false
			}
		}
	}
	return true
}

// ValidateModifyRequest rejects a reference to an unknown PDU session or
// a new QoS flow with an invalid 5QI.
func (m *Manager) ValidateModifyRequest(req ModifyRequest) bool {
	for _, item := range req.Items {
		if _, exists := m.ctx.PDUSessions[item.PDUSessionID]; !exists {
			log.Printf("upresource: modify request rejected: unknown pdu session %d", item.PDUSessionID)
			return false
		}
		for _, flow := range item.QoSFlowsToAddOrMod {
			if !m.fiveQIValid(flow.QoSParams) {
				log.Printf("upresource: modify request rejected: session %d flow %d has invalid 5qi %d",
					item.PDUSessionID, flow.QoSFlowID, flow.QoSParams.FiveQI)
				return false
			}
		}
	}
	return true
}

// ValidateReleaseRequest rejects a reference to an unknown PDU session.
func (m *Manager) ValidateReleaseRequest(cmd ReleaseCommand) bool {
	for _, id := range cmd.PDUSessionIDs {
		if _, exists := m.ctx.PDUSessions[id]; !exists {
			log.Printf("upresource: release command rejected: unknown pdu session %d", id)
			return false
		}
	}
	return true
}

// allocatedSoFar counts every DRB either already live in the UE context
// or already built into sessionsSoFar within this same calculate_update
// call, implementing the "current drb_map" read of the default-DRB rule
// cumulatively across a multi-session request.
func (m *Manager) allocatedSoFar(sessionsSoFar []PDUSessionContextUpdate) int {
	n := len(m.ctx.drbMap)
	for _, s := range sessionsSoFar {
		n += len(s.DRBsToAdd)
	}
	return n
}

// allocateDRBID implements the DRB allocation rule of spec.md §4.3: scan
// from 1 upward, return the first ID absent from the live context, every
// pending scratch session built so far this call, and the session
// currently being built.
func (m *Manager) allocateDRBID(sessionsSoFar []PDUSessionContextUpdate, scratch *PDUSessionContextUpdate) (DRBID, bool) {
	for id := DRBID(1); id <= DRBID(m.catalog.MaxNofDRBsPerUE); id++ {
		if _, exists := m.ctx.drbMap[id]; exists {
			continue
		}
		if _, exists := scratch.DRBsToAdd[id]; exists {
			continue
		}
		taken := false
		for _, s := range sessionsSoFar {
			if _, exists := s.DRBsToAdd[id]; exists {
				taken = true
				break
			}
		}
		if taken {
			continue
		}
		return id, true
	}
	return 0, false
}

func (m *Manager) buildDRBContext(id DRBID, sessionID PDUSessionID, snssai SNSSAI, q QoSParams, defaultDRB bool) DRBContext {
	tmpl := m.catalog.Templates[q.FiveQI]
	pdcp := PDCPConfig{FiveQI: q.FiveQI, AMMode: tmpl.AMMode, DiscardTime: tmpl.DiscardTime}
	rlc := RLCModeUM
	if pdcp.AMMode {
		rlc = RLCModeAM
	}
	return DRBContext{
		DRBID:        id,
		PDUSessionID: sessionID,
		SNSSAI:       snssai,
		DefaultDRB:   defaultDRB,
		RLCMode:      rlc,
		QoSParams:    q,
		QoSFlows:     map[QoSFlowID]QoSFlowContext{},
		PDCP:         pdcp,
		SDAP:         SDAPConfig{DefaultDRB: defaultDRB, DRBID: id},
	}
}

// CalculateSetupUpdate implements the setup diff algorithm of
// spec.md §4.3. Caller must have already confirmed ValidateSetupRequest.
func (m *Manager) CalculateSetupUpdate(req SetupRequest) ConfigUpdate {
	update := ConfigUpdate{InitialContextCreation: len(m.ctx.PDUSessions) == 0}

	for _, item := range req.Items {
		scratch := PDUSessionContextUpdate{
			PDUSessionID: item.PDUSessionID,
			SNSSAI:       item.SNSSAI,
			DRBsToAdd:    map[DRBID]DRBContext{},
		}

		for _, flow := range item.QoSFlows {
			id, ok := m.allocateDRBID(update.PDUSessionsToSetup, &scratch)
			if !ok {
				log.Printf("upresource: session %d flow %d: no free drb id, dropping flow",
					item.PDUSessionID, flow.QoSFlowID)
				continue
			}
			defaultDRB := m.allocatedSoFar(update.PDUSessionsToSetup)+len(scratch.DRBsToAdd) == 0
			drb := m.buildDRBContext(id, item.PDUSessionID, item.SNSSAI, flow.QoSParams, defaultDRB)
			drb.QoSFlows[flow.QoSFlowID] = QoSFlowContext{QoSFlowID: flow.QoSFlowID, QoSParams: flow.QoSParams}
			scratch.DRBsToAdd[id] = drb
		}

		if len(scratch.DRBsToAdd) == 0 {
			log.Printf("upresource: session %d: no drb could be built, dropping session", item.PDUSessionID)
			continue
		}
		update.PDUSessionsToSetup = append(update.PDUSessionsToSetup, scratch)
	}

	return update
}

// CalculateModifyUpdate implements the modify diff algorithm of
// spec.md §4.3.
func (m *Manager) CalculateModifyUpdate(req ModifyRequest) ConfigUpdate {
	var update ConfigUpdate

	for _, item := range req.Items {
		scratch := PDUSessionContextUpdate{PDUSessionID: item.PDUSessionID, DRBsToAdd: map[DRBID]DRBContext{}}
		session, sessionExists := m.ctx.PDUSessions[item.PDUSessionID]
		if sessionExists {
			scratch.SNSSAI = session.SNSSAI
		}
		anySucceeded := false

		for _, flow := range item.QoSFlowsToAddOrMod {
			if drbID, exists := m.ctx.qosFlowMap[flow.QoSFlowID]; exists {
				update.DRBsToModify = append(update.DRBsToModify, DRBToModify{DRBID: drbID, QoSParams: flow.QoSParams})
				anySucceeded = true
				continue
			}
			id, ok := m.allocateDRBID(update.PDUSessionsToModify, &scratch)
			if !ok {
				log.Printf("upresource: session %d flow %d: no free drb id for add-flow modify, dropping flow",
					item.PDUSessionID, flow.QoSFlowID)
				continue
			}
			defaultDRB := m.allocatedSoFar(update.PDUSessionsToModify)+len(scratch.DRBsToAdd) == 0
			drb := m.buildDRBContext(id, item.PDUSessionID, scratch.SNSSAI, flow.QoSParams, defaultDRB)
			drb.QoSFlows[flow.QoSFlowID] = QoSFlowContext{QoSFlowID: flow.QoSFlowID, QoSParams: flow.QoSParams}
			scratch.DRBsToAdd[id] = drb
			anySucceeded = true
		}

		for _, flowID := range item.QoSFlowsToRelease {
			drbID, exists := m.ctx.qosFlowMap[flowID]
			if !exists {
				continue
			}
			drb, ok := m.lookupDRB(drbID)
			if !ok {
				continue
			}
			if len(drb.QoSFlows) == 1 {
				update.DRBsToRemove = append(update.DRBsToRemove, drbID)
			}
		}

		if len(scratch.DRBsToAdd) > 0 {
			update.PDUSessionsToModify = append(update.PDUSessionsToModify, scratch)
		}
		if !anySucceeded && len(item.QoSFlowsToAddOrMod) > 0 {
			update.PDUSessionsFailedToModify = append(update.PDUSessionsFailedToModify, item.PDUSessionID)
		}
	}

	return update
}

// CalculateReleaseUpdate implements the release diff algorithm of
// spec.md §4.3.
func (m *Manager) CalculateReleaseUpdate(cmd ReleaseCommand) ConfigUpdate {
	var update ConfigUpdate
	for _, id := range cmd.PDUSessionIDs {
		session, exists := m.ctx.PDUSessions[id]
		if !exists {
			continue
		}
		for drbID := range session.DRBs {
			update.DRBsToRemove = append(update.DRBsToRemove, drbID)
		}
		update.PDUSessionsToRemove = append(update.PDUSessionsToRemove, id)
	}
	return update
}

func (m *Manager) lookupDRB(id DRBID) (DRBContext, bool) {
	sessionID, exists := m.ctx.drbMap[id]
	if !exists {
		return DRBContext{}, false
	}
	session, exists := m.ctx.PDUSessions[sessionID]
	if !exists {
		return DRBContext{}, false
	}
	drb, exists := session.DRBs[id]
	return drb, exists
}

// ApplyConfigUpdate commits a downstream-accepted ConfigUpdateResult into
// the UE context: additive insertion for new/extended sessions, in-place
// QoS replacement for modified DRBs, and index-consistent removal for
// removed DRBs and sessions. Idempotent given identical inputs.
func (m *Manager) ApplyConfigUpdate(result ConfigUpdateResult) bool {
	for _, session := range result.PDUSessionsAdded {
		existing, ok := m.ctx.PDUSessions[session.PDUSessionID]
		if !ok {
			existing = PDUSessionContext{PDUSessionID: session.PDUSessionID, SNSSAI: session.SNSSAI, DRBs: map[DRBID]DRBContext{}}
		}
		for drbID, drb := range session.DRBsToAdd {
			existing.DRBs[drbID] = drb
			m.ctx.drbMap[drbID] = session.PDUSessionID
			for flowID := range drb.QoSFlows {
				m.ctx.qosFlowMap[flowID] = drbID
			}
		}
		m.ctx.PDUSessions[session.PDUSessionID] = existing
	}

	for _, mod := range result.DRBsModified {
		sessionID, ok := m.ctx.drbMap[mod.DRBID]
		if !ok {
			continue
		}
		session := m.ctx.PDUSessions[sessionID]
		drb, ok := session.DRBs[mod.DRBID]
		if !ok {
			continue
		}
		drb.QoSParams = mod.QoSParams
		for flowID, flow := range drb.QoSFlows {
			flow.QoSParams = mod.QoSParams
			drb.QoSFlows[flowID] = flow
		}
		session.DRBs[mod.DRBID] = drb
		m.ctx.PDUSessions[sessionID] = session
	}

	for _, drbID := range result.DRBsRemoved {
		sessionID, ok := m.ctx.drbMap[drbID]
		if !ok {
			continue
		}
		session := m.ctx.PDUSessions[sessionID]
		if drb, ok := session.DRBs[drbID]; ok {
			for flowID := range drb.QoSFlows {
				delete(m.ctx.qosFlowMap, flowID)
			}
		}
		delete(session.DRBs, drbID)
		m.ctx.PDUSessions[sessionID] = session
		delete(m.ctx.drbMap, drbID)
	}

	for _, sessionID := range result.PDUSessionsRemoved {
		session, ok := m.ctx.PDUSessions[sessionID]
		if !ok {
			continue
		}
		for drbID, drb := range session.DRBs {
			for flowID := range drb.QoSFlows {
				delete(m.ctx.qosFlowMap, flowID)
			}
			delete(m.ctx.drbMap, drbID)
		}
		delete(m.ctx.PDUSessions, sessionID)
	}

	return true
}

// GetPDUSessionContext returns the named PDU session and whether it
// exists.
func (m *Manager) GetPDUSessionContext(id PDUSessionID) (PDUSessionContext, bool) {
	s, ok := m.ctx.PDUSessions[id]
	return s, ok
}

// GetDRBContext returns the named DRB and whether it exists.
func (m *Manager) GetDRBContext(id DRBID) (DRBContext, bool) {
	return m.lookupDRB(id)
}

// HasPDUSession reports whether id is currently configured.
func (m *Manager) HasPDUSession(id PDUSessionID) bool {
	_, ok := m.ctx.PDUSessions[id]
	return ok
}

// GetNofDRBs returns the total DRB count across every configured PDU
// session.
func (m *Manager) GetNofDRBs() int { return len(m.ctx.drbMap) }

// GetNofPDUSessions returns the number of configured PDU sessions.
func (m *Manager) GetNofPDUSessions() int { return len(m.ctx.PDUSessions) }

// GetPDUSessions returns every configured PDU session ID, in unspecified
// order.
func (m *Manager) GetPDUSessions() []PDUSessionID {
	ids := make([]PDUSessionID, 0, len(m.ctx.PDUSessions))
	for id := range m.ctx.PDUSessions {
		ids = append(ids, id)
	}
	return ids
}
