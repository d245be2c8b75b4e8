package upresource

import "testing"

func testCatalog() QoSCatalog {
	return QoSCatalog{
		Templates: map[FiveQI]QoSTemplate{
			9: {AMMode: true, DiscardTime: 100},
			1: {AMMode: false, DiscardTime: 0},
		},
		MaxNofDRBsPerUE: 4,
	}
}

// TestTwoSessionsOneDRBEach is scenario 5 of spec.md §8: an empty UE gets
// a setup request for PDU sessions 1 and 2, each with one QoS flow of a
// valid 5QI. Expected: both sessions setup, DRBs 1 and 2 in order,
// session 1's DRB is the default DRB, session 2's is not.
func TestTwoSessionsOneDRBEach(t *testing.T) {
	m := NewManager(testCatalog())

	req := SetupRequest{Items: []PDUSessionSetupItem{
		{PDUSessionID: 1, QoSFlows: []QoSFlowSetupItem{{QoSFlowID: 5, QoSParams: QoSParams{FiveQI: 9}}}},
		{PDUSessionID: 2, QoSFlows: []QoSFlowSetupItem{{QoSFlowID: 6, QoSParams: QoSParams{FiveQI: 9}}}},
	}}

	if !m.ValidateSetupRequest(req) {
		t.Fatalf("expected setup request to validate")
	}
	update := m.CalculateSetupUpdate(req)

	if len(update.PDUSessionsToSetup) != 2 {
		t.Fatalf("expected 2 sessions in update, got %d", len(update.PDUSessionsToSetup))
	}
	if !update.InitialContextCreation {
		t.Errorf("expected initial_context_creation on empty UE")
	}

	s1 := update.PDUSessionsToSetup[0]
	s2 := update.PDUSessionsToSetup[1]
	if s1.PDUSessionID != 1 || s2.PDUSessionID != 2 {
		t.Fatalf("expected sessions in request order 1,2, got %d,%d", s1.PDUSessionID, s2.PDUSessionID)
	}
	d1, ok := s1.DRBsToAdd[1]
	if !ok {
		t.Fatalf("expected session 1 to allocate drb 1")
	}
	if !d1.DefaultDRB {
		t.Errorf("expected session 1's drb to be the default drb")
	}
	d2, ok := s2.DRBsToAdd[2]
	if !ok {
		t.Fatalf("expected session 2 to allocate drb 2")
	}
	if d2.DefaultDRB {
		t.Errorf("expected session 2's drb to not be the default drb")
	}

	m.ApplyConfigUpdate(ConfigUpdateResult{PDUSessionsAdded: update.PDUSessionsToSetup})
	if m.GetNofDRBs() != 2 {
		t.Errorf("expect 2 drbs after apply, got %d", m.GetNofDRBs())
	}
	if m.GetNofPDUSessions() != 2 {
		t.Errorf("expect 2 sessions after apply, got %d", m.GetNofPDUSessions())
	}
}

// TestDRBExhaustion is scenario 6 of spec.md §8: max_nof_drbs_per_ue=2,
// UE already has DRBs 1 and 2; a further setup adds another flow.
// Expected: calculate_update omits the failing session from setup_list.
func TestDRBExhaustion(t *testing.T) {
	cat := testCatalog()
	cat.MaxNofDRBsPerUE = 2
	m := NewManager(cat)

	seed := SetupRequest{Items: []PDUSessionSetupItem{
		{PDUSessionID: 1, QoSFlows: []QoSFlowSetupItem{{QoSFlowID: 1, QoSParams: QoSParams{FiveQI: 9}}}},
		{PDUSessionID: 2, QoSFlows: []QoSFlowSetupItem{{QoSFlowID: 2, QoSParams: QoSParams{FiveQI: 9}}}},
	}}
	if !m.ValidateSetupRequest(seed) {
		t.Fatalf("expected seed request to validate")
	}
	seedUpdate := m.CalculateSetupUpdate(seed)
	m.ApplyConfigUpdate(ConfigUpdateResult{PDUSessionsAdded: seedUpdate.PDUSessionsToSetup})
	if m.GetNofDRBs() != 2 {
		t.Fatalf("expected 2 drbs after seeding, got %d", m.GetNofDRBs())
	}

	req := SetupRequest{Items: []PDUSessionSetupItem{
		{PDUSessionID: 3, QoSFlows: []QoSFlowSetupItem{{QoSFlowID: 3, QoSParams: QoSParams{FiveQI: 9}}}},
	}}
	if !m.ValidateSetupRequest(req) {
		t.Fatalf("expected request to validate (exhaustion is a calculate_update-time concern)")
	}
	update := m.CalculateSetupUpdate(req)
	if len(update.PDUSessionsToSetup) != 0 {
		t.Errorf("expected exhausted session to be omitted from setup list, got %d sessions", len(update.PDUSessionsToSetup))
	}
}

func TestSetupRejectsDuplicateSession(t *testing.T) {
	m := NewManager(testCatalog())
	req := SetupRequest{Items: []PDUSessionSetupItem{
		{PDUSessionID: 1, QoSFlows: []QoSFlowSetupItem{{QoSFlowID: 1, QoSParams: QoSParams{FiveQI: 9}}}},
	}}
	m.ApplyConfigUpdate(ConfigUpdateResult{PDUSessionsAdded: m.CalculateSetupUpdate(req).PDUSessionsToSetup})

	if m.ValidateSetupRequest(req) {
		t.Errorf("expected duplicate pdu session id to be rejected")
	}
}

func TestSetupRejectsUnknownFiveQI(t *testing.T) {
	m := NewManager(testCatalog())
	req := SetupRequest{Items: []PDUSessionSetupItem{
		{PDUSessionID: 1, QoSFlows: []QoSFlowSetupItem{{QoSFlowID: 1, QoSParams: QoSParams{FiveQI: 200}}}},
	}}
	if m.ValidateSetupRequest(req) {
		t.Errorf("expected unknown 5qi to be rejected")
	}
}

func TestSetupRejectsDynamicFiveQIWithoutFallback(t *testing.T) {
	m := NewManager(testCatalog())
	req := SetupRequest{Items: []PDUSessionSetupItem{
		{PDUSessionID: 1, QoSFlows: []QoSFlowSetupItem{{QoSFlowID: 1, QoSParams: QoSParams{FiveQI: 9, DynamicFiveQI: true}}}},
	}}
	if m.ValidateSetupRequest(req) {
		t.Errorf("expected dynamic 5qi without fallback to be rejected")
	}
}

func TestModifyAddFlowReusesDRBAllocation(t *testing.T) {
	m := NewManager(testCatalog())
	seed := SetupRequest{Items: []PDUSessionSetupItem{
		{PDUSessionID: 1, QoSFlows: []QoSFlowSetupItem{{QoSFlowID: 1, QoSParams: QoSParams{FiveQI: 9}}}},
	}}
	m.ApplyConfigUpdate(ConfigUpdateResult{PDUSessionsAdded: m.CalculateSetupUpdate(seed).PDUSessionsToSetup})

	modReq := ModifyRequest{Items: []PDUSessionModifyItem{
		{PDUSessionID: 1, QoSFlowsToAddOrMod: []QoSFlowAddOrModItem{{QoSFlowID: 2, QoSParams: QoSParams{FiveQI: 1}}}},
	}}
	if !m.ValidateModifyRequest(modReq) {
		t.Fatalf("expected modify request to validate")
	}
	update := m.CalculateModifyUpdate(modReq)
	if len(update.PDUSessionsToModify) != 1 {
		t.Fatalf("expected 1 session with a new drb, got %d", len(update.PDUSessionsToModify))
	}
	if _, ok := update.PDUSessionsToModify[0].DRBsToAdd[2]; !ok {
		t.Errorf("expected new flow to allocate drb 2")
	}

	m.ApplyConfigUpdate(ConfigUpdateResult{PDUSessionsAdded: update.PDUSessionsToModify})
	if m.GetNofDRBs() != 2 {
		t.Errorf("expect 2 drbs after modify-add, got %d", m.GetNofDRBs())
	}
}

func TestModifyExistingFlowMarksDRBForModify(t *testing.T) {
	m := NewManager(testCatalog())
	seed := SetupRequest{Items: []PDUSessionSetupItem{
		{PDUSessionID: 1, QoSFlows: []QoSFlowSetupItem{{QoSFlowID: 1, QoSParams: QoSParams{FiveQI: 9}}}},
	}}
	m.ApplyConfigUpdate(ConfigUpdateResult{PDUSessionsAdded: m.CalculateSetupUpdate(seed).PDUSessionsToSetup})

	modReq := ModifyRequest{Items: []PDUSessionModifyItem{
		{PDUSessionID: 1, QoSFlowsToAddOrMod: []QoSFlowAddOrModItem{{QoSFlowID: 1, QoSParams: QoSParams{FiveQI: 1}}}},
	}}
	update := m.CalculateModifyUpdate(modReq)
	if len(update.DRBsToModify) != 1 || update.DRBsToModify[0].DRBID != 1 {
		t.Fatalf("expected drb 1 marked for modify, got %+v", update.DRBsToModify)
	}

	m.ApplyConfigUpdate(ConfigUpdateResult{DRBsModified: update.DRBsToModify})
	drb, ok := m.GetDRBContext(1)
	if !ok {
		t.Fatalf("expected drb 1 to still exist")
	}
	if drb.QoSParams.FiveQI != 1 {
		t.Errorf("expected drb 1's 5qi updated to 1, got %d", drb.QoSParams.FiveQI)
	}
}

func TestModifyReleaseSoleFlowRemovesDRB(t *testing.T) {
	m := NewManager(testCatalog())
	seed := SetupRequest{Items: []PDUSessionSetupItem{
		{PDUSessionID: 1, QoSFlows: []QoSFlowSetupItem{{QoSFlowID: 1, QoSParams: QoSParams{FiveQI: 9}}}},
	}}
	m.ApplyConfigUpdate(ConfigUpdateResult{PDUSessionsAdded: m.CalculateSetupUpdate(seed).PDUSessionsToSetup})

	modReq := ModifyRequest{Items: []PDUSessionModifyItem{
		{PDUSessionID: 1, QoSFlowsToRelease: []QoSFlowID{1}},
	}}
	update := m.CalculateModifyUpdate(modReq)
	if len(update.DRBsToRemove) != 1 || update.DRBsToRemove[0] != 1 {
		t.Fatalf("expected drb 1 marked for removal, got %+v", update.DRBsToRemove)
	}

	m.ApplyConfigUpdate(ConfigUpdateResult{DRBsRemoved: update.DRBsToRemove})
	if m.GetNofDRBs() != 0 {
		t.Errorf("expect 0 drbs after removal, got %d", m.GetNofDRBs())
	}
	if _, ok := m.GetDRBContext(1); ok {
		t.Errorf("expect drb 1 gone after removal")
	}
}

func TestReleaseRemovesSessionAndDRBs(t *testing.T) {
	m := NewManager(testCatalog())
	seed := SetupRequest{Items: []PDUSessionSetupItem{
		{PDUSessionID: 1, QoSFlows: []QoSFlowSetupItem{{QoSFlowID: 1, QoSParams: QoSParams{FiveQI: 9}}}},
	}}
	m.ApplyConfigUpdate(ConfigUpdateResult{PDUSessionsAdded: m.CalculateSetupUpdate(seed).PDUSessionsToSetup})

	relCmd := ReleaseCommand{PDUSessionIDs: []PDUSessionID{1}}
	if !m.ValidateReleaseRequest(relCmd) {
		t.Fatalf("expected release command to validate")
	}
	update := m.CalculateReleaseUpdate(relCmd)
	if len(update.PDUSessionsToRemove) != 1 || len(update.DRBsToRemove) != 1 {
		t.Fatalf("expected 1 session and 1 drb queued for removal, got %+v", update)
	}

	m.ApplyConfigUpdate(ConfigUpdateResult{PDUSessionsRemoved: update.PDUSessionsToRemove, DRBsRemoved: update.DRBsToRemove})
	if m.HasPDUSession(1) {
		t.Errorf("expect session 1 gone after release")
	}
	if m.GetNofDRBs() != 0 {
		t.Errorf("expect 0 drbs after release, got %d", m.GetNofDRBs())
	}
}

func TestReleaseRejectsUnknownSession(t *testing.T) {
	m := NewManager(testCatalog())
	if m.ValidateReleaseRequest(ReleaseCommand{PDUSessionIDs: []PDUSessionID{9}}) {
		t.Errorf("expected release of unknown session to be rejected")
	}
}
