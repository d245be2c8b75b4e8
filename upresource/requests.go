// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package upresource

// QoSFlowSetupItem is one QoS flow inside a PDU session setup request.
type QoSFlowSetupItem struct {
	QoSFlowID QoSFlowID
	QoSParams QoSParams
}

// PDUSessionSetupItem is one PDU session inside a setup request.
type PDUSessionSetupItem struct {
	PDUSessionID PDUSessionID
	SNSSAI       SNSSAI
	QoSFlows     []QoSFlowSetupItem
}

// SetupRequest is the decoded PDU-session-resource-setup request, handed
// in from NGAP with no further interpretation by this package.
type SetupRequest struct {
	Items []PDUSessionSetupItem
}

// QoSFlowAddOrModItem is one QoS flow inside a modify request, either a
// new flow or a change to an existing one.
type QoSFlowAddOrModItem struct {
	QoSFlowID QoSFlowID
	QoSParams QoSParams
}

// PDUSessionModifyItem is one PDU session inside a modify request.
type PDUSessionModifyItem struct {
	PDUSessionID      PDUSessionID
	QoSFlowsToAddOrMod []QoSFlowAddOrModItem
	QoSFlowsToRelease  []QoSFlowID
}

// ModifyRequest is the decoded PDU-session-resource-modify request.
type ModifyRequest struct {
	Items []PDUSessionModifyItem
}

// ReleaseCommand is the decoded PDU-session-resource-release command: the
// set of PDU sessions to tear down entirely.
type ReleaseCommand struct {
	PDUSessionIDs []PDUSessionID
}

// PDUSessionContextUpdate is a scratch PDU session under construction by
// calculate_update, not yet committed to the UE context.
type PDUSessionContextUpdate struct {
	PDUSessionID PDUSessionID
	SNSSAI       SNSSAI
	DRBsToAdd    map[DRBID]DRBContext
}

// DRBToModify carries a DRB's new QoS parameters for an in-place modify.
type DRBToModify struct {
	DRBID     DRBID
	QoSParams QoSParams
}

// ConfigUpdate is the immutable delta of spec.md §3: the result of
// calculate_update, not yet applied.
type ConfigUpdate struct {
	PDUSessionsToSetup          []PDUSessionContextUpdate
	PDUSessionsToModify         []PDUSessionContextUpdate
	PDUSessionsToRemove         []PDUSessionID
	PDUSessionsFailedToModify   []PDUSessionID
	DRBsToModify                []DRBToModify
	DRBsToRemove                []DRBID
	InitialContextCreation      bool
}

// ConfigUpdateResult is what the downstream E1AP/F1AP/RRC layer hands
// back after it has accepted (a subset of) a ConfigUpdate, ready for
// ApplyConfigUpdate to commit into the UE context.
type ConfigUpdateResult struct {
	PDUSessionsAdded   []PDUSessionContextUpdate
	DRBsModified        []DRBToModify
	DRBsRemoved         []DRBID
	PDUSessionsRemoved []PDUSessionID
}
