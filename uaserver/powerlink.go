package uaserver

import (
	"github.com/awcullen/opcua/server"
	"github.com/awcullen/opcua/ua"
)

// powerlinkSamplingInterval is the minimum sampling interval of all profile parameters.
const powerlinkSamplingInterval = 100.0

type profileFolder struct {
	key         string
	browseName  string
	displayName string
	parent      string // key of the parent folder, "" for the objects folder
}

type profileParameter struct {
	folder      string
	browseName  string
	displayName string
	value       interface{}
	dataType    ua.NodeID
}

// powerlinkFolders is the object tree of the POWERLINK device profile.
var powerlinkFolders = []profileFolder{
	{key: "DeviceType", browseName: "DeviceType", displayName: "Device Type - POWERLINK"},
	{key: "PowerlinkDeviceType", browseName: "PowerlinkDeviceType", displayName: "Powerlink Device Type", parent: "DeviceType"},
	{key: "DeviceIdentification", browseName: "DeviceType", displayName: "Device Type", parent: "PowerlinkDeviceType"},
	{key: "FunctionalGroupType", browseName: "FunctionalGroupType", displayName: "Functional Group Type", parent: "PowerlinkDeviceType"},
	{key: "PowerlinkCnConnectionPointType", browseName: "PowerlinkCnConnectionPointType", displayName: "Cn Connection Point Type", parent: "PowerlinkDeviceType"},
	{key: "CnFunctionalGroupDiagnosticsType", browseName: "CnFunctionalGroupDiagnosticsType", displayName: "Cn FunctionalGroupDiagnosticsType", parent: "PowerlinkCnConnectionPointType"},
	{key: "CnFunctionalGroupConfigurationType", browseName: "CnFunctionalGroupConfigurationType", displayName: "Cn FunctionalGroupConfigurationType", parent: "PowerlinkCnConnectionPointType"},
	{key: "PowerlinkMnConnectionPointType", browseName: "PowerlinkMnConnectionPointType", displayName: "Mn Connection Point Type", parent: "PowerlinkDeviceType"},
	{key: "MnFunctionalGroupDiagnosticsType", browseName: "MnFunctionalGroupDiagnosticsType", displayName: "Mn FunctionalGroupDiagnosticsType", parent: "PowerlinkMnConnectionPointType"},
	{key: "MnFunctionalGroupConfigurationType", browseName: "MnFunctionalGroupConfigurationType", displayName: "Mn FunctionalGroupConfigurationType", parent: "PowerlinkMnConnectionPointType"},
}

// powerlinkParameters are the variables of the profile with their initial values.
var powerlinkParameters = []profileParameter{
	// device identification
	{"DeviceIdentification", "SerialNumber", "Serial Number", "ABC - 12345", ua.DataTypeIDString},
	{"DeviceIdentification", "RevisionCounter", "Revision Counter", int32(0), ua.DataTypeIDInt32},
	{"DeviceIdentification", "Manufacturer", "Manufacturer", ua.NewLocalizedText("SuperCompany", "DE"), ua.DataTypeIDLocalizedText},
	{"DeviceIdentification", "Model", "Model", ua.NewLocalizedText(" 123", "ABC"), ua.DataTypeIDLocalizedText},
	{"DeviceIdentification", "DeviceManual", "Device Manual", "Device Manual : Url", ua.DataTypeIDString},
	{"DeviceIdentification", "DeviceRevision", "Device Revision", "Device Revision : v0.1", ua.DataTypeIDString},
	{"DeviceIdentification", "SoftwareRevision", "Software Revision", "v0.1", ua.DataTypeIDString},
	{"DeviceIdentification", "HardwareRevision", "Hardware Revision", "v0.1", ua.DataTypeIDString},
	{"DeviceIdentification", "DeviceClass", "Device Class", "Class - Something", ua.DataTypeIDString},

	// functional groups
	{"FunctionalGroupType", "NetworkAddress", "Network Address", uint32(0), ua.DataTypeIDUInt32},
	{"FunctionalGroupType", "NMT_DeviceType_U32", "Identification", uint32(0), ua.DataTypeIDUInt32},
	{"FunctionalGroupType", "DIA_ERRStatistics_REC", "Diagnostics", uint32(0), ua.DataTypeIDUInt32},
	{"FunctionalGroupType", "CFM_ExpConfDataList_AU32", "Configuration", uint32(0), ua.DataTypeIDUInt32},
	{"FunctionalGroupType", "INP_ProcessImage_REC", "Control", uint32(0), ua.DataTypeIDUInt32},
	{"FunctionalGroupType", "ParameterIdentifier", "Status", uint32(0), ua.DataTypeIDUInt32},

	// controlled node
	{"CnFunctionalGroupDiagnosticsType", "DLL_CNCRCError_REC", "DLL_CNCRCError_REC", int32(0), ua.DataTypeIDInt32},
	{"CnFunctionalGroupDiagnosticsType", "DLL_CNLossOfSocTolerance_U32", "DLL_CNLossOfSocTolerance_U32", uint32(0), ua.DataTypeIDUInt32},
	{"CnFunctionalGroupDiagnosticsType", "DLL_CNLossSoC_REC", "DLL_CNLossSoC_REC", int32(0), ua.DataTypeIDInt32},
	{"CnFunctionalGroupConfigurationType", "NMT_CNBasicEthernetTimeout_U32", "NMT_CNBasicEthernetTimeout_U32", uint32(0), ua.DataTypeIDUInt32},

	// managing node
	{"MnFunctionalGroupDiagnosticsType", "DLL_MNCNLossPResThrCnt_AU32", "DLL_MNCNLossPResThrCnt_AU32", uint32(0), ua.DataTypeIDUInt32},
	{"MnFunctionalGroupDiagnosticsType", "DLL_MNCNLossPResThreshold_AU32", "DLL_MNCNLossPResThreshold_AU32", uint32(0), ua.DataTypeIDUInt32},
	{"MnFunctionalGroupDiagnosticsType", "DLL_MNCRCError_REC", "DLL_MNCRCError_REC", int32(0), ua.DataTypeIDInt32},
	{"MnFunctionalGroupDiagnosticsType", "DLL_MNLossStatusResThrCnt_AU32", "DLL_MNLossStatusResThrCnt_AU32", uint32(0), ua.DataTypeIDUInt32},
	{"MnFunctionalGroupDiagnosticsType", "DLL_MNLossStatusResThreshold_AU32", "DLL_MNLossStatusResThreshold_AU32", uint32(0), ua.DataTypeIDUInt32},
	{"MnFunctionalGroupDiagnosticsType", "NMT_MNNodeCurrState_AU8", "NMT_MNNodeCurrState_AU8", byte(1), ua.DataTypeIDByte},
	{"MnFunctionalGroupDiagnosticsType", "NMT_RequestCmd_REC", "NMT_RequestCmd_REC", int32(0), ua.DataTypeIDInt32},
	{"MnFunctionalGroupConfigurationType", "DLL_MNCycleSuspendNumber_U32", "DLL_MNCycleSuspendNumber_U32", uint32(0), ua.DataTypeIDUInt32},
	{"MnFunctionalGroupConfigurationType", "NMT_BootTime_REC", "NMT_BootTime_REC", int32(0), ua.DataTypeIDInt32},
	{"MnFunctionalGroupConfigurationType", "NMT_MNCNPResTimeout_AU32", "NMT_MNCNPResTimeout_AU32", uint32(0), ua.DataTypeIDUInt32},
	{"MnFunctionalGroupConfigurationType", "NMT_MNCycleTiming_REC", "NMT_MNCycleTiming_REC", int32(0), ua.DataTypeIDInt32},
	{"MnFunctionalGroupConfigurationType", "NMT_MNDeviceTypeIdList_AU32", "NMT_MNDeviceTypeIdList_AU32", uint32(0), ua.DataTypeIDUInt32},
	{"MnFunctionalGroupConfigurationType", "NMT_MNPReqPayloadLimitList_AU16", "NMT_MNPReqPayloadLimitList_AU16", uint16(0), ua.DataTypeIDUInt16},
	{"MnFunctionalGroupConfigurationType", "NMT_StartUp_U32", "NMT_StartUp_U32", uint32(0), ua.DataTypeIDUInt32},
}

// PowerlinkNodeID returns the node id of a profile folder or parameter.
// Parameters are addressed as "<folder>.<browseName>".
func (s *Server) PowerlinkNodeID(path string) ua.NodeID {
	return s.id("Powerlink." + path)
}

// addPowerlinkProfile installs the folders of powerlinkFolders and the read-only parameters of powerlinkParameters.
func (s *Server) addPowerlinkProfile() error {
	nodes := make([]server.Node, 0, len(powerlinkFolders)+len(powerlinkParameters))

	for _, f := range powerlinkFolders {
		parent := ua.ObjectIDObjectsFolder
		if f.parent != "" {
			parent = s.PowerlinkNodeID(f.parent)
		}
		nodes = append(nodes, s.newObject(s.PowerlinkNodeID(f.key), s.qn(f.browseName), f.displayName,
			organizedBy(parent, ua.ObjectTypeIDBaseObjectType)))
	}

	for _, p := range powerlinkParameters {
		folder := s.PowerlinkNodeID(p.folder)
		nodes = append(nodes, s.newVariable(variableDef{
			id:          s.PowerlinkNodeID(p.folder + "." + p.browseName),
			browseName:  s.qn(p.browseName),
			displayName: p.displayName,
			value:       p.value,
			dataType:    p.dataType,
			access:      ua.AccessLevelsCurrentRead,
			sampling:    powerlinkSamplingInterval,
			references:  componentOf(folder, ua.VariableTypeIDBaseDataVariableType),
		}))
	}

	return s.addNodes(nodes...)
}
