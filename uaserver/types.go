package uaserver

import (
	"github.com/awcullen/opcua/server"
	"github.com/awcullen/opcua/ua"
)

const (
	DeviceTypeID = "Types.DeviceType"
	// PumpTypeID ist numerisch, damit Clients den Typ ohne Browse finden.
	PumpTypeID uint32 = 1001
)

// PumpTypeNodeID returns ns=1;i=1001.
func PumpTypeNodeID() ua.NodeID {
	return ua.NewNodeIDNumeric(1, PumpTypeID)
}

// pump instances below the objects folder
var pumpInstances = []string{"pump2", "pump3"}

func mandatory() ua.Reference {
	return ua.Reference{
		ReferenceTypeID: ua.ReferenceTypeIDHasModellingRule,
		TargetID:        ua.NewExpandedNodeID(ua.ObjectIDModellingRuleMandatory),
	}
}

func (s *Server) typeMember(owner ua.NodeID, path, name string, value interface{}, dataType ua.NodeID) *server.VariableNode {
	return s.newVariable(variableDef{
		id:          s.id(path + "." + name),
		browseName:  ua.NewQualifiedName(1, name),
		displayName: name,
		value:       value,
		dataType:    dataType,
		references:  append(componentOf(owner, ua.VariableTypeIDBaseDataVariableType), mandatory()),
	})
}

// addDeviceTypes installs DeviceType and its subtype PumpType and
// instantiates pumpInstances.
func (s *Server) addDeviceTypes() error {
	deviceType := s.id(DeviceTypeID)
	pumpType := PumpTypeNodeID()

	nodes := []server.Node{
		server.NewObjectTypeNode(s.srv, deviceType, ua.NewQualifiedName(1, "DeviceType"), text("DeviceType"), text(""), nil,
			[]ua.Reference{
				{ReferenceTypeID: ua.ReferenceTypeIDHasSubtype, IsInverse: true, TargetID: ua.NewExpandedNodeID(ua.ObjectTypeIDBaseObjectType)},
			}, false),
		s.typeMember(deviceType, DeviceTypeID, "ManufacturerName", "", ua.DataTypeIDString),
		s.typeMember(deviceType, DeviceTypeID, "ModelName", "", ua.DataTypeIDString),

		server.NewObjectTypeNode(s.srv, pumpType, ua.NewQualifiedName(1, "PumpType"), text("PumpType"), text(""), nil,
			[]ua.Reference{
				{ReferenceTypeID: ua.ReferenceTypeIDHasSubtype, IsInverse: true, TargetID: ua.NewExpandedNodeID(deviceType)},
			}, false),
		s.typeMember(pumpType, "Types.PumpType", "Status", false, ua.DataTypeIDBoolean),
		s.typeMember(pumpType, "Types.PumpType", "MotorRPMs", float64(0), ua.DataTypeIDDouble),
	}

	for _, name := range pumpInstances {
		obj := s.id(name)
		nodes = append(nodes,
			s.newObject(obj, ua.NewQualifiedName(1, name), name, organizedBy(ua.ObjectIDObjectsFolder, pumpType)),
			s.typeMember(obj, name, "ManufacturerName", "Pump King Ltd.", ua.DataTypeIDString),
			s.typeMember(obj, name, "ModelName", "Mega Pump 3000", ua.DataTypeIDString),
			s.typeMember(obj, name, "Status", true, ua.DataTypeIDBoolean),
			s.typeMember(obj, name, "MotorRPMs", float64(50), ua.DataTypeIDDouble),
		)
	}

	return s.addNodes(nodes...)
}
