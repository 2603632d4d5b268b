package uaserver

import (
	"time"

	"github.com/awcullen/opcua/server"
	"github.com/awcullen/opcua/ua"
	"github.com/sirupsen/logrus"
)

// Node ids of the test object, relative to the application namespace.
const (
	TestObjectID    = "testObject"
	VendorNameID    = "testVariableName"
	SerialNumberID  = "testSerial"
	TimeStampID     = "testTimeStamp"
	SysTempID       = "testSysTemp"
	SysIdleID       = "testSysIdle"
	UserNameID      = "testUserName"
	UserIDID        = "testUserId"
	CounterID       = "testVariable"
	LastEventTextID = "testLastEvent"
)

const defaultSamplingInterval = 300.0

func (s *Server) id(name string) ua.NodeID {
	return ua.NewNodeIDString(s.ns, name)
}

func (s *Server) qn(name string) ua.QualifiedName {
	return ua.NewQualifiedName(s.ns, name)
}

func text(t string) ua.LocalizedText {
	return ua.NewLocalizedText(t, "en")
}

// organizedBy returns the references of an object organized below parent.
func organizedBy(parent ua.NodeID, typeDefinition ua.NodeID) []ua.Reference {
	return []ua.Reference{
		{ReferenceTypeID: ua.ReferenceTypeIDHasTypeDefinition, TargetID: ua.NewExpandedNodeID(typeDefinition)},
		{ReferenceTypeID: ua.ReferenceTypeIDOrganizes, IsInverse: true, TargetID: ua.NewExpandedNodeID(parent)},
	}
}

// componentOf returns the references of a variable that is a component of parent.
func componentOf(parent ua.NodeID, typeDefinition ua.NodeID) []ua.Reference {
	return []ua.Reference{
		{ReferenceTypeID: ua.ReferenceTypeIDHasTypeDefinition, TargetID: ua.NewExpandedNodeID(typeDefinition)},
		{ReferenceTypeID: ua.ReferenceTypeIDHasComponent, IsInverse: true, TargetID: ua.NewExpandedNodeID(parent)},
	}
}

type variableDef struct {
	id          ua.NodeID
	browseName  ua.QualifiedName
	displayName string
	description string
	value       interface{}
	dataType    ua.NodeID
	access      byte
	sampling    float64
	references  []ua.Reference
}

func (s *Server) newVariable(d variableDef) *server.VariableNode {
	if d.access == 0 {
		d.access = ua.AccessLevelsCurrentRead
	}
	if d.sampling == 0 {
		d.sampling = defaultSamplingInterval
	}
	now := time.Now()
	return server.NewVariableNode(
		s.srv,
		d.id,
		d.browseName,
		text(d.displayName),
		text(d.description),
		nil,
		d.references,
		ua.NewDataValue(d.value, ua.Good, now, 0, now, 0),
		d.dataType,
		ua.ValueRankScalar,
		nil,
		d.access,
		d.sampling,
		false,
		nil,
	)
}

func (s *Server) newObject(id ua.NodeID, browseName ua.QualifiedName, displayName string, refs []ua.Reference) *server.ObjectNode {
	return server.NewObjectNode(
		s.srv,
		id,
		browseName,
		text(displayName),
		text(""),
		nil,
		refs,
		ua.EventNotifierNone,
	)
}

func (s *Server) addNodes(nodes ...server.Node) error {
	for _, n := range nodes {
		if err := s.nm.AddNode(n); err != nil {
			return err
		}
	}
	return nil
}

// addTestObject installs the "Test Object" below the objects folder together
// with its static values and the variables whose value is produced on read.
func (s *Server) addTestObject() error {
	parent := s.id(TestObjectID)
	obj := s.newObject(parent, s.qn("Test Object"), "Test Object",
		organizedBy(ua.ObjectIDObjectsFolder, ua.ObjectTypeIDBaseObjectType))

	variable := func(id, name string, value interface{}, dataType ua.NodeID) *server.VariableNode {
		return s.newVariable(variableDef{
			id:          s.id(id),
			browseName:  s.qn(name),
			displayName: name,
			value:       value,
			dataType:    dataType,
			references:  componentOf(parent, ua.VariableTypeIDBaseDataVariableType),
		})
	}

	vendorName := variable(VendorNameID, "Vendor Name", "nameOfVariable", ua.DataTypeIDString)
	serial := variable(SerialNumberID, "Serial Number", int32(123456), ua.DataTypeIDInt32)
	userName := variable(UserNameID, "User Name", "nameOfUser", ua.DataTypeIDString)
	userID := variable(UserIDID, "User Identification", int32(654321), ua.DataTypeIDInt32)

	timeStamp := variable(TimeStampID, "timeStamp", time.Now(), ua.DataTypeIDDateTime)
	timeStamp.SetReadValueHandler(func(session *server.Session, req ua.ReadValueID) ua.DataValue {
		now := time.Now()
		return ua.NewDataValue(now, ua.Good, now, 0, now, 0)
	})

	sysTemp := variable(SysTempID, "systemTemperature", float32(0), ua.DataTypeIDFloat)
	sysTemp.SetReadValueHandler(s.sensorHandler(sysTemp, SysTempID, func() (interface{}, error) {
		return s.temperature()
	}))

	sysIdle := variable(SysIdleID, "sysIdlePercentage", float64(0), ua.DataTypeIDDouble)
	sysIdle.SetReadValueHandler(s.sensorHandler(sysIdle, SysIdleID, func() (interface{}, error) {
		return s.cpu.Sample()
	}))

	counter := variable(CounterID, "Variable", s.counter.Value(), ua.DataTypeIDDouble)
	counter.SetReadValueHandler(func(session *server.Session, req ua.ReadValueID) ua.DataValue {
		now := time.Now()
		return ua.NewDataValue(s.counter.Next(), ua.Good, now, 0, now, 0)
	})

	lastEvent := variable(LastEventTextID, "Last Event", "", ua.DataTypeIDString)
	lastEvent.SetReadValueHandler(func(session *server.Session, req ua.ReadValueID) ua.DataValue {
		msg, at := s.events.last()
		return ua.NewDataValue(msg, ua.Good, at, 0, time.Now(), 0)
	})

	return s.addNodes(obj, vendorName, serial, userName, userID, timeStamp, sysTemp, sysIdle, counter, lastEvent)
}

// sensorHandler refreshes the node from read. When read fails the previous
// value is kept and returned with BadResourceUnavailable.
func (s *Server) sensorHandler(n *server.VariableNode, name string, read func() (interface{}, error)) func(*server.Session, ua.ReadValueID) ua.DataValue {
	return func(session *server.Session, req ua.ReadValueID) ua.DataValue {
		now := time.Now()
		v, err := read()
		if err != nil {
			logrus.Warnf("SERVER: reading %s failed: %v", name, err)
			prev := n.Value()
			return ua.NewDataValue(prev.Value, ua.BadResourceUnavailable, prev.SourceTimestamp, 0, now, 0)
		}
		dv := ua.NewDataValue(v, ua.Good, now, 0, now, 0)
		n.SetValue(dv)
		return dv
	}
}
