package uaserver

import (

	"github.com/awcullen/opcua/server"
	"github.com/awcullen/opcua/ua"
	"github.com/sirupsen/logrus"
)

// SelectMethodID is the numeric id of "Method Node" in the server namespace (ns=1).
const SelectMethodID uint32 = 62541

// SelectMethodNodeID returns ns=1;i=62541.
func SelectMethodNodeID() ua.NodeID {
	return ua.NewNodeIDNumeric(1, SelectMethodID)
}

// SelectResponse maps the single character input of "Method Node" to its answer.
func SelectResponse(input string) string {
	if len(input) != 1 {
		return "Incorrect value selected, please try again."
	}
	switch input {
	case "1", "2", "3":
		return "Case " + input + " selected."
	default:
		return "Incorrect value picked."
	}
}

const valueRankOneDimension int32 = 1

// stringArgument describes a scalar string argument for the InputArguments and OutputArguments properties.
func stringArgument(name, description string) ua.Argument {
	return ua.Argument{
		Name:        name,
		DataType:    ua.DataTypeIDString,
		ValueRank:   ua.ValueRankScalar,
		Description: text(description),
	}
}

func (s *Server) argumentsProperty(method ua.NodeID, id, browseName string, args ...ua.Argument) *server.VariableNode {
	list := make([]ua.ExtensionObject, len(args))
	for i, a := range args {
		list[i] = a
	}
	return server.NewVariableNode(
		s.srv,
		s.id(id),
		ua.NewQualifiedName(0, browseName),
		text(browseName),
		text(""),
		nil,
		[]ua.Reference{
			{ReferenceTypeID: ua.ReferenceTypeIDHasTypeDefinition, TargetID: ua.NewExpandedNodeID(ua.VariableTypeIDPropertyType)},
			{ReferenceTypeID: ua.ReferenceTypeIDHasProperty, IsInverse: true, TargetID: ua.NewExpandedNodeID(method)},
		},
		ua.DataValue{Value: list},
		ua.DataTypeIDArgument,
		valueRankOneDimension,
		[]uint32{uint32(len(list))},
		ua.AccessLevelsCurrentRead,
		0,
		false,
		nil,
	)
}

func (s *Server) newMethod(id ua.NodeID, browseName ua.QualifiedName, displayName, description string, parent ua.NodeID) *server.MethodNode {
	return server.NewMethodNode(
		s.srv,
		id,
		browseName,
		text(displayName),
		text(description),
		nil,
		[]ua.Reference{
			{ReferenceTypeID: ua.ReferenceTypeIDHasComponent, IsInverse: true, TargetID: ua.NewExpandedNodeID(parent)},
		},
		true,
	)
}

// addSelectMethod installs "Method Node" below the objects folder.
func (s *Server) addSelectMethod() error {
	methodID := SelectMethodNodeID()
	method := s.newMethod(methodID, ua.NewQualifiedName(1, "MethodNode"), "Method Node",
		"Select case 1, 2 or 3", ua.ObjectIDObjectsFolder)

	in := s.argumentsProperty(methodID, "MethodNode.InputArguments", "InputArguments",
		stringArgument("Input", "A single character: 1, 2 or 3"))
	out := s.argumentsProperty(methodID, "MethodNode.OutputArguments", "OutputArguments",
		stringArgument("Output", "The selected case"))

	method.SetCallMethodHandler(func(session *server.Session, req ua.CallMethodRequest) ua.CallMethodResult {
		return selectMethod(req)
	})

	return s.addNodes(method, in, out)
}

// selectMethod validates the single String input and answers with SelectResponse.
func selectMethod(req ua.CallMethodRequest) ua.CallMethodResult {
	if len(req.InputArguments) < 1 {
		return ua.CallMethodResult{StatusCode: ua.BadArgumentsMissing}
	}
	if len(req.InputArguments) > 1 {
		return ua.CallMethodResult{StatusCode: ua.BadTooManyArguments}
	}
	input, ok := req.InputArguments[0].(string)
	if !ok {
		return ua.CallMethodResult{
			StatusCode:           ua.BadInvalidArgument,
			InputArgumentResults: []ua.StatusCode{ua.BadTypeMismatch},
		}
	}
	answer := SelectResponse(input)
	logrus.Debugf("SERVER: method node called with %q: %s", input, answer)
	return ua.CallMethodResult{OutputArguments: []ua.Variant{answer}}
}
