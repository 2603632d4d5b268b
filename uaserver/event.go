package uaserver

import (
	"sync"
	"time"

	"github.com/awcullen/opcua/server"
	"github.com/awcullen/opcua/ua"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	TestEventTypeID  = "TestEvent"
	OnEventMethodID  = "onEvent"
	OffEventMethodID = "offEvent"

	OnEventMessage  = "An on event has been generated."
	OffEventMessage = "An off event has been generated."

	eventSeverity = 100
)

type eventLog struct {
	mu    sync.Mutex
	event *ua.BaseEvent
}

func (l *eventLog) record(evt *ua.BaseEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.event = evt
}

func (l *eventLog) last() (string, time.Time) {
	evt := l.lastEvent()
	if evt == nil {
		return "", time.Time{}
	}
	return evt.Message.Text, evt.Time
}

func (l *eventLog) lastEvent() *ua.BaseEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.event
}

// addEventType installs TestEvent as a subtype of BaseEventType.
func (s *Server) addEventType() error {
	n := server.NewObjectTypeNode(
		s.srv,
		s.id(TestEventTypeID),
		ua.NewQualifiedName(0, TestEventTypeID),
		text(TestEventTypeID),
		text("Raised by the Generate Event methods"),
		nil,
		[]ua.Reference{
			{ReferenceTypeID: ua.ReferenceTypeIDHasSubtype, IsInverse: true, TargetID: ua.NewExpandedNodeID(ua.ObjectTypeIDBaseEventType)},
		},
		false,
	)
	return s.addNodes(n)
}

// addEventMethods installs "Generate Event On" and "Generate Event Off" below the objects folder.
func (s *Server) addEventMethods() error {
	on := s.newMethod(s.id(OnEventMethodID), ua.NewQualifiedName(1, "Generate On Event"),
		"Generate Event On", "Generate an event.", ua.ObjectIDObjectsFolder)
	on.SetCallMethodHandler(s.eventHandler(OnEventMessage))

	off := s.newMethod(s.id(OffEventMethodID), ua.NewQualifiedName(1, "Generate Off Event"),
		"Generate Event Off", "Generate an event.", ua.ObjectIDObjectsFolder)
	off.SetCallMethodHandler(s.eventHandler(OffEventMessage))

	return s.addNodes(on, off)
}

func (s *Server) eventHandler(message string) func(*server.Session, ua.CallMethodRequest) ua.CallMethodResult {
	return func(session *server.Session, req ua.CallMethodRequest) ua.CallMethodResult {
		if len(req.InputArguments) > 0 {
			return ua.CallMethodResult{StatusCode: ua.BadTooManyArguments}
		}
		if err := s.raiseEvent(message); err != nil {
			logrus.Warnf("SERVER: create event failed: %v", err)
			return ua.CallMethodResult{StatusCode: ua.BadInternalError}
		}
		return ua.CallMethodResult{}
	}
}

// raiseEvent notifies event subscribers of the Server object with a TestEvent.
func (s *Server) raiseEvent(message string) error {
	source, ok := s.nm.FindObject(ua.ObjectIDServer)
	if !ok {
		return ua.BadNodeIDUnknown
	}

	id := uuid.New()
	now := time.Now()
	evt := &ua.BaseEvent{
		EventID:     ua.ByteString(id[:]),
		EventType:   s.id(TestEventTypeID),
		SourceNode:  source.NodeID(),
		SourceName:  "Server",
		Time:        now,
		ReceiveTime: now,
		Message:     ua.LocalizedText{Text: message, Locale: "en-US"},
		Severity:    eventSeverity,
	}
	s.nm.OnEvent(source, evt)
	s.events.record(evt)

	logrus.Infof("SERVER: %s", message)
	return nil
}
