package opcua

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
	"github.com/sirupsen/logrus"
)

// InitClient initialisiert den OPC-UA-Client: Endpunkte abfragen, passenden Endpunkt
// für Policy und Modus wählen, Optionen setzen und verbinden.
func InitClient(ctx context.Context, device DeviceConfig) (*opcua.Client, error) {
	device = device.WithDefaults()
	address, err := ValidateAndFixOPCUAAddress(device.Address)
	if err != nil {
		return nil, err
	}

	endpoints, err := opcua.GetEndpoints(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("get endpoints of %s: %v", address, err)
	}
	policy := getSecurityPolicy(device.SecurityPolicy)
	mode := getSecurityMode(device.SecurityMode)
	ep := selectEndpoint(endpoints, policy, mode)
	if ep == nil {
		return nil, fmt.Errorf("no endpoint with policy %s and mode %s at %s", policy, mode, address)
	}

	opts, err := clientOptions(device, ep)
	if err != nil {
		return nil, err
	}

	client, err := opcua.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("create client: %v", err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to %s: %v", address, err)
	}
	return client, nil
}

func selectEndpoint(endpoints []*ua.EndpointDescription, policy string, mode ua.MessageSecurityMode) *ua.EndpointDescription {
	for _, ep := range endpoints {
		if ep.SecurityPolicyURI == policy && ep.SecurityMode == mode {
			return ep
		}
	}
	return nil
}

func parseNodes(nodes []DataNode) ([]*ua.ReadValueID, error) {
	ids := make([]*ua.ReadValueID, len(nodes))
	for i, n := range nodes {
		parsed, err := ua.ParseNodeID(n.Node)
		if err != nil {
			return nil, fmt.Errorf("failed to parse node ID '%s': %v", n.Node, err)
		}
		ids[i] = &ua.ReadValueID{NodeID: parsed, AttributeID: ua.AttributeIDValue}
	}
	return ids, nil
}

// ReadData liest alle Knoten mit einem Read-Request. Ein einzelner schlechter Status
// ergibt ein Sample mit Good=false, nur ein Fehler des Dienstes selbst ist ein error.
func ReadData(ctx context.Context, client Conn, endpoint string, nodes []DataNode) ([]Sample, error) {
	if client == nil {
		return nil, errors.New("client not connected")
	}

	ids, err := parseNodes(nodes)
	if err != nil {
		return nil, err
	}

	resp, err := client.Read(ctx, &ua.ReadRequest{
		NodesToRead:        ids,
		TimestampsToReturn: ua.TimestampsToReturnBoth,
	})
	if err != nil {
		return nil, fmt.Errorf("reading data failed: %v", err)
	}
	if len(resp.Results) != len(nodes) {
		return nil, fmt.Errorf("read returned %d results for %d nodes", len(resp.Results), len(nodes))
	}

	now := time.Now()
	samples := make([]Sample, 0, len(nodes))
	for i, result := range resp.Results {
		s := Sample{
			Endpoint:   endpoint,
			NodeID:     nodes[i].Node,
			Name:       nodes[i].Name,
			ReceivedAt: now,
		}
		if result == nil {
			s.Status = "no result"
			samples = append(samples, s)
			continue
		}
		s.SourceTime = result.SourceTimestamp
		if result.Status != ua.StatusOK {
			s.Status = result.Status.Error()
			logrus.Debugf("OPC-UA: reading node '%s' failed with status: %v", nodes[i].Node, result.Status)
			samples = append(samples, s)
			continue
		}
		s.Good = true
		s.Status = "Good"
		if result.Value != nil {
			s.Value = result.Value.Value()
		}
		if t, ok := s.Value.(time.Time); ok && !t.IsZero() {
			s.Latency = now.Sub(t)
		}
		samples = append(samples, s)
	}
	return samples, nil
}

// UpdateDataNode schreibt einen Wert in einen OPC-UA-Datenpunkt
func UpdateDataNode(ctx context.Context, client Conn, nodeID string, value interface{}) error {
	if client == nil {
		return errors.New("client not connected")
	}

	parsedNodeID, err := ua.ParseNodeID(nodeID)
	if err != nil {
		return fmt.Errorf("failed to parse node ID '%s': %v", nodeID, err)
	}
	v, err := ua.NewVariant(value)
	if err != nil {
		return fmt.Errorf("unsupported value %v (%T): %v", value, value, err)
	}

	resp, err := client.Write(ctx, &ua.WriteRequest{
		NodesToWrite: []*ua.WriteValue{
			{
				NodeID:      parsedNodeID,
				AttributeID: ua.AttributeIDValue,
				Value: &ua.DataValue{
					EncodingMask: ua.DataValueValue,
					Value:        v,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("write failed: %v", err)
	}
	if len(resp.Results) == 0 || resp.Results[0] != ua.StatusOK {
		var status ua.StatusCode = ua.StatusBad
		if len(resp.Results) > 0 {
			status = resp.Results[0]
		}
		return fmt.Errorf("write failed with status: %v", status)
	}

	logrus.Infof("OPC-UA: data node '%s' updated successfully", nodeID)
	return nil
}

// GetNodeName ruft den Namen einer Node basierend auf der NodeID ab
func GetNodeName(ctx context.Context, client Conn, nodeID string) (string, error) {
	parsedNodeID, err := ua.ParseNodeID(nodeID)
	if err != nil {
		return "", fmt.Errorf("failed to parse node ID '%s': %v", nodeID, err)
	}

	resp, err := client.Read(ctx, &ua.ReadRequest{
		NodesToRead: []*ua.ReadValueID{
			{NodeID: parsedNodeID, AttributeID: ua.AttributeIDDisplayName},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to read node name: %v", err)
	}
	if len(resp.Results) == 0 || resp.Results[0] == nil {
		return "", errors.New("failed to read node name: empty response")
	}
	if resp.Results[0].Status != ua.StatusOK {
		return "", fmt.Errorf("failed to read node name with status: %v", resp.Results[0].Status)
	}
	if resp.Results[0].Value == nil {
		return "", errors.New("display name without value")
	}

	switch v := resp.Results[0].Value.Value().(type) {
	case ua.LocalizedText:
		return v.Text, nil
	case *ua.LocalizedText:
		return v.Text, nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("unexpected type for display name: %T", v)
	}
}

// ResolveNodeNames ergänzt fehlende Namen mit dem DisplayName der Node. Ist dieser
// nicht lesbar, wird die NodeID als Name verwendet.
func ResolveNodeNames(ctx context.Context, client Conn, nodes []DataNode) []DataNode {
	resolved := make([]DataNode, len(nodes))
	for i, n := range nodes {
		resolved[i] = n
		if n.Name != "" {
			continue
		}
		name, err := GetNodeName(ctx, client, n.Node)
		if err != nil || name == "" {
			logrus.Warnf("OPC-UA: no display name for %s: %v", n.Node, err)
			name = n.Node
		}
		resolved[i].Name = name
	}
	return resolved
}

// CallMethod ruft eine Methode auf und gibt die Ausgabeargumente zurück.
func CallMethod(ctx context.Context, client Conn, objectID, methodID string, args ...interface{}) ([]interface{}, error) {
	if client == nil {
		return nil, errors.New("client not connected")
	}
	objectNodeID, err := ua.ParseNodeID(objectID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse object node ID '%s': %v", objectID, err)
	}
	methodNodeID, err := ua.ParseNodeID(methodID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse method node ID '%s': %v", methodID, err)
	}

	in := make([]*ua.Variant, len(args))
	for i, a := range args {
		v, err := ua.NewVariant(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %v", i, err)
		}
		in[i] = v
	}

	resp, err := client.Call(ctx, &ua.CallMethodRequest{
		ObjectID:       objectNodeID,
		MethodID:       methodNodeID,
		InputArguments: in,
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %v", methodID, err)
	}
	if resp.StatusCode != ua.StatusOK {
		return nil, fmt.Errorf("call %s: got status %v", methodID, resp.StatusCode)
	}

	out := make([]interface{}, len(resp.OutputArguments))
	for i, v := range resp.OutputArguments {
		if v != nil {
			out[i] = v.Value()
		}
	}
	return out, nil
}
