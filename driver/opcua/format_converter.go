package opcua

import (
	"fmt"
	"strings"
	"time"

	"github.com/gopcua/opcua/ua"
)

const timeLayout = "2006-01-02 15:04:05.000"

// ConvData konvertiert die guten Samples in eine Map Name → Wert (JSON-Payload).
func ConvData(samples []Sample) map[string]interface{} {
	result := make(map[string]interface{}, len(samples))
	for _, s := range samples {
		if !s.Good {
			continue
		}
		result[s.Name] = ConvValue(s.Value)
	}
	return result
}

// ConvValue bildet OPC-UA-Typen auf JSON-taugliche Werte ab.
func ConvValue(v interface{}) interface{} {
	switch x := v.(type) {
	case *ua.LocalizedText:
		if x == nil {
			return nil
		}
		return x.Text
	case ua.LocalizedText:
		return x.Text
	case *ua.NodeID:
		return x.String()
	case *ua.QualifiedName:
		return x.Name
	case []byte:
		return fmt.Sprintf("%x", x)
	default:
		return v
	}
}

// FormatValue rendert einen Wert für Log-Ausgaben.
func FormatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case time.Time:
		return x.Format(timeLayout)
	case float32:
		return fmt.Sprintf("%f", x)
	case float64:
		return fmt.Sprintf("%f", x)
	case string:
		return x
	default:
		return fmt.Sprintf("%v", ConvValue(v))
	}
}

// FormatSamples rendert alle Samples eines Reads in eine Zeile, zeitbehaftete
// Werte mit ihrer Latenz.
func FormatSamples(samples []Sample) string {
	parts := make([]string, 0, len(samples))
	for _, s := range samples {
		if !s.Good {
			parts = append(parts, fmt.Sprintf("%s=<%s>", s.Name, s.Status))
			continue
		}
		p := s.Name + "=" + FormatValue(s.Value)
		if s.Latency != 0 {
			p += fmt.Sprintf(" (latency %v)", s.Latency.Round(time.Millisecond))
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, " , ")
}
