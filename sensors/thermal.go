package sensors

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/host"
)

// DefaultThermalZone ist die Temperaturdatei des ersten Thermal-Zone-Treibers (Raspberry Pi und die meisten ARM-Boards).
const DefaultThermalZone = "/sys/class/thermal/thermal_zone0/temp"

var hostTemperatures = host.SensorsTemperatures

// ReadTemperature liest Milligrad Celsius aus einer Thermal-Zone-Datei und liefert Grad Celsius.
func ReadTemperature(path string) (float32, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return parseMilliCelsius(raw)
}

func parseMilliCelsius(raw []byte) (float32, error) {
	s := strings.TrimSpace(string(raw))
	milli, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid thermal reading %q: %v", s, err)
	}
	return float32(milli) / 1000, nil
}

// Temperature liest zuerst die Thermal-Zone-Datei und fällt auf die
// Sensoren von gopsutil zurück, wenn die Datei nicht vorhanden ist.
func Temperature(path string) (float32, error) {
	if path == "" {
		path = DefaultThermalZone
	}
	t, err := ReadTemperature(path)
	if err == nil {
		return t, nil
	}
	if !os.IsNotExist(err) {
		return 0, err
	}

	stats, herr := hostTemperatures()
	for _, st := range stats {
		if st.Temperature > 0 {
			return float32(st.Temperature), nil
		}
	}
	if herr != nil {
		return 0, fmt.Errorf("no thermal zone at %s and no host sensors: %v", path, herr)
	}
	return 0, fmt.Errorf("no thermal zone at %s and no host sensors", path)
}
