package sensors

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusyPercent(t *testing.T) {
	prev := cpu.TimesStat{User: 100, System: 50, Idle: 850}
	cur := cpu.TimesStat{User: 130, System: 70, Idle: 900}

	busy, ok := busyPercent(prev, cur)
	require.True(t, ok)
	// Gesamt-Delta 100, Idle-Delta 50
	assert.InDelta(t, 50.0, busy, 1e-9)
}

func TestBusyPercentNoProgress(t *testing.T) {
	s := cpu.TimesStat{User: 1, Idle: 1}
	_, ok := busyPercent(s, s)
	assert.False(t, ok)
}

func TestCPUSamplerKeepsPreviousSample(t *testing.T) {
	readings := []cpu.TimesStat{
		{User: 10, Idle: 90},
		{User: 40, Idle: 160},  // +30 belegt, +70 idle
		{User: 40, Idle: 160},  // kein Fortschritt
		{User: 140, Idle: 160}, // voll ausgelastet
	}
	i := 0
	s := &CPUSampler{times: func() (cpu.TimesStat, error) {
		r := readings[i]
		i++
		return r, nil
	}}

	first, err := s.Sample()
	require.NoError(t, err)
	assert.InDelta(t, 10.0, first, 1e-9)

	second, err := s.Sample()
	require.NoError(t, err)
	assert.InDelta(t, 30.0, second, 1e-9)

	third, err := s.Sample()
	require.NoError(t, err)
	assert.InDelta(t, 30.0, third, 1e-9, "no elapsed jiffies repeats the last value")

	fourth, err := s.Sample()
	require.NoError(t, err)
	assert.InDelta(t, 100.0, fourth, 1e-9)
}

func TestCPUSamplerError(t *testing.T) {
	s := &CPUSampler{times: func() (cpu.TimesStat, error) {
		return cpu.TimesStat{}, errors.New("boom")
	}}
	_, err := s.Sample()
	assert.Error(t, err)
}

func TestReadTemperature(t *testing.T) {
	path := filepath.Join(t.TempDir(), "temp")
	require.NoError(t, os.WriteFile(path, []byte("48312\n"), 0644))

	temp, err := ReadTemperature(path)
	require.NoError(t, err)
	assert.InDelta(t, 48.312, temp, 1e-4)
}

func TestReadTemperatureInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "temp")
	require.NoError(t, os.WriteFile(path, []byte("hot"), 0644))

	_, err := ReadTemperature(path)
	assert.Error(t, err)
}

func TestTemperatureFallsBackToHostSensors(t *testing.T) {
	orig := hostTemperatures
	defer func() { hostTemperatures = orig }()

	hostTemperatures = func() ([]host.TemperatureStat, error) {
		return []host.TemperatureStat{{SensorKey: "coretemp", Temperature: 41.5}}, nil
	}

	temp, err := Temperature(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.InDelta(t, 41.5, temp, 1e-4)

	hostTemperatures = func() ([]host.TemperatureStat, error) {
		return nil, errors.New("not supported")
	}
	_, err = Temperature(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestCounter(t *testing.T) {
	c := NewCounter(20)
	assert.Equal(t, 21.0, c.Next())
	assert.Equal(t, 22.0, c.Next())
	assert.Equal(t, 22.0, c.Value())
}
