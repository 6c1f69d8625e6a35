package sysinfo

import (
	"encoding/json"
	"errors"
	"runtime"
	"testing"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderUsesProbe(t *testing.T) {
	t.Parallel()

	calls := 0
	p := NewProvider("1.2.0", func() (*host.InfoStat, error) {
		calls++
		return &host.InfoStat{
			Hostname:        "devbox",
			OS:              "linux",
			Platform:        "ubuntu",
			PlatformFamily:  "debian",
			PlatformVersion: "24.04",
			KernelArch:      "x86_64",
		}, nil
	})

	info := p.Info()
	_ = p.Info()

	assert.Equal(t, 1, calls, "probe should run once")
	assert.Equal(t, "ubuntu", info.Platform)
	assert.Equal(t, "24.04", info.PlatformVersion)
	assert.Equal(t, "debian", info.Model)
	assert.Equal(t, "devbox", info.Hostname)
	assert.Equal(t, "1.2.0", info.Version)
}

func TestProviderProbeFailure(t *testing.T) {
	t.Parallel()

	p := NewProvider("", func() (*host.InfoStat, error) {
		return nil, errors.New("no /proc")
	})

	info := p.Info()
	assert.Equal(t, runtime.GOOS, info.Platform)
	assert.Equal(t, runtime.GOARCH, info.Arch)
	assert.Equal(t, UnknownValue, info.Model)
	assert.Equal(t, UnknownValue, info.Version)
}

func TestHeader(t *testing.T) {
	t.Parallel()

	d := DeviceInfo{Platform: "ios", Version: "8.0.5", Model: "iPhone 15", Hostname: "h"}

	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(d.Header()), &decoded))
	assert.Equal(t, map[string]string{"platform": "ios", "version": "8.0.5", "model": "iPhone 15"}, decoded)
	assert.Contains(t, d.UserAgent(), "iPhone 15 8.0.5")
}
