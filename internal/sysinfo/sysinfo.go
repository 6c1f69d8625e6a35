// Package sysinfo describes the device the application runs on. The result is
// sent with every API request and embedded in error reports.
package sysinfo

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/host"
)

// UnknownValue is used for fields the host could not report.
const UnknownValue = "unknown"

// DeviceInfo is the subset of host facts the backend cares about
type DeviceInfo struct {
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platformVersion,omitempty"`
	System          string `json:"system"`
	Arch            string `json:"arch"`
	Model           string `json:"model"`
	Hostname        string `json:"hostname,omitempty"`
	Version         string `json:"version"`
}

// Header renders the X-Device-Info header value: {platform, version, model}.
func (d DeviceInfo) Header() string {
	data, err := json.Marshal(struct {
		Platform string `json:"platform"`
		Version  string `json:"version"`
		Model    string `json:"model"`
	}{d.Platform, d.Version, d.Model})
	if err != nil {
		return "{}"
	}
	return string(data)
}

// UserAgent renders a compact description used in error reports.
func (d DeviceInfo) UserAgent() string {
	return fmt.Sprintf("%s %s (%s; %s/%s)", d.Model, d.Version, d.Platform, d.System, d.Arch)
}

// Probe returns raw host information.
type Probe func() (*host.InfoStat, error)

// Provider caches the device description for the process lifetime
type Provider struct {
	appVersion string
	probe      Probe

	once sync.Once
	info DeviceInfo
}

// NewProvider creates a provider reporting appVersion as the client version.
// A nil probe uses gopsutil's host.Info.
func NewProvider(appVersion string, probe Probe) *Provider {
	if probe == nil {
		probe = host.Info
	}
	return &Provider{appVersion: appVersion, probe: probe}
}

// Info returns the cached device description, collecting it on first use.
// Probe failures degrade to runtime values rather than erroring.
func (p *Provider) Info() DeviceInfo {
	p.once.Do(func() {
		p.info = p.collect()
	})
	return p.info
}

func (p *Provider) collect() DeviceInfo {
	info := DeviceInfo{
		Platform: runtime.GOOS,
		System:   runtime.GOOS,
		Arch:     runtime.GOARCH,
		Model:    UnknownValue,
		Version:  p.appVersion,
	}
	if info.Version == "" {
		info.Version = UnknownValue
	}
	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}

	stat, err := p.probe()
	if err != nil || stat == nil {
		return info
	}
	if stat.Platform != "" {
		info.Platform = stat.Platform
	}
	info.PlatformVersion = stat.PlatformVersion
	if stat.OS != "" {
		info.System = stat.OS
	}
	if stat.KernelArch != "" {
		info.Arch = stat.KernelArch
	}
	if stat.VirtualizationSystem != "" {
		info.Model = stat.VirtualizationSystem
	} else if stat.PlatformFamily != "" {
		info.Model = stat.PlatformFamily
	}
	if stat.Hostname != "" {
		info.Hostname = stat.Hostname
	}
	return info
}
