package domain

import (
	"strings"
	"time"
)

// ContainerSpec describes a container to start as part of a batch. It is read-only
// input once resolution begins.
type ContainerSpec struct {
	Name        string            `yaml:"name" json:"name"`
	Alias       string            `yaml:"alias,omitempty" json:"alias,omitempty"`
	Image       string            `yaml:"image" json:"image"`
	Ports       []string          `yaml:"ports,omitempty" json:"ports,omitempty"`
	Env         map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Volumes     []string          `yaml:"volumes,omitempty" json:"volumes,omitempty"`
	Links       []string          `yaml:"links,omitempty" json:"links,omitempty"`
	VolumesFrom []string          `yaml:"volumesFrom,omitempty" json:"volumesFrom,omitempty"`
	Cmd         *Arguments        `yaml:"cmd,omitempty" json:"cmd,omitempty"`
	Pull        *bool             `yaml:"pull,omitempty" json:"pull,omitempty"`
	ShowLogs    *bool             `yaml:"showLogs,omitempty" json:"showLogs,omitempty"`
	Wait        *WaitSpec         `yaml:"wait,omitempty" json:"wait,omitempty"`
}

// Dependencies returns the names this spec depends on, links first, then
// volumes-from, in declaration order and without duplicates.
func (s ContainerSpec) Dependencies() []string {
	var deps []string
	seen := make(map[string]bool)
	add := func(ref string) {
		if ref == "" || seen[ref] {
			return
		}
		seen[ref] = true
		deps = append(deps, ref)
	}
	for _, link := range s.Links {
		name, _ := SplitLink(link)
		add(name)
	}
	for _, from := range s.VolumesFrom {
		add(strings.TrimSpace(from))
	}
	return deps
}

// PullEnabled reports whether the image should be pulled when missing.
func (s ContainerSpec) PullEnabled() bool {
	return s.Pull == nil || *s.Pull
}

// SplitLink splits a link of the form "name[:alias]". The alias defaults to the
// name.
func SplitLink(link string) (name, alias string) {
	link = strings.TrimSpace(link)
	name, alias, found := strings.Cut(link, ":")
	if !found || alias == "" {
		alias = name
	}
	return name, alias
}

// WaitSpec configures how readiness of a started container is determined. An
// empty WaitSpec with Time == 0 means no wait.
type WaitSpec struct {
	// Time is the deadline in milliseconds when probes are configured, or a
	// plain pause when none are.
	Time int `yaml:"time,omitempty" json:"time,omitempty"`
	// URL is the legacy form of HTTP.URL.
	URL      string     `yaml:"url,omitempty" json:"url,omitempty"`
	HTTP     *HTTPProbe `yaml:"http,omitempty" json:"http,omitempty"`
	Log      string     `yaml:"log,omitempty" json:"log,omitempty"`
	Fail     string     `yaml:"fail,omitempty" json:"fail,omitempty"`
	Shutdown int        `yaml:"shutdown,omitempty" json:"shutdown,omitempty"`
	Settle   int        `yaml:"settle,omitempty" json:"settle,omitempty"`
}

// HTTPProbe configures an HTTP readiness probe.
type HTTPProbe struct {
	URL    string `yaml:"url" json:"url"`
	Method string `yaml:"method,omitempty" json:"method,omitempty"`
	Status string `yaml:"status,omitempty" json:"status,omitempty"`
}

// LogProbe configures a log pattern readiness probe.
type LogProbe struct {
	Success string
	Failure string
}

// HTTPProbe returns the effective HTTP probe, honoring the legacy URL field.
func (w *WaitSpec) HTTPProbe() *HTTPProbe {
	if w == nil {
		return nil
	}
	if w.HTTP != nil && w.HTTP.URL != "" {
		return w.HTTP
	}
	if w.URL != "" {
		return &HTTPProbe{URL: w.URL}
	}
	return nil
}

// LogProbe returns the configured log probe, or nil.
func (w *WaitSpec) LogProbe() *LogProbe {
	if w == nil || (w.Log == "" && w.Fail == "") {
		return nil
	}
	return &LogProbe{Success: w.Log, Failure: w.Fail}
}

// Deadline is the overall wait deadline. Zero means wait until a terminal
// condition.
func (w *WaitSpec) Deadline() time.Duration {
	if w == nil {
		return 0
	}
	return time.Duration(w.Time) * time.Millisecond
}

// ShutdownGrace is the time granted to the container between stop and kill.
func (w *WaitSpec) ShutdownGrace() time.Duration {
	if w == nil {
		return 0
	}
	return time.Duration(w.Shutdown) * time.Millisecond
}

// CreateRequest carries everything the engine needs to create a container.
// Links and VolumesFrom reference engine container names.
type CreateRequest struct {
	Spec          ContainerSpec
	ContainerName string
	Env           map[string]string
	Ports         []PortSpec
	Links         []string
	VolumesFrom   []string
	Command       []string
	Labels        map[string]string
}
