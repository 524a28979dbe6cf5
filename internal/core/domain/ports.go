package domain

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

// Property names double as ${NAME} substitution variables.
var propertyName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PortSpec is a parsed port mapping of the form
// "[hostIP:]<hostPort|property>:<containerPort>[/protocol]" or a bare
// "<containerPort>[/protocol]" which binds a dynamic host port.
type PortSpec struct {
	HostIP        string
	HostPort      int
	Property      string
	ContainerPort int
	Protocol      string
}

// Key is the engine port key, e.g. "8080/tcp".
func (p PortSpec) Key() string {
	return fmt.Sprintf("%d/%s", p.ContainerPort, p.Protocol)
}

// Dynamic reports whether the host port is assigned by the engine.
func (p PortSpec) Dynamic() bool {
	return p.HostPort == 0
}

// ParsePortSpec parses a single port mapping.
func ParsePortSpec(s string) (PortSpec, error) {
	spec := PortSpec{Protocol: "tcp"}
	raw := strings.TrimSpace(s)
	if raw == "" {
		return spec, fmt.Errorf("%w: empty port mapping", ErrInvalidSpec)
	}
	if body, proto, found := strings.Cut(raw, "/"); found {
		proto = strings.ToLower(strings.TrimSpace(proto))
		if proto != "tcp" && proto != "udp" {
			return spec, fmt.Errorf("%w: port mapping %q: unknown protocol %q", ErrInvalidSpec, s, proto)
		}
		spec.Protocol = proto
		raw = body
	}

	parts := strings.Split(raw, ":")
	if len(parts) > 3 {
		return spec, fmt.Errorf("%w: port mapping %q: too many components", ErrInvalidSpec, s)
	}
	containerPort, err := parsePort(parts[len(parts)-1])
	if err != nil {
		return spec, fmt.Errorf("%w: port mapping %q: %v", ErrInvalidSpec, s, err)
	}
	spec.ContainerPort = containerPort

	if len(parts) == 3 {
		if net.ParseIP(parts[0]) == nil {
			return spec, fmt.Errorf("%w: port mapping %q: invalid host ip %q", ErrInvalidSpec, s, parts[0])
		}
		spec.HostIP = parts[0]
	}
	if len(parts) >= 2 {
		host := strings.TrimSpace(parts[len(parts)-2])
		if port, err := parsePort(host); err == nil {
			spec.HostPort = port
		} else if host != "" {
			if !propertyName.MatchString(host) {
				return spec, fmt.Errorf("%w: port mapping %q: invalid property name %q", ErrInvalidSpec, s, host)
			}
			spec.Property = host
		}
	}
	return spec, nil
}

// ParsePortSpecs parses every mapping in order.
func ParsePortSpecs(specs []string) ([]PortSpec, error) {
	result := make([]PortSpec, 0, len(specs))
	for _, s := range specs {
		p, err := ParsePortSpec(s)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}

// PortBinding is a host binding captured from a started container.
type PortBinding struct {
	ContainerPort string `json:"container_port"`
	HostIP        string `json:"host_ip"`
	HostPort      int    `json:"host_port"`
}
