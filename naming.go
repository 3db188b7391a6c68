package otxray

import (
	"path"
	"runtime/debug"
	"strings"
)

// fallbackSegmentName is used when neither configuration, the Host header
// nor build info yield a name.
const fallbackSegmentName = "service"

// SegmentNamer decides the segment name for an inbound request.
type SegmentNamer interface {
	Name(host string) string
}

// FixedNamer names every segment the same.
type FixedNamer string

// Name returns the fixed name.
func (n FixedNamer) Name(string) string {
	return string(n)
}

// HostNamer names segments after the Host header, falling back to
// Fallback (or the build info default) when the header is empty.
type HostNamer struct {
	Fallback string
}

// Name returns the host or the fallback.
func (n HostNamer) Name(host string) string {
	if host = strings.TrimSpace(host); host != "" {
		return host
	}
	if n.Fallback != "" {
		return n.Fallback
	}

	return DefaultSegmentName()
}

// DynamicNamer names segments after the Host header when it matches Pattern
// (a path.Match glob such as "*.example.com"), and Fallback otherwise.
type DynamicNamer struct {
	Pattern  string
	Fallback string
}

// Name returns the host when it matches the pattern, else the fallback.
func (n DynamicNamer) Name(host string) string {
	host = strings.TrimSpace(host)
	if host != "" {
		if ok, err := path.Match(n.Pattern, host); err == nil && ok {
			return host
		}
	}
	if n.Fallback != "" {
		return n.Fallback
	}

	return DefaultSegmentName()
}

// ResolveName picks a segment name: the configured name wins, then the Host
// header, then [DefaultSegmentName].
func ResolveName(host, configured string) string {
	if configured != "" {
		return configured
	}

	return HostNamer{}.Name(host)
}

// DefaultSegmentName derives "<main module base>_<version>" from the binary's
// build info, or returns "service" when build info is unavailable.
func DefaultSegmentName() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Path == "" {
		return fallbackSegmentName
	}

	return segmentNameFromModule(info.Main.Path, info.Main.Version)
}

func segmentNameFromModule(modulePath, version string) string {
	name := path.Base(modulePath)
	if name == "" || name == "." || name == "/" {
		name = fallbackSegmentName
	}
	if version == "" || version == "(devel)" {
		version = "v1"
	}

	return name + "_" + version
}
