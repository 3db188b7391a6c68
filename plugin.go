package otxray

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrPluginUnavailable is returned by a plugin whose environment is not present.
var ErrPluginUnavailable = errors.New("otxray: plugin environment unavailable")

// ErrUnknownPlugin is returned for plugin names that are not built in.
var ErrUnknownPlugin = errors.New("otxray: unknown plugin")

// X-Ray origin values reported by the built-in plugins.
const (
	OriginEC2 = "AWS::EC2::Instance"
	OriginECS = "AWS::ECS::Container"
)

const (
	defaultIMDSEndpoint  = "http://169.254.169.254"
	defaultPluginTimeout = time.Second
)

// Plugin enriches every segment with environment metadata. Plugins run once
// during Setup; their results are stored under Name() in the segment's aws
// section.
type Plugin interface {
	Name() string
	Origin() string
	Collect(ctx context.Context) (map[string]any, error)
}

// HostPlugin records the hostname.
type HostPlugin struct{}

// Name returns "host".
func (HostPlugin) Name() string { return "host" }

// Origin returns "".
func (HostPlugin) Origin() string { return "" }

// Collect reads the hostname.
func (HostPlugin) Collect(context.Context) (map[string]any, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("otxray: read hostname: %w", err)
	}

	return map[string]any{"hostname": host}, nil
}

// StaticPlugin reports fixed values.
type StaticPlugin struct {
	Key        string
	OriginName string
	Values     map[string]any
}

// Name returns Key.
func (p StaticPlugin) Name() string { return p.Key }

// Origin returns OriginName.
func (p StaticPlugin) Origin() string { return p.OriginName }

// Collect returns Values.
func (p StaticPlugin) Collect(context.Context) (map[string]any, error) { return p.Values, nil }

// EC2Plugin reads instance identity from the EC2 instance metadata service
// using an IMDSv2 session token.
type EC2Plugin struct {
	Client   *resty.Client
	Endpoint string
}

// Name returns "ec2".
func (EC2Plugin) Name() string { return "ec2" }

// Origin returns [OriginEC2].
func (EC2Plugin) Origin() string { return OriginEC2 }

// Collect fetches the instance ID and availability zone.
func (p EC2Plugin) Collect(ctx context.Context) (map[string]any, error) {
	client := p.Client
	if client == nil {
		client = newPluginClient()
	}
	endpoint := strings.TrimRight(p.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultIMDSEndpoint
	}

	resp, err := client.R().
		SetContext(ctx).
		SetHeader("X-aws-ec2-metadata-token-ttl-seconds", "60").
		Put(endpoint + "/latest/api/token")
	if err != nil {
		return nil, fmt.Errorf("otxray: ec2 metadata token: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: ec2 metadata token status %d", ErrPluginUnavailable, resp.StatusCode())
	}
	token := resp.String()

	get := func(path string) (string, error) {
		r, err := client.R().
			SetContext(ctx).
			SetHeader("X-aws-ec2-metadata-token", token).
			Get(endpoint + "/latest/meta-data/" + path)
		if err != nil {
			return "", fmt.Errorf("otxray: ec2 metadata %s: %w", path, err)
		}
		if r.IsError() {
			return "", fmt.Errorf("%w: ec2 metadata %s status %d", ErrPluginUnavailable, path, r.StatusCode())
		}

		return strings.TrimSpace(r.String()), nil
	}

	instanceID, err := get("instance-id")
	if err != nil {
		return nil, err
	}
	zone, err := get("placement/availability-zone")
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"instance_id":       instanceID,
		"availability_zone": zone,
	}, nil
}

// ECSPlugin reads container metadata from the ECS task metadata endpoint.
// MetadataURI defaults to $ECS_CONTAINER_METADATA_URI_V4.
type ECSPlugin struct {
	Client      *resty.Client
	MetadataURI string
}

// Name returns "ecs".
func (ECSPlugin) Name() string { return "ecs" }

// Origin returns [OriginECS].
func (ECSPlugin) Origin() string { return OriginECS }

type ecsContainerMetadata struct {
	DockerID string `json:"DockerId"`
	Name     string `json:"Name"`
	Image    string `json:"Image"`
}

// Collect fetches the container ID, name and image.
func (p ECSPlugin) Collect(ctx context.Context) (map[string]any, error) {
	uri := p.MetadataURI
	if uri == "" {
		uri = os.Getenv("ECS_CONTAINER_METADATA_URI_V4")
	}
	if uri == "" {
		return nil, fmt.Errorf("%w: ECS_CONTAINER_METADATA_URI_V4 is not set", ErrPluginUnavailable)
	}

	client := p.Client
	if client == nil {
		client = newPluginClient()
	}

	resp, err := client.R().SetContext(ctx).Get(uri)
	if err != nil {
		return nil, fmt.Errorf("otxray: ecs metadata: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: ecs metadata status %d", ErrPluginUnavailable, resp.StatusCode())
	}

	var meta ecsContainerMetadata
	if err := json.Unmarshal(resp.Body(), &meta); err != nil {
		return nil, fmt.Errorf("otxray: decode ecs metadata: %w", err)
	}

	host, _ := os.Hostname()

	return map[string]any{
		"container":      host,
		"container_id":   meta.DockerID,
		"container_name": meta.Name,
		"image":          meta.Image,
	}, nil
}

func newPluginClient() *resty.Client {
	return resty.New().SetTimeout(defaultPluginTimeout)
}

// PluginsByName resolves built-in plugin names ("host", "ec2", "ecs").
func PluginsByName(names []string) ([]Plugin, error) {
	plugins := make([]Plugin, 0, len(names))
	for _, name := range names {
		switch strings.ToLower(name) {
		case "host":
			plugins = append(plugins, HostPlugin{})
		case "ec2":
			plugins = append(plugins, EC2Plugin{})
		case "ecs":
			plugins = append(plugins, ECSPlugin{})
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownPlugin, name)
		}
	}

	return plugins, nil
}

// collectPlugins runs each plugin once. Failures are logged and skipped.
// The first plugin that reports an origin sets it.
func collectPlugins(ctx context.Context, plugins []Plugin, logger Logger) (string, map[string]any) {
	var origin string
	aws := make(map[string]any)

	for _, p := range plugins {
		values, err := p.Collect(ctx)
		if err != nil {
			logger.Error("plugin failed", "plugin", p.Name(), "error", err)
			continue
		}
		if len(values) > 0 {
			aws[p.Name()] = values
		}
		if origin == "" {
			origin = p.Origin()
		}
	}

	return origin, aws
}
