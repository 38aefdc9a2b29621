// Package catalog aggregates the tools and resources of every connected
// provider into one flat, collision-free namespace of callable functions.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vitalink/vitalink/internal/session"
)

// Separator joins a provider name and a local capability name. Because every
// qualified name carries its provider prefix, two providers may expose the
// same local name without colliding.
const Separator = "__"

// Local names of the synthesized meta-capabilities.
const (
	listResourcesName  = "listResources"
	readResourcePrefix = "readResource" + Separator
)

// Descriptor is one callable function offered to the model.
type Descriptor struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// RouteKind discriminates the RoutedCall union.
type RouteKind int

const (
	// RouteTool invokes a provider tool.
	RouteTool RouteKind = iota
	// RouteListResources lists a provider's resources from the cached catalog.
	RouteListResources
	// RouteReadResource reads one provider resource.
	RouteReadResource
)

// RoutedCall is the parsed form of a qualified function name.
type RoutedCall struct {
	Provider string
	Kind     RouteKind
	// Tool is set for RouteTool, Resource for RouteReadResource.
	Tool     string
	Resource string
}

// Catalog caches, per provider, the advertised tools and resources. Entries
// for a provider are replaced wholesale when it (re)connects and are never
// trimmed while its session is live.
type Catalog struct {
	order     []string
	tools     map[string][]session.ToolDescriptor
	resources map[string][]session.ResourceDescriptor
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{
		tools:     make(map[string][]session.ToolDescriptor),
		resources: make(map[string][]session.ResourceDescriptor),
	}
}

// Qualify namespaces a local capability name under its provider.
func Qualify(provider, local string) string {
	return provider + Separator + local
}

// SetProvider records (or rebuilds) a provider's advertised capabilities.
func (c *Catalog) SetProvider(name string, tools []session.ToolDescriptor, resources []session.ResourceDescriptor) {
	if _, known := c.tools[name]; !known {
		c.order = append(c.order, name)
	}
	c.tools[name] = append([]session.ToolDescriptor(nil), tools...)
	c.resources[name] = append([]session.ResourceDescriptor(nil), resources...)
}

// RemoveProvider drops a provider's entries after its session is gone.
func (c *Catalog) RemoveProvider(name string) {
	delete(c.tools, name)
	delete(c.resources, name)
	for i, existing := range c.order {
		if existing == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Providers returns the known provider names in connect order.
func (c *Catalog) Providers() []string {
	return append([]string(nil), c.order...)
}

// Resources returns the cached resource descriptors for one provider.
func (c *Catalog) Resources(provider string) ([]session.ResourceDescriptor, bool) {
	resources, ok := c.resources[provider]
	return resources, ok
}

// Descriptors flattens the whole catalog into chat-function descriptors: one
// per tool, plus a listResources meta-function per provider, plus a
// readResource function per advertised resource. Resources are second-class
// in the model-facing function interface and must be lifted this way to be
// invokable at all.
func (c *Catalog) Descriptors() []Descriptor {
	var descriptors []Descriptor
	for _, provider := range c.order {
		for _, tool := range c.tools[provider] {
			descriptors = append(descriptors, Descriptor{
				Name:        Qualify(provider, tool.Name),
				Description: tool.Description,
				Parameters:  objectSchema(tool.InputSchema),
			})
		}
		descriptors = append(descriptors, Descriptor{
			Name:        Qualify(provider, listResourcesName),
			Description: fmt.Sprintf("List the resources available from the %s provider.", provider),
			Parameters:  objectSchema(nil),
		})
		for _, resource := range c.resources[provider] {
			descriptors = append(descriptors, Descriptor{
				Name:        Qualify(provider, readResourcePrefix+resource.Name),
				Description: resource.Description,
				Parameters:  objectSchema(resource.ParametersSchema),
			})
		}
	}
	return descriptors
}

// ResourceSummary renders a provider's cached resource list as text, for the
// listResources meta-capability. No provider round trip happens here.
func (c *Catalog) ResourceSummary(provider string) string {
	resources, ok := c.resources[provider]
	if !ok {
		return fmt.Sprintf("Provider %q is not connected.", provider)
	}
	if len(resources) == 0 {
		return fmt.Sprintf("Provider %q has no resources.", provider)
	}
	lines := make([]string, 0, len(resources)+1)
	lines = append(lines, fmt.Sprintf("Resources from %q:", provider))
	for _, r := range resources {
		line := "- " + r.Name
		if r.Description != "" {
			line += ": " + r.Description
		}
		if len(r.ParametersSchema) > 0 {
			line += fmt.Sprintf(" (parameters: %s)", schemaPropertyNames(r.ParametersSchema))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// ParseCall resolves one qualified function name into the routed-call union.
func ParseCall(qualified string) (RoutedCall, error) {
	provider, rest, found := strings.Cut(qualified, Separator)
	if !found || provider == "" || rest == "" {
		return RoutedCall{}, fmt.Errorf("malformed qualified name %q", qualified)
	}

	switch {
	case rest == listResourcesName:
		return RoutedCall{Provider: provider, Kind: RouteListResources}, nil
	case strings.HasPrefix(rest, readResourcePrefix):
		resource := rest[len(readResourcePrefix):]
		if resource == "" {
			return RoutedCall{}, fmt.Errorf("malformed qualified name %q", qualified)
		}
		return RoutedCall{Provider: provider, Kind: RouteReadResource, Resource: resource}, nil
	default:
		return RoutedCall{Provider: provider, Kind: RouteTool, Tool: rest}, nil
	}
}

func objectSchema(schema map[string]any) map[string]any {
	if len(schema) > 0 {
		return schema
	}
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func schemaPropertyNames(schema map[string]any) string {
	properties, ok := schema["properties"].(map[string]any)
	if !ok || len(properties) == 0 {
		return "none"
	}
	names := make([]string, 0, len(properties))
	for name := range properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
