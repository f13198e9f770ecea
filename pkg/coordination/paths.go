package coordination

import (
	"fmt"
	"strings"
)

// Fixed coordination-store layout. All control-plane state lives under two
// roots: instance-wide state under /instance, per-tenant state under
// /tenant/<tenantId>.
const (
	// InstancePath marks the instance as registered. Presence-only.
	InstancePath = "/instance"

	// InstanceBootstrappedPath is the instance bootstrap marker. Created
	// strictly after all other bootstrap side effects.
	InstanceBootstrappedPath = "/instance/bootstrapped"

	// TenantsPath is the root of all per-tenant subtrees.
	TenantsPath = "/tenant"

	bootstrappedNode = "bootstrapped"
)

// InstanceTemplatePath returns the root of the copied template tree for the
// given template: /instance/<templateId>.
func InstanceTemplatePath(templateID string) string {
	return InstancePath + "/" + templateID
}

// InstanceTemplateFilePath returns the store path of a single copied
// template file: /instance/<templateId>/<relPath>.
func InstanceTemplateFilePath(templateID, relPath string) string {
	return InstanceTemplatePath(templateID) + "/" + strings.TrimPrefix(relPath, "/")
}

// TenantPath returns the root of a tenant's subtree: /tenant/<tenantId>.
func TenantPath(tenantID string) string {
	return TenantsPath + "/" + tenantID
}

// TenantBootstrappedPath returns a tenant's bootstrap marker path:
// /tenant/<tenantId>/bootstrapped.
func TenantBootstrappedPath(tenantID string) string {
	return TenantPath(tenantID) + "/" + bootstrappedNode
}

// TenantTemplatePath returns the root of the copied template tree inside a
// tenant's subtree: /tenant/<tenantId>/<templateId>.
func TenantTemplatePath(tenantID, templateID string) string {
	return TenantPath(tenantID) + "/" + templateID
}

// CleanPath validates and normalizes a coordination path. Paths must be
// absolute, use single slashes, and contain no empty or relative segments.
// A single trailing slash is stripped.
func CleanPath(path string) (string, error) {
	if path == "" || path[0] != '/' {
		return "", fmt.Errorf("%w: %q must be absolute", ErrInvalidPath, path)
	}
	if path == "/" {
		return "", fmt.Errorf("%w: %q has no segments", ErrInvalidPath, path)
	}

	path = strings.TrimSuffix(path, "/")
	for _, seg := range strings.Split(path[1:], "/") {
		switch seg {
		case "":
			return "", fmt.Errorf("%w: %q contains an empty segment", ErrInvalidPath, path)
		case ".", "..":
			return "", fmt.Errorf("%w: %q contains a relative segment", ErrInvalidPath, path)
		}
	}
	return path, nil
}
