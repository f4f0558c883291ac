// Package cluster defines the cluster inventory and the topology contract
// used to enumerate nodes, resource groups and resources.
package cluster

import (
	"fmt"
)

// ClusterConfig defines one failover cluster the tool reports on.
type ClusterConfig struct {
	// Name is a unique identifier for this cluster (required).
	Name string `mapstructure:"name" yaml:"name"`

	// Environment describes the cluster's deployment environment (e.g., "production", "staging").
	Environment string `mapstructure:"environment" yaml:"environment"`

	// Labels are arbitrary key-value pairs carried into report metadata.
	Labels map[string]string `mapstructure:"labels" yaml:"labels"`

	// Address is the name or FQDN used to reach the cluster.
	// Defaults to Name when empty.
	Address string `mapstructure:"address" yaml:"address"`
}

// Target returns the address used to reach the cluster.
func (c *ClusterConfig) Target() string {
	if c.Address != "" {
		return c.Address
	}
	return c.Name
}

// Validate checks the ClusterConfig for required fields and valid values.
func (c *ClusterConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("cluster name is required")
	}

	if !isValidClusterName(c.Name) {
		return fmt.Errorf("cluster name %q is invalid: must contain only alphanumeric characters, hyphens, underscores, and dots", c.Name)
	}

	if c.Address != "" && !isValidAddress(c.Address) {
		return fmt.Errorf("cluster %s: address %q is invalid", c.Name, c.Address)
	}

	for key, value := range c.Labels {
		if key == "" {
			return fmt.Errorf("cluster %s: label key cannot be empty", c.Name)
		}
		if !isValidLabelKey(key) {
			return fmt.Errorf("cluster %s: invalid label key %q: must contain only alphanumeric characters, hyphens, underscores, dots, and slashes", c.Name, key)
		}
		if !isValidLabelValue(value) {
			return fmt.Errorf("cluster %s: invalid label value for key %q: must contain only alphanumeric characters, hyphens, underscores, and dots", c.Name, key)
		}
	}

	return nil
}

// ValidateName rejects names that cannot be a cluster name. Callers check
// untrusted names with it before they reach a topology collaborator.
func ValidateName(name string) error {
	if !isValidClusterName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// isValidClusterName accepts NetBIOS/DNS style names: alphanumerics,
// hyphens, underscores and dots.
func isValidClusterName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !(isAlnum(r) || r == '-' || r == '_' || r == '.') {
			return false
		}
	}
	return true
}

// isValidAddress accepts host names, FQDNs and IPv4/IPv6 literals.
func isValidAddress(addr string) bool {
	for _, r := range addr {
		if !(isAlnum(r) || r == '-' || r == '.' || r == ':' || r == '_') {
			return false
		}
	}
	return true
}

func isValidLabelKey(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		if !(isAlnum(r) || r == '-' || r == '_' || r == '.' || r == '/') {
			return false
		}
	}
	return true
}

func isValidLabelValue(value string) bool {
	// Empty values are allowed
	if value == "" {
		return true
	}
	for _, r := range value {
		if !(isAlnum(r) || r == '-' || r == '_' || r == '.') {
			return false
		}
	}
	return true
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
