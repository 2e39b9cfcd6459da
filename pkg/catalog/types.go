// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package catalog defines the persisted records describing MCP servers and
// the catalog items they are installed from. Records are created and edited
// by the surrounding application; this package only reads them.
package catalog

import (
	"fmt"
)

// ServerType identifies how a catalog item's server runs.
type ServerType string

const (
	// ServerTypeLocal marks servers that run as workloads managed by this
	// runtime.
	ServerTypeLocal ServerType = "local"

	// ServerTypeRemote marks servers reached over the network and never
	// deployed by this runtime.
	ServerTypeRemote ServerType = "remote"
)

// EnvVarType is the declared type of a catalog environment variable.
type EnvVarType string

const (
	// EnvVarTypePlainText is a literal environment value.
	EnvVarTypePlainText EnvVarType = "plain_text"

	// EnvVarTypeSecret is a value stored in the managed secret object and
	// referenced (or mounted) rather than inlined.
	EnvVarTypeSecret EnvVarType = "secret"

	// EnvVarTypeBoolean is a boolean environment value.
	EnvVarTypeBoolean EnvVarType = "boolean"

	// EnvVarTypeNumber is a numeric environment value.
	EnvVarTypeNumber EnvVarType = "number"
)

// ServerRecord is the persisted identity of one installed MCP server.
type ServerRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// CatalogItemID links to the catalog item the server was installed
	// from. Empty for ad-hoc servers configured entirely by the caller.
	CatalogItemID string `json:"catalog_item_id,omitempty"`

	// SecretBundleID is the opaque id of the server's secret bundle in the
	// vault. Empty when the server has no stored secrets.
	SecretBundleID string `json:"secret_bundle_id,omitempty"`
}

// CatalogItem declares how a server from the catalog is deployed.
type CatalogItem struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	ServerType ServerType `json:"server_type"`

	// LocalConfig is present for local servers and carries the container
	// configuration.
	LocalConfig *LocalConfig `json:"local_config,omitempty"`

	// DeploymentSpecYAML is an optional user-supplied override template for
	// the rendered deployment. When present and parseable it takes
	// precedence over config-based rendering.
	DeploymentSpecYAML string `json:"deployment_spec_yaml,omitempty"`
}

// IsLocal reports whether the catalog item describes a locally deployed
// server.
func (c *CatalogItem) IsLocal() bool {
	return c != nil && c.ServerType == ServerTypeLocal && c.LocalConfig != nil
}

// LocalConfig is the container configuration of a local catalog item.
type LocalConfig struct {
	Command        string                          `json:"command,omitempty"`
	Args           []string                        `json:"args,omitempty"`
	DockerImage    string                          `json:"docker_image,omitempty"`
	Transport      string                          `json:"transport,omitempty"`
	HTTPPort       int                             `json:"http_port,omitempty"`
	HTTPPath       string                          `json:"http_path,omitempty"`
	NodePort       int                             `json:"node_port,omitempty"`
	ServiceAccount string                          `json:"service_account,omitempty"`
	Environment    []EnvironmentVariableDefinition `json:"environment,omitempty"`
}

// EnvironmentVariableDefinition declares one environment variable of a
// catalog item.
type EnvironmentVariableDefinition struct {
	Key  string     `json:"key"`
	Type EnvVarType `json:"type"`

	// PromptOnInstallation marks variables whose values are collected from
	// the caller at install time instead of being declared statically.
	PromptOnInstallation bool `json:"prompt_on_installation,omitempty"`

	// Value is the static value. It may contain ${user_config.KEY}
	// placeholders resolved against caller-supplied values.
	Value string `json:"value,omitempty"`

	// Mounted exposes a secret as a file instead of an environment
	// variable. Only valid for secret variables.
	Mounted bool `json:"mounted,omitempty"`

	Required    bool   `json:"required,omitempty"`
	Description string `json:"description,omitempty"`
}

// Validate checks the structural invariants of the definition.
func (d *EnvironmentVariableDefinition) Validate() error {
	if d.Key == "" {
		return fmt.Errorf("environment variable definition has no key")
	}
	if d.Mounted && d.Type != EnvVarTypeSecret {
		return fmt.Errorf("environment variable %s: mounted=true requires type=secret, got %s", d.Key, d.Type)
	}
	return nil
}

// IsSecret reports whether the variable's value belongs in the managed
// secret object.
func (d *EnvironmentVariableDefinition) IsSecret() bool {
	return d.Type == EnvVarTypeSecret
}
