// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package runtime hosts the process-wide registry of MCP server
// deployments. The manager bootstraps the cluster connection, fans
// start/stop operations out across all configured servers, lazy-loads
// controllers for servers created by peer replicas and aggregates status.
package runtime

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/stacklok/mcpruntime/pkg/catalog"
	"github.com/stacklok/mcpruntime/pkg/deployment"
	"github.com/stacklok/mcpruntime/pkg/environment"
	"github.com/stacklok/mcpruntime/pkg/errors"
	"github.com/stacklok/mcpruntime/pkg/k8s"
	"github.com/stacklok/mcpruntime/pkg/logger"
	"github.com/stacklok/mcpruntime/pkg/secrets"
	"github.com/stacklok/mcpruntime/pkg/templates"
	"github.com/stacklok/mcpruntime/pkg/transport"
)

// Status is the overall runtime status.
type Status string

const (
	// StatusNotInitialized means Start has not run yet.
	StatusNotInitialized Status = "not_initialized"

	// StatusInitializing means Start is in progress.
	StatusInitializing Status = "initializing"

	// StatusRunning means the manager is serving operations.
	StatusRunning Status = "running"

	// StatusError means bootstrap failed; all operations short-circuit.
	StatusError Status = "error"

	// StatusStopped means Shutdown ran.
	StatusStopped Status = "stopped"
)

// SessionInvalidator clears HTTP session state tied to a server, called
// before a restart so clients do not hit stale sessions.
type SessionInvalidator interface {
	InvalidateSessions(serverID string)
}

// Summary aggregates the runtime status with every tracked server.
type Summary struct {
	Status  Status              `json:"status"`
	Message string              `json:"message,omitempty"`
	Servers []deployment.Status `json:"servers"`
}

// Manager is the process-wide registry of deployment controllers, keyed by
// logical server id. All collaborators are injected; a Manager whose
// cluster connection failed at construction stays inert rather than
// panicking.
type Manager struct {
	cfg       Config
	store     catalog.Store
	vault     secrets.Vault
	sessions  SessionInvalidator
	clientset kubernetes.Interface
	namespace string
	inCluster bool
	enabled   bool

	mu          sync.Mutex
	status      Status
	message     string
	controllers map[string]*deployment.Controller

	// Node scheduling hints inherited from the manager's own pod, fetched
	// once during Start and passed into every rendered deployment.
	nodeSelector map[string]string
	affinity     *corev1.Affinity
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithSessionInvalidator wires the session store hook used on restart.
func WithSessionInvalidator(s SessionInvalidator) ManagerOption {
	return func(m *Manager) { m.sessions = s }
}

// WithClientset injects a preconfigured cluster client, primarily for
// tests. inCluster tells the manager which endpoint and exposure strategy
// to use.
func WithClientset(clientset kubernetes.Interface, inCluster bool) ManagerOption {
	return func(m *Manager) {
		m.clientset = clientset
		m.inCluster = inCluster
		m.enabled = true
	}
}

// NewManager builds the manager and establishes the cluster connection.
// Connection failures are contained: the returned manager reports
// StatusError and every operation returns a not-configured error, so the
// surrounding process keeps running.
func NewManager(cfg Config, store catalog.Store, vault secrets.Vault, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:         cfg,
		store:       store,
		vault:       vault,
		status:      StatusNotInitialized,
		controllers: make(map[string]*deployment.Controller),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.clientset == nil {
		clientset, _, err := k8s.NewClient(cfg.KubeconfigPath)
		if err != nil {
			logger.Errorf("Kubernetes connection unavailable, runtime disabled: %v", err)
			m.status = StatusError
			m.message = err.Error()
			return m
		}
		m.clientset = clientset
		m.inCluster = k8s.InCluster()
		m.enabled = true
	}

	if cfg.Namespace != "" {
		m.namespace = cfg.Namespace
	} else {
		m.namespace = k8s.GetCurrentNamespace()
	}
	return m
}

// Enabled reports whether the manager has a working cluster connection.
func (m *Manager) Enabled() bool { return m.enabled }

// Namespace returns the namespace managed deployments live in.
func (m *Manager) Namespace() string { return m.namespace }

func (m *Manager) setStatus(status Status, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
	m.message = message
}

// notConfigured is the short-circuit error returned when bootstrap failed.
func (m *Manager) notConfigured() error {
	return errors.NewNotConfiguredError(
		"kubernetes runtime is not configured; check cluster credentials")
}

// IsAvailable reports whether the cluster API answers a trivial list call.
func (m *Manager) IsAvailable(ctx context.Context) bool {
	if !m.enabled {
		return false
	}
	_, err := m.clientset.AppsV1().Deployments(m.namespace).List(ctx, metav1.ListOptions{Limit: 1})
	return err == nil
}

// Start verifies connectivity, caches the manager's own scheduling hints
// and starts every server backed by a local catalog item. Individual
// failures are logged and left visible in status; they never abort the
// batch.
func (m *Manager) Start(ctx context.Context) error {
	if !m.enabled {
		m.setStatus(StatusError, "not configured")
		return m.notConfigured()
	}
	m.setStatus(StatusInitializing, "")

	if _, err := m.clientset.AppsV1().Deployments(m.namespace).
		List(ctx, metav1.ListOptions{Limit: 1}); err != nil {
		m.setStatus(StatusError, err.Error())
		return errors.NewConfigurationError("kubernetes connectivity check failed", err)
	}

	m.fetchSchedulingHints(ctx)

	records, err := m.store.FindAllServers(ctx)
	if err != nil {
		m.setStatus(StatusError, err.Error())
		return fmt.Errorf("failed to load server records: %w", err)
	}

	batchID := uuid.NewString()
	logger.Infof("Starting %d configured servers (batch %s)", len(records), batchID)

	group, groupCtx := errgroup.WithContext(ctx)
	for _, record := range records {
		record := record
		group.Go(func() error {
			item, err := m.localCatalogItem(groupCtx, record)
			if err != nil || item == nil {
				return nil
			}
			if err := m.StartServer(groupCtx, record.ID, nil); err != nil {
				// The controller stays registered in its failed state so
				// the failure is visible in status listings.
				logger.Errorf("Failed to start server %s (%s) in batch %s: %v",
					record.Name, record.ID, batchID, err)
			}
			return nil
		})
	}
	_ = group.Wait()

	m.setStatus(StatusRunning, "")
	return nil
}

// fetchSchedulingHints reads the manager's own pod and caches its node
// selector and affinity so managed servers schedule alongside it. Absence
// is tolerated.
func (m *Manager) fetchSchedulingHints(ctx context.Context) {
	podName := m.cfg.PodName
	if podName == "" {
		podName, _ = os.Hostname()
	}
	if podName == "" {
		return
	}

	pod, err := m.clientset.CoreV1().Pods(m.namespace).Get(ctx, podName, metav1.GetOptions{})
	if err != nil {
		logger.Debugf("Own pod %s not found, no scheduling hints inherited: %v", podName, err)
		return
	}

	m.mu.Lock()
	m.nodeSelector = pod.Spec.NodeSelector
	m.affinity = pod.Spec.Affinity
	m.mu.Unlock()
}

// SetSchedulingHints injects scheduling hints directly, replacing whatever
// Start fetched. Exposed for tests and for callers embedding the manager.
func (m *Manager) SetSchedulingHints(nodeSelector map[string]string, affinity *corev1.Affinity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodeSelector = nodeSelector
	m.affinity = affinity
}

// localCatalogItem resolves a record's catalog item, returning nil for
// records without one or with a non-local type.
func (m *Manager) localCatalogItem(ctx context.Context, record *catalog.ServerRecord) (*catalog.CatalogItem, error) {
	if record.CatalogItemID == "" {
		return nil, nil
	}
	item, err := m.store.FindCatalogItemByID(ctx, record.CatalogItemID)
	if err != nil {
		return nil, err
	}
	if !item.IsLocal() {
		return nil, nil
	}
	return item, nil
}

// register inserts the controller if the id is untracked and returns the
// tracked instance either way, so concurrent callers never race two
// controllers for the same server.
func (m *Manager) register(id string, controller *deployment.Controller) *deployment.Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.controllers[id]; ok {
		return existing
	}
	m.controllers[id] = controller
	return controller
}

func (m *Manager) lookup(id string) *deployment.Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.controllers[id]
}

func (m *Manager) deregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.controllers, id)
}

// StartServer resolves a server's configuration and brings its workload
// up. The controller is registered before any step that can fail, so
// status queries see the attempt in a failed state rather than losing it.
func (m *Manager) StartServer(ctx context.Context, serverID string, overrides map[string]string) error {
	if !m.enabled {
		return m.notConfigured()
	}

	record, err := m.store.FindServerByID(ctx, serverID)
	if err != nil {
		return fmt.Errorf("failed to load server %s: %w", serverID, err)
	}
	if record == nil {
		return errors.NewServerNotFoundError(fmt.Sprintf("server %s does not exist", serverID), nil)
	}

	item, err := m.localCatalogItem(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to load catalog item for server %s: %w", serverID, err)
	}
	if item == nil {
		return errors.NewConfigurationError(
			fmt.Sprintf("server %s is not backed by a local catalog item", serverID), nil)
	}

	local := item.LocalConfig
	transportType, transportErr := transport.ParseType(local.Transport)
	transportCfg := transport.Config{
		Type:     transportType,
		Port:     local.HTTPPort,
		Path:     local.HTTPPath,
		NodePort: local.NodePort,
	}

	// An invalid transport still gets a registered controller below; the
	// zero transport type serves as the placeholder.
	controller := m.register(record.ID, deployment.NewController(
		m.clientset, m.namespace, record.ID, record.Name, transportCfg, m.inCluster,
		deployment.WithPolling(m.cfg.ReadyMaxAttempts, m.cfg.ReadyInterval),
		deployment.WithNodeHost(m.cfg.NodeHost),
	))
	if transportErr != nil {
		return m.failStart(controller, errors.NewConfigurationError(
			fmt.Sprintf("server %s has an invalid transport", record.Name), transportErr))
	}

	bundle, err := m.resolveSecretBundle(ctx, record, item)
	if err != nil {
		return m.failStart(controller, err)
	}

	spec, resolution, err := m.prepare(record, item, overrides, bundle, controller, transportCfg)
	if err != nil {
		return m.failStart(controller, err)
	}

	if err := m.ensureManagedSecret(ctx, controller.SecretName(), resolution.SecretData); err != nil {
		return m.failStart(controller, err)
	}

	return controller.StartOrCreate(ctx, spec)
}

// failStart marks the registered controller failed and passes the error
// through.
func (m *Manager) failStart(controller *deployment.Controller, err error) error {
	controller.MarkFailed(err)
	return err
}

// resolveSecretBundle fetches the server's vault bundle and merges in
// static catalog secret values it does not already carry, covering
// reinstallation after catalog edits.
func (m *Manager) resolveSecretBundle(
	ctx context.Context,
	record *catalog.ServerRecord,
	item *catalog.CatalogItem,
) (map[string]string, error) {
	bundle := map[string]string{}
	if record.SecretBundleID != "" && m.vault != nil {
		fetched, err := m.vault.GetSecretByID(ctx, record.SecretBundleID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch secret bundle for server %s: %w", record.ID, err)
		}
		for k, v := range fetched {
			bundle[k] = v
		}
	}

	for _, def := range item.LocalConfig.Environment {
		if def.IsSecret() && !def.PromptOnInstallation && def.Value != "" {
			if _, present := bundle[def.Key]; !present {
				bundle[def.Key] = def.Value
			}
		}
	}
	return bundle, nil
}

// prepare resolves the environment and renders the deployment spec for
// one server.
func (m *Manager) prepare(
	record *catalog.ServerRecord,
	item *catalog.CatalogItem,
	overrides map[string]string,
	bundle map[string]string,
	controller *deployment.Controller,
	transportCfg transport.Config,
) (*appsv1.Deployment, *environment.Resolution, error) {
	local := item.LocalConfig

	image := local.DockerImage
	if image == "" {
		image = m.cfg.DefaultImage
	}
	if image == "" {
		return nil, nil, errors.NewConfigurationError(
			fmt.Sprintf("server %s has no container image configured", record.Name), nil)
	}

	resolution := environment.Resolve(environment.Input{
		Definitions:    local.Environment,
		Overrides:      overrides,
		ConfigValues:   overrides,
		SecretBundle:   bundle,
		SecretName:     controller.SecretName(),
		InCluster:      m.inCluster,
		HostBridgeHost: m.cfg.HostBridgeHost,
	})

	m.mu.Lock()
	nodeSelector, affinity := m.nodeSelector, m.affinity
	m.mu.Unlock()

	renderCtx := &templates.Context{
		DeploymentName:    controller.Name(),
		ServerID:          record.ID,
		ServerName:        record.Name,
		Namespace:         m.namespace,
		DockerImage:       image,
		SecretName:        controller.SecretName(),
		Command:           local.Command,
		Args:              local.Args,
		ServiceAccount:    local.ServiceAccount,
		Transport:         transportCfg,
		EnvVars:           resolution.EnvVars,
		MountedSecretKeys: resolution.MountedSecretKeys,
		NodeSelector:      nodeSelector,
		Affinity:          affinity,
	}

	spec := renderSpec(item, renderCtx, resolution)
	return spec, resolution, nil
}

// renderSpec prefers the catalog item's override template and falls back
// to config-based rendering when the template is absent or unparseable.
func renderSpec(item *catalog.CatalogItem, renderCtx *templates.Context, resolution *environment.Resolution) *appsv1.Deployment {
	if item.DeploymentSpecYAML != "" {
		if spec := templates.RenderFromOverride(
			item.DeploymentSpecYAML, renderCtx,
			resolution.PlainValues, resolution.HasSecretValue,
		); spec != nil {
			return spec
		}
	}
	return templates.RenderFromConfig(renderCtx)
}

// ensureManagedSecret creates or updates the secret object carrying the
// server's resolved secret values. No object is written when there is no
// data.
func (m *Manager) ensureManagedSecret(ctx context.Context, name string, data map[string]string) error {
	if len(data) == 0 {
		return nil
	}

	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: m.namespace},
		StringData: data,
	}

	_, err := m.clientset.CoreV1().Secrets(m.namespace).Create(ctx, secret, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		_, err = m.clientset.CoreV1().Secrets(m.namespace).Update(ctx, secret, metav1.UpdateOptions{})
	}
	if err != nil {
		return fmt.Errorf("failed to write managed secret %s: %w", name, err)
	}
	return nil
}

// StopServer tears a server down: workload, service, managed secret, in
// that order, then drops it from the registry. Unknown ids are a no-op.
func (m *Manager) StopServer(ctx context.Context, serverID string) error {
	if !m.enabled {
		return m.notConfigured()
	}

	controller, err := m.GetOrLoadController(ctx, serverID)
	if err != nil {
		return err
	}
	if controller == nil {
		return nil
	}

	if err := controller.Remove(ctx); err != nil {
		return err
	}
	m.deregister(serverID)
	return nil
}

// RestartServer invalidates any HTTP sessions bound to the server, stops
// it, waits briefly and starts it again.
func (m *Manager) RestartServer(ctx context.Context, serverID string, overrides map[string]string) error {
	if !m.enabled {
		return m.notConfigured()
	}

	if m.sessions != nil {
		m.sessions.InvalidateSessions(serverID)
	}
	if err := m.StopServer(ctx, serverID); err != nil {
		return err
	}

	select {
	case <-time.After(m.cfg.RestartDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	return m.StartServer(ctx, serverID, overrides)
}

// GetOrLoadController returns the tracked controller for a server,
// reconstructing it from persistence when another control plane replica
// created the workload. Returns nil when the server does not exist or is
// not a local type.
func (m *Manager) GetOrLoadController(ctx context.Context, serverID string) (*deployment.Controller, error) {
	if !m.enabled {
		return nil, m.notConfigured()
	}

	if controller := m.lookup(serverID); controller != nil {
		return controller, nil
	}

	record, err := m.store.FindServerByID(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to load server %s: %w", serverID, err)
	}
	if record == nil {
		return nil, nil
	}
	item, err := m.localCatalogItem(ctx, record)
	if err != nil || item == nil {
		return nil, err
	}

	local := item.LocalConfig
	transportType, err := transport.ParseType(local.Transport)
	if err != nil {
		return nil, errors.NewConfigurationError(
			fmt.Sprintf("server %s has an invalid transport", record.Name), err)
	}

	controller := deployment.NewController(
		m.clientset, m.namespace, record.ID, record.Name,
		transport.Config{
			Type:     transportType,
			Port:     local.HTTPPort,
			Path:     local.HTTPPath,
			NodePort: local.NodePort,
		},
		m.inCluster,
		deployment.WithPolling(m.cfg.ReadyMaxAttempts, m.cfg.ReadyInterval),
		deployment.WithNodeHost(m.cfg.NodeHost),
	)

	// The workload is assumed to exist already; only resolve the endpoint.
	if transportType.IsHTTP() {
		if _, err := controller.Endpoint(ctx); err != nil {
			logger.Debugf("Endpoint for lazily loaded server %s not resolvable yet: %v", record.Name, err)
		}
	}

	return m.register(serverID, controller), nil
}

// AllServerIDs returns the id of every persisted server record.
func (m *Manager) AllServerIDs(ctx context.Context) ([]string, error) {
	if !m.enabled {
		return nil, m.notConfigured()
	}
	records, err := m.store.FindAllServers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load server records: %w", err)
	}
	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

// StatusSummary reports the overall runtime status plus every tracked
// server, sorted by server name for stable output.
func (m *Manager) StatusSummary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	summary := Summary{Status: m.status, Message: m.message}
	for _, controller := range m.controllers {
		summary.Servers = append(summary.Servers, controller.Status())
	}
	sort.Slice(summary.Servers, func(i, j int) bool {
		return summary.Servers[i].ServerName < summary.Servers[j].ServerName
	})
	return summary
}

// Shutdown stops every tracked server concurrently, best-effort, and marks
// the runtime stopped.
func (m *Manager) Shutdown(ctx context.Context) {
	m.setStatus(StatusStopped, "")

	m.mu.Lock()
	ids := make([]string, 0, len(m.controllers))
	for id := range m.controllers {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var group errgroup.Group
	for _, id := range ids {
		id := id
		group.Go(func() error {
			if err := m.StopServer(ctx, id); err != nil {
				logger.Errorf("Failed to stop server %s during shutdown: %v", id, err)
			}
			return nil
		})
	}
	_ = group.Wait()
}
