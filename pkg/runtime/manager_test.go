// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/stacklok/mcpruntime/pkg/catalog"
	"github.com/stacklok/mcpruntime/pkg/deployment"
	"github.com/stacklok/mcpruntime/pkg/errors"
	"github.com/stacklok/mcpruntime/pkg/secrets"
)

type fakeStore struct {
	servers map[string]*catalog.ServerRecord
	items   map[string]*catalog.CatalogItem
}

func (s *fakeStore) FindServerByID(_ context.Context, id string) (*catalog.ServerRecord, error) {
	return s.servers[id], nil
}

func (s *fakeStore) FindAllServers(_ context.Context) ([]*catalog.ServerRecord, error) {
	records := make([]*catalog.ServerRecord, 0, len(s.servers))
	for _, record := range s.servers {
		records = append(records, record)
	}
	return records, nil
}

func (s *fakeStore) FindCatalogItemByID(_ context.Context, id string) (*catalog.CatalogItem, error) {
	return s.items[id], nil
}

type recordingInvalidator struct {
	invalidated []string
}

func (r *recordingInvalidator) InvalidateSessions(serverID string) {
	r.invalidated = append(r.invalidated, serverID)
}

func testStore() *fakeStore {
	return &fakeStore{
		servers: map[string]*catalog.ServerRecord{
			"srv-1": {
				ID:             "srv-1",
				Name:           "github",
				CatalogItemID:  "item-1",
				SecretBundleID: "bundle-1",
			},
		},
		items: map[string]*catalog.CatalogItem{
			"item-1": {
				ID:         "item-1",
				Name:       "github",
				ServerType: catalog.ServerTypeLocal,
				LocalConfig: &catalog.LocalConfig{
					DockerImage: "ghcr.io/example/github-mcp:1.0",
					Command:     "node",
					Environment: []catalog.EnvironmentVariableDefinition{
						{Key: "API_TOKEN", Type: catalog.EnvVarTypeSecret, PromptOnInstallation: true},
					},
				},
			},
		},
	}
}

func testManager(t *testing.T, store catalog.Store, objects ...runtime.Object) (*Manager, *fake.Clientset) {
	t.Helper()
	clientset := fake.NewSimpleClientset(objects...)
	vault := secrets.NewInMemoryVault()
	vault.SetBundle("bundle-1", map[string]string{"API_TOKEN": "stored-token"})

	manager := NewManager(Config{
		Namespace:        "mcp-servers",
		NodeHost:         "localhost",
		RestartDelay:     time.Millisecond,
		ReadyMaxAttempts: 2,
		ReadyInterval:    time.Millisecond,
	}, store, vault, WithClientset(clientset, true))
	return manager, clientset
}

func TestStartServerRegistersBeforeFailure(t *testing.T) {
	t.Parallel()

	manager, clientset := testManager(t, testStore())

	// The fake cluster never reports readiness, so the start times out.
	err := manager.StartServer(context.Background(), "srv-1", nil)
	require.Error(t, err)
	assert.True(t, errors.IsDeploymentTimeout(err))

	// The attempt is visible in the status listing despite the failure.
	summary := manager.StatusSummary()
	require.Len(t, summary.Servers, 1)
	assert.Equal(t, "github", summary.Servers[0].ServerName)
	assert.Equal(t, deployment.StatePending, summary.Servers[0].State)

	// The managed secret was written from the vault bundle.
	secret, getErr := clientset.CoreV1().Secrets("mcp-servers").
		Get(context.Background(), "mcp-server-github-secrets", metav1.GetOptions{})
	require.NoError(t, getErr)
	assert.Equal(t, "stored-token", secret.StringData["API_TOKEN"])
}

func TestStartServerUnknownID(t *testing.T) {
	t.Parallel()

	manager, _ := testManager(t, testStore())
	err := manager.StartServer(context.Background(), "nope", nil)
	require.Error(t, err)
	assert.True(t, errors.IsServerNotFound(err))
}

func TestStartServerNonLocalRejected(t *testing.T) {
	t.Parallel()

	store := testStore()
	store.items["item-1"].ServerType = catalog.ServerTypeRemote

	manager, clientset := testManager(t, store)
	err := manager.StartServer(context.Background(), "srv-1", nil)
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
	assert.Empty(t, clientset.Actions())
}

func TestStopServerUnknownIDIsNoOp(t *testing.T) {
	t.Parallel()

	store := &fakeStore{servers: map[string]*catalog.ServerRecord{}, items: map[string]*catalog.CatalogItem{}}
	manager, clientset := testManager(t, store)

	require.NoError(t, manager.StopServer(context.Background(), "ghost"))
	assert.Empty(t, clientset.Actions(), "no cluster calls for an unknown server")
}

func TestStopServerDeletesInOrder(t *testing.T) {
	t.Parallel()

	manager, clientset := testManager(t, testStore())

	controller, err := manager.GetOrLoadController(context.Background(), "srv-1")
	require.NoError(t, err)
	require.NotNil(t, controller)
	clientset.ClearActions()

	require.NoError(t, manager.StopServer(context.Background(), "srv-1"))

	var deletes []string
	for _, action := range clientset.Actions() {
		if action.GetVerb() == "delete" {
			deletes = append(deletes, action.GetResource().Resource)
		}
	}
	assert.Equal(t, []string{"deployments", "services", "secrets"}, deletes)

	// Deregistered: nothing left in the summary.
	assert.Empty(t, manager.StatusSummary().Servers)
}

func TestGetOrLoadControllerLazyLoad(t *testing.T) {
	t.Parallel()

	manager, _ := testManager(t, testStore())

	first, err := manager.GetOrLoadController(context.Background(), "srv-1")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := manager.GetOrLoadController(context.Background(), "srv-1")
	require.NoError(t, err)
	assert.Same(t, first, second, "concurrent loads must converge on one controller")
}

func TestGetOrLoadControllerMissingOrRemote(t *testing.T) {
	t.Parallel()

	store := testStore()
	store.items["item-1"].ServerType = catalog.ServerTypeRemote
	manager, _ := testManager(t, store)

	controller, err := manager.GetOrLoadController(context.Background(), "srv-1")
	require.NoError(t, err)
	assert.Nil(t, controller)

	controller, err = manager.GetOrLoadController(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, controller)
}

func TestRestartServerInvalidatesSessions(t *testing.T) {
	t.Parallel()

	clientset := fake.NewSimpleClientset()
	invalidator := &recordingInvalidator{}
	manager := NewManager(Config{
		Namespace:        "mcp-servers",
		RestartDelay:     time.Millisecond,
		ReadyMaxAttempts: 2,
		ReadyInterval:    time.Millisecond,
	}, testStore(), secretsVaultWithBundle(), WithClientset(clientset, true),
		WithSessionInvalidator(invalidator))

	err := manager.RestartServer(context.Background(), "srv-1", nil)
	require.Error(t, err, "fake cluster never becomes ready")
	assert.Equal(t, []string{"srv-1"}, invalidator.invalidated)
}

func secretsVaultWithBundle() *secrets.InMemoryVault {
	vault := secrets.NewInMemoryVault()
	vault.SetBundle("bundle-1", map[string]string{"API_TOKEN": "stored-token"})
	return vault
}

func TestIsAvailable(t *testing.T) {
	t.Parallel()

	manager, _ := testManager(t, testStore())
	assert.True(t, manager.IsAvailable(context.Background()))
}

func TestShutdownStopsEverything(t *testing.T) {
	t.Parallel()

	manager, _ := testManager(t, testStore())
	_, err := manager.GetOrLoadController(context.Background(), "srv-1")
	require.NoError(t, err)

	manager.Shutdown(context.Background())

	summary := manager.StatusSummary()
	assert.Equal(t, StatusStopped, summary.Status)
	assert.Empty(t, summary.Servers)
}

func TestBootstrapFailureDisablesManager(t *testing.T) {
	// Not parallel: depends on not running inside a cluster.
	dir := t.TempDir()
	badKubeconfig := filepath.Join(dir, "kubeconfig")
	require.NoError(t, os.WriteFile(badKubeconfig, []byte("apiVersion: v1\nkind: Config\nclusters: []\n"), 0o600))

	manager := NewManager(Config{KubeconfigPath: badKubeconfig}, testStore(), nil)
	assert.False(t, manager.Enabled())

	err := manager.StartServer(context.Background(), "srv-1", nil)
	require.Error(t, err)
	assert.True(t, errors.IsNotConfigured(err))

	err = manager.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusError, manager.StatusSummary().Status)
}

func TestStartBatchContainsFailures(t *testing.T) {
	t.Parallel()

	store := testStore()
	store.servers["srv-2"] = &catalog.ServerRecord{ID: "srv-2", Name: "broken", CatalogItemID: "item-2"}
	store.items["item-2"] = &catalog.CatalogItem{
		ID: "item-2", Name: "broken", ServerType: catalog.ServerTypeLocal,
		LocalConfig: &catalog.LocalConfig{}, // no image configured
	}

	manager, _ := testManager(t, store)
	require.NoError(t, manager.Start(context.Background()))

	summary := manager.StatusSummary()
	assert.Equal(t, StatusRunning, summary.Status)
	// Both attempts are tracked: the misconfigured server in a failed
	// state, the healthy-config one pending after its readiness timeout.
	require.Len(t, summary.Servers, 2)
	assert.Equal(t, "broken", summary.Servers[0].ServerName)
	assert.Equal(t, deployment.StateFailed, summary.Servers[0].State)
	assert.Contains(t, summary.Servers[0].Message, "no container image")
	assert.Equal(t, "github", summary.Servers[1].ServerName)
	assert.Equal(t, deployment.StatePending, summary.Servers[1].State)
}

func TestStartServerConfigFailureStaysVisible(t *testing.T) {
	t.Parallel()

	store := testStore()
	store.items["item-1"].LocalConfig.DockerImage = ""

	manager, clientset := testManager(t, store)
	err := manager.StartServer(context.Background(), "srv-1", nil)
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
	assert.Empty(t, clientset.Actions(), "nothing was written to the cluster")

	summary := manager.StatusSummary()
	require.Len(t, summary.Servers, 1)
	assert.Equal(t, "github", summary.Servers[0].ServerName)
	assert.Equal(t, deployment.StateFailed, summary.Servers[0].State)
	assert.Contains(t, summary.Servers[0].Message, "no container image")
}

func TestStartServerInvalidTransportStaysVisible(t *testing.T) {
	t.Parallel()

	store := testStore()
	store.items["item-1"].LocalConfig.Transport = "websocket"

	manager, _ := testManager(t, store)
	err := manager.StartServer(context.Background(), "srv-1", nil)
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))

	summary := manager.StatusSummary()
	require.Len(t, summary.Servers, 1)
	assert.Equal(t, deployment.StateFailed, summary.Servers[0].State)
	assert.Contains(t, summary.Servers[0].Message, "invalid transport")
}
