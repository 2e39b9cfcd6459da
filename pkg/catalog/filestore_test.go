// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogJSON = `{
  "servers": [
    {"id": "srv-1", "name": "github", "catalog_item_id": "item-1"}
  ],
  "catalog_items": [
    {
      "id": "item-1",
      "name": "github",
      "server_type": "local",
      "local_config": {
        "docker_image": "ghcr.io/example/github-mcp:1.0",
        "transport": "streamable-http",
        "http_port": 9090,
        "environment": [
          {"key": "API_TOKEN", "type": "secret", "prompt_on_installation": true}
        ]
      }
    }
  ]
}`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFileStore(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(writeCatalog(t, catalogJSON))
	require.NoError(t, err)

	record, err := store.FindServerByID(context.Background(), "srv-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "github", record.Name)

	missing, err := store.FindServerByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := store.FindAllServers(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)

	item, err := store.FindCatalogItemByID(context.Background(), "item-1")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.True(t, item.IsLocal())
	assert.Equal(t, 9090, item.LocalConfig.HTTPPort)
}

func TestFileStoreRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := NewFileStore(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = NewFileStore(writeCatalog(t, "not json"))
	assert.Error(t, err)

	_, err = NewFileStore(writeCatalog(t, `{"servers":[{"name":"no-id"}]}`))
	assert.Error(t, err)

	// mounted=true on a non-secret variable violates the catalog invariant.
	_, err = NewFileStore(writeCatalog(t, `{
	  "catalog_items": [{
	    "id": "item-1", "server_type": "local",
	    "local_config": {"environment": [{"key": "X", "type": "plain_text", "mounted": true}]}
	  }]
	}`))
	assert.Error(t, err)
}
