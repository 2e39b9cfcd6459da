// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// FileStore is a Store reading server records and catalog items from one
// JSON document. It backs the CLI; larger deployments plug in their own
// persistence.
type FileStore struct {
	servers map[string]*ServerRecord
	items   map[string]*CatalogItem
}

// storeDocument is the on-disk shape of a FileStore.
type storeDocument struct {
	Servers      []*ServerRecord `json:"servers"`
	CatalogItems []*CatalogItem  `json:"catalog_items"`
}

// NewFileStore loads the document at path.
func NewFileStore(path string) (*FileStore, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator's CLI flag
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}

	var doc storeDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}

	store := &FileStore{
		servers: make(map[string]*ServerRecord, len(doc.Servers)),
		items:   make(map[string]*CatalogItem, len(doc.CatalogItems)),
	}
	for _, record := range doc.Servers {
		if record.ID == "" {
			return nil, fmt.Errorf("catalog file %s contains a server without an id", path)
		}
		store.servers[record.ID] = record
	}
	for _, item := range doc.CatalogItems {
		if item.ID == "" {
			return nil, fmt.Errorf("catalog file %s contains a catalog item without an id", path)
		}
		for i := range item.localEnvironment() {
			if err := item.LocalConfig.Environment[i].Validate(); err != nil {
				return nil, fmt.Errorf("catalog item %s: %w", item.ID, err)
			}
		}
		store.items[item.ID] = item
	}
	return store, nil
}

// localEnvironment returns the environment definitions of a local item, or
// nil.
func (c *CatalogItem) localEnvironment() []EnvironmentVariableDefinition {
	if c.LocalConfig == nil {
		return nil
	}
	return c.LocalConfig.Environment
}

// FindServerByID implements Store.
func (s *FileStore) FindServerByID(_ context.Context, id string) (*ServerRecord, error) {
	return s.servers[id], nil
}

// FindAllServers implements Store.
func (s *FileStore) FindAllServers(_ context.Context) ([]*ServerRecord, error) {
	records := make([]*ServerRecord, 0, len(s.servers))
	for _, record := range s.servers {
		records = append(records, record)
	}
	return records, nil
}

// FindCatalogItemByID implements Store.
func (s *FileStore) FindCatalogItemByID(_ context.Context, id string) (*CatalogItem, error) {
	return s.items[id], nil
}
