// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
)

// Store is the read-only persistence interface consumed by the runtime.
// The surrounding application provides the implementation.
type Store interface {
	// FindServerByID returns the server record with the given id, or nil
	// if no such record exists.
	FindServerByID(ctx context.Context, id string) (*ServerRecord, error)

	// FindAllServers returns every persisted server record.
	FindAllServers(ctx context.Context) ([]*ServerRecord, error)

	// FindCatalogItemByID returns the catalog item with the given id, or
	// nil if no such item exists.
	FindCatalogItemByID(ctx context.Context, id string) (*CatalogItem, error)
}
