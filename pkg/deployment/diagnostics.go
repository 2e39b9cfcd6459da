// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package deployment

import (
	"fmt"

	"github.com/stacklok/mcpruntime/pkg/labels"
)

// podSelector returns the label selector matching this workload's pods.
func (c *Controller) podSelector() string {
	return labels.SelectorForServer(c.serverID)
}

// LogTailCommand returns a kubectl command string a human can run to tail
// the workload's logs. Informational only, never executed by this code.
func (c *Controller) LogTailCommand() string {
	return fmt.Sprintf("kubectl logs -n %s -l %q --tail=100 -f", c.namespace, c.podSelector())
}

// DescribePodsCommand returns a kubectl command string describing the
// workload's pods for manual diagnosis.
func (c *Controller) DescribePodsCommand() string {
	return fmt.Sprintf("kubectl describe pods -n %s -l %q", c.namespace, c.podSelector())
}
