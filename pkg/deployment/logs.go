// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package deployment

import (
	"context"
	"fmt"
	"io"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/stacklok/mcpruntime/pkg/logger"
)

// RecentLogs returns the last tailLines lines of the first running pod's
// logs. When no pod is running a descriptive message is returned instead of
// an error so status views stay usable.
func (c *Controller) RecentLogs(ctx context.Context, tailLines int64) (string, error) {
	pod, err := c.runningPod(ctx)
	if err != nil {
		return "", err
	}
	if pod == nil {
		return fmt.Sprintf("No running pod found for server %s (deployment %s in namespace %s)",
			c.serverName, c.name, c.namespace), nil
	}

	raw, err := c.clientset.CoreV1().Pods(c.namespace).
		GetLogs(pod.Name, &corev1.PodLogOptions{TailLines: &tailLines}).
		Do(ctx).Raw()
	if err != nil {
		return "", fmt.Errorf("failed to read logs of pod %s: %w", pod.Name, err)
	}
	return string(raw), nil
}

// StreamLogs follows the workload's logs into sink until the context is
// cancelled, the upstream stream ends or the sink fails. When no pod is
// running, a human-readable status and event snapshot is written instead.
// The sink is always closed before returning.
func (c *Controller) StreamLogs(ctx context.Context, sink io.WriteCloser, tailLines int64) error {
	defer sink.Close()

	pod, err := c.runningPod(ctx)
	if err != nil {
		return err
	}
	if pod == nil {
		_, writeErr := io.WriteString(sink, c.statusSnapshot(ctx))
		return writeErr
	}

	stream, err := c.clientset.CoreV1().Pods(c.namespace).
		GetLogs(pod.Name, &corev1.PodLogOptions{Follow: true, TailLines: &tailLines}).
		Stream(ctx)
	if err != nil {
		return fmt.Errorf("failed to follow logs of pod %s: %w", pod.Name, err)
	}
	defer stream.Close()

	// The copy ends when the context cancels the stream, the pod goes away
	// or the sink is closed by its consumer.
	if _, err := io.Copy(sink, stream); err != nil && ctx.Err() == nil {
		logger.Debugf("Log stream for %s ended: %v", c.name, err)
	}
	return nil
}

// statusSnapshot renders a human-readable dump of the workload status and
// its recent pod events, used when logs cannot be followed.
func (c *Controller) statusSnapshot(ctx context.Context) string {
	var sb strings.Builder
	status := c.Status()

	fmt.Fprintf(&sb, "No running pod for server %s.\n", c.serverName)
	fmt.Fprintf(&sb, "Deployment: %s  Namespace: %s  State: %s\n", status.Name, status.Namespace, status.State)
	if status.Message != "" {
		fmt.Fprintf(&sb, "Last error: %s\n", status.Message)
	}

	pods, err := c.clientset.CoreV1().Pods(c.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: c.podSelector(),
	})
	if err != nil {
		fmt.Fprintf(&sb, "Could not list pods: %v\n", err)
		return sb.String()
	}

	for i := range pods.Items {
		pod := &pods.Items[i]
		fmt.Fprintf(&sb, "\nPod %s: phase=%s\n", pod.Name, pod.Status.Phase)
		for _, cs := range pod.Status.ContainerStatuses {
			if cs.State.Waiting != nil {
				fmt.Fprintf(&sb, "  container %s waiting: %s %s\n",
					cs.Name, cs.State.Waiting.Reason, cs.State.Waiting.Message)
			}
		}

		events, err := c.clientset.CoreV1().Events(c.namespace).List(ctx, metav1.ListOptions{
			FieldSelector: "involvedObject.name=" + pod.Name,
		})
		if err != nil {
			continue
		}
		for _, event := range events.Items {
			fmt.Fprintf(&sb, "  event [%s] %s: %s\n", event.Type, event.Reason, event.Message)
		}
	}

	fmt.Fprintf(&sb, "\nFor manual diagnosis:\n  %s\n  %s\n", c.LogTailCommand(), c.DescribePodsCommand())
	return sb.String()
}
