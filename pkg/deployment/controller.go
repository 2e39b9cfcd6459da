// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package deployment owns the full lifecycle of one MCP server workload
// against the cluster: idempotent create-or-adopt, readiness polling with
// failure classification, network exposure, log access and teardown.
package deployment

import (
	"context"
	goerrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/stacklok/mcpruntime/pkg/errors"
	"github.com/stacklok/mcpruntime/pkg/labels"
	"github.com/stacklok/mcpruntime/pkg/logger"
	"github.com/stacklok/mcpruntime/pkg/transport"
)

const (
	// defaultMaxAttempts bounds the readiness poll.
	defaultMaxAttempts = 60

	// defaultPollInterval is the initial wait between readiness attempts.
	defaultPollInterval = 2 * time.Second

	// eventScanEvery is how often (in attempts) cluster events are scanned
	// for fatal patterns once the scan threshold is passed.
	eventScanEvery = 5

	// eventScanAfter is the attempt after which event scanning begins.
	eventScanAfter = 5

	// pendingScheduleGrace is how long a pod may sit unscheduled before the
	// poll fails fast on a scheduling condition.
	pendingScheduleGrace = 20 * time.Second
)

// fatalWaitingReasons are container waiting reasons that never resolve on
// their own. Any of them terminates the readiness wait immediately.
var fatalWaitingReasons = map[string]bool{
	"CrashLoopBackOff":           true,
	"ImagePullBackOff":           true,
	"ErrImagePull":               true,
	"ErrImageNeverPull":          true,
	"CreateContainerConfigError": true,
	"CreateContainerError":       true,
	"RunContainerError":          true,
	"InvalidImageName":           true,
}

// fatalEventPatterns are lowercased substrings of cluster event messages
// that indicate an unrecoverable deployment, matched during periodic event
// scans.
var fatalEventPatterns = []string{
	"error looking up service account",
	"serviceaccount",
	"exceeded quota",
	"failedmount",
	"unable to attach or mount volumes",
	"no nodes available to schedule",
	"didn't match pod's node affinity",
	"didn't match node selector",
}

// errNotReady signals the poller to keep waiting.
var errNotReady = goerrors.New("deployment not ready yet")

// Controller manages one server's workload. Instances are created by the
// runtime manager, one per server record, and are safe for concurrent use.
type Controller struct {
	clientset  kubernetes.Interface
	namespace  string
	serverID   string
	serverName string
	name       string
	transport  transport.Config
	inCluster  bool

	// nodeHost is the hostname used for NodePort endpoints when running
	// outside the cluster.
	nodeHost string

	maxAttempts  int
	pollInterval time.Duration

	mu       sync.Mutex
	state    State
	message  string
	port     int
	endpoint string
}

// Option customizes a Controller.
type Option func(*Controller)

// WithPolling overrides the readiness poll bounds.
func WithPolling(maxAttempts int, interval time.Duration) Option {
	return func(c *Controller) {
		c.maxAttempts = maxAttempts
		c.pollInterval = interval
	}
}

// WithNodeHost sets the hostname used for NodePort endpoint URLs.
func WithNodeHost(host string) Option {
	return func(c *Controller) {
		c.nodeHost = host
	}
}

// NewController builds the controller for one server. No cluster call is
// made until a lifecycle operation runs.
func NewController(
	clientset kubernetes.Interface,
	namespace, serverID, serverName string,
	transportCfg transport.Config,
	inCluster bool,
	opts ...Option,
) *Controller {
	c := &Controller{
		clientset:    clientset,
		namespace:    namespace,
		serverID:     serverID,
		serverName:   serverName,
		name:         Name(serverName, serverID),
		transport:    transportCfg,
		inCluster:    inCluster,
		nodeHost:     "localhost",
		maxAttempts:  defaultMaxAttempts,
		pollInterval: defaultPollInterval,
		state:        StateNotCreated,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the derived workload name.
func (c *Controller) Name() string { return c.name }

// Namespace returns the namespace the workload lives in.
func (c *Controller) Namespace() string { return c.namespace }

// SecretName returns the name of the managed secret for this workload.
func (c *Controller) SecretName() string { return SecretName(c.name) }

// Status returns a snapshot of the controller's state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		ServerID:   c.serverID,
		ServerName: c.serverName,
		Name:       c.name,
		Namespace:  c.namespace,
		State:      c.state,
		Message:    c.message,
		Port:       c.port,
		Endpoint:   c.endpoint,
	}
}

func (c *Controller) setState(state State, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
	c.message = message
}

// fail records a failed state and returns the error.
func (c *Controller) fail(err error) error {
	c.setState(StateFailed, err.Error())
	return err
}

// MarkFailed records a failed state for an error raised outside the
// controller, keeping the attempt visible in status listings.
func (c *Controller) MarkFailed(err error) {
	c.setState(StateFailed, err.Error())
}

// StartOrCreate brings the workload up: it adopts an existing healthy
// deployment as a no-op, lets a pending one converge, or creates a new one
// from spec and waits for readiness. Errors other than a poll timeout mark
// the controller failed.
func (c *Controller) StartOrCreate(ctx context.Context, spec *appsv1.Deployment) error {
	c.setState(StatePending, "")

	c.migrateLegacyPod(ctx)

	existing, err := c.clientset.AppsV1().Deployments(c.namespace).Get(ctx, c.name, metav1.GetOptions{})
	switch {
	case err == nil && existing.Status.AvailableReplicas > 0:
		// Already healthy, e.g. another control plane replica created it.
		if err := c.ensureExposure(ctx); err != nil {
			return c.fail(err)
		}
		c.recordRunning(ctx)
		logger.Infof("Deployment %s already available, adopted", c.name)
		return nil

	case err == nil:
		logger.Infof("Deployment %s exists but is not available yet, waiting", c.name)
		if err := c.ensureExposure(ctx); err != nil {
			return c.fail(err)
		}
		return c.WaitForReady(ctx)

	case apierrors.IsNotFound(err):
		// Proceed to create below.

	default:
		return c.fail(fmt.Errorf("failed to look up deployment %s: %w", c.name, err))
	}

	_, err = c.clientset.AppsV1().Deployments(c.namespace).Create(ctx, spec, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		// A peer replica won the race; adopt its object.
		logger.Infof("Deployment %s was created concurrently, adopting", c.name)
	} else if err != nil {
		return c.fail(fmt.Errorf("failed to create deployment %s: %w", c.name, err))
	}

	if err := c.ensureExposure(ctx); err != nil {
		return c.fail(err)
	}
	return c.WaitForReady(ctx)
}

// migrateLegacyPod removes a bare pod sharing the derived name left behind
// by the old direct-pod deployment model. Pods owned by a replica set
// belong to the current model and are left alone. Failures only log.
func (c *Controller) migrateLegacyPod(ctx context.Context) {
	pod, err := c.clientset.CoreV1().Pods(c.namespace).Get(ctx, c.name, metav1.GetOptions{})
	if err != nil {
		return
	}
	for _, owner := range pod.OwnerReferences {
		if owner.Kind == "ReplicaSet" {
			return
		}
	}

	logger.Infof("Migrating legacy bare pod %s", c.name)
	if err := c.clientset.CoreV1().Pods(c.namespace).Delete(ctx, c.name, metav1.DeleteOptions{}); err != nil &&
		!apierrors.IsNotFound(err) {
		logger.Warnf("Failed to delete legacy pod %s: %v", c.name, err)
	}
}

// WaitForReady polls the workload until a replica is available and a pod is
// running, classifying fatal failures along the way. A poll that exhausts
// its attempts returns a timeout error without marking the controller
// failed, so the caller may retry.
func (c *Controller) WaitForReady(ctx context.Context) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.pollInterval
	expBackoff.MaxInterval = c.pollInterval * 2

	attempt := 0
	_, err := backoff.Retry(ctx, func() (any, error) {
		attempt++
		ready, err := c.checkReady(ctx, attempt)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if !ready {
			return nil, errNotReady
		}
		return nil, nil
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(uint(c.maxAttempts)), // #nosec G115 -- attempt bounds are small constants
		backoff.WithNotify(func(_ error, duration time.Duration) {
			logger.Debugf("Deployment %s not ready (attempt %d), next check in %s", c.name, attempt, duration)
		}),
	)
	if err == nil {
		return nil
	}

	if goerrors.Is(err, errNotReady) || ctx.Err() != nil {
		return errors.NewDeploymentTimeoutError(
			fmt.Sprintf("deployment %s did not become ready after %d attempts", c.name, attempt))
	}
	return c.fail(err)
}

// checkReady performs one readiness probe. It returns (true, nil) when the
// workload is available with a running pod, (false, nil) to keep polling
// and a non-nil error for fatal conditions. Transient cluster errors are
// swallowed and retried.
func (c *Controller) checkReady(ctx context.Context, attempt int) (bool, error) {
	dep, err := c.clientset.AppsV1().Deployments(c.namespace).Get(ctx, c.name, metav1.GetOptions{})
	if err != nil {
		logger.Debugf("Transient error reading deployment %s: %v", c.name, err)
		return false, nil
	}

	pods, err := c.clientset.CoreV1().Pods(c.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: labels.SelectorForServer(c.serverID),
	})
	if err != nil {
		logger.Debugf("Transient error listing pods for %s: %v", c.name, err)
		return false, nil
	}

	if dep.Status.AvailableReplicas > 0 {
		for i := range pods.Items {
			if pods.Items[i].Status.Phase == corev1.PodRunning {
				c.recordRunning(ctx)
				return true, nil
			}
		}
	}

	for i := range pods.Items {
		if err := c.classifyPod(ctx, &pods.Items[i]); err != nil {
			return false, err
		}
	}

	if attempt > eventScanAfter && attempt%eventScanEvery == 0 {
		if err := c.scanEvents(ctx, pods.Items); err != nil {
			return false, err
		}
	}

	return false, nil
}

// recordRunning marks the controller running and resolves the HTTP
// endpoint when applicable.
func (c *Controller) recordRunning(ctx context.Context) {
	if c.transport.Type.IsHTTP() {
		if endpoint, port, err := c.resolveEndpoint(ctx); err == nil {
			c.mu.Lock()
			c.endpoint = endpoint
			c.port = port
			c.mu.Unlock()
		} else {
			logger.Warnf("Could not resolve endpoint for %s: %v", c.name, err)
		}
	}
	c.setState(StateRunning, "")
	logger.Infof("Deployment %s is ready", c.name)
}

// classifyPod inspects one pod for unrecoverable conditions.
func (c *Controller) classifyPod(ctx context.Context, pod *corev1.Pod) error {
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.State.Waiting != nil && fatalWaitingReasons[cs.State.Waiting.Reason] {
			message := cs.State.Waiting.Message
			if message == "" {
				message = cs.State.Waiting.Reason
			}
			return errors.NewFatalDeploymentError(
				fmt.Sprintf("container in pod %s cannot start: %s: %s",
					pod.Name, cs.State.Waiting.Reason, message), nil)
		}
	}

	// A pending pod with no container statuses never got scheduled. Give
	// the scheduler a grace period before treating the condition as fatal.
	if pod.Status.Phase == corev1.PodPending && len(pod.Status.ContainerStatuses) == 0 {
		age := time.Since(pod.CreationTimestamp.Time)
		for _, cond := range pod.Status.Conditions {
			if cond.Type == corev1.PodScheduled && cond.Status == corev1.ConditionFalse &&
				age > pendingScheduleGrace {
				if err := c.scanEvents(ctx, []corev1.Pod{*pod}); err != nil {
					return err
				}
				return errors.NewFatalDeploymentError(
					fmt.Sprintf("pod %s cannot be scheduled: %s", pod.Name, cond.Message), nil)
			}
		}
	}

	return nil
}

// scanEvents looks through recent cluster events for the given pods and
// fails on known fatal message patterns.
func (c *Controller) scanEvents(ctx context.Context, pods []corev1.Pod) error {
	for i := range pods {
		events, err := c.clientset.CoreV1().Events(c.namespace).List(ctx, metav1.ListOptions{
			FieldSelector: "involvedObject.name=" + pods[i].Name,
		})
		if err != nil {
			logger.Debugf("Transient error listing events for pod %s: %v", pods[i].Name, err)
			continue
		}
		for _, event := range events.Items {
			message := strings.ToLower(event.Message)
			for _, pattern := range fatalEventPatterns {
				if strings.Contains(message, pattern) {
					return errors.NewFatalDeploymentError(
						fmt.Sprintf("deployment %s cannot start: %s", c.name, event.Message), nil)
				}
			}
		}
	}
	return nil
}

// Stop deletes the workload. A workload that is already gone counts as
// success.
func (c *Controller) Stop(ctx context.Context) error {
	err := c.clientset.AppsV1().Deployments(c.namespace).Delete(ctx, c.name, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete deployment %s: %w", c.name, err)
	}
	c.setState(StateNotCreated, "")
	return nil
}

// Remove tears down the workload and its managed secondary objects: the
// network-exposure service and the managed secret. Every delete tolerates
// absence.
func (c *Controller) Remove(ctx context.Context) error {
	if err := c.Stop(ctx); err != nil {
		return err
	}
	if err := c.DeleteService(ctx); err != nil {
		return err
	}
	err := c.clientset.CoreV1().Secrets(c.namespace).Delete(ctx, c.SecretName(), metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete secret %s: %w", c.SecretName(), err)
	}
	return nil
}

// runningPod returns the first running pod of the workload, or nil.
func (c *Controller) runningPod(ctx context.Context) (*corev1.Pod, error) {
	pods, err := c.clientset.CoreV1().Pods(c.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: labels.SelectorForServer(c.serverID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods for %s: %w", c.name, err)
	}
	for i := range pods.Items {
		if pods.Items[i].Status.Phase == corev1.PodRunning {
			return &pods.Items[i], nil
		}
	}
	return nil, nil
}
