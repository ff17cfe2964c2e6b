// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package transport

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/siemens/kcap"
	log "github.com/sirupsen/logrus"
)

// KubectlExec runs commands inside a pod using "kubectl exec". There's
// nothing to connect to upfront: kubectl gets spawned only when executing.
type KubectlExec struct {
	kcap.CommonClientOptions
	// Program is the kubectl binary; defaults to "kubectl" in PATH.
	Program string
	// Kubeconfig optionally names the kubeconfig file to use.
	Kubeconfig string
	// Context optionally names the kubeconfig context to use.
	Context string
	// Plan identifies the pod (and container).
	Plan kcap.OrchestratorExec
}

var _ kcap.Executor = (*KubectlExec)(nil)

func (k *KubectlExec) program() string {
	if k.Program == "" {
		return kcap.DefaultKubectl
	}
	return k.Program
}

// globalArgs returns the kubectl options preceding the subcommand.
func (k *KubectlExec) globalArgs() []string {
	args := []string{}
	if k.Kubeconfig != "" {
		args = append(args, "--kubeconfig", k.Kubeconfig)
	}
	if k.Context != "" {
		args = append(args, "--context", k.Context)
	}
	return args
}

// Args returns the complete kubectl argument vector for running the command
// line inside the pod.
func (k *KubectlExec) Args(cmdline string) []string {
	return append(k.globalArgs(), k.Plan.ExecArgs(cmdline)...)
}

// Execute spawns kubectl exec running the command line.
func (k *KubectlExec) Execute(cmdline string) (kcap.Process, error) {
	args := k.Args(cmdline)
	log.Debugf("spawning %s %s", k.program(), strings.Join(args, " "))
	proc, err := startProcess(exec.Command(k.program(), args...), kcap.DefaultStopTimeout)
	if err != nil {
		return nil, &kcap.ConnectError{
			Stage:    kcap.StageExec,
			HopIndex: -1,
			Host:     k.Plan.Target().String(),
			Err:      err,
		}
	}
	return proc, nil
}

// Close is a no-op, as there's no transport kept open beyond the lifetime of
// the kubectl process.
func (k *KubectlExec) Close() error { return nil }

// NodeName returns the name of the node the pod is scheduled on.
func (k *KubectlExec) NodeName(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, k.CommonClientOptions.WithDefaults().ConnectTimeout)
	defer cancel()
	args := append(k.globalArgs(),
		"get", "pod", "-n", k.Plan.Namespace, k.Plan.Pod,
		"-o", "jsonpath={.spec.nodeName}")
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, k.program(), args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("cannot determine node of pod %s: %s", k.Plan.Target(), msg)
		}
		return "", fmt.Errorf("cannot determine node of pod %s: %w", k.Plan.Target(), err)
	}
	node := strings.TrimSpace(stdout.String())
	if node == "" {
		return "", fmt.Errorf("pod %s not scheduled on any node yet", k.Plan.Target())
	}
	return node, nil
}
