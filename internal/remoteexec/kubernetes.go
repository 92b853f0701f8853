package remoteexec

import (
	"bytes"
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"
	utilexec "k8s.io/utils/exec"

	"deployctl/internal/ports"
)

// Kubernetes runs scripts inside a named pod via the pod exec subresource,
// grounded on the teacher's internal/kubernetes/runtime.go NewRuntime
// (rest.Config + kubernetes.NewForConfig), generalized from the teacher's
// one-clientset-per-cluster Runtime to the single Run verb RemoteExecutor
// needs.
type Kubernetes struct {
	clientset kubernetes.Interface
	restCfg   *rest.Config
	namespace string
}

func NewKubernetes(restCfg *rest.Config, namespace string) (*Kubernetes, error) {
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes client: %w", err)
	}
	return &Kubernetes{clientset: clientset, restCfg: restCfg, namespace: namespace}, nil
}

func (k *Kubernetes) Run(ctx context.Context, instanceID, commandID, script string, timeout time.Duration) (ports.RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := k.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(instanceID).
		Namespace(k.namespace).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Command: []string{"/bin/sh", "-c", script},
			Stdout:  true,
			Stderr:  true,
		}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(k.restCfg, "POST", req.URL())
	if err != nil {
		return ports.RunResult{}, fmt.Errorf("remoteexec[%s]: building executor: %w", commandID, err)
	}

	var stdout, stderr bytes.Buffer
	err = executor.StreamWithContext(ctx, remotecommand.StreamOptions{Stdout: &stdout, Stderr: &stderr})

	result := ports.RunResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		if exitErr, ok := err.(utilexec.CodeExitError); ok {
			result.ExitCode = exitErr.Code
			return result, nil
		}
		return result, fmt.Errorf("remoteexec[%s]: streaming exec: %w", commandID, err)
	}
	return result, nil
}
