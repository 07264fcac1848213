// Package userdata renders the bootstrap script baked into the launch
// template for inspection-cluster instances. The script registers the
// instance with the environment's ECS cluster before the agent starts.
package userdata

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"text/template"
)

var bootstrapTemplate = template.Must(template.New("bootstrap").Parse(`#!/bin/bash
set -euo pipefail

cat >> /etc/ecs/ecs.config <<EOF
ECS_CLUSTER={{.ClusterName}}
ECS_ENABLE_TASK_IAM_ROLE=true
ECS_ENGINE_TASK_CLEANUP_WAIT_DURATION=15m
ECS_IMAGE_CLEANUP_INTERVAL=30m
EOF

mkdir -p /var/lib/houndigrade
`))

// Params configures the bootstrap script.
type Params struct {
	ClusterName string
}

// Render produces the bootstrap script for the given cluster.
func Render(params Params) (string, error) {
	if params.ClusterName == "" {
		return "", fmt.Errorf("cluster name is required")
	}

	var buf bytes.Buffer
	if err := bootstrapTemplate.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("failed to render user data: %w", err)
	}
	return buf.String(), nil
}

// RenderBase64 produces the bootstrap script base64-encoded, as launch
// templates require.
func RenderBase64(params Params) (string, error) {
	script, err := Render(params)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString([]byte(script)), nil
}
