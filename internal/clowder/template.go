// Package clowder renders and validates the ClowdJobInvocation manifest that
// kicks off the IQE smoke-test suite against a deployed cloudigrade
// environment.
package clowder

import (
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

const (
	// APIVersion is the Clowder API group/version for job invocations.
	APIVersion = "cloud.redhat.com/v1alpha1"
	// Kind is the Clowder object kind for job invocations.
	Kind = "ClowdJobInvocation"

	// AppName is the ClowdApp the smoke tests run against.
	AppName = "cloudigrade"
	// SmokeMarker selects the smoke-test subset of the IQE suite.
	SmokeMarker = "cloudigrade_smoke"

	// ParamImageTag is the required template parameter naming the image under test.
	ParamImageTag = "IMAGE_TAG"
	// ParamUID is the generated template parameter that uniquifies the job name.
	ParamUID = "UID"
)

var jobNamePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// Invocation is a ClowdJobInvocation manifest.
type Invocation struct {
	APIVersion string   `yaml:"apiVersion" json:"apiVersion"`
	Kind       string   `yaml:"kind" json:"kind"`
	Metadata   Metadata `yaml:"metadata" json:"metadata"`
	Spec       Spec     `yaml:"spec" json:"spec"`
}

// Metadata is the object metadata for an invocation.
type Metadata struct {
	Name string `yaml:"name" json:"name"`
}

// Spec is the invocation spec: which ClowdApp to test and how.
type Spec struct {
	AppName string  `yaml:"appName" json:"appName"`
	Testing Testing `yaml:"testing" json:"testing"`
}

// Testing holds the test-execution directive.
type Testing struct {
	IQE IQE `yaml:"iqe" json:"iqe"`
}

// IQE configures the IQE test runner.
type IQE struct {
	Debug           bool   `yaml:"debug" json:"debug"`
	DynaconfEnvName string `yaml:"dynaconfEnvName" json:"dynaconfEnvName"`
	Filter          string `yaml:"filter" json:"filter"`
	Marker          string `yaml:"marker" json:"marker"`
}

// Params are the template parameters for rendering an invocation.
type Params struct {
	// ImageTag identifies the image under test. Required, no default.
	ImageTag string
	// UID uniquifies the job name. Generated when empty; when supplied it
	// must match the UID pattern.
	UID string
	// DynaconfEnvName selects the IQE settings environment.
	DynaconfEnvName string
	// Filter optionally narrows the test selection. Usually empty.
	Filter string
	// Debug enables verbose IQE output.
	Debug bool
}

// Render produces the smoke-test invocation for the given parameters.
// IMAGE_TAG is the single required parameter; UID is generated when absent.
func Render(params Params) (*Invocation, error) {
	if params.ImageTag == "" {
		return nil, fmt.Errorf("required parameter %s is missing", ParamImageTag)
	}

	uid := params.UID
	if uid == "" {
		uid = NewUID()
	}
	if !uidPattern.MatchString(uid) {
		return nil, fmt.Errorf("parameter %s value %q does not match %s", ParamUID, uid, uidPattern)
	}

	inv := &Invocation{
		APIVersion: APIVersion,
		Kind:       Kind,
		Metadata: Metadata{
			Name: fmt.Sprintf("cloudigrade-smoke-%s-%s", params.ImageTag, uid),
		},
		Spec: Spec{
			AppName: AppName,
			Testing: Testing{
				IQE: IQE{
					Debug:           params.Debug,
					DynaconfEnvName: params.DynaconfEnvName,
					Filter:          params.Filter,
					Marker:          SmokeMarker,
				},
			},
		},
	}

	if err := inv.Validate(); err != nil {
		return nil, err
	}
	return inv, nil
}

// Validate checks the structural invariants of an invocation manifest.
func (inv *Invocation) Validate() error {
	if inv.APIVersion != APIVersion {
		return fmt.Errorf("unexpected apiVersion %q, want %q", inv.APIVersion, APIVersion)
	}
	if inv.Kind != Kind {
		return fmt.Errorf("unexpected kind %q, want %q", inv.Kind, Kind)
	}
	if inv.Spec.AppName == "" {
		return fmt.Errorf("spec.appName must not be empty")
	}
	if inv.Spec.Testing.IQE.Marker == "" {
		return fmt.Errorf("spec.testing.iqe.marker must not be empty")
	}
	name := inv.Metadata.Name
	if name == "" {
		return fmt.Errorf("metadata.name must not be empty")
	}
	// Job names become Kubernetes object names, so DNS label rules apply.
	if len(name) > 63 || !jobNamePattern.MatchString(name) {
		return fmt.Errorf("metadata.name %q is not a valid DNS label", name)
	}
	return nil
}

// Encode serializes an invocation manifest to YAML.
func (inv *Invocation) Encode() ([]byte, error) {
	data, err := yaml.Marshal(inv)
	if err != nil {
		return nil, fmt.Errorf("failed to encode invocation: %w", err)
	}
	return data, nil
}

// Parse decodes and validates an invocation manifest from YAML.
func Parse(data []byte) (*Invocation, error) {
	var inv Invocation
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("failed to parse invocation: %w", err)
	}
	if err := inv.Validate(); err != nil {
		return nil, err
	}
	return &inv, nil
}
