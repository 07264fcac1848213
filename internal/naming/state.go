package naming

import "fmt"

// State declares whether a resource group should exist.
type State string

const (
	StatePresent State = "present"
	StateAbsent  State = "absent"
)

// ParseState parses a state value. The empty string defaults to present,
// matching the behavior of the variable files this replaces.
func ParseState(s string) (State, error) {
	switch s {
	case "", string(StatePresent):
		return StatePresent, nil
	case string(StateAbsent):
		return StateAbsent, nil
	default:
		return "", fmt.Errorf("invalid state %q: must be %q or %q", s, StatePresent, StateAbsent)
	}
}

func (s State) String() string {
	return string(s)
}

// GroupStates holds the desired state of each resource group.
type GroupStates struct {
	ECS State `json:"ecs_state" yaml:"ecs_state"`
	EC2 State `json:"ec2_state" yaml:"ec2_state"`
	S3  State `json:"s3_state" yaml:"s3_state"`
}

// DefaultGroupStates returns all groups present.
func DefaultGroupStates() GroupStates {
	return GroupStates{
		ECS: StatePresent,
		EC2: StatePresent,
		S3:  StatePresent,
	}
}
