package agent

import (
	"fmt"

	"github.com/hupe1980/swarmchat/model"
)

// Names of the default roles. They double as artifact keys in
// core.AgentOutputs.
const (
	ProjectManager     = "project_manager"
	SoftwareEngineer   = "software_engineer"
	QATester           = "qa_tester"
	DeploymentEngineer = "deployment_engineer"
	DataEngineer       = "data_engineer"
)

// Generation defaults shared by every default role.
const (
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 8192
)

// RoleNames lists the default roles in registration order.
func RoleNames() []string {
	return []string{ProjectManager, SoftwareEngineer, QATester, DeploymentEngineer, DataEngineer}
}

// ModelProvider resolves the model backing a role.
type ModelProvider func(role string) (model.Model, error)

// DefaultRoles builds the five standard roles, asking provider for each model.
// The project manager is registered first and is therefore the initial
// active role.
func DefaultRoles(provider ModelProvider) ([]*RoleAgent, error) {
	specs := []RoleAgent{
		{
			Name:        ProjectManager,
			Description: "Plans the work and splits it into tasks",
			Prompt:      "Break down the given task into development, testing and documentation",
			Markers:     []string{"project manager"},
		},
		{
			Name:        SoftwareEngineer,
			Description: "Writes Python code",
			Prompt:      "Generate a Python code based on user requirement",
			Markers:     []string{"software engineer"},
		},
		{
			Name:        QATester,
			Description: "Writes test cases for the code",
			Prompt:      "Generate the testcases for the given code",
			Markers:     []string{"tester"},
		},
		{
			Name:        DeploymentEngineer,
			Description: "Documents the delivered code",
			Prompt:      "Generate the documentation for the given deployed code",
			Markers:     []string{"deployment engineer"},
		},
		{
			Name:        DataEngineer,
			Description: "Writes SQL queries",
			Prompt:      "Generate a Sql query based on user requirement:",
			Markers:     []string{"data engineer"},
		},
	}

	roles := make([]*RoleAgent, 0, len(specs))
	for i := range specs {
		m, err := provider(specs[i].Name)
		if err != nil {
			return nil, fmt.Errorf("model for %s: %w", specs[i].Name, err)
		}
		r := specs[i]
		r.Model = m
		r.Temperature = DefaultTemperature
		r.MaxTokens = DefaultMaxTokens
		roles = append(roles, &r)
	}
	return roles, nil
}
