package tools

import (
	"context"

	"github.com/ggoodman/cms-mcp-server/backend"
	"github.com/ggoodman/cms-mcp-server/envelope"
	"github.com/ggoodman/cms-mcp-server/handler"
	"github.com/ggoodman/cms-mcp-server/registry"
	"github.com/ggoodman/cms-mcp-server/router"
)

type EnvironmentListArgs struct {
	registry.Credentials
}

type EnvironmentIDArgs struct {
	registry.Credentials
	EnvironmentID string `json:"environmentId" jsonschema:"minLength=1,description=Environment id"`
}

func (a EnvironmentIDArgs) TargetID() string { return a.EnvironmentID }

type EnvironmentForkArgs struct {
	EnvironmentIDArgs
	NewID string `json:"newId" jsonschema:"pattern=^[a-z0-9][a-z0-9-]*$,description=Id of the sandbox to create"`
	Fast  bool   `json:"fast,omitempty" jsonschema:"description=Skip the consistency lock. Writes during the fork may be lost"`
}

func (a EnvironmentForkArgs) Check() []envelope.Issue {
	if a.NewID == a.EnvironmentID {
		return []envelope.Issue{{Path: "newId", Message: "must differ from environmentId"}}
	}
	return nil
}

type EnvironmentRenameArgs struct {
	EnvironmentIDArgs
	NewID string `json:"newId" jsonschema:"pattern=^[a-z0-9][a-z0-9-]*$,description=New environment id"`
}

func (a EnvironmentRenameArgs) Check() []envelope.Issue {
	if a.NewID == a.EnvironmentID {
		return []envelope.Issue{{Path: "newId", Message: "must differ from environmentId"}}
	}
	return nil
}

// EnvironmentsTable declares the environments domain.
func EnvironmentsTable(deps handler.Deps) router.Table {
	return table(
		handler.New(deps, handler.Config[EnvironmentListArgs]{
			Domain: Environments, Action: "list", Variant: handler.List, Entity: "Environment",
			Description: "List the primary environment and all sandboxes.",
			Call: func(ctx context.Context, c backend.Client, _ EnvironmentListArgs) (any, error) {
				return c.ListEnvironments(ctx)
			},
		}),
		handler.New(deps, handler.Config[EnvironmentIDArgs]{
			Domain: Environments, Action: "retrieve", Variant: handler.Retrieve, Entity: "Environment",
			Description: "Retrieve one environment.",
			Call: func(ctx context.Context, c backend.Client, a EnvironmentIDArgs) (any, error) {
				return c.FindEnvironment(ctx, a.EnvironmentID)
			},
		}),
		handler.New(deps, handler.Config[EnvironmentForkArgs]{
			Domain: Environments, Action: "fork", Variant: handler.Create, Entity: "Environment",
			Description: "Fork an environment into a new sandbox.",
			Call: func(ctx context.Context, c backend.Client, a EnvironmentForkArgs) (any, error) {
				return c.ForkEnvironment(ctx, a.EnvironmentID, a.NewID, a.Fast)
			},
		}),
		handler.New(deps, handler.Config[EnvironmentIDArgs]{
			Domain: Environments, Action: "promote", Variant: handler.Custom, Entity: "Environment",
			Description: "Promote a sandbox to primary.",
			Call: func(ctx context.Context, c backend.Client, a EnvironmentIDArgs) (any, error) {
				return c.PromoteEnvironment(ctx, a.EnvironmentID)
			},
		}),
		handler.New(deps, handler.Config[EnvironmentRenameArgs]{
			Domain: Environments, Action: "rename", Variant: handler.Update, Entity: "Environment",
			Description: "Rename a sandbox.",
			Call: func(ctx context.Context, c backend.Client, a EnvironmentRenameArgs) (any, error) {
				return c.RenameEnvironment(ctx, a.EnvironmentID, a.NewID)
			},
		}),
		handler.New(deps, handler.Config[EnvironmentIDArgs]{
			Domain: Environments, Action: "delete", Variant: handler.Delete, Entity: "Environment",
			Description: "Delete a sandbox.",
			Call: func(ctx context.Context, c backend.Client, a EnvironmentIDArgs) (any, error) {
				return c.DestroyEnvironment(ctx, a.EnvironmentID)
			},
		}),
	)
}
