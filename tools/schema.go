package tools

import (
	"context"

	"github.com/ggoodman/cms-mcp-server/backend"
	"github.com/ggoodman/cms-mcp-server/envelope"
	"github.com/ggoodman/cms-mcp-server/handler"
	"github.com/ggoodman/cms-mcp-server/registry"
	"github.com/ggoodman/cms-mcp-server/router"
)

type SchemaArgs struct {
	registry.Credentials
}

type ModelIDArgs struct {
	registry.Credentials
	ModelID string `json:"modelId" jsonschema:"minLength=1,description=Model id"`
}

func (a ModelIDArgs) TargetID() string { return a.ModelID }

type ModelCreateArgs struct {
	registry.Credentials
	Name               string `json:"name" jsonschema:"minLength=1"`
	APIKey             string `json:"apiKey" jsonschema:"pattern=^[a-z][a-z0-9_]*$,description=Identifier used by the API"`
	Singleton          bool   `json:"singleton,omitempty"`
	ModularBlock       bool   `json:"modularBlock,omitempty" jsonschema:"description=Create a block model instead of a record model"`
	DraftModeActive    bool   `json:"draftModeActive,omitempty"`
	AllLocalesRequired bool   `json:"allLocalesRequired,omitempty"`
	Hint               string `json:"hint,omitempty"`
}

func (a ModelCreateArgs) attributes() map[string]any {
	attrs := map[string]any{
		"name":                 a.Name,
		"api_key":              a.APIKey,
		"singleton":            a.Singleton,
		"modular_block":        a.ModularBlock,
		"draft_mode_active":    a.DraftModeActive,
		"all_locales_required": a.AllLocalesRequired,
	}
	if a.Hint != "" {
		attrs["hint"] = a.Hint
	}
	return attrs
}

type ModelUpdateArgs struct {
	ModelIDArgs
	Attributes map[string]any `json:"attributes" jsonschema:"description=Model attributes to change"`
}

func (a ModelUpdateArgs) Check() []envelope.Issue { return requireAttributes(a.Attributes) }

type FieldIDArgs struct {
	registry.Credentials
	FieldID string `json:"fieldId" jsonschema:"minLength=1,description=Field id"`
}

func (a FieldIDArgs) TargetID() string { return a.FieldID }

type FieldCreateArgs struct {
	ModelIDArgs
	Label      string         `json:"label" jsonschema:"minLength=1"`
	APIKey     string         `json:"apiKey" jsonschema:"pattern=^[a-z][a-z0-9_]*$"`
	FieldType  string         `json:"fieldType" jsonschema:"enum=boolean,enum=color,enum=date,enum=date_time,enum=file,enum=float,enum=gallery,enum=integer,enum=json,enum=lat_lon,enum=link,enum=links,enum=rich_text,enum=seo,enum=single_block,enum=slug,enum=string,enum=structured_text,enum=text,enum=video"`
	Localized  bool           `json:"localized,omitempty"`
	Hint       string         `json:"hint,omitempty"`
	Validators map[string]any `json:"validators,omitempty"`
	Appearance map[string]any `json:"appearance,omitempty"`
}

func (a FieldCreateArgs) attributes() map[string]any {
	attrs := map[string]any{
		"label":      a.Label,
		"api_key":    a.APIKey,
		"field_type": a.FieldType,
		"localized":  a.Localized,
	}
	if a.Hint != "" {
		attrs["hint"] = a.Hint
	}
	if a.Validators != nil {
		attrs["validators"] = a.Validators
	}
	if a.Appearance != nil {
		attrs["appearance"] = a.Appearance
	}
	return attrs
}

type FieldUpdateArgs struct {
	FieldIDArgs
	Attributes map[string]any `json:"attributes" jsonschema:"description=Field attributes to change"`
}

func (a FieldUpdateArgs) Check() []envelope.Issue { return requireAttributes(a.Attributes) }

// SchemaTable declares the schema domain.
func SchemaTable(deps handler.Deps) router.Table {
	return table(
		handler.New(deps, handler.Config[SchemaArgs]{
			Domain: Schema, Action: "list_models", Variant: handler.List, Entity: "Model",
			Description: "List models and block models.",
			Call: func(ctx context.Context, c backend.Client, _ SchemaArgs) (any, error) {
				return c.ListModels(ctx)
			},
		}),
		handler.New(deps, handler.Config[ModelIDArgs]{
			Domain: Schema, Action: "retrieve_model", Variant: handler.Retrieve, Entity: "Model",
			Description: "Retrieve one model by id or API key.",
			Call: func(ctx context.Context, c backend.Client, a ModelIDArgs) (any, error) {
				return c.FindModel(ctx, a.ModelID)
			},
		}),
		handler.New(deps, handler.Config[ModelCreateArgs]{
			Domain: Schema, Action: "create_model", Variant: handler.Create, Entity: "Model",
			Description: "Create a model or block model.",
			Call: func(ctx context.Context, c backend.Client, a ModelCreateArgs) (any, error) {
				return c.CreateModel(ctx, a.attributes())
			},
		}),
		handler.New(deps, handler.Config[ModelUpdateArgs]{
			Domain: Schema, Action: "update_model", Variant: handler.Update, Entity: "Model",
			Description: "Change model attributes.",
			Call: func(ctx context.Context, c backend.Client, a ModelUpdateArgs) (any, error) {
				return c.UpdateModel(ctx, a.ModelID, a.Attributes)
			},
		}),
		handler.New(deps, handler.Config[ModelIDArgs]{
			Domain: Schema, Action: "delete_model", Variant: handler.Delete, Entity: "Model",
			Description: "Delete a model and all of its records.",
			Call: func(ctx context.Context, c backend.Client, a ModelIDArgs) (any, error) {
				return c.DestroyModel(ctx, a.ModelID)
			},
		}),
		handler.New(deps, handler.Config[ModelIDArgs]{
			Domain: Schema, Action: "list_fields", Variant: handler.List, Entity: "Model",
			Description: "List the fields of a model.",
			Call: func(ctx context.Context, c backend.Client, a ModelIDArgs) (any, error) {
				return c.ListFields(ctx, a.ModelID)
			},
		}),
		handler.New(deps, handler.Config[FieldIDArgs]{
			Domain: Schema, Action: "retrieve_field", Variant: handler.Retrieve, Entity: "Field",
			Description: "Retrieve one field by id.",
			Call: func(ctx context.Context, c backend.Client, a FieldIDArgs) (any, error) {
				return c.FindField(ctx, a.FieldID)
			},
		}),
		handler.New(deps, handler.Config[FieldCreateArgs]{
			Domain: Schema, Action: "create_field", Variant: handler.Create, Entity: "Model",
			Description: "Add a field to a model.",
			Call: func(ctx context.Context, c backend.Client, a FieldCreateArgs) (any, error) {
				return c.CreateField(ctx, a.ModelID, a.attributes())
			},
		}),
		handler.New(deps, handler.Config[FieldUpdateArgs]{
			Domain: Schema, Action: "update_field", Variant: handler.Update, Entity: "Field",
			Description: "Change field attributes.",
			Call: func(ctx context.Context, c backend.Client, a FieldUpdateArgs) (any, error) {
				return c.UpdateField(ctx, a.FieldID, a.Attributes)
			},
		}),
		handler.New(deps, handler.Config[FieldIDArgs]{
			Domain: Schema, Action: "delete_field", Variant: handler.Delete, Entity: "Field",
			Description: "Delete a field.",
			Call: func(ctx context.Context, c backend.Client, a FieldIDArgs) (any, error) {
				return c.DestroyField(ctx, a.FieldID)
			},
		}),
		handler.New(deps, handler.Config[SchemaArgs]{
			Domain: Schema, Action: "retrieve_site", Variant: handler.Custom,
			Description: "Retrieve site settings including the locale order.",
			Call: func(ctx context.Context, c backend.Client, _ SchemaArgs) (any, error) {
				return c.FindSite(ctx)
			},
		}),
	)
}
