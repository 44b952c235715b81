package tools

import (
	"context"

	"github.com/ggoodman/cms-mcp-server/backend"
	"github.com/ggoodman/cms-mcp-server/envelope"
	"github.com/ggoodman/cms-mcp-server/handler"
	"github.com/ggoodman/cms-mcp-server/registry"
	"github.com/ggoodman/cms-mcp-server/router"
)

type WebhookListArgs struct {
	registry.Credentials
}

type WebhookIDArgs struct {
	registry.Credentials
	WebhookID string `json:"webhookId" jsonschema:"minLength=1,description=Webhook id"`
}

func (a WebhookIDArgs) TargetID() string { return a.WebhookID }

// WebhookEvent selects the events of one entity type.
type WebhookEvent struct {
	EntityType string   `json:"entityType" jsonschema:"enum=item,enum=item_type,enum=upload,enum=build_trigger,enum=environment,enum=maintenance_mode,enum=sso_user,enum=cda_cache_tags"`
	EventTypes []string `json:"eventTypes" jsonschema:"minItems=1,description=Events such as create or update or publish"`
}

type WebhookCreateArgs struct {
	registry.Credentials
	Name          string            `json:"name" jsonschema:"minLength=1"`
	URL           string            `json:"url" jsonschema:"minLength=1,format=uri"`
	Events        []WebhookEvent    `json:"events" jsonschema:"minItems=1"`
	Headers       map[string]string `json:"headers,omitempty"`
	CustomPayload string            `json:"customPayload,omitempty" jsonschema:"description=Mustache template replacing the default payload"`
	Disabled      bool              `json:"disabled,omitempty"`
}

func (a WebhookCreateArgs) attributes() map[string]any {
	events := make([]map[string]any, 0, len(a.Events))
	for _, e := range a.Events {
		events = append(events, map[string]any{"entity_type": e.EntityType, "event_types": e.EventTypes})
	}
	attrs := map[string]any{
		"name":    a.Name,
		"url":     a.URL,
		"events":  events,
		"enabled": !a.Disabled,
		"headers": a.Headers,
	}
	if a.Headers == nil {
		attrs["headers"] = map[string]string{}
	}
	if a.CustomPayload != "" {
		attrs["custom_payload"] = a.CustomPayload
	}
	return attrs
}

type WebhookUpdateArgs struct {
	WebhookIDArgs
	Attributes map[string]any `json:"attributes" jsonschema:"description=Webhook attributes to change"`
}

func (a WebhookUpdateArgs) Check() []envelope.Issue { return requireAttributes(a.Attributes) }

// WebhooksTable declares the webhooks domain.
func WebhooksTable(deps handler.Deps) router.Table {
	return table(
		handler.New(deps, handler.Config[WebhookListArgs]{
			Domain: Webhooks, Action: "list", Variant: handler.List, Entity: "Webhook",
			Description: "List webhooks.",
			Call: func(ctx context.Context, c backend.Client, _ WebhookListArgs) (any, error) {
				return c.ListWebhooks(ctx)
			},
		}),
		handler.New(deps, handler.Config[WebhookIDArgs]{
			Domain: Webhooks, Action: "retrieve", Variant: handler.Retrieve, Entity: "Webhook",
			Description: "Retrieve one webhook.",
			Call: func(ctx context.Context, c backend.Client, a WebhookIDArgs) (any, error) {
				return c.FindWebhook(ctx, a.WebhookID)
			},
		}),
		handler.New(deps, handler.Config[WebhookCreateArgs]{
			Domain: Webhooks, Action: "create", Variant: handler.Create, Entity: "Webhook",
			Description: "Create a webhook.",
			Call: func(ctx context.Context, c backend.Client, a WebhookCreateArgs) (any, error) {
				return c.CreateWebhook(ctx, a.attributes())
			},
		}),
		handler.New(deps, handler.Config[WebhookUpdateArgs]{
			Domain: Webhooks, Action: "update", Variant: handler.Update, Entity: "Webhook",
			Description: "Change webhook attributes.",
			Call: func(ctx context.Context, c backend.Client, a WebhookUpdateArgs) (any, error) {
				return c.UpdateWebhook(ctx, a.WebhookID, a.Attributes)
			},
		}),
		handler.New(deps, handler.Config[WebhookIDArgs]{
			Domain: Webhooks, Action: "delete", Variant: handler.Delete, Entity: "Webhook",
			Description: "Delete a webhook.",
			Call: func(ctx context.Context, c backend.Client, a WebhookIDArgs) (any, error) {
				return c.DestroyWebhook(ctx, a.WebhookID)
			},
		}),
	)
}
