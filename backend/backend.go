// Package backend describes the Content Backend as a set of named, per-domain
// capabilities. Handlers depend on these interfaces; a single adapter type
// (see package httpapi) implements all of them for one authenticated
// (token, environment) pair.
package backend

import (
	"context"
)

// Resource is a JSON:API resource object as returned by the content API.
type Resource struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Attributes    map[string]any `json:"attributes,omitempty"`
	Relationships map[string]any `json:"relationships,omitempty"`
	Meta          map[string]any `json:"meta,omitempty"`
}

// ListParams narrows a list call. Zero values are omitted from the request.
type ListParams struct {
	Limit   int
	Offset  int
	Query   string
	OrderBy string
	Filter  map[string]string
}

// Site is the project-level configuration relevant to callers.
type Site struct {
	ID      string   `json:"id"`
	Name    string   `json:"name,omitempty"`
	Locales []string `json:"locales"`
}

// RecordsAPI manages content records.
type RecordsAPI interface {
	ListRecords(ctx context.Context, p ListParams) ([]Resource, error)
	FindRecord(ctx context.Context, id string) (Resource, error)
	CreateRecord(ctx context.Context, modelID string, fields map[string]any) (Resource, error)
	UpdateRecord(ctx context.Context, id string, fields map[string]any) (Resource, error)
	DestroyRecord(ctx context.Context, id string) (Resource, error)
	PublishRecords(ctx context.Context, ids []string) (Job, error)
	UnpublishRecords(ctx context.Context, ids []string) (Job, error)
	DestroyRecords(ctx context.Context, ids []string) (Job, error)
}

// UploadsAPI manages media uploads.
type UploadsAPI interface {
	ListUploads(ctx context.Context, p ListParams) ([]Resource, error)
	FindUpload(ctx context.Context, id string) (Resource, error)
	CreateUpload(ctx context.Context, attrs map[string]any) (Resource, error)
	UpdateUpload(ctx context.Context, id string, attrs map[string]any) (Resource, error)
	DestroyUpload(ctx context.Context, id string) (Resource, error)
	DestroyUploads(ctx context.Context, ids []string) (Job, error)
	ListUploadTags(ctx context.Context) ([]Resource, error)
}

// SchemaAPI manages models, their fields and the site configuration.
type SchemaAPI interface {
	ListModels(ctx context.Context) ([]Resource, error)
	FindModel(ctx context.Context, id string) (Resource, error)
	CreateModel(ctx context.Context, attrs map[string]any) (Resource, error)
	UpdateModel(ctx context.Context, id string, attrs map[string]any) (Resource, error)
	DestroyModel(ctx context.Context, id string) (Resource, error)
	ListFields(ctx context.Context, modelID string) ([]Resource, error)
	FindField(ctx context.Context, id string) (Resource, error)
	CreateField(ctx context.Context, modelID string, attrs map[string]any) (Resource, error)
	UpdateField(ctx context.Context, id string, attrs map[string]any) (Resource, error)
	DestroyField(ctx context.Context, id string) (Resource, error)
	FindSite(ctx context.Context) (Site, error)
}

// EnvironmentsAPI manages sandbox and primary environments.
type EnvironmentsAPI interface {
	ListEnvironments(ctx context.Context) ([]Resource, error)
	FindEnvironment(ctx context.Context, id string) (Resource, error)
	ForkEnvironment(ctx context.Context, sourceID, newID string, fast bool) (Resource, error)
	PromoteEnvironment(ctx context.Context, id string) (Resource, error)
	RenameEnvironment(ctx context.Context, id, newID string) (Resource, error)
	DestroyEnvironment(ctx context.Context, id string) (Resource, error)
}

// WebhooksAPI manages outgoing webhooks.
type WebhooksAPI interface {
	ListWebhooks(ctx context.Context) ([]Resource, error)
	FindWebhook(ctx context.Context, id string) (Resource, error)
	CreateWebhook(ctx context.Context, attrs map[string]any) (Resource, error)
	UpdateWebhook(ctx context.Context, id string, attrs map[string]any) (Resource, error)
	DestroyWebhook(ctx context.Context, id string) (Resource, error)
}

// Client is the full capability set bound to one (token, environment) pair.
type Client interface {
	RecordsAPI
	UploadsAPI
	SchemaAPI
	EnvironmentsAPI
	WebhooksAPI
}

// Job is the acknowledgement of an asynchronous bulk operation.
type Job struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status,omitempty"`
	Count  int    `json:"count"`
}
