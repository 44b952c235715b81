package tools

import (
	"context"
	"strings"

	"github.com/ggoodman/cms-mcp-server/backend"
	"github.com/ggoodman/cms-mcp-server/envelope"
	"github.com/ggoodman/cms-mcp-server/handler"
	"github.com/ggoodman/cms-mcp-server/registry"
	"github.com/ggoodman/cms-mcp-server/router"
)

type UploadListArgs struct {
	registry.Credentials
	registry.Paged
	registry.Localized
	Query string `json:"query,omitempty" jsonschema:"description=Search by filename or metadata"`
	Type  string `json:"type,omitempty" jsonschema:"enum=image,enum=video,enum=audio,enum=document,enum=archive,enum=other"`
}

type UploadIDArgs struct {
	registry.Credentials
	UploadID string `json:"uploadId" jsonschema:"minLength=1,description=Upload id"`
}

func (a UploadIDArgs) TargetID() string { return a.UploadID }

type UploadRetrieveArgs struct {
	UploadIDArgs
	registry.Localized
}

type UploadCreateArgs struct {
	registry.Credentials
	URL       string   `json:"url" jsonschema:"minLength=1,format=uri,description=Publicly reachable URL the file is fetched from"`
	Filename  string   `json:"filename,omitempty"`
	Author    string   `json:"author,omitempty"`
	Copyright string   `json:"copyright,omitempty"`
	Notes     string   `json:"notes,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	// DefaultFieldMetadata is keyed by locale.
	DefaultFieldMetadata map[string]any `json:"defaultFieldMetadata,omitempty" jsonschema:"description=Alt text and title keyed by locale"`
}

func (a UploadCreateArgs) attributes() map[string]any {
	attrs := map[string]any{"path": a.URL}
	set := func(k, v string) {
		if v != "" {
			attrs[k] = v
		}
	}
	set("filename", a.Filename)
	set("author", a.Author)
	set("copyright", a.Copyright)
	set("notes", a.Notes)
	if len(a.Tags) > 0 {
		attrs["tags"] = a.Tags
	}
	if len(a.DefaultFieldMetadata) > 0 {
		attrs["default_field_metadata"] = a.DefaultFieldMetadata
	}
	return attrs
}

type UploadUpdateArgs struct {
	UploadIDArgs
	Attributes map[string]any `json:"attributes" jsonschema:"description=Upload attributes to change such as author or tags"`
}

func (a UploadUpdateArgs) Check() []envelope.Issue { return requireAttributes(a.Attributes) }

type UploadBulkArgs struct {
	registry.Credentials
	UploadIDs []string `json:"uploadIds" jsonschema:"minItems=1,description=Upload ids. At most 200 per call"`
}

func (a UploadBulkArgs) BulkIDs() []string { return a.UploadIDs }

type UploadTagsArgs struct {
	registry.Credentials
	Filter string `json:"filter,omitempty" jsonschema:"description=Case-insensitive substring the tag name must contain"`
}

// UploadsTable declares the uploads domain.
func UploadsTable(deps handler.Deps) router.Table {
	return table(
		handler.New(deps, handler.Config[UploadListArgs]{
			Domain: Uploads, Action: "list", Variant: handler.List, Entity: "Upload",
			Description: "List uploads.",
			Locales:     siteLocales,
			Call: func(ctx context.Context, c backend.Client, a UploadListArgs) (any, error) {
				page := a.Paging()
				p := listParams(page.Limit, page.Offset)
				p.Query = a.Query
				if a.Type != "" {
					p.Filter = map[string]string{"type": a.Type}
				}
				return c.ListUploads(ctx, p)
			},
		}),
		handler.New(deps, handler.Config[UploadRetrieveArgs]{
			Domain: Uploads, Action: "retrieve", Variant: handler.Retrieve, Entity: "Upload",
			Description: "Retrieve one upload by id.",
			Locales:     siteLocales,
			Call: func(ctx context.Context, c backend.Client, a UploadRetrieveArgs) (any, error) {
				return c.FindUpload(ctx, a.UploadID)
			},
		}),
		handler.New(deps, handler.Config[UploadCreateArgs]{
			Domain: Uploads, Action: "create", Variant: handler.Create, Entity: "Upload",
			Description: "Create an upload from a remote URL.",
			Call: func(ctx context.Context, c backend.Client, a UploadCreateArgs) (any, error) {
				return c.CreateUpload(ctx, a.attributes())
			},
		}),
		handler.New(deps, handler.Config[UploadUpdateArgs]{
			Domain: Uploads, Action: "update", Variant: handler.Update, Entity: "Upload",
			Description: "Change upload metadata.",
			Call: func(ctx context.Context, c backend.Client, a UploadUpdateArgs) (any, error) {
				return c.UpdateUpload(ctx, a.UploadID, a.Attributes)
			},
		}),
		handler.New(deps, handler.Config[UploadIDArgs]{
			Domain: Uploads, Action: "delete", Variant: handler.Delete, Entity: "Upload",
			Description: "Delete one upload.",
			Call: func(ctx context.Context, c backend.Client, a UploadIDArgs) (any, error) {
				return c.DestroyUpload(ctx, a.UploadID)
			},
		}),
		handler.New(deps, handler.Config[UploadTagsArgs]{
			Domain: Uploads, Action: "list_tags", Variant: handler.Custom,
			Description: "List upload tags whose name contains filter.",
			Call: func(ctx context.Context, c backend.Client, a UploadTagsArgs) (any, error) {
				tags, err := c.ListUploadTags(ctx)
				if err != nil {
					return nil, err
				}
				return filterTags(tags, a.Filter), nil
			},
		}),
		handler.New(deps, handler.Config[UploadBulkArgs]{
			Domain: Uploads, Action: "bulk_delete", Variant: handler.Bulk, Entity: "Upload",
			Description: "Delete up to 200 uploads.",
			Call: func(ctx context.Context, c backend.Client, a UploadBulkArgs) (any, error) {
				return c.DestroyUploads(ctx, a.UploadIDs)
			},
		}),
	)
}

func filterTags(tags []backend.Resource, filter string) []backend.Resource {
	needle := strings.ToLower(strings.TrimSpace(filter))
	out := make([]backend.Resource, 0, len(tags))
	for _, t := range tags {
		if needle == "" || strings.Contains(strings.ToLower(tagName(t)), needle) {
			out = append(out, t)
		}
	}
	return out
}

func tagName(t backend.Resource) string {
	if name, ok := t.Attributes["name"].(string); ok {
		return name
	}
	return t.ID
}
