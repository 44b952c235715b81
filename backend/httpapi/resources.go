package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ggoodman/cms-mcp-server/backend"
)

// document wraps a resource object for create and update bodies.
type document struct {
	Data resourceBody `json:"data"`
}

type resourceBody struct {
	ID            string         `json:"id,omitempty"`
	Type          string         `json:"type"`
	Attributes    map[string]any `json:"attributes,omitempty"`
	Relationships map[string]any `json:"relationships,omitempty"`
}

// idList is the body of bulk endpoints.
type idList struct {
	Data struct {
		Type          string `json:"type"`
		Relationships struct {
			Items struct {
				Data []ref `json:"data"`
			} `json:"items"`
		} `json:"relationships"`
	} `json:"data"`
}

type ref struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

func newIDList(kind, itemType string, ids []string) idList {
	var l idList
	l.Data.Type = kind
	l.Data.Relationships.Items.Data = make([]ref, len(ids))
	for i, id := range ids {
		l.Data.Relationships.Items.Data[i] = ref{ID: id, Type: itemType}
	}
	return l
}

func listQuery(p backend.ListParams) url.Values {
	q := url.Values{}
	if p.Limit > 0 {
		q.Set("page[limit]", strconv.Itoa(p.Limit))
	}
	if p.Offset > 0 {
		q.Set("page[offset]", strconv.Itoa(p.Offset))
	}
	if p.Query != "" {
		q.Set("filter[query]", p.Query)
	}
	if p.OrderBy != "" {
		q.Set("order_by", p.OrderBy)
	}
	for k, v := range p.Filter {
		q.Set("filter["+k+"]", v)
	}
	return q
}

func (c *Client) list(ctx context.Context, path string, q url.Values) ([]backend.Resource, error) {
	var out []backend.Resource
	if err := c.do(ctx, request{method: http.MethodGet, path: path, query: q}, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []backend.Resource{}
	}
	return out, nil
}

func (c *Client) find(ctx context.Context, resource, path, id string) (backend.Resource, error) {
	var out backend.Resource
	err := c.do(ctx, request{method: http.MethodGet, path: path}, &out)
	return out, target(err, resource, id)
}

func (c *Client) write(ctx context.Context, method, resource, path, id string, body any) (backend.Resource, error) {
	var out backend.Resource
	err := c.do(ctx, request{method: method, path: path, body: body}, &out)
	return out, target(err, resource, id)
}

func (c *Client) bulk(ctx context.Context, path, kind, itemType string, ids []string) (backend.Job, error) {
	var out struct {
		ID         string `json:"id"`
		Attributes struct {
			Status string `json:"status"`
		} `json:"attributes"`
	}
	if err := c.do(ctx, request{method: http.MethodPost, path: path, body: newIDList(kind, itemType, ids)}, &out); err != nil {
		return backend.Job{}, err
	}
	status := out.Attributes.Status
	if status == "" {
		status = "queued"
	}
	return backend.Job{ID: out.ID, Status: status, Count: len(ids)}, nil
}

// Records.

func (c *Client) ListRecords(ctx context.Context, p backend.ListParams) ([]backend.Resource, error) {
	return c.list(ctx, "/items", listQuery(p))
}

func (c *Client) FindRecord(ctx context.Context, id string) (backend.Resource, error) {
	return c.find(ctx, "Record", "/items/"+url.PathEscape(id), id)
}

func (c *Client) CreateRecord(ctx context.Context, modelID string, fields map[string]any) (backend.Resource, error) {
	body := document{Data: resourceBody{
		Type:       "item",
		Attributes: fields,
		Relationships: map[string]any{
			"item_type": map[string]any{"data": ref{ID: modelID, Type: "item_type"}},
		},
	}}
	return c.write(ctx, http.MethodPost, "Model", "/items", modelID, body)
}

func (c *Client) UpdateRecord(ctx context.Context, id string, fields map[string]any) (backend.Resource, error) {
	body := document{Data: resourceBody{ID: id, Type: "item", Attributes: fields}}
	return c.write(ctx, http.MethodPut, "Record", "/items/"+url.PathEscape(id), id, body)
}

func (c *Client) DestroyRecord(ctx context.Context, id string) (backend.Resource, error) {
	return c.write(ctx, http.MethodDelete, "Record", "/items/"+url.PathEscape(id), id, nil)
}

func (c *Client) PublishRecords(ctx context.Context, ids []string) (backend.Job, error) {
	return c.bulk(ctx, "/items/bulk/publish", "item_bulk_publish_operation", "item", ids)
}

func (c *Client) UnpublishRecords(ctx context.Context, ids []string) (backend.Job, error) {
	return c.bulk(ctx, "/items/bulk/unpublish", "item_bulk_unpublish_operation", "item", ids)
}

func (c *Client) DestroyRecords(ctx context.Context, ids []string) (backend.Job, error) {
	return c.bulk(ctx, "/items/bulk/destroy", "item_bulk_destroy_operation", "item", ids)
}

// Uploads.

func (c *Client) ListUploads(ctx context.Context, p backend.ListParams) ([]backend.Resource, error) {
	return c.list(ctx, "/uploads", listQuery(p))
}

func (c *Client) FindUpload(ctx context.Context, id string) (backend.Resource, error) {
	return c.find(ctx, "Upload", "/uploads/"+url.PathEscape(id), id)
}

func (c *Client) CreateUpload(ctx context.Context, attrs map[string]any) (backend.Resource, error) {
	return c.write(ctx, http.MethodPost, "Upload", "/uploads", "", document{Data: resourceBody{Type: "upload", Attributes: attrs}})
}

func (c *Client) UpdateUpload(ctx context.Context, id string, attrs map[string]any) (backend.Resource, error) {
	body := document{Data: resourceBody{ID: id, Type: "upload", Attributes: attrs}}
	return c.write(ctx, http.MethodPut, "Upload", "/uploads/"+url.PathEscape(id), id, body)
}

func (c *Client) DestroyUpload(ctx context.Context, id string) (backend.Resource, error) {
	return c.write(ctx, http.MethodDelete, "Upload", "/uploads/"+url.PathEscape(id), id, nil)
}

func (c *Client) DestroyUploads(ctx context.Context, ids []string) (backend.Job, error) {
	return c.bulk(ctx, "/uploads/bulk/destroy", "upload_bulk_destroy_operation", "upload", ids)
}

func (c *Client) ListUploadTags(ctx context.Context) ([]backend.Resource, error) {
	return c.list(ctx, "/upload-tags", nil)
}

// Schema.

func (c *Client) ListModels(ctx context.Context) ([]backend.Resource, error) {
	return c.list(ctx, "/item-types", nil)
}

func (c *Client) FindModel(ctx context.Context, id string) (backend.Resource, error) {
	return c.find(ctx, "Model", "/item-types/"+url.PathEscape(id), id)
}

func (c *Client) CreateModel(ctx context.Context, attrs map[string]any) (backend.Resource, error) {
	return c.write(ctx, http.MethodPost, "Model", "/item-types", "", document{Data: resourceBody{Type: "item_type", Attributes: attrs}})
}

func (c *Client) UpdateModel(ctx context.Context, id string, attrs map[string]any) (backend.Resource, error) {
	body := document{Data: resourceBody{ID: id, Type: "item_type", Attributes: attrs}}
	return c.write(ctx, http.MethodPut, "Model", "/item-types/"+url.PathEscape(id), id, body)
}

func (c *Client) DestroyModel(ctx context.Context, id string) (backend.Resource, error) {
	return c.write(ctx, http.MethodDelete, "Model", "/item-types/"+url.PathEscape(id), id, nil)
}

func (c *Client) ListFields(ctx context.Context, modelID string) ([]backend.Resource, error) {
	out, err := c.list(ctx, "/item-types/"+url.PathEscape(modelID)+"/fields", nil)
	return out, target(err, "Model", modelID)
}

func (c *Client) FindField(ctx context.Context, id string) (backend.Resource, error) {
	return c.find(ctx, "Field", "/fields/"+url.PathEscape(id), id)
}

func (c *Client) CreateField(ctx context.Context, modelID string, attrs map[string]any) (backend.Resource, error) {
	body := document{Data: resourceBody{Type: "field", Attributes: attrs}}
	return c.write(ctx, http.MethodPost, "Model", "/item-types/"+url.PathEscape(modelID)+"/fields", modelID, body)
}

func (c *Client) UpdateField(ctx context.Context, id string, attrs map[string]any) (backend.Resource, error) {
	body := document{Data: resourceBody{ID: id, Type: "field", Attributes: attrs}}
	return c.write(ctx, http.MethodPut, "Field", "/fields/"+url.PathEscape(id), id, body)
}

func (c *Client) DestroyField(ctx context.Context, id string) (backend.Resource, error) {
	return c.write(ctx, http.MethodDelete, "Field", "/fields/"+url.PathEscape(id), id, nil)
}

func (c *Client) FindSite(ctx context.Context) (backend.Site, error) {
	var out struct {
		ID         string `json:"id"`
		Attributes struct {
			Name    string   `json:"name"`
			Locales []string `json:"locales"`
		} `json:"attributes"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: "/site"}, &out); err != nil {
		return backend.Site{}, err
	}
	return backend.Site{ID: out.ID, Name: out.Attributes.Name, Locales: out.Attributes.Locales}, nil
}

// Environments.

func (c *Client) ListEnvironments(ctx context.Context) ([]backend.Resource, error) {
	return c.list(ctx, "/environments", nil)
}

func (c *Client) FindEnvironment(ctx context.Context, id string) (backend.Resource, error) {
	return c.find(ctx, "Environment", "/environments/"+url.PathEscape(id), id)
}

func (c *Client) ForkEnvironment(ctx context.Context, sourceID, newID string, fast bool) (backend.Resource, error) {
	body := document{Data: resourceBody{ID: newID, Type: "environment"}}
	path := "/environments/" + url.PathEscape(sourceID) + "/fork"
	var out backend.Resource
	req := request{method: http.MethodPost, path: path, body: body}
	if fast {
		req.query = url.Values{"fast": {"true"}}
	}
	err := c.do(ctx, req, &out)
	return out, target(err, "Environment", sourceID)
}

func (c *Client) PromoteEnvironment(ctx context.Context, id string) (backend.Resource, error) {
	return c.write(ctx, http.MethodPut, "Environment", "/environments/"+url.PathEscape(id)+"/promote", id, nil)
}

func (c *Client) RenameEnvironment(ctx context.Context, id, newID string) (backend.Resource, error) {
	body := document{Data: resourceBody{ID: newID, Type: "environment"}}
	return c.write(ctx, http.MethodPut, "Environment", "/environments/"+url.PathEscape(id)+"/rename", id, body)
}

func (c *Client) DestroyEnvironment(ctx context.Context, id string) (backend.Resource, error) {
	return c.write(ctx, http.MethodDelete, "Environment", "/environments/"+url.PathEscape(id), id, nil)
}

// Webhooks.

func (c *Client) ListWebhooks(ctx context.Context) ([]backend.Resource, error) {
	return c.list(ctx, "/webhooks", nil)
}

func (c *Client) FindWebhook(ctx context.Context, id string) (backend.Resource, error) {
	return c.find(ctx, "Webhook", "/webhooks/"+url.PathEscape(id), id)
}

func (c *Client) CreateWebhook(ctx context.Context, attrs map[string]any) (backend.Resource, error) {
	return c.write(ctx, http.MethodPost, "Webhook", "/webhooks", "", document{Data: resourceBody{Type: "webhook", Attributes: attrs}})
}

func (c *Client) UpdateWebhook(ctx context.Context, id string, attrs map[string]any) (backend.Resource, error) {
	body := document{Data: resourceBody{ID: id, Type: "webhook", Attributes: attrs}}
	return c.write(ctx, http.MethodPut, "Webhook", "/webhooks/"+url.PathEscape(id), id, body)
}

func (c *Client) DestroyWebhook(ctx context.Context, id string) (backend.Resource, error) {
	return c.write(ctx, http.MethodDelete, "Webhook", "/webhooks/"+url.PathEscape(id), id, nil)
}
