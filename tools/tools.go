// Package tools declares the content operation catalogue: one handler table
// per domain, built with the handler factory and ready for the router.
package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/ggoodman/cms-mcp-server/backend"
	"github.com/ggoodman/cms-mcp-server/envelope"
	"github.com/ggoodman/cms-mcp-server/handler"
	"github.com/ggoodman/cms-mcp-server/router"
)

// Domain names.
const (
	Records      = "records"
	Uploads      = "uploads"
	Schema       = "schema"
	Environments = "environments"
	Webhooks     = "webhooks"
)

// Tables builds every domain table.
func Tables(deps handler.Deps) map[string]router.Table {
	return map[string]router.Table{
		Records:      RecordsTable(deps),
		Uploads:      UploadsTable(deps),
		Schema:       SchemaTable(deps),
		Environments: EnvironmentsTable(deps),
		Webhooks:     WebhooksTable(deps),
	}
}

// Register installs every domain on r.
func Register(r *router.Router, deps handler.Deps) error {
	tables := Tables(deps)
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := r.Register(name, tables[name]); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	return nil
}

// Descriptions of the domains, used as tool descriptions.
var Descriptions = map[string]string{
	Records:      "Query and edit content records: list, retrieve, create, update, JSON-patch, delete, publish and unpublish.",
	Uploads:      "Manage media uploads and upload tags.",
	Schema:       "Inspect and edit the content schema: models, fields and site settings.",
	Environments: "Manage sandbox environments: fork, promote, rename and delete.",
	Webhooks:     "Manage outgoing webhooks.",
}

func table(hs ...*handler.Handler) router.Table {
	t := make(router.Table, len(hs))
	for _, h := range hs {
		t[h.Action] = h
	}
	return t
}

// siteLocales reads the locale declaration order of the session's site.
func siteLocales(ctx context.Context, c backend.Client) ([]string, error) {
	site, err := c.FindSite(ctx)
	if err != nil {
		return nil, err
	}
	return site.Locales, nil
}

// requireAttributes is shared by update operations taking a free-form
// attribute object.
func requireAttributes(attrs map[string]any) []envelope.Issue {
	if len(attrs) == 0 {
		return []envelope.Issue{{Path: "attributes", Message: "must contain at least one attribute"}}
	}
	return nil
}

// listParams maps pagination onto backend list parameters.
func listParams(limit, offset int) backend.ListParams {
	return backend.ListParams{Limit: limit, Offset: offset}
}
