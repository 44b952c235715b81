package tools

import (
	"context"
	"encoding/json"
	"reflect"
	"strconv"
	"strings"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/ggoodman/cms-mcp-server/backend"
	"github.com/ggoodman/cms-mcp-server/envelope"
	"github.com/ggoodman/cms-mcp-server/handler"
	"github.com/ggoodman/cms-mcp-server/registry"
	"github.com/ggoodman/cms-mcp-server/router"
)

type RecordListArgs struct {
	registry.Credentials
	registry.Paged
	registry.Localized
	ModelID string   `json:"modelId,omitempty" jsonschema:"description=Only return records of this model"`
	ItemIDs []string `json:"itemIds,omitempty" jsonschema:"maxItems=200,description=Only return records with these ids"`
	Query   string   `json:"query,omitempty" jsonschema:"description=Full-text search query"`
	OrderBy string   `json:"orderBy,omitempty" jsonschema:"description=Field to sort by such as updated_at_DESC"`
}

type RecordIDArgs struct {
	registry.Credentials
	ItemID string `json:"itemId" jsonschema:"minLength=1,description=Record id"`
}

func (a RecordIDArgs) TargetID() string { return a.ItemID }

type RecordRetrieveArgs struct {
	RecordIDArgs
	registry.Localized
}

type RecordCreateArgs struct {
	registry.Credentials
	ModelID string         `json:"modelId" jsonschema:"minLength=1,description=Model the record belongs to"`
	Fields  map[string]any `json:"fields" jsonschema:"description=Field values keyed by field API key. Localized fields take an object keyed by locale"`
}

func (a RecordCreateArgs) TargetID() string { return a.ModelID }

type RecordUpdateArgs struct {
	RecordIDArgs
	Fields map[string]any `json:"fields" jsonschema:"description=Field values to change keyed by field API key"`
}

func (a RecordUpdateArgs) Check() []envelope.Issue {
	if len(a.Fields) == 0 {
		return []envelope.Issue{{Path: "fields", Message: "must contain at least one field"}}
	}
	return nil
}

// PatchOperation is one RFC 6902 operation.
type PatchOperation struct {
	Op    string `json:"op" jsonschema:"enum=add,enum=remove,enum=replace,enum=move,enum=copy,enum=test"`
	Path  string `json:"path" jsonschema:"description=JSON pointer into the record fields such as /title/en"`
	From  string `json:"from,omitempty"`
	Value any    `json:"value,omitempty"`
}

type RecordPatchArgs struct {
	RecordIDArgs
	Operations []PatchOperation `json:"operations" jsonschema:"minItems=1,description=JSON Patch operations applied to the current field values"`
}

func (a RecordPatchArgs) Check() []envelope.Issue {
	var issues []envelope.Issue
	for i, op := range a.Operations {
		if (op.Op == "move" || op.Op == "copy") && op.From == "" {
			issues = append(issues, envelope.Issue{Path: "operations." + strconv.Itoa(i) + ".from", Message: "is required for " + op.Op})
		}
		if !strings.HasPrefix(op.Path, "/") {
			issues = append(issues, envelope.Issue{Path: "operations." + strconv.Itoa(i) + ".path", Message: "must be a JSON pointer starting with /"})
		}
	}
	return issues
}

type RecordBulkArgs struct {
	registry.Credentials
	ItemIDs []string `json:"itemIds" jsonschema:"minItems=1,description=Record ids. At most 200 per call"`
}

func (a RecordBulkArgs) BulkIDs() []string { return a.ItemIDs }

// RecordsTable declares the records domain.
func RecordsTable(deps handler.Deps) router.Table {
	return table(
		handler.New(deps, handler.Config[RecordListArgs]{
			Domain: Records, Action: "list", Variant: handler.List, Entity: "Record",
			Description: "List records with optional model, id and text filters.",
			Locales:     siteLocales,
			Call: func(ctx context.Context, c backend.Client, a RecordListArgs) (any, error) {
				page := a.Paging()
				p := listParams(page.Limit, page.Offset)
				p.Query = a.Query
				p.OrderBy = a.OrderBy
				p.Filter = map[string]string{}
				if a.ModelID != "" {
					p.Filter["type"] = a.ModelID
				}
				if len(a.ItemIDs) > 0 {
					p.Filter["ids"] = strings.Join(a.ItemIDs, ",")
				}
				return c.ListRecords(ctx, p)
			},
		}),
		handler.New(deps, handler.Config[RecordRetrieveArgs]{
			Domain: Records, Action: "retrieve", Variant: handler.Retrieve, Entity: "Record",
			Description: "Retrieve one record by id.",
			Locales:     siteLocales,
			Call: func(ctx context.Context, c backend.Client, a RecordRetrieveArgs) (any, error) {
				return c.FindRecord(ctx, a.ItemID)
			},
		}),
		handler.New(deps, handler.Config[RecordCreateArgs]{
			Domain: Records, Action: "create", Variant: handler.Create, Entity: "Model",
			Description: "Create a record of a model.",
			Call: func(ctx context.Context, c backend.Client, a RecordCreateArgs) (any, error) {
				return c.CreateRecord(ctx, a.ModelID, a.Fields)
			},
		}),
		handler.New(deps, handler.Config[RecordUpdateArgs]{
			Domain: Records, Action: "update", Variant: handler.Update, Entity: "Record",
			Description: "Replace the given field values of a record.",
			Call: func(ctx context.Context, c backend.Client, a RecordUpdateArgs) (any, error) {
				return c.UpdateRecord(ctx, a.ItemID, a.Fields)
			},
		}),
		handler.New(deps, handler.Config[RecordPatchArgs]{
			Domain: Records, Action: "patch", Variant: handler.Update, Entity: "Record",
			Description: "Apply JSON Patch operations to the current field values of a record.",
			Call:        patchRecord,
		}),
		handler.New(deps, handler.Config[RecordIDArgs]{
			Domain: Records, Action: "delete", Variant: handler.Delete, Entity: "Record",
			Description: "Delete one record.",
			Call: func(ctx context.Context, c backend.Client, a RecordIDArgs) (any, error) {
				return c.DestroyRecord(ctx, a.ItemID)
			},
		}),
		handler.New(deps, handler.Config[RecordBulkArgs]{
			Domain: Records, Action: "publish", Variant: handler.Bulk, Entity: "Record",
			Description: "Publish up to 200 records.",
			Call: func(ctx context.Context, c backend.Client, a RecordBulkArgs) (any, error) {
				return c.PublishRecords(ctx, a.ItemIDs)
			},
		}),
		handler.New(deps, handler.Config[RecordBulkArgs]{
			Domain: Records, Action: "unpublish", Variant: handler.Bulk, Entity: "Record",
			Description: "Unpublish up to 200 records.",
			Call: func(ctx context.Context, c backend.Client, a RecordBulkArgs) (any, error) {
				return c.UnpublishRecords(ctx, a.ItemIDs)
			},
		}),
		handler.New(deps, handler.Config[RecordBulkArgs]{
			Domain: Records, Action: "bulk_delete", Variant: handler.Bulk, Entity: "Record",
			Description: "Delete up to 200 records.",
			Call: func(ctx context.Context, c backend.Client, a RecordBulkArgs) (any, error) {
				return c.DestroyRecords(ctx, a.ItemIDs)
			},
		}),
	)
}

// patchRecord applies the operations to the record's current attributes and
// sends the top-level fields that changed. Removed fields are sent as null.
func patchRecord(ctx context.Context, c backend.Client, a RecordPatchArgs) (any, error) {
	ops, err := json.Marshal(a.Operations)
	if err != nil {
		return nil, err
	}
	patch, err := jsonpatch.DecodePatch(ops)
	if err != nil {
		return nil, &envelope.ValidationError{Issues: []envelope.Issue{{Path: "operations", Message: err.Error()}}}
	}

	current, err := c.FindRecord(ctx, a.ItemID)
	if err != nil {
		return nil, err
	}
	before := current.Attributes
	if before == nil {
		before = map[string]any{}
	}
	doc, err := json.Marshal(before)
	if err != nil {
		return nil, err
	}
	patched, err := patch.Apply(doc)
	if err != nil {
		return nil, &envelope.ValidationError{Issues: []envelope.Issue{{Path: "operations", Message: err.Error()}}}
	}

	var after map[string]any
	if err := json.Unmarshal(patched, &after); err != nil {
		return nil, &envelope.ValidationError{Issues: []envelope.Issue{{Path: "operations", Message: "patch must leave the fields an object"}}}
	}
	// Compare in JSON space so numeric representations match.
	var original map[string]any
	_ = json.Unmarshal(doc, &original)

	changed := map[string]any{}
	for k, v := range after {
		if !reflect.DeepEqual(original[k], v) {
			changed[k] = v
		}
	}
	for k := range original {
		if _, ok := after[k]; !ok {
			changed[k] = nil
		}
	}
	if len(changed) == 0 {
		return current, nil
	}
	return c.UpdateRecord(ctx, a.ItemID, changed)
}
