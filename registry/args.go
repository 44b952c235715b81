package registry

// Credentials are accepted by every operation. Embed it in argument structs.
type Credentials struct {
	APIToken    string `json:"apiToken" jsonschema:"minLength=1,description=API token used to authenticate against the content backend"`
	Environment string `json:"environment,omitempty" jsonschema:"description=Target environment name. Omit to use the primary environment"`
}

// Auth returns the credentials. Promoted to every struct embedding Credentials.
func (c Credentials) Auth() Credentials { return c }

// Authenticated is satisfied by argument structs embedding Credentials.
type Authenticated interface {
	Auth() Credentials
}

// Pagination bounds a list operation.
type Pagination struct {
	Limit  int `json:"limit,omitempty" jsonschema:"minimum=1,maximum=500,description=Maximum number of entries to return"`
	Offset int `json:"offset,omitempty" jsonschema:"minimum=0,description=Number of entries to skip"`
}

// Paged is embedded by list operation arguments.
type Paged struct {
	Page *Pagination `json:"page,omitempty"`
}

// Paging returns the requested page or the zero value.
func (p Paged) Paging() Pagination {
	if p.Page == nil {
		return Pagination{}
	}
	return *p.Page
}

// Localized is embedded by read operation arguments.
type Localized struct {
	ReturnAllLocales bool `json:"returnAllLocales,omitempty" jsonschema:"description=Return every locale of localized fields instead of one representative value"`
}

// AllLocales reports whether locale reduction is disabled.
func (l Localized) AllLocales() bool { return l.ReturnAllLocales }

// LocaleSelector is satisfied by argument structs embedding Localized.
type LocaleSelector interface {
	AllLocales() bool
}
