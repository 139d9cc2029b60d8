package views

import "github.com/relabs-tech/restgen/core"

// View names the template rendered for one operation and static data merged
// into the template data
type View struct {
	Template string                 `json:"template"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// Config holds the optional views of a domain. Missing views render the default templates.
type Config struct {
	Create   *View `json:"create,omitempty"`
	ReadOne  *View `json:"readOne,omitempty"`
	ReadMany *View `json:"readMany,omitempty"`
	Update   *View `json:"update,omitempty"`
	Destroy  *View `json:"destroy,omitempty"`
}

// default template names
const (
	DefaultCreate   = "default_create"
	DefaultReadOne  = "default_read_one"
	DefaultReadMany = "default_read_many"
	DefaultUpdate   = "default_update"
	DefaultDestroy  = "default_destroy"
)

// View returns the configured view for operation or the default one
func (c Config) View(operation core.Operation) View {
	var v *View
	var template string
	switch operation {
	case core.OperationCreate:
		v, template = c.Create, DefaultCreate
	case core.OperationReadOne:
		v, template = c.ReadOne, DefaultReadOne
	case core.OperationReadMany:
		v, template = c.ReadMany, DefaultReadMany
	case core.OperationUpdate:
		v, template = c.Update, DefaultUpdate
	case core.OperationDestroy:
		v, template = c.Destroy, DefaultDestroy
	}
	if v == nil {
		return View{Template: template}
	}
	if v.Template == "" {
		return View{Template: template, Data: v.Data}
	}
	return *v
}
