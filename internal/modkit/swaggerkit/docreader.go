package swaggerkit

import "github.com/swaggo/swag/v2"

const skeleton = `{"openapi":"3.0.3","info":{"title":"Detention API","version":"0.1.0"},"paths":{}}`

// docReader returns the registered swag doc, or a skeleton so the UI loads
// in builds without generated docs
var docReader = func() string {
	doc, err := swag.ReadDoc()
	if err != nil || doc == "" {
		return skeleton
	}
	return doc
}
