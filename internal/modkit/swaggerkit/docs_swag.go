//go:build swag

package swaggerkit

// generated docs register themselves with swag on init
import _ "detention/internal/services/api/docs"
