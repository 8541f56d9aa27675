/**
 * @description
 * Wire models for the remote provisioning API. The create endpoint answers
 * with one of two shapes depending on the provider's API version: a project
 * bundle ({project, database}) or a flat array ({data: [...]}). The client
 * normalizes both into a DatabaseHandle; the raw union never leaves pkg/providerclient.
 */
package domain

// CreateDatabaseRequest is the body sent to the provider's create endpoint.
type CreateDatabaseRequest struct {
	Region string `json:"region"`
	Name   string `json:"name"`
	TTLMs  int64  `json:"ttlMs,omitempty"`
}

// ProviderErrorPayload is the provider's explicit error body.
type ProviderErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// CreateDatabaseResponse is the union of the provider's two success shapes
// plus the explicit error shape.
type CreateDatabaseResponse struct {
	// Project-bundle shape.
	Project *struct {
		ID     string `json:"id"`
		Region string `json:"region"`
		Name   string `json:"name"`
	} `json:"project"`
	Database *struct {
		ConnectionString string `json:"connectionString"`
	} `json:"database"`

	// Flat-array shape.
	Data []struct {
		ID               string `json:"id"`
		ConnectionString string `json:"connectionString"`
		Region           string `json:"region"`
		Name             string `json:"name"`
	} `json:"data"`

	Error *ProviderErrorPayload `json:"error"`
}

// ListDatabasesResponse is the provider's paginated project listing.
type ListDatabasesResponse struct {
	Data       []ProviderDatabase `json:"data"`
	Pagination struct {
		NextCursor string `json:"nextCursor"`
	} `json:"pagination"`
}

// TransferDatabaseRequest is the body for the ownership-transfer endpoint.
// The recipient access token identifies the claiming user's account.
type TransferDatabaseRequest struct {
	RecipientAccessToken string `json:"recipientAccessToken"`
}
