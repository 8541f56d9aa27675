/**
 * @description
 * Core domain types for ephemeral databases. A database is provisioned on the
 * remote provider, lives in the temporary pool until its TTL elapses, and is
 * either claimed (ownership transferred to a permanent account) or deleted.
 */
package domain

import "time"

// OwnerState describes who owns an ephemeral database.
type OwnerState string

const (
	// OwnerTemporary means the database belongs to the temporary pool and has a
	// pending deletion schedule.
	OwnerTemporary OwnerState = "temporary"
	// OwnerClaimed means ownership was transferred to a permanent account.
	// A database transitions to claimed at most once.
	OwnerClaimed OwnerState = "claimed"
	// OwnerDeleted is terminal.
	OwnerDeleted OwnerState = "deleted"
)

// DatabaseHandle is the canonical internal representation of a freshly
// provisioned database, normalized from the provider's response shapes.
type DatabaseHandle struct {
	ID               string `json:"id"`
	ConnectionString string `json:"connection_string,omitempty"`
	Region           string `json:"region"`
	Name             string `json:"name"`
}

// ProviderDatabase is a database as reported by the provider's list endpoint.
type ProviderDatabase struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Region    string    `json:"region"`
	CreatedAt time.Time `json:"createdAt"`
}

// DatabasePage is one page of the provider's paginated database listing.
type DatabasePage struct {
	Databases  []ProviderDatabase
	NextCursor string
}

// Region is a provider region available for provisioning.
type Region struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// TransferResult carries the identifiers returned by a successful ownership
// transfer. The claim flow forwards them to the success redirect.
type TransferResult struct {
	DatabaseID  string `json:"databaseId"`
	WorkspaceID string `json:"workspaceId"`
}
