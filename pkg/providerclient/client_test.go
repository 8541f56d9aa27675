package providerclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flashpg/provision-service/internal/domain"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	return NewClient(server.URL, "test-key"), server
}

func TestCreateDatabase_NormalizesProjectBundleShape(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/create" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"project": {"id": "proj_123", "region": "us-east-1", "name": "ephemeral-1"},
			"database": {"connectionString": "postgres://u:p@host/db"}
		}`))
	})
	defer server.Close()

	handle, err := client.CreateDatabase(context.Background(), domain.CreateDatabaseRequest{Region: "us-east-1", Name: "ephemeral-1"})
	if err != nil {
		t.Fatalf("CreateDatabase returned error: %v", err)
	}
	if handle.ID != "proj_123" {
		t.Errorf("id = %q, want proj_123", handle.ID)
	}
	if handle.ConnectionString != "postgres://u:p@host/db" {
		t.Errorf("connection string = %q", handle.ConnectionString)
	}
	if handle.Region != "us-east-1" || handle.Name != "ephemeral-1" {
		t.Errorf("unexpected handle %+v", handle)
	}
}

func TestCreateDatabase_NormalizesFlatArrayShape(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": [{"id": "proj_456", "connectionString": "", "region": "eu-west-1", "name": "ephemeral-2"}]}`))
	})
	defer server.Close()

	handle, err := client.CreateDatabase(context.Background(), domain.CreateDatabaseRequest{Region: "eu-west-1", Name: "ephemeral-2"})
	if err != nil {
		t.Fatalf("CreateDatabase returned error: %v", err)
	}
	if handle.ID != "proj_456" {
		t.Errorf("id = %q, want proj_456", handle.ID)
	}
	if handle.ConnectionString != "" {
		t.Errorf("expected empty connection string, got %q", handle.ConnectionString)
	}
}

func TestCreateDatabase_MapsUpstream429(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	defer server.Close()

	_, err := client.CreateDatabase(context.Background(), domain.CreateDatabaseRequest{Region: "us-east-1"})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestCreateDatabase_InvalidBodyKeepsRawForDiagnostics(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway error</html>"))
	})
	defer server.Close()

	_, err := client.CreateDatabase(context.Background(), domain.CreateDatabaseRequest{Region: "us-east-1"})
	var invalid *InvalidResponseError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidResponseError, got %v", err)
	}
	if invalid.Body != "<html>gateway error</html>" {
		t.Errorf("raw body not preserved: %q", invalid.Body)
	}
}

func TestCreateDatabase_ExplicitErrorPayload(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"code": "invalid_region", "message": "region not available", "status": 400}}`))
	})
	defer server.Close()

	_, err := client.CreateDatabase(context.Background(), domain.CreateDatabaseRequest{Region: "mars-1"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != "invalid_region" || apiErr.Status != http.StatusBadRequest {
		t.Errorf("unexpected APIError %+v", apiErr)
	}
}

func TestDeleteDatabase_AlreadyGoneIsSuccess(t *testing.T) {
	calls := 0
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	})
	defer server.Close()

	// Deleting an already-deleted database twice must succeed both times.
	for i := 0; i < 2; i++ {
		if err := client.DeleteDatabase(context.Background(), "proj_gone"); err != nil {
			t.Fatalf("delete attempt %d returned error: %v", i+1, err)
		}
	}
	if calls != 2 {
		t.Errorf("expected 2 delete calls, got %d", calls)
	}
}

func TestDeleteDatabase_AlreadyTransferredIsSuccess(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	defer server.Close()

	if err := client.DeleteDatabase(context.Background(), "proj_claimed"); err != nil {
		t.Fatalf("delete against transferred database returned error: %v", err)
	}
}

func TestDeleteDatabase_ServerErrorSurfaces(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	})
	defer server.Close()

	err := client.DeleteDatabase(context.Background(), "proj_x")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusInternalServerError {
		t.Errorf("status = %d", apiErr.Status)
	}
}

func TestTransferDatabase_ForbiddenCarriesStatusAndBody(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"token not authorized for transfer"}`))
	})
	defer server.Close()

	_, err := client.TransferDatabase(context.Background(), "proj_123", "user-token")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusForbidden {
		t.Errorf("status = %d, want 403", apiErr.Status)
	}
	if apiErr.Body == "" {
		t.Error("expected upstream body to be captured")
	}
}

func TestListDatabases_Pagination(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") == "" {
			w.Write([]byte(`{"data": [{"id": "a", "name": "db-a", "createdAt": "2026-08-30T10:00:00Z"}], "pagination": {"nextCursor": "c2"}}`))
			return
		}
		w.Write([]byte(`{"data": [{"id": "b", "name": "db-b", "createdAt": "2026-08-31T10:00:00Z"}], "pagination": {}}`))
	})
	defer server.Close()

	page1, err := client.ListDatabases(context.Background(), "", 100)
	if err != nil {
		t.Fatalf("ListDatabases: %v", err)
	}
	if page1.NextCursor != "c2" || len(page1.Databases) != 1 {
		t.Fatalf("unexpected first page %+v", page1)
	}

	page2, err := client.ListDatabases(context.Background(), page1.NextCursor, 100)
	if err != nil {
		t.Fatalf("ListDatabases page 2: %v", err)
	}
	if page2.NextCursor != "" || page2.Databases[0].ID != "b" {
		t.Fatalf("unexpected second page %+v", page2)
	}
}
