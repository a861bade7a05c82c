// Policy Server Example - Test Suite
// Copyright (c) 2025 Policy Server Example
// Licensed under the MIT License.

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
)

// setupTestService creates a test AuthService with a throwaway database
func setupTestService(t *testing.T) (*AuthService, *mux.Router) {
	t.Helper()
	service, err := NewAuthService(filepath.Join(t.TempDir(), "casbin.db"))
	if err != nil {
		t.Fatalf("Failed to setup test service: %v", err)
	}
	return service, newRouter(service)
}

// doJSON issues a JSON request against the router and decodes the response
func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}, out interface{}) int {
	t.Helper()
	var reqBody bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&reqBody).Encode(body); err != nil {
			t.Fatalf("Failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &reqBody)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if out != nil {
		if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
			t.Fatalf("Failed to decode response body: %v", err)
		}
	}
	return rec.Code
}

func TestHealthEndpoint(t *testing.T) {
	_, router := setupTestService(t)

	var resp map[string]string
	code := doJSON(t, router, "GET", "/api/v1/health", nil, &resp)
	if code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", code)
	}
	if resp["status"] != "ok" {
		t.Errorf("Expected status ok, got %s", resp["status"])
	}
}

func TestACLPolicyLifecycle(t *testing.T) {
	_, router := setupTestService(t)

	// Initially denied
	var enforceResp EnforceResponse
	doJSON(t, router, "POST", "/api/v1/enforce", EnforceRequest{
		Model: ModelACL, Subject: "alice", Object: "data1", Action: "read",
	}, &enforceResp)
	if enforceResp.Allowed {
		t.Error("Expected access to be denied before any policy exists")
	}

	// Add a policy and check again
	var addResp map[string]interface{}
	code := doJSON(t, router, "POST", "/api/v1/policies", PolicyRequest{
		Model: ModelACL, Subject: "alice", Object: "data1", Action: "read",
	}, &addResp)
	if code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", code)
	}
	if addResp["added"] != true {
		t.Error("Expected policy to be added")
	}

	doJSON(t, router, "POST", "/api/v1/enforce", EnforceRequest{
		Model: ModelACL, Subject: "alice", Object: "data1", Action: "read",
	}, &enforceResp)
	if !enforceResp.Allowed {
		t.Error("Expected access to be granted after adding policy")
	}

	// Remove the policy and check once more
	var removeResp map[string]interface{}
	doJSON(t, router, "DELETE", "/api/v1/policies", PolicyRequest{
		Model: ModelACL, Subject: "alice", Object: "data1", Action: "read",
	}, &removeResp)
	if removeResp["removed"] != true {
		t.Error("Expected policy to be removed")
	}

	doJSON(t, router, "POST", "/api/v1/enforce", EnforceRequest{
		Model: ModelACL, Subject: "alice", Object: "data1", Action: "read",
	}, &enforceResp)
	if enforceResp.Allowed {
		t.Error("Expected access to be denied after removing policy")
	}
}

func TestRBACRoleInheritance(t *testing.T) {
	_, router := setupTestService(t)

	doJSON(t, router, "POST", "/api/v1/policies", PolicyRequest{
		Model: ModelRBAC, Subject: "admin", Object: "data1", Action: "write",
	}, nil)
	doJSON(t, router, "POST", "/api/v1/roles", RoleRequest{
		User: "alice", Role: "admin",
	}, nil)

	var enforceResp EnforceResponse
	doJSON(t, router, "POST", "/api/v1/enforce", EnforceRequest{
		Model: ModelRBAC, Subject: "alice", Object: "data1", Action: "write",
	}, &enforceResp)
	if !enforceResp.Allowed {
		t.Error("Expected alice to inherit write access through the admin role")
	}

	var rolesResp map[string]interface{}
	doJSON(t, router, "GET", "/api/v1/roles?user=alice", nil, &rolesResp)
	roles, ok := rolesResp["roles"].([]interface{})
	if !ok || len(roles) != 1 || roles[0] != "admin" {
		t.Errorf("Expected alice to have exactly the admin role, got %v", rolesResp["roles"])
	}

	// Revoking the role revokes the inherited access
	doJSON(t, router, "DELETE", "/api/v1/roles", RoleRequest{
		User: "alice", Role: "admin",
	}, nil)
	doJSON(t, router, "POST", "/api/v1/enforce", EnforceRequest{
		Model: ModelRBAC, Subject: "alice", Object: "data1", Action: "write",
	}, &enforceResp)
	if enforceResp.Allowed {
		t.Error("Expected access to be denied after revoking the admin role")
	}
}

func TestPoliciesPersistAcrossRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "casbin.db")

	service, err := NewAuthService(dbPath)
	if err != nil {
		t.Fatalf("Failed to setup test service: %v", err)
	}
	router := newRouter(service)
	doJSON(t, router, "POST", "/api/v1/policies", PolicyRequest{
		Model: ModelACL, Subject: "alice", Object: "data1", Action: "read",
	}, nil)

	// A second service over the same database sees the stored policy
	service2, err := NewAuthService(dbPath)
	if err != nil {
		t.Fatalf("Failed to setup second test service: %v", err)
	}
	router2 := newRouter(service2)

	var enforceResp EnforceResponse
	doJSON(t, router2, "POST", "/api/v1/enforce", EnforceRequest{
		Model: ModelACL, Subject: "alice", Object: "data1", Action: "read",
	}, &enforceResp)
	if !enforceResp.Allowed {
		t.Error("Expected the policy to survive a service restart")
	}
}

func TestGetPolicies(t *testing.T) {
	_, router := setupTestService(t)

	doJSON(t, router, "POST", "/api/v1/policies", PolicyRequest{
		Model: ModelACL, Subject: "alice", Object: "data1", Action: "read",
	}, nil)
	doJSON(t, router, "POST", "/api/v1/policies", PolicyRequest{
		Model: ModelACL, Subject: "bob", Object: "data2", Action: "write",
	}, nil)

	var resp map[string]interface{}
	code := doJSON(t, router, "GET", "/api/v1/policies?model=acl", nil, &resp)
	if code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", code)
	}
	policies, ok := resp["policies"].([]interface{})
	if !ok || len(policies) != 2 {
		t.Errorf("Expected 2 ACL policies, got %v", resp["policies"])
	}
}

func TestEnforceInvalidModel(t *testing.T) {
	_, router := setupTestService(t)

	code := doJSON(t, router, "POST", "/api/v1/enforce", EnforceRequest{
		Model: "abac", Subject: "alice", Object: "data1", Action: "read",
	}, nil)
	if code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid model, got %d", code)
	}
}
