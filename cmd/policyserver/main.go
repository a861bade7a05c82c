// Policy Server Example
// Copyright (c) 2025 Policy Server Example
// Licensed under the MIT License.

package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/gorilla/mux"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	ruleadapter "github.com/asakaida/gorm-rule-adapter"
)

// AccessControlModel represents the type of access control model
type AccessControlModel string

const (
	ModelACL  AccessControlModel = "acl"
	ModelRBAC AccessControlModel = "rbac"
)

// EnforceRequest represents an authorization enforcement request
type EnforceRequest struct {
	Model   AccessControlModel `json:"model"`
	Subject string             `json:"subject"`
	Object  string             `json:"object"`
	Action  string             `json:"action"`
}

// PolicyRequest represents a policy management request
type PolicyRequest struct {
	Model   AccessControlModel `json:"model"`
	Subject string             `json:"subject"`
	Object  string             `json:"object"`
	Action  string             `json:"action"`
}

// RoleRequest represents a role assignment request
type RoleRequest struct {
	User string `json:"user"`
	Role string `json:"role"`
}

// EnforceResponse represents the response for an enforcement request
type EnforceResponse struct {
	Allowed bool   `json:"allowed"`
	Message string `json:"message,omitempty"`
	Model   string `json:"model"`
}

// ACL model definition
const aclModel = `[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && r.act == p.act`

// RBAC model definition
const rbacModel = `[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act`

// AuthService manages the ACL and RBAC authorization models
type AuthService struct {
	aclEnforcer  *casbin.Enforcer
	rbacEnforcer *casbin.Enforcer
	db           *gorm.DB
}

// NewAuthService creates a new authorization service backed by SQLite
func NewAuthService(dbPath string) (*AuthService, error) {
	// Connect to SQLite database
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite database: %v", err)
	}

	// The server owns its database, so it migrates the rule tables itself;
	// the adapter never does.
	if err := db.Table("acl_rules").AutoMigrate(&ruleadapter.CasbinRule{}); err != nil {
		return nil, fmt.Errorf("failed to migrate ACL rule table: %v", err)
	}
	if err := db.Table("rbac_rules").AutoMigrate(&ruleadapter.CasbinRule{}); err != nil {
		return nil, fmt.Errorf("failed to migrate RBAC rule table: %v", err)
	}

	// Create adapters for each model
	aclAdapter, err := ruleadapter.NewAdapterByDB(db, ruleadapter.WithTableName("acl_rules"))
	if err != nil {
		return nil, fmt.Errorf("failed to create ACL adapter: %v", err)
	}
	rbacAdapter, err := ruleadapter.NewAdapterByDB(db, ruleadapter.WithTableName("rbac_rules"))
	if err != nil {
		return nil, fmt.Errorf("failed to create RBAC adapter: %v", err)
	}

	// Create enforcers for each model
	aclModelObj, err := model.NewModelFromString(aclModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create ACL model: %v", err)
	}
	aclEnforcer, err := casbin.NewEnforcer(aclModelObj, aclAdapter)
	if err != nil {
		return nil, fmt.Errorf("failed to create ACL enforcer: %v", err)
	}

	rbacModelObj, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create RBAC model: %v", err)
	}
	rbacEnforcer, err := casbin.NewEnforcer(rbacModelObj, rbacAdapter)
	if err != nil {
		return nil, fmt.Errorf("failed to create RBAC enforcer: %v", err)
	}

	// Enable auto-save so policy mutations go straight to the database
	aclEnforcer.EnableAutoSave(true)
	rbacEnforcer.EnableAutoSave(true)

	return &AuthService{
		aclEnforcer:  aclEnforcer,
		rbacEnforcer: rbacEnforcer,
		db:           db,
	}, nil
}

// getEnforcer returns the enforcer for the requested model, defaulting to RBAC
func (s *AuthService) getEnforcer(m AccessControlModel) *casbin.Enforcer {
	if m == ModelACL {
		return s.aclEnforcer
	}
	return s.rbacEnforcer
}

// healthHandler reports service health
func (s *AuthService) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// enforceHandler handles authorization enforcement requests
func (s *AuthService) enforceHandler(w http.ResponseWriter, r *http.Request) {
	var req EnforceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	// Set default model
	if req.Model == "" {
		req.Model = ModelRBAC
	}
	if req.Model != ModelACL && req.Model != ModelRBAC {
		http.Error(w, "Invalid model specified", http.StatusBadRequest)
		return
	}

	allowed, err := s.getEnforcer(req.Model).Enforce(req.Subject, req.Object, req.Action)
	if err != nil {
		http.Error(w, fmt.Sprintf("Authorization check error: %v", err), http.StatusInternalServerError)
		return
	}

	response := EnforceResponse{
		Allowed: allowed,
		Model:   string(req.Model),
	}
	if allowed {
		response.Message = "Access granted"
	} else {
		response.Message = "Access denied"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// addPolicyHandler handles adding a new policy
func (s *AuthService) addPolicyHandler(w http.ResponseWriter, r *http.Request) {
	var req PolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	if req.Model == "" {
		req.Model = ModelRBAC
	}

	added, err := s.getEnforcer(req.Model).AddPolicy(req.Subject, req.Object, req.Action)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to add policy: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"added": added,
		"model": string(req.Model),
	})
}

// removePolicyHandler handles removing an existing policy
func (s *AuthService) removePolicyHandler(w http.ResponseWriter, r *http.Request) {
	var req PolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	if req.Model == "" {
		req.Model = ModelRBAC
	}

	removed, err := s.getEnforcer(req.Model).RemovePolicy(req.Subject, req.Object, req.Action)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to remove policy: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"removed": removed,
		"model":   string(req.Model),
	})
}

// getPoliciesHandler retrieves all policies for a model
func (s *AuthService) getPoliciesHandler(w http.ResponseWriter, r *http.Request) {
	m := AccessControlModel(r.URL.Query().Get("model"))
	if m == "" {
		m = ModelRBAC
	}

	policies, err := s.getEnforcer(m).GetPolicy()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to get policies: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"policies": policies,
		"model":    string(m),
	})
}

// addRoleHandler handles assigning a role to a user (RBAC only)
func (s *AuthService) addRoleHandler(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	added, err := s.rbacEnforcer.AddRoleForUser(req.User, req.Role)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to add role: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"added": added,
		"user":  req.User,
		"role":  req.Role,
	})
}

// removeRoleHandler handles revoking a role from a user (RBAC only)
func (s *AuthService) removeRoleHandler(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	removed, err := s.rbacEnforcer.DeleteRoleForUser(req.User, req.Role)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to remove role: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"removed": removed,
		"user":    req.User,
		"role":    req.Role,
	})
}

// getRolesHandler retrieves the roles of a user (RBAC only)
func (s *AuthService) getRolesHandler(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		http.Error(w, "Missing user parameter", http.StatusBadRequest)
		return
	}

	roles, err := s.rbacEnforcer.GetRolesForUser(user)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to get roles: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"user":  user,
		"roles": roles,
	})
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs incoming HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("%s %s %s", r.Method, r.RequestURI, r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

// newRouter wires the API endpoints
func newRouter(s *AuthService) *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", s.healthHandler).Methods("GET")
	api.HandleFunc("/enforce", s.enforceHandler).Methods("POST")
	api.HandleFunc("/policies", s.addPolicyHandler).Methods("POST")
	api.HandleFunc("/policies", s.removePolicyHandler).Methods("DELETE")
	api.HandleFunc("/policies", s.getPoliciesHandler).Methods("GET")
	api.HandleFunc("/roles", s.addRoleHandler).Methods("POST")
	api.HandleFunc("/roles", s.removeRoleHandler).Methods("DELETE")
	api.HandleFunc("/roles", s.getRolesHandler).Methods("GET")

	router.Use(corsMiddleware)
	router.Use(loggingMiddleware)

	return router
}

// main initializes and starts the policy server
func main() {
	dbPath := os.Getenv("CASBIN_DB")
	if dbPath == "" {
		dbPath = "casbin.db"
	}

	authService, err := NewAuthService(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize authorization service: %v", err)
	}

	router := newRouter(authService)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	addr := ":" + port
	log.Printf("Starting policy server with ACL and RBAC support on %s", addr)
	log.Printf("  GET    /api/v1/health - Health check")
	log.Printf("  POST   /api/v1/enforce - Authorization check")
	log.Printf("  POST   /api/v1/policies - Add policy")
	log.Printf("  DELETE /api/v1/policies - Remove policy")
	log.Printf("  GET    /api/v1/policies?model=<acl|rbac> - Get policies")
	log.Printf("  POST   /api/v1/roles - Add user role")
	log.Printf("  DELETE /api/v1/roles - Remove user role")
	log.Printf("  GET    /api/v1/roles?user=alice - Get user roles")

	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
