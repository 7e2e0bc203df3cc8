package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	core "movesqlize/core"
)

// Server exposes the generated schema over a small read-only HTTP API.
// Every route below is a fixed, parameterized SQL statement against the
// existing schema — this does not add a query language (spec.md §1
// Non-goals).
type Server struct {
	router     chi.Router
	svc        *SchemaService
	httpServer *http.Server
}

// NewServer constructs the router and HTTP server.
func NewServer(addr string, svc *SchemaService) *Server {
	s := &Server{svc: svc}
	r := chi.NewRouter()
	r.Use(loggingMiddleware)
	r.Get("/api/info", s.handleInfo)
	r.Get("/api/tables", s.handleTables)
	r.Get("/api/tables/{name}/rows", s.handleTableRows)
	r.Get("/api/schema", s.handleSchemaYAML)
	r.Get("/api/module/{address}/{name}", s.handleModule)
	r.Get("/api/resource/{address}/{module}/{name}", s.handleResource)
	s.router = r
	s.httpServer = &http.Server{Addr: addr, Handler: r}
	return s
}

func (s *Server) Start() error { return s.httpServer.ListenAndServe() }

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.svc.Info())
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.svc.Tables()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, tables)
}

func (s *Server) handleTableRows(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	limit := 100
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	rows, err := s.svc.TableRows(name, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, rows)
}

// handleSchemaYAML serializes the live table catalogue as YAML, per
// SPEC_FULL.md §3's "schema dump" wiring for gopkg.in/yaml.v3.
func (s *Server) handleSchemaYAML(w http.ResponseWriter, r *http.Request) {
	tables, err := s.svc.Tables()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out, err := yaml.Marshal(tables)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(out)
}

func (s *Server) handleModule(w http.ResponseWriter, r *http.Request) {
	addr, err := ParseAddressHex(chi.URLParam(r, "address"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	info, err := s.svc.Module(addr, core.Identifier(chi.URLParam(r, "name")))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, info)
}

// handleResource looks up a single non-generic resource by (address,
// module, name). Generic instantiations are not addressable over HTTP —
// callers that need a parameterized StructTag should query the table
// directly via /api/tables/{name}/rows.
func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	addr, err := ParseAddressHex(chi.URLParam(r, "address"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	tag := core.StructTag{
		Address: addr,
		Module:  core.Identifier(chi.URLParam(r, "module")),
		Name:    core.Identifier(chi.URLParam(r, "name")),
	}
	pretty, err := s.svc.Resource(addr, tag)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(pretty))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}
