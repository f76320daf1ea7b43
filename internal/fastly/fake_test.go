package fastly

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/gorilla/mux"
)

// fakeFastly is an in-memory stand-in for the Fastly API.
type fakeFastly struct {
	t   *testing.T
	key string

	mu       sync.Mutex
	versions []Version
	snippets map[int]map[string]snippetRequest
	calls    []string
	failOn   map[string]int
}

func newFakeFastly(t *testing.T, key string, active int) (*fakeFastly, *httptest.Server) {
	f := &fakeFastly{
		t:        t,
		key:      key,
		snippets: map[int]map[string]snippetRequest{},
		failOn:   map[string]int{},
	}
	for i := 1; i <= active; i++ {
		f.versions = append(f.versions, Version{Number: i, Active: i == active})
	}

	r := mux.NewRouter()
	r.Use(f.auth)
	r.HandleFunc("/service/{sid}", f.service).Methods(http.MethodGet)
	r.HandleFunc("/service/{sid}/version/{v}/clone", f.clone).Methods(http.MethodPut)
	r.HandleFunc("/service/{sid}/version/{v}/activate", f.activate).Methods(http.MethodPut)
	r.HandleFunc("/service/{sid}/version/{v}/snippet", f.create).Methods(http.MethodPost)
	r.HandleFunc("/service/{sid}/version/{v}/snippet/{name}", f.delete).Methods(http.MethodDelete)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return f, server
}

func (f *fakeFastly) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(KeyHeader) != f.key {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Provided credentials are missing or invalid"})
			return
		}

		route := mux.CurrentRoute(r)
		tmpl, _ := route.GetPathTemplate()
		call := r.Method + " " + tmpl

		f.mu.Lock()
		f.calls = append(f.calls, call)
		status, fail := f.failOn[call]
		f.mu.Unlock()

		if fail {
			writeJSON(w, status, map[string]string{"msg": "injected failure"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *fakeFastly) version(r *http.Request) int {
	v, _ := strconv.Atoi(mux.Vars(r)["v"])
	return v
}

func (f *fakeFastly) service(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": mux.Vars(r)["sid"], "versions": f.versions})
}

func (f *fakeFastly) clone(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	from := f.version(r)
	next := Version{Number: len(f.versions) + 1}
	f.versions = append(f.versions, next)

	copied := map[string]snippetRequest{}
	for name, s := range f.snippets[from] {
		copied[name] = s
	}
	f.snippets[next.Number] = copied

	writeJSON(w, http.StatusOK, next)
}

func (f *fakeFastly) activate(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v := f.version(r)
	for i := range f.versions {
		f.versions[i].Active = f.versions[i].Number == v
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"number": v, "active": true})
}

func (f *fakeFastly) create(w http.ResponseWriter, r *http.Request) {
	var s snippetRequest
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"msg": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	v := f.version(r)
	if _, exists := f.snippets[v][s.Name]; exists {
		writeJSON(w, http.StatusConflict, map[string]string{"msg": fmt.Sprintf("Duplicate record: %s", s.Name)})
		return
	}
	if f.snippets[v] == nil {
		f.snippets[v] = map[string]snippetRequest{}
	}
	f.snippets[v][s.Name] = s
	writeJSON(w, http.StatusOK, s)
}

func (f *fakeFastly) delete(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v := f.version(r)
	name := mux.Vars(r)["name"]
	if _, exists := f.snippets[v][name]; !exists {
		writeJSON(w, http.StatusNotFound, map[string]string{"msg": "Record not found"})
		return
	}
	delete(f.snippets[v], name)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (f *fakeFastly) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.versions {
		if v.Active {
			return v.Number
		}
	}
	return 0
}

func (f *fakeFastly) snippet(version int, name string) snippetRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snippets[version][name]
}

func (f *fakeFastly) snippetNames(version int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.snippets[version]))
	for name := range f.snippets[version] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *fakeFastly) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
