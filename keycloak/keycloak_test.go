package keycloak

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeRealm is an in-memory stand-in for the Keycloak admin API, covering
// the role endpoints the SDK uses. Roles are keyed by scope ("" for realm
// scope, the client id otherwise) and name.
type fakeRealm struct {
	t     *testing.T
	realm string

	mu         sync.Mutex
	nextID     int
	roles      map[string]map[string]*Role // scope -> name -> role
	composites map[string][]roleRef        // parent role id -> children
	requests   int
}

func newFakeRealm(t *testing.T, realm string) *fakeRealm {
	return &fakeRealm{
		t:          t,
		realm:      realm,
		roles:      map[string]map[string]*Role{"": {}},
		composites: map[string][]roleRef{},
	}
}

func (f *fakeRealm) seed(scope string, role Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roles[scope] == nil {
		f.roles[scope] = map[string]*Role{}
	}
	if role.ID == "" {
		f.nextID++
		role.ID = fakeID(f.nextID)
	}
	f.roles[scope][role.Name] = &role
}

func fakeID(n int) string {
	return "00000000-0000-0000-0000-" + strings.Repeat("0", 12-len(itoa(n))) + itoa(n)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func (f *fakeRealm) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func (f *fakeRealm) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests++
		f.mu.Unlock()

		if r.URL.Path == "/admin/serverinfo" {
			writeBody(w, 200, map[string]interface{}{
				"systemInfo": map[string]interface{}{"version": "24.0.0"},
			})
			return
		}
		if r.URL.Path == "/admin/realms" {
			writeBody(w, 200, []map[string]interface{}{{"id": "r1", "realm": f.realm}})
			return
		}

		prefix := "/admin/realms/" + f.realm
		if !strings.HasPrefix(r.URL.Path, prefix) {
			writeBody(w, 404, map[string]interface{}{"error": "Realm not found."})
			return
		}
		remainder := strings.TrimPrefix(r.URL.Path, prefix)
		parts := splitPath(remainder)

		switch {
		case len(parts) >= 1 && parts[0] == "roles":
			f.handleRoles(w, r, "", parts[1:])
		case len(parts) >= 3 && parts[0] == "clients" && parts[2] == "roles":
			f.handleRoles(w, r, parts[1], parts[3:])
		case len(parts) == 2 && parts[0] == "roles-by-id":
			f.handleByID(w, r, parts[1])
		default:
			writeBody(w, 404, map[string]interface{}{"error": "unknown endpoint"})
		}
	})
}

func splitPath(p string) []string {
	var parts []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	return parts
}

// handleRoles serves /roles... for one scope; tail is the path after
// "roles".
func (f *fakeRealm) handleRoles(w http.ResponseWriter, r *http.Request, scope string, tail []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roles[scope] == nil {
		f.roles[scope] = map[string]*Role{}
	}
	population := f.roles[scope]

	switch {
	case len(tail) == 0 && r.Method == http.MethodGet:
		list := make([]*Role, 0, len(population))
		for _, role := range population {
			list = append(list, role)
		}
		writeBody(w, 200, list)

	case len(tail) == 0 && r.Method == http.MethodPost:
		var role Role
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&role))
		if _, exists := population[role.Name]; exists {
			writeBody(w, 409, map[string]interface{}{"errorMessage": "Role with name " + role.Name + " already exists"})
			return
		}
		f.nextID++
		role.ID = fakeID(f.nextID)
		role.ClientRole = scope != ""
		if scope != "" {
			role.ContainerID = scope
		}
		role.CreatedTimestamp = time.Now().UnixMilli()
		population[role.Name] = &role
		w.WriteHeader(201)

	case len(tail) == 1:
		name := tail[0]
		role, exists := population[name]
		switch r.Method {
		case http.MethodGet:
			if !exists {
				writeBody(w, 404, map[string]interface{}{"error": "Could not find role"})
				return
			}
			writeBody(w, 200, role)
		case http.MethodPut:
			if !exists {
				writeBody(w, 404, map[string]interface{}{"error": "Could not find role"})
				return
			}
			var updated Role
			require.NoError(f.t, json.NewDecoder(r.Body).Decode(&updated))
			updated.ID = role.ID
			updated.ClientRole = role.ClientRole
			updated.ContainerID = role.ContainerID
			updated.CreatedTimestamp = role.CreatedTimestamp
			updated.UpdatedTimestamp = time.Now().UnixMilli()
			delete(population, name)
			population[updated.Name] = &updated
			w.WriteHeader(204)
		case http.MethodDelete:
			if !exists {
				writeBody(w, 404, map[string]interface{}{"error": "Could not find role"})
				return
			}
			delete(population, name)
			delete(f.composites, role.ID)
			w.WriteHeader(204)
		default:
			w.WriteHeader(405)
		}

	case len(tail) == 2 && tail[1] == "composites":
		name := tail[0]
		role, exists := population[name]
		if !exists {
			writeBody(w, 404, map[string]interface{}{"error": "Could not find role"})
			return
		}
		switch r.Method {
		case http.MethodGet:
			children := make([]*Role, 0)
			for _, ref := range f.composites[role.ID] {
				if child := f.findByIDLocked(ref.ID); child != nil {
					children = append(children, child)
				}
			}
			writeBody(w, 200, children)
		case http.MethodPost:
			var refs []roleRef
			require.NoError(f.t, json.NewDecoder(r.Body).Decode(&refs))
			f.composites[role.ID] = append(f.composites[role.ID], refs...)
			role.Composite = true
			w.WriteHeader(204)
		case http.MethodDelete:
			var refs []roleRef
			require.NoError(f.t, json.NewDecoder(r.Body).Decode(&refs))
			remaining := f.composites[role.ID][:0]
			for _, existing := range f.composites[role.ID] {
				keep := true
				for _, removed := range refs {
					if existing.ID == removed.ID {
						keep = false
						break
					}
				}
				if keep {
					remaining = append(remaining, existing)
				}
			}
			f.composites[role.ID] = remaining
			w.WriteHeader(204)
		default:
			w.WriteHeader(405)
		}

	default:
		writeBody(w, 404, map[string]interface{}{"error": "unknown role endpoint"})
	}
}

func (f *fakeRealm) handleByID(w http.ResponseWriter, r *http.Request, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	role := f.findByIDLocked(id)
	if role == nil {
		writeBody(w, 404, map[string]interface{}{"error": "Could not find role with id"})
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeBody(w, 200, role)
	case http.MethodDelete:
		for scope, population := range f.roles {
			for name, candidate := range population {
				if candidate.ID == id {
					delete(f.roles[scope], name)
				}
			}
		}
		w.WriteHeader(204)
	default:
		w.WriteHeader(405)
	}
}

func (f *fakeRealm) findByIDLocked(id string) *Role {
	for _, population := range f.roles {
		for _, role := range population {
			if role.ID == id {
				return role
			}
		}
	}
	return nil
}

func writeBody(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// newTestSetup spins up a fake realm and a client pointed at it.
func newTestSetup(t *testing.T) (*fakeRealm, *Client) {
	t.Helper()
	fake := newFakeRealm(t, "master")
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	cfg := DefaultConfig().
		WithBaseURL(server.URL).
		WithRetry(1, time.Millisecond)
	client, err := New(cfg, "master")
	require.NoError(t, err)
	return fake, client.WithToken("test-admin-token")
}

// uncachedSetup is newTestSetup with the response cache off, for tests
// that count upstream requests per call.
func uncachedSetup(t *testing.T) (*fakeRealm, *Client) {
	fake, client := newTestSetup(t)
	return fake, client.WithoutCache()
}
