package rest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeJSON(t *testing.T, raw string) interface{} {
	t.Helper()
	var data interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &data))
	return data
}

func TestItemsProbing(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"bare array", `[{"id":"1"},{"id":"2"}]`, 2},
		{"data wrapper", `{"data":[{"id":"1"}]}`, 1},
		{"items wrapper", `{"items":[{"id":"1"},{"id":"2"},{"id":"3"}]}`, 3},
		{"results wrapper", `{"results":[{"id":"1"}]}`, 1},
		{"roles wrapper", `{"roles":[{"id":"1"},{"id":"2"}]}`, 2},
		{"products wrapper", `{"products":[{"id":1}]}`, 1},
		{"users wrapper", `{"users":[{"id":1}]}`, 1},
		{"no recognizable wrapper", `{"stuff":[{"id":"1"}]}`, 0},
		{"scalar body", `42`, 0},
		{"skips non-object elements", `[{"id":"1"},"junk",3]`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := NewResponse(decodeJSON(t, tt.raw), 200, false)
			assert.Len(t, resp.Items(), tt.want)
			assert.Equal(t, tt.want, resp.Count())
		})
	}
}

func TestItem(t *testing.T) {
	// Root object with an id is the entity itself.
	resp := NewResponse(decodeJSON(t, `{"id":"abc","name":"admin-lite"}`), 200, false)
	item := resp.Item()
	require.NotNil(t, item)
	assert.Equal(t, "abc", item["id"])

	// Root object without an id falls back to the first wrapped item.
	resp = NewResponse(decodeJSON(t, `{"data":[{"id":"x"},{"id":"y"}]}`), 200, false)
	item = resp.Item()
	require.NotNil(t, item)
	assert.Equal(t, "x", item["id"])

	// Nothing item-shaped at all.
	resp = NewResponse(decodeJSON(t, `{"total":0}`), 200, false)
	assert.Nil(t, resp.Item())
}

func TestGetDottedPath(t *testing.T) {
	resp := NewResponse(decodeJSON(t, `{"meta":{"page":{"size":25}},"name":"x"}`), 200, false)

	assert.Equal(t, float64(25), resp.Get("meta.page.size", nil))
	assert.Equal(t, "x", resp.Get("name", nil))
	assert.Equal(t, "fallback", resp.Get("meta.missing.deep", "fallback"))
	assert.Equal(t, "fallback", resp.Get("name.not.an.object", "fallback"))
	assert.True(t, resp.Has("meta.page"))
	assert.False(t, resp.Has("meta.absent"))

	// Non-object body never panics.
	scalar := NewResponse(decodeJSON(t, `[1,2]`), 200, false)
	assert.Equal(t, "d", scalar.Get("anything", "d"))
}

func TestPagination(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		current  int
		last     int
		hasNext  bool
		hasPrev  bool
	}{
		{"first page", `{"total":100,"skip":0,"limit":10}`, 1, 10, true, false},
		{"middle page", `{"total":100,"skip":30,"limit":10}`, 4, 10, true, true},
		{"last page", `{"total":100,"skip":90,"limit":10}`, 10, 10, false, true},
		{"ragged last page", `{"total":95,"skip":90,"limit":10}`, 10, 10, false, true},
		{"single page", `{"total":5,"skip":0,"limit":10}`, 1, 1, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := NewResponse(decodeJSON(t, tt.raw), 200, false)
			p := resp.Pagination()
			require.NotNil(t, p)
			assert.Equal(t, tt.current, p.CurrentPage)
			assert.Equal(t, tt.last, p.LastPage)
			assert.Equal(t, tt.hasNext, resp.HasNextPage())
			assert.Equal(t, tt.hasPrev, resp.HasPrevPage())
		})
	}

	// No total field means no pagination.
	resp := NewResponse(decodeJSON(t, `{"data":[]}`), 200, false)
	assert.Nil(t, resp.Pagination())
	assert.False(t, resp.HasNextPage())
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, NewResponse(nil, 200, false).Successful())
	assert.True(t, NewResponse(nil, 201, false).IsCreated())
	assert.True(t, NewResponse(nil, 204, false).IsNoContent())
	assert.True(t, NewResponse(nil, 404, false).Failed())
	assert.True(t, NewResponse(nil, 200, true).FromCache())
	assert.False(t, NewResponse(nil, 200, false).FromCache())
}

func TestFindHelpers(t *testing.T) {
	resp := NewResponse(decodeJSON(t, `[
		{"id":"r1","name":"viewer"},
		{"id":"r2","name":"editor"},
		{"id":3,"name":"numeric"}
	]`), 200, false)

	found := resp.FindByName("editor")
	require.NotNil(t, found)
	assert.Equal(t, "r2", found["id"])
	assert.Nil(t, resp.FindByName("absent"))

	found = resp.FindByID("3")
	require.NotNil(t, found)
	assert.Equal(t, "numeric", found["name"])

	assert.Equal(t, []string{"viewer", "editor", "numeric"}, resp.Names())
	assert.Equal(t, []string{"r1", "r2", "3"}, resp.IDs())
}

func TestTokenHelpers(t *testing.T) {
	resp := NewResponse(decodeJSON(t, `{"access_token":"at","refresh_token":"rt"}`), 200, false)
	assert.Equal(t, "at", resp.Token())
	assert.Equal(t, "rt", resp.RefreshToken())

	resp = NewResponse(decodeJSON(t, `{"accessToken":"at2","refreshToken":"rt2"}`), 200, false)
	assert.Equal(t, "at2", resp.Token())
	assert.Equal(t, "rt2", resp.RefreshToken())

	resp = NewResponse(decodeJSON(t, `{}`), 200, false)
	assert.Empty(t, resp.Token())
}

func TestErrorMessage(t *testing.T) {
	resp := NewResponse(decodeJSON(t, `{"errorMessage":"Role exists"}`), 409, false)
	assert.Equal(t, "Role exists", resp.ErrorMessage())

	resp = NewResponse(decodeJSON(t, `[]`), 500, false)
	assert.Empty(t, resp.ErrorMessage())
}

func TestDecodeItems(t *testing.T) {
	type role struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		Composite  bool   `json:"composite"`
		ClientRole bool   `json:"clientRole"`
	}

	resp := NewResponse(decodeJSON(t, `[
		{"id":"r1","name":"viewer","composite":false,"clientRole":false},
		{"id":"r2","name":"editor","composite":true,"clientRole":true}
	]`), 200, false)

	var roles []role
	require.NoError(t, resp.DecodeItems(&roles))
	require.Len(t, roles, 2)
	assert.Equal(t, "viewer", roles[0].Name)
	assert.True(t, roles[1].Composite)
	assert.True(t, roles[1].ClientRole)

	var single role
	resp = NewResponse(decodeJSON(t, `{"id":"r9","name":"solo"}`), 200, false)
	require.NoError(t, resp.DecodeItem(&single))
	assert.Equal(t, "solo", single.Name)

	resp = NewResponse(nil, 204, false)
	assert.ErrorIs(t, resp.DecodeItem(&single), ErrInvalidResponse)
}
