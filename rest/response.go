package rest

import (
	"fmt"
	"math"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// itemKeys are the wrapper fields probed, in order, when a response body is
// an object rather than a bare list. Covers the envelope shapes of the
// supported APIs.
var itemKeys = []string{"data", "items", "results", "roles", "products", "users"}

// Response is a uniform envelope over a decoded API response. Accessors
// never panic on unexpected shapes; they return zero values instead.
type Response struct {
	data      interface{}
	status    int
	fromCache bool
}

// NewResponse wraps an already-decoded body. Used by the transport and by
// cache replay; tests may construct envelopes directly with it.
func NewResponse(data interface{}, status int, fromCache bool) *Response {
	return &Response{data: data, status: status, fromCache: fromCache}
}

// Status returns the HTTP status code. Cache replays report 200.
func (r *Response) Status() int { return r.status }

// Successful reports whether the status is in the 2xx range.
func (r *Response) Successful() bool { return r.status >= 200 && r.status < 300 }

// Failed reports whether the status is outside the 2xx range.
func (r *Response) Failed() bool { return !r.Successful() }

// IsCreated reports a 201 status.
func (r *Response) IsCreated() bool { return r.status == 201 }

// IsNoContent reports a 204 status.
func (r *Response) IsNoContent() bool { return r.status == 204 }

// FromCache reports whether the envelope was replayed from the cache layer
// rather than fetched over the network.
func (r *Response) FromCache() bool { return r.fromCache }

// Data returns the decoded body as-is.
func (r *Response) Data() interface{} { return r.data }

// Map returns the body as an object, or nil when the body is not one.
func (r *Response) Map() map[string]interface{} {
	m, _ := r.data.(map[string]interface{})
	return m
}

// Get walks a dot-separated path through nested objects, returning def when
// any segment is missing or not an object.
func (r *Response) Get(path string, def interface{}) interface{} {
	current := r.data
	for _, seg := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return def
		}
		current, ok = m[seg]
		if !ok {
			return def
		}
	}
	return current
}

// Has reports whether a dot-separated path resolves to a value.
func (r *Response) Has(path string) bool {
	missing := &struct{}{}
	return r.Get(path, missing) != interface{}(missing)
}

// Items normalizes the body into a list of objects. A bare JSON array is
// returned directly; an object is probed for the known wrapper fields.
// Non-object elements are skipped.
func (r *Response) Items() []map[string]interface{} {
	switch v := r.data.(type) {
	case []interface{}:
		return toObjectList(v)
	case map[string]interface{}:
		for _, key := range itemKeys {
			if list, ok := v[key].([]interface{}); ok {
				return toObjectList(list)
			}
		}
	}
	return nil
}

func toObjectList(list []interface{}) []map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(list))
	for _, elem := range list {
		if m, ok := elem.(map[string]interface{}); ok {
			items = append(items, m)
		}
	}
	return items
}

// Item returns the single entity the response carries: the root object when
// it looks like an entity (has an id), otherwise the first of Items.
func (r *Response) Item() map[string]interface{} {
	if m, ok := r.data.(map[string]interface{}); ok {
		if _, hasID := m["id"]; hasID {
			return m
		}
	}
	if items := r.Items(); len(items) > 0 {
		return items[0]
	}
	return nil
}

// Count returns the number of items in the response.
func (r *Response) Count() int { return len(r.Items()) }

// FindByID returns the item whose "id" field stringifies to id, or nil.
func (r *Response) FindByID(id string) map[string]interface{} {
	for _, item := range r.Items() {
		if v, ok := item["id"]; ok && stringify(v) == id {
			return item
		}
	}
	return nil
}

// FindByName returns the item whose "name" field equals name, or nil.
func (r *Response) FindByName(name string) map[string]interface{} {
	for _, item := range r.Items() {
		if v, ok := item["name"].(string); ok && v == name {
			return item
		}
	}
	return nil
}

// Names collects the "name" field of every item.
func (r *Response) Names() []string { return r.collect("name") }

// IDs collects the "id" field of every item.
func (r *Response) IDs() []string { return r.collect("id") }

func (r *Response) collect(field string) []string {
	var out []string
	for _, item := range r.Items() {
		if v, ok := item[field]; ok {
			out = append(out, stringify(v))
		}
	}
	return out
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == math.Trunc(t) {
			return fmt.Sprintf("%.0f", t)
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Pagination describes the position of a paginated response. Derived from
// the total/skip/limit fields offset-based APIs return alongside items.
type Pagination struct {
	Total       int
	Skip        int
	Limit       int
	CurrentPage int
	PerPage     int
	LastPage    int
}

// Pagination returns paging metadata, or nil when the body carries no
// "total" field. Page numbers are 1-based.
func (r *Response) Pagination() *Pagination {
	m := r.Map()
	if m == nil {
		return nil
	}
	total, ok := intField(m, "total")
	if !ok {
		return nil
	}
	skip, _ := intField(m, "skip")
	limit, _ := intField(m, "limit")
	if limit <= 0 {
		limit = 30
	}
	return &Pagination{
		Total:       total,
		Skip:        skip,
		Limit:       limit,
		CurrentPage: skip/limit + 1,
		PerPage:     limit,
		LastPage:    int(math.Ceil(float64(total) / float64(limit))),
	}
}

// HasNextPage reports whether more pages follow the current one.
func (r *Response) HasNextPage() bool {
	p := r.Pagination()
	return p != nil && p.CurrentPage < p.LastPage
}

// HasPrevPage reports whether the current page is past the first.
func (r *Response) HasPrevPage() bool {
	p := r.Pagination()
	return p != nil && p.CurrentPage > 1
}

func intField(m map[string]interface{}, key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

// Token returns the access token field of an auth response, if any.
func (r *Response) Token() string {
	if s, ok := r.Get("accessToken", "").(string); ok && s != "" {
		return s
	}
	s, _ := r.Get("access_token", "").(string)
	return s
}

// RefreshToken returns the refresh token field of an auth response, if any.
func (r *Response) RefreshToken() string {
	if s, ok := r.Get("refreshToken", "").(string); ok && s != "" {
		return s
	}
	s, _ := r.Get("refresh_token", "").(string)
	return s
}

// ErrorMessage extracts the error message of a failed response, probing the
// same fields the error taxonomy uses.
func (r *Response) ErrorMessage() string {
	m := r.Map()
	if m == nil {
		return ""
	}
	return errorMessage(m)
}

// DecodeItems decodes Items into dest, which must be a pointer to a slice
// of structs tagged with json field names.
func (r *Response) DecodeItems(dest interface{}) error {
	return decode(r.Items(), dest)
}

// DecodeItem decodes Item into dest, which must be a pointer to a struct
// tagged with json field names.
func (r *Response) DecodeItem(dest interface{}) error {
	item := r.Item()
	if item == nil {
		return fmt.Errorf("%w: no item in response", ErrInvalidResponse)
	}
	return decode(item, dest)
}

func decode(input, dest interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dest,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}
