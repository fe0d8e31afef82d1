// Package pagination reads limit/offset query parameters and shapes list
// responses with navigation links.
package pagination

import (
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is the requested page.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads ?limit= and ?offset=. Missing or invalid values fall
// back to DefaultLimit and 0; limit is capped at MaxLimit.
func FromContext(c echo.Context) Params {
	p := Params{Limit: DefaultLimit}
	if n, err := strconv.Atoi(c.QueryParam("limit")); err == nil && n > 0 {
		p.Limit = min(n, MaxLimit)
	}
	if n, err := strconv.Atoi(c.QueryParam("offset")); err == nil && n > 0 {
		p.Offset = n
	}
	return p
}

// Slice returns the part of all covered by p.
func Slice[T any](all []T, p Params) []T {
	start := min(p.Offset, len(all))
	end := min(start+p.Limit, len(all))
	return all[start:end]
}

func (p Params) next(total int) (Params, bool) {
	if p.Offset+p.Limit >= total {
		return p, false
	}
	return Params{Limit: p.Limit, Offset: p.Offset + p.Limit}, true
}

func (p Params) previous() (Params, bool) {
	if p.Offset == 0 {
		return p, false
	}
	return Params{Limit: p.Limit, Offset: max(p.Offset-p.Limit, 0)}, true
}

// Link is one navigation entry of a paginated response.
type Link struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

// Response is the envelope of every list endpoint. Data is never null.
type Response[T any] struct {
	Data    []T    `json:"data"`
	Total   int    `json:"total"`
	Limit   int    `json:"limit"`
	Offset  int    `json:"offset"`
	HasMore bool   `json:"has_more"`
	Links   []Link `json:"links,omitempty"`
}

func NewResponse[T any](items []T, total int, p Params) *Response[T] {
	if items == nil {
		items = []T{}
	}
	_, more := p.next(total)
	return &Response[T]{Data: items, Total: total, Limit: p.Limit, Offset: p.Offset, HasMore: more}
}

// WithLinks adds self, next and previous links built from u. Query
// parameters other than limit and offset are kept.
func (r *Response[T]) WithLinks(u *url.URL) *Response[T] {
	p := Params{Limit: r.Limit, Offset: r.Offset}
	r.Links = []Link{{Relation: "self", URL: pageURL(u, p)}}
	if n, ok := p.next(r.Total); ok {
		r.Links = append(r.Links, Link{Relation: "next", URL: pageURL(u, n)})
	}
	if prev, ok := p.previous(); ok {
		r.Links = append(r.Links, Link{Relation: "previous", URL: pageURL(u, prev)})
	}
	return r
}

func pageURL(u *url.URL, p Params) string {
	q := u.Query()
	q.Set("limit", strconv.Itoa(p.Limit))
	q.Set("offset", strconv.Itoa(p.Offset))
	return u.Path + "?" + q.Encode()
}
