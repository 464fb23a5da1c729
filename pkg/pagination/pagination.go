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

// Params is one page window over a list endpoint.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads limit and offset from the query string. Missing or
// malformed values fall back to the defaults; limit is capped at MaxLimit.
func FromContext(c echo.Context) Params {
	return Parse(c.QueryParam("limit"), c.QueryParam("offset"))
}

func Parse(limitParam, offsetParam string) Params {
	limit, err := strconv.Atoi(limitParam)
	if err != nil || limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	offset, err := strconv.Atoi(offsetParam)
	if err != nil || offset < 0 {
		offset = 0
	}
	return Params{Limit: limit, Offset: offset}
}

type Links struct {
	Self string `json:"self"`
	Next string `json:"next,omitempty"`
	Prev string `json:"prev,omitempty"`
}

// Response is the envelope for every list endpoint.
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
	Links   *Links      `json:"links,omitempty"`
}

func NewResponse(data interface{}, total, limit, offset int) *Response {
	p := Params{Limit: limit, Offset: offset}
	return &Response{
		Data:    data,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: p.HasNext(total),
	}
}

// WithLinks fills Links from the request URL, keeping its filter parameters.
func (r *Response) WithLinks(u *url.URL) *Response {
	r.Links = Params{Limit: r.Limit, Offset: r.Offset}.Links(u, r.Total)
	return r
}

func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

func (p Params) Links(u *url.URL, total int) *Links {
	links := &Links{Self: p.pageURL(u, p.Offset)}
	if p.HasNext(total) {
		links.Next = p.pageURL(u, p.Offset+p.Limit)
	}
	if p.Offset > 0 {
		links.Prev = p.pageURL(u, max(p.Offset-p.Limit, 0))
	}
	return links
}

func (p Params) pageURL(u *url.URL, offset int) string {
	q := u.Query()
	q.Set("limit", strconv.Itoa(p.Limit))
	q.Set("offset", strconv.Itoa(offset))
	return u.Path + "?" + q.Encode()
}
