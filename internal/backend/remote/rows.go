package remote

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"campus_shuttle/internal/backend"
)

func (c *Client) Query(ctx context.Context, q backend.Query, dest any) error {
	params := filterParams(q.Filters)
	if q.Order != nil {
		dir := "asc"
		if q.Order.Descending {
			dir = "desc"
		}
		params.Set("order", q.Order.Column+"."+dir)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	return c.do(ctx, http.MethodGet, tablePath(q.Table), params, nil, nil, dest)
}

func (c *Client) Insert(ctx context.Context, table string, record any, dest any) error {
	return c.do(ctx, http.MethodPost, tablePath(table), nil, nil, record, dest)
}

func (c *Client) Upsert(ctx context.Context, table string, record any, dest any) error {
	header := http.Header{"Prefer": {"resolution=merge-duplicates"}}
	return c.do(ctx, http.MethodPost, tablePath(table), nil, header, record, dest)
}

func (c *Client) Update(ctx context.Context, table string, filters []backend.Filter, patch map[string]any, dest any) error {
	if len(filters) == 0 {
		return errors.New("remote: update without filters")
	}
	return c.do(ctx, http.MethodPatch, tablePath(table), filterParams(filters), nil, patch, dest)
}

func tablePath(table string) string {
	return "/rest/" + url.PathEscape(table)
}

func filterParams(filters []backend.Filter) url.Values {
	params := url.Values{}
	for _, f := range filters {
		params.Add(f.Column, "eq."+f.ValueString())
	}
	return params
}
