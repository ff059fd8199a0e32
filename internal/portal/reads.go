package portal

import (
	"context"
	"net/http"
)

// Read-path helpers for the dashboard screens. They share the same client
// (and therefore the same auth lifecycle) as the write path; the Portal's
// list envelopes vary per endpoint, so everything funnels through DecodeList.

// ListReservations fetches reservations, optionally filtered. Empty filter
// values are omitted from the query string.
func (c *Client) ListReservations(ctx context.Context, filters map[string]string) ([]map[string]any, error) {
	raw, err := c.Request(ctx, "reservas", RequestOptions{Method: http.MethodGet, Params: filters})
	if err != nil {
		return nil, err
	}
	return DecodeList(raw)
}

// ListIncidents fetches incidents, optionally filtered.
func (c *Client) ListIncidents(ctx context.Context, filters map[string]string) ([]map[string]any, error) {
	raw, err := c.Request(ctx, "incidencias", RequestOptions{Method: http.MethodGet, Params: filters})
	if err != nil {
		return nil, err
	}
	return DecodeList(raw)
}

// GetIncident fetches one incident detail by its Portal id.
func (c *Client) GetIncident(ctx context.Context, portalID string) (map[string]any, error) {
	raw, err := c.Request(ctx, "incidencias/"+portalID, RequestOptions{Method: http.MethodGet})
	if err != nil {
		return nil, err
	}
	return DecodeObject(raw)
}
