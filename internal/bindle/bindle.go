// Package bindle provides a minimal HTTP client for a bindle-compatible
// parcel store, satisfying modref.BindleStore.
//
// No bindle Go client appears anywhere in this project's dependency
// surface, so this implementation is built directly on net/http the way
// spec.md §1 treats the bindle client: a byte-blob fetcher, not a
// first-class collaborator worth a dedicated SDK dependency. See
// DESIGN.md for the reasoning.
package bindle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/deislabs/wagi-go/internal/modref"
)

// Client fetches invoices and parcels from a bindle server over HTTP.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient builds a Client against baseURL (e.g. "https://bindle.example.com/v1").
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTP: http.DefaultClient}
}

type invoiceDoc struct {
	Bindle struct {
		ID string `json:"id"`
	} `json:"bindle"`
	Parcel []struct {
		Label struct {
			SHA256      string            `json:"sha256"`
			MediaType   string            `json:"mediaType"`
			Annotations map[string]string `json:"annotations"`
		} `json:"label"`
		Conditions struct {
			MemberOf []string `json:"memberOf"`
		} `json:"conditions"`
	} `json:"parcel"`
}

// GetInvoice implements modref.BindleStore.
func (c *Client) GetInvoice(ctx context.Context, id string) (modref.Invoice, error) {
	u := fmt.Sprintf("%s/_i/%s", c.BaseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return modref.Invoice{}, err
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return modref.Invoice{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return modref.Invoice{}, fmt.Errorf("bindle server returned %s for invoice %q", resp.Status, id)
	}

	var doc invoiceDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return modref.Invoice{}, fmt.Errorf("decode invoice: %w", err)
	}

	inv := modref.Invoice{ID: doc.Bindle.ID}
	for _, p := range doc.Parcel {
		group := "default"
		if len(p.Conditions.MemberOf) > 0 {
			group = p.Conditions.MemberOf[0]
		}
		inv.Parcels = append(inv.Parcels, modref.InvoiceParcel{
			SHA256:      p.Label.SHA256,
			MediaType:   p.Label.MediaType,
			Group:       group,
			Annotations: p.Label.Annotations,
		})
	}
	return inv, nil
}

// GetParcel implements modref.BindleStore.
func (c *Client) GetParcel(ctx context.Context, invoiceID, parcelSHA string) ([]byte, error) {
	u := fmt.Sprintf("%s/_i/%s@%s", c.BaseURL, url.PathEscape(invoiceID), url.PathEscape(parcelSHA))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bindle server returned %s for parcel %q", resp.Status, parcelSHA)
	}

	return io.ReadAll(resp.Body)
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}
