package config_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deislabs/wagi-go/internal/config"
	"github.com/deislabs/wagi-go/internal/modref"
)

type fakeStore struct {
	invoice modref.Invoice
	parcels map[string][]byte
}

func (f *fakeStore) GetInvoice(ctx context.Context, id string) (modref.Invoice, error) {
	return f.invoice, nil
}

func (f *fakeStore) GetParcel(ctx context.Context, invoiceID, parcelSHA string) ([]byte, error) {
	return f.parcels[parcelSHA], nil
}

func wasmParcel(sha, route string) modref.InvoiceParcel {
	return modref.InvoiceParcel{
		SHA256:    sha,
		MediaType: "application/wasm",
		Annotations: map[string]string{
			"feature.wagi.route": route,
		},
	}
}

func TestLoadBindle_Success(t *testing.T) {
	raw := []byte("module-bytes")
	sha := modref.NewBytes(raw).Hash

	store := &fakeStore{
		invoice: modref.Invoice{
			ID:      "myorg/hello/1.0.0",
			Parcels: []modref.InvoiceParcel{wasmParcel(sha, "/hello")},
		},
		parcels: map[string][]byte{sha: raw},
	}

	specs, err := config.LoadBindle(context.Background(), "myorg/hello/1.0.0", store, nil)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "/hello", specs[0].SourceRoute)
}

func TestLoadBindle_SkipsNonWasmParcels(t *testing.T) {
	raw := []byte("module-bytes")
	sha := modref.NewBytes(raw).Hash

	store := &fakeStore{
		invoice: modref.Invoice{
			ID: "myorg/hello/1.0.0",
			Parcels: []modref.InvoiceParcel{
				wasmParcel(sha, "/hello"),
				{SHA256: "readme-sha", MediaType: "text/markdown"},
			},
		},
		parcels: map[string][]byte{sha: raw},
	}

	specs, err := config.LoadBindle(context.Background(), "myorg/hello/1.0.0", store, nil)
	require.NoError(t, err)
	assert.Len(t, specs, 1)
}

func TestLoadBindle_MissingRouteAnnotationRejected(t *testing.T) {
	raw := []byte("module-bytes")
	sha := modref.NewBytes(raw).Hash

	store := &fakeStore{
		invoice: modref.Invoice{
			ID:      "myorg/hello/1.0.0",
			Parcels: []modref.InvoiceParcel{{SHA256: sha, MediaType: "application/wasm"}},
		},
		parcels: map[string][]byte{sha: raw},
	}

	_, err := config.LoadBindle(context.Background(), "myorg/hello/1.0.0", store, nil)
	require.Error(t, err)
}

func TestLoadBindle_NoWasmParcelsRejected(t *testing.T) {
	store := &fakeStore{
		invoice: modref.Invoice{ID: "myorg/hello/1.0.0"},
	}

	_, err := config.LoadBindle(context.Background(), "myorg/hello/1.0.0", store, nil)
	require.Error(t, err)
}
