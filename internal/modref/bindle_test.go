package modref_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deislabs/wagi-go/internal/modref"
)

type fakeBindleStore struct {
	invoice modref.Invoice
	parcels map[string][]byte
	err     error
}

func (f *fakeBindleStore) GetInvoice(ctx context.Context, id string) (modref.Invoice, error) {
	if f.err != nil {
		return modref.Invoice{}, f.err
	}
	return f.invoice, nil
}

func (f *fakeBindleStore) GetParcel(ctx context.Context, invoiceID, parcelSHA string) ([]byte, error) {
	return f.parcels[parcelSHA], nil
}

func TestResolve_Bindle_Success(t *testing.T) {
	raw := []byte("wasm-parcel-bytes")
	sum := modref.NewBytes(raw).Hash

	store := &fakeBindleStore{
		invoice: modref.Invoice{
			ID:      "myorg/hello/1.0.0",
			Parcels: []modref.InvoiceParcel{{SHA256: sum, MediaType: "application/vnd.wasm.content.layer.v1+wasm"}},
		},
		parcels: map[string][]byte{sum: raw},
	}

	r := &modref.Resolver{Bindle: store}
	bytes, err := r.Resolve(context.Background(), modref.Reference{Kind: modref.KindBindle, Invoice: "myorg/hello/1.0.0", Parcel: sum})
	require.NoError(t, err)
	assert.Equal(t, raw, bytes.Raw)
}

func TestResolve_Bindle_ParcelNotInInvoice(t *testing.T) {
	store := &fakeBindleStore{invoice: modref.Invoice{ID: "myorg/hello/1.0.0"}}
	r := &modref.Resolver{Bindle: store}

	_, err := r.Resolve(context.Background(), modref.Reference{Kind: modref.KindBindle, Invoice: "myorg/hello/1.0.0", Parcel: "missing"})
	require.Error(t, err)
}

func TestResolve_Bindle_HashMismatchRejected(t *testing.T) {
	store := &fakeBindleStore{
		invoice: modref.Invoice{
			ID:      "myorg/hello/1.0.0",
			Parcels: []modref.InvoiceParcel{{SHA256: "claimed-hash"}},
		},
		parcels: map[string][]byte{"claimed-hash": []byte("tampered content")},
	}

	r := &modref.Resolver{Bindle: store}
	_, err := r.Resolve(context.Background(), modref.Reference{Kind: modref.KindBindle, Invoice: "myorg/hello/1.0.0", Parcel: "claimed-hash"})
	require.Error(t, err, "parcel bytes not matching the invoice's declared hash must be rejected")
}

func TestResolve_Bindle_InvoiceFetchError(t *testing.T) {
	store := &fakeBindleStore{err: assert.AnError}
	r := &modref.Resolver{Bindle: store}

	_, err := r.Resolve(context.Background(), modref.Reference{Kind: modref.KindBindle, Invoice: "nope", Parcel: "x"})
	require.Error(t, err)
}
