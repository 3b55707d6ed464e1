package modref

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

func resolveBindle(ctx context.Context, store BindleStore, ref Reference) (Bytes, error) {
	invoice, err := store.GetInvoice(ctx, ref.Invoice)
	if err != nil {
		return Bytes{}, &ResolveError{Ref: ref, Reason: "invoice fetch failed", Err: err}
	}

	var label *InvoiceParcel
	for i := range invoice.Parcels {
		if invoice.Parcels[i].SHA256 == ref.Parcel {
			label = &invoice.Parcels[i]
			break
		}
	}
	if label == nil {
		return Bytes{}, &ResolveError{Ref: ref, Reason: "parcel not listed in invoice"}
	}

	raw, err := store.GetParcel(ctx, ref.Invoice, ref.Parcel)
	if err != nil {
		return Bytes{}, &ResolveError{Ref: ref, Reason: "parcel fetch failed", Err: err}
	}

	sum := sha256.Sum256(raw)
	if hex.EncodeToString(sum[:]) != label.SHA256 {
		return Bytes{}, &ResolveError{Ref: ref, Reason: "parcel content hash mismatch"}
	}

	return NewBytes(raw), nil
}
