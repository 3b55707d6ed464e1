// Package modref resolves a ModuleReference into raw Wasm bytes.
//
// A reference is one of three tagged variants: a local file, an OCI
// image, or a bindle parcel. Resolve is pure with respect to the
// reference: the same reference against the same remote state yields
// the same bytes.
package modref

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Kind tags which variant a Reference holds.
type Kind int

const (
	// KindLocalFile resolves bytes from a path on the local filesystem.
	KindLocalFile Kind = iota
	// KindOci resolves bytes from an OCI registry image.
	KindOci
	// KindBindle resolves bytes from a bindle parcel within an invoice.
	KindBindle
)

func (k Kind) String() string {
	switch k {
	case KindLocalFile:
		return "file"
	case KindOci:
		return "oci"
	case KindBindle:
		return "bindle"
	default:
		return "unknown"
	}
}

// Reference is an immutable tagged value naming where a module's bytes
// come from. Exactly one of the type-specific fields is meaningful,
// selected by Kind.
type Reference struct {
	Kind Kind

	// Path is set when Kind == KindLocalFile.
	Path string

	// Image is set when Kind == KindOci: a standard "registry/repo:tag" ref.
	Image string

	// Invoice and Parcel are set when Kind == KindBindle.
	Invoice string
	Parcel  string
}

func (r Reference) String() string {
	switch r.Kind {
	case KindLocalFile:
		return "file://" + r.Path
	case KindOci:
		return "oci:" + r.Image
	case KindBindle:
		return fmt.Sprintf("bindle:%s/%s", r.Invoice, r.Parcel)
	default:
		return "unknown module reference"
	}
}

// Bytes is the raw Wasm binary, content-addressed by the hex-encoded
// sha256 of its contents for compilation-cache lookup.
type Bytes struct {
	Raw  []byte
	Hash string
}

// NewBytes wraps raw Wasm bytes and computes their content hash.
func NewBytes(raw []byte) Bytes {
	sum := sha256.Sum256(raw)
	return Bytes{Raw: raw, Hash: hex.EncodeToString(sum[:])}
}

// BindleStore fetches invoices and parcel content from a bindle-compatible
// parcel store. It does not verify content hashes; Resolve checks each
// parcel against the invoice's declared hash. It is the
// byte-blob-fetcher collaborator named in spec.md §1; this package only
// depends on the interface, never a concrete bindle client.
type BindleStore interface {
	// GetInvoice returns the parsed invoice for name+version.
	GetInvoice(ctx context.Context, id string) (Invoice, error)
	// GetParcel returns a parcel's content, the caller verifies its hash.
	GetParcel(ctx context.Context, invoiceID, parcelSHA string) ([]byte, error)
}

// Invoice is the minimal bindle invoice shape this package depends on.
type Invoice struct {
	ID      string
	Parcels []InvoiceParcel
}

// InvoiceParcel is one parcel entry in an invoice.
type InvoiceParcel struct {
	SHA256      string
	MediaType   string
	Group       string
	Annotations map[string]string
}

// Resolver resolves module references to bytes. A single Resolver is
// shared process-wide; it is safe for concurrent use.
type Resolver struct {
	Bindle BindleStore
}

// Resolve turns ref into Bytes. See the package doc for the purity
// guarantee. No partial bytes are ever returned: either the full module
// is returned with a nil error, or Bytes is zero with a non-nil error.
func (r *Resolver) Resolve(ctx context.Context, ref Reference) (Bytes, error) {
	switch ref.Kind {
	case KindLocalFile:
		return resolveLocalFile(ref.Path)
	case KindOci:
		return resolveOci(ctx, ref.Image)
	case KindBindle:
		if r.Bindle == nil {
			return Bytes{}, &ResolveError{Ref: ref, Reason: "no bindle store configured"}
		}
		return resolveBindle(ctx, r.Bindle, ref)
	default:
		return Bytes{}, &ResolveError{Ref: ref, Reason: "unknown reference kind"}
	}
}
