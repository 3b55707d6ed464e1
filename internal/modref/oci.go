package modref

import (
	"context"
	"fmt"
	"io"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
)

// WasmLayerMediaType is the media type an OCI layer must declare to be
// treated as the module's Wasm payload. Matches the convention used by
// wasm-to-oci tooling and the Wasm OCI artifact spec draft.
const WasmLayerMediaType = "application/vnd.wasm.content.layer.v1+wasm"

func resolveOci(ctx context.Context, image string) (Bytes, error) {
	ref := Reference{Kind: KindOci, Image: image}

	tag, err := name.ParseReference(image)
	if err != nil {
		return Bytes{}, &ResolveError{Ref: ref, Reason: "invalid image reference", Err: err}
	}

	img, err := remote.Image(tag, remote.WithContext(ctx), remote.WithAuthFromKeychain(authn.DefaultKeychain))
	if err != nil {
		return Bytes{}, &ResolveError{Ref: ref, Reason: "pull failed", Err: err}
	}

	manifest, err := img.Manifest()
	if err != nil {
		return Bytes{}, &ResolveError{Ref: ref, Reason: "manifest fetch failed", Err: err}
	}

	layers, err := img.Layers()
	if err != nil {
		return Bytes{}, &ResolveError{Ref: ref, Reason: "layers fetch failed", Err: err}
	}

	for i, desc := range manifest.Layers {
		if string(desc.MediaType) != WasmLayerMediaType {
			continue
		}
		if i >= len(layers) {
			break
		}
		rc, err := layers[i].Uncompressed()
		if err != nil {
			return Bytes{}, &ResolveError{Ref: ref, Reason: "layer read failed", Err: err}
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return Bytes{}, &ResolveError{Ref: ref, Reason: "layer read failed", Err: err}
		}
		return NewBytes(raw), nil
	}

	return Bytes{}, &ResolveError{Ref: ref, Reason: fmt.Sprintf("no layer with media type %s", WasmLayerMediaType)}
}
