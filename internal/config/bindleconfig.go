package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/deislabs/wagi-go/internal/handler"
	"github.com/deislabs/wagi-go/internal/modref"
)

// wasmMediaType is the media type that marks an invoice parcel as a
// Wasm module, matching modref.WasmLayerMediaType's OCI counterpart.
const wasmMediaType = "application/wasm"

// LoadBindle builds handler.Spec entries from a bindle invoice: each
// default-group Wasm-typed parcel becomes a handler; parcels annotated
// "feature.wagi.file=true" that are members of the same group as the
// Wasm parcel are staged into a temporary directory and exposed as a
// synthetic volume at "/files". Group requirements declared by parcels
// are not read: file parcels in other groups are never staged.
func LoadBindle(ctx context.Context, invoiceID string, store modref.BindleStore, precompile Precompile) ([]*handler.Spec, error) {
	resolver := &modref.Resolver{Bindle: store}

	invoice, err := store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, &ConfigError{Reason: "fetch bindle invoice", Err: err}
	}

	stageDir, err := os.MkdirTemp("", "wagi-bindle-*")
	if err != nil {
		return nil, &ConfigError{Reason: "create bindle staging dir", Err: err}
	}

	var specs []*handler.Spec
	for _, p := range invoice.Parcels {
		if p.MediaType != wasmMediaType {
			continue
		}
		if p.Group != "" && p.Group != "default" {
			continue
		}

		ref := modref.Reference{Kind: modref.KindBindle, Invoice: invoiceID, Parcel: p.SHA256}
		bytes, err := resolver.Resolve(ctx, ref)
		if err != nil {
			return nil, &ConfigError{Reason: "resolve bindle parcel", Err: err}
		}
		if precompile != nil {
			if err := precompile(ctx, bytes); err != nil {
				return nil, &ConfigError{Reason: "bindle module failed to precompile", Err: err}
			}
		}

		route := p.Annotations["feature.wagi.route"]
		if route == "" || route[0] != '/' {
			return nil, &ConfigError{Reason: fmt.Sprintf("parcel %s missing valid feature.wagi.route annotation", p.SHA256)}
		}

		allowed := make(map[string]struct{})
		if hosts := p.Annotations["feature.wagi.allowed_hosts"]; hosts != "" {
			allowed[hosts] = struct{}{}
		}

		volumes := map[string]string{}
		if p.Group != "" {
			dir, err := stageGroupFiles(ctx, invoiceID, store, invoice.Parcels, p.Group, stageDir)
			if err != nil {
				return nil, err
			}
			if dir != "" {
				volumes["/files"] = dir
			}
		}

		specs = append(specs, &handler.Spec{
			ModuleBytes:  bytes,
			Entrypoint:   p.Annotations["feature.wagi.entrypoint"],
			Pattern:      handler.ParseRoutePattern(route),
			Volumes:      volumes,
			Environment:  map[string]string{},
			AllowedHosts: allowed,
			SourceRoute:  route,
		})
	}

	if len(specs) == 0 {
		return nil, &ConfigError{Reason: "bindle invoice has no default-group wasm parcels"}
	}
	return specs, nil
}

// stageGroupFiles materializes every parcel annotated
// "feature.wagi.file=true" that is a member of group into a fresh
// subdirectory of stageDir, returning that subdirectory (or "" if no
// file parcels belong to the group).
func stageGroupFiles(ctx context.Context, invoiceID string, store modref.BindleStore, parcels []modref.InvoiceParcel, group, stageDir string) (string, error) {
	var members []modref.InvoiceParcel
	for _, p := range parcels {
		if p.Group == group && p.Annotations["feature.wagi.file"] == "true" {
			members = append(members, p)
		}
	}
	if len(members) == 0 {
		return "", nil
	}

	dir := filepath.Join(stageDir, group)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", &ConfigError{Reason: "stage bindle file group", Err: err}
	}

	for _, p := range members {
		data, err := store.GetParcel(ctx, invoiceID, p.SHA256)
		if err != nil {
			return "", &ConfigError{Reason: fmt.Sprintf("fetch file parcel %s", p.SHA256), Err: err}
		}
		name := p.Annotations["feature.wagi.filename"]
		if name == "" {
			name = p.SHA256
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0600); err != nil {
			return "", &ConfigError{Reason: fmt.Sprintf("write staged file %s", name), Err: err}
		}
	}

	return dir, nil
}
