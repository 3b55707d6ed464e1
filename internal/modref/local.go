package modref

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/deislabs/wagi-go/internal/safefile"
)

// MaxLocalModuleSize bounds how large a single local module file may be
// (64MB), protecting the loader against unbounded reads of a file that
// grows between stat and read.
const MaxLocalModuleSize = 64 * 1024 * 1024

func resolveLocalFile(path string) (Bytes, error) {
	f, info, err := safefile.OpenRegular(path)
	if err != nil {
		if errors.Is(err, safefile.ErrNotRegularFile) {
			return Bytes{}, &ResolveError{Ref: Reference{Kind: KindLocalFile, Path: path}, Reason: "not a regular file", Err: err}
		}
		return Bytes{}, &ResolveError{Ref: Reference{Kind: KindLocalFile, Path: path}, Reason: "open failed", Err: err}
	}
	defer f.Close()

	if info.Size() > MaxLocalModuleSize {
		return Bytes{}, &ResolveError{Ref: Reference{Kind: KindLocalFile, Path: path}, Reason: "module file too large"}
	}

	raw, err := io.ReadAll(io.LimitReader(f, MaxLocalModuleSize+1))
	if err != nil {
		return Bytes{}, &ResolveError{Ref: Reference{Kind: KindLocalFile, Path: path}, Reason: "read failed", Err: err}
	}
	if int64(len(raw)) > MaxLocalModuleSize {
		return Bytes{}, &ResolveError{Ref: Reference{Kind: KindLocalFile, Path: path}, Reason: "module file too large"}
	}

	if strings.EqualFold(filepath.Ext(path), ".wat") {
		return Bytes{}, fmt.Errorf("%s: %w", path, ErrWatUnsupported)
	}

	return NewBytes(raw), nil
}
