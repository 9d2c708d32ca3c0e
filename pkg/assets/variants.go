package assets

import (
	"mime"
	"path"
	"strings"

	"assetbridge/pkg/negotiate"
)

// Suffixes maps a content coding to the file suffix of its precompressed
// sibling. Codings without an entry resolve to the base file.
type Suffixes map[string]string

// DefaultSuffixes is the static variant table. deflate has no entry: a .gz
// file is a gzip stream, not raw zlib, so deflate-only clients get the base
// file.
var DefaultSuffixes = Suffixes{
	negotiate.Brotli:   ".br",
	negotiate.Zstd:     ".zst",
	negotiate.Gzip:     ".gz",
	negotiate.Compress: ".Z",
}

// LegacySuffixes additionally serves .gz files to deflate-only clients.
var LegacySuffixes = Suffixes{
	negotiate.Brotli:   ".br",
	negotiate.Zstd:     ".zst",
	negotiate.Gzip:     ".gz",
	negotiate.Deflate:  ".gz",
	negotiate.Compress: ".Z",
}

const defaultContentType = "application/octet-stream"

var contentTypes = map[string]string{
	".html":        "text/html; charset=utf-8",
	".htm":         "text/html; charset=utf-8",
	".css":         "text/css; charset=utf-8",
	".js":          "text/javascript; charset=utf-8",
	".mjs":         "text/javascript; charset=utf-8",
	".json":        "application/json",
	".map":         "application/json",
	".webmanifest": "application/manifest+json",
	".txt":         "text/plain; charset=utf-8",
	".xml":         "application/xml",
	".svg":         "image/svg+xml",
	".png":         "image/png",
	".jpg":         "image/jpeg",
	".jpeg":        "image/jpeg",
	".gif":         "image/gif",
	".webp":        "image/webp",
	".avif":        "image/avif",
	".ico":         "image/x-icon",
	".woff":        "font/woff",
	".woff2":       "font/woff2",
	".ttf":         "font/ttf",
	".otf":         "font/otf",
	".wasm":        "application/wasm",
	".pdf":         "application/pdf",
	".mp4":         "video/mp4",
	".webm":        "video/webm",
	".mp3":         "audio/mpeg",
}

// ContentType returns the media type for a public path, derived from the
// extension of the base file (not the variant). Unknown extensions fall back
// to the system table and then to application/octet-stream.
func ContentType(p string) string {
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return defaultContentType
	}
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return defaultContentType
}
