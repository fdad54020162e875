package audit

import (
	"net/url"
	"path"
	"strings"

	"github.com/dgnsrekt/ecoaudit/internal/scoring"
	"github.com/dgnsrekt/ecoaudit/internal/trace"
)

// minCompressibleBytes is roughly one TCP packet; smaller responses gain
// nothing from compression.
const minCompressibleBytes = 1400

// Offender is a record that fails a transfer audit.
type Offender struct {
	URL    string `json:"url"`
	Bytes  int64  `json:"bytes,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func UsesCompression() Audit {
	return Func{
		Info: Meta{
			ID:           "usescompression",
			Title:        "Text resources are compressed",
			FailureTitle: "Enable text compression",
			Description:  "Text-based resources should be served with gzip, brotli, deflate or zstd encoding to minimise bytes on the wire.",
			Category:     CategoryServer,
			Collectors:   []trace.CollectorID{trace.CollectTransfer},
		},
		ApplicableFn: func(s trace.Snapshot) bool {
			return len(compressionCandidates(s.Records())) > 0
		},
		ComputeFn: func(s trace.Snapshot, _ Env) (Outcome, error) {
			var offenders []Offender
			for _, r := range compressionCandidates(s.Records()) {
				if !isCompressed(r.Header("content-encoding")) {
					offenders = append(offenders, Offender{URL: r.Request.URL, Bytes: r.TransferSize()})
				}
			}
			return binaryOutcome(offenders), nil
		},
	}
}

func compressionCandidates(records []trace.Record) []trace.Record {
	var out []trace.Record
	for _, r := range records {
		if !servedOK(r) || r.Response.FromServiceWorker {
			continue
		}
		if r.TransferSize() < minCompressibleBytes {
			continue
		}
		if isTextual(r) {
			out = append(out, r)
		}
	}
	return out
}

func isTextual(r trace.Record) bool {
	switch r.Request.ResourceType {
	case "Document", "Script", "Stylesheet":
		return true
	}
	mime := strings.ToLower(r.Response.MimeType)
	if mime == "" {
		mime = strings.ToLower(r.Header("content-type"))
	}
	for _, t := range []string{"text/", "javascript", "json", "xml", "svg"} {
		if strings.Contains(mime, t) {
			return true
		}
	}
	return false
}

func isCompressed(encoding string) bool {
	for _, part := range strings.Split(strings.ToLower(encoding), ",") {
		switch strings.TrimSpace(part) {
		case "gzip", "br", "deflate", "zstd", "compress":
			return true
		}
	}
	return false
}

func UsesHTTP2() Audit {
	return Func{
		Info: Meta{
			ID:           "useshttp2",
			Title:        "Uses HTTP/2 or newer",
			FailureTitle: "Serve resources over HTTP/2 or newer",
			Description:  "HTTP/2 and HTTP/3 multiplex requests over one connection and compress headers, reducing round trips and overhead.",
			Category:     CategoryServer,
			Collectors:   []trace.CollectorID{trace.CollectTransfer},
		},
		ApplicableFn: func(s trace.Snapshot) bool {
			return len(protocolCandidates(s.Records())) > 0
		},
		ComputeFn: func(s trace.Snapshot, _ Env) (Outcome, error) {
			var offenders []Offender
			for _, r := range protocolCandidates(s.Records()) {
				if !isModernProtocol(r.Response.Protocol) {
					offenders = append(offenders, Offender{URL: r.Request.URL, Detail: r.Response.Protocol})
				}
			}
			return binaryOutcome(offenders), nil
		},
	}
}

func protocolCandidates(records []trace.Record) []trace.Record {
	var out []trace.Record
	for _, r := range records {
		if r.IsDataURL() || r.Response.FromServiceWorker || r.Failed {
			continue
		}
		if r.Response.Protocol == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

func isModernProtocol(p string) bool {
	p = strings.ToLower(p)
	return p == "h2" || p == "h3" || strings.HasPrefix(p, "h3-") || p == "quic"
}

func ModernImages() Audit {
	return Func{
		Info: Meta{
			ID:           "modernimages",
			Title:        "Images use modern formats",
			FailureTitle: "Serve images in WebP or AVIF",
			Description:  "WebP and AVIF images are considerably smaller than JPEG or PNG at the same visual quality.",
			Category:     CategoryDesign,
			Collectors:   []trace.CollectorID{trace.CollectTransfer},
		},
		ApplicableFn: func(s trace.Snapshot) bool {
			return len(imageRecords(s.Records())) > 0
		},
		ComputeFn: func(s trace.Snapshot, _ Env) (Outcome, error) {
			var offenders []Offender
			for _, r := range imageRecords(s.Records()) {
				if format := imageFormat(r); !isModernImage(format) {
					offenders = append(offenders, Offender{URL: r.Request.URL, Bytes: r.TransferSize(), Detail: format})
				}
			}
			return binaryOutcome(offenders), nil
		},
	}
}

func imageRecords(records []trace.Record) []trace.Record {
	var out []trace.Record
	for _, r := range records {
		if r.Request.ResourceType == "Image" && servedOK(r) && !r.IsDataURL() {
			out = append(out, r)
		}
	}
	return out
}

func imageFormat(r trace.Record) string {
	mime := strings.ToLower(r.Response.MimeType)
	if mime == "" {
		mime = strings.ToLower(r.Header("content-type"))
	}
	if strings.HasPrefix(mime, "image/") {
		f := strings.TrimPrefix(mime, "image/")
		if i := strings.IndexAny(f, ";+"); i >= 0 {
			f = f[:i]
		}
		return strings.TrimSpace(f)
	}
	u, err := url.Parse(r.Request.URL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
}

func isModernImage(format string) bool {
	switch format {
	case "webp", "avif", "svg":
		return true
	}
	return false
}

func LazyLoading() Audit {
	return Func{
		Info: Meta{
			ID:           "lazyloading",
			Title:        "Offscreen images are lazy loaded",
			FailureTitle: "Defer offscreen images",
			Description:  "Images below the first viewport should load only when the user scrolls near them, so visitors who never scroll never pay for them.",
			Category:     CategoryDesign,
			Collectors:   []trace.CollectorID{trace.CollectTransfer},
		},
		ApplicableFn: func(s trace.Snapshot) bool {
			return len(s.Transfer.OffscreenImages) > 0
		},
		ComputeFn: func(s trace.Snapshot, _ Env) (Outcome, error) {
			var offenders []Offender
			for _, img := range s.Transfer.OffscreenImages {
				if img.Eager {
					offenders = append(offenders, Offender{URL: img.URL, Detail: img.LoadingAttr})
				}
			}
			return binaryOutcome(offenders), nil
		},
	}
}

func servedOK(r trace.Record) bool {
	return !r.Failed && r.Response.Status >= 200 && r.Response.Status < 300
}

func binaryOutcome(offenders []Offender) Outcome {
	out := Outcome{Score: scoring.Binary(len(offenders) == 0), Mode: ModeBinary}
	if len(offenders) > 0 {
		out.Details = offenders
	}
	return out
}
