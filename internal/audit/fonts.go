package audit

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgnsrekt/ecoaudit/internal/scoring"
	"github.com/dgnsrekt/ecoaudit/internal/stylesheet"
	"github.com/dgnsrekt/ecoaudit/internal/trace"
)

type FontSubsetDetails struct {
	NotSubset []trace.Font `json:"notSubset"`
}

func FontSubsetting() Audit {
	return Func{
		Info: Meta{
			ID:           "fontsubsetting",
			Title:        "Use font subsetting",
			FailureTitle: "Ensure font subsetting is used",
			Description:  "Font subsetting downloads only the character ranges a page uses, via the unicode-range descriptor of @font-face.",
			Category:     CategoryDesign,
			Collectors:   []trace.CollectorID{trace.CollectCSS, trace.CollectFonts, trace.CollectTransfer},
		},
		ApplicableFn: func(s trace.Snapshot) bool {
			if len(s.CSS.Sheets) == 0 || len(s.Fonts.Fonts) == 0 {
				return false
			}
			for _, r := range s.Records() {
				if r.Request.ResourceType == "Font" {
					return true
				}
			}
			return false
		},
		ComputeFn: computeFontSubsetting,
	}
}

func computeFontSubsetting(s trace.Snapshot, _ Env) (Outcome, error) {
	var faces []stylesheet.FontFace
	var failed int
	for _, sheet := range s.CSS.Sheets {
		found, err := stylesheet.FontFaces(sheet.Text)
		if err != nil {
			failed++
			slog.Debug("Stylesheet parse failed", "url", sheet.URL, "error", err)
		}
		faces = append(faces, found...)
	}
	if len(faces) == 0 {
		if failed > 0 {
			return Outcome{}, fmt.Errorf("no @font-face rules recovered from %d unparsable stylesheets", failed)
		}
		// Fonts were downloaded without any subset declaration.
		return Outcome{Score: 0, Mode: ModeBinary, Details: FontSubsetDetails{NotSubset: s.Fonts.Fonts}}, nil
	}

	notSubset := make(map[string]bool)
	for _, f := range faces {
		if !f.HasSubset {
			notSubset[strings.ToLower(f.Name)] = true
		}
	}

	out := Outcome{Score: scoring.Binary(len(notSubset) == 0), Mode: ModeBinary}
	if len(notSubset) == 0 {
		return out, nil
	}

	var matched []trace.Font
	for _, f := range s.Fonts.Fonts {
		if notSubset[strings.ToLower(f.Name)] {
			matched = append(matched, f)
		}
	}
	if len(matched) == 0 {
		matched = s.Fonts.Fonts
	}
	out.Details = FontSubsetDetails{NotSubset: matched}
	return out, nil
}
