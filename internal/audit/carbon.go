package audit

import (
	"sort"

	"github.com/dgnsrekt/ecoaudit/internal/scoring"
	"github.com/dgnsrekt/ecoaudit/internal/trace"
)

// RefCarbonFootprint names the reference distribution for gCO2eq per 100
// views.
const RefCarbonFootprint = "CF"

const bytesPerGB = 1024 * 1024 * 1024

// ResourceShare is the part of the page weight a resource type accounts for.
type ResourceShare struct {
	Type    string  `json:"type"`
	Bytes   int64   `json:"bytes"`
	Percent float64 `json:"percent"`
}

type CarbonDetails struct {
	TotalTransferSize int64           `json:"totalTransferSize"`
	TotalWattage      float64         `json:"totalWattageKWh"`
	CarbonFootprint   float64         `json:"carbonFootprintPer100Views"`
	GreenHosting      bool            `json:"greenHosting"`
	Share             []ResourceShare `json:"share"`
}

func CarbonFootprint() Audit {
	return Func{
		Info: Meta{
			ID:           "carbonfootprint",
			Title:        "Carbon footprint is moderate",
			FailureTitle: "Carbon footprint is high",
			Description:  "Estimated grams of CO2eq emitted to transfer the page 100 times, from the bytes moved through data centres and the core network.",
			Category:     CategoryServer,
			Collectors:   []trace.CollectorID{trace.CollectTransfer},
		},
		ApplicableFn: func(s trace.Snapshot) bool {
			return len(s.Records()) > 0
		},
		ComputeFn: computeCarbon,
	}
}

func computeCarbon(s trace.Snapshot, env Env) (Outcome, error) {
	ref, err := env.Reference(RefCarbonFootprint)
	if err != nil {
		return Outcome{}, err
	}

	green := s.Server != nil && s.Server.Checked && s.Server.Green
	kwhPerGB := env.Carbon.DataCenterKWhPerGB + env.Carbon.CoreNetworkKWhPerGB
	if green {
		kwhPerGB = env.Carbon.CoreNetworkKWhPerGB
	}

	var total int64
	var kwh float64
	byType := make(map[string]int64)
	for _, r := range s.Records() {
		total += r.Transfer.CompressedSize
		typ := r.Request.ResourceType
		if typ == "" {
			typ = "Other"
		}
		byType[typ] += r.Transfer.CompressedSize
		kwh += float64(r.TransferSize()) / bytesPerGB * kwhPerGB
	}

	metric := kwh * env.Carbon.CarbonIntensity * env.Carbon.DailyVisitors

	return Outcome{
		Score: scoring.LogNormal(ref, metric),
		Mode:  ModeNumeric,
		Details: CarbonDetails{
			TotalTransferSize: total,
			TotalWattage:      kwh,
			CarbonFootprint:   metric,
			GreenHosting:      green,
			Share:             shares(byType, total),
		},
	}, nil
}

func shares(byType map[string]int64, total int64) []ResourceShare {
	out := make([]ResourceShare, 0, len(byType))
	for typ, n := range byType {
		pct := 0.0
		if total > 0 {
			pct = float64(n) / float64(total) * 100
		}
		out = append(out, ResourceShare{Type: typ, Bytes: n, Percent: pct})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bytes != out[j].Bytes {
			return out[i].Bytes > out[j].Bytes
		}
		return out[i].Type < out[j].Type
	})
	return out
}
