package audit

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/ecoaudit/internal/trace"
)

func snapshotOf(blocks ...trace.Block) trace.Snapshot {
	return trace.NewSnapshot("https://example.org/", time.Unix(1700000000, 0), blocks...)
}

func record(id, typ string, compressed, uncompressed int64) trace.Record {
	return trace.Record{
		RequestID: id,
		Request:   trace.RequestFacet{URL: "https://example.org/" + id, ResourceType: typ},
		Response:  trace.ResponseFacet{Status: 200, Protocol: "h2", UncompressedSize: uncompressed},
		Transfer:  trace.TransferFacet{CompressedSize: compressed},
	}
}

func fixed(score float64, mode DisplayMode, err error) Func {
	return Func{
		Info: Meta{
			ID:           "fixed",
			Title:        "Fixed passes",
			FailureTitle: "Fixed fails",
			Category:     CategoryDesign,
			Collectors:   []trace.CollectorID{trace.CollectConsole},
		},
		ComputeFn: func(trace.Snapshot, Env) (Outcome, error) {
			return Outcome{Score: score, Mode: mode}, err
		},
	}
}

func TestRunSkipsWhenCollectorMissing(t *testing.T) {
	res := Run(fixed(1, ModeBinary, nil), snapshotOf(), DefaultEnv())
	assert.True(t, res.Skipped())
	assert.Equal(t, ModeSkip, res.ScoreDisplayMode)
	assert.Equal(t, ReasonMissingData, res.Meta.SkipReason)
	assert.False(t, res.Meta.Errored)
	assert.Nil(t, res.Score)
}

func TestRunSkipsWhenNotApplicable(t *testing.T) {
	a := fixed(1, ModeBinary, nil)
	a.ApplicableFn = func(trace.Snapshot) bool { return false }
	res := Run(a, snapshotOf(&trace.ConsoleTraces{}), DefaultEnv())
	assert.True(t, res.Skipped())
	assert.Equal(t, ReasonNotApplicable, res.Meta.SkipReason)
}

func TestRunErrorBecomesErroredSkip(t *testing.T) {
	res := Run(fixed(0, ModeBinary, errors.New("boom")), snapshotOf(&trace.ConsoleTraces{}), DefaultEnv())
	assert.True(t, res.Skipped())
	assert.True(t, res.Meta.Errored)
	assert.Equal(t, "boom", res.Meta.SkipReason)
}

func TestRunPanicBecomesErroredSkip(t *testing.T) {
	a := fixed(0, ModeBinary, nil)
	a.ComputeFn = func(s trace.Snapshot, _ Env) (Outcome, error) {
		var m map[string]int
		m["x"] = 1
		return Outcome{}, nil
	}
	res := Run(a, snapshotOf(&trace.ConsoleTraces{}), DefaultEnv())
	assert.True(t, res.Meta.Errored)
	assert.Contains(t, res.Meta.SkipReason, "panic")
}

func TestRunRejectsOutOfRangeScores(t *testing.T) {
	for _, score := range []float64{-0.1, 1.5, math.NaN()} {
		res := Run(fixed(score, ModeNumeric, nil), snapshotOf(&trace.ConsoleTraces{}), DefaultEnv())
		assert.True(t, res.Meta.Errored, "score %v", score)
	}
}

func TestRunTitleFollowsThreshold(t *testing.T) {
	s := snapshotOf(&trace.ConsoleTraces{})

	res := Run(fixed(1, ModeBinary, nil), s, DefaultEnv())
	require.False(t, res.Skipped())
	assert.Equal(t, "Fixed passes", res.Meta.Title)
	assert.True(t, res.Meta.Passed)

	res = Run(fixed(0.4, ModeNumeric, nil), s, DefaultEnv())
	assert.Equal(t, "Fixed fails", res.Meta.Title)
	assert.False(t, res.Meta.Passed)

	res = Run(fixed(0.5, "", nil), s, DefaultEnv())
	assert.Equal(t, ModeNumeric, res.ScoreDisplayMode)
	assert.True(t, res.Meta.Passed)
	v, ok := res.Value()
	assert.True(t, ok)
	assert.Equal(t, 0.5, v)
}

func TestRunOutcomeSkipMode(t *testing.T) {
	res := Run(fixed(0, ModeSkip, nil), snapshotOf(&trace.ConsoleTraces{}), DefaultEnv())
	assert.True(t, res.Skipped())
	assert.False(t, res.Meta.Errored)
}

func TestRegistryRejectsDuplicatesAndEmptyIDs(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(fixed(1, ModeBinary, nil)))
	assert.Error(t, r.Register(fixed(1, ModeBinary, nil)))
	assert.Error(t, r.Register(Func{}))
	assert.Error(t, r.Register(nil))
	assert.Panics(t, func() { r.MustRegister(fixed(1, ModeBinary, nil)) })
}

func TestBuiltinRegistry(t *testing.T) {
	r := Builtin()
	ids := r.IDs()
	assert.Len(t, ids, 11)
	assert.Equal(t, "carbonfootprint", ids[0])

	seen := make(map[string]bool)
	for _, a := range r.All() {
		m := a.Meta()
		assert.False(t, seen[m.ID], "duplicate %s", m.ID)
		seen[m.ID] = true
		assert.NotEmpty(t, m.Title)
		assert.NotEmpty(t, m.Collectors, m.ID)
		assert.Contains(t, []Category{CategoryServer, CategoryDesign}, m.Category)
	}

	trimmed := r.Without("darkmode", "pixelefficiency")
	assert.Len(t, trimmed.IDs(), 9)
	_, ok := trimmed.Get("darkmode")
	assert.False(t, ok)
	_, ok = r.Get("darkmode")
	assert.True(t, ok)
}

func TestBuiltinAuditsSkipOnEmptySnapshot(t *testing.T) {
	for _, a := range Builtin().All() {
		res := Run(a, snapshotOf(), DefaultEnv())
		assert.True(t, res.Skipped(), a.Meta().ID)
		assert.False(t, res.Meta.Errored, a.Meta().ID)
	}
}

func TestCarbonFootprintTotals(t *testing.T) {
	third := record("c", "Image", 0, 20000)
	s := snapshotOf(&trace.TransferTraces{Records: []trace.Record{
		record("a", "Script", 100000, 300000),
		record("b", "Script", 50000, 120000),
		third,
	}})

	env := DefaultEnv()
	res := Run(CarbonFootprint(), s, env)
	require.False(t, res.Skipped())

	details, ok := res.ExtendedInfo.(CarbonDetails)
	require.True(t, ok)
	assert.EqualValues(t, 150000, details.TotalTransferSize)

	wantKWh := 170000.0 / bytesPerGB * (env.Carbon.DataCenterKWhPerGB + env.Carbon.CoreNetworkKWhPerGB)
	assert.InDelta(t, wantKWh, details.TotalWattage, 1e-15)
	assert.InDelta(t, wantKWh*442*100, details.CarbonFootprint, 1e-9)
	assert.False(t, details.GreenHosting)

	require.Len(t, details.Share, 2)
	assert.Equal(t, "Script", details.Share[0].Type)
	assert.InDelta(t, 100, details.Share[0].Percent, 1e-9)
	assert.Equal(t, "Image", details.Share[1].Type)
}

func TestCarbonFootprintGreenHostUsesNetworkOnly(t *testing.T) {
	recs := []trace.Record{record("a", "Document", bytesPerGB/10000, 0)}
	env := DefaultEnv()

	grey := Run(CarbonFootprint(), snapshotOf(&trace.TransferTraces{Records: recs}), env)
	green := Run(CarbonFootprint(), snapshotOf(
		&trace.TransferTraces{Records: recs},
		&trace.ServerTraces{Host: "example.org", Green: true, Checked: true},
	), env)

	gd := green.ExtendedInfo.(CarbonDetails)
	assert.True(t, gd.GreenHosting)
	assert.InDelta(t, 0.0001*env.Carbon.CoreNetworkKWhPerGB, gd.TotalWattage, 1e-9)
	assert.Greater(t, *green.Score, *grey.Score)
}

func TestCarbonFootprintScoreAtMedian(t *testing.T) {
	env := DefaultEnv()
	// Bytes that put the footprint exactly on the reference median.
	kwhPerGB := env.Carbon.DataCenterKWhPerGB + env.Carbon.CoreNetworkKWhPerGB
	bytes := 4 / (env.Carbon.CarbonIntensity * env.Carbon.DailyVisitors) / kwhPerGB * bytesPerGB
	s := snapshotOf(&trace.TransferTraces{Records: []trace.Record{record("a", "Document", int64(bytes), 0)}})

	res := Run(CarbonFootprint(), s, env)
	require.NotNil(t, res.Score)
	assert.InDelta(t, 0.5, *res.Score, 1e-3)
	assert.Equal(t, ModeNumeric, res.ScoreDisplayMode)
}

func TestCarbonFootprintMissingReference(t *testing.T) {
	env := DefaultEnv()
	env.References = nil
	s := snapshotOf(&trace.TransferTraces{Records: []trace.Record{record("a", "Document", 10, 0)}})
	res := Run(CarbonFootprint(), s, env)
	assert.True(t, res.Meta.Errored)
}

func TestUsesCompression(t *testing.T) {
	gz := record("app.js", "Script", 5000, 20000)
	gz.Response.Headers = map[string]string{"Content-Encoding": "gzip"}
	plain := record("site.css", "Stylesheet", 8000, 8000)
	tiny := record("tiny.js", "Script", 300, 300)
	img := record("hero.png", "Image", 90000, 90000)

	pass := Run(UsesCompression(), snapshotOf(&trace.TransferTraces{Records: []trace.Record{gz, tiny, img}}), DefaultEnv())
	require.NotNil(t, pass.Score)
	assert.Equal(t, 1.0, *pass.Score)

	fail := Run(UsesCompression(), snapshotOf(&trace.TransferTraces{Records: []trace.Record{gz, plain}}), DefaultEnv())
	require.NotNil(t, fail.Score)
	assert.Equal(t, 0.0, *fail.Score)
	assert.Equal(t, "Enable text compression", fail.Meta.Title)
	offenders := fail.ExtendedInfo.([]Offender)
	require.Len(t, offenders, 1)
	assert.Equal(t, plain.Request.URL, offenders[0].URL)

	none := Run(UsesCompression(), snapshotOf(&trace.TransferTraces{Records: []trace.Record{img}}), DefaultEnv())
	assert.Equal(t, ReasonNotApplicable, none.Meta.SkipReason)
}

func TestUsesHTTP2(t *testing.T) {
	old := record("old", "Script", 10, 10)
	old.Response.Protocol = "http/1.1"
	quic := record("q", "Script", 10, 10)
	quic.Response.Protocol = "h3-29"

	res := Run(UsesHTTP2(), snapshotOf(&trace.TransferTraces{Records: []trace.Record{record("a", "Document", 10, 10), quic}}), DefaultEnv())
	assert.Equal(t, 1.0, *res.Score)

	res = Run(UsesHTTP2(), snapshotOf(&trace.TransferTraces{Records: []trace.Record{record("a", "Document", 10, 10), old}}), DefaultEnv())
	assert.Equal(t, 0.0, *res.Score)
	assert.Equal(t, "http/1.1", res.ExtendedInfo.([]Offender)[0].Detail)
}

func TestModernImages(t *testing.T) {
	webp := record("a.webp", "Image", 10, 10)
	webp.Response.MimeType = "image/webp"
	svg := record("logo.svg", "Image", 10, 10)
	svg.Response.MimeType = "image/svg+xml"
	jpeg := record("photo.jpg", "Image", 10, 10)

	res := Run(ModernImages(), snapshotOf(&trace.TransferTraces{Records: []trace.Record{webp, svg}}), DefaultEnv())
	assert.Equal(t, 1.0, *res.Score)

	res = Run(ModernImages(), snapshotOf(&trace.TransferTraces{Records: []trace.Record{webp, jpeg}}), DefaultEnv())
	assert.Equal(t, 0.0, *res.Score)
	assert.Equal(t, "jpg", res.ExtendedInfo.([]Offender)[0].Detail)
}

func TestLazyLoading(t *testing.T) {
	tr := &trace.TransferTraces{OffscreenImages: []trace.OffscreenImage{
		{URL: "https://example.org/a.webp", LoadingAttr: "lazy"},
	}}
	res := Run(LazyLoading(), snapshotOf(tr), DefaultEnv())
	assert.Equal(t, 1.0, *res.Score)

	tr.OffscreenImages = append(tr.OffscreenImages, trace.OffscreenImage{URL: "https://example.org/b.webp", Eager: true})
	res = Run(LazyLoading(), snapshotOf(tr), DefaultEnv())
	assert.Equal(t, 0.0, *res.Score)
	assert.Len(t, res.ExtendedInfo.([]Offender), 1)
}

func TestGreenServer(t *testing.T) {
	res := Run(GreenServer(), snapshotOf(&trace.ServerTraces{Host: "example.org", Green: true, HostedBy: "Hetzner", Checked: true}), DefaultEnv())
	assert.Equal(t, 1.0, *res.Score)
	assert.Equal(t, GreenServerDetails{Host: "example.org", HostedBy: "Hetzner"}, res.ExtendedInfo)

	res = Run(GreenServer(), snapshotOf(&trace.ServerTraces{Host: "example.org"}), DefaultEnv())
	assert.True(t, res.Skipped())
}

func TestNoConsoleLogs(t *testing.T) {
	res := Run(NoConsoleLogs(), snapshotOf(&trace.ConsoleTraces{}), DefaultEnv())
	assert.Equal(t, 1.0, *res.Score)

	res = Run(NoConsoleLogs(), snapshotOf(&trace.ConsoleTraces{Messages: []trace.ConsoleMessage{{Level: "log", Text: "hi"}}}), DefaultEnv())
	assert.Equal(t, 0.0, *res.Score)
	assert.Equal(t, "Remove console messages", res.Meta.Title)
}

func TestReactiveAnimations(t *testing.T) {
	res := Run(ReactiveAnimations(), snapshotOf(&trace.AnimationTraces{Total: 2}), DefaultEnv())
	assert.Equal(t, 1.0, *res.Score)

	res = Run(ReactiveAnimations(), snapshotOf(&trace.AnimationTraces{Total: 2, NotReactive: []trace.Animation{{Name: "spin", Type: "CSSAnimation"}}}), DefaultEnv())
	assert.Equal(t, 0.0, *res.Score)
}

func TestScreenshotAudits(t *testing.T) {
	s := snapshotOf(&trace.ScreenshotTraces{HasDarkMode: true, PowerWatts: 12})
	assert.Equal(t, 1.0, *Run(DarkMode(), s, DefaultEnv()).Score)
	assert.Equal(t, 1.0, *Run(PixelEfficiency(), s, DefaultEnv()).Score)

	s = snapshotOf(&trace.ScreenshotTraces{PowerWatts: 31})
	assert.Equal(t, 0.0, *Run(DarkMode(), s, DefaultEnv()).Score)
	res := Run(PixelEfficiency(), s, DefaultEnv())
	assert.Equal(t, 0.0, *res.Score)
	assert.Equal(t, PixelDetails{PowerWatts: 31, LimitWatts: 20}, res.ExtendedInfo)
}

func TestFontSubsetting(t *testing.T) {
	fontRecord := record("inter.woff2", "Font", 20000, 20000)
	fonts := &trace.FontTraces{Fonts: []trace.Font{{Name: "Inter", Status: "loaded"}, {Name: "Lobster", Status: "loaded"}}}
	transfer := &trace.TransferTraces{Records: []trace.Record{fontRecord}}

	subset := &trace.CSSTraces{Sheets: []trace.Stylesheet{{URL: "a.css", Text: `@font-face { font-family: Inter; unicode-range: U+0000-00FF; }`}}}
	res := Run(FontSubsetting(), snapshotOf(subset, fonts, transfer), DefaultEnv())
	require.NotNil(t, res.Score)
	assert.Equal(t, 1.0, *res.Score)

	mixed := &trace.CSSTraces{Sheets: []trace.Stylesheet{
		{URL: "a.css", Text: `@font-face { font-family: Inter; unicode-range: U+0000-00FF; }`},
		{URL: "b.css", Text: `@font-face { font-family: "lobster"; src: url(l.woff2); }`},
	}}
	res = Run(FontSubsetting(), snapshotOf(mixed, fonts, transfer), DefaultEnv())
	require.NotNil(t, res.Score)
	assert.Equal(t, 0.0, *res.Score)
	assert.Equal(t, FontSubsetDetails{NotSubset: []trace.Font{{Name: "Lobster", Status: "loaded"}}}, res.ExtendedInfo)

	noFontRequests := &trace.TransferTraces{Records: []trace.Record{record("a", "Document", 10, 10)}}
	res = Run(FontSubsetting(), snapshotOf(mixed, fonts, noFontRequests), DefaultEnv())
	assert.Equal(t, ReasonNotApplicable, res.Meta.SkipReason)

	noFaces := &trace.CSSTraces{Sheets: []trace.Stylesheet{{URL: "c.css", Text: `body { color: red; }`}}}
	res = Run(FontSubsetting(), snapshotOf(noFaces, fonts, transfer), DefaultEnv())
	require.NotNil(t, res.Score)
	assert.Equal(t, 0.0, *res.Score)
	assert.False(t, res.Meta.Passed)
	assert.Equal(t, FontSubsetDetails{NotSubset: fonts.Fonts}, res.ExtendedInfo)

	lastFamily := &trace.CSSTraces{Sheets: []trace.Stylesheet{
		{URL: "d.css", Text: `@font-face { font-family: Fallback; font-family: "Inter"; unicode-range: U+0000-00FF; }`},
	}}
	res = Run(FontSubsetting(), snapshotOf(lastFamily, fonts, transfer), DefaultEnv())
	require.NotNil(t, res.Score)
	assert.Equal(t, 1.0, *res.Score)
}
