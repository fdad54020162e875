package trace

// TransferTraces holds every finalized network record of the session.
type TransferTraces struct {
	Records []Record `json:"records"`
	// OffscreenImages are images positioned below the first viewport.
	OffscreenImages []OffscreenImage `json:"offscreen_images,omitempty"`
	// Gaps counts requests that never completed before the session ended.
	Gaps int `json:"gaps"`
	// Cut is set when the deadline ended collection early.
	Cut bool `json:"cut,omitempty"`
}

type OffscreenImage struct {
	URL string `json:"url"`
	// LoadingAttr is the markup's loading attribute ("lazy", "eager" or "").
	LoadingAttr string `json:"loading_attr"`
	// Eager is true when the image was fetched before scrolling began.
	Eager bool `json:"eager"`
}

func (t *TransferTraces) Collector() CollectorID { return CollectTransfer }
func (t *TransferTraces) attach(s *Snapshot)     { s.Transfer = t }

// ServerTraces describes the hosting of the audited page.
type ServerTraces struct {
	Host     string `json:"host"`
	Green    bool   `json:"green"`
	HostedBy string `json:"hosted_by,omitempty"`
	// Checked is false when the green hosting lookup failed.
	Checked bool `json:"checked"`
}

func (t *ServerTraces) Collector() CollectorID { return CollectServer }
func (t *ServerTraces) attach(s *Snapshot)     { s.Server = t }

// ScreenshotTraces holds metrics derived from light and dark screenshots.
type ScreenshotTraces struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	HasDarkMode bool    `json:"has_dark_mode"`
	PowerWatts  float64 `json:"power_watts"`
	LightID     string  `json:"light_id,omitempty"`
	DarkID      string  `json:"dark_id,omitempty"`
}

func (t *ScreenshotTraces) Collector() CollectorID { return CollectScreenshot }
func (t *ScreenshotTraces) attach(s *Snapshot)     { s.Screenshot = t }

type Stylesheet struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

type CSSTraces struct {
	Sheets []Stylesheet `json:"sheets"`
}

func (t *CSSTraces) Collector() CollectorID { return CollectCSS }
func (t *CSSTraces) attach(s *Snapshot)     { s.CSS = t }

type Font struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// FontTraces is the document's font inventory.
type FontTraces struct {
	Fonts []Font `json:"fonts"`
}

func (t *FontTraces) Collector() CollectorID { return CollectFonts }
func (t *FontTraces) attach(s *Snapshot)     { s.Fonts = t }

type ConsoleMessage struct {
	Level string `json:"level"`
	Text  string `json:"text"`
	URL   string `json:"url,omitempty"`
}

type ConsoleTraces struct {
	Messages []ConsoleMessage `json:"messages"`
}

func (t *ConsoleTraces) Collector() CollectorID { return CollectConsole }
func (t *ConsoleTraces) attach(s *Snapshot)     { s.Console = t }

type Animation struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Target string `json:"target,omitempty"`
}

// AnimationTraces lists animations that run forever without user input.
type AnimationTraces struct {
	Total       int         `json:"total"`
	NotReactive []Animation `json:"not_reactive"`
}

func (t *AnimationTraces) Collector() CollectorID { return CollectAnimations }
func (t *AnimationTraces) attach(s *Snapshot)     { s.Animations = t }
