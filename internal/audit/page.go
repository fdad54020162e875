package audit

import (
	"github.com/dgnsrekt/ecoaudit/internal/scoring"
	"github.com/dgnsrekt/ecoaudit/internal/trace"
)

type GreenServerDetails struct {
	Host     string `json:"host"`
	HostedBy string `json:"hostedBy,omitempty"`
}

func GreenServer() Audit {
	return Func{
		Info: Meta{
			ID:           "greenserver",
			Title:        "Server is powered by renewable energy",
			FailureTitle: "Server is not known to use renewable energy",
			Description:  "Hosting on a provider listed by The Green Web Foundation means the data centre runs on renewable or offset energy.",
			Category:     CategoryServer,
			Collectors:   []trace.CollectorID{trace.CollectServer},
		},
		ApplicableFn: func(s trace.Snapshot) bool {
			return s.Server.Checked
		},
		ComputeFn: func(s trace.Snapshot, _ Env) (Outcome, error) {
			return Outcome{
				Score:   scoring.Binary(s.Server.Green),
				Mode:    ModeBinary,
				Details: GreenServerDetails{Host: s.Server.Host, HostedBy: s.Server.HostedBy},
			}, nil
		},
	}
}

func NoConsoleLogs() Audit {
	return Func{
		Info: Meta{
			ID:           "noconsolelogs",
			Title:        "No console messages",
			FailureTitle: "Remove console messages",
			Description:  "Messages written to the console during load are wasted work in production and often signal errors.",
			Category:     CategoryDesign,
			Collectors:   []trace.CollectorID{trace.CollectConsole},
		},
		ComputeFn: func(s trace.Snapshot, _ Env) (Outcome, error) {
			out := Outcome{Score: scoring.Binary(len(s.Console.Messages) == 0), Mode: ModeBinary}
			if len(s.Console.Messages) > 0 {
				out.Details = s.Console.Messages
			}
			return out, nil
		},
	}
}

func ReactiveAnimations() Audit {
	return Func{
		Info: Meta{
			ID:           "reactiveanimations",
			Title:        "Animations and transitions are reactive",
			FailureTitle: "Ensure reactive animations and transitions are used",
			Description:  "CSS animations and transitions should only run while the user interacts with them and pause otherwise.",
			Category:     CategoryDesign,
			Collectors:   []trace.CollectorID{trace.CollectAnimations},
		},
		ComputeFn: func(s trace.Snapshot, _ Env) (Outcome, error) {
			out := Outcome{Score: scoring.Binary(len(s.Animations.NotReactive) == 0), Mode: ModeBinary}
			if len(s.Animations.NotReactive) > 0 {
				out.Details = s.Animations.NotReactive
			}
			return out, nil
		},
	}
}

func DarkMode() Audit {
	return Func{
		Info: Meta{
			ID:           "darkmode",
			Title:        "Dark mode is available",
			FailureTitle: "Dark mode is unavailable",
			Description:  "A dark theme that follows prefers-color-scheme can noticeably cut power draw on OLED displays.",
			Category:     CategoryDesign,
			Collectors:   []trace.CollectorID{trace.CollectScreenshot},
		},
		ComputeFn: func(s trace.Snapshot, _ Env) (Outcome, error) {
			return Outcome{Score: scoring.Binary(s.Screenshot.HasDarkMode), Mode: ModeBinary}, nil
		},
	}
}

type PixelDetails struct {
	PowerWatts float64 `json:"powerWatts"`
	LimitWatts float64 `json:"limitWatts"`
}

func PixelEfficiency() Audit {
	return Func{
		Info: Meta{
			ID:           "pixelefficiency",
			Title:        "Website is pixel energy efficient",
			FailureTitle: "Website is not pixel energy efficient",
			Description:  "OLED pixels draw power in proportion to their brightness, so darker, less saturated pages use less energy.",
			Category:     CategoryDesign,
			Collectors:   []trace.CollectorID{trace.CollectScreenshot},
		},
		ComputeFn: func(s trace.Snapshot, env Env) (Outcome, error) {
			return Outcome{
				Score:   scoring.Binary(s.Screenshot.PowerWatts <= env.PixelPowerLimit),
				Mode:    ModeBinary,
				Details: PixelDetails{PowerWatts: s.Screenshot.PowerWatts, LimitWatts: env.PixelPowerLimit},
			}, nil
		},
	}
}
