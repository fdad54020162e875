package config

import "time"

const (
	DefaultDevice   = "desktop"
	DefaultLocation = "seattle"
)

const desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/68.0.3440.75 Safari/537.36"

// Device is an emulated viewport.
type Device struct {
	Name              string  `json:"name"`
	Width             int64   `json:"width"`
	Height            int64   `json:"height"`
	DeviceScaleFactor float64 `json:"device_scale_factor"`
	Mobile            bool    `json:"mobile"`
	UserAgent         string  `json:"user_agent"`
}

// Location is an emulated geolocation.
type Location struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

var Devices = map[string]Device{
	"desktop":     {Name: "Desktop 1920x1080", Width: 1920, Height: 1080, DeviceScaleFactor: 1, UserAgent: desktopUserAgent},
	"desktop-4-3": {Name: "Desktop 1024x768", Width: 1024, Height: 768, DeviceScaleFactor: 1, UserAgent: desktopUserAgent},
	"laptop":      {Name: "Laptop 1280x800", Width: 1280, Height: 800, DeviceScaleFactor: 1, UserAgent: desktopUserAgent},
}

var Locations = map[string]Location{
	"barcelona":  {Name: "Barcelona", Latitude: 41.3851, Longitude: 2.1734, Accuracy: 100},
	"bangladesh": {Name: "Bangladesh", Latitude: 23.685, Longitude: 90.3563, Accuracy: 100},
	"seattle":    {Name: "Seattle", Latitude: 47.6062, Longitude: -122.3331, Accuracy: 100},
	"sydney":     {Name: "Sydney", Latitude: -33.8688, Longitude: 151.2093, Accuracy: 100},
}

// Connection is what a collector needs to drive one page session.
type Connection struct {
	Device            Device        `json:"device"`
	Location          Location      `json:"location"`
	MaxNavigation     time.Duration `json:"max_navigation"`
	MaxScrollInterval time.Duration `json:"max_scroll_interval"`
	MaxScroll         time.Duration `json:"max_scroll"`
}

// DefaultConnection uses the default presets and navigation limits.
func DefaultConnection() Connection {
	return Connection{
		Device:            Devices[DefaultDevice],
		Location:          Locations[DefaultLocation],
		MaxNavigation:     60 * time.Second,
		MaxScrollInterval: 30 * time.Millisecond,
		MaxScroll:         10 * time.Second,
	}
}
