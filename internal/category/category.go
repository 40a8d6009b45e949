// Package category decides whether a product belongs to one of the tracked
// electronics categories. Matching is a case-insensitive substring scan of the
// product title against a curated keyword table; the first category that
// matches wins, so the table order matters.
package category

import "strings"

type Category struct {
	Key         string
	Description string
	Keywords    []string
}

// categories is ordered: earlier entries win ties. Laptops before gaming, for
// example, so "gaming laptop" lands in laptops.
var categories = []Category{
	{
		Key:         "laptops",
		Description: "Laptops & Notebooks",
		Keywords:    []string{"laptop", "notebook", "macbook", "chromebook", "ultrabook"},
	},
	{
		Key:         "headphones",
		Description: "Headphones & Audio",
		Keywords:    []string{"headphone", "earphone", "earbud", "airpods", "wireless earbuds", "headset"},
	},
	{
		Key:         "smartphones",
		Description: "Smartphones",
		Keywords:    []string{"smartphone", "iphone", "samsung galaxy", "oneplus", "pixel", "mobile phone", "phone"},
	},
	{
		Key:         "monitors",
		Description: "Monitors & Displays",
		Keywords:    []string{"monitor", "gaming monitor", "4k monitor", "ultrawide", "display"},
	},
	{
		Key:         "tablets",
		Description: "Tablets",
		Keywords:    []string{"tablet", "ipad", "android tablet", "galaxy tab"},
	},
	{
		Key:         "smartwatches",
		Description: "Smartwatches & Fitness",
		Keywords:    []string{"smartwatch", "smart watch", "apple watch", "fitbit", "fitness tracker", "fitness band", "smart band"},
	},
	{
		Key:         "cameras",
		Description: "Cameras & Photography",
		Keywords:    []string{"camera", "dslr", "mirrorless", "gopro", "action camera", "digital camera"},
	},
	{
		Key:         "gaming",
		Description: "Gaming Consoles",
		Keywords:    []string{"playstation", "xbox", "nintendo", "console", "ps5", "ps4", "gaming console"},
	},
	{
		Key:         "pc_components",
		Description: "PC Components",
		Keywords: []string{
			"graphics card", "gpu", "nvidia", "rtx",
			"processor", "cpu", "intel core", "ryzen",
			"motherboard", "ram", "ddr4", "ddr5",
			"power supply", "psu", "cooling fan",
			"raspberry pi", "single board computer",
		},
	},
	{
		Key:         "keyboards_mice",
		Description: "Keyboards & Mice",
		Keywords:    []string{"keyboard", "mechanical keyboard", "gaming keyboard", "mouse", "gaming mouse", "trackpad"},
	},
	{
		Key:         "speakers",
		Description: "Speakers & Audio",
		Keywords:    []string{"speaker", "bluetooth speaker", "soundbar", "home theater", "subwoofer"},
	},
	{
		Key:         "routers",
		Description: "Routers & Networking",
		Keywords:    []string{"router", "wifi router", "mesh wifi", "modem", "networking"},
	},
	{
		Key:         "storage",
		Description: "External Storage",
		Keywords:    []string{"external hard drive", "external ssd", "ssd", "usb drive", "pen drive", "flash drive", "memory card", "hard drive"},
	},
	{
		Key:         "electronics_accessories",
		Description: "Electronics Accessories & Components",
		Keywords: []string{
			"dc converter", "buck converter", "boost converter", "step down", "step up",
			"smps", "power adapter", "voltage regulator",
			"soldering", "heat gun", "breadboard", "jumper wire", "multimeter", "oscilloscope",
			"arduino", "esp32", "esp8266", "nodemcu", "stm32",
			"development board", "microcontroller", "sensor module", "breakout board",
			"relay module", "led driver", "mosfet", "prototype board", "pcb",
			"usb cable", "hdmi cable", "aux cable", "adapter cable", "extension cable", "splitter", "usb hub",
			"led strip", "ws2812", "ring light",
			"wire stripper", "crimping tool", "heat shrink",
		},
	},
	{
		Key:         "chargers",
		Description: "Chargers & Power Banks",
		Keywords:    []string{"charger", "power bank", "charging cable", "wireless charger", "adapter"},
	},
}

// All returns the category table in matching order.
func All() []Category {
	return categories
}

// Keys returns the category keys in matching order.
func Keys() []string {
	keys := make([]string, len(categories))
	for i, c := range categories {
		keys[i] = c.Key
	}
	return keys
}

// Detect returns the category key for a product title, or ok=false when the
// title matches no tracked category (the product is not electronics we care
// about).
func Detect(title string) (string, bool) {
	if title == "" {
		return "", false
	}

	lower := strings.ToLower(title)
	for _, c := range categories {
		for _, kw := range c.Keywords {
			if strings.Contains(lower, kw) {
				return c.Key, true
			}
		}
	}

	return "", false
}

// IsElectronics reports whether the title falls into any tracked category.
func IsElectronics(title string) bool {
	_, ok := Detect(title)
	return ok
}

// DisplayName returns the human readable name for a category key.
func DisplayName(key string) string {
	for _, c := range categories {
		if c.Key == key {
			return c.Description
		}
	}
	return "Electronics"
}

// DisplayNames returns every category description, used by the API to tell
// the extension which products are trackable.
func DisplayNames() []string {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = c.Description
	}
	return names
}
