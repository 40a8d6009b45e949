package category

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
		ok    bool
	}{
		{
			name:  "laptop",
			title: "Lenovo IdeaPad Slim 3 Intel Core i5 12th Gen Laptop",
			want:  "laptops",
			ok:    true,
		},
		{
			name:  "gaming laptop stays in laptops",
			title: "ASUS TUF Gaming Laptop RTX 4060",
			want:  "laptops",
			ok:    true,
		},
		{
			name:  "headphones",
			title: "Sony WH-1000XM5 Wireless Noise Cancelling Headphones",
			want:  "headphones",
			ok:    true,
		},
		{
			name:  "smartphone",
			title: "OnePlus Nord CE 3 Lite 5G Smartphone",
			want:  "smartphones",
			ok:    true,
		},
		{
			name:  "console",
			title: "Sony PlayStation 5 Slim Digital Edition",
			want:  "gaming",
			ok:    true,
		},
		{
			name:  "maker board",
			title: "ESP32 Development Board WiFi Bluetooth",
			want:  "electronics_accessories",
			ok:    true,
		},
		{
			name:  "charger",
			title: "Ambrane 20000mAh Power Bank Fast Charging",
			want:  "chargers",
			ok:    true,
		},
		{
			name:  "not electronics",
			title: "Organic Cotton Bath Towel Set of 4",
			want:  "",
			ok:    false,
		},
		{
			name:  "empty title",
			title: "",
			want:  "",
			ok:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Detect(tt.title)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsElectronics(t *testing.T) {
	assert.True(t, IsElectronics("boAt Airdopes 141 TWS Earbuds"))
	assert.False(t, IsElectronics("Ceramic Coffee Mug 350ml"))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Laptops & Notebooks", DisplayName("laptops"))
	assert.Equal(t, "Electronics", DisplayName("no_such_category"))
}

func TestKeysCoverTable(t *testing.T) {
	keys := Keys()
	assert.Len(t, keys, 15)
	assert.Equal(t, "laptops", keys[0])
}
