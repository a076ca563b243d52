package types

import (
	"bytes"
	"encoding/json"
	"time"
)

// Asset is a photo held by the device photo store
type Asset struct {
	URI              string    `json:"uri"`
	ModificationTime time.Time `json:"modification_time"`
	AlbumID          string    `json:"album_id"`
}

// PhotoCollection is the ordered "recent photos" list, newest first
type PhotoCollection []Asset

// URIs returns the asset URIs in collection order
func (c PhotoCollection) URIs() []string {
	uris := make([]string, len(c))
	for i, a := range c {
		uris[i] = a.URI
	}
	return uris
}

// CapturedImage is a local image ready for upload
type CapturedImage struct {
	LocalURI string `json:"local_uri"`
}

// UploadedImage is the server-side copy of an uploaded image.
// ServerPath is never empty.
type UploadedImage struct {
	RemoteURL  string `json:"remote_url"`
	ServerPath string `json:"server_path"`
}

// DisplayBox is the on-screen box an uploaded image is rendered into
type DisplayBox struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Known reports whether the box has a usable, strictly positive size
func (b DisplayBox) Known() bool {
	return b.Width > 0 && b.Height > 0
}

// TapPoint is a tap in device pixels relative to the DisplayBox top-left
type TapPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NormalizedPoint is a resolution independent point with coordinates in [0,1]
type NormalizedPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SearchResult is a product match returned by the search service
type SearchResult struct {
	ID                FlexString `json:"id"`
	Title             string     `json:"title"`
	Price             FlexString `json:"price"`
	ImageURL          string     `json:"image"`
	SourceMarketplace string     `json:"source"`
	Link              string     `json:"link"`
}

// ResultSet holds search results in service order
type ResultSet []SearchResult

// FlexString decodes a JSON string or number into its textual form.
// The service is not consistent about quoting ids and prices.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler
func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = FlexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*s = FlexString(num.String())
	return nil
}

// Facing selects the camera lens
type Facing string

const (
	FacingBack  Facing = "back"
	FacingFront Facing = "front"
)

// Flash selects the flash mode
type Flash string

const (
	FlashOff Flash = "off"
	FlashOn  Flash = "on"
)

// CameraSettings are passed through to the capture device unchanged
type CameraSettings struct {
	Facing Facing  `json:"facing"`
	Flash  Flash   `json:"flash"`
	Zoom   float64 `json:"zoom"`
}
