package cartsync

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrMalformedPayload is returned when a stored cart cannot be decoded.
var ErrMalformedPayload = errors.New("cartsync: malformed cart payload")

// WireLine is the JSON shape of a line shared by the local cache and the cart API.
type WireLine struct {
	ProductID     int     `json:"id"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Quantity      int     `json:"quantity"`
	Image         string  `json:"image,omitempty"`
	SelectedSize  string  `json:"selectedSize,omitempty"`
	SelectedColor string  `json:"selectedColor,omitempty"`
	Category      string  `json:"category,omitempty"`
}

// ToWire converts lines to their JSON representation.
func ToWire(lines []Line) []WireLine {
	out := make([]WireLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, WireLine{
			ProductID:     line.ProductID,
			Name:          line.Name,
			Price:         line.UnitPrice.InexactFloat64(),
			Quantity:      line.Quantity,
			Image:         line.Image,
			SelectedSize:  line.Size,
			SelectedColor: line.Color,
			Category:      line.Category,
		})
	}
	return out
}

// FromWire converts JSON lines into normalised cart lines.
func FromWire(items []WireLine) []Line {
	lines := make([]Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, Line{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: decimal.NewFromFloat(item.Price),
			Quantity:  item.Quantity,
			Image:     item.Image,
			Size:      item.SelectedSize,
			Color:     item.SelectedColor,
			Category:  item.Category,
		})
	}
	return normaliseLines(lines)
}

// EncodeLines serialises lines for the local cache.
func EncodeLines(lines []Line) ([]byte, error) {
	return json.Marshal(ToWire(lines))
}

// DecodeLines parses a local cache payload. Anything that is not a JSON array of lines yields
// ErrMalformedPayload.
func DecodeLines(data []byte) ([]Line, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrMalformedPayload
	}
	var items []WireLine
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	for _, item := range items {
		if item.ProductID < 1 {
			return nil, fmt.Errorf("%w: line without product id", ErrMalformedPayload)
		}
	}
	return FromWire(items), nil
}
