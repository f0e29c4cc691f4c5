package cartsync

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Line is a single cart entry. Lines are identified by product, size and colour; two lines for the
// same product with a different size or colour are distinct entries.
type Line struct {
	ProductID int
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	Image     string
	Size      string
	Color     string
	Category  string
}

// LineKey is the identity of a line within a cart.
type LineKey struct {
	ProductID int
	Size      string
	Color     string
}

// Key returns the identity key for the line.
func (l Line) Key() LineKey {
	return LineKey{ProductID: l.ProductID, Size: l.Size, Color: l.Color}
}

// LineTotal returns unit price multiplied by quantity.
func (l Line) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Selector narrows removeLine/setQuantity to a size and colour. A nil field matches any value.
type Selector struct {
	Size  *string
	Color *string
}

// AnyVariant matches every line of a product.
func AnyVariant() Selector {
	return Selector{}
}

// Variant matches exactly the given size and colour.
func Variant(size, color string) Selector {
	return Selector{Size: &size, Color: &color}
}

// WithSize returns a copy of the selector constrained to size.
func (s Selector) WithSize(size string) Selector {
	s.Size = &size
	return s
}

// WithColor returns a copy of the selector constrained to color.
func (s Selector) WithColor(color string) Selector {
	s.Color = &color
	return s
}

func (s Selector) matches(productID int, line Line) bool {
	if line.ProductID != productID {
		return false
	}
	if s.Size != nil && line.Size != *s.Size {
		return false
	}
	if s.Color != nil && line.Color != *s.Color {
		return false
	}
	return true
}

// valid reports whether the line can be stored: a positive product id and a price that is not
// negative.
func (l Line) valid() bool {
	return l.ProductID >= 1 && !l.UnitPrice.IsNegative()
}

func normaliseLine(line Line) Line {
	line.Name = strings.TrimSpace(line.Name)
	line.Image = strings.TrimSpace(line.Image)
	line.Size = strings.TrimSpace(line.Size)
	line.Color = strings.TrimSpace(line.Color)
	line.Category = strings.TrimSpace(line.Category)
	if line.Quantity < 1 {
		line.Quantity = 1
	}
	return line
}

// normaliseLines enforces the cart invariants on lines coming from storage: invalid lines are
// dropped, quantities are at least one and duplicate identity keys are folded into the first
// occurrence.
func normaliseLines(lines []Line) []Line {
	if len(lines) == 0 {
		return nil
	}
	out := make([]Line, 0, len(lines))
	index := make(map[LineKey]int, len(lines))
	for _, raw := range lines {
		if !raw.valid() {
			continue
		}
		line := normaliseLine(raw)
		if idx, ok := index[line.Key()]; ok {
			out[idx].Quantity += line.Quantity
			continue
		}
		index[line.Key()] = len(out)
		out = append(out, line)
	}
	return out
}

func addLine(lines []Line, incoming Line) []Line {
	incoming = normaliseLine(incoming)
	out := cloneLines(lines)
	for i := range out {
		if out[i].Key() == incoming.Key() {
			out[i].Quantity += incoming.Quantity
			return out
		}
	}
	return append(out, incoming)
}

func removeLines(lines []Line, productID int, sel Selector) ([]Line, bool) {
	out := make([]Line, 0, len(lines))
	for _, line := range lines {
		if sel.matches(productID, line) {
			continue
		}
		out = append(out, line)
	}
	return out, len(out) != len(lines)
}

func setQuantity(lines []Line, productID, quantity int, sel Selector) ([]Line, bool) {
	if quantity < 1 {
		return lines, false
	}
	out := cloneLines(lines)
	changed := false
	for i := range out {
		if sel.matches(productID, out[i]) && out[i].Quantity != quantity {
			out[i].Quantity = quantity
			changed = true
		}
	}
	return out, changed
}

func cloneLines(lines []Line) []Line {
	if len(lines) == 0 {
		return nil
	}
	out := make([]Line, len(lines))
	copy(out, lines)
	return out
}
