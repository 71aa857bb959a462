package stock

// Counter is the per-product stock level. The quantity only moves through
// conditional writes, so it can never go negative no matter how many callers
// race on it.
type Counter struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

// Available reports whether qty units can be taken.
func (c Counter) Available(qty int) bool {
	return c.Quantity >= qty
}
