package horizon

// priceLevel is one bid or ask level as returned by the order-book endpoint.
// Price and amount are decimal strings.
type priceLevel struct {
	Price  string `json:"price"`
	Amount string `json:"amount"`
}

// orderBookResponse is the wire shape of GET /order_book.
type orderBookResponse struct {
	Bids []priceLevel `json:"bids"`
	Asks []priceLevel `json:"asks"`
}

// errorResponse is the problem+json body returned on non-2xx responses.
type errorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}
