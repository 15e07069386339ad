package domain

type OrderItem struct {
	CartItemID  int64  `json:"cart_item_id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int64  `json:"quantity"`
	Amount      int64  `json:"amount"`
}

// OrderDraft is the server-owned temporary order a checkout works against.
type OrderDraft struct {
	ID               int64       `json:"id"`
	BuyerID          int64       `json:"buyer_id"`
	AddressID        int64       `json:"address_id"`
	ItemTotalAmount  int64       `json:"item_total_amount"`
	TotalDeliveryFee int64       `json:"total_delivery_fee"`
	Items            []OrderItem `json:"items"`
	// Discounts already confirmed on the server, e.g. before a page reload.
	UsedPointAmount int64   `json:"used_point_amount"`
	CouponCode      *string `json:"coupon_code"`
	CouponDiscount  int64   `json:"coupon_discount"`
}

func (o OrderDraft) GrossAmount() int64 {
	return o.ItemTotalAmount + o.TotalDeliveryFee
}

func (o OrderDraft) CartItemIDs() []int64 {
	ids := make([]int64, 0, len(o.Items))
	for _, item := range o.Items {
		ids = append(ids, item.CartItemID)
	}
	return ids
}

type Buyer struct {
	ID    int64
	Name  string
	Email string
	Phone string
	// Token is forwarded to collaborators that authorize by buyer session.
	Token string
}
