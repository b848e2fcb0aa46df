package common

import "context"

// Gateway abstracts the private (signed) API of a trading venue for one user.
type Gateway interface {
	GetAccounts(ctx context.Context) ([]Account, error)
	GetOrderChance(ctx context.Context, market string) (OrderChance, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (Order, error)
	GetOrder(ctx context.Context, uuid string) (Order, error)
	CancelOrder(ctx context.Context, uuid string) (Order, error)
}
