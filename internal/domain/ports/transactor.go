package ports

import "context"

// Transactor runs fn so that every repository call made with the ctx it
// receives commits or rolls back together
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
