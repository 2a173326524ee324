package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/lingbai-i/mall-order-go/internal/order/domain"
)

// ListFilter narrows a paged listing. A nil Status means all statuses.
type ListFilter struct {
	UserID     int64
	MerchantID int64
	Status     *domain.OrderStatus
	Page       int // 1-based
	Size       int
}

func (f ListFilter) normalize() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Size < 1 || f.Size > 100 {
		f.Size = 10
	}
	return f
}

// List returns one page of orders, newest first, plus the total row
// count for the filter. Items are not loaded for listings.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]*domain.Order, int64, error) {
	f = f.normalize()

	var where []string
	var args []any
	cond := func(expr string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(expr, len(args)))
	}
	if f.UserID != 0 {
		cond("user_id=$%d", f.UserID)
	}
	if f.MerchantID != 0 {
		cond("merchant_id=$%d", f.MerchantID)
	}
	if f.Status != nil {
		cond("status=$%d", *f.Status)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Size, (f.Page-1)*f.Size)
	orders, err := r.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders`+clause+
			fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// StatusCounts groups order counts by status for one scope. Zero userID
// and merchantID means platform-wide.
func (r *Repository) StatusCounts(ctx context.Context, userID, merchantID int64) (map[domain.OrderStatus]int64, error) {
	var where []string
	var args []any
	if userID != 0 {
		args = append(args, userID)
		where = append(where, fmt.Sprintf("user_id=$%d", len(args)))
	}
	if merchantID != 0 {
		args = append(args, merchantID)
		where = append(where, fmt.Sprintf("merchant_id=$%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	rows, err := r.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM orders`+clause+` GROUP BY status`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.OrderStatus]int64)
	for rows.Next() {
		var status domain.OrderStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// SumCompletedAmount totals pay_amount over completed orders for a user;
// zero userID sums platform-wide.
func (r *Repository) SumCompletedAmount(ctx context.Context, userID int64) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(pay_amount), 0) FROM orders WHERE status=$1`
	args := []any{domain.StatusCompleted}
	if userID != 0 {
		query += ` AND user_id=$2`
		args = append(args, userID)
	}
	var sum decimal.Decimal
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

// SumValidTransactionAmount totals pay_amount over orders that represent
// money actually moved (paid, shipped, completed).
func (r *Repository) SumValidTransactionAmount(ctx context.Context, merchantID int64) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(pay_amount), 0) FROM orders WHERE status = ANY($1)`
	args := []any{[]string{
		string(domain.StatusPaid), string(domain.StatusShipped), string(domain.StatusCompleted),
	}}
	if merchantID != 0 {
		query += ` AND merchant_id=$2`
		args = append(args, merchantID)
	}
	var sum decimal.Decimal
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}
