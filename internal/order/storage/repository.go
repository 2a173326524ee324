package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lingbai-i/mall-order-go/internal/order/domain"
)

// ErrDuplicateKey is returned when an insert trips a unique constraint
// (order number or idempotency key).
var ErrDuplicateKey = errors.New("duplicate key")

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const orderColumns = `id, order_no, user_id, merchant_id, status, pay_amount, version,
	payment_id, cancel_reason, refund_reason,
	receiver_name, receiver_phone, receiver_address, remark,
	logistics_company, tracking_no,
	created_at, updated_at, pay_time, ship_time, confirm_time, cancel_time,
	refund_apply_time, refund_time`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID, &o.OrderNo, &o.UserID, &o.MerchantID, &o.Status, &o.PayAmount, &o.Version,
		&o.PaymentID, &o.CancelReason, &o.RefundReason,
		&o.ReceiverName, &o.ReceiverPhone, &o.ReceiverAddress, &o.Remark,
		&o.LogisticsCompany, &o.TrackingNo,
		&o.CreatedAt, &o.UpdatedAt, &o.PayTime, &o.ShipTime, &o.ConfirmTime, &o.CancelTime,
		&o.RefundApplyTime, &o.RefundTime,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// CreateOrder persists the order and its items in one transaction. When
// idemKey is non-empty it is recorded in the same transaction; a key
// collision (duplicate request or replica race) surfaces as
// ErrDuplicateKey with nothing persisted.
func (r *Repository) CreateOrder(ctx context.Context, o *domain.Order, idemKey string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`INSERT INTO orders(order_no, user_id, merchant_id, status, pay_amount,
			receiver_name, receiver_phone, receiver_address, remark)
		 VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, version, created_at, updated_at`,
		o.OrderNo, o.UserID, o.MerchantID, o.Status, o.PayAmount,
		o.ReceiverName, o.ReceiverPhone, o.ReceiverAddress, o.Remark,
	).Scan(&o.ID, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return err
	}

	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		err = tx.QueryRow(ctx,
			`INSERT INTO order_items(order_id, product_id, product_name, unit_price, quantity, subtotal)
			 VALUES($1, $2, $3, $4, $5, $6)
			 RETURNING id`,
			it.OrderID, it.ProductID, it.ProductName, it.UnitPrice, it.Quantity, it.Subtotal,
		).Scan(&it.ID)
		if err != nil {
			return err
		}
	}

	if idemKey != "" {
		_, err = tx.Exec(ctx,
			`INSERT INTO order_idempotency(idempotency_key, order_id) VALUES($1, $2)`,
			idemKey, o.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateKey
			}
			return err
		}
	}

	return tx.Commit(ctx)
}

// OrderIDByIdempotencyKey resolves a previously recorded creation key.
func (r *Repository) OrderIDByIdempotencyKey(ctx context.Context, key string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`SELECT order_id FROM order_idempotency WHERE idempotency_key=$1`, key).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return id, nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if err != nil {
		return nil, err
	}
	o.Items, err = r.ItemsByOrder(ctx, o.ID)
	return o, err
}

func (r *Repository) GetByOrderNo(ctx context.Context, orderNo string) (*domain.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_no=$1`, orderNo))
	if err != nil {
		return nil, err
	}
	o.Items, err = r.ItemsByOrder(ctx, o.ID)
	return o, err
}

func (r *Repository) ItemsByOrder(ctx context.Context, orderID int64) ([]domain.OrderItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, product_id, product_name, unit_price, quantity, subtotal
		 FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName,
			&it.UnitPrice, &it.Quantity, &it.Subtotal); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Stamp carries the columns set alongside a status write.
type Stamp struct {
	PaymentID        string
	CancelReason     string
	RefundReason     string
	LogisticsCompany string
	TrackingNo       string
}

// Transition is the single writer of orders.status. It consults the
// domain transition table, then performs a conditional update against the
// status and version the caller read. Zero rows affected means a
// concurrent writer won; the caller gets domain.ErrConflict and decides
// whether to re-read or reject.
func (r *Repository) Transition(ctx context.Context, o *domain.Order, to domain.OrderStatus, stamp Stamp) error {
	if !domain.CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStateTransition, o.Status, to)
	}

	set := []string{"status=$1", "version=version+1", "updated_at=now()"}
	args := []any{to}
	add := func(expr string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf(expr, len(args)))
	}

	now := time.Now().UTC()
	switch to {
	case domain.StatusPaid:
		if o.Status == domain.StatusPending {
			add("pay_time=$%d", now)
			add("payment_id=$%d", stamp.PaymentID)
		}
		// refund_pending -> paid rollback keeps the original pay stamp
	case domain.StatusShipped:
		add("ship_time=$%d", now)
		add("logistics_company=$%d", stamp.LogisticsCompany)
		add("tracking_no=$%d", stamp.TrackingNo)
	case domain.StatusCompleted:
		add("confirm_time=$%d", now)
	case domain.StatusCancelled:
		add("cancel_time=$%d", now)
		add("cancel_reason=$%d", stamp.CancelReason)
	case domain.StatusRefundPending:
		add("refund_apply_time=$%d", now)
		add("refund_reason=$%d", stamp.RefundReason)
	case domain.StatusRefunded:
		add("refund_time=$%d", now)
	}

	args = append(args, o.ID, o.Status, o.Version)
	query := fmt.Sprintf(`UPDATE orders SET %s WHERE id=$%d AND status=$%d AND version=$%d`,
		strings.Join(set, ", "), len(args)-2, len(args)-1, len(args))

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}

	o.Status = to
	o.Version++
	o.UpdatedAt = now
	switch to {
	case domain.StatusPaid:
		if o.PayTime == nil {
			o.PayTime = &now
			o.PaymentID = stamp.PaymentID
		}
	case domain.StatusShipped:
		o.ShipTime = &now
		o.LogisticsCompany = stamp.LogisticsCompany
		o.TrackingNo = stamp.TrackingNo
	case domain.StatusCompleted:
		o.ConfirmTime = &now
	case domain.StatusCancelled:
		o.CancelTime = &now
		o.CancelReason = stamp.CancelReason
	case domain.StatusRefundPending:
		o.RefundApplyTime = &now
		o.RefundReason = stamp.RefundReason
	case domain.StatusRefunded:
		o.RefundTime = &now
	}
	return nil
}

// FindPendingCreatedBefore feeds the timeout sweep.
func (r *Repository) FindPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Order, error) {
	return r.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE status=$1 AND created_at < $2 ORDER BY created_at`,
		domain.StatusPending, cutoff)
}

// FindShippedBefore feeds the auto-confirm sweep.
func (r *Repository) FindShippedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Order, error) {
	return r.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE status=$1 AND ship_time < $2 ORDER BY ship_time`,
		domain.StatusShipped, cutoff)
}

func (r *Repository) queryOrders(ctx context.Context, query string, args ...any) ([]*domain.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
