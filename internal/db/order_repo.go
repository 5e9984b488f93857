package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"lokumail/internal/types"
)

// OrderRepository provides read access to the orders, events, and locations
// tables owned by the ordering subsystem, plus the single reminded-flag write
// the reminder flow needs. This package never creates or migrates those
// tables.
type OrderRepository struct {
	db DBTX
}

// NewOrderRepository creates an order repository backed by the given database handle.
func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

// GetByID returns the order snapshot, or (nil, nil) if no such order exists.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*types.Order, error) {
	var (
		order          types.Order
		status         string
		email          *string
		phoneNumber    *string
		pickupLocation *string
		pickupTimeSlot *string
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, name, email, phone_number, status, item_id, item_name, quantity,
		       total_price, pickup_location, pickup_time_slot, event_id,
		       exclude_email, reminded
		FROM orders WHERE id = $1`, id).
		Scan(
			&order.ID,
			&order.Name,
			&email,
			&phoneNumber,
			&status,
			&order.ItemID,
			&order.ItemName,
			&order.Quantity,
			&order.TotalPrice,
			&pickupLocation,
			&pickupTimeSlot,
			&order.EventID,
			&order.ExcludeEmail,
			&order.Reminded,
		)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get order", err)
	}
	order.Status = types.OrderStatus(status)
	order.Email = valueOrEmpty(email)
	order.PhoneNumber = valueOrEmpty(phoneNumber)
	order.PickupLocation = valueOrEmpty(pickupLocation)
	order.PickupTimeSlot = valueOrEmpty(pickupTimeSlot)
	return &order, nil
}

// SetReminded updates the order's reminded bookkeeping flag.
func (r *OrderRepository) SetReminded(ctx context.Context, id string, reminded bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE orders SET reminded = $2 WHERE id = $1`, id, reminded)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update order reminded flag", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundOrder,
			fmt.Sprintf("order %s not found", id), nil)
	}
	return nil
}

// GetEventByID returns the event the order points at, or (nil, nil) if it is
// gone. Payload building falls back to the active event in that case.
func (r *OrderRepository) GetEventByID(ctx context.Context, id int64) (*types.Event, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, event_date, is_active, etransfer_enabled, etransfer_email
		FROM events WHERE id = $1`, id)
	return scanEvent(row)
}

// GetActiveEvent returns the currently active event, or (nil, nil) when none
// is active.
func (r *OrderRepository) GetActiveEvent(ctx context.Context) (*types.Event, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, event_date, is_active, etransfer_enabled, etransfer_email
		FROM events WHERE is_active ORDER BY id DESC LIMIT 1`)
	return scanEvent(row)
}

// GetLocationByNameOrID resolves an order's pickup_location value, which
// historically stored either a location id or a display name. Returns
// (nil, nil) when neither matches.
func (r *OrderRepository) GetLocationByNameOrID(ctx context.Context, nameOrID string) (*types.Location, error) {
	var loc types.Location
	var address *string
	err := r.db.QueryRow(ctx, `
		SELECT id, name, address FROM locations
		WHERE id = $1 OR name = $1 LIMIT 1`, nameOrID).
		Scan(&loc.ID, &loc.Name, &address)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get location", err)
	}
	loc.Address = valueOrEmpty(address)
	return &loc, nil
}

// ListConfirmedIDs returns the ids of all confirmed orders, oldest first.
// Used by bulk reminders; each id then goes through the full per-order
// enqueue guard chain.
func (r *OrderRepository) ListConfirmedIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id FROM orders WHERE status = 'confirmed' ORDER BY created_at ASC`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list confirmed orders", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan order id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate confirmed orders", err)
	}
	return ids, nil
}

func scanEvent(row pgx.Row) (*types.Event, error) {
	var (
		event          types.Event
		eventDate      *string
		etransferEmail *string
	)
	err := row.Scan(&event.ID, &eventDate, &event.IsActive, &event.EtransferEnabled, &etransferEmail)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan event", err)
	}
	event.EventDate = valueOrEmpty(eventDate)
	event.EtransferEmail = valueOrEmpty(etransferEmail)
	return &event, nil
}
