package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/alimikegami/point-of-sales/checkout-service/internal/domain"
	"github.com/alimikegami/point-of-sales/checkout-service/pkg/errs"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

type PaymentRepositoryImpl struct {
	db *sqlx.DB
}

func CreatePaymentRepository(db *sqlx.DB) PaymentRepository {
	return &PaymentRepositoryImpl{
		db: db,
	}
}

func (r *PaymentRepositoryImpl) AddAttempt(ctx context.Context, data domain.PaymentSession) (id int64, err error) {
	nstmt, err := r.db.PrepareNamedContext(ctx, `INSERT INTO payment_attempts(merchant_tx_id, order_id, buyer_id, gateway_provider, pay_method, amount, used_points, coupon_code, address_id, cart_item_ids, state, gateway_tx_id, failure_reason, created_at, updated_at)
		VALUES (:merchant_tx_id, :order_id, :buyer_id, :gateway_provider, :pay_method, :amount, :used_points, :coupon_code, :address_id, :cart_item_ids, :state, :gateway_tx_id, :failure_reason, :created_at, :updated_at) returning id`)
	if err != nil {
		log.Error().Err(err).Str("component", "AddAttempt").Msg("")
		return 0, errs.ErrInternalServer
	}
	defer nstmt.Close()

	err = nstmt.GetContext(ctx, &data.ID, data)
	if err != nil {
		log.Error().Err(err).Str("component", "AddAttempt").Msg("")
		return 0, errs.ErrInternalServer
	}

	return data.ID, nil
}

func (r *PaymentRepositoryImpl) UpdateAttempt(ctx context.Context, data domain.PaymentSession) (err error) {
	_, err = r.db.NamedExecContext(ctx, `UPDATE payment_attempts SET state = :state, gateway_tx_id = :gateway_tx_id, failure_reason = :failure_reason, updated_at = :updated_at
		WHERE merchant_tx_id = :merchant_tx_id`, data)
	if err != nil {
		log.Error().Err(err).Str("component", "UpdateAttempt").Msg("")
		return errs.ErrInternalServer
	}

	return nil
}

func (r *PaymentRepositoryImpl) GetAttemptByMerchantTxID(ctx context.Context, merchantTxID string) (data domain.PaymentSession, err error) {
	row := r.db.QueryRowxContext(ctx, "SELECT * FROM payment_attempts WHERE merchant_tx_id = $1", merchantTxID)
	err = row.StructScan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return data, nil
		}
		log.Error().Err(err).Str("component", "GetAttemptByMerchantTxID").Msg("")
		return data, errs.ErrInternalServer
	}

	return
}

func (r *PaymentRepositoryImpl) GetLatestAttemptByOrderID(ctx context.Context, orderID int64) (data domain.PaymentSession, err error) {
	row := r.db.QueryRowxContext(ctx, "SELECT * FROM payment_attempts WHERE order_id = $1 ORDER BY id DESC LIMIT 1", orderID)
	err = row.StructScan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return data, nil
		}
		log.Error().Err(err).Str("component", "GetLatestAttemptByOrderID").Msg("")
		return data, errs.ErrInternalServer
	}

	return
}

func (r *PaymentRepositoryImpl) GetAttemptsByOrderID(ctx context.Context, orderID int64) (data []domain.PaymentSession, err error) {
	err = r.db.SelectContext(ctx, &data, "SELECT * FROM payment_attempts WHERE order_id = $1 ORDER BY id", orderID)
	if err != nil {
		log.Error().Err(err).Str("component", "GetAttemptsByOrderID").Msg("")
		return nil, errs.ErrInternalServer
	}

	return
}
