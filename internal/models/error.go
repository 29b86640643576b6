package models

import "errors"

var (
	ErrConflictData      = errors.New("data conflicts with existing data")
	ErrDataNotFound      = errors.New("data not found")
	ErrOrderNotPending   = errors.New("order is not pending")
	ErrAssetNotSupported = errors.New("asset not supported")
	ErrRatesUnavailable  = errors.New("exchange rates unavailable")
	ErrInvalidProduct    = errors.New("invalid product")
	ErrInvalidToken      = errors.New("invalid token")
	ErrForbidden         = errors.New("order belongs to another user")
)
