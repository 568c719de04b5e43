package models

import "errors"

var ErrInvalidOrderTransition = errors.New("invalid order status transition")
