package domain

import "errors"

// ErrorKind classifies failures so transports can map them without string matching.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindUnauthenticated
	KindForbidden
	KindConflict
	KindNotFound
	KindExternal
	KindRateLimited
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindExternal:
		return "external_dependency"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func NewError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the first *Error in err's chain, or "internal".
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "internal"
}

// orders
var (
	ErrOrderNotFound        = NewError(KindNotFound, "order_not_found", "order not found")
	ErrEmptyCart            = NewError(KindValidation, "empty_cart", "cart is empty")
	ErrInvalidQuantity      = NewError(KindValidation, "invalid_quantity", "quantity must be positive")
	ErrInvalidStatus        = NewError(KindValidation, "invalid_status", "unknown order status")
	ErrInvalidPaymentStatus = NewError(KindValidation, "invalid_payment_status", "unknown payment status")
	ErrPaidNotSettable      = NewError(KindValidation, "payment_status_protected", "payment status paid can only be set by settlement")
	ErrUseCancel            = NewError(KindValidation, "use_cancel", "orders are cancelled through the cancel operation")
	ErrInvalidTransition    = NewError(KindConflict, "invalid_transition", "invalid status transition")
	ErrOrderNotCancellable  = NewError(KindConflict, "order_not_cancellable", "order can no longer be cancelled")
	ErrOrderAlreadyPaid     = NewError(KindConflict, "order_already_paid", "order already paid")
	ErrOrderCancelled       = NewError(KindConflict, "order_cancelled", "order is cancelled")
	ErrOrderNumberTaken     = NewError(KindConflict, "order_number_taken", "order number already exists")
	ErrGuestEmailRequired   = NewError(KindValidation, "guest_email_required", "guest checkout requires an email")
)

// catalog and inventory
var (
	ErrProductNotFound   = NewError(KindNotFound, "product_not_found", "product not found")
	ErrVariantNotFound   = NewError(KindNotFound, "variant_not_found", "variant not found")
	ErrInsufficientStock = NewError(KindConflict, "insufficient_stock", "insufficient stock")
)

// coupons
var (
	ErrCouponInvalid       = NewError(KindValidation, "coupon_invalid", "coupon invalid")
	ErrCouponInactive      = NewError(KindValidation, "coupon_inactive", "coupon is not active")
	ErrCouponNotStarted    = NewError(KindValidation, "coupon_not_started", "coupon is not yet valid")
	ErrCouponExpired       = NewError(KindValidation, "coupon_expired", "coupon has expired")
	ErrCouponMinimumNotMet = NewError(KindValidation, "coupon_minimum_not_met", "minimum purchase not met")
	ErrCouponAlreadyUsed   = NewError(KindConflict, "coupon_already_used", "already used")
)

// payments
var (
	ErrInvalidSignature     = NewError(KindExternal, "invalid_signature", "invalid signature")
	ErrGatewayUnavailable   = NewError(KindExternal, "gateway_unavailable", "payment processor unavailable")
	ErrPaymentAttemptExists = NewError(KindConflict, "payment_attempt_exists", "payment attempt already recorded")
	ErrMalformedEvent       = NewError(KindValidation, "malformed_event", "malformed payment event")
)

// digital delivery; messages are returned verbatim to download clients
var (
	ErrGrantNotFound    = NewError(KindNotFound, "invalid_download_link", "Invalid download link")
	ErrGrantUnavailable = NewError(KindForbidden, "download_unavailable", "Download link expired or limit reached")
	ErrFileNotFound     = NewError(KindNotFound, "file_not_found", "File resource not found")
	ErrRateLimited      = NewError(KindRateLimited, "rate_limited", "Too many download attempts")
)

var (
	ErrUnauthenticated = NewError(KindUnauthenticated, "unauthenticated", "authentication required")
	ErrForbidden       = NewError(KindForbidden, "forbidden", "not allowed")
	ErrMoneyInvariant  = NewError(KindInternal, "money_invariant", "monetary invariant violated")
)
