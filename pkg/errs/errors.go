package errs

import (
	"errors"
	"net/http"
)

const (
	ErrStatusInternalServer      = http.StatusInternalServerError
	ErrStatusClient              = http.StatusBadRequest
	ErrStatusUnauthorized        = http.StatusUnauthorized
	ErrStatusNotFound            = http.StatusNotFound
	ErrStatusConflict            = http.StatusConflict
	ErrStatusUnprocessableEntity = http.StatusUnprocessableEntity
	ErrStatusPaymentRequired     = http.StatusPaymentRequired
	ErrStatusBadGateway          = http.StatusBadGateway
	ErrStatusServiceUnavailable  = http.StatusServiceUnavailable
	ErrStatusGone                = http.StatusGone
)

var (
	ErrInternalServer = errors.New("Internal server error")
	ErrClient         = errors.New("Bad request")
	ErrNotLoggedIn    = errors.New("Unauthorized access")
	ErrNotFound       = errors.New("Resource not found")

	ErrOrderNotLoaded  = errors.New("Order has not been loaded yet")
	ErrAddressRequired = errors.New("A delivery address must be selected")
	ErrEmptyOrder      = errors.New("Order has no items")
	ErrDiscountDirty   = errors.New("Point amount has changed and must be applied or cancelled before payment")
	ErrDiscountInvalid = errors.New("Applied discount is no longer valid for this order")
	ErrNothingToPay    = errors.New("Payable amount is zero")
	ErrInvalidSignal   = errors.New("Unknown session signal")

	ErrMutationInFlight = errors.New("Another discount change is still being processed")
	ErrVersionConflict  = errors.New("Checkout was modified by another request")
	ErrSessionClosed    = errors.New("Checkout session has been closed")

	ErrCouponNotUsable     = errors.New("Coupon cannot be used for this order")
	ErrCouponNotApplicable = errors.New("Coupon is not applicable to this order")
	ErrNoCouponApplied     = errors.New("No coupon is applied to this order")

	ErrUpstream            = errors.New("Upstream service is unavailable, please try again")
	ErrGatewayUnavailable  = errors.New("Payment gateway is unavailable")
	ErrGatewayRejected     = errors.New("Payment gateway rejected the payment")
	ErrPaymentNotVerified  = errors.New("Payment could not be verified")
	ErrCompletionFailed    = errors.New("Payment was verified but the order could not be completed")
	ErrStaleCallback       = errors.New("Payment callback does not belong to the current attempt")
	ErrInvalidSignature    = errors.New("Payment notification signature is invalid")
	ErrPaymentStateInvalid = errors.New("Payment attempt is not in a state that allows this operation")
)

var errorMap = map[error]int{
	ErrInternalServer: ErrStatusInternalServer,
	ErrClient:         ErrStatusClient,
	ErrNotLoggedIn:    ErrStatusUnauthorized,
	ErrNotFound:       ErrStatusNotFound,

	ErrOrderNotLoaded:  ErrStatusConflict,
	ErrAddressRequired: ErrStatusUnprocessableEntity,
	ErrEmptyOrder:      ErrStatusUnprocessableEntity,
	ErrDiscountDirty:   ErrStatusConflict,
	ErrDiscountInvalid: ErrStatusConflict,
	ErrNothingToPay:    ErrStatusUnprocessableEntity,
	ErrInvalidSignal:   ErrStatusClient,

	ErrMutationInFlight: ErrStatusConflict,
	ErrVersionConflict:  ErrStatusConflict,
	ErrSessionClosed:    ErrStatusGone,

	ErrCouponNotUsable:     ErrStatusUnprocessableEntity,
	ErrCouponNotApplicable: ErrStatusUnprocessableEntity,
	ErrNoCouponApplied:     ErrStatusConflict,

	ErrUpstream:            ErrStatusBadGateway,
	ErrGatewayUnavailable:  ErrStatusServiceUnavailable,
	ErrGatewayRejected:     ErrStatusBadGateway,
	ErrPaymentNotVerified:  ErrStatusPaymentRequired,
	ErrCompletionFailed:    ErrStatusBadGateway,
	ErrStaleCallback:       ErrStatusConflict,
	ErrInvalidSignature:    ErrStatusUnauthorized,
	ErrPaymentStateInvalid: ErrStatusConflict,
}

// BusinessError is a rejection whose reason comes from the collaborator
// that rejected the request. Reason is shown to the buyer verbatim.
type BusinessError struct {
	Kind   error
	Reason string
}

func NewBusinessError(kind error, reason string) *BusinessError {
	return &BusinessError{Kind: kind, Reason: reason}
}

func (e *BusinessError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return e.Kind.Error()
}

func (e *BusinessError) Unwrap() error {
	return e.Kind
}

func GetErrorStatusCode(err error) int {
	for known, code := range errorMap {
		if errors.Is(err, known) {
			return code
		}
	}

	return errorMap[ErrInternalServer]
}

// PublicMessage returns the text that may be shown to the buyer. Errors that
// are not part of the catalogue above are reported as a generic failure.
func PublicMessage(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Error()
	}

	for known := range errorMap {
		if errors.Is(err, known) {
			return known.Error()
		}
	}

	return ErrInternalServer.Error()
}
