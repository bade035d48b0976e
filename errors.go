package goboreal

import (
	"errors"
	"fmt"
)

// ErrorClass is the DBAPI-style category a raised condition belongs to. It is
// carried on every BorealError so callers can match programmatically without
// string comparison.
type ErrorClass int

const (
	// ClassOperational covers transport and server-side operational failures.
	ClassOperational ErrorClass = iota
	// ClassProgramming covers malformed calls: bad bind types, bad fetch
	// sizes, statement-shape rewrite failures.
	ClassProgramming
	// ClassInterface covers client-side contract violations: closed cursor,
	// bulk bind size mismatch.
	ClassInterface
	// ClassData covers values outside the host-representable range and other
	// decode-time data failures.
	ClassData
	// ClassNotSupported covers absent capabilities: scroll, missing columnar
	// decoder, excluded client category.
	ClassNotSupported
	// ClassIntegrity covers server-enforced constraint violations.
	ClassIntegrity
)

func (c ErrorClass) String() string {
	return [...]string{"OperationalError", "ProgrammingError", "InterfaceError",
		"DataError", "NotSupportedError", "IntegrityError"}[c]
}

// BorealError is an error type including various Boreal specific information.
type BorealError struct {
	Number         int
	Class          ErrorClass
	SQLState       string
	QueryID        string
	Message        string
	MessageArgs    []interface{}
	IncludeQueryID bool
}

func (be *BorealError) Error() string {
	message := be.Message
	if len(be.MessageArgs) > 0 {
		message = fmt.Sprintf(be.Message, be.MessageArgs...)
	}
	if be.IncludeQueryID {
		return fmt.Sprintf("%06d (%s): %s: %s", be.Number, be.SQLState, be.QueryID, message)
	}
	return fmt.Sprintf("%06d (%s): %s", be.Number, be.SQLState, message)
}

// errorClassOf reports the class of err, or ClassOperational when err is not
// a BorealError.
func errorClassOf(err error) ErrorClass {
	var be *BorealError
	if errors.As(err, &be) {
		return be.Class
	}
	return ClassOperational
}

// IsProgrammingError reports whether err is a Programming-class condition.
func IsProgrammingError(err error) bool { return errorClassOf(err) == ClassProgramming }

// IsInterfaceError reports whether err is an Interface-class condition.
func IsInterfaceError(err error) bool { return errorClassOf(err) == ClassInterface }

// IsDataError reports whether err is a Data-class condition.
func IsDataError(err error) bool { return errorClassOf(err) == ClassData }

// IsNotSupportedError reports whether err is a NotSupported-class condition.
func IsNotSupportedError(err error) bool { return errorClassOf(err) == ClassNotSupported }

// IsIntegrityError reports whether err is an Integrity-class condition.
func IsIntegrityError(err error) bool { return errorClassOf(err) == ClassIntegrity }

// ErrorNumber extracts the stable error code from err, or -1 when err carries
// none.
func ErrorNumber(err error) int {
	var be *BorealError
	if errors.As(err, &be) {
		return be.Number
	}
	return -1
}

const (
	/* SQLState */

	// SQLStateConnectionFailure is a connection failure on statement execution
	SQLStateConnectionFailure = "08006"
	// SQLStateNumericValueOutOfRange is a numeric value out of range
	SQLStateNumericValueOutOfRange = "22003"
	// SQLStateInvalidDataTimeFormat is an invalid data time format
	SQLStateInvalidDataTimeFormat = "22007"
	// SQLStateIntegrityConstraint is an integrity constraint violation
	SQLStateIntegrityConstraint = "23000"
	// SQLStateFeatureNotSupported is a feature not supported
	SQLStateFeatureNotSupported = "0A000"
)

const (
	/* cursor */

	// ErrCursorClosed is an error code for the case where an operation is run on a closed cursor.
	ErrCursorClosed = 252001
	// ErrNotPositiveSize is an error code for the case where fetchmany is called with a non-positive size.
	ErrNotPositiveSize = 252002
	// ErrFailedToRewriteMultiRowInsert is an error code for the case where a statement cannot be rewritten into a multi-row insert.
	ErrFailedToRewriteMultiRowInsert = 252003
	// ErrBulkDataSizeMismatch is an error code for the case where bulk parameter sets have mismatched arity.
	ErrBulkDataSizeMismatch = 252004
	// ErrNoResultSet is an error code for the case where rows are fetched before any statement was executed.
	ErrNoResultSet = 252005
	// ErrUnsupportedBindType is an error code for the case where a bind value has an unbindable host type.
	ErrUnsupportedBindType = 252006
	// ErrBindArityMismatch is an error code for the case where the number of bind values does not match the placeholders.
	ErrBindArityMismatch = 252007

	/* capability */

	// ErrNonColumnarResult is an error code for the case where the statement result is not in columnar form.
	ErrNonColumnarResult = 255001
	// ErrNoColumnarDecoder is an error code for the case where the columnar decoder is not compiled into the binary.
	ErrNoColumnarDecoder = 255002
	// ErrNoColumnarClient is an error code for the case where the client category is excluded from columnar results.
	ErrNoColumnarClient = 255003
	// ErrScrollNotSupported is an error code for the case where cursor scrolling is requested.
	ErrScrollNotSupported = 255004

	/* query status */

	// ErrQueryStatus is an error code for the case where the server could not report a query status.
	ErrQueryStatus = 254001
	// ErrQueryReportedError is an error code for the case where the polled query terminated with an error.
	ErrQueryReportedError = 254002
	// ErrQueryIsRunning is an error code for the case where the polled query is still running.
	ErrQueryIsRunning = 254003
	// ErrPollBudgetExceeded is an error code for the case where the status poll retry budget ran out.
	ErrPollBudgetExceeded = 254004

	/* connection */

	// ErrInvalidConn is an error code for the case where a connection is not available or in an invalid state.
	ErrInvalidConn = 260000

	/* decode */

	// ErrInvalidTimestampTz is an error code for the case where a returned TIMESTAMP_TZ internal value is invalid.
	ErrInvalidTimestampTz = 261001
	// ErrInvalidBinaryHexForm is an error code for the case where a returned BINARY value is not valid hex text.
	ErrInvalidBinaryHexForm = 261002
	// ErrValueOutOfRange is an error code for the case where a value does not fit the host representation.
	ErrValueOutOfRange = 261003
	// ErrInvalidVector is an error code for the case where a VECTOR value is not a valid numeric sequence.
	ErrInvalidVector = 261004

	/* chunk */

	// ErrFailedToGetChunk is an error code for the case where a remote result batch could not be downloaded.
	ErrFailedToGetChunk = 262001
)

const (
	errMsgCursorClosed                  = "cursor is closed"
	errMsgNotPositiveSize               = "the number of rows is not zero or negative number: %v"
	errMsgFailedToRewriteMultiRowInsert = "failed to rewrite multi-row insert"
	errMsgBulkDataSizeMismatch          = "bulk data size mismatch. expected: %v, got: %v"
	errMsgNoResultSet                   = "no result set available to fetch from"
	errMsgUnsupportedBindType           = "unsupported bind parameter type: %T"
	errMsgBindArityMismatch             = "bind parameter count mismatch. placeholders: %v, values: %v"
	errMsgNonColumnarResult             = "the result set is not in columnar format"
	errMsgNoColumnarDecoder             = "columnar decoder is not available in this build"
	errMsgNoColumnarClient              = "client category %v does not support columnar results"
	errMsgScrollNotSupported            = "scroll is not supported"
	errMsgQueryStatus                   = "server could not report the query status. code: %v, message: %v"
	errMsgQueryReportedError            = "the query terminated with an error. code: %v, message: %v"
	errMsgQueryIsRunning                = "the query is still running"
	errMsgPollBudgetExceeded            = "query status poll budget of %v attempts exceeded"
	errMsgFailedToGetChunk              = "failed to get the result batch %v"
)

var (
	// preformatted errors

	// errInvalidConn is returned if a connection is not available or in invalid state.
	errInvalidConn = &BorealError{
		Number:  ErrInvalidConn,
		Class:   ClassInterface,
		Message: "invalid connection",
	}
)

// classifyServerError attaches an ErrorClass to a server-reported failure
// based on its SQLState. Constraint violations (class 23) become Integrity
// errors, data exceptions (class 22) become Data errors, everything else is
// Operational.
func classifyServerError(sqlState string) ErrorClass {
	if len(sqlState) >= 2 {
		switch sqlState[:2] {
		case "23":
			return ClassIntegrity
		case "22":
			return ClassData
		}
	}
	return ClassOperational
}
