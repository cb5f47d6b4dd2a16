package clients

import "errors"

var (
	// ErrTransactionNotFound is returned when the provider does not know the hash.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrReceiptNotFound is returned while a transaction has not been mined.
	ErrReceiptNotFound = errors.New("transaction receipt not found")
)

// IsNotFound reports whether err means the transaction or its receipt does
// not exist yet, as opposed to the provider failing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTransactionNotFound) || errors.Is(err, ErrReceiptNotFound)
}
