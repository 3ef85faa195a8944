package paymob

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strconv"
	"strings"
)

// ComputeCallbackHMAC builds the HMAC-SHA512 digest of a transaction
// callback. The gateway concatenates these fields in this exact
// lexicographic order; booleans are rendered as "true"/"false".
func ComputeCallbackHMAC(tx TransactionCallback, secret string) string {
	fields := []string{
		strconv.FormatInt(tx.AmountCents, 10),
		tx.CreatedAt,
		tx.Currency,
		strconv.FormatBool(tx.ErrorOccured),
		strconv.FormatBool(tx.HasParentTransaction),
		strconv.FormatInt(tx.ID, 10),
		strconv.FormatInt(tx.IntegrationID, 10),
		strconv.FormatBool(tx.Is3DSecure),
		strconv.FormatBool(tx.IsAuth),
		strconv.FormatBool(tx.IsCapture),
		strconv.FormatBool(tx.IsRefunded),
		strconv.FormatBool(tx.IsStandalonePayment),
		strconv.FormatBool(tx.IsVoided),
		strconv.FormatInt(tx.Order.ID, 10),
		strconv.FormatInt(tx.Owner, 10),
		strconv.FormatBool(tx.Pending),
		tx.SourceData.Pan,
		tx.SourceData.SubType,
		tx.SourceData.Type,
		strconv.FormatBool(tx.Success),
	}

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(strings.Join(fields, "")))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyCallbackHMAC checks a received digest in constant time
func VerifyCallbackHMAC(tx TransactionCallback, secret, received string) bool {
	expected := ComputeCallbackHMAC(tx, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(received)))
}
