package verify

// Buyer- and admin-facing reply text. Kept in one place so tests and
// handlers agree on the exact wording.
const (
	MsgVerifyUsage   = "Usage: /verify <TOKEN>"
	MsgInvalidToken  = "❌ Invalid token"
	MsgTokenConflict = "❌ This token is already bound to another buyer"
	MsgAskReference  = "📤 Please provide your payment transaction reference:"
	MsgReferenceOK   = "✅ Transaction reference received. Admin will verify shortly."
	MsgGenericError  = "❌ Something went wrong. Please try again later."

	MsgApproveUsage = "Usage: /verify_transaction <token> <txid>"
)
