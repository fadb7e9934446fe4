// Package models defines state identifiers for the conversational funnel.
package models

// Funnel states persisted per user. StateNormal is both the initial state
// and what an expired record reads back as.
const (
	StateNormal                  = "normal"
	StateSendingInitialContent   = "sending_initial_content"
	StateCanReceiveFirst         = "can_receive_first"
	StateAwaitingCallAnswer      = "awaiting_call_answer"
	StateSendingCallContent      = "sending_call_content"
	StateWaitingForCall          = "waiting_for_call"
	StateAwaitingPaymentResponse = "awaiting_payment_response"
	StateAwaitingPaymentProof    = "awaiting_payment_proof"
	StateSequenceCompleted       = "sequence_completed"
)
