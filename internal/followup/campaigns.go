// Package followup runs scheduled nudge campaigns for users that go silent
// mid-funnel. Campaigns execute on a bounded worker pool and re-validate
// cancellation and persisted state before every send.
package followup

import (
	"time"

	"github.com/AtividadeNgk/MaryCall/internal/models"
)

// Kind identifies a follow-up campaign family. At most one campaign per
// (user, kind) is active at any instant.
type Kind string

const (
	// KindPayment nudges a user who has not answered the payment question.
	KindPayment Kind = "payment"
	// KindProof nudges a user who has not sent the payment proof.
	KindProof Kind = "proof"
)

// Step is one scheduled nudge: wait Delay, then send Message.
type Step struct {
	Delay   time.Duration
	Message string
}

// FallbackMessage is sent for any step that carries no scripted text.
const FallbackMessage = "amor me responde por favor"

var paymentSteps = []Step{
	{2 * time.Minute, "amor ta ai? 😅"},
	{5 * time.Minute, "oi mozao"},
	{10 * time.Minute, "amor vc sumiu"},
	{15 * time.Minute, "amooooooor cade vc?"},
	{20 * time.Minute, "vai me deixar falando so? 😩"},
	{30 * time.Minute, "aff serio isso"},
	{45 * time.Minute, "achei q tinha gostado de mim, fui tola"},
	{60 * time.Minute, "serio nao vou mandar mensagem mais n"},
	{75 * time.Minute, "ok ja entendi q nao quer fala cmg"},
}

var proofSteps = []Step{
	{2 * time.Minute, "amor conseguiu fazer o pix?"},
	{4 * time.Minute, "vai me deixar no vacuo? to aq toda molhada aff"},
	{6 * time.Minute, "amooor cade o comprovante vey"},
	{8 * time.Minute, "mds do ceu q demora é essa amor kk"},
	{10 * time.Minute, "poxa vida hein, vai me deixar toda molhada?"},
	{15 * time.Minute, "ta me fazendo de boba é? 😒"},
	{20 * time.Minute, "aff amor, vou ligar pra outro desse jeito, achei q vc ia apagar meu fogoo"},
	{25 * time.Minute, "sumiu hein? achei q vc queria me ver peladinha"},
	{30 * time.Minute, "aff desisto, se for querer ainda so mandar o comprovante bjos"},
}

// Steps returns the fixed step sequence for a kind.
func Steps(kind Kind) []Step {
	switch kind {
	case KindPayment:
		return paymentSteps
	case KindProof:
		return proofSteps
	default:
		return nil
	}
}

// ExpectedState returns the persisted funnel state a campaign of this kind
// requires; a mismatch at any checkpoint terminates the run without sending.
func ExpectedState(kind Kind) string {
	switch kind {
	case KindPayment:
		return models.StateAwaitingPaymentResponse
	case KindProof:
		return models.StateAwaitingPaymentProof
	default:
		return ""
	}
}
