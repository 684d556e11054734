// SMS webhook handler.
//
// This file exposes the provider webhook:
//   - POST /register/sms   (form-encoded inbound message)
//
// The provider retries deliveries it considers failed, so anything the
// pipeline accepted (stored, buffered fragment, or replay) answers 200 with
// an empty TwiML document. Rejections answer with the JSON error envelope;
// the provider logs them and does not retry 4xx.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-travel-register/internal/http/middleware"
	"github.com/tbourn/go-travel-register/internal/services"
)

// InboundSMSForm is the subset of the provider webhook form the register uses.
type InboundSMSForm struct {
	AccountSid string `form:"AccountSid" example:"AC0123456789abcdef0123456789abcdef"`
	From       string `form:"From"       example:"+15550199"`
	To         string `form:"To"         example:"+15550100"`
	Body       string `form:"Body"       example:"12311242 # 42.123, -2.456 # 20 # 76 # Hello world !"`
	MessageSid string `form:"MessageSid" example:"SM0123456789abcdef0123456789abcdef"`
}

// ReceiveSMS godoc
// @ID          receiveSMS
// @Summary     Receive an inbound SMS
// @Description Provider webhook. Stores a register entry, buffers a fragment of a multi-part message, or acknowledges a retried delivery.
// @Tags        Register
// @Accept      x-www-form-urlencoded
// @Produce     xml
// @Produce     json
//
// @Param       AccountSid  formData  string  true   "Provider account id"
// @Param       From        formData  string  true   "Sender number"
// @Param       To          formData  string  true   "Destination number"
// @Param       Body        formData  string  true   "Message text"
// @Param       MessageSid  formData  string  false  "Provider message id"
//
// @Success     200  {string}  string                  "Empty TwiML response"
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed entry"
// @Failure     401  {object}  handlers.ErrorResponse  "Unknown account or number"
// @Failure     422  {object}  handlers.ErrorResponse  "Entry failed validation"
// @Failure     500  {object}  handlers.ErrorResponse  "Store failure"
// @Router      /register/sms [post]
func (h *Handlers) ReceiveSMS(c *gin.Context) {
	var form InboundSMSForm
	if err := c.ShouldBind(&form); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid form body")
		return
	}
	lg := middleware.LoggerFrom(c).With().
		Str("from", middleware.MaskPhone(form.From)).
		Str("message_sid", form.MessageSid).
		Logger()

	if middleware.IsReplay(c) {
		lg.Info().Msg("sms replay acknowledged")
		twiml(c)
		return
	}

	out, err := h.ingest.Submit(c.Request.Context(), services.InboundSMS{
		AccountSID: form.AccountSid,
		From:       form.From,
		To:         form.To,
		Body:       form.Body,
		MessageSID: form.MessageSid,
	})
	if err != nil {
		lg.Error().Err(err).Msg("sms store failure")
		fail(c, http.StatusInternalServerError, ErrCodeStoreFailed, "could not store the entry")
		return
	}

	switch {
	case out.Replayed:
		lg.Info().Str("entry_id", out.EntryID).Msg("sms replay acknowledged")
	case out.Stored:
		lg.Info().
			Str("entry_id", out.EntryID).
			Bool("created", out.Created).
			Strs("degraded", out.Degraded).
			Msg("sms stored")
	case out.Accepted:
		lg.Info().Msg("sms fragment buffered")
	default:
		lg.Warn().Str("reason", string(out.Reason)).Err(out.Err).Msg("sms rejected")
		failRejected(c, out)
		return
	}
	twiml(c)
}

// failRejected maps a rejected outcome to its status and code.
func failRejected(c *gin.Context, out services.Outcome) {
	msg := "rejected"
	if out.Err != nil {
		msg = out.Err.Error()
	}
	switch {
	case out.Reason == services.RejectAuth || errors.Is(out.Err, services.ErrAuthRejected):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "unknown account or destination")
	case out.Reason == services.RejectMalformed:
		fail(c, http.StatusBadRequest, ErrCodeMalformedEntry, msg)
	default:
		fail(c, http.StatusUnprocessableEntity, ErrCodeValidationFailed, msg)
	}
}
