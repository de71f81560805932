package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rhyniox/voicerelay/internal/admission"
	"github.com/rhyniox/voicerelay/internal/completion"
	"github.com/rhyniox/voicerelay/internal/metrics"
	"github.com/rhyniox/voicerelay/internal/prompts"
	"github.com/rhyniox/voicerelay/internal/relay"
	"github.com/rhyniox/voicerelay/internal/sanitize"
	"github.com/rhyniox/voicerelay/internal/speech"
)

// Caller-visible replies. Every /ask outcome is a plain sentence a
// speech synthesizer can read; upstream error detail never leaves the
// log.
const (
	replyRateLimited = "You have sent too many requests. Please wait a minute before trying again."
	replyCooldown    = "Hold on! Please wait a few seconds before asking again."
	replyNoText      = "No text provided"
	replyTooLong     = "That's a bit long! Try using record mode for longer questions."
	replyMissingKey  = "Server configuration error: API key missing"
	replyUpstream    = "Sorry, I'm having trouble thinking right now. Please try again in a moment."
	replyInternal    = "Sorry, something went wrong on my end."
)

// handleAsk runs the full admission and conversation pipeline:
// throttle, validate, prompt, complete, post-process, log, reply.
// Cheap rejections happen strictly before expensive work.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.With("request_id", uuid.NewString())

	// A panic anywhere below must not take the process down or leak a
	// stack trace to the caller.
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("ask handler panicked", "panic", rec)
			s.writeReply(w, http.StatusInternalServerError, replyInternal, logger)
		}
	}()

	var req relay.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Debug("bad request body", "error", err)
		s.writeReply(w, http.StatusBadRequest, replyNoText, logger)
		return
	}

	identity := clientIdentity(r)
	switch s.gates.Check(identity) {
	case admission.RejectedRate:
		logger.Info("rate limited", "identity", identity)
		metrics.Rejections.WithLabelValues("rate").Inc()
		s.writeReply(w, http.StatusTooManyRequests, replyRateLimited, logger)
		return
	case admission.RejectedCooldown:
		logger.Info("cooldown rejection", "identity", identity)
		metrics.Rejections.WithLabelValues("cooldown").Inc()
		s.writeReply(w, http.StatusTooManyRequests, replyCooldown, logger)
		return
	}

	if req.Text == "" {
		metrics.Rejections.WithLabelValues("invalid").Inc()
		s.writeReply(w, http.StatusBadRequest, replyNoText, logger)
		return
	}

	result := s.validator.Validate(req.Text)
	if !result.OK {
		logger.Debug("input rejected", "reason", result.Reason)
		metrics.Rejections.WithLabelValues("invalid").Inc()
		s.writeReply(w, http.StatusBadRequest, result.Reason, logger)
		return
	}

	mode := relay.ParseMode(req.Mode)
	if mode == relay.ModeLive {
		if n := len(sanitize.Words(result.Cleaned)); n > s.limits.LiveWordCap {
			logger.Debug("live input over word cap", "words", n, "cap", s.limits.LiveWordCap)
			metrics.Rejections.WithLabelValues("too_long").Inc()
			s.writeReply(w, http.StatusBadRequest, replyTooLong, logger)
			return
		}
	}

	system := prompts.System(req.UserName, mode)

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	start := time.Now()
	raw, err := s.completer.Ask(ctx, system, result.Cleaned)
	metrics.CompletionLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		switch {
		case errors.Is(err, completion.ErrMissingKey):
			logger.Error("completion credential missing")
			s.writeReply(w, http.StatusInternalServerError, replyMissingKey, logger)
		case errors.Is(err, completion.ErrEmptyCompletion):
			logger.Error("completion payload unusable", "error", err)
			s.writeReply(w, http.StatusInternalServerError, replyUpstream, logger)
		default:
			logger.Error("completion failed", "error", err)
			s.writeReply(w, http.StatusBadGateway, replyUpstream, logger)
		}
		return
	}

	reply := speech.Speakable(raw)

	s.log.Append(result.Cleaned, reply)
	metrics.HistoryEntries.Set(float64(s.log.Len()))
	logger.Debug("exchange logged", "history_len", s.log.Len())

	// Brief randomized pause before answering. Replies that land the
	// instant speech recognition ends feel abrupt in a voice UI.
	s.smoothingDelay(r)

	s.writeReply(w, http.StatusOK, reply, logger)
}

// smoothingDelay sleeps for a bounded random interval, aborting early
// if the client goes away.
func (s *Server) smoothingDelay(r *http.Request) {
	lo, hi := s.limits.ReplyDelayMinMS, s.limits.ReplyDelayMaxMS
	if hi <= 0 || hi < lo {
		return
	}
	d := time.Duration(lo+rand.IntN(hi-lo+1)) * time.Millisecond

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-r.Context().Done():
	}
}

// writeReply sends the uniform {reply} body with the given status.
func (s *Server) writeReply(w http.ResponseWriter, status int, reply string, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeJSON(w, relay.AskResponse{Reply: reply}, logger)
}

// clientIdentity derives the throttle key for a request. The remote IP
// is stable enough per connection; it is not an authenticated account.
func clientIdentity(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
