package api

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"

	"cipherpaste/cfg"
	"cipherpaste/pkg/domain"
	"cipherpaste/svc/svc"
	"cipherpaste/svc/util"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
)

type Hdl struct {
	paste *svc.Paste
	cfg   *cfg.Cfg
}

// CreateReq mirrors the CLI flags. Public defaults to true when omitted.
type CreateReq struct {
	Content   string `json:"content"`
	Public    *bool  `json:"public,omitempty"`
	Password  string `json:"password,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
	Syntax    string `json:"syntax,omitempty"`
	Publish   bool   `json:"publish,omitempty"`
}
type CreateResp struct {
	URL          string `json:"url"`
	ID           string `json:"id,omitempty"`
	ShareURL     string `json:"share_url,omitempty"`
	Transport    string `json:"transport"`
	PublishError string `json:"publish_error,omitempty"`
}
type DecodeReq struct {
	Transport string `json:"transport"`
	Password  string `json:"password,omitempty"`
}
type PasteResp struct {
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at"`
	IsPublic  bool   `json:"is_public"`
	Syntax    string `json:"syntax"`
	Expired   bool   `json:"expired"`
}

func (h *Hdl) CreatePaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	var req CreateReq
	if !h.decodeJSON(w, r, &req) {
		return
	}
	public := true
	if req.Public != nil {
		public = *req.Public
	}
	out, err := h.paste.Create(r.Context(), domain.CreateParams{
		Content:   req.Content,
		Public:    public,
		Password:  req.Password,
		ExpiresAt: req.ExpiresAt,
		Syntax:    req.Syntax,
		Publish:   req.Publish,
	})
	if err != nil {
		log.Warn().Err(err).Str("request_id", requestID).Msg("create failed")
		writeErr(w, err, requestID)
		return
	}
	resp := CreateResp{
		URL:       out.URL,
		ID:        out.ID,
		ShareURL:  out.ShareURL,
		Transport: out.Transport,
	}
	if out.PublishErr != nil {
		resp.PublishError = domain.Code(out.PublishErr)
	}
	log.Info().
		Str("paste_id", out.ID).
		Bool("public", out.Paste.IsPublic).
		Bool("published", out.ShareURL != "").
		Msg("paste created")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}
func (h *Hdl) GetPaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	id := chi.URLParam(r, "id")
	if !util.ValidID(id) {
		writeErr(w, domain.ErrPasteNotFound, requestID)
		return
	}
	opened, err := h.paste.Open(r.Context(), id, r.Header.Get("X-Paste-Password"))
	if err != nil {
		log.Warn().
			Err(err).
			Str("paste_id", id).
			Str("client_ip", util.RedactIP(r.RemoteAddr)).
			Msg("open failed")
		writeErr(w, err, requestID)
		return
	}
	log.Info().Str("paste_id", id).Bool("expired", opened.Expired).Msg("paste opened")
	json.NewEncoder(w).Encode(toPasteResp(opened))
}

// GetRaw serves the stored transport string without verifying it.
func (h *Hdl) GetRaw(w http.ResponseWriter, r *http.Request) {
	requestID := util.GetRequestID(r.Context())
	id := chi.URLParam(r, "id")
	if !util.ValidID(id) {
		writeErr(w, domain.ErrPasteNotFound, requestID)
		return
	}
	transport, err := h.paste.Raw(r.Context(), id)
	if err != nil {
		writeErr(w, err, requestID)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, transport)
}
func (h *Hdl) Decode(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	var req DecodeReq
	if !h.decodeJSON(w, r, &req) {
		return
	}
	opened, err := h.paste.Decode(r.Context(), req.Transport, req.Password)
	if err != nil {
		log.Warn().Err(err).Str("request_id", requestID).Msg("decode failed")
		writeErr(w, err, requestID)
		return
	}
	json.NewEncoder(w).Encode(toPasteResp(opened))
}

func (h *Hdl) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "application/json" {
		log.Warn().Str("content_type", contentType).Msg("invalid Content-Type header")
		w.WriteHeader(http.StatusUnsupportedMediaType)
		json.NewEncoder(w).Encode(errResp{
			Error:     "expected Content-Type: application/json",
			Code:      domain.ErrInvalidRequest.Code,
			RequestID: requestID,
		})
		return false
	}
	if ce := r.Header.Get("Content-Encoding"); ce != "" {
		log.Warn().Str("content_encoding", ce).Msg("compressed content not allowed")
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return false
	}
	// base64 and JSON escaping can roughly double the encoded size
	limit := h.cfg.MaxPasteSize*2 + 4096
	if r.ContentLength > limit {
		writeErr(w, domain.ErrPasteTooLarge, requestID)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeErr(w, domain.ErrPasteTooLarge, requestID)
			return false
		}
		if err == io.EOF {
			log.Warn().Msg("empty request body")
		} else {
			log.Warn().Err(err).Msg("invalid request")
		}
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return false
	}
	return true
}

func toPasteResp(o *svc.Opened) PasteResp {
	return PasteResp{
		Content:   o.Plaintext,
		CreatedAt: o.Paste.CreatedAt,
		ExpiresAt: o.Paste.ExpiresAt,
		IsPublic:  o.Paste.IsPublic,
		Syntax:    o.Paste.Syntax,
		Expired:   o.Expired,
	}
}

func writeErr(w http.ResponseWriter, err error, requestID string) {
	statusCode := domain.Status(err)
	resp := domain.ToResp(err)
	if statusCode >= 500 {
		util.Error().
			Err(err).
			Str("request_id", requestID).
			Msg("internal error with detailed info")
	}
	if statusCode == http.StatusInternalServerError {
		resp.Error.Msg = "internal server error"
	}
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(errResp{
		Error:     resp.Error.Msg,
		Code:      resp.Error.Code,
		RequestID: requestID,
	})
}

type errResp struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}
