package sierratest

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

// ============================================================================
// Token
// ============================================================================

// handleToken serves POST /token with the client credentials grant.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.tokenRequests++
	override := s.tokenOverride
	expiresIn := s.expiresIn
	s.mu.Unlock()

	if override != nil {
		override.write(w)
		return
	}

	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		writeJSON(w, http.StatusBadRequest, oauthError{Error: "invalid_request", ErrorDescription: "unsupported content type"})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, oauthError{Error: "invalid_request", ErrorDescription: "malformed form body"})
		return
	}
	if r.PostForm.Get("grant_type") != "client_credentials" {
		writeJSON(w, http.StatusBadRequest, oauthError{Error: "unsupported_grant_type"})
		return
	}

	clientID, secret, ok := r.BasicAuth()
	if !ok || clientID != s.clientID || verifySecret(secret, s.secretHash) != nil {
		w.Header().Set("WWW-Authenticate", `Basic realm="sierra"`)
		writeJSON(w, http.StatusUnauthorized, oauthError{Error: "invalid_client"})
		return
	}

	token, jti, err := s.signer.issue(clientID, lifetime(expiresIn), s.now())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, oauthError{Error: "server_error"})
		return
	}

	s.mu.Lock()
	s.issued = append(s.issued, token)
	s.mu.Unlock()

	s.logger.Debug("sierratest token issued", "client_id", clientID, "jti", jti)
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"expires_in":   expiresIn,
	})
}

// ============================================================================
// Bibs
// ============================================================================

func (s *Server) handleGetBib(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	rec, ok := s.bibs[id]
	rec = cloneRecord(rec)
	s.mu.Unlock()

	if !ok {
		errRecordNotFound.write(w)
		return
	}
	writeJSON(w, http.StatusOK, selectFields(rec, r.URL.Query().Get("fields")))
}

var marcTypes = []string{"application/marc-json", "application/marc-xml", "application/marc-in-json"}

func (s *Server) handleGetBibMARC(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	accept := r.Header.Get("Accept")
	if !slices.Contains(marcTypes, accept) {
		w.WriteHeader(http.StatusNotAcceptable)
		return
	}

	s.mu.Lock()
	marc, ok := s.marc[id]
	s.mu.Unlock()

	if !ok {
		errRecordNotFound.write(w)
		return
	}

	w.Header().Set("Content-Type", accept)
	w.WriteHeader(http.StatusOK)
	if accept == "application/marc-xml" {
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><collection><record><controlfield tag="001">`+id+`</controlfield></record></collection>`)
		return
	}
	_ = json.NewEncoder(w).Encode(marc)
}

func (s *Server) handlePutBib(w http.ResponseWriter, r *http.Request) {
	s.handlePut(w, r, s.bibs)
}

// ============================================================================
// Items
// ============================================================================

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	rec, ok := s.items[id]
	rec = cloneRecord(rec)
	s.mu.Unlock()

	if !ok {
		errRecordNotFound.write(w)
		return
	}
	writeJSON(w, http.StatusOK, selectFields(rec, r.URL.Query().Get("fields")))
}

func (s *Server) handlePutItem(w http.ResponseWriter, r *http.Request) {
	s.handlePut(w, r, s.items)
}

// handleListItems serves GET /items/ with the id, bibIds, limit and offset
// filters. Other filters are accepted and ignored.
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := intParam(q.Get("limit"), 50)
	if err != nil {
		errInvalidParam.withDescription("limit").write(w)
		return
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil {
		errInvalidParam.withDescription("offset").write(w)
		return
	}

	ids := splitList(q.Get("id"))
	bibIDs := splitList(q.Get("bibIds"))

	s.mu.Lock()
	keys := make([]string, 0, len(s.items))
	for id := range s.items {
		keys = append(keys, id)
	}
	slices.Sort(keys)

	matched := make([]map[string]any, 0, len(keys))
	for _, id := range keys {
		rec := s.items[id]
		if len(ids) > 0 && !slices.Contains(ids, id) {
			continue
		}
		if len(bibIDs) > 0 && !hasAny(rec["bibIds"], bibIDs) {
			continue
		}
		matched = append(matched, selectFields(cloneRecord(rec), q.Get("fields")))
	}
	s.mu.Unlock()

	total := len(matched)
	start := min(offset, total)
	end := min(start+limit, total)

	writeJSON(w, http.StatusOK, map[string]any{
		"total":   total,
		"start":   start,
		"entries": matched[start:end],
	})
}

// ============================================================================
// Helpers
// ============================================================================

// handlePut merges a JSON object body into a stored record and answers 204,
// the way Sierra acknowledges updates.
func (s *Server) handlePut(w http.ResponseWriter, r *http.Request, records map[string]map[string]any) {
	id := mux.Vars(r)["id"]

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	body, err := io.ReadAll(r.Body)
	if err != nil {
		errInvalidJSON.write(w)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := records[id]
	if !ok {
		errRecordNotFound.write(w)
		return
	}

	if mediaType == "application/json" {
		var patch map[string]any
		if err := json.Unmarshal(body, &patch); err != nil {
			errInvalidJSON.withDescription(err.Error()).write(w)
			return
		}
		for k, v := range patch {
			if k != "id" {
				rec[k] = v
			}
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func selectFields(rec map[string]any, fields string) map[string]any {
	want := splitList(fields)
	if len(want) == 0 {
		return rec
	}
	out := map[string]any{"id": rec["id"]}
	for _, f := range want {
		if v, ok := rec[f]; ok {
			out[f] = v
		}
	}
	return out
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func hasAny(field any, want []string) bool {
	switch v := field.(type) {
	case []string:
		for _, s := range v {
			if slices.Contains(want, s) {
				return true
			}
		}
	case []any:
		for _, s := range v {
			if str, ok := s.(string); ok && slices.Contains(want, str) {
				return true
			}
		}
	}
	return false
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

// lifetime converts an expires_in value into the bearer token lifetime.
// Values that are not numbers give a zero lifetime.
func lifetime(expiresIn any) time.Duration {
	switch v := expiresIn.(type) {
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return 0
}
