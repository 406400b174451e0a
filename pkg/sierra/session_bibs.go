package sierra

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Bib operations - GET/PUT on /bibs

// DefaultBibFields are requested by GetBib when no fields are given.
var DefaultBibFields = []string{"id", "createdDate", "normTitle"}

// MARCFormat is the media type a MARC record is returned in.
type MARCFormat string

const (
	MARCJSON   MARCFormat = "application/marc-json"
	MARCXML    MARCFormat = "application/marc-xml"
	MARCInJSON MARCFormat = "application/marc-in-json"
)

// UpdateOptions negotiates the media types of an update call. Empty fields
// default to application/json.
type UpdateOptions struct {
	ContentType string
	Accept      string
}

func (o *UpdateOptions) header() http.Header {
	h := http.Header{
		"Content-Type": {"application/json"},
		"Accept":       {"application/json"},
	}
	if o == nil {
		return h
	}
	if o.ContentType != "" {
		h.Set("Content-Type", o.ContentType)
	}
	if o.Accept != "" {
		h.Set("Accept", o.Accept)
	}
	return h
}

// ============================================================================
// Single bib
// ============================================================================

// GetBib retrieves fields of a bib record (GET /bibs/{id}). Without fields,
// DefaultBibFields are requested.
func (s *Session) GetBib(ctx context.Context, sid any, fields ...string) (*Response, error) {
	id, err := ParseSierraNumber(sid)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	if value, ok := JoinKeywords(fields); ok {
		query.Set("fields", value)
	} else if value, ok := JoinKeywords(DefaultBibFields); ok {
		query.Set("fields", value)
	}

	header := http.Header{"Accept": {"application/json"}}
	return s.do(ctx, http.MethodGet, s.bibEndpoint(id), query, header, nil)
}

// GetBibMARC retrieves a bib as MARC (GET /bibs/{id}/marc). An empty format
// asks for MARCJSON.
func (s *Session) GetBibMARC(ctx context.Context, sid any, format MARCFormat) (*Response, error) {
	id, err := ParseSierraNumber(sid)
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = MARCJSON
	}

	header := http.Header{"Accept": {string(format)}}
	return s.do(ctx, http.MethodGet, s.bibMARCEndpoint(id), nil, header, nil)
}

// UpdateBib replaces bib data (PUT /bibs/{id}). data is a map sent as JSON,
// or a string or []byte sent verbatim with the negotiated content type.
func (s *Session) UpdateBib(ctx context.Context, sid any, data any, opts *UpdateOptions) (*Response, error) {
	body, err := encodeBody(data, true)
	if err != nil {
		return nil, err
	}

	id, err := ParseSierraNumber(sid)
	if err != nil {
		return nil, err
	}

	return s.do(ctx, http.MethodPut, s.bibEndpoint(id), nil, opts.header(), body)
}

// ============================================================================
// Not implemented
// ============================================================================

func notImplemented(method, endpoint string) error {
	return fmt.Errorf("%w: %s %s", ErrNotImplemented, method, endpoint)
}

// CreateBib is POST /bibs/.
func (s *Session) CreateBib(ctx context.Context) (*Response, error) {
	return nil, notImplemented(http.MethodPost, s.bibsEndpoint)
}

// DeleteBib is DELETE /bibs/{id}.
func (s *Session) DeleteBib(ctx context.Context, sid any) (*Response, error) {
	return nil, notImplemented(http.MethodDelete, s.bibsEndpoint+"{id}")
}

// ListBibs is GET /bibs/.
func (s *Session) ListBibs(ctx context.Context) (*Response, error) {
	return nil, notImplemented(http.MethodGet, s.bibsEndpoint)
}

// ListBibsMARC is GET /bibs/marc.
func (s *Session) ListBibsMARC(ctx context.Context) (*Response, error) {
	return nil, notImplemented(http.MethodGet, s.bibsMARCEndpoint())
}

// GetBibsMetadata is GET /bibs/metadata.
func (s *Session) GetBibsMetadata(ctx context.Context) (*Response, error) {
	return nil, notImplemented(http.MethodGet, s.bibsMetadataEndpoint())
}

// DeleteBibsMARCFiles is DELETE /bibs/marc.
func (s *Session) DeleteBibsMARCFiles(ctx context.Context) (*Response, error) {
	return nil, notImplemented(http.MethodDelete, s.bibsMARCEndpoint())
}

// QueryBibs is POST /bibs/query.
func (s *Session) QueryBibs(ctx context.Context) (*Response, error) {
	return nil, notImplemented(http.MethodPost, s.bibsQueryEndpoint())
}

// SearchBibs is GET /bibs/search.
func (s *Session) SearchBibs(ctx context.Context) (*Response, error) {
	return nil, notImplemented(http.MethodGet, s.bibsSearchEndpoint())
}
