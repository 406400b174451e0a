package sierra

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// Item operations - GET/PUT on /items

// GetItemOptions selects what GetItem returns.
type GetItemOptions struct {
	Fields []string

	// Accept overrides the response media type (default application/json).
	Accept string
}

// ListItemsOptions filters GET /items/. Zero values are left out of the
// request.
type ListItemsOptions struct {
	IDs    any // record numbers, see ParseSierraNumbers
	Limit  int
	Offset int
	Fields []string

	// Date range filters, see FormatDateRange.
	CreatedDate string
	UpdatedDate string
	DeletedDate string

	Deleted    *bool
	BibIDs     any // record numbers, see ParseSierraNumbers
	Status     string
	DueDate    string
	Suppressed *bool

	// Locations are location codes; each may end in a "*" wildcard.
	Locations []string
}

func (o ListItemsOptions) values() (url.Values, error) {
	q := url.Values{}

	ids, err := ParseSierraNumbers(o.IDs)
	if err != nil {
		return nil, err
	}
	if ids != "" {
		q.Set("id", ids)
	}

	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		q.Set("offset", strconv.Itoa(o.Offset))
	}
	if fields, ok := JoinKeywords(o.Fields); ok {
		q.Set("fields", fields)
	}

	setIfPresent(q, "createdDate", o.CreatedDate)
	setIfPresent(q, "updatedDate", o.UpdatedDate)
	setIfPresent(q, "deletedDate", o.DeletedDate)
	if o.Deleted != nil {
		q.Set("deleted", strconv.FormatBool(*o.Deleted))
	}

	bibIDs, err := ParseSierraNumbers(o.BibIDs)
	if err != nil {
		return nil, err
	}
	if bibIDs != "" {
		q.Set("bibIds", bibIDs)
	}

	setIfPresent(q, "status", o.Status)
	setIfPresent(q, "duedate", o.DueDate)
	if o.Suppressed != nil {
		q.Set("suppressed", strconv.FormatBool(*o.Suppressed))
	}

	locations, ok, err := joinLocations(o.Locations)
	if err != nil {
		return nil, err
	}
	if ok {
		q.Set("locations", locations)
	}

	return q, nil
}

func setIfPresent(q url.Values, key, value string) {
	if value, ok := JoinKeywords(value); ok {
		q.Set(key, value)
	}
}

// ============================================================================
// Single item
// ============================================================================

// GetItem retrieves an item record (GET /items/{id}).
func (s *Session) GetItem(ctx context.Context, sid any, opts *GetItemOptions) (*Response, error) {
	id, err := ParseSierraNumber(sid)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	header := http.Header{"Accept": {"application/json"}}
	if opts != nil {
		if fields, ok := JoinKeywords(opts.Fields); ok {
			query.Set("fields", fields)
		}
		if opts.Accept != "" {
			header.Set("Accept", opts.Accept)
		}
	}

	return s.do(ctx, http.MethodGet, s.itemEndpoint(id), query, header, nil)
}

// UpdateItem replaces item data (PUT /items/{id}). data is a map sent as
// JSON or a string sent verbatim.
func (s *Session) UpdateItem(ctx context.Context, sid any, data any, opts *UpdateOptions) (*Response, error) {
	body, err := encodeBody(data, false)
	if err != nil {
		return nil, err
	}

	id, err := ParseSierraNumber(sid)
	if err != nil {
		return nil, err
	}

	return s.do(ctx, http.MethodPut, s.itemEndpoint(id), nil, opts.header(), body)
}

// ============================================================================
// Item lists
// ============================================================================

// ListItems lists items matching opts (GET /items/).
func (s *Session) ListItems(ctx context.Context, opts ListItemsOptions) (*Response, error) {
	query, err := opts.values()
	if err != nil {
		return nil, err
	}

	header := http.Header{"Accept": {"application/json"}}
	return s.do(ctx, http.MethodGet, s.itemsEndpoint, query, header, nil)
}

// ============================================================================
// Not implemented
// ============================================================================

// CreateItem is POST /items/.
func (s *Session) CreateItem(ctx context.Context) (*Response, error) {
	return nil, notImplemented(http.MethodPost, s.itemsEndpoint)
}

// DeleteItem is DELETE /items/{id}.
func (s *Session) DeleteItem(ctx context.Context, sid any) (*Response, error) {
	return nil, notImplemented(http.MethodDelete, s.itemsEndpoint+"{id}")
}

// GetItemCheckouts is GET /items/{id}/checkouts.
func (s *Session) GetItemCheckouts(ctx context.Context, sid any) (*Response, error) {
	return nil, notImplemented(http.MethodGet, s.itemCheckoutsEndpoint("{id}"))
}

// ListItemsCheckouts is GET /items/checkouts.
func (s *Session) ListItemsCheckouts(ctx context.Context) (*Response, error) {
	return nil, notImplemented(http.MethodGet, s.itemsCheckoutsEndpoint())
}

// CheckinItem is DELETE /items/checkouts/{barcode}.
func (s *Session) CheckinItem(ctx context.Context, barcode string) (*Response, error) {
	return nil, notImplemented(http.MethodDelete, s.itemsCheckoutsEndpoint()+"/{barcode}")
}

// QueryItems is POST /items/query.
func (s *Session) QueryItems(ctx context.Context) (*Response, error) {
	return nil, notImplemented(http.MethodPost, s.itemsQueryEndpoint())
}
