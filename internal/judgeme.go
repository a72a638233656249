package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// lookupField is the product lookup parameter an identifier is matched on.
type lookupField string

const (
	externalIDField lookupField = "external_id"
	handleField     lookupField = "handle"
)

// upstream is the subset of the Judge.me API we depend on. It's an interface
// so tests can substitute their own.
type upstream interface {
	// LookupProduct returns the Judge.me product ID matching value on the
	// given field. A successful response without a product returns
	// errNotFound; non-2xx responses return a statusErr.
	LookupProduct(ctx context.Context, field lookupField, value string) (int64, error)

	// ListReviews returns one page of reviews for a Judge.me product ID.
	ListReviews(ctx context.Context, productID int64, perPage, page int) ([]ReviewRecord, error)
}

// JudgeMe talks to the Judge.me REST API. Credentials are injected by the
// client's transport; see NewUpstream.
type JudgeMe struct {
	client *http.Client
}

var _ upstream = (*JudgeMe)(nil)

// NewJudgeMe creates a new Judge.me API client.
func NewJudgeMe(client *http.Client) *JudgeMe {
	return &JudgeMe{client: client}
}

type productResponse struct {
	Product *struct {
		ID int64 `json:"id"`
	} `json:"product"`
}

type reviewsResponse struct {
	Reviews []ReviewRecord `json:"reviews"`
}

// LookupProduct queries /products/-1, which is how Judge.me exposes lookups by
// something other than its own ID.
func (j *JudgeMe) LookupProduct(ctx context.Context, field lookupField, value string) (int64, error) {
	q := url.Values{}
	q.Set(string(field), value)

	var resp productResponse
	err := j.get(ctx, "products", "/api/v1/products/-1", q, &resp)
	if err != nil {
		return 0, err
	}

	if resp.Product == nil || resp.Product.ID == 0 {
		return 0, errNotFound
	}

	return resp.Product.ID, nil
}

// ListReviews fetches a single page of reviews. A product without reviews is
// not an error.
func (j *JudgeMe) ListReviews(ctx context.Context, productID int64, perPage, page int) ([]ReviewRecord, error) {
	q := url.Values{}
	q.Set("product_id", strconv.FormatInt(productID, 10))
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))

	var resp reviewsResponse
	err := j.get(ctx, "reviews", "/api/v1/reviews", q, &resp)
	if err != nil {
		return nil, err
	}

	if resp.Reviews == nil {
		return []ReviewRecord{}, nil
	}
	return resp.Reviews, nil
}

// get issues a GET and decodes a JSON body into out.
func (j *JudgeMe) get(ctx context.Context, endpoint, path string, q url.Values, out any) (err error) {
	start := time.Now()
	defer func() { recordUpstream(endpoint, err, time.Since(start)) }()

	u := url.URL{Path: path, RawQuery: q.Encode()}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := j.client.Do(req)
	if err != nil {
		var s statusErr
		if errors.As(err, &s) {
			return fmt.Errorf("%s: %w", endpoint, s) // Drop the url.Error wrapper.
		}
		return fmt.Errorf("requesting %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Join(fmt.Errorf("decoding %s: %w", endpoint, err), errMalformed)
	}

	return nil
}

