package wait

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/melih/lighthouse-up/internal/core/domain"
)

const (
	// DefaultHTTPMethod is used when a probe configures no method.
	DefaultHTTPMethod = http.MethodHead
	// DefaultStatusRange is used when a probe configures no status.
	DefaultStatusRange = "200..399"

	defaultRequestTimeout = time.Second
)

var statusPattern = regexp.MustCompile(`^\s*(\d{3})\s*(?:\.{2,3}\s*(\d{3})\s*)?$`)

// StatusRange is an inclusive range of HTTP status codes.
type StatusRange struct {
	Low, High int
}

// ParseStatusRange parses "200", "200..399" or "200...399". Whitespace around
// the dots is allowed.
func ParseStatusRange(s string) (StatusRange, error) {
	m := statusPattern.FindStringSubmatch(s)
	if m == nil {
		return StatusRange{}, fmt.Errorf("%w: invalid status expression %q", domain.ErrInvalidSpec, s)
	}
	low, _ := strconv.Atoi(m[1])
	high := low
	if m[2] != "" {
		high, _ = strconv.Atoi(m[2])
	}
	if high < low {
		return StatusRange{}, fmt.Errorf("%w: invalid status range %q", domain.ErrInvalidSpec, s)
	}
	return StatusRange{Low: low, High: high}, nil
}

// Contains reports whether code lies in the range.
func (r StatusRange) Contains(code int) bool {
	return code >= r.Low && code <= r.High
}

func (r StatusRange) String() string {
	if r.Low == r.High {
		return strconv.Itoa(r.Low)
	}
	return fmt.Sprintf("%d..%d", r.Low, r.High)
}

// HTTPChecker pings a URL until the response status matches. Connection errors
// count as pending since the target may not be listening yet.
type HTTPChecker struct {
	url    string
	method string
	status StatusRange
	client *http.Client
}

// NewHTTPChecker builds an HTTP probe. Empty method and status select the
// defaults.
func NewHTTPChecker(url, method, status string) (*HTTPChecker, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: http probe without url", domain.ErrInvalidSpec)
	}
	if method == "" {
		method = DefaultHTTPMethod
	}
	if status == "" {
		status = DefaultStatusRange
	}
	r, err := ParseStatusRange(status)
	if err != nil {
		return nil, err
	}
	return &HTTPChecker{
		url:    url,
		method: strings.ToUpper(method),
		status: r,
		client: &http.Client{
			Timeout: defaultRequestTimeout,
			// A redirect is an answer in its own right.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

func (c *HTTPChecker) Check(ctx context.Context) Status {
	req, err := http.NewRequestWithContext(ctx, c.method, c.url, nil)
	if err != nil {
		return Pending
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Pending
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if c.status.Contains(resp.StatusCode) {
		return Satisfied
	}
	return Pending
}

func (c *HTTPChecker) CleanUp() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *HTTPChecker) Required() bool { return true }

func (c *HTTPChecker) String() string {
	return "on url " + c.url
}
