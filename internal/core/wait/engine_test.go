package wait

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/melih/lighthouse-up/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	name     string
	results  []Status
	required bool
	checks   int
	cleaned  int
	cleanErr error
	// cleanLog, when set, records the cleanup sequence across checkers.
	cleanLog *[]string
}

func (s *stubChecker) Check(context.Context) Status {
	s.checks++
	if len(s.results) == 0 {
		return Pending
	}
	idx := s.checks - 1
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	return s.results[idx]
}

func (s *stubChecker) CleanUp() error {
	s.cleaned++
	if s.cleanLog != nil {
		*s.cleanLog = append(*s.cleanLog, s.name)
	}
	return s.cleanErr
}

func (s *stubChecker) Required() bool { return s.required }
func (s *stubChecker) String() string { return s.name }

func newTestEngine() *Engine {
	return NewEngine(WithPollInterval(10 * time.Millisecond))
}

func TestWaitPositive(t *testing.T) {
	c := &stubChecker{name: "stub", required: true, results: []Status{Pending, Pending, Satisfied}}
	verdict, err := newTestEngine().Wait(context.Background(), time.Second, c)
	require.NoError(t, err)
	assert.Equal(t, domain.WaitPositive, verdict.Status)
	assert.Equal(t, 3, c.checks, "no polling after the terminal condition")
	assert.Equal(t, 1, c.cleaned)
}

func TestWaitSatisfiedOnFirstPollStillCleansUp(t *testing.T) {
	c := &stubChecker{name: "stub", required: true, results: []Status{Satisfied}}
	verdict, err := newTestEngine().Wait(context.Background(), 0, c)
	require.NoError(t, err)
	assert.True(t, verdict.OK())
	assert.Equal(t, 1, c.cleaned)
}

func TestWaitTimeout(t *testing.T) {
	c := &stubChecker{name: "stub", required: true}
	verdict, err := newTestEngine().Wait(context.Background(), 100*time.Millisecond, c)
	require.NoError(t, err)
	assert.Equal(t, domain.WaitUnknown, verdict.Status)
	assert.GreaterOrEqual(t, verdict.Elapsed, 100*time.Millisecond)
	assert.Equal(t, 1, c.cleaned)
}

func TestWaitFailureDominates(t *testing.T) {
	ok := &stubChecker{name: "ok", required: true, results: []Status{Satisfied}}
	bad := &stubChecker{name: "bad", required: false, results: []Status{Failed}}
	verdict, err := newTestEngine().Wait(context.Background(), time.Second, ok, bad)
	require.NoError(t, err)
	assert.Equal(t, domain.WaitNegative, verdict.Status)
}

func TestWaitSatisfiedCheckerNotPolledAgain(t *testing.T) {
	fast := &stubChecker{name: "fast", required: true, results: []Status{Satisfied}}
	slow := &stubChecker{name: "slow", required: true, results: []Status{Pending, Pending, Satisfied}}
	verdict, err := newTestEngine().Wait(context.Background(), time.Second, fast, slow)
	require.NoError(t, err)
	assert.True(t, verdict.OK())
	assert.Equal(t, 1, fast.checks)
	assert.Equal(t, 3, slow.checks)
}

func TestWaitCleanupCountMatchesCheckers(t *testing.T) {
	for _, results := range [][]Status{{Satisfied}, {Failed}, {Pending}} {
		t.Run(fmt.Sprint(results), func(t *testing.T) {
			var order []string
			checkers := []*stubChecker{
				{name: "a", required: true, results: results, cleanLog: &order},
				{name: "b", required: true, results: results, cleanErr: errors.New("boom"), cleanLog: &order},
				{name: "c", required: false, cleanLog: &order},
			}
			_, err := newTestEngine().Wait(context.Background(), 50*time.Millisecond,
				checkers[0], checkers[1], checkers[2])
			require.NoError(t, err)
			for _, c := range checkers {
				assert.Equal(t, 1, c.cleaned, c.name)
			}
			assert.Equal(t, []string{"a", "b", "c"}, order)
		})
	}
}

func TestCleanUpAllContinuesPastErrors(t *testing.T) {
	var order []string
	a := &stubChecker{name: "a", cleanErr: errors.New("close a"), cleanLog: &order}
	b := &stubChecker{name: "b", cleanLog: &order}
	c := &stubChecker{name: "c", cleanErr: errors.New("close c"), cleanLog: &order}

	err := CleanUpAll([]Checker{a, b, c})
	require.Error(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)

	var cleanupErr *domain.CleanupError
	require.ErrorAs(t, err, &cleanupErr)
	assert.Equal(t, "a", cleanupErr.Checker)
	assert.ErrorContains(t, err, "close c")
	assert.NoError(t, CleanUpAll(nil))
}

func TestWaitCleanupErrorDoesNotMaskVerdict(t *testing.T) {
	c := &stubChecker{name: "stub", required: true, results: []Status{Satisfied}, cleanErr: errors.New("close failed")}
	verdict, err := newTestEngine().Wait(context.Background(), time.Second, c)
	require.NoError(t, err)
	assert.True(t, verdict.OK())
}

func TestWaitOnlyNonRequired(t *testing.T) {
	watch := &stubChecker{name: "watch", required: false}
	verdict, err := newTestEngine().Wait(context.Background(), 50*time.Millisecond, watch)
	require.NoError(t, err)
	assert.Equal(t, domain.WaitPositive, verdict.Status)

	watch = &stubChecker{name: "watch", required: false}
	verdict, err = newTestEngine().Wait(context.Background(), 0, watch)
	require.NoError(t, err)
	assert.Equal(t, domain.WaitPositive, verdict.Status)
	assert.Equal(t, 1, watch.checks)
}

func TestWaitInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)
	c := &stubChecker{name: "stub", required: true}
	_, err := newTestEngine().Wait(ctx, 0, c)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInterrupted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, c.cleaned)
}

func TestPause(t *testing.T) {
	e := newTestEngine()
	start := time.Now()
	require.NoError(t, e.Pause(context.Background(), 30*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, e.Pause(ctx, time.Second), domain.ErrInterrupted)
}

func TestDelayChecker(t *testing.T) {
	now := time.Unix(0, 0)
	c := NewDelayChecker(100 * time.Millisecond)
	c.now = func() time.Time { return now }
	assert.Equal(t, Pending, c.Check(context.Background()))
	now = now.Add(50 * time.Millisecond)
	assert.Equal(t, Pending, c.Check(context.Background()))
	now = now.Add(50 * time.Millisecond)
	assert.Equal(t, Satisfied, c.Check(context.Background()))
	assert.Equal(t, "at least 100 ms", c.String())
}

func TestParseStatusRange(t *testing.T) {
	r, err := ParseStatusRange("200...300")
	require.NoError(t, err)
	assert.True(t, r.Contains(250))
	assert.True(t, r.Contains(300))
	assert.False(t, r.Contains(301))

	r, err = ParseStatusRange("200")
	require.NoError(t, err)
	assert.True(t, r.Contains(200))
	assert.False(t, r.Contains(201))
	assert.False(t, r.Contains(199))

	for _, ok := range []string{"200 ... 300", "200..250", " 204 "} {
		_, err := ParseStatusRange(ok)
		assert.NoError(t, err, ok)
	}
	for _, bad := range []string{"", "abc", "300..200", "200....300", "20"} {
		_, err := ParseStatusRange(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidSpec, bad)
	}
}

func TestHTTPCheckerSuccess(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	for _, status := range []string{"", "200", "200 ... 300", "200..250"} {
		checker, err := NewHTTPChecker(srv.URL+"/test/", "", status)
		require.NoError(t, err)
		verdict, err := newTestEngine().Wait(context.Background(), time.Second, checker)
		require.NoError(t, err)
		assert.Equal(t, domain.WaitPositive, verdict.Status, status)
		assert.Less(t, verdict.Elapsed, time.Second)
	}
	assert.Positive(t, hits.Load())
}

func TestHTTPCheckerMethod(t *testing.T) {
	var method atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method.Store(r.Method)
	}))
	defer srv.Close()

	checker, err := NewHTTPChecker(srv.URL, "get", "")
	require.NoError(t, err)
	verdict, err := newTestEngine().Wait(context.Background(), time.Second, checker)
	require.NoError(t, err)
	assert.True(t, verdict.OK())
	assert.Equal(t, http.MethodGet, method.Load())
}

func TestHTTPCheckerWrongStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	checker, err := NewHTTPChecker(srv.URL, "", "500")
	require.NoError(t, err)
	verdict, err := newTestEngine().Wait(context.Background(), 200*time.Millisecond, checker)
	require.NoError(t, err)
	assert.Equal(t, domain.WaitUnknown, verdict.Status)
}

func TestHTTPCheckerUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	checker, err := NewHTTPChecker("http://"+addr+"/fake-context/", "", "")
	require.NoError(t, err)
	verdict, err := newTestEngine().Wait(context.Background(), 200*time.Millisecond, checker)
	require.NoError(t, err)
	assert.Equal(t, domain.WaitUnknown, verdict.Status)
	assert.GreaterOrEqual(t, verdict.Elapsed, 200*time.Millisecond)
	assert.Less(t, verdict.Elapsed, 700*time.Millisecond)
}

func TestNewHTTPCheckerInvalid(t *testing.T) {
	_, err := NewHTTPChecker("", "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidSpec)
	_, err = NewHTTPChecker("http://localhost", "", "2xx")
	assert.ErrorIs(t, err, domain.ErrInvalidSpec)
}

func TestDescribe(t *testing.T) {
	checker, err := NewHTTPChecker("http://localhost:8080/", "", "")
	require.NoError(t, err)
	got := Describe([]Checker{checker, NewDelayChecker(time.Second)})
	assert.Equal(t, "on url http://localhost:8080/ and at least 1000 ms", got)
}
