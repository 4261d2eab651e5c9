package sink

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/gnss-prepro/model"
)

type memSink struct {
	sods   []float64
	err    error
	closed bool
}

func (m *memSink) WriteEpoch(_ context.Context, res *model.EpochResult) error {
	m.sods = append(m.sods, res.SoD)
	return m.err
}

func (m *memSink) Close() error {
	m.closed = true
	return nil
}

type writeLog map[string][]bool

func (w writeLog) ObserveSinkWrite(name string, err error) {
	w[name] = append(w[name], err == nil)
}

func TestMultiWritesEveryTarget(t *testing.T) {
	good := &memSink{}
	bad := &memSink{err: errors.New("disk full")}
	rec := writeLog{}
	m := NewMulti(rec, Named("file", good), Named("broken", bad), Named("nil", nil))
	require.Equal(t, 2, m.Len())

	err := m.WriteEpoch(context.Background(), model.NewEpochResult(30, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink broken: disk full")
	assert.Equal(t, []float64{30}, good.sods)
	assert.Equal(t, []float64{30}, bad.sods)
	assert.Equal(t, writeLog{"file": {true}, "broken": {false}}, rec)

	require.NoError(t, m.Close())
	assert.True(t, good.closed)
	assert.True(t, bad.closed)
}

func TestNoCloseKeepsSinkOpen(t *testing.T) {
	inner := &memSink{}
	m := NewMulti(nil, Named("shared", NoClose(inner)))
	require.NoError(t, m.WriteEpoch(context.Background(), model.NewEpochResult(1, 0)))
	require.NoError(t, m.Close())
	assert.False(t, inner.closed)
	assert.Equal(t, []float64{1}, inner.sods)
	assert.Nil(t, NoClose(nil))
}

type influxStub struct {
	mu     sync.Mutex
	bodies []string
	query  []string
	status int
}

func (s *influxStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/v2/write" {
		http.NotFound(w, r)
		return
	}
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.bodies = append(s.bodies, string(body))
	s.query = append(s.query, r.URL.RawQuery)
	status := s.status
	s.mu.Unlock()
	if status == 0 {
		status = http.StatusNoContent
	}
	w.WriteHeader(status)
}

func influxEpoch() *model.EpochResult {
	res := model.NewEpochResult(90, 2)
	ok := model.NewObservation(model.RawSample{Label: "G05", SoD: 90, Elevation: 40, C1: 2.1e7, C2: 2.1e7 + 3})
	ok.SmoothIF = 2.1e7 - 1.25
	ok.CodeRateL1, ok.CodeRateStepL1 = 1.5, -0.25
	ok.PhaseRateStepL2 = 0.125
	ok.Status = true
	res.Add(ok)
	bad := model.NewObservation(model.RawSample{Label: "E12", SoD: 90, Elevation: 8})
	bad.Reject(model.RejectMinSNRF1)
	res.Add(bad)
	return res
}

func TestInfluxWritesLineProtocol(t *testing.T) {
	stub := &influxStub{}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	s, err := NewInflux(InfluxConfig{URL: srv.URL, Token: "t", Org: "lab", Bucket: "gnss", Timeout: time.Second})
	require.NoError(t, err)
	defer s.Close()
	s.SetDay(time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC))

	require.NoError(t, s.WriteEpoch(context.Background(), influxEpoch()))

	stub.mu.Lock()
	defer stub.mu.Unlock()
	require.Len(t, stub.bodies, 1)
	assert.Contains(t, stub.query[0], "bucket=gnss")
	assert.Contains(t, stub.query[0], "org=lab")

	lines := strings.Split(strings.TrimSpace(stub.bodies[0]), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], DefaultMeasurement+","))
	assert.Contains(t, lines[0], "sat=G05")
	assert.Contains(t, lines[0], "const=G")
	assert.Contains(t, lines[0], "valid=true")
	assert.Contains(t, lines[0], "smooth_if=")
	assert.Contains(t, lines[0], "status=true")
	assert.Contains(t, lines[0], "code_rate1=1.5")
	assert.Contains(t, lines[0], "code_step1=-0.25")
	assert.Contains(t, lines[0], "phase_step2=0.125")
	assert.NotContains(t, lines[0], "code_step2=", "unset steps are not written")

	assert.Contains(t, lines[1], "sat=E12")
	assert.Contains(t, lines[1], "valid=false")
	assert.Contains(t, lines[1], "cause=3i")
	assert.NotContains(t, lines[1], "smooth_if=")
	assert.NotContains(t, lines[1], "code_rate1=")

	// 2024-01-11T00:01:30Z in nanoseconds.
	assert.True(t, strings.HasSuffix(lines[0], " 1704931290000000000"), lines[0])
}

func TestInfluxReportsServerErrors(t *testing.T) {
	stub := &influxStub{status: http.StatusUnauthorized}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	s, err := NewInflux(InfluxConfig{URL: srv.URL, Org: "lab", Bucket: "gnss"})
	require.NoError(t, err)
	defer s.Close()

	err = s.WriteEpoch(context.Background(), influxEpoch())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write epoch 90")
}

func TestInfluxSkipsEmptyEpochs(t *testing.T) {
	stub := &influxStub{}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	s, err := NewInflux(InfluxConfig{URL: srv.URL, Org: "lab", Bucket: "gnss"})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.WriteEpoch(context.Background(), model.NewEpochResult(0, 0)))
	assert.Empty(t, stub.bodies)
}

func TestNewInfluxRequiresTarget(t *testing.T) {
	_, err := NewInflux(InfluxConfig{URL: "http://localhost:8086"})
	assert.Error(t, err)
}
