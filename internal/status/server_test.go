package status

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hundemeier/go-sacn/internal/metrics"
	"github.com/Hundemeier/go-sacn/sacn"
)

func newTestServer(t *testing.T) (*httptest.Server, *sacn.Receiver) {
	t.Helper()
	reg := prometheus.NewRegistry()
	col, err := metrics.New(reg)
	require.NoError(t, err)
	recv, err := sacn.NewReceiver(9, false, sacn.WithObserver(col))
	require.NoError(t, err)
	srv := httptest.NewServer(NewRouter(recv, time.Minute, reg))
	t.Cleanup(srv.Close)
	return srv, recv
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestStatusBeforeAndAfterData(t *testing.T) {
	srv, recv := newTestServer(t)

	var st StatusResponse
	getJSON(t, srv.URL+"/status", &st)
	assert.Equal(t, uint16(9), st.Universe)
	assert.True(t, st.Stale)
	assert.Nil(t, st.LastReceived)

	p := sacn.NewDataPacket(9)
	p.SetData([]byte{1})
	recv.Handle(p.Bytes())

	getJSON(t, srv.URL+"/status", &st)
	assert.False(t, st.Stale)
	require.NotNil(t, st.LastReceived)
	assert.WithinDuration(t, time.Now(), *st.LastReceived, time.Minute)
}

func TestFrame(t *testing.T) {
	srv, recv := newTestServer(t)
	p := sacn.NewDataPacket(9)
	p.SetData([]byte{10, 0, 255})
	recv.Handle(p.Bytes())

	var fr FrameResponse
	getJSON(t, srv.URL+"/frame", &fr)
	assert.Equal(t, uint16(9), fr.Universe)
	assert.Equal(t, byte(0), fr.StartCode)
	require.Len(t, fr.Channels, sacn.ChannelCount)
	assert.Equal(t, []int{10, 0, 255, 0}, fr.Channels[:4])
}

func TestMetrics(t *testing.T) {
	srv, recv := newTestServer(t)
	recv.Handle(make([]byte, 3))

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `sacnrx_datagrams_total{outcome="rejected",reason="length_mismatch",universe="9"} 1`)
}

func TestUnknownRoute(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Post(srv.URL+"/status", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
