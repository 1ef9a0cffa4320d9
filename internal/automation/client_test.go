package automation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, h http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestCall_Success(t *testing.T) {
	var got map[string]any
	srv, hits := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/webhook/monday-tasks", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{
			"success": true, "tasksCreated": 2, "boardId": 9744010967,
			"tasks": [
				{"title": "Design", "priority": "high", "hours": 12, "assignee": "a@example.com", "budget": 1500.5, "province": "Ontario", "timeframe": "Week 1"},
				{"title": "Build"}
			]
		}`))
	})

	c := NewClient(srv.URL+"/", time.Second, time.Second)
	payload := map[string]any{"projectDescription": "Build a reporting dashboard", "weeklyHours": 40}
	res, err := c.Call(context.Background(), "webhook/monday-tasks", payload)
	require.NoError(t, err)

	assert.EqualValues(t, 1, hits.Load())
	assert.Equal(t, "Build a reporting dashboard", got["projectDescription"])
	assert.EqualValues(t, 40, got["weeklyHours"])

	require.True(t, res.Success)
	require.NotNil(t, res.TasksCreated)
	assert.Equal(t, 2, *res.TasksCreated)
	assert.Equal(t, FlexString("9744010967"), res.BoardID)
	require.Len(t, res.Tasks, 2)
	assert.Equal(t, Item{Title: "Design", Priority: "high", Hours: 12, Assignee: "a@example.com", Budget: 1500.5, Area: "Ontario", Timeframe: "Week 1"}, res.Tasks[0])
	assert.Equal(t, true, res.Raw["success"])
}

func TestCall_Failures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, res *Result, err error)
	}{
		{
			name: "non-2xx", status: http.StatusBadGateway, body: `{"message":"workflow crashed"}`,
			check: func(t *testing.T, res *Result, err error) {
				var ee *EndpointError
				require.ErrorAs(t, err, &ee)
				assert.Equal(t, http.StatusBadGateway, ee.Status)
				assert.Contains(t, err.Error(), "workflow crashed")
				assert.Nil(t, res)
			},
		},
		{
			name: "reported failure", status: http.StatusOK, body: `{"success":false,"error":"board not found"}`,
			check: func(t *testing.T, res *Result, err error) {
				var ee *EndpointError
				require.ErrorAs(t, err, &ee)
				assert.Equal(t, "automation endpoint reported failure: board not found", err.Error())
				require.NotNil(t, res)
				assert.Equal(t, "board not found", res.Error)
			},
		},
		{
			name: "not json", status: http.StatusOK, body: `<html>oops</html>`,
			check: func(t *testing.T, _ *Result, err error) {
				var de *DecodeError
				require.ErrorAs(t, err, &de)
				assert.Equal(t, "<html>oops</html>", de.Body)
			},
		},
		{
			name: "schema mismatch", status: http.StatusOK, body: `{"success":"yes"}`,
			check: func(t *testing.T, _ *Result, err error) {
				var de *DecodeError
				require.ErrorAs(t, err, &de)
			},
		},
		{
			name: "missing success", status: http.StatusOK, body: `{"tasksCreated":3}`,
			check: func(t *testing.T, _ *Result, err error) {
				var de *DecodeError
				require.ErrorAs(t, err, &de)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, hits := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			res, err := NewClient(srv.URL, time.Second, time.Second).Call(context.Background(), "/webhook/x", nil)
			require.Error(t, err)
			tc.check(t, res, err)
			assert.EqualValues(t, 1, hits.Load(), "no retry")
		})
	}
}

func TestCall_Timeout(t *testing.T) {
	srv, hits := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	c := NewClient(srv.URL, 50*time.Millisecond, time.Second)
	_, err := c.Call(context.Background(), "/webhook/slow", map[string]any{"a": 1})

	var ue *UnreachableError
	require.ErrorAs(t, err, &ue)
	assert.True(t, ue.Timeout)
	assert.Equal(t, "automation endpoint timed out after 50ms", err.Error())
	assert.EqualValues(t, 1, hits.Load())
}

func TestCall_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, time.Second, time.Second).Call(context.Background(), "/webhook/x", nil)
	var ue *UnreachableError
	require.ErrorAs(t, err, &ue)
	assert.False(t, ue.Timeout)
	assert.Equal(t, "unreachable", outcomeOf(err))
}

func TestPing(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pingPath, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	})
	assert.NoError(t, NewClient(srv.URL, time.Second, time.Second).Ping(context.Background()))

	broken, _ := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	err := NewClient(broken.URL, time.Second, time.Second).Ping(context.Background())
	var ee *EndpointError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, http.StatusServiceUnavailable, ee.Status)
}

func TestTrigger(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["env"] == "prod" {
			_, _ = w.Write([]byte(`{"deployed":true}`))
			return
		}
		_, _ = w.Write([]byte("accepted"))
	})
	c := NewClient("http://unused", time.Second, time.Second)

	out, err := c.Trigger(context.Background(), srv.URL+"/hook", map[string]any{"env": "prod"})
	require.NoError(t, err)
	assert.Equal(t, true, out["deployed"])

	out, err = c.Trigger(context.Background(), srv.URL+"/hook", nil)
	require.NoError(t, err)
	assert.Equal(t, "accepted", out["body"])
}
