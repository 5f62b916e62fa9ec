package inference

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orian/trendlabel/models"
)

func TestGaussianKernel(t *testing.T) {
	k := GaussianKernel(SmoothingSigma)
	assert.Len(t, k, 57, "radius is int(4*7+0.5) = 28")

	sum := 0.0
	for _, w := range k {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.Equal(t, k[0], k[len(k)-1])
	assert.Greater(t, k[28], k[27])
}

func TestSmoothPreservesConstant(t *testing.T) {
	x := []float64{5, 5, 5, 5, 5}
	for _, v := range Smooth(x, GaussianKernel(SmoothingSigma)) {
		assert.InDelta(t, 5.0, v, 1e-9)
	}
}

func TestSmoothReflectsAtEdges(t *testing.T) {
	// kernel [0.25 0.5 0.25] on [1 2 3]: edges mirror themselves
	got := Smooth([]float64{1, 2, 3}, []float64{0.25, 0.5, 0.25})
	assert.InDeltaSlice(t, []float64{1.25, 2, 2.75}, got, 1e-12)
}

func TestReflect(t *testing.T) {
	tests := []struct{ i, n, want int }{
		{-1, 4, 0},
		{-2, 4, 1},
		{4, 4, 3},
		{5, 4, 2},
		{-5, 2, 0},
		{9, 2, 1},
		{3, 1, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, reflect(tt.i, tt.n), "reflect(%d, %d)", tt.i, tt.n)
	}
}

func TestLogReturns(t *testing.T) {
	got, err := LogReturns([]float64{1, math.E, 1})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 1, -1}, got, 1e-12)

	_, err = LogReturns([]float64{1, 0, 2})
	assert.ErrorIs(t, err, models.ErrInvalidPredictionInput)
}

func TestPrepare(t *testing.T) {
	s := &models.Series{
		Index:   []time.Time{time.Unix(0, 0), time.Unix(1, 0), time.Unix(2, 0)},
		Columns: []string{"lead1", "lead2"},
		Values:  [][]float64{{10, 3}, {10, 3}, {10, 3}},
	}
	got, err := Prepare(s)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, row := range got {
		assert.InDeltaSlice(t, []float64{0, 0}, row, 1e-12)
	}

	s.Values[1][1] = -50
	_, err = Prepare(s)
	assert.ErrorIs(t, err, models.ErrInvalidPredictionInput)

	_, err = Prepare(&models.Series{})
	assert.ErrorIs(t, err, models.ErrInvalidPredictionInput)
}

func TestHTTPPredictor(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PredictPath, r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		labels := make([]int, len(got.Features))
		labels[len(labels)-1] = 3
		_ = json.NewEncoder(w).Encode(map[string]any{"labels": labels})
	}))
	defer srv.Close()

	p := NewHTTPPredictor(srv.URL+"/", 5*time.Second, nil)
	labels, err := p.Predict(context.Background(), Request{
		Model:      "GRU model v1",
		ModelFile:  "/models/gru.pth",
		Timestamps: []string{"a", "b"},
		Columns:    []string{"lead1"},
		Features:   [][]float64{{0}, {0.1}},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 3}, labels)
	assert.Equal(t, "GRU model v1", got.Model)
	assert.Equal(t, "/models/gru.pth", got.ModelFile)
}

func TestHTTPPredictorErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model crashed", http.StatusInternalServerError)
			},
		},
		{
			name: "bad json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
		},
		{
			name: "length mismatch",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"labels":[1]}`))
			},
		},
		{
			name: "error field",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"labels":[],"error":"unknown model"}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			p := NewHTTPPredictor(srv.URL, time.Second, nil)
			_, err := p.Predict(context.Background(), Request{Features: [][]float64{{0}, {1}}})
			assert.Error(t, err)
		})
	}
}
