package util

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{"valid header", "Bearer abc123", "abc123", nil},
		{"missing header", "", "", ErrMissingAuthHeader},
		{"no bearer prefix", "Basic abc123", "", ErrInvalidAuthHeader},
		{"prefix only", "Bearer ", "", ErrInvalidAuthHeader},
		{"lowercase prefix rejected", "bearer abc123", "", ErrInvalidAuthHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractBearerToken(tt.header)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestContainsWeakPattern(t *testing.T) {
	patterns := []string{"secret", "password"}

	weak, pattern := ContainsWeakPattern("my-PASSWORD-123", patterns)
	assert.True(t, weak)
	assert.Equal(t, "password", pattern)

	weak, pattern = ContainsWeakPattern("k9Qz3xWv7bNm1pLr", patterns)
	assert.False(t, weak)
	assert.Empty(t, pattern)
}

func TestNewTimeoutContext(t *testing.T) {
	ctx, cancel := NewTimeoutContext(time.Minute)
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, time.Second)
}

func TestSafeGo_RecoversFromPanic(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)

	SafeGo(zerolog.Nop(), "test", func() {
		defer wg.Done()
		panic(errors.New("boom"))
	})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("panicking goroutine did not finish")
	}
}

func TestSafeGo_RunsFunction(t *testing.T) {
	ran := make(chan struct{})

	SafeGo(zerolog.Nop(), "test", func() {
		close(ran)
	})

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}
